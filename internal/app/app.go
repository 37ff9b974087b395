// Package app turns a loaded config into an open tab for the cmd binaries.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"animehub/internal/core/auth"
	"animehub/internal/core/bus"
	"animehub/internal/core/config"
	"animehub/internal/core/database"
	"animehub/internal/core/kv"
	"animehub/internal/quiz"
	"animehub/internal/tab"
	"animehub/pkg/utils"
)

var (
	ErrUnknownDriver = errors.New("unknown kv driver")
	// ErrLocalBroadcast rejects an in-process channel over a medium that
	// other processes write to.
	ErrLocalBroadcast = errors.New("shared kv driver needs the redis broadcast")
)

// Open wires the medium and cross-tab channel named by cfg.KV and opens one
// tab on them. The returned cleanup closes the tab and every connection.
func Open(ctx context.Context, cfg *config.Config, nodeID int64, log *zap.Logger) (*tab.Tab, func(), error) {
	var closers []func() error
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i](); err != nil {
				log.Warn("cleanup", zap.Error(err))
			}
		}
	}

	medium, rdb, err := openMedium(ctx, cfg, log, &closers)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	channel, err := openChannel(ctx, cfg, rdb, log, &closers)
	if err != nil {
		cleanup()
		return nil, nil, err
	}

	var bank *quiz.Bank
	if cfg.Quiz.BankPath != "" {
		if bank, err = quiz.LoadBank(cfg.Quiz.BankPath); err != nil {
			cleanup()
			return nil, nil, err
		}
	}

	t, err := tab.Open(ctx, tab.Options{
		Medium:  medium,
		Channel: channel,
		JWT: &auth.JWTer{
			Secret: []byte(cfg.JWT.Secret),
			Issuer: cfg.JWT.Issuer,
			TTL:    cfg.JWT.SessionTTL,
		},
		Hasher:           utils.BcryptHasher{Cost: cfg.JWT.BcryptCost},
		Bank:             bank,
		Rewards:          quiz.RewardsFromConfig(cfg.Quiz.Rewards),
		Polling:          cfg.Polling,
		QuizDefaultLimit: cfg.Quiz.DefaultTimeLimit,
		NodeID:           nodeID,
		Logger:           log,
	})
	if err != nil {
		_ = channel.Close()
		cleanup()
		return nil, nil, err
	}
	log.Info("tab opened",
		zap.String("kv", cfg.KV.Driver),
		zap.String("origin", t.Origin()),
		zap.Int("quizzes", len(t.Quizzes.Quizzes())))
	return t, func() {
		if err := t.Close(); err != nil {
			log.Warn("close tab", zap.Error(err))
		}
		cleanup()
	}, nil
}

func openMedium(ctx context.Context, cfg *config.Config, log *zap.Logger, closers *[]func() error) (kv.Store, *redis.Client, error) {
	switch cfg.KV.Driver {
	case "", "memory":
		return kv.NewMemory(), nil, nil
	case "redis":
		rdb, err := dialRedis(ctx, cfg, closers)
		if err != nil {
			return nil, nil, err
		}
		return kv.NewRedis(rdb, cfg.KV.Prefix), rdb, nil
	case "sql":
		db, err := database.NewGorm(database.Opts{
			Driver:             cfg.DB.Driver,
			DSN:                cfg.DB.DSN,
			Username:           cfg.DB.Username,
			Password:           cfg.DB.Password,
			MaxOpenConns:       cfg.DB.MaxOpenConns,
			MaxIdleConns:       cfg.DB.MaxIdleConns,
			ConnMaxLifetimeMin: cfg.DB.ConnMaxLifetimeMin,
			LogLevel:           cfg.DB.LogLevel,
			Logger:             log,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("open db: %w", err)
		}
		if sqlDB, err := db.DB(); err == nil {
			*closers = append(*closers, sqlDB.Close)
		}
		store, err := kv.NewSQL(db)
		if err != nil {
			return nil, nil, fmt.Errorf("migrate kv table: %w", err)
		}
		log.Info("database connected", zap.String("driver", cfg.DB.Driver))
		return store, nil, nil
	}
	return nil, nil, fmt.Errorf("%w: %q", ErrUnknownDriver, cfg.KV.Driver)
}

func openChannel(ctx context.Context, cfg *config.Config, rdb *redis.Client, log *zap.Logger, closers *[]func() error) (bus.CrossTab, error) {
	shared := cfg.KV.Driver == "redis" || cfg.KV.Driver == "sql"
	mode := cfg.KV.Broadcast
	if mode == "" {
		mode = "local"
		if shared {
			mode = "redis"
		}
	}
	if mode == "local" {
		if shared {
			return nil, fmt.Errorf("%w: kv.driver %q", ErrLocalBroadcast, cfg.KV.Driver)
		}
		return bus.NewHub().Join(), nil
	}
	if mode != "redis" {
		return nil, fmt.Errorf("unknown broadcast %q", mode)
	}
	if rdb == nil {
		var err error
		if rdb, err = dialRedis(ctx, cfg, closers); err != nil {
			return nil, err
		}
	}
	return bus.NewRedisChannel(ctx, rdb, cfg.KV.Channel, log)
}

func dialRedis(ctx context.Context, cfg *config.Config, closers *[]func() error) (*redis.Client, error) {
	rdb := kv.NewRedisClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis %s: %w", cfg.Redis.Addr, err)
	}
	*closers = append(*closers, rdb.Close)
	return rdb, nil
}
