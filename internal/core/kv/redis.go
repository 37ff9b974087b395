package kv

import (
	"context"
	"errors"
	"sort"
	"strings"

	"github.com/redis/go-redis/v9"
)

// Redis keeps every key under prefix so several profiles can share a server.
type Redis struct {
	RDB    *redis.Client
	prefix string
}

func NewRedisClient(addr, pass string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{Addr: addr, Password: pass, DB: db})
}

func NewRedis(rdb *redis.Client, prefix string) *Redis {
	return &Redis{RDB: rdb, prefix: prefix}
}

func (r *Redis) k(key string) string { return r.prefix + key }

func (r *Redis) Get(ctx context.Context, key string) (string, bool, error) {
	s, err := r.RDB.Get(ctx, r.k(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return s, true, nil
}

func (r *Redis) Set(ctx context.Context, key, value string) error {
	return r.RDB.Set(ctx, r.k(key), value, 0).Err()
}

func (r *Redis) Remove(ctx context.Context, key string) error {
	return r.RDB.Del(ctx, r.k(key)).Err()
}

func (r *Redis) Keys(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	iter := r.RDB.Scan(ctx, 0, r.k(prefix)+"*", 200).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, strings.TrimPrefix(iter.Val(), r.prefix))
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	sort.Strings(keys)
	return keys, nil
}

var errSwapLost = errors.New("swap lost")

func (r *Redis) CompareAndSwap(ctx context.Context, key, prev string, prevOK bool, next string) (bool, error) {
	full := r.k(key)
	err := r.RDB.Watch(ctx, func(tx *redis.Tx) error {
		cur, err := tx.Get(ctx, full).Result()
		exists := true
		if errors.Is(err, redis.Nil) {
			exists = false
		} else if err != nil {
			return err
		}
		if exists != prevOK || (exists && cur != prev) {
			return errSwapLost
		}
		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.Set(ctx, full, next, 0)
			return nil
		})
		return err
	}, full)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, errSwapLost), errors.Is(err, redis.TxFailedErr):
		return false, nil
	default:
		return false, err
	}
}
