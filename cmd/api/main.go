package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "go.uber.org/automaxprocs"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"animehub/internal/app"
	"animehub/internal/core/config"
	"animehub/internal/core/logger"
	"animehub/internal/core/server"
	"animehub/internal/transport/http/router"
)

// nodeID seeds notification ids; the admin binary uses 2.
const nodeID = 1

func main() {
	_ = godotenv.Load()
	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	l, cleanup := logger.FromConfig(cfg.Log)
	defer cleanup()
	defer logger.RedirectStdLog(l, zapcore.InfoLevel)()
	if cfg.App.Env != "local" {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	t, closeTab, err := app.Open(ctx, cfg, nodeID, l)
	if err != nil {
		l.Fatal("open tab", zap.Error(err))
	}
	defer closeTab()

	r := router.NewAPIEngine(l, t)
	addr := server.Addr(cfg.App.HTTP.Host, cfg.App.HTTP.Port)
	srv := server.BuildServer(
		addr, r,
		time.Duration(cfg.App.HTTP.ReadTimeoutSec)*time.Second,
		time.Duration(cfg.App.HTTP.WriteTimeoutSec)*time.Second,
		time.Duration(cfg.App.HTTP.IdleTimeoutSec)*time.Second,
	)

	host4human := cfg.App.HTTP.Host
	if host4human == "" || host4human == "0.0.0.0" {
		host4human = "127.0.0.1"
	}
	baseURL := "http://" + host4human + ":" + fmt.Sprint(cfg.App.HTTP.Port)
	l.Info("user api starting",
		zap.String("addr", addr),
		zap.String("health", baseURL+"/health"),
		zap.String("api_v1", baseURL+"/api/v1"),
	)

	go func() {
		if err := server.StartHTTP(srv, l); err != nil {
			l.Error("user api stopped", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	if err := server.Shutdown(srv, 10*time.Second); err != nil {
		l.Warn("shutdown", zap.Error(err))
	}
	l.Info("user api stopped gracefully")
}
