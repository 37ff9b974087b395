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

	"animehub/internal/app"
	"animehub/internal/core/config"
	"animehub/internal/core/logger"
	"animehub/internal/core/server"
	"animehub/internal/transport/http/router"
)

const nodeID = 2

func main() {
	_ = godotenv.Load()
	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	l, cleanup := logger.FromConfig(cfg.Log)
	defer cleanup()
	l = l.Named("admin")
	if cfg.App.Env != "local" {
		gin.SetMode(gin.ReleaseMode)
	}
	if cfg.KV.Driver == "memory" {
		l.Warn("memory kv is private to this process; the user api will not see admin decisions")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	t, closeTab, err := app.Open(ctx, cfg, nodeID, l)
	if err != nil {
		l.Fatal("open tab", zap.Error(err))
	}
	defer closeTab()

	r := router.NewAdminEngine(l, t)
	addr := server.Addr(cfg.App.Admin.Host, cfg.App.Admin.Port)
	srv := server.BuildServer(addr, r, 5*time.Second, 10*time.Second, 60*time.Second)

	host4human := cfg.App.Admin.Host
	if host4human == "" || host4human == "0.0.0.0" {
		host4human = "127.0.0.1"
	}
	baseURL := "http://" + host4human + ":" + fmt.Sprint(cfg.App.Admin.Port)
	l.Info("admin api starting",
		zap.String("addr", addr),
		zap.String("health", baseURL+"/health"),
		zap.String("metrics", baseURL+"/metrics"),
		zap.String("admin_v1", baseURL+"/admin/v1"),
	)

	go func() {
		if err := server.StartHTTP(srv, l); err != nil {
			l.Error("admin api stopped", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	if err := server.Shutdown(srv, 10*time.Second); err != nil {
		l.Warn("shutdown", zap.Error(err))
	}
	l.Info("admin api stopped gracefully")
}
