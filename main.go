package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"curasure-chat/config"
	"curasure-chat/models"
	"curasure-chat/pkg/logger"
	"curasure-chat/routes"
	"curasure-chat/services"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	logger.Setup(cfg.Log.Level, cfg.Log.Format)
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	store, err := openStore(cfg.Relay)
	if err != nil {
		log.Fatalf("open store: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := services.NewWSManager(store, services.HubOptions{
		PingInterval: cfg.Relay.PingInterval.Duration(),
		PongTimeout:  cfg.Relay.PongTimeout.Duration(),
		AllowOrigins: cfg.Relay.AllowOrigins,
	})
	go hub.Run(ctx)

	// 注册路由
	r := routes.RegisterRoutes(routes.Deps{
		Store:        store,
		Hub:          hub,
		HistoryLimit: cfg.Relay.HistoryLimit,
		AllowOrigins: cfg.Relay.AllowOrigins,
	})
	srv := &http.Server{Addr: ":" + cfg.Relay.Port, Handler: r}

	// 启动服务
	go func() {
		log.WithField("port", cfg.Relay.Port).Info("relay listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server failed to start: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutting down")

	cancel()
	shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
	defer done()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("graceful shutdown failed")
	}
}

// openStore 配置了 DSN 时使用 MySQL，否则使用内存存储
func openStore(cfg config.RelayConfig) (services.MessageStore, error) {
	if cfg.DatabaseDSN == "" {
		log.Warn("DATABASE_DSN not set, messages are kept in memory")
		return services.NewMemoryStore(), nil
	}
	db, err := config.InitDB(cfg.DatabaseDSN)
	if err != nil {
		return nil, err
	}
	// 自动迁移
	if err := models.Migrate(db); err != nil {
		return nil, err
	}
	return services.NewGormStore(db), nil
}
