package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/orderstore/internal/app"
	"github.com/vladislavdragonenkov/orderstore/internal/version"
)

// setupLogger настраивает формат и уровень логирования для сервиса.
func setupLogger(level log.Level) {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	log.SetLevel(level)
}

// loadConfig читает .env и окружение, предупреждения пишет в лог.
func loadConfig() app.Config {
	cfg, warnings := app.LoadConfig()
	setupLogger(cfg.LogrusLevel())
	for _, warning := range warnings {
		log.Warn(warning)
	}
	return cfg
}

// exitedCleanly сообщает, что Run завершился штатно по сигналу.
func exitedCleanly(err error) bool {
	return err == nil || errors.Is(err, context.Canceled)
}

func main() {
	cfg := loadConfig()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.WithFields(log.Fields{
		"version":        version.String(),
		"grpc_addr":      cfg.GRPCAddr,
		"http_addr":      cfg.HTTPAddr,
		"metrics_addr":   cfg.MetricsAddr,
		"storage_driver": cfg.StorageDriver,
	}).Info("запускаем order store")

	if err := app.Run(ctx, cfg); !exitedCleanly(err) {
		log.WithError(err).Fatal("приложение завершилось с ошибкой")
	}

	log.Info("order store остановлен")
}
