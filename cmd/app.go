package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"

	"videotube/api"
	"videotube/config"
	"videotube/database"
	"videotube/manager"
	"videotube/router"
	"videotube/service"
	"videotube/storage"
	"videotube/worker"
)

// newRunner 按配置选择隔离方式
func newRunner(cfg *config.AppConfig, provider storage.Provider, log zerolog.Logger) worker.Runner {
	if cfg.Upload.Isolation == "process" {
		return &worker.Subprocess{Binary: cfg.Upload.WorkerBinary, Deleter: provider, Logger: log}
	}
	return &worker.InProcess{Provider: provider, Logger: log}
}

// buildEngine wires config, storage, the upload pipeline and HTTP handlers.
func buildEngine(ctx context.Context, cfg *config.AppConfig, log zerolog.Logger) (*gin.Engine, func(), error) {
	db, err := database.Open(cfg.Database)
	if err != nil {
		return nil, nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, nil, err
	}
	closeDB := func() { _ = sqlDB.Close() }

	if err := os.MkdirAll(cfg.Upload.TempDir, 0o755); err != nil {
		closeDB()
		return nil, nil, fmt.Errorf("failed to create temp dir %s: %w", cfg.Upload.TempDir, err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	observer, err := storage.NewPrometheusObserver("", reg)
	if err != nil {
		closeDB()
		return nil, nil, err
	}
	storageManager, err := manager.NewStorageManager(ctx, cfg.Storage, observer, log)
	if err != nil {
		closeDB()
		return nil, nil, fmt.Errorf("failed to initialize storage manager: %w", err)
	}

	dispatcher, err := worker.NewDispatcher(newRunner(cfg, storageManager, log), cfg.Upload.Timeout, log, reg)
	if err != nil {
		closeDB()
		return nil, nil, err
	}

	validator := service.NewValidator(cfg.Upload)
	orchestrator, err := service.NewOrchestrator(validator, dispatcher, storageManager, log, reg)
	if err != nil {
		closeDB()
		return nil, nil, err
	}
	tokens := service.NewTokenIssuer(cfg.JWT)

	users := service.NewUserService(db, orchestrator, storageManager, validator, tokens, log)
	videos := service.NewVideoService(db, orchestrator, storageManager, validator, log)

	engine := router.SetupRouter(cfg, router.Deps{
		Handlers: api.NewAPIHandlers(users, videos, cfg.Upload.TempDir, log),
		Tokens:   tokens,
		Gatherer: reg,
		Log:      log,
	})
	return engine, closeDB, nil
}
