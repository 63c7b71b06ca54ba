package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/onexay/contentvs/internal/config"
	"github.com/onexay/contentvs/internal/httpserver"
	"github.com/onexay/contentvs/internal/logger"
	"github.com/onexay/contentvs/internal/service"
	"github.com/onexay/contentvs/internal/worker"
)

func main() {
	configPath := flag.String("config", "", "Path to the configuration file")
	role := flag.String("role", "", "Override server.role: all, api or worker")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Errorw("config_load_failed", "error", err)
		os.Exit(1)
	}
	if *role != "" {
		cfg.Server.Role = *role
	}
	logger.Init(cfg.Log.Mode, cfg.Log.ToLoggerOptions())
	defer func() { _ = logger.Z().Sync() }()

	if err := run(cfg); err != nil {
		logger.Errorw("server_terminated", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := prepareDirs(cfg); err != nil {
		return err
	}
	app, err := service.Build(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := app.Close(); err != nil {
			logger.Warnw("engine_close_failed", "error", err)
		}
	}()

	role := cfg.Server.Role
	if role == "all" || role == "worker" {
		if cfg.Queue.Enabled {
			w, err := worker.NewService(&cfg.Queue, worker.NewConsumer(app.Service))
			if err != nil {
				return err
			}
			if err := w.Start(ctx); err != nil {
				return err
			}
			defer func() { _ = w.Stop(context.Background()) }()
		} else if role == "worker" {
			logger.Warnw("worker_idle", "reason", "queue disabled")
		}
	}

	logger.Infow("app_start", "addr", cfg.Server.Addr, "role", role)
	if role == "worker" {
		<-ctx.Done()
		return nil
	}
	srv := httpserver.NewServer(app.Service, httpserver.Options{
		Addr:           cfg.Server.Addr,
		Mode:           cfg.Server.Mode,
		ImportMaxBytes: cfg.Content.ImportMaxBytes,
	})
	return srv.Run(ctx)
}

// prepareDirs creates the local directories the configuration points at.
func prepareDirs(cfg *config.Config) error {
	dirs := []string{cfg.Content.PublicRoot}
	if cfg.Retention.ArchivePath != "" {
		dirs = append(dirs, filepath.Dir(cfg.Retention.ArchivePath))
	}
	driver := strings.ToLower(cfg.Database.Driver)
	if (driver == "" || driver == "sqlite") && !strings.HasPrefix(cfg.Database.DSN, "file:") {
		dirs = append(dirs, filepath.Dir(cfg.Database.DSN))
	}
	for _, dir := range dirs {
		if dir == "" || dir == "." {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return nil
}
