package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
	gormlogger "gorm.io/gorm/logger"

	"github.com/onexay/contentvs/internal/authz"
	"github.com/onexay/contentvs/internal/config"
	"github.com/onexay/contentvs/internal/content"
	"github.com/onexay/contentvs/internal/logger"
	"github.com/onexay/contentvs/internal/models"
	"github.com/onexay/contentvs/internal/publication"
	"github.com/onexay/contentvs/internal/queue"
	"github.com/onexay/contentvs/internal/storage"
)

// OpenStore builds the commit store selected by the configuration, with the
// bolt archive behind it when an archive path is set.
func OpenStore(cfg *config.Config) (storage.Store, error) {
	var archive storage.Archive
	if cfg.Retention.ArchivePath != "" {
		arc, err := storage.NewBoltArchive(cfg.Retention.ArchivePath)
		if err != nil {
			return nil, err
		}
		archive = arc
	}

	options := storage.Options{
		Archive: archive,
		Retention: storage.RetentionDefaults{
			HotCommitLimit: cfg.Retention.HotCommitLimit,
			HotDuration:    cfg.Retention.HotDuration,
		},
	}

	switch cfg.Storage.Backend {
	case config.StorageBackendKeyDB:
		store, err := storage.NewKeyDBStore(cfg.Storage.KeyDB.ToStorageConfig(), options)
		if err != nil {
			if archive != nil {
				_ = archive.Close()
			}
			return nil, err
		}
		return store, nil
	default:
		return storage.NewMemoryStore(options), nil
	}
}

// App is a fully wired engine with the resources it owns.
type App struct {
	Service *Service
	Queue   *queue.Client
	closers []func() error
}

// Close releases every resource in reverse order of acquisition.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Build wires the engine from the configuration.
func Build(ctx context.Context, cfg *config.Config) (app *App, err error) {
	app = &App{}
	defer func() {
		if err != nil {
			_ = app.Close()
			app = nil
		}
	}()

	logLevel := gormlogger.Warn
	if cfg.Server.Mode == "debug" {
		logLevel = gormlogger.Info
	}
	db, err := models.OpenDB(cfg.Database.Driver, cfg.Database.DSN, cfg.Database.Pool.ToModelsPool(), logLevel)
	if err != nil {
		return nil, err
	}
	app.closers = append(app.closers, func() error {
		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		return sqlDB.Close()
	})
	if err := models.AutoMigrate(db); err != nil {
		return nil, err
	}

	store, err := OpenStore(cfg)
	if err != nil {
		return nil, err
	}
	app.closers = append(app.closers, store.Close)

	az, err := authz.NewService(cfg.Authz.Policies)
	if err != nil {
		return nil, err
	}

	var mirror publication.Mirror
	if cfg.Mirror.Enabled {
		m, err := publication.NewS3Mirror(ctx, publication.S3Options{
			Endpoint:  cfg.Mirror.Endpoint,
			Region:    cfg.Mirror.Region,
			Bucket:    cfg.Mirror.Bucket,
			AccessKey: cfg.Mirror.AccessKey,
			SecretKey: cfg.Mirror.SecretKey,
			Prefix:    cfg.Mirror.Prefix,
		})
		if err != nil {
			return nil, err
		}
		mirror = m
	}
	registry := publication.DefaultRegistry(cfg.Content.PDFCommand)
	pipeline := publication.NewPipeline(cfg.Content.PublicRoot, registry, mirror)

	var guard publication.Guard = publication.NewMemoryGuard()
	if cfg.Redis.Enabled {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("ping redis: %w", err)
		}
		app.closers = append(app.closers, client.Close)
		prefix := strings.TrimSuffix(cfg.Redis.Prefix, ":") + ":"
		guard = publication.NewRedisGuard(client, prefix, cfg.Content.PublishLockTTL)
	}

	app.Queue = queue.NewClient(&cfg.Queue)
	app.closers = append(app.closers, app.Queue.Close)

	svc, err := New(Deps{
		DB:       db,
		Store:    store,
		Authz:    az,
		Pipeline: pipeline,
		Guard:    guard,
		Queue:    app.Queue,
		Content: content.Options{
			DefaultTitle:  cfg.Content.DefaultTitle,
			MaxSlugLength: cfg.Content.MaxSlugLength,
		},
		ExtraPolicy:  cfg.Content.ExtraContentGenerationPolicy,
		ExtraFormats: cfg.Content.ExtraFormats,
	})
	if err != nil {
		return nil, err
	}
	app.Service = svc
	logger.Infow("engine_ready",
		"storage", cfg.Storage.Backend,
		"formats", registry.Formats(),
		"extra_policy", cfg.Content.ExtraContentGenerationPolicy,
		"queue", app.Queue.Enabled(),
		"mirror", mirror != nil,
	)
	return app, nil
}
