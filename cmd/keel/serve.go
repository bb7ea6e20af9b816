package main

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/keel-api/keel/internal/atomic"
	"github.com/keel-api/keel/internal/cache"
	"github.com/keel-api/keel/internal/config"
	"github.com/keel-api/keel/internal/datalayer"
	"github.com/keel-api/keel/internal/filter"
	"github.com/keel-api/keel/internal/schema"
	"github.com/keel-api/keel/internal/view"
	"github.com/keel-api/keel/internal/web/router"
	"github.com/keel-api/keel/internal/web/server"
)

var serveConfigDir string

func init() {
	serveCmd.Flags().StringVar(&serveConfigDir, "config-dir", ".", "Directory containing keel.yaml")
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the API server",
	Long:  "Load the resource schemas, connect to the database, and serve the JSON:API endpoints",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadFrom(serveConfigDir)
		if err != nil {
			return err
		}

		logger, err := buildLogger(cfg.Logging)
		if err != nil {
			return fmt.Errorf("failed to build logger: %w", err)
		}
		defer logger.Sync()

		registry, err := schema.LoadFile(cfg.API.ResourceFile)
		if err != nil {
			return fmt.Errorf("failed to load resource schemas: %w", err)
		}
		logger.Info("resource schemas loaded",
			zap.Int("resources", registry.Count()),
			zap.String("file", cfg.API.ResourceFile))

		if cfg.Database.URL == "" {
			return fmt.Errorf("database.url is required (set KEEL_DATABASE_URL or database.url in keel.yaml)")
		}
		db, err := sql.Open("pgx", cfg.Database.URL)
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
		db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
		db.SetConnMaxLifetime(cfg.Database.ConnMaxLifetime)

		if err := db.PingContext(cmd.Context()); err != nil {
			return fmt.Errorf("failed to reach database: %w", err)
		}

		dl := datalayer.NewSQLDataLayer(db, registry, logger)

		var counts cache.CountCache
		if cfg.Cache.Enabled {
			counts, err = buildCountCache(cfg.Cache)
			if err != nil {
				return err
			}
			dl.UseCountCache(counts)
			logger.Info("count cache enabled", zap.String("backend", cacheBackend(cfg.Cache)))
		}

		views := view.NewViews(registry, dl, filter.NewCompiler(registry), cfg.Limits(), view.Options{
			Counts:          counts,
			Logger:          logger,
			CatchExceptions: cfg.API.CatchExceptions,
		})

		coordinator, err := atomic.NewCoordinator(views, logger)
		if err != nil {
			return fmt.Errorf("failed to set up atomic operations: %w", err)
		}

		handler := router.Build(views, coordinator, router.Options{
			AtomicPath: cfg.API.AtomicPath,
			Logger:     logger,
		})

		srv, err := server.New(&server.Config{
			Address:           cfg.Server.Address(),
			Handler:           handler,
			ReadTimeout:       cfg.Server.ReadTimeout,
			WriteTimeout:      cfg.Server.WriteTimeout,
			IdleTimeout:       cfg.Server.IdleTimeout,
			ReadHeaderTimeout: cfg.Server.ReadTimeout,
			MaxHeaderBytes:    1 << 20,
			Logger:            logger,
		})
		if err != nil {
			return err
		}

		return srv.Run(cmd.Context(), func(ctx context.Context) error {
			return db.Close()
		})
	},
}

func buildCountCache(cfg config.CacheConfig) (cache.CountCache, error) {
	if cfg.RedisAddr == "" {
		return cache.NewMemoryCountCache(cfg.TTL), nil
	}
	counts, err := cache.NewRedisCountCache(cache.RedisConfig{
		Addr:     cfg.RedisAddr,
		Password: cfg.Password,
		DB:       cfg.DB,
		TTL:      cfg.TTL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return counts, nil
}

func cacheBackend(cfg config.CacheConfig) string {
	if cfg.RedisAddr == "" {
		return "memory"
	}
	return "redis"
}

func buildLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	var zapCfg zap.Config
	if cfg.Development {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)

	return zapCfg.Build()
}
