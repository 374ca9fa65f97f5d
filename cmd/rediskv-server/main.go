package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/yndnr/rediskv-go/internal/core/keyspace"
	"github.com/yndnr/rediskv-go/internal/infra/buildinfo"
	"github.com/yndnr/rediskv-go/internal/infra/confloader"
	"github.com/yndnr/rediskv-go/internal/infra/shutdown"
	"github.com/yndnr/rediskv-go/internal/server/config"
	"github.com/yndnr/rediskv-go/internal/server/redisserver"
	"github.com/yndnr/rediskv-go/internal/storage/rdb"
	"github.com/yndnr/rediskv-go/internal/telemetry/logger"
	"github.com/yndnr/rediskv-go/internal/telemetry/metric"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configFile  = flag.String("config", "", "Path to configuration file")
		addr        = flag.String("addr", "", "TCP listen address (overrides config)")
		dir         = flag.String("dir", "", "Snapshot directory (overrides config)")
		dbFilename  = flag.String("dbfilename", "", "Snapshot filename (overrides config)")
		showVersion = flag.Bool("version", false, "Show version information")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("rediskv-server %s\n", buildinfo.String())
		return nil
	}

	cfg, err := loadConfig(*configFile, *addr, *dir, *dbFilename)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, err := logger.New(logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: os.Stdout,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	info := buildinfo.Get()
	log.Info("starting rediskv-server",
		"version", info.Version,
		"commit", info.Commit,
		"config", *configFile)

	store := keyspace.New()

	// Load the snapshot before accepting connections. A missing file is
	// an empty keyspace; a corrupt one is fatal.
	records, err := rdb.LoadFile(cfg.Storage.Dir, cfg.Storage.DBFilename)
	if err != nil {
		return fmt.Errorf("load snapshot: %w", err)
	}
	store.LoadBulk(records)
	log.Info("snapshot loaded",
		"dir", cfg.Storage.Dir,
		"dbfilename", cfg.Storage.DBFilename,
		"keys", store.Len())

	metrics := metric.New(
		metric.WithKeyspaceSize(func() float64 { return float64(store.Len()) }),
		metric.WithExpiredTotal(func() float64 { return float64(store.ExpiredTotal()) }),
	)

	handler := redisserver.NewCommandHandler(store, redisserver.StoreConfig{
		Dir:        cfg.Storage.Dir,
		DBFilename: cfg.Storage.DBFilename,
	}, log, metrics, cfg.Server.RateLimit)

	srv := redisserver.New(&redisserver.Config{
		Addr:         cfg.Server.Addr,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}, handler, log, metrics)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := srv.Start(ctx); err != nil {
		return fmt.Errorf("start server: %w", err)
	}

	if cfg.Storage.SweepInterval > 0 {
		store.StartSweeper(ctx, cfg.Storage.SweepInterval)
		log.Info("expiry sweeper started", "interval", cfg.Storage.SweepInterval)
	}

	shutdownHandler := shutdown.NewHandler(30 * time.Second)

	// Shutdown hooks run in reverse order of registration.
	shutdownHandler.OnShutdown(func(ctx context.Context) error {
		log.Info("shutting down resp server")
		return srv.Shutdown(ctx)
	})

	if cfg.Metrics.Enabled {
		metricsServer := &http.Server{
			Addr:    cfg.Metrics.Addr,
			Handler: metrics.Handler(),
		}
		go func() {
			log.Info("metrics endpoint listening", "addr", cfg.Metrics.Addr)
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("metrics server error", "error", err)
			}
		}()
		shutdownHandler.OnShutdown(func(ctx context.Context) error {
			log.Info("shutting down metrics endpoint")
			return metricsServer.Shutdown(ctx)
		})
	}

	if *configFile != "" {
		watcher, err := watchConfig(*configFile, log)
		if err != nil {
			log.Warn("config watcher unavailable", "error", err)
		} else {
			shutdownHandler.OnShutdown(func(context.Context) error {
				return watcher.Stop()
			})
		}
	}

	log.Info("server started, press Ctrl+C to stop")
	if err := shutdownHandler.Wait(); err != nil {
		log.Error("shutdown error", "error", err)
		return err
	}

	log.Info("server stopped gracefully")
	return nil
}

// loadConfig loads configuration from file and environment, then
// applies any command line overrides.
func loadConfig(configFile, addr, dir, dbFilename string) (*config.ServerConfig, error) {
	cfg := config.Default()

	opts := []confloader.Option{}
	if configFile != "" {
		opts = append(opts, confloader.WithConfigFile(configFile))
	}
	loader := confloader.NewLoader(opts...)

	if err := loader.Load(cfg); err != nil {
		return nil, err
	}

	// Flags outrank file and environment.
	overrides := map[string]any{}
	if addr != "" {
		overrides["server.addr"] = addr
	}
	if dir != "" {
		overrides["storage.dir"] = dir
	}
	if dbFilename != "" {
		overrides["storage.dbfilename"] = dbFilename
	}
	if len(overrides) > 0 {
		if err := loader.LoadMap(overrides); err != nil {
			return nil, err
		}
		if err := loader.Unmarshal(cfg); err != nil {
			return nil, err
		}
	}

	if err := config.Verify(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// watchConfig reloads the log level when the config file changes. Other
// settings require a restart.
func watchConfig(configFile string, log *slog.Logger) (*confloader.Watcher, error) {
	watcher, err := confloader.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := watcher.Watch(configFile); err != nil {
		return nil, err
	}

	watcher.OnChange(func(path string) {
		loader := confloader.NewLoader(confloader.WithConfigFile(path))
		cfg := config.Default()
		if err := loader.Load(cfg); err != nil {
			log.Warn("config reload failed", "error", err)
			return
		}
		if err := logger.SetLevel(cfg.Log.Level); err != nil {
			log.Warn("config reload: bad log level", "level", cfg.Log.Level, "error", err)
			return
		}
		log.Info("log level updated", "level", cfg.Log.Level)
	})
	watcher.StartAsync()
	return watcher, nil
}
