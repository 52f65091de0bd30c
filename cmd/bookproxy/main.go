// Package main is the entry point for the booking proxy.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/vyrodovalexey/bookproxy/internal/config"
	"github.com/vyrodovalexey/bookproxy/internal/observability"
	"github.com/vyrodovalexey/bookproxy/internal/proxy"
	"github.com/vyrodovalexey/bookproxy/internal/server"
	"github.com/vyrodovalexey/bookproxy/internal/session"
)

// Version information (set at build time).
var (
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"
)

// shutdownTimeout bounds graceful shutdown.
const shutdownTimeout = 15 * time.Second

// cliFlags holds command line flags.
type cliFlags struct {
	configPath  string
	logLevel    string
	logFormat   string
	showVersion bool
}

func main() {
	flags := parseFlags()

	if flags.showVersion {
		printVersion()
		return
	}

	logger := initLogger(flags)
	defer func() { _ = logger.Sync() }()

	cfg := loadAndValidateConfig(flags.configPath, logger)

	run(cfg, flags.configPath, logger)
}

// parseFlags parses command line flags.
func parseFlags() cliFlags {
	configPath := flag.String("config", getEnvOrDefault("BOOKPROXY_CONFIG_PATH", "configs/bookproxy.yaml"),
		"Path to configuration file")
	logLevel := flag.String("log-level", getEnvOrDefault("BOOKPROXY_LOG_LEVEL", "info"),
		"Log level (debug, info, warn, error)")
	logFormat := flag.String("log-format", getEnvOrDefault("BOOKPROXY_LOG_FORMAT", "json"),
		"Log format (json, console)")
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Parse()

	return cliFlags{
		configPath:  *configPath,
		logLevel:    *logLevel,
		logFormat:   *logFormat,
		showVersion: *showVersion,
	}
}

// printVersion prints version information.
func printVersion() {
	fmt.Printf("bookproxy version %s\n", version)
	fmt.Printf("  Build time: %s\n", buildTime)
	fmt.Printf("  Git commit: %s\n", gitCommit)
}

// initLogger initializes the logger from flags.
func initLogger(flags cliFlags) observability.Logger {
	logger, err := observability.NewLogger(observability.LogConfig{
		Level:  flags.logLevel,
		Format: flags.logFormat,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	return logger
}

// loadAndValidateConfig loads and validates the configuration.
func loadAndValidateConfig(configPath string, logger observability.Logger) *config.Config {
	logger.Info("starting bookproxy",
		observability.String("version", version),
		observability.String("config", configPath),
	)

	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Fatal("failed to load configuration", observability.Error(err))
	}

	if err := cfg.Validate(); err != nil {
		logger.Fatal("invalid configuration", observability.Error(err))
	}

	return cfg
}

// run wires the components and blocks until shutdown.
func run(cfg *config.Config, configPath string, logger observability.Logger) {
	var metrics *observability.Metrics
	if cfg.Observability.Metrics.Enabled {
		metrics = observability.NewMetrics(cfg.Observability.Metrics.Namespace)
	}

	tracer, err := observability.NewTracer(observability.TracerConfig{
		ServiceName:  "bookproxy",
		OTLPEndpoint: cfg.Observability.Tracing.OTLPEndpoint,
		SamplingRate: cfg.Observability.Tracing.SamplingRate,
		Enabled:      cfg.Observability.Tracing.Enabled,
	})
	if err != nil {
		logger.Fatal("failed to initialize tracing", observability.Error(err))
	}

	store, err := session.NewStore(&cfg.Store, logger)
	if err != nil {
		logger.Fatal("failed to initialize session store", observability.Error(err))
	}

	sessions := session.NewManager(store, cfg.SessionCache,
		session.WithManagerLogger(logger),
		session.WithManagerMetrics(metrics),
	)

	engine := proxy.NewEngine(cfg.Upstream, cfg.Proxy,
		proxy.WithEngineLogger(logger),
		proxy.WithEngineMetrics(metrics),
	)

	srv := server.New(cfg, sessions, engine,
		server.WithLogger(logger),
		server.WithMetrics(metrics),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	watcher := startConfigWatcher(configPath, engine, logger)

	startJanitor(ctx, cfg, store, logger)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("shutdown signal received", observability.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil {
			logger.Error("server failed", observability.Error(err))
		}
	}

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if watcher != nil {
		_ = watcher.Stop()
	}
	if err := srv.Stop(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", observability.Error(err))
	}
	if err := sessions.Close(); err != nil {
		logger.Error("session store close failed", observability.Error(err))
	}
	if err := tracer.Shutdown(shutdownCtx); err != nil {
		logger.Error("tracer shutdown failed", observability.Error(err))
	}

	logger.Info("bookproxy stopped")
}

// startConfigWatcher hot-reloads the settings that are safe to change
// at runtime: the https host suffixes. Listener and store changes need
// a restart.
func startConfigWatcher(configPath string, engine *proxy.Engine, logger observability.Logger) *config.Watcher {
	watcher, err := config.NewWatcher(configPath, func(cfg *config.Config) {
		engine.SetHTTPSHostSuffixes(cfg.Proxy.HTTPSHostSuffixes)
		logger.Info("configuration reloaded",
			observability.Int("https_host_suffixes", len(cfg.Proxy.HTTPSHostSuffixes)))
	}, config.WithWatcherLogger(logger))
	if err != nil {
		logger.Warn("config watcher unavailable", observability.Error(err))
		return nil
	}

	if err := watcher.Start(context.Background()); err != nil {
		logger.Warn("config watcher failed to start", observability.Error(err))
		return nil
	}

	return watcher
}

// sessionPurger is implemented by stores that support age-based
// deletion.
type sessionPurger interface {
	PurgeOlderThan(ctx context.Context, maxAge time.Duration) (int64, error)
}

// startJanitor runs the opt-in purge loop when the store supports it
// and the operator configured a retention age.
func startJanitor(ctx context.Context, cfg *config.Config, store session.Store, logger observability.Logger) {
	sqliteCfg := cfg.Store.SQLite
	if sqliteCfg == nil || sqliteCfg.PurgeAfter == 0 {
		return
	}

	purger, ok := store.(sessionPurger)
	if !ok {
		return
	}

	interval := sqliteCfg.PurgeInterval.Duration()
	if interval <= 0 {
		interval = time.Hour
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				removed, err := purger.PurgeOlderThan(ctx, sqliteCfg.PurgeAfter.Duration())
				if err != nil {
					logger.Error("session purge failed", observability.Error(err))
					continue
				}
				if removed > 0 {
					logger.Info("purged old sessions", observability.Int64("removed", removed))
				}
			case <-ctx.Done():
				return
			}
		}
	}()
}

// getEnvOrDefault returns the environment variable value or a default.
func getEnvOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
