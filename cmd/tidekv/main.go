// Command tidekv runs a sharded, Redis-protocol-compatible key-value
// server whose keys may carry a ttl, expired lazily on read and
// eagerly by a background index expiration engine.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"tidekv/internal/config"
	"tidekv/internal/dispatch"
	"tidekv/internal/metrics"
	"tidekv/internal/migrate"
	"tidekv/internal/replication"
	"tidekv/internal/segment"
	"tidekv/internal/server"
	"tidekv/internal/session"
	"tidekv/internal/ttlindex"
)

func main() {
	var homeDir string
	flag.StringVar(&homeDir, "home", "", "home directory for configuration, data, and certificates (required)")
	genConfig := flag.Bool("generate-config", false, "generate development TLS certificates under <home>/certs, then exit (no configuration file is written)")
	flag.Parse()

	if homeDir == "" {
		fmt.Fprintln(os.Stderr, "Error: -home argument is required")
		flag.Usage()
		os.Exit(1)
	}

	configPath := filepath.Join(homeDir, "config.yaml")

	if *genConfig {
		if err := os.MkdirAll(homeDir, 0o755); err != nil {
			fmt.Fprintf(os.Stderr, "error creating home directory: %v\n", err)
			os.Exit(1)
		}
		if err := config.GenerateDevCerts(filepath.Join(homeDir, "certs")); err != nil {
			fmt.Fprintf(os.Stderr, "error generating certs: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("certificates generated in %s\n", filepath.Join(homeDir, "certs"))
		return
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error loading config: %v\n", err)
		os.Exit(1)
	}

	cfg.TLSCertFile = config.ResolvePath(homeDir, cfg.TLSCertFile)
	cfg.TLSKeyFile = config.ResolvePath(homeDir, cfg.TLSKeyFile)
	cfg.TLSCAFile = config.ResolvePath(homeDir, cfg.TLSCAFile)

	lvl := slog.LevelInfo
	if cfg.Debug {
		lvl = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))

	config.RequireTLS(cfg, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dataDir := config.ResolvePath(homeDir, cfg.DataDir)
	segments, err := segment.Open(dataDir, cfg.ShardCount)
	if err != nil {
		logger.Error("failed to open shard storage", "err", err)
		os.Exit(1)
	}
	defer segments.Close()

	stores := make(map[ttlindex.ShardID]replication.StoreModeSetter, cfg.ShardCount)
	for i := 0; i < cfg.ShardCount; i++ {
		eng, err := segments.Engine(ttlindex.ShardID(i))
		if err != nil {
			logger.Error("failed to resolve shard engine", "shard", i, "err", err)
			os.Exit(1)
		}
		stores[ttlindex.ShardID(i)] = eng
	}
	repl, err := replication.Open(filepath.Join(dataDir, "roles.db"), stores)
	if err != nil {
		logger.Error("failed to open replication role store", "err", err)
		os.Exit(1)
	}
	defer repl.Close()

	var migrateMgr ttlindex.MigrateManager
	if cfg.ClusterEnabled && len(cfg.ZKServers) > 0 {
		zkMgr, err := migrate.DialZK(cfg.ZKServers, "/tidekv")
		if err != nil {
			logger.Error("failed to connect to zookeeper", "err", err)
			os.Exit(1)
		}
		defer zkMgr.Close()
		migrateMgr = zkMgr
	} else {
		migrateMgr = migrate.NewLocal()
	}

	disp := dispatch.New(segments)

	params := ttlindex.Params{
		ScanBatch:      cfg.ScanCntIndexMgr,
		ScanPoolSize:   cfg.ScanJobCntIndexMgr,
		DelBatch:       cfg.DelCntIndexMgr,
		DelPoolSize:    cfg.DelJobCntIndexMgr,
		PauseTime:      cfg.PauseTimeIndexMgr(),
		ClusterEnabled: cfg.ClusterEnabled,
	}
	engine := ttlindex.New(params, ttlindex.Deps{
		Segments:   segments,
		Migrate:    migrateMgr,
		Dispatcher: disp,
		NewSession: func() ttlindex.Session { return session.New() },
		Logger:     logger,
	})
	engine.Startup()
	defer engine.Stop()

	metrics.StartServer(cfg.MetricsAddr, engine, logger)
	server.StartAdmin(cfg.AdminAddr, engine, logger)

	srv := server.New(cfg.Port, disp, engine, logger, cfg.MaxConns, cfg.TLSCertFile, cfg.TLSKeyFile, cfg.TLSCAFile)
	go func() {
		if err := srv.ListenAndServe(); err != nil {
			logger.Error("resp server stopped", "err", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	srv.Close()
}
