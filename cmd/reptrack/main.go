package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"tailscale.com/tsnet"

	"github.com/claude/reptrack/internal/config"
	"github.com/claude/reptrack/internal/mcp"
	"github.com/claude/reptrack/internal/pose"
	"github.com/claude/reptrack/internal/pose/yolopose"
	"github.com/claude/reptrack/internal/server"
	"github.com/claude/reptrack/internal/session"
	"github.com/claude/reptrack/internal/storage"
	"github.com/claude/reptrack/internal/tracker"
	"github.com/claude/reptrack/internal/worker"
)

// Version is set at build time via -ldflags.
var Version = "dev"

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file (empty: environment only)")
	migrateOnly := flag.Bool("migrate-only", false, "run migrations and exit")
	flag.Parse()

	// Load config
	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	log := cfg.Log.NewLogger(os.Stdout)
	log.Info("RepTrack starting", "version", Version, "driver", cfg.Database.Driver)

	ctx := context.Background()
	repo, err := openRepository(ctx, cfg, log)
	if err != nil {
		log.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer repo.Close()

	if *migrateOnly {
		log.Info("migrate-only: exiting")
		return
	}

	// Tracking engine
	registry := tracker.NewDefaultRegistry(log)
	var factory pose.Factory
	if cfg.Pose.Enabled {
		factory = yolopose.Factory(yolopose.Config{
			ModelPath:   cfg.Pose.ModelPath,
			Confidence:  cfg.Pose.Confidence,
			InputWidth:  cfg.Pose.InputWidth,
			InputHeight: cfg.Pose.InputHeight,
		})
		log.Info("pose extraction enabled", "model", cfg.Pose.ModelPath)
	} else {
		log.Warn("pose extraction disabled; frames will report no angles")
	}
	finalizer := session.NewFinalizer(repo, repo, log)
	finalizer.SetTimeout(cfg.Server.FinalizeTimeout)
	pipeline := session.NewPipeline(registry, factory, finalizer, cfg.Server.IdleTimeout, log)

	srv := server.New(repo, registry, pipeline, cfg.Auth.APIKey, log)

	// MCP over streamable HTTP, scoped to the caller's tailnet identity
	mcpServer := mcp.New(mcp.NewLocal(repo, registry), Version, log)
	srv.SetMCP(mcp.NewHTTPHandler(mcpServer, func(r *http.Request) string {
		if info, ok := server.IdentityFromContext(r.Context()); ok {
			return info.Login
		}
		return ""
	}))

	workerCtx, stopWorker := context.WithCancel(ctx)
	defer stopWorker()
	if cfg.Events.SummaryWorker {
		w := worker.NewSummary(repo, repo, log)
		go func() {
			if err := w.Run(workerCtx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("summary worker stopped", "error", err)
			}
		}()
		log.Info("summary worker started")
	}

	// Start server: tsnet or plain HTTP
	var listener net.Listener
	var tsServer *tsnet.Server

	if cfg.Tailscale.Enabled {
		tsServer = &tsnet.Server{
			Hostname: cfg.Tailscale.Hostname,
			Dir:      cfg.Tailscale.StateDir,
		}
		if err := tsServer.Start(); err != nil {
			log.Error("tsnet start failed", "error", err)
			os.Exit(1)
		}
		defer tsServer.Close()

		lc, err := tsServer.LocalClient()
		if err != nil {
			log.Error("tsnet local client failed", "error", err)
			os.Exit(1)
		}
		srv.SetTailscale(lc)

		listener, err = tsServer.Listen("tcp", ":80")
		if err != nil {
			log.Error("tsnet listen failed", "error", err)
			os.Exit(1)
		}
		log.Info("tsnet server starting", "hostname", cfg.Tailscale.Hostname)
	} else {
		addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
		listener, err = net.Listen("tcp", addr)
		if err != nil {
			log.Error("listen failed", "addr", addr, "error", err)
			os.Exit(1)
		}
		log.Info("server starting", "addr", addr, "mode", "dev (no tailscale)")
	}

	httpSrv := &http.Server{Handler: srv}

	go func() {
		if err := httpSrv.Serve(listener); err != nil && err != http.ErrServerClosed {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	log.Info("shutting down", "signal", sig)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown error", "error", err)
	}
	// Hijacked stream connections are not tracked by Shutdown.
	if err := srv.Drain(shutdownCtx); err != nil {
		log.Error("drain error", "error", err)
	}
	stopWorker()
	log.Info("server stopped")
}

// openRepository connects the configured backend. Postgres migrations run
// before the pool is opened; the SQLite schema is applied on open.
func openRepository(ctx context.Context, cfg *config.Config, log *slog.Logger) (storage.Repository, error) {
	switch cfg.Database.Driver {
	case config.DriverSQLite:
		db, err := storage.OpenLite(cfg.Database.Path)
		if err != nil {
			return nil, err
		}
		log.Info("sqlite database opened", "path", cfg.Database.Path)
		return db, nil
	default:
		dsn := cfg.Database.DSN()
		if err := storage.RunMigrations(dsn, "migrations"); err != nil {
			return nil, fmt.Errorf("migration failed: %w", err)
		}
		log.Info("migrations applied")

		db, err := storage.New(ctx, dsn)
		if err != nil {
			return nil, err
		}
		db.EventChannel = cfg.Events.Channel
		log.Info("database connected")
		return db, nil
	}
}
