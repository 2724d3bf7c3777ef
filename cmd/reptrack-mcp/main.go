package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/mark3labs/mcp-go/server"

	"github.com/claude/reptrack/internal/config"
	"github.com/claude/reptrack/internal/mcp"
	"github.com/claude/reptrack/internal/storage"
	"github.com/claude/reptrack/internal/tracker"
)

// Version is set at build time via -ldflags.
var Version = "dev"

func main() {
	remoteURL := flag.String("url", "", "RepTrack server URL; queries go over its REST API")
	configPath := flag.String("config", "config.yaml", "config file for direct database access (ignored with -url)")
	member := flag.String("member", "", "default member for member-scoped tools")
	version := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *version {
		fmt.Println("reptrack-mcp", Version)
		return
	}

	// stdout carries the MCP protocol; logs go to stderr.
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	var ds mcp.DataSource
	if *remoteURL != "" {
		ds = mcp.NewHTTPClient(*remoteURL)
		log.Info("MCP using remote server", "url", *remoteURL)
	} else {
		cfg, err := config.LoadWithoutAuth(*configPath)
		if err != nil {
			log.Error("failed to load config", "error", err)
			os.Exit(1)
		}
		log = cfg.Log.NewLogger(os.Stderr)

		repo, err := openRepository(context.Background(), cfg)
		if err != nil {
			log.Error("failed to open database", "error", err)
			os.Exit(1)
		}
		defer repo.Close()
		ds = mcp.NewLocal(repo, tracker.NewDefaultRegistry(log))
		log.Info("MCP using local database", "driver", cfg.Database.Driver)
	}

	s := mcp.New(ds, Version, log)
	var opts []server.StdioOption
	if *member != "" {
		opts = append(opts, server.WithStdioContextFunc(func(ctx context.Context) context.Context {
			return mcp.WithMember(ctx, *member)
		}))
	}
	if err := server.ServeStdio(s, opts...); err != nil {
		log.Error("MCP server stopped", "error", err)
		os.Exit(1)
	}
}

func openRepository(ctx context.Context, cfg *config.Config) (storage.Repository, error) {
	if cfg.Database.Driver == config.DriverSQLite {
		return storage.OpenLite(cfg.Database.Path)
	}
	return storage.New(ctx, cfg.Database.DSN())
}
