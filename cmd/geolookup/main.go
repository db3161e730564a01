package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hazyhaar/geolookup/pkg/api"
	"github.com/hazyhaar/geolookup/pkg/chassis"
	"github.com/hazyhaar/geolookup/pkg/sources"
	"github.com/mark3labs/mcp-go/server"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "serve":
		cmdServe(os.Args[2:])
	case "mcp":
		cmdMCP(os.Args[2:])
	case "index":
		cmdIndex(os.Args[2:])
	case "resolve":
		cmdResolve(os.Args[2:])
	case "geographies":
		cmdGeographies(os.Args[2:])
	case "sources":
		cmdSources(os.Args[2:])
	case "fetch":
		cmdFetch(os.Args[2:])
	case "nomis-url":
		cmdNomisURL(os.Args[2:])
	case "opengeo":
		cmdOpenGeo(os.Args[2:])
	default:
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, `Usage: geolookup <command> [flags]

Commands:
  serve        Start the HTTP server
  mcp          Serve the MCP tools over stdio (or call a server over QUIC)
  index        Rebuild the lookup index cache
  resolve      Find join routes between two code columns (and execute them)
  geographies  List code columns and geography prefixes
  sources      List, check or update lookup download sources
  fetch        Download lookup tables from the registered sources
  nomis-url    Build (and download) a Nomis dataset query
  opengeo      Browse and download Open Geography Portal feature services

Every command accepts -config (default config.yaml).
`)
}

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
}

func cmdServe(args []string) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	cfgPath := fs.String("config", "config.yaml", "path to config file")
	fs.Parse(args)

	logger := newLogger()
	cfg := loadConfig(*cfgPath, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	lookup, err := cfg.openLookup(ctx, logger)
	if err != nil {
		logger.Error("failed to load lookup index", "error", err)
		os.Exit(1)
	}
	svc := api.NewService(lookup, cfg.Routes, logger)

	// SIGHUP: rescan the lookup directory and swap the index.
	// SIGINT/SIGTERM: graceful shutdown.
	sighup := make(chan os.Signal, 1)
	signal.Notify(sighup, syscall.SIGHUP)
	go func() {
		for range sighup {
			logger.Info("SIGHUP received, rebuilding lookup index")
			if err := cfg.invalidate(); err != nil {
				logger.Error("reload failed", "error", err)
				continue
			}
			lookup, err := cfg.openLookup(ctx, logger)
			if err != nil {
				logger.Error("reload failed", "error", err)
				continue
			}
			svc.Swap(lookup)
			logger.Info("lookup index reloaded", "tables", len(lookup.Catalog().Tables()))
		}
	}()

	// Source availability checks are optional: they need the sources DB.
	if cfg.CheckInterval > 0 {
		sdb, err := cfg.openSources()
		if err != nil {
			logger.Warn("source checks disabled", "error", err)
		} else {
			defer sdb.Close()
			go sources.NewChecker(sdb, logger, cfg.CheckInterval).Start(ctx)
		}
	}

	if cfg.TLS.Enabled {
		serveTLS(ctx, cfg, svc, logger)
		return
	}

	srv := &http.Server{
		Addr:    cfg.Addr,
		Handler: api.NewRouter(svc),
	}
	go func() {
		logger.Info("geolookup listening", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	srv.Shutdown(context.Background())
}

// serveTLS runs the API over HTTPS and HTTP/3 and the MCP tools over QUIC,
// all on cfg.Addr.
func serveTLS(ctx context.Context, cfg config, svc *api.Service, logger *slog.Logger) {
	mcpSrv := server.NewMCPServer("geolookup", version, server.WithToolCapabilities(true))
	api.RegisterMCPTools(mcpSrv, svc)

	srv, err := chassis.New(chassis.Config{
		Addr:      cfg.Addr,
		CertFile:  cfg.TLS.CertFile,
		KeyFile:   cfg.TLS.KeyFile,
		Handler:   api.NewRouter(svc),
		MCPServer: mcpSrv,
		Logger:    logger,
	})
	if err != nil {
		logger.Error("chassis", "error", err)
		os.Exit(1)
	}
	if err := srv.Start(ctx); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	srv.Stop(shutdownCtx)
}
