package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/claude/fittrack/internal/autosync"
	"github.com/claude/fittrack/internal/config"
	"github.com/claude/fittrack/internal/connectivity"
	"github.com/claude/fittrack/internal/localstore"
	"github.com/claude/fittrack/internal/logging"
	fitmcp "github.com/claude/fittrack/internal/mcp"
	"github.com/claude/fittrack/internal/metrics"
	"github.com/claude/fittrack/internal/notify"
	"github.com/claude/fittrack/internal/remote"
	"github.com/claude/fittrack/internal/scheduler"
	"github.com/claude/fittrack/internal/session"
	"github.com/claude/fittrack/internal/workout"
	"github.com/go-chi/chi/v5"
	"github.com/mark3labs/mcp-go/server"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Version is set at build time via -ldflags.
var Version = "dev"

func main() {
	configPath := flag.String("config", "", "path to client config file (defaults plus FITTRACK_ env vars when empty)")
	envFile := flag.String("env-file", ".env", "optional .env file with FITTRACK_ variables")
	httpAddr := flag.String("http", "", "serve MCP over streamable HTTP on this address instead of stdio")
	version := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *version {
		fmt.Println("fittrack", Version)
		return
	}

	if err := run(*configPath, *envFile, *httpAddr); err != nil {
		fmt.Fprintf(os.Stderr, "fittrack: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath, envFile, httpAddr string) error {
	if err := config.LoadEnvFile(envFile); err != nil {
		return err
	}
	cfg, err := config.LoadClient(configPath)
	if err != nil {
		return err
	}

	// stdout carries the MCP stdio protocol, so logs go to stderr.
	log, logCloser := logging.New(cfg.Log, os.Stderr)
	defer logCloser.Close()
	log.Info("FitTrack client starting", "version", Version, "store", cfg.Store.Dir, "remote", cfg.Remote.URL)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := localstore.Open(cfg.Store.Dir)
	if err != nil {
		return err
	}
	defer store.Close()

	reg := prometheus.NewRegistry()
	opts := workout.Options{
		Latency: cfg.Sync.Latency(),
		Metrics: metrics.NewSync(reg),
	}

	var conn connectivity.Provider
	switch {
	case cfg.Remote.URL == "":
		log.Info("no remote configured, running on local mock data")
		conn = connectivity.NewManual(!cfg.Sync.Offline)
	case cfg.Sync.Offline:
		log.Info("offline mode forced by config")
		conn = connectivity.NewManual(false)
		opts.Remote = remote.NewWorkoutAdapter(remote.NewHTTPClient(cfg.Remote.URL, cfg.Remote.APIKey, cfg.Remote.Timeout()))
	default:
		probe := connectivity.NewProbe(cfg.Remote.URL, cfg.Sync.ProbeInterval(), log)
		go probe.Run(ctx)
		conn = probe
		opts.Remote = remote.NewWorkoutAdapter(remote.NewHTTPClient(cfg.Remote.URL, cfg.Remote.APIKey, cfg.Remote.Timeout()))
	}
	opts.Connectivity = conn

	svc, err := workout.New(store, opts, log)
	if err != nil {
		return err
	}

	notes := notify.NewRecorder(notify.NewLog(log))
	ctrl := session.New(svc, scheduler.NewTicker(), notes, log)
	defer ctrl.Close()

	runner := autosync.New(svc, conn, cfg.Sync.Schedule, notes, log)
	if err := runner.Start(ctx); err != nil {
		return err
	}
	defer runner.Stop()

	mcpSrv := fitmcp.New(fitmcp.Deps{Workouts: svc, Session: ctrl, Notes: notes}, Version, log)

	if httpAddr == "" {
		log.Info("serving MCP over stdio")
		err := server.NewStdioServer(mcpSrv).Listen(ctx, os.Stdin, os.Stdout)
		if err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("stdio server: %w", err)
		}
		return nil
	}

	router := chi.NewRouter()
	router.Handle("/mcp", server.NewStreamableHTTPServer(mcpSrv))
	router.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	httpSrv := &http.Server{Addr: httpAddr, Handler: router, ReadHeaderTimeout: 10 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		log.Info("serving MCP over HTTP", "addr", httpAddr)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	case <-ctx.Done():
		log.Info("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown error", "error", err)
	}
	return nil
}
