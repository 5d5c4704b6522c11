package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/argoview/floatchat/internal/backend"
	"github.com/argoview/floatchat/internal/infrastructure/config"
	"github.com/argoview/floatchat/internal/infrastructure/monitoring"
	"github.com/argoview/floatchat/internal/logging"
	"github.com/argoview/floatchat/internal/monitor"
	"github.com/argoview/floatchat/internal/session"
	"github.com/argoview/floatchat/internal/shell"
	"github.com/argoview/floatchat/internal/store"
)

func main() {
	backendURL := flag.String("backend", "", "Backend base URL (overrides FLOATCHAT_BACKEND_URL)")
	stateDir := flag.String("state", "", "State directory (overrides FLOATCHAT_STATE_DIR)")
	flag.Parse()

	cfg := config.LoadOrDefault()
	if *backendURL != "" {
		cfg.Backend.BaseURL = *backendURL
	}
	if *stateDir != "" {
		cfg.Storage.StateDir = *stateDir
	}

	// Logs go to a file inside the state dir so they never interleave
	// with the chat transcript on stdout.
	if err := os.MkdirAll(cfg.Storage.StateDir, 0o755); err != nil {
		log.Fatalf("Failed to create state dir: %v", err)
	}
	logger, err := logging.New(logging.Config{
		Level:       cfg.Logging.Level,
		Development: cfg.Logging.Development,
		OutputPaths: []string{filepath.Join(cfg.Storage.StateDir, "floatchat.log")},
	})
	if err != nil {
		log.Printf("Bad logging config (%v), using defaults", err)
		logger = logging.NewDefault()
	}
	defer logger.Sync()

	metrics := monitoring.New(prometheus.NewRegistry())

	st := store.New(cfg.Storage.StateDir, logger)
	client := backend.New(backend.Config{
		BaseURL:       cfg.Backend.BaseURL,
		QueryTimeout:  cfg.Backend.QueryTimeout,
		HealthTimeout: cfg.Backend.HealthTimeout,
	}, logger)
	engine := session.NewManager(client, st, logger, metrics)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	mon := monitor.New(client, cfg.Monitor.Interval, logger, metrics, func(up bool) {
		if up {
			fmt.Fprintln(os.Stderr, "(backend is reachable again)")
		} else {
			fmt.Fprintln(os.Stderr, "(backend became unreachable)")
		}
	})
	mon.Start(ctx)
	defer mon.Stop()

	sweeper := session.NewSweeper(engine, client, mon, session.SweeperConfig{
		Debounce: cfg.Sweeper.Debounce,
		Interval: cfg.Sweeper.Interval,
		ProbeRPS: cfg.Sweeper.ProbeRPS,
	}, logger, metrics)
	go sweeper.Run(ctx)

	// Ctrl-C cancels in-flight work; the shell exits on the next read.
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Fprintln(os.Stderr, "\nshutting down")
		cancel()
		os.Stdin.Close()
	}()

	sh := shell.New(engine, mon, os.Stdin, os.Stdout, logger)
	if err := sh.Run(ctx); err != nil && ctx.Err() == nil {
		log.Fatalf("Shell error: %v", err)
	}
}
