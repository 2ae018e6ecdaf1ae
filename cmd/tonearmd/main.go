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

	"github.com/mmcdole/tonearm/internal/adapter"
	"github.com/mmcdole/tonearm/internal/server"
)

// Version is set at build time via -ldflags
var Version = "dev"

const shutdownTimeout = 10 * time.Second

func main() {
	var (
		showVersion bool
		addr        string
		database    string
		downloadDir string
	)
	flag.BoolVar(&showVersion, "version", false, "print version")
	flag.StringVar(&addr, "addr", "", "listen address (overrides config)")
	flag.StringVar(&database, "db", "", "SQLite database path (overrides config)")
	flag.StringVar(&downloadDir, "downloads", "", "temporary download directory (overrides config)")
	flag.Parse()

	if showVersion {
		fmt.Printf("tonearmd %s\n", Version)
		return
	}

	cfg, err := adapter.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to load config: %v\n", err)
		os.Exit(1)
	}
	if addr != "" {
		cfg.Serve.Addr = addr
	}
	if database != "" {
		cfg.Serve.Database = database
	}
	if downloadDir != "" {
		cfg.Serve.DownloadDir = downloadDir
	}

	if err := run(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(cfg *adapter.Config) error {
	logger := adapter.NewConsoleLogger(os.Stderr, cfg.Logging.Level)

	dbPath, err := adapter.ExpandHome(cfg.Serve.Database)
	if err != nil {
		return err
	}
	repo, err := server.OpenRepository(dbPath)
	if err != nil {
		return err
	}
	defer repo.Close()

	downloads, err := adapter.ExpandHome(cfg.Serve.DownloadDir)
	if err != nil {
		return err
	}

	srv := server.New(repo, server.NewYTDLP(), downloads, logger)
	e := srv.Router()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("catalog server listening", "addr", cfg.Serve.Addr, "database", dbPath, "version", Version)
		errCh <- e.Start(cfg.Serve.Addr)
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}
