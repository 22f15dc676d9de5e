package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/vmunix/librarr/internal/config"
	"github.com/vmunix/librarr/internal/server"
)

var version = "dev"

// eventRetention bounds the persisted event log.
const eventRetention = 30 * 24 * time.Hour

func main() {
	configPath := flag.String("config", "", "Path to config file (default: discovered)")
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("librarrd %s\n", version)
		os.Exit(0)
	}

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	if configPath == "" {
		var err error
		if configPath, err = config.Discover(); err != nil {
			return err
		}
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger, closeLog, err := cfg.NewLogger(os.Stderr)
	if err != nil {
		return err
	}
	defer func() { _ = closeLog.Close() }()

	app, err := server.Open(cfg, logger)
	if err != nil {
		return err
	}
	defer func() { _ = app.Close() }()

	if n, err := app.Events.Prune(eventRetention); err != nil {
		logger.Warn("prune event log", "error", err)
	} else if n > 0 {
		logger.Info("event log pruned", "removed", n)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("librarrd starting", "version", version, "config", configPath,
		"database", cfg.Database.Path, "libraries", len(cfg.Libraries))
	if err := app.Runner().Run(ctx); err != nil {
		return err
	}
	logger.Info("librarrd stopped")
	return nil
}
