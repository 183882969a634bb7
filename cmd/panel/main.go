// Package main runs the terminal statistics panel against a running timer server.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/mstimer/mstimer-server/internal/logger"
	"github.com/mstimer/mstimer-server/internal/panel"
)

func main() {
	port := os.Getenv("SERVER_PORT")
	if port == "" {
		port = "8080"
	}

	server := flag.String("server", "http://localhost:"+port, "Base URL of the timer server")
	interval := flag.Duration("interval", panel.DefaultPollInterval, "How often the total is refreshed")
	logLevel := flag.String("log-level", "warn", "Log level (debug, info, warn, error)")
	flag.Parse()

	// Logs go to stderr so they do not interleave with the panel on stdout.
	log := logger.New(logger.Config{
		Writer: os.Stderr,
		Level:  logger.ParseLevel(*logLevel),
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	p := panel.New(panel.NewClient(*server, panel.DefaultTimeout), os.Stdout, panel.Options{
		PollInterval: *interval,
		Logger:       log.Component("panel"),
	})

	if err := p.Run(ctx, os.Stdin); err != nil {
		log.Error("panel stopped", slog.Any("error", err))
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
