// Package main runs the FieldSync core as a standalone daemon: local
// store, sync orchestrator and the localhost status endpoint the UI shell
// connects to. On mobile the same core is embedded via the FFI bridge
// instead.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/wirasto/fieldsync/internal/app"
	"github.com/wirasto/fieldsync/internal/logging"
)

// Version is set at build time
var Version = "0.1.0"

func defaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "fieldsync.toml"
	}
	return filepath.Join(home, ".fieldsync", "config.toml")
}

func main() {
	configPath := flag.String("config", defaultConfigPath(), "path to the TOML config file")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("fieldsync core v%s\n", Version)
		return
	}

	core, err := app.New(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "fieldsync: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	core.Start(ctx)

	<-ctx.Done()
	logging.Info("Shutting down")
	if err := core.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "fieldsync: shutdown: %v\n", err)
		os.Exit(1)
	}
}
