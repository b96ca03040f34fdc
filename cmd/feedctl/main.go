package main

import (
	"context"
	"fmt"
	"os"

	"github.com/skyfeed/skyfeed/pkg/config"
	"github.com/skyfeed/skyfeed/pkg/logging"
)

// version is set via ldflags at build time
var version = "dev"

func main() {
	rootCmd := NewRootCmd(version, loadApp)
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "feedctl: %v\n", err)
		os.Exit(1)
	}
}

func loadApp(context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}
	if err := logging.InitLogger(&cfg.Logging); err != nil {
		return nil, fmt.Errorf("initialize logger: %w", err)
	}
	return newApp(cfg)
}
