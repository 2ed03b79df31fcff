package main

import (
	"context"
	"errors"
	"os"

	"github.com/desertthunder/docdash/internal/shared"
	"github.com/urfave/cli/v3"
)

func main() {
	logger := shared.NewLogger(nil)
	runner := NewRunner(RunnerOpts{Logger: logger})

	app := &cli.Command{
		Name:     "docdash",
		Usage:    "Run and watch background document ingestion tasks",
		Version:  "0.1.0",
		Flags:    runner.flags(),
		Before:   runner.Before,
		Commands: runner.register(),
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		if errors.Is(err, shared.ErrNotImplemented) {
			logger.Warn("not implemented")
			os.Exit(0)
		}
		logger.Fatalf("application error: %v", err)
	}
}
