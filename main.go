// File: main.go
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/screenpilot/screenpilot-cli/cmd"
	"github.com/screenpilot/screenpilot-cli/internal/observability"
)

// main is the entry point for the ScreenPilot CLI.
func main() {
	// Listen for interrupt signals so in-flight runs shut down gracefully and
	// the audit trail is closed cleanly.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err := cmd.Execute(ctx)
	observability.Sync()

	if err != nil {
		if errors.Is(err, context.Canceled) {
			os.Exit(0)
		}
		os.Exit(1)
	}
}
