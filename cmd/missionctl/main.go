// File: cmd/missionctl/main.go
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/xkilldash9x/missionctl/cmd"
	"github.com/xkilldash9x/missionctl/internal/observability"
)

func main() {
	// Graceful shutdown on SIGINT/SIGTERM: the driving loop observes the
	// context and leaves the mission where it stands.
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
