// Command metrify discovers metric configuration, runs metrics against
// targets, and serves the inspection API.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"metrify/cmd/metrify/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := cli.NewRootCommand().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}
