package cli

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"metrify/internal/telemetry"
)

// initTelemetry starts the OTLP trace pipeline and returns a shutdown
// func with its own timeout, safe to defer.
func initTelemetry(cmd *cobra.Command, a *app) (func(), error) {
	otelShutdown, err := telemetry.Init(cmd.Context(), "metrify", a.logger)
	if err != nil {
		return nil, err
	}
	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(shutdownCtx); err != nil {
			a.logger.Error("opentelemetry shutdown failed", "err", err)
		}
	}, nil
}
