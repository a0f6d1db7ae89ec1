package cmd

import (
	"context"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/3leaps/edison/internal/app"
	"github.com/3leaps/edison/internal/observability"
)

// withApp builds the application from configuration, runs fn, and shuts
// the application down, waiting for jobs fn started.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app.App) error) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	a, err := app.Build(ctx, cfg, observability.CLILogger)
	if err != nil {
		return exitError(ExitRepositoryFailed, "Failed to initialize", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		if err := a.Shutdown(shutdownCtx); err != nil {
			observability.CLILogger.Warn("Shutdown incomplete", zap.Error(err))
		}
	}()
	return fn(ctx, a)
}
