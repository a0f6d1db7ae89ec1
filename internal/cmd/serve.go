package cmd

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/3leaps/edison/internal/app"
	"github.com/3leaps/edison/internal/config"
	"github.com/3leaps/edison/internal/observability"
	"github.com/3leaps/edison/internal/server"
	"github.com/3leaps/edison/internal/server/handlers"
	"github.com/3leaps/edison/pkg/jobs"
)

var (
	serveHost string
	servePort int
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the scheduler and HTTP API",
	Long: `Run the job scheduler, cleanup sweeps and the HTTP API until interrupted.

On SIGINT or SIGTERM the server stops accepting requests, the scheduler
stops, and running jobs get server.shutdown_timeout to finish.

Example:
  edison serve
  edison serve --port 9000 --repository sqlite --repository-path ./jobs.db`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveHost, "host", "", "Override server.host")
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "Override server.port")
}

// signalHealthChecker reports healthy while the process handles signals.
type signalHealthChecker struct{}

func (signalHealthChecker) CheckHealth(context.Context) error { return nil }

// identityHealthChecker verifies the app identity used for config lookup.
type identityHealthChecker struct {
	binaryName string
	envPrefix  string
	configName string
}

func (c identityHealthChecker) CheckHealth(context.Context) error {
	switch {
	case c.binaryName == "":
		return errors.New("app identity missing binary name")
	case c.envPrefix == "":
		return errors.New("app identity missing env prefix")
	case c.configName == "":
		return errors.New("app identity missing config name")
	}
	return nil
}

// repositoryHealthChecker verifies the job repository answers queries.
type repositoryHealthChecker struct {
	repo jobs.Repository
}

func (c repositoryHealthChecker) CheckHealth(ctx context.Context) error {
	if _, err := c.repo.FindLatest(ctx, 1); err != nil {
		return fmt.Errorf("job repository: %w", err)
	}
	return nil
}

func registerHealthCheckers(m *handlers.HealthManager, a *app.App) {
	m.RegisterChecker("signals", signalHealthChecker{})
	id := identityHealthChecker{}
	if appIdentity != nil {
		id = identityHealthChecker{
			binaryName: appIdentity.BinaryName,
			envPrefix:  appIdentity.EnvPrefix,
			configName: appIdentity.ConfigName,
		}
	}
	m.RegisterChecker("identity", id)
	m.RegisterChecker("repository", repositoryHealthChecker{repo: a.Repository})
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if serveHost != "" {
		cfg.Server.Host = serveHost
	}
	if servePort != 0 {
		cfg.Server.Port = servePort
	}

	logger, err := observability.NewLogger(cfg.Logging.Level, cfg.Logging.Profile)
	if err != nil {
		return exitError(ExitConfigInvalid, "Invalid logging configuration", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.Build(ctx, cfg, logger)
	if err != nil {
		return exitError(ExitRepositoryFailed, "Failed to initialize", err)
	}

	health := handlers.NewHealthManager(versionInfo.Version)
	registerHealthCheckers(health, a)

	srv := newServer(cfg, a, health, logger)

	a.Start(ctx)
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	logger.Info("edison started",
		zap.String("version", versionInfo.Version),
		zap.String("addr", srv.Addr()),
		zap.String("repository", cfg.Jobs.Repository.Kind),
		zap.Strings("job_types", a.Service.JobTypes()))

	var serveErr error
	select {
	case <-ctx.Done():
		logger.Info("Shutdown requested")
	case serveErr = <-errCh:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout(cfg))
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP server shutdown incomplete", zap.Error(err))
	}
	if err := a.Shutdown(shutdownCtx); err != nil {
		logger.Warn("Job subsystem shutdown incomplete", zap.Error(err))
	}
	logger.Info("edison stopped")
	return serveErr
}

func newServer(cfg *config.Config, a *app.App, health *handlers.HealthManager, logger *zap.Logger) *server.Server {
	return server.New(cfg.Server.Host, cfg.Server.Port,
		server.WithLogger(logger.Named("http")),
		server.WithVersion(handlers.VersionInfo{
			Version:   versionInfo.Version,
			Commit:    versionInfo.Commit,
			BuildDate: versionInfo.BuildDate,
		}),
		server.WithHealthManager(health),
		server.WithJobs(a.Service, cfg.Jobs.URIBase),
		server.WithStatus(a.Status),
		server.WithTriggerLimit(cfg.Server.TriggerRate, cfg.Server.TriggerBurst),
		server.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.IdleTimeout),
	)
}

func shutdownTimeout(cfg *config.Config) time.Duration {
	if cfg.Server.ShutdownTimeout > 0 {
		return cfg.Server.ShutdownTimeout
	}
	return 10 * time.Second
}
