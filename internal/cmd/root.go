// Package cmd implements the edison command line.
package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/3leaps/edison/internal/config"
	"github.com/3leaps/edison/internal/observability"
)

// Exit codes returned by ExitCode.
const (
	ExitSuccess          = 0
	ExitFailure          = 1
	ExitInvalidArgument  = 2
	ExitConfigInvalid    = 3
	ExitRepositoryFailed = 4
)

// AppIdentity names the binary and its configuration sources.
type AppIdentity struct {
	BinaryName string
	EnvPrefix  string
	ConfigName string
}

var appIdentity *AppIdentity

// GetAppIdentity returns the identity set up by the root command, or nil
// before any command ran.
func GetAppIdentity() *AppIdentity {
	return appIdentity
}

var versionInfo = struct {
	Version   string
	Commit    string
	BuildDate string
}{
	Version:   "dev",
	Commit:    "unknown",
	BuildDate: "unknown",
}

// SetVersionInfo records build metadata injected by the linker.
func SetVersionInfo(version, commit, buildDate string) {
	versionInfo.Version = version
	versionInfo.Commit = commit
	versionInfo.BuildDate = buildDate
}

var (
	verbose        bool
	configPath     string
	repositoryKind string
	repositoryPath string
)

var rootCmd = &cobra.Command{
	Use:   "edison",
	Short: "Run and inspect background jobs",
	Long: `edison runs background jobs with persistent job records, mutual exclusion
groups, periodic cleanup and status reporting.

Use 'edison serve' to run the scheduler and HTTP API, or the 'jobs'
commands to inspect and maintain the job repository directly.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, _ []string) {
		observability.InitCLILogger("edison", verbose)
		appIdentity = &AppIdentity{
			BinaryName: cmd.Root().Name(),
			EnvPrefix:  config.EnvPrefix,
			ConfigName: config.ConfigName,
		}
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.BoolVarP(&verbose, "verbose", "v", false, "Enable debug output")
	pf.StringVarP(&configPath, "config", "c", "", "Config file (default: edison.yaml in ., user config dir, /etc/edison)")
	pf.StringVar(&repositoryKind, "repository", "", "Override jobs.repository.kind (memory, file, sqlite, mongo, s3)")
	pf.StringVar(&repositoryPath, "repository-path", "", "Override jobs.repository.path")
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// exitCodeError carries the process exit code for an error.
type exitCodeError struct {
	code int
	msg  string
	err  error
}

func (e *exitCodeError) Error() string {
	if e.err == nil {
		return e.msg
	}
	return fmt.Sprintf("%s: %v", e.msg, e.err)
}

func (e *exitCodeError) Unwrap() error { return e.err }

func exitError(code int, msg string, err error) error {
	return &exitCodeError{code: code, msg: msg, err: err}
}

// ExitCode maps an error returned by Execute to a process exit code.
func ExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var ec *exitCodeError
	if errors.As(err, &ec) {
		return ec.code
	}
	return ExitFailure
}

// loadConfig applies the global flags on top of the file and environment.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	repo := map[string]any{}
	if repositoryKind != "" {
		repo["kind"] = repositoryKind
	}
	if repositoryPath != "" {
		repo["path"] = repositoryPath
	}
	var overrides []map[string]any
	if len(repo) > 0 {
		overrides = append(overrides, map[string]any{"jobs": map[string]any{"repository": repo}})
	}

	cfg, err := config.LoadFile(cmd.Context(), configPath, overrides...)
	if err != nil {
		return nil, exitError(ExitConfigInvalid, "Invalid configuration", err)
	}
	return cfg, nil
}
