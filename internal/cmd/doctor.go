package cmd

import (
	"context"
	"fmt"
	"runtime"
	"strings"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/3leaps/edison/internal/app"
	"github.com/3leaps/edison/internal/config"
	"github.com/3leaps/edison/internal/observability"
	"github.com/3leaps/edison/pkg/jobs/execjob"
	"github.com/3leaps/edison/pkg/jobstore"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Run diagnostic checks",
	Long: `Run diagnostic checks on the configuration and the job repository and
suggest fixes for common issues.

Examples:
  edison doctor
  edison doctor --repository s3`,
	RunE: runDoctor,
}

func init() {
	rootCmd.AddCommand(doctorCmd)
}

type doctorReport struct {
	total  int
	num    int
	failed int
}

func (r *doctorReport) pass(label, detail string, fields ...zap.Field) {
	r.num++
	observability.CLILogger.Info(fmt.Sprintf("[%d/%d] %s... ✅ %s", r.num, r.total, label, detail), fields...)
}

func (r *doctorReport) fail(label, detail string, err error) {
	r.num++
	r.failed++
	observability.CLILogger.Error(fmt.Sprintf("[%d/%d] %s... ❌ %s", r.num, r.total, label, detail), zap.Error(err))
}

func runDoctor(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	observability.CLILogger.Info("=== edison doctor ===")
	observability.CLILogger.Info("")

	report := &doctorReport{total: 5}

	report.pass("Checking Go version", runtime.Version(), zap.String("go_version", runtime.Version()))
	report.pass("Checking environment", runtime.GOOS+"/"+runtime.GOARCH)

	cfg, err := loadConfig(cmd)
	if err != nil {
		report.fail("Checking configuration", "Cannot load configuration", err)
		return exitError(ExitConfigInvalid, "Doctor found problems", err)
	}
	report.pass("Checking configuration", "repository="+cfg.Jobs.Repository.Kind,
		zap.String("repository", cfg.Jobs.Repository.Kind))

	if cfg.Jobs.DefinitionsFile == "" {
		report.pass("Checking job definitions", "none configured")
	} else if f, err := execjob.Load(cfg.Jobs.DefinitionsFile); err != nil {
		report.fail("Checking job definitions", "Invalid definitions file", err)
	} else {
		report.pass("Checking job definitions", fmt.Sprintf("%d job(s)", len(f.Jobs)),
			zap.String("path", cfg.Jobs.DefinitionsFile))
	}

	if strings.EqualFold(cfg.Jobs.Repository.Kind, jobstore.BackendS3.String()) {
		report.total++
		checkAWSCredentials(ctx, report, cfg)
	}

	checkRepository(ctx, report, cfg)

	observability.CLILogger.Info("")
	if report.failed > 0 {
		observability.CLILogger.Warn("⚠️  Some checks failed. Review the output above for details.")
		return exitError(ExitRepositoryFailed, "Doctor found problems", nil)
	}
	observability.CLILogger.Info("✅ All checks passed!")
	return nil
}

func checkRepository(ctx context.Context, report *doctorReport, cfg *config.Config) {
	repo, closeRepo, err := app.OpenRepository(ctx, cfg.Jobs.Repository)
	if err != nil {
		report.fail("Checking job repository", "Cannot open repository", err)
		return
	}
	defer func() { _ = closeRepo(ctx) }()

	running, err := repo.FindRunning(ctx)
	if err != nil {
		report.fail("Checking job repository", "Cannot query repository", err)
		return
	}
	report.pass("Checking job repository", fmt.Sprintf("%d running job(s)", len(running)),
		zap.String("repository", cfg.Jobs.Repository.Kind))
}

func checkAWSCredentials(ctx context.Context, report *doctorReport, cfg *config.Config) {
	s3cfg := cfg.Jobs.Repository.S3
	if s3cfg.AccessKeyID != "" {
		report.pass("Checking AWS credentials", "static credentials",
			zap.String("access_key", maskAccessKey(s3cfg.AccessKeyID)))
		return
	}

	var opts []func(*awsconfig.LoadOptions) error
	if s3cfg.Profile != "" {
		opts = append(opts, awsconfig.WithSharedConfigProfile(s3cfg.Profile))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		report.fail("Checking AWS credentials", "Cannot load AWS config", err)
		printAWSCredentialsHelp()
		return
	}
	creds, err := awsCfg.Credentials.Retrieve(ctx)
	if err != nil {
		report.fail("Checking AWS credentials", "Cannot retrieve credentials", err)
		printAWSCredentialsHelp()
		return
	}
	source := creds.Source
	if source == "" {
		source = "unknown"
	}
	report.pass("Checking AWS credentials", "source "+source,
		zap.String("access_key", maskAccessKey(creds.AccessKeyID)))
}

// maskAccessKey masks all but the last 4 characters of an access key.
func maskAccessKey(key string) string {
	if len(key) <= 4 {
		return "****"
	}
	return "****" + key[len(key)-4:]
}

// printAWSCredentialsHelp prints help for configuring AWS credentials.
func printAWSCredentialsHelp() {
	observability.CLILogger.Info("")
	observability.CLILogger.Info("To configure AWS credentials:")
	observability.CLILogger.Info("  1. Set AWS_ACCESS_KEY_ID and AWS_SECRET_ACCESS_KEY environment variables, or")
	observability.CLILogger.Info("  2. Set jobs.repository.s3.profile to a profile from 'aws configure', or")
	observability.CLILogger.Info("  3. Use an IAM role when running on AWS infrastructure")
	observability.CLILogger.Info("")
	observability.CLILogger.Info("For S3-compatible storage, also set jobs.repository.s3.endpoint (EDISON_S3_ENDPOINT).")
	observability.CLILogger.Info("")
}
