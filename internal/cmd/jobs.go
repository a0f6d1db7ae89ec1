package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/3leaps/edison/internal/app"
	"github.com/3leaps/edison/internal/observability"
	"github.com/3leaps/edison/pkg/jobs"
	"github.com/3leaps/edison/pkg/jobs/cleanup"
)

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Inspect and maintain job records",
	Long: `Inspect and maintain the job records in the configured repository.

These commands work on the repository directly and do not need a running
server. Use --repository and --repository-path to point at a different store.`,
}

var jobsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the latest jobs",
	RunE:  runJobsList,
}

var jobsStatusCmd = &cobra.Command{
	Use:   "status <job_id|job_uri>",
	Short: "Show a job and its messages",
	Args:  cobra.ExactArgs(1),
	RunE:  runJobsStatus,
}

var jobsGCCmd = &cobra.Command{
	Use:   "gc",
	Short: "Keep only the last N stopped jobs per type",
	RunE:  runJobsGC,
}

var jobsReapCmd = &cobra.Command{
	Use:   "reap",
	Short: "Mark running jobs without recent updates as DEAD",
	RunE:  runJobsReap,
}

var jobsDeleteCmd = &cobra.Command{
	Use:   "delete",
	Short: "Delete stopped jobs",
	RunE:  runJobsDelete,
}

var jobsKillCmd = &cobra.Command{
	Use:   "kill <job_id|job_uri>",
	Short: "Mark a running job as DEAD",
	Long: `Mark a running job as DEAD.

The job body is not interrupted; use this for jobs whose process is gone.
Killing a stopped job is a no-op.`,
	Args: cobra.ExactArgs(1),
	RunE: runJobsKill,
}

var jobsRunCmd = &cobra.Command{
	Use:   "run <job_type>",
	Short: "Run a job in the foreground and wait for it",
	Args:  cobra.ExactArgs(1),
	RunE:  runJobsRun,
}

func init() {
	rootCmd.AddCommand(jobsCmd)
	jobsCmd.AddCommand(jobsListCmd)
	jobsCmd.AddCommand(jobsStatusCmd)
	jobsCmd.AddCommand(jobsGCCmd)
	jobsCmd.AddCommand(jobsReapCmd)
	jobsCmd.AddCommand(jobsDeleteCmd)
	jobsCmd.AddCommand(jobsKillCmd)
	jobsCmd.AddCommand(jobsRunCmd)

	jobsListCmd.Flags().String("type", "", "Only list jobs of this type")
	jobsListCmd.Flags().Int("count", 20, "Number of jobs to list (0 = all)")
	jobsListCmd.Flags().Bool("json", false, "Output as JSON")
	jobsStatusCmd.Flags().Bool("json", false, "Output as JSON")
	jobsGCCmd.Flags().Int("keep", 0, "Jobs to keep per type (default: jobs.cleanup.keep_last.count)")
	jobsGCCmd.Flags().String("types", "", "Glob of job types to clean (default: jobs.cleanup.keep_last.job_types)")
	jobsReapCmd.Flags().Duration("max-age", 0, "Age of the last update after which a job is dead (default: jobs.cleanup.stop_dead.max_age)")
	jobsDeleteCmd.Flags().String("type", "", "Only delete jobs of this type")
	jobsRunCmd.Flags().Bool("json", false, "Output the finished record as JSON")
}

func writeJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func formatOptionalTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return "-"
	}
	return t.UTC().Format(time.RFC3339)
}

func runJobsList(cmd *cobra.Command, _ []string) error {
	jobType, _ := cmd.Flags().GetString("type")
	count, _ := cmd.Flags().GetInt("count")
	jsonOutput, _ := cmd.Flags().GetBool("json")
	if count < 0 {
		return exitError(ExitInvalidArgument, "--count must be >= 0", nil)
	}

	return withApp(cmd, func(ctx context.Context, a *app.App) error {
		records, err := a.Service.FindJobs(ctx, jobType, count)
		if err != nil {
			return err
		}
		if jsonOutput {
			if records == nil {
				records = []*jobs.Record{}
			}
			return writeJSON(records)
		}
		if len(records) == 0 {
			_, _ = fmt.Fprintln(os.Stdout, "No jobs found")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		defer func() { _ = w.Flush() }()

		_, _ = fmt.Fprintln(w, "JOB ID\tTYPE\tSTATE\tSTATUS\tSTARTED\tSTOPPED\tHOST")
		for _, r := range records {
			host := r.Hostname
			if host == "" {
				host = "-"
			}
			_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
				r.ID,
				r.JobType,
				r.State(),
				r.Status,
				r.Started.UTC().Format(time.RFC3339),
				formatOptionalTime(r.Stopped),
				host,
			)
		}
		return nil
	})
}

func printRecord(r *jobs.Record) {
	_, _ = fmt.Fprintf(os.Stdout, "id:           %s\n", r.ID)
	_, _ = fmt.Fprintf(os.Stdout, "uri:          %s\n", r.URI)
	_, _ = fmt.Fprintf(os.Stdout, "type:         %s\n", r.JobType)
	_, _ = fmt.Fprintf(os.Stdout, "state:        %s\n", r.State())
	_, _ = fmt.Fprintf(os.Stdout, "status:       %s\n", r.Status)
	_, _ = fmt.Fprintf(os.Stdout, "started:      %s\n", r.Started.UTC().Format(time.RFC3339))
	_, _ = fmt.Fprintf(os.Stdout, "stopped:      %s\n", formatOptionalTime(r.Stopped))
	_, _ = fmt.Fprintf(os.Stdout, "last_updated: %s\n", r.LastUpdated.UTC().Format(time.RFC3339))
	if r.Hostname != "" {
		_, _ = fmt.Fprintf(os.Stdout, "host:         %s\n", r.Hostname)
	}
	if len(r.Messages) == 0 {
		return
	}
	_, _ = fmt.Fprintln(os.Stdout, "messages:")
	for _, m := range r.Messages {
		_, _ = fmt.Fprintf(os.Stdout, "  %s %-7s %s\n", m.Timestamp.UTC().Format(time.RFC3339), m.Level, m.Text)
	}
}

func runJobsStatus(cmd *cobra.Command, args []string) error {
	jsonOutput, _ := cmd.Flags().GetBool("json")

	return withApp(cmd, func(ctx context.Context, a *app.App) error {
		r, err := a.Service.FindJob(ctx, args[0])
		if err != nil {
			return err
		}
		if jsonOutput {
			return writeJSON(r)
		}
		printRecord(r)
		return nil
	})
}

func runJobsGC(cmd *cobra.Command, _ []string) error {
	keep, _ := cmd.Flags().GetInt("keep")
	types, _ := cmd.Flags().GetString("types")

	return withApp(cmd, func(ctx context.Context, a *app.App) error {
		kl := a.Config.Jobs.Cleanup.KeepLast
		if keep <= 0 {
			keep = kl.Count
		}
		if strings.TrimSpace(types) == "" {
			types = kl.JobTypes
		}

		before, err := a.Repository.FindAll(ctx)
		if err != nil {
			return err
		}
		strategy, err := cleanup.NewKeepLastJobs(a.Repository, keep, types,
			cleanup.WithLogger(observability.CLILogger))
		if err != nil {
			return exitError(ExitInvalidArgument, "Invalid gc options", err)
		}
		if err := strategy.DoCleanUp(ctx); err != nil {
			return err
		}
		after, err := a.Repository.FindAll(ctx)
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintf(os.Stdout, "deleted=%d\n", len(before)-len(after))
		return nil
	})
}

func runJobsReap(cmd *cobra.Command, _ []string) error {
	maxAge, _ := cmd.Flags().GetDuration("max-age")

	return withApp(cmd, func(ctx context.Context, a *app.App) error {
		if maxAge <= 0 {
			maxAge = a.Config.Jobs.Cleanup.StopDead.MaxAge
		}
		running, err := a.Repository.FindRunning(ctx)
		if err != nil {
			return err
		}
		strategy, err := cleanup.NewStopDeadJobs(a.Repository, maxAge,
			cleanup.WithLogger(observability.CLILogger))
		if err != nil {
			return exitError(ExitInvalidArgument, "Invalid reap options", err)
		}
		if err := strategy.DoCleanUp(ctx); err != nil {
			return err
		}
		still, err := a.Repository.FindRunning(ctx)
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintf(os.Stdout, "stopped=%d\n", len(running)-len(still))
		return nil
	})
}

func runJobsDelete(cmd *cobra.Command, _ []string) error {
	jobType, _ := cmd.Flags().GetString("type")

	return withApp(cmd, func(ctx context.Context, a *app.App) error {
		n, err := a.Service.DeleteJobs(ctx, jobType)
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintf(os.Stdout, "deleted=%d\n", n)
		return nil
	})
}

func runJobsKill(cmd *cobra.Command, args []string) error {
	return withApp(cmd, func(ctx context.Context, a *app.App) error {
		if err := a.Service.KillJob(ctx, args[0]); err != nil {
			return err
		}
		r, err := a.Service.FindJob(ctx, args[0])
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintf(os.Stdout, "%s %s %s\n", r.ID, r.State(), r.Status)
		return nil
	})
}

func runJobsRun(cmd *cobra.Command, args []string) error {
	jsonOutput, _ := cmd.Flags().GetBool("json")
	jobType := args[0]

	return withApp(cmd, func(ctx context.Context, a *app.App) error {
		uri, err := a.Service.StartAsyncJob(ctx, jobType)
		if err != nil {
			return err
		}
		observability.CLILogger.Info("Job started", zap.String("job_type", jobType), zap.String("job_uri", uri))

		// The record is final once the executor has drained.
		if err := a.Executor.Shutdown(ctx); err != nil {
			return err
		}
		r, err := a.Repository.FindOne(ctx, jobs.IDFromURI(uri))
		if err != nil {
			return err
		}
		if jsonOutput {
			if err := writeJSON(r); err != nil {
				return err
			}
		} else {
			printRecord(r)
		}
		if r.Status != jobs.StatusOK {
			return exitError(ExitFailure, "Job finished with status "+string(r.Status), nil)
		}
		return nil
	})
}
