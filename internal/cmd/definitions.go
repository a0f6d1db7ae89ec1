package cmd

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/3leaps/edison/internal/app"
	"github.com/3leaps/edison/pkg/jobs"
)

var definitionsCmd = &cobra.Command{
	Use:   "definitions",
	Short: "List registered job definitions",
	RunE:  runDefinitions,
}

func init() {
	rootCmd.AddCommand(definitionsCmd)
	definitionsCmd.Flags().Bool("json", false, "Output as JSON")
}

func runDefinitions(cmd *cobra.Command, _ []string) error {
	jsonOutput, _ := cmd.Flags().GetBool("json")

	return withApp(cmd, func(_ context.Context, a *app.App) error {
		defs := a.Service.Definitions()
		if jsonOutput {
			if defs == nil {
				defs = []jobs.Definition{}
			}
			return writeJSON(defs)
		}
		if len(defs) == 0 {
			_, _ = fmt.Fprintln(os.Stdout, "No job definitions (set jobs.definitions_file)")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		defer func() { _ = w.Flush() }()

		_, _ = fmt.Fprintln(w, "TYPE\tNAME\tSCHEDULE\tMAX AGE\tRETRIES\tTIMEOUT")
		for _, d := range defs {
			schedule := d.Schedule()
			if schedule == "" {
				schedule = "manual"
			}
			_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\n",
				d.Type, d.Name, schedule, orDash(d.MaxAge.String(), d.MaxAge == 0),
				d.Retries, orDash(d.Timeout.String(), d.Timeout == 0))
		}
		return nil
	})
}

func orDash(s string, empty bool) string {
	if empty {
		return "-"
	}
	return s
}
