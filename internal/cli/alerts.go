package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/ogulcanaydogan/pulse/pkg/engine"
	"github.com/ogulcanaydogan/pulse/pkg/storage"
)

var alertsCmd = &cobra.Command{
	Use:   "alerts",
	Short: "Run and inspect alert evaluation",
}

var alertsRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Evaluate alert rules and dispatch notifications now",
	RunE:  runAlertsRun,
}

var alertsStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the most recent run of an alert job",
	RunE:  runAlertsStatus,
}

func init() {
	rootCmd.AddCommand(alertsCmd)
	alertsCmd.AddCommand(alertsRunCmd)
	alertsCmd.AddCommand(alertsStatusCmd)

	alertsRunCmd.Flags().String("org", "", "Only evaluate this organization")
	alertsRunCmd.Flags().Bool("json", false, "Print the run summary as JSON")
	alertsStatusCmd.Flags().String("job", "", "Job name (default from config)")
}

func runAlertsRun(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	target := engine.AllOrgs()
	if org, _ := cmd.Flags().GetString("org"); org != "" {
		target = engine.SingleOrg(org)
	}

	summary, err := a.orchestrator.Run(cmd.Context(), target)
	if err != nil {
		return fmt.Errorf("run alerts: %w", err)
	}

	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(summary)
	}

	fmt.Printf("=== Alert Run %s ===\n", summary.RunID)
	fmt.Printf("Status:          %s\n", summary.Status)
	fmt.Printf("Duration:        %dms\n", summary.DurationMS)
	fmt.Printf("Organizations:   %d (%d failed)\n", summary.ProcessedOrgs, summary.FailedOrgs)
	fmt.Printf("Triggered:       %d\n", summary.Triggered)
	fmt.Printf("Cleared:         %d\n", summary.Cleared)

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "\n  CHANNEL\tSENT\n")
	fmt.Fprintf(w, "  email\t%d\n", summary.SentEmail)
	fmt.Fprintf(w, "  telegram\t%d\n", summary.SentTelegram)
	fmt.Fprintf(w, "  webhook\t%d\n", summary.SentWebhook)
	fmt.Fprintf(w, "  in_app\t%d\n", summary.SentInApp)
	w.Flush()

	if summary.ErrorsCount > 0 {
		fmt.Printf("\nErrors (%d):\n", summary.ErrorsCount)
		for _, e := range summary.Errors {
			fmt.Printf("  - %s\n", e)
		}
	}
	return nil
}

func runAlertsStatus(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := initStorage(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	job, _ := cmd.Flags().GetString("job")
	if job == "" {
		job = cfg.Cron.JobName
	}

	runLog, err := store.LatestRunLog(cmd.Context(), job)
	if errors.Is(err, storage.ErrNotFound) {
		fmt.Printf("No runs recorded for job %q.\n", job)
		return nil
	}
	if err != nil {
		return fmt.Errorf("latest run: %w", err)
	}

	fmt.Printf("Job:               %s\n", runLog.JobName)
	fmt.Printf("Last run:          %s\n", runLog.StartedAt.Format(time.RFC3339))
	fmt.Printf("Status:            %s\n", runLog.Status)
	fmt.Printf("Duration:          %dms\n", runLog.DurationMS)
	fmt.Printf("Organizations:     %d\n", runLog.ProcessedOrgs)
	fmt.Printf("Triggered:         %d\n", runLog.Triggered)
	fmt.Printf("Errors:            %d\n", runLog.ErrorsCount)
	if len(runLog.ErrorSample) > 0 {
		fmt.Printf("Last error:        %s\n", runLog.ErrorSample[0])
	}
	fmt.Printf("Next expected run: %s\n", runLog.StartedAt.Add(cfg.Cron.Interval).Format(time.RFC3339))
	return nil
}
