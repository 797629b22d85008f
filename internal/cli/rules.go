package cli

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/ogulcanaydogan/pulse/pkg/engine"
	"github.com/ogulcanaydogan/pulse/pkg/model"
)

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Manage spend alert rules",
}

var rulesAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Create an alert rule",
	RunE:  runRulesAdd,
}

var rulesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List an organization's alert rules",
	RunE:  runRulesList,
}

var rulesDeleteCmd = &cobra.Command{
	Use:   "delete",
	Short: "Delete an alert rule",
	RunE:  runRulesDelete,
}

func init() {
	rootCmd.AddCommand(rulesCmd)
	rulesCmd.AddCommand(rulesAddCmd, rulesListCmd, rulesDeleteCmd)

	rulesAddCmd.Flags().String("org", "", "Organization id")
	rulesAddCmd.Flags().StringP("name", "n", "", "Rule name")
	rulesAddCmd.Flags().StringP("threshold", "t", "", "Threshold in EUR")
	rulesAddCmd.Flags().IntP("window-days", "w", 7, "Trailing window in days")
	rulesAddCmd.Flags().Bool("month-to-date", false, "Sum spend since the 1st of the month instead")
	_ = rulesAddCmd.MarkFlagRequired("org")
	_ = rulesAddCmd.MarkFlagRequired("threshold")

	rulesListCmd.Flags().String("org", "", "Organization id")
	_ = rulesListCmd.MarkFlagRequired("org")

	rulesDeleteCmd.Flags().String("org", "", "Organization id")
	rulesDeleteCmd.Flags().String("id", "", "Rule id")
	_ = rulesDeleteCmd.MarkFlagRequired("org")
	_ = rulesDeleteCmd.MarkFlagRequired("id")
}

func runRulesAdd(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := initStorage(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	orgID, _ := cmd.Flags().GetString("org")
	name, _ := cmd.Flags().GetString("name")
	thresholdStr, _ := cmd.Flags().GetString("threshold")
	days, _ := cmd.Flags().GetInt("window-days")
	mtd, _ := cmd.Flags().GetBool("month-to-date")

	threshold, err := model.ParseMicros(thresholdStr)
	if err != nil {
		return fmt.Errorf("threshold: %w", err)
	}
	rule := &model.AlertRule{
		OrgID:      orgID,
		Name:       name,
		Threshold:  threshold,
		WindowDays: days,
		Window:     model.WindowTrailing,
	}
	if mtd {
		rule.Window = model.WindowMonthToDate
	}
	if err := store.CreateAlertRule(cmd.Context(), rule); err != nil {
		return fmt.Errorf("create rule: %w", err)
	}

	fmt.Printf("Rule created: %s (%s EUR, %s)\n", rule.ID, rule.Threshold, engine.WindowLabel(rule.Window, rule.WindowDays))
	return nil
}

func runRulesList(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := initStorage(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	orgID, _ := cmd.Flags().GetString("org")
	rules, err := store.ListAlertRules(cmd.Context(), orgID)
	if err != nil {
		return fmt.Errorf("list rules: %w", err)
	}
	if len(rules) == 0 {
		fmt.Println("No alert rules configured. Create one with 'pulse rules add'.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "ID\tNAME\tTHRESHOLD\tWINDOW\tSTATE\n")
	for _, r := range rules {
		state := "armed"
		if r.Triggered && r.TriggeredAt != nil {
			state = "triggered " + r.TriggeredAt.Format(time.RFC3339)
		}
		fmt.Fprintf(w, "%s\t%s\t%s EUR\t%s\t%s\n",
			r.ID, r.Name, r.Threshold, engine.WindowLabel(r.Window, r.WindowDays), state)
	}
	w.Flush()
	return nil
}

func runRulesDelete(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := initStorage(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	orgID, _ := cmd.Flags().GetString("org")
	id, _ := cmd.Flags().GetString("id")
	if err := store.DeleteAlertRule(cmd.Context(), orgID, id); err != nil {
		return fmt.Errorf("delete rule: %w", err)
	}

	fmt.Printf("Rule %s deleted\n", id)
	return nil
}
