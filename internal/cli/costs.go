package cli

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ogulcanaydogan/pulse/internal/clock"
	"github.com/ogulcanaydogan/pulse/pkg/model"
	"github.com/ogulcanaydogan/pulse/pkg/pricing"
	"github.com/ogulcanaydogan/pulse/pkg/tracker"
)

var costsCmd = &cobra.Command{
	Use:   "costs",
	Short: "Record spend",
}

var costsAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Record a cost line",
	RunE:  runCostsAdd,
}

var costsTrackCmd = &cobra.Command{
	Use:   "track",
	Short: "Price an AI API call and record it",
	Long: `Price one AI API call from the pricing tables and record it as a cost line.
When --input-tokens is omitted, input tokens are counted from --prompt-file.`,
	RunE: runCostsTrack,
}

func init() {
	rootCmd.AddCommand(costsCmd)
	costsCmd.AddCommand(costsAddCmd, costsTrackCmd)

	costsAddCmd.Flags().String("org", "", "Organization id")
	costsAddCmd.Flags().StringP("amount", "a", "", "Amount in currency units")
	costsAddCmd.Flags().StringP("currency", "c", "EUR", "ISO currency code")
	costsAddCmd.Flags().StringP("provider", "p", "", "Provider (e.g., aws, openai)")
	costsAddCmd.Flags().StringP("service", "s", "", "Service or model")
	costsAddCmd.Flags().String("at", "", "When the cost occurred, RFC3339 (default now)")
	_ = costsAddCmd.MarkFlagRequired("org")
	_ = costsAddCmd.MarkFlagRequired("amount")

	costsTrackCmd.Flags().String("org", "", "Organization id")
	costsTrackCmd.Flags().StringP("provider", "p", "", "Provider (default: resolved from the model)")
	costsTrackCmd.Flags().StringP("model", "m", "", "Model name (e.g., gpt-4o, claude-3-5-sonnet)")
	costsTrackCmd.Flags().Int64("input-tokens", 0, "Number of input tokens")
	costsTrackCmd.Flags().Int64("cached-input-tokens", 0, "Number of cached input tokens")
	costsTrackCmd.Flags().Int64("output-tokens", 0, "Number of output tokens")
	costsTrackCmd.Flags().String("prompt-file", "", "Count input tokens from this file")
	costsTrackCmd.Flags().Bool("evaluate", false, "Evaluate the organization's alert rules afterwards")
	_ = costsTrackCmd.MarkFlagRequired("org")
	_ = costsTrackCmd.MarkFlagRequired("model")
}

func runCostsAdd(cmd *cobra.Command, _ []string) error {
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
	amountStr, _ := cmd.Flags().GetString("amount")
	currency, _ := cmd.Flags().GetString("currency")
	provider, _ := cmd.Flags().GetString("provider")
	service, _ := cmd.Flags().GetString("service")
	at, _ := cmd.Flags().GetString("at")

	amount, err := model.ParseMicros(amountStr)
	if err != nil {
		return fmt.Errorf("amount: %w", err)
	}
	occurred := time.Now().UTC()
	if at != "" {
		if occurred, err = time.Parse(time.RFC3339, at); err != nil {
			return fmt.Errorf("at: %w", err)
		}
	}

	rec := &model.CostRecord{
		OrgID:      orgID,
		Provider:   provider,
		Service:    service,
		Amount:     amount,
		Currency:   strings.ToUpper(currency),
		OccurredAt: occurred,
	}
	if err := store.RecordCost(cmd.Context(), rec); err != nil {
		return fmt.Errorf("record cost: %w", err)
	}

	fmt.Printf("Recorded %s %s for %s at %s\n", rec.Amount.Decimal(), rec.Currency, rec.OrgID, rec.OccurredAt.Format(time.RFC3339))
	return nil
}

func runCostsTrack(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	registry, err := initRegistry(cfg)
	if err != nil {
		return err
	}
	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	orgID, _ := cmd.Flags().GetString("org")
	provider, _ := cmd.Flags().GetString("provider")
	modelName, _ := cmd.Flags().GetString("model")
	inputTokens, _ := cmd.Flags().GetInt64("input-tokens")
	cachedTokens, _ := cmd.Flags().GetInt64("cached-input-tokens")
	outputTokens, _ := cmd.Flags().GetInt64("output-tokens")
	promptFile, _ := cmd.Flags().GetString("prompt-file")
	evaluate, _ := cmd.Flags().GetBool("evaluate")

	call := tracker.Call{
		OrgID:    orgID,
		Provider: provider,
		Model:    modelName,
		Usage: pricing.Usage{
			InputTokens:       inputTokens,
			CachedInputTokens: cachedTokens,
			OutputTokens:      outputTokens,
		},
	}
	if promptFile != "" {
		data, err := os.ReadFile(promptFile)
		if err != nil {
			return fmt.Errorf("read prompt file: %w", err)
		}
		call.Prompt = string(data)
	}

	t := tracker.NewUsageTracker(registry, a.store, clock.Real{}, a.logger)
	rec, err := t.Track(cmd.Context(), call)
	if err != nil {
		return fmt.Errorf("track usage: %w", err)
	}

	fmt.Printf("Recorded usage:\n")
	fmt.Printf("  ID:        %s\n", rec.ID)
	fmt.Printf("  Provider:  %s\n", rec.Provider)
	fmt.Printf("  Model:     %s\n", rec.Service)
	fmt.Printf("  Cost:      %s %s\n", rec.Amount.Decimal(), rec.Currency)

	if evaluate {
		res, err := a.orchestrator.RunOrg(cmd.Context(), orgID)
		if err != nil {
			return fmt.Errorf("evaluate alerts: %w", err)
		}
		fmt.Printf("  Alerts:    %d triggered, %d cleared, %d errors\n", res.Triggered, res.Cleared, len(res.Errors))
	}
	return nil
}
