package cli

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ogulcanaydogan/pulse/pkg/model"
)

var orgsCmd = &cobra.Command{
	Use:   "orgs",
	Short: "Manage organizations, members and webhooks",
}

var orgsAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Create an organization",
	RunE:  runOrgsAdd,
}

var orgsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List organizations",
	RunE:  runOrgsList,
}

var membersCmd = &cobra.Command{
	Use:   "members",
	Short: "Manage organization members",
}

var membersAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add or update a member",
	RunE:  runMembersAdd,
}

var webhooksCmd = &cobra.Command{
	Use:   "webhooks",
	Short: "Manage outbound webhooks",
}

var webhooksAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Register a signed webhook endpoint",
	RunE:  runWebhooksAdd,
}

func init() {
	rootCmd.AddCommand(orgsCmd)
	orgsCmd.AddCommand(orgsAddCmd, orgsListCmd, membersCmd, webhooksCmd)
	membersCmd.AddCommand(membersAddCmd)
	webhooksCmd.AddCommand(webhooksAddCmd)

	orgsAddCmd.Flags().StringP("name", "n", "", "Organization name")
	orgsAddCmd.Flags().String("monthly-budget", "", "Monthly budget in EUR, alerts when month-to-date spend reaches it")
	orgsAddCmd.Flags().String("telegram-token", "", "Telegram bot token")
	orgsAddCmd.Flags().String("telegram-chat", "", "Telegram chat id")
	_ = orgsAddCmd.MarkFlagRequired("name")

	membersAddCmd.Flags().String("org", "", "Organization id")
	membersAddCmd.Flags().String("user", "", "User id")
	membersAddCmd.Flags().String("email", "", "Email address")
	membersAddCmd.Flags().String("role", string(model.RoleMember), "Role (admin, finance, manager, member)")
	membersAddCmd.Flags().Bool("inactive", false, "Add the member as inactive")
	_ = membersAddCmd.MarkFlagRequired("org")
	_ = membersAddCmd.MarkFlagRequired("user")

	webhooksAddCmd.Flags().String("org", "", "Organization id")
	webhooksAddCmd.Flags().String("url", "", "Endpoint URL")
	webhooksAddCmd.Flags().String("secret", "", "HMAC signing secret")
	webhooksAddCmd.Flags().StringSlice("events", []string{model.EventAlertTriggered}, "Subscribed events")
	_ = webhooksAddCmd.MarkFlagRequired("org")
	_ = webhooksAddCmd.MarkFlagRequired("url")
}

func runOrgsAdd(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := initStorage(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	name, _ := cmd.Flags().GetString("name")
	budget, _ := cmd.Flags().GetString("monthly-budget")
	token, _ := cmd.Flags().GetString("telegram-token")
	chat, _ := cmd.Flags().GetString("telegram-chat")

	org := &model.Organization{Name: name, TelegramBotToken: token, TelegramChatID: chat}
	if budget != "" {
		b, err := model.ParseMicros(budget)
		if err != nil {
			return fmt.Errorf("monthly budget: %w", err)
		}
		org.MonthlyBudget = &b
	}
	if err := store.CreateOrganization(cmd.Context(), org); err != nil {
		return fmt.Errorf("create organization: %w", err)
	}

	fmt.Printf("Organization created: %s (%s)\n", org.Name, org.ID)
	return nil
}

func runOrgsList(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := initStorage(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	orgs, err := store.ListOrganizations(cmd.Context())
	if err != nil {
		return fmt.Errorf("list organizations: %w", err)
	}
	if len(orgs) == 0 {
		fmt.Println("No organizations. Create one with 'pulse orgs add'.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "ID\tNAME\tMONTHLY BUDGET\tTELEGRAM\n")
	for _, o := range orgs {
		budget := "-"
		if o.MonthlyBudget != nil {
			budget = o.MonthlyBudget.String() + " EUR"
		}
		telegram := "no"
		if o.TelegramConfigured() {
			telegram = "yes"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", o.ID, o.Name, budget, telegram)
	}
	w.Flush()
	return nil
}

func runMembersAdd(cmd *cobra.Command, _ []string) error {
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
	userID, _ := cmd.Flags().GetString("user")
	email, _ := cmd.Flags().GetString("email")
	role, _ := cmd.Flags().GetString("role")
	inactive, _ := cmd.Flags().GetBool("inactive")

	m := &model.Member{
		OrgID:  orgID,
		UserID: userID,
		Email:  strings.TrimSpace(email),
		Role:   model.Role(strings.ToLower(role)),
		Active: !inactive,
	}
	if !m.Role.Valid() {
		return fmt.Errorf("invalid role %q", role)
	}
	if err := store.UpsertMember(cmd.Context(), m); err != nil {
		return fmt.Errorf("add member: %w", err)
	}

	fmt.Printf("Member %s is %s of %s\n", m.UserID, m.Role, m.OrgID)
	return nil
}

func runWebhooksAdd(cmd *cobra.Command, _ []string) error {
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
	url, _ := cmd.Flags().GetString("url")
	secret, _ := cmd.Flags().GetString("secret")
	events, _ := cmd.Flags().GetStringSlice("events")

	ep := &model.WebhookEndpoint{OrgID: orgID, URL: url, Secret: secret, Events: events, Active: true}
	if err := store.AddWebhookEndpoint(cmd.Context(), ep); err != nil {
		return fmt.Errorf("add webhook: %w", err)
	}

	fmt.Printf("Webhook registered: %s -> %s (%s)\n", ep.ID, ep.URL, strings.Join(ep.Events, ","))
	return nil
}
