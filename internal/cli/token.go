package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ogulcanaydogan/pulse/internal/session"
	"github.com/ogulcanaydogan/pulse/pkg/storage"
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Manage API session tokens",
}

var tokenIssueCmd = &cobra.Command{
	Use:   "issue",
	Short: "Issue a session token for a member",
	RunE:  runTokenIssue,
}

func init() {
	rootCmd.AddCommand(tokenCmd)
	tokenCmd.AddCommand(tokenIssueCmd)

	tokenIssueCmd.Flags().String("org", "", "Organization id")
	tokenIssueCmd.Flags().String("user", "", "User id")
	_ = tokenIssueCmd.MarkFlagRequired("org")
	_ = tokenIssueCmd.MarkFlagRequired("user")
}

func runTokenIssue(cmd *cobra.Command, _ []string) error {
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

	if _, err := store.GetMember(cmd.Context(), orgID, userID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("%s is not a member of %s", userID, orgID)
		}
		return err
	}

	token, err := session.NewManager(cfg.Session.Secret, cfg.Session.TTL, nil).Issue(userID, orgID)
	if err != nil {
		return fmt.Errorf("issue token: %w", err)
	}
	fmt.Println(token)
	return nil
}
