package main

import (
	"github.com/spf13/cobra"

	"github.com/ashureev/coursegpt-sync/internal/domain"
)

var chatsUserID string

// chatsCmd fetches a user's chats, backfilling missing titles.
var chatsCmd = &cobra.Command{
	Use:   "chats",
	Short: "Fetch a user's chats and print them as JSON",
	Long: `Fetches every chat of the user. Chats without a title get one generated
by the server first, one at a time.`,
	RunE: runChats,
}

func init() {
	chatsCmd.Flags().StringVar(&chatsUserID, "user", "", "user id")
	_ = chatsCmd.MarkFlagRequired("user")
}

func runChats(cmd *cobra.Command, _ []string) error {
	sess, err := newSession(cfg)
	if err != nil {
		return err
	}
	if err := sess.SignIn(domain.User{ID: chatsUserID}); err != nil {
		return err
	}
	chats, err := sess.FetchUserChats(cmd.Context())
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), map[string]any{"chats": chats})
}
