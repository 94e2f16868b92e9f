package main

import (
	"context"
	"fmt"
	"time"

	"curasure-chat/client"
	"curasure-chat/models"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(listCmd)
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent conversations",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		history := client.NewHTTPHistory(cfg.Client.APIBaseURL, cfg.Client.HistoryTimeout.Duration())
		summaries, err := history.Conversations(ctx, cfg.Client.ParticipantID)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if len(summaries) == 0 {
			fmt.Fprintln(out, "no conversations yet")
			return nil
		}
		for _, s := range summaries {
			m := s.LastMessage
			at := time.UnixMilli(m.Timestamp).Format("01-02 15:04")
			name := s.Peer
			if s.Type == models.ConversationGroup {
				name = "#" + s.GroupID
			}
			fmt.Fprintf(out, "%-20s %s  %s: %s\n", name, at, m.SenderID, m.Body)
		}
		return nil
	},
}
