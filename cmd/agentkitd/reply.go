package main

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/spf13/cobra"

	"AgentKit/internal/config"
)

// replyCmd 对指定推文执行一次回复尝试。
var replyCmd = &cobra.Command{
	Use:   "reply <tweet-id> <text>",
	Short: "Reply to a single tweet once",
	Long: `Runs the analyze and compose steps on the given text and posts the
result as a reply to tweet-id. The outcome is printed as JSON; a failed
attempt is reported in the outcome and is not retried.`,
	Args: cobra.MinimumNArgs(2),
	RunE: runReply,
}

func runReply(cmd *cobra.Command, args []string) (err error) {
	a, err := loadApp(config.ModeBot)
	if err != nil {
		return err
	}
	defer func() { err = errors.Join(err, a.Close()) }()

	b, err := a.buildBot(cmd.Context(), false)
	if err != nil {
		return err
	}
	outcome := b.Respond(cmd.Context(), args[0], strings.Join(args[1:], " "))

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(outcome)
}
