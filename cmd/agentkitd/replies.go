package main

import (
	"encoding/json"
	"errors"

	"github.com/spf13/cobra"
)

var repliesLimit int

// repliesCmd 打印最近的回复记录。
var repliesCmd = &cobra.Command{
	Use:   "replies",
	Short: "Print recent reply outcomes",
	Args:  cobra.NoArgs,
	RunE:  runReplies,
}

func init() {
	repliesCmd.Flags().IntVarP(&repliesLimit, "limit", "n", 20, "Number of outcomes to print")
}

func runReplies(cmd *cobra.Command, _ []string) (err error) {
	a, err := loadApp("")
	if err != nil {
		return err
	}
	defer func() { err = errors.Join(err, a.Close()) }()

	store, err := a.replyStore(cmd.Context())
	if err != nil {
		return err
	}
	records, err := store.ListLatest(cmd.Context(), repliesLimit)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(records)
}
