package cmd

import (
	"encoding/json"
	"time"

	"github.com/spf13/cobra"

	"github.com/sbomtools/sbomdiff/common"
	"github.com/sbomtools/sbomdiff/journal"
	"github.com/sbomtools/sbomdiff/pretty"
)

var journalCmd = &cobra.Command{
	Use:   "journal",
	Short: "List recorded comparison runs.",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		events, err := journal.Events()
		pretty.Guard(err == nil, 3, "Failed to read journal: %v", err)

		if jsonFlag {
			nice, err := json.MarshalIndent(events, "", "  ")
			pretty.Guard(err == nil, 3, "%v", err)
			common.Stdout("%s\n", nice)
		} else {
			for _, event := range events {
				when := time.Unix(event.When, 0).Format("2006-01-02 15:04:05")
				common.Log("%s  %-10s %-10s %s", when, event.Kind, event.Event, event.Detail)
			}
		}
		pretty.Ok()
	},
}

func init() {
	rootCmd.AddCommand(journalCmd)
}
