package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/duetlabs/pairsync/internal/utils"
	"github.com/duetlabs/pairsync/pkg/storage"
)

var changesCmd = &cobra.Command{
	Use:   "changes",
	Short: "Show recent partner activity changes (default 50)",
	RunE: func(cmd *cobra.Command, _ []string) error {
		dbPath, _ := cmd.Flags().GetString("dbpath")
		limit, _ := cmd.Flags().GetInt("limit")
		since, _ := cmd.Flags().GetString("since")

		absPath, err := utils.GetAbsDBPath(dbPath)
		if err != nil {
			return err
		}
		if _, err := os.Stat(absPath); err != nil {
			return fmt.Errorf("database not found: %s", absPath)
		}
		db, err := storage.Open(absPath)
		if err != nil {
			return err
		}
		defer db.Close()

		var entries []storage.JournalEntry
		if since != "" {
			t, err := time.Parse(time.RFC3339, since)
			if err != nil {
				return fmt.Errorf("invalid --since timestamp, want RFC3339: %w", err)
			}
			entries, err = db.ChangesSince(context.Background(), t, limit)
			if err != nil {
				return err
			}
		} else {
			entries, err = db.ListRecentChanges(context.Background(), limit)
			if err != nil {
				return err
			}
		}

		for _, e := range entries {
			ts := e.OccurredAt.Format("2006-01-02 15:04:05")
			fmt.Printf("%s  %-7s  %s\n", ts, e.ChangeType, e.ResourceKey)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(changesCmd)
	changesCmd.Flags().String("dbpath", "", "Path to SQLite DB file (default: ~/.config/pairsync/pairsync.sqlite)")
	changesCmd.Flags().Int("limit", 50, "Maximum number of changes to print")
	changesCmd.Flags().String("since", "", "Only print changes since this RFC3339 timestamp")
}
