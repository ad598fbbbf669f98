package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/duetlabs/pairsync/internal/utils"
	"github.com/duetlabs/pairsync/pkg/storage"
)

var flagsCmd = &cobra.Command{
	Use:   "flags",
	Short: "List activity sessions with results pending",
	RunE: func(cmd *cobra.Command, _ []string) error {
		db, err := openFlagsDB(cmd)
		if err != nil {
			return err
		}
		defer db.Close()

		stored, err := db.ListFlags(context.Background())
		if err != nil {
			return err
		}
		if len(stored) == 0 {
			fmt.Println("No results pending.")
			return nil
		}
		for _, f := range stored {
			fmt.Printf("⏳ %s  session %s  since %s\n",
				f.ActivityType, f.SessionID, f.SetAt.Format("2006-01-02 15:04:05"))
		}
		return nil
	},
}

// flagsClearCmd implements: pairsync flags clear <activityType> <sessionId>
//
// The results view is the canonical clearing call site; this command exists
// for recovering from abandoned sessions.
var flagsClearCmd = &cobra.Command{
	Use:   "clear <activityType> <sessionId>",
	Short: "Clear the pending flag for one activity session",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openFlagsDB(cmd)
		if err != nil {
			return err
		}
		defer db.Close()

		if err := db.DeleteFlag(context.Background(), args[0], args[1]); err != nil {
			return err
		}
		fmt.Printf("Cleared %s/%s\n", args[0], args[1])
		return nil
	},
}

func openFlagsDB(cmd *cobra.Command) (*storage.DB, error) {
	dbPath, _ := cmd.Flags().GetString("dbpath")
	absPath, err := utils.GetAbsDBPath(dbPath)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(absPath); err != nil {
		return nil, fmt.Errorf("database not found: %s", absPath)
	}
	return storage.Open(absPath)
}

func init() {
	rootCmd.AddCommand(flagsCmd)
	flagsCmd.AddCommand(flagsClearCmd)
	flagsCmd.PersistentFlags().String("dbpath", "", "Path to SQLite DB file (default: ~/.config/pairsync/pairsync.sqlite)")
}
