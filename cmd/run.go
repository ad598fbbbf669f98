package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/duetlabs/pairsync/internal/utils"
	"github.com/duetlabs/pairsync/pkg/bus"
	"github.com/duetlabs/pairsync/pkg/engine"
	"github.com/duetlabs/pairsync/pkg/flags"
	"github.com/duetlabs/pairsync/pkg/scheduler"
	"github.com/duetlabs/pairsync/pkg/snapshot"
	"github.com/duetlabs/pairsync/pkg/storage"
	"github.com/duetlabs/pairsync/pkg/transport"
)

// runCmd implements: pairsync run
//
// Starts the sync engine against the configured API and streams change
// events until interrupted. Events are journaled to the local database and
// completion flags are derived from session-scoped changes.
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the sync engine and stream partner activity changes",
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) > 0 {
			return fmt.Errorf("unknown command: '%s'. See 'pairsync run --help'", args[0])
		}

		baseURL := viper.GetString("api.baseurl")
		token := viper.GetString("api.token")
		if baseURL == "" {
			return fmt.Errorf("api.baseurl not configured. Set it in ~/.pairsync.yaml")
		}

		proxy, _ := cmd.Flags().GetString("proxy")
		client, err := transport.NewClient(baseURL, token, proxy)
		if err != nil {
			return err
		}

		dbPath, _ := cmd.Flags().GetString("dbpath")
		if dbPath == "" {
			dbPath = viper.GetString("db.path")
		}
		absPath, err := utils.GetAbsDBPath(dbPath)
		if err != nil {
			return err
		}
		if err := os.MkdirAll(filepath.Dir(absPath), 0o755); err != nil {
			return err
		}
		lock, err := utils.NewDBLock(dbPath)
		if err != nil {
			return err
		}
		if err := lock.Lock(); err != nil {
			return err
		}
		defer lock.Unlock()

		db, err := storage.Open(absPath)
		if err != nil {
			return err
		}
		defer db.Close()

		ttl := time.Duration(viper.GetInt("flags.ttl_hours")) * time.Hour
		coord := flags.NewCoordinator(flags.WithStore(db), flags.WithTTL(ttl))
		detector := flags.NewDetector(coord, nil)

		b := bus.New()
		for _, topic := range []string{bus.TopicDailyQuests, bus.TopicSideQuests, bus.TopicLP, bus.TopicWelcome, bus.TopicLinkedGame} {
			b.Subscribe(topic, "", printEvent)
		}

		intervalSec, _ := cmd.Flags().GetInt("interval")
		if intervalSec <= 0 {
			intervalSec = viper.GetInt("poll.interval")
		}

		eng, err := engine.New(engine.Config{
			Fetcher:  client,
			Bus:      b,
			Journal:  db,
			Log:      utils.Log,
			OnEvent:  detector.Inspect,
			Interval: time.Duration(intervalSec) * time.Second,
		})
		if err != nil {
			return err
		}

		eng.Subscribe()
		defer eng.Unsubscribe()
		utils.Log.Infof("Polling %s every %ds. Ctrl-C to stop.", baseURL, intervalSec)

		stop := make(chan os.Signal, 1)
		signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

		staleness := time.NewTicker(30 * time.Second)
		defer staleness.Stop()

		for {
			select {
			case <-stop:
				fmt.Println()
				for _, f := range coord.Pending() {
					fmt.Printf("⏳ results pending: %s session %s (since %s)\n",
						f.ActivityType, f.SessionID, f.SetAt.Format("15:04:05"))
				}
				return nil
			case <-staleness.C:
				// Sustained failure surfaces as a passive staleness note,
				// never a blocking error.
				if eng.State() == scheduler.Error && !eng.LastSuccess().IsZero() {
					utils.Log.Warnf("Sync is stale: last updated %s ago",
						time.Since(eng.LastSuccess()).Round(time.Second))
				}
			}
		}
	},
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().String("dbpath", "", "Path to SQLite DB file (default: ~/.config/pairsync/pairsync.sqlite)")
	runCmd.Flags().Int("interval", 0, "Poll interval in seconds (default: poll.interval from config, 5)")
}

func printEvent(ev snapshot.ChangeEvent) {
	var emoji string
	switch ev.Type {
	case snapshot.Added:
		emoji = "🆕"
	case snapshot.Removed:
		emoji = "❌"
	case snapshot.Updated:
		emoji = "🔄"
	}
	fmt.Printf("%s  %s  %-7s  %s\n", time.Now().Format("15:04:05"), emoji, ev.Type, ev.Key)
}
