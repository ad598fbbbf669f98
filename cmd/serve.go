package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/duetlabs/pairsync/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve a mock partner-state endpoint for local development",
	RunE: func(cmd *cobra.Command, args []string) error {
		listenAddr, _ := cmd.Flags().GetString("listen")
		statePath, _ := cmd.Flags().GetString("state")
		token, _ := cmd.Flags().GetString("token")
		if token == "" {
			token = viper.GetString("api.token")
		}

		srv := server.New(token)
		if statePath != "" {
			if err := srv.LoadState(statePath); err != nil {
				return err
			}
		}
		return srv.Start(listenAddr)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("listen", "127.0.0.1:7350", "HTTP listen address")
	serveCmd.Flags().String("state", "", "JSON file to seed the state document from")
	serveCmd.Flags().String("token", "", "Bearer token required from clients (default: api.token from config)")
}
