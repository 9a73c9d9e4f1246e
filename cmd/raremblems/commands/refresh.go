package commands

import (
	"encoding/json"
	"raremblems/internal/telemetry"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(refreshCmd)
}

var refreshCmd = &cobra.Command{
	Use:   "refresh <refresh token>",
	Short: "Exchange a refresh token for a new session and print it as JSON.",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		err := runRefresh(cmd, args[0])
		if err != nil {
			fatal("failed to refresh session", err)
		}
	},
}

func runRefresh(cmd *cobra.Command, refreshToken string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	gateway, err := newGateway(cfg, telemetry.SlogAPI{})
	if err != nil {
		return err
	}

	token, err := gateway.RefreshSession(cmd.Context(), refreshToken)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(token)
}
