package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/blnkfinance/hub/config"
)

// redacted replaces a secret with a fixed marker, leaving empty values empty.
func redacted(s string) string {
	if s == "" {
		return ""
	}
	return "********"
}

// printableConfig copies cnf with credentials masked.
func printableConfig(cnf *config.Configuration) config.Configuration {
	out := *cnf
	out.Server.SecretKey = redacted(out.Server.SecretKey)
	out.Archive.AccessKeyId = redacted(out.Archive.AccessKeyId)
	out.Archive.SecretAccessKey = redacted(out.Archive.SecretAccessKey)
	out.Telemetry.PosthogKey = redacted(out.Telemetry.PosthogKey)
	return out
}

func configCommands() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "config outputs your instance's computed configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Fetch()
			if err != nil {
				return fmt.Errorf("error getting config: %w", err)
			}

			data, err := json.MarshalIndent(printableConfig(cfg), "", "    ")
			if err != nil {
				return fmt.Errorf("error printing config: %w", err)
			}

			fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return nil
		},
	}
	return cmd
}
