package main

import (
	"github.com/spf13/cobra"
)

func newStatusCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon status, capability servers and call counters",
		RunE: func(cmd *cobra.Command, _ []string) error {
			client := newAPIClient(opts)
			var payload statusPayload
			if err := client.getJSON(cmd.Context(), "/api/status", &payload); err != nil {
				return err
			}
			return printStatus(payload, opts.jsonOutput)
		},
	}
}

func newHealthCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check daemon health",
		RunE: func(cmd *cobra.Command, _ []string) error {
			client := newAPIClient(opts)
			payload, err := client.health(cmd.Context())
			if err != nil {
				return err
			}
			if err := printHealth(payload, opts.jsonOutput); err != nil {
				return err
			}
			if payload.Status != "ok" {
				return exitWithf(1, "daemon is %s", payload.Status)
			}
			return nil
		},
	}
}
