package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newHooksCmd(opts *cliOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "hooks",
		Short: "Inspect and toggle hook rules",
	}

	cmd.AddCommand(
		newHooksListCmd(opts),
		newHooksToggleCmd(opts, "enable", "Enable a hook rule"),
		newHooksToggleCmd(opts, "disable", "Disable a hook rule until the next rules reload"),
	)
	return cmd
}

func newHooksListCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List loaded hook rules",
		RunE: func(cmd *cobra.Command, _ []string) error {
			client := newAPIClient(opts)
			var payload hookListPayload
			if err := client.getJSON(cmd.Context(), "/api/hooks", &payload); err != nil {
				return err
			}
			return printHooks(payload.Hooks, opts.jsonOutput)
		},
	}
}

func newHooksToggleCmd(opts *cliOptions, verb, short string) *cobra.Command {
	return &cobra.Command{
		Use:   verb + " <hook-name>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := newAPIClient(opts)
			var payload hookTogglePayload
			path := "/api/hooks/" + args[0] + "/" + verb
			if err := client.postJSON(cmd.Context(), path, nil, &payload); err != nil {
				return err
			}
			if opts.jsonOutput {
				return writeJSON(payload)
			}
			fmt.Printf("%s enabled=%t\n", payload.Name, payload.Enabled)
			return nil
		},
	}
}
