package main

import (
	"fmt"
	"net/url"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/vigneshbarani24/kiro-aws-SAP-Resurrector-sub000/internal/domain"
)

type cliOptions struct {
	apiAddress     string
	timeoutSeconds int
	jsonOutput     bool
	logger         *zap.Logger
}

func newRootCommand() *cobra.Command {
	opts := cliOptions{
		apiAddress:     "http://" + domain.DefaultStatusListenAddress,
		timeoutSeconds: 30,
		logger:         zap.NewNop(),
	}

	root := &cobra.Command{
		Use:   "resurrectctl",
		Short: "CLI client for the resurrectd status API",
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			applyRootFlagBindings(cmd, &opts)
			return validateAddressFlag(&opts)
		},
		PersistentPostRun: func(_ *cobra.Command, _ []string) {
			_ = opts.logger.Sync()
		},
	}

	root.PersistentFlags().StringVar(&opts.apiAddress, "addr", opts.apiAddress, "base URL of the daemon status API")
	root.PersistentFlags().IntVar(&opts.timeoutSeconds, "timeout", opts.timeoutSeconds, "request timeout in seconds")
	root.PersistentFlags().BoolVar(&opts.jsonOutput, "json", false, "output JSON")

	root.AddCommand(
		newJobsCmd(&opts),
		newStatusCmd(&opts),
		newHealthCmd(&opts),
		newHooksCmd(&opts),
	)

	return root
}

func applyRootFlagBindings(cmd *cobra.Command, opts *cliOptions) {
	flags := cmd.Flags()
	flags.Visit(func(f *pflag.Flag) {
		switch f.Name {
		case "addr":
			opts.apiAddress, _ = flags.GetString("addr")
		case "timeout":
			opts.timeoutSeconds, _ = flags.GetInt("timeout")
		case "json":
			opts.jsonOutput, _ = flags.GetBool("json")
		}
	})
}

func validateAddressFlag(opts *cliOptions) error {
	parsed, err := url.Parse(opts.apiAddress)
	if err != nil {
		return fmt.Errorf("invalid --addr: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("invalid --addr %q: scheme must be http or https", opts.apiAddress)
	}
	if opts.timeoutSeconds <= 0 {
		return fmt.Errorf("--timeout must be positive")
	}
	return nil
}
