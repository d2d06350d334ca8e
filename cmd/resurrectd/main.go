package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/vigneshbarani24/kiro-aws-SAP-Resurrector-sub000/internal/app"
	"github.com/vigneshbarani24/kiro-aws-SAP-Resurrector-sub000/internal/domain"
)

type serveOptions struct {
	configPath string
}

type runOptions struct {
	bundle     string
	sourcePath string
	target     string
	options    map[string]string
}

// runReport is the run subcommand's stdout payload.
type runReport struct {
	Job      domain.Job             `json:"job"`
	StageLog []domain.StageLogEntry `json:"stageLog"`
}

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()

	root := newRootCmd(logger)
	if err := root.Execute(); err != nil {
		logger.Fatal("command failed", zap.Error(err))
	}
}

func newRootCmd(logger *zap.Logger) *cobra.Command {
	opts := serveOptions{
		configPath: "config.yaml",
	}

	root := &cobra.Command{
		Use:   "resurrectd",
		Short: "Legacy code resurrection pipeline daemon",
	}

	root.PersistentFlags().StringVar(&opts.configPath, "config", opts.configPath, "path to daemon config file")

	root.AddCommand(
		newServeCmd(logger, &opts),
		newRunCmd(logger),
		newValidateCmd(logger, &opts),
	)

	return root
}

func newServeCmd(logger *zap.Logger, opts *serveOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the resurrection daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalAwareContext(cmd.Context())
			defer cancel()

			application := app.New(logger)
			return application.Serve(ctx, app.ServeConfig{
				ConfigPath: opts.configPath,
			})
		},
	}

	return cmd
}

func newRunCmd(logger *zap.Logger) *cobra.Command {
	opts := runOptions{
		target: "go",
	}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one job in-process against the built-in simulation providers",
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.bundle == "" {
				return fmt.Errorf("--bundle is required")
			}
			if opts.sourcePath == "" {
				return fmt.Errorf("--source-file is required")
			}

			ctx, cancel := signalAwareContext(cmd.Context())
			defer cancel()

			source, err := os.ReadFile(opts.sourcePath)
			if err != nil {
				return fmt.Errorf("read source: %w", err)
			}

			application := app.New(logger)
			job, stageLog, err := application.Run(ctx, app.RunConfig{
				Input: domain.PipelineInput{
					BundleName:   opts.bundle,
					LegacySource: string(source),
					TargetStack:  opts.target,
					Options:      opts.options,
				},
			})
			if err != nil {
				return err
			}

			out, err := json.MarshalIndent(runReport{Job: job, StageLog: stageLog}, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))

			if job.Status != domain.JobCompleted {
				return fmt.Errorf("job %s ended %s: %s", job.ID, job.Status, job.ErrorMessage)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.bundle, "bundle", "", "name of the legacy bundle")
	cmd.Flags().StringVar(&opts.sourcePath, "source-file", "", "path to the legacy source file")
	cmd.Flags().StringVar(&opts.target, "target", opts.target, "target stack for generated code")
	cmd.Flags().StringToStringVar(&opts.options, "option", nil, "pipeline option as key=value (repeatable)")

	return cmd
}

func newValidateCmd(logger *zap.Logger, opts *serveOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate daemon configuration and hook rules without starting anything",
		RunE: func(cmd *cobra.Command, args []string) error {
			application := app.New(logger)
			return application.Validate(cmd.Context(), app.ValidateConfig{
				ConfigPath: opts.configPath,
			})
		},
	}

	return cmd
}

func signalAwareContext(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		defer signal.Stop(signals)
		select {
		case <-signals:
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, cancel
}
