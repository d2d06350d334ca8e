package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/vigneshbarani24/kiro-aws-SAP-Resurrector-sub000/internal/domain"
)

type submitArgs struct {
	bundle     string
	sourcePath string
	target     string
	options    map[string]string
	watch      bool
}

func newJobsCmd(opts *cliOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Manage resurrection jobs",
	}

	cmd.AddCommand(
		newJobsSubmitCmd(opts),
		newJobsListCmd(opts),
		newJobsGetCmd(opts),
		newJobsCancelCmd(opts),
		newJobsWatchCmd(opts),
	)
	return cmd
}

func newJobsSubmitCmd(opts *cliOptions) *cobra.Command {
	args := submitArgs{
		target: "go",
	}

	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Submit a legacy bundle for resurrection",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if args.bundle == "" {
				return fmt.Errorf("--bundle is required")
			}
			if args.sourcePath == "" {
				return fmt.Errorf("--source-file is required")
			}

			source, err := os.ReadFile(args.sourcePath)
			if err != nil {
				return fmt.Errorf("read source: %w", err)
			}

			client := newAPIClient(opts)
			var job domain.Job
			input := domain.PipelineInput{
				BundleName:   args.bundle,
				LegacySource: string(source),
				TargetStack:  args.target,
				Options:      args.options,
			}
			if err := client.postJSON(cmd.Context(), "/api/jobs", input, &job); err != nil {
				return err
			}

			if !args.watch {
				return printJob(job, opts.jsonOutput)
			}
			fmt.Printf("submitted %s\n", job.ID)
			return followJob(cmd.Context(), client, job.ID, opts.jsonOutput)
		},
	}

	cmd.Flags().StringVar(&args.bundle, "bundle", "", "name of the legacy bundle")
	cmd.Flags().StringVar(&args.sourcePath, "source-file", "", "path to the legacy source file")
	cmd.Flags().StringVar(&args.target, "target", args.target, "target stack for generated code")
	cmd.Flags().StringToStringVar(&args.options, "option", nil, "pipeline option as key=value (repeatable)")
	cmd.Flags().BoolVar(&args.watch, "watch", false, "follow progress until the job finishes")

	return cmd
}

func newJobsListCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List jobs",
		RunE: func(cmd *cobra.Command, _ []string) error {
			client := newAPIClient(opts)
			var payload jobListPayload
			if err := client.getJSON(cmd.Context(), "/api/jobs", &payload); err != nil {
				return err
			}
			return printJobs(payload.Jobs, opts.jsonOutput)
		},
	}
}

func newJobsGetCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "get <job-id>",
		Short: "Show one job with its stage log",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := newAPIClient(opts)
			var payload jobDetailPayload
			if err := client.getJSON(cmd.Context(), "/api/jobs/"+args[0], &payload); err != nil {
				return err
			}
			return printJobDetail(payload, opts.jsonOutput)
		},
	}
}

func newJobsCancelCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <job-id>",
		Short: "Request cancellation of a running job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := newAPIClient(opts)
			var payload cancelPayload
			if err := client.postJSON(cmd.Context(), "/api/jobs/"+args[0]+"/cancel", nil, &payload); err != nil {
				return err
			}
			if opts.jsonOutput {
				return writeJSON(payload)
			}
			fmt.Printf("%s %s\n", payload.ID, payload.Status)
			return nil
		},
	}
}

func newJobsWatchCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "watch <job-id>",
		Short: "Follow a job's progress events until it finishes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := newAPIClient(opts)
			return followJob(cmd.Context(), client, args[0], opts.jsonOutput)
		},
	}
}

// followJob prints progress frames until the daemon closes the stream, then
// turns a failed job into a nonzero exit.
func followJob(ctx context.Context, client *apiClient, jobID string, jsonOutput bool) error {
	var last domain.ProgressEvent
	err := client.streamEvents(ctx, jobID, func(name string, data json.RawMessage) error {
		var event domain.ProgressEvent
		if err := json.Unmarshal(data, &event); err != nil {
			return err
		}
		last = event
		return printEvent(name, event, data, jsonOutput)
	})
	if err != nil {
		return err
	}
	if last.Status == domain.JobFailed {
		return exitWithf(1, "job %s failed: %s", jobID, last.Message)
	}
	return nil
}
