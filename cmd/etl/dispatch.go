package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/leo-cloudarbitration/functions/internal/dispatch"
)

type dispatchOptions struct {
	schedule string
	repo     string
	lock     string
	events   string
	gh       string
}

func newDispatchCmd(root *rootOptions) *cobra.Command {
	opts := &dispatchOptions{}
	cmd := &cobra.Command{
		Use:   "dispatch",
		Short: "Trigger the workflows due at the current UTC minute",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if _, _, err := setup(root, "dispatch"); err != nil {
				return err
			}
			if opts.repo == "" {
				opts.repo = os.Getenv("GITHUB_REPOSITORY")
			}
			if opts.repo == "" {
				return fmt.Errorf("--repo or GITHUB_REPOSITORY is required")
			}

			entries, err := dispatch.LoadSchedule(opts.schedule)
			if err != nil {
				return err
			}

			events, err := os.OpenFile(opts.events, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
			if err != nil {
				return fmt.Errorf("open event log: %w", err)
			}
			defer events.Close()

			d := dispatch.New(dispatch.GHTrigger{Repo: opts.repo, Binary: opts.gh}, opts.lock, events)
			summary, err := d.Run(cmd.Context(), entries)
			if err != nil {
				return err
			}
			if summary.Locked {
				fmt.Fprintln(cmd.OutOrStdout(), "dispatcher already running")
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "triggered %d, failed %d\n", len(summary.Triggered), len(summary.Failed))
			return nil
		},
	}
	cmd.Flags().StringVar(&opts.schedule, "config", "schedule_config.json", "schedule file")
	cmd.Flags().StringVar(&opts.repo, "repo", "", "owner/name of the repository (default: GITHUB_REPOSITORY)")
	cmd.Flags().StringVar(&opts.lock, "lock", "/tmp/etl-dispatch.lock", "lock file")
	cmd.Flags().StringVar(&opts.events, "events", "scheduler_events.log", "JSON-lines event log")
	cmd.Flags().StringVar(&opts.gh, "gh", "gh", "gh binary")
	return cmd
}
