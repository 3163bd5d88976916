package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/spacedriveapp/spacedrive-sub011/internal/actions"
	"github.com/spacedriveapp/spacedrive-sub011/internal/core"
	"github.com/spacedriveapp/spacedrive-sub011/internal/job"
)

// newJobsCommand groups job control subcommands (spec.md §4.10 jobs.*
// actions): list running/finished jobs and pause, resume or cancel one.
func newJobsCommand(openCore func() (*core.Core, error)) *cobra.Command {
	group := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect and control background jobs",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := openCore()
			if err != nil {
				return err
			}
			defer c.Close()
			out, err := c.Actions.DispatchQuery(cmd.Context(), fullAccessSession(), "jobs.list", actions.ListJobsArgs{})
			if err != nil {
				return fmt.Errorf("list jobs: %w", err)
			}
			for _, rec := range out.([]job.Record) {
				fmt.Printf("%s\t%s\t%s\n", rec.ID, rec.Name, rec.Status)
			}
			return nil
		},
	}

	jobIDCommand := func(use, short, actionName string) *cobra.Command {
		var jobID string
		cmd := &cobra.Command{
			Use:   use,
			Short: short,
			RunE: func(cmd *cobra.Command, args []string) error {
				c, err := openCore()
				if err != nil {
					return err
				}
				defer c.Close()
				if _, err := c.Actions.Dispatch(cmd.Context(), fullAccessSession(), actionName, actions.JobIDArgs{JobID: jobID}); err != nil {
					return fmt.Errorf("%s: %w", actionName, err)
				}
				return nil
			},
		}
		cmd.Flags().StringVar(&jobID, "id", "", "job id")
		return cmd
	}

	group.AddCommand(
		list,
		jobIDCommand("pause", "Pause a running job", "jobs.pause"),
		jobIDCommand("resume", "Resume a paused job", "jobs.resume"),
		jobIDCommand("cancel", "Cancel a job", "jobs.cancel"),
	)
	return group
}
