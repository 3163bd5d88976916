package commands

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/spacedriveapp/spacedrive-sub011/internal/actions"
	"github.com/spacedriveapp/spacedrive-sub011/internal/core"
	"github.com/spacedriveapp/spacedrive-sub011/internal/entrystore"
	"github.com/spacedriveapp/spacedrive-sub011/internal/indexer"
	"github.com/spacedriveapp/spacedrive-sub011/internal/volume/local"
)

// newLocationsCommand groups location management subcommands, dispatching
// each through core.Actions rather than calling entrystore directly — this
// keeps the CLI on the same permission-checked path any other caller
// (network peer, future GUI) would use.
func newLocationsCommand(openCore func() (*core.Core, error)) *cobra.Command {
	group := &cobra.Command{
		Use:   "locations",
		Short: "Manage indexed locations",
	}

	var deviceID, displayName string
	add := &cobra.Command{
		Use:   "add [path]",
		Short: "Register a new location and run an initial index",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root := args[0]
			c, err := openCore()
			if err != nil {
				return err
			}
			defer c.Close()
			ctx := cmd.Context()

			loc := entrystore.Location{
				UUID:        uuid.NewString(),
				DeviceID:    deviceID,
				DisplayName: displayName,
			}
			out, err := c.Actions.Dispatch(ctx, fullAccessSession(), "library.add_location", actions.AddLocationArgs{Location: loc})
			if err != nil {
				return fmt.Errorf("add location: %w", err)
			}
			locationID := out.(int64)

			backend := local.New(root)
			jobID := c.IndexLocation(ctx, backend, locationID, ".", indexer.ModeContent)
			if err := c.JobManager.Wait(jobID); err != nil {
				return fmt.Errorf("index location: %w", err)
			}
			fmt.Printf("location %d registered and indexed (job %s)\n", locationID, jobID)
			return nil
		},
	}
	add.Flags().StringVar(&deviceID, "device-id", "local", "device id this location belongs to")
	add.Flags().StringVar(&displayName, "name", "", "display name for the location")

	list := &cobra.Command{
		Use:   "list",
		Short: "List registered locations",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := openCore()
			if err != nil {
				return err
			}
			defer c.Close()
			out, err := c.Actions.DispatchQuery(cmd.Context(), fullAccessSession(), "library.list_locations", nil)
			if err != nil {
				return fmt.Errorf("list locations: %w", err)
			}
			for _, loc := range out.([]entrystore.Location) {
				fmt.Printf("%d\t%s\t%s\n", loc.ID, loc.UUID, loc.DisplayName)
			}
			return nil
		},
	}

	var removeID int64
	remove := &cobra.Command{
		Use:   "remove",
		Short: "Unregister a location",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := openCore()
			if err != nil {
				return err
			}
			defer c.Close()
			if _, err := c.Actions.Dispatch(cmd.Context(), fullAccessSession(), "library.remove_location", actions.RemoveLocationArgs{LocationID: removeID}); err != nil {
				return fmt.Errorf("remove location: %w", err)
			}
			return nil
		},
	}
	remove.Flags().Int64Var(&removeID, "id", 0, "location id to remove")

	group.AddCommand(add, list, remove)
	return group
}
