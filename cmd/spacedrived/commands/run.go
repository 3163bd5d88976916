package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/spacedriveapp/spacedrive-sub011/internal/core"
	"github.com/spacedriveapp/spacedrive-sub011/internal/logging"
)

// newRunCommand builds the "run" subcommand: it opens the library, starts
// the background listeners, and blocks until Ctrl+C or SIGTERM, the way
// cmd/linear-fuse's mount command blocks on a signal channel before
// unmounting.
func newRunCommand(openCore func() (*core.Core, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Start the daemon and block until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := openCore()
			if err != nil {
				return fmt.Errorf("open library: %w", err)
			}
			log := logging.WithComponent("spacedrived")

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()
			c.Start(ctx)
			log.Info().Msg("daemon started, press Ctrl+C to stop")

			sigChan := make(chan os.Signal, 1)
			signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
			<-sigChan

			log.Info().Msg("shutting down")
			cancel()
			if err := c.Close(); err != nil {
				return fmt.Errorf("close library: %w", err)
			}
			return nil
		},
	}
}
