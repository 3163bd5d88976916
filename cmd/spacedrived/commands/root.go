// Package commands builds the spacedrived cobra command tree. It mirrors
// the shape of cmd/linear-fuse/commands/root.go — one constructor function
// assembling a root command and its children — but returns a fresh tree
// per call instead of registering subcommands against a package-level
// rootCmd in init(), and reads configuration through internal/config
// rather than viper.
package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/spacedriveapp/spacedrive-sub011/internal/actions"
	"github.com/spacedriveapp/spacedrive-sub011/internal/config"
	"github.com/spacedriveapp/spacedrive-sub011/internal/core"
	"github.com/spacedriveapp/spacedrive-sub011/internal/logging"
)

// fullAccessSession is the capability set a local daemon operator has
// when driving spacedrived from its own CLI. There is no multi-tenant
// remote caller in this binary, so every flag is granted up front rather
// than threaded through per-command flags.
func fullAccessSession() actions.Session {
	return actions.NewSession(
		actions.CoreReadStatus, actions.CoreManageLibraries, actions.CoreModifySettings,
		actions.LibraryRead, actions.LibraryWrite, actions.LibraryDelete,
		actions.LibraryManageLocations, actions.LibrarySearch, actions.LibraryIndex,
		actions.NetworkPair, actions.NetworkSend,
		actions.JobsList, actions.JobsPauseResume, actions.JobsCancel,
	)
}

// NewRootCommand builds the spacedrived command tree.
func NewRootCommand() *cobra.Command {
	var libraryID string

	root := &cobra.Command{
		Use:   "spacedrived",
		Short: "Run the Spacedrive library daemon",
		Long: `spacedrived indexes, watches, and synchronizes one library's
files across devices. Most subcommands open the library configured by
SPACEDRIVE_LIBRARY_DIR (or ~/.spacedrive) and dispatch one action or
query against it.`,
	}
	root.PersistentFlags().StringVar(&libraryID, "library-id", "default", "library identifier used for eventbus/sync scoping")

	openCore := func() (*core.Core, error) {
		cfg, err := config.Load()
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
		logging.Init(logging.Config{Level: logging.Level(cfg.Log.Level), JSONOutput: cfg.Log.JSONOutput})
		return core.New(cfg, libraryID)
	}

	root.AddCommand(newRunCommand(openCore))
	root.AddCommand(newLocationsCommand(openCore))
	root.AddCommand(newJobsCommand(openCore))

	return root
}
