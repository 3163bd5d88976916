// Command spacedrived runs the library daemon: it owns one core.Core and
// exposes it through a small set of cobra subcommands that dispatch
// actions/queries by name, the way cmd/linear-fuse wraps a single client
// in subcommands. Unlike that command tree, spacedrived's root is not a
// package-level var and binds no viper config — internal/config already
// owns the on-disk config shape, so there is nothing left for viper to do.
package main

import (
	"fmt"
	"os"

	"github.com/spacedriveapp/spacedrive-sub011/cmd/spacedrived/commands"
)

func main() {
	if err := commands.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
