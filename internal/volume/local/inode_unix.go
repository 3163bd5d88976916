//go:build !windows

package local

import (
	"os"
	"syscall"
)

// inodeOf extracts the inode number on POSIX platforms. Returns nil if the
// underlying Sys() value isn't a *syscall.Stat_t (e.g. some virtual/overlay
// filesystems), matching spec §4.1's "Inode is optional" contract.
func inodeOf(info os.FileInfo) *uint64 {
	stat, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return nil
	}
	ino := uint64(stat.Ino)
	return &ino
}
