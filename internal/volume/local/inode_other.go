//go:build windows

package local

import "os"

// inodeOf reports no inode on Windows, per spec §4.1: "Windows may report
// none... callers must not require it for correctness, only for
// optimization (move detection)".
func inodeOf(info os.FileInfo) *uint64 {
	return nil
}
