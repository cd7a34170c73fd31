//go:build linux || darwin

package scanner

import (
	"fmt"
	"os"
	"syscall"
)

func inodeAndDevice(info os.FileInfo) (inode, device uint64, err error) {
	stat, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return 0, 0, fmt.Errorf("scanner: unsupported FileInfo.Sys() type for %s", info.Name())
	}

	return stat.Ino, uint64(stat.Dev), nil //nolint:unconvert // Dev is int32 on darwin, uint64 on most linux targets
}
