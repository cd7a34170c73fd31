//go:build linux || darwin

package ignore

import (
	"fmt"
	"os"
	"syscall"
)

func dirIDFromFileInfo(info os.FileInfo) (DirID, error) {
	stat, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return DirID{}, fmt.Errorf("ignore: unsupported FileInfo.Sys() type for %s", info.Name())
	}

	return DirID{DeviceID: uint64(stat.Dev), Inode: stat.Ino}, nil //nolint:unconvert // Dev is int32 on darwin, int64 on linux
}
