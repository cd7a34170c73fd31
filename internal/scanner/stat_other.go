//go:build !linux && !darwin

package scanner

import (
	"fmt"
	"os"
)

func inodeAndDevice(info os.FileInfo) (inode, device uint64, err error) {
	return 0, 0, fmt.Errorf("scanner: device/inode identification unsupported on this platform (%s)", info.Name())
}
