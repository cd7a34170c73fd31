//go:build !linux && !darwin

package ignore

import (
	"fmt"
	"os"
)

func dirIDFromFileInfo(info os.FileInfo) (DirID, error) {
	return DirID{}, fmt.Errorf("ignore: device/inode identification unsupported on this platform (%s)", info.Name())
}
