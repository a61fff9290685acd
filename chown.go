//go:build !linux

package logrollx

import (
	"os"
)

// chown 在非 Linux 系统下不做任何处理。
func chown(_ string, _ os.FileInfo) error {
	return nil
}
