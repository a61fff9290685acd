//go:build unix

package logrollx

import (
	"errors"

	"golang.org/x/sys/unix"
)

// isCrossDevice 报告重命名是否因跨文件系统而失败
func isCrossDevice(err error) bool {
	return errors.Is(err, unix.EXDEV)
}
