//go:build windows

package logrollx

import (
	"errors"

	"golang.org/x/sys/windows"
)

// isCrossDevice 报告重命名是否因跨卷而失败
func isCrossDevice(err error) bool {
	return errors.Is(err, windows.ERROR_NOT_SAME_DEVICE)
}
