//go:build windows

package logrollx

import (
	"math"
	"os"

	"golang.org/x/sys/windows"
)

// lockFile 对整个文件加独占锁，阻塞直到获得锁
func lockFile(f *os.File) error {
	ol := new(windows.Overlapped)
	return windows.LockFileEx(windows.Handle(f.Fd()), windows.LOCKFILE_EXCLUSIVE_LOCK, 0, math.MaxUint32, math.MaxUint32, ol)
}

// unlockFile 释放 lockFile 获得的锁
func unlockFile(f *os.File) error {
	ol := new(windows.Overlapped)
	return windows.UnlockFileEx(windows.Handle(f.Fd()), 0, math.MaxUint32, math.MaxUint32, ol)
}
