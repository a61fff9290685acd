//go:build unix

package logrollx

import (
	"os"

	"golang.org/x/sys/unix"
)

// lockFile 对文件加独占的建议锁，阻塞直到获得锁
func lockFile(f *os.File) error {
	for {
		err := unix.Flock(int(f.Fd()), unix.LOCK_EX)
		if err != unix.EINTR {
			return err
		}
	}
}

// unlockFile 释放 lockFile 获得的锁
func unlockFile(f *os.File) error {
	return unix.Flock(int(f.Fd()), unix.LOCK_UN)
}
