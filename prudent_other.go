//go:build !unix && !windows

package logrollx

import "os"

// 该平台没有可用的建议锁，谨慎模式只做位置校正
func lockFile(*os.File) error   { return nil }
func unlockFile(*os.File) error { return nil }
