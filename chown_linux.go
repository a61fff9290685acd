package logrollx

import (
	"os"
	"syscall"
)

// osChown 是一个变量，这样我们可以在测试期间模拟它。
var osChown = os.Chown

// chown 将滚动后新建的活动文件的所有者与所属组设置为与旧文件一致。
// 参数 name 是新文件路径，info 是旧活动文件的信息。
func chown(name string, info os.FileInfo) error {
	stat, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return nil
	}
	if stat.Uid == uint32(os.Geteuid()) && stat.Gid == uint32(os.Getegid()) {
		return nil
	}
	return osChown(name, int(stat.Uid), int(stat.Gid))
}
