package logrollx

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// osRename 是一个变量，这样我们可以在测试期间模拟重命名失败。
var osRename = os.Rename

// renameFile 将 src 移动到 dst，必要时创建 dst 的父目录。
// 跨文件系统时退化为复制后删除。
func renameFile(src, dst string) error {
	if src == dst {
		return nil
	}
	if _, err := os.Stat(src); err != nil {
		return fmt.Errorf("logrollx: source file %s: %w", src, err)
	}
	if err := os.MkdirAll(filepath.Dir(dst), defaultDirPerm); err != nil {
		return fmt.Errorf("logrollx: cannot create parent directory of %s: %w", dst, err)
	}

	err := osRename(src, dst)
	if err == nil {
		return nil
	}
	var linkErr *os.LinkError
	if errors.As(err, &linkErr) && isCrossDevice(linkErr.Err) {
		return moveByCopy(src, dst)
	}
	return fmt.Errorf("logrollx: failed to rename %s to %s: %w", src, dst, err)
}

// moveByCopy 复制 src 到 dst 后删除 src
func moveByCopy(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("logrollx: open %s: %w", src, err)
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return err
	}
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, info.Mode())
	if err != nil {
		return fmt.Errorf("logrollx: create %s: %w", dst, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		_ = os.Remove(dst)
		return fmt.Errorf("logrollx: copy %s to %s: %w", src, dst, err)
	}
	if err := out.Close(); err != nil {
		return err
	}
	in.Close()
	return os.Remove(src)
}
