package logrollx

import (
	"fmt"
	"path/filepath"
	"strings"
)

const (
	// defaultFilePerm 是日志文件的默认权限模式
	defaultFilePerm = 0644

	// defaultDirPerm 是日志目录的默认权限模式
	defaultDirPerm = 0755

	// maxPathLen 是允许的最大路径长度
	maxPathLen = 4096
)

// windowsReservedNames 是 Windows 系统保留的设备名
var windowsReservedNames = map[string]bool{
	"CON": true, "PRN": true, "AUX": true, "NUL": true,
	"COM1": true, "COM2": true, "COM3": true, "COM4": true, "COM5": true,
	"COM6": true, "COM7": true, "COM8": true, "COM9": true,
	"LPT1": true, "LPT2": true, "LPT3": true, "LPT4": true, "LPT5": true,
	"LPT6": true, "LPT7": true, "LPT8": true, "LPT9": true,
}

// preprocessPath 去除首尾空白，配置文件中常见的多余空格不应成为文件名的一部分
func preprocessPath(path string) string {
	return strings.TrimSpace(path)
}

// validateFilePath 检查活动文件路径
//
// 检查内容:
//  1. 路径不能为空，也不能以分隔符结尾
//  2. 不能包含控制字符
//  3. 长度不超过 maxPathLen
//  4. 文件名不能是 Windows 保留名称
//
// 参数:
//   - path: 待检查的路径
//
// 返回值:
//   - error: 路径非法时返回错误
func validateFilePath(path string) error {
	if path == "" {
		return fmt.Errorf("path is empty")
	}
	if strings.HasSuffix(path, "/") || strings.HasSuffix(path, `\`) {
		return fmt.Errorf("path %q names a directory", path)
	}
	for _, r := range path {
		if r < 0x20 || r == 0x7f {
			return fmt.Errorf("path %q contains control character %U", path, r)
		}
	}
	if len(path) > maxPathLen {
		return fmt.Errorf("path length %d exceeds limit %d", len(path), maxPathLen)
	}
	return checkWindowsReservedName(filepath.Base(path))
}

// checkWindowsReservedName 检测 Windows 系统保留文件名
//
// 示例:
//   - "CON" -> 错误
//   - "con.txt" -> 错误
//   - "console.log" -> 正常通过
func checkWindowsReservedName(filename string) error {
	upper := strings.ToUpper(filename)
	if windowsReservedNames[upper] {
		return fmt.Errorf("file name %q is a reserved device name", filename)
	}
	if dot := strings.Index(upper, "."); dot > 0 && windowsReservedNames[upper[:dot]] {
		return fmt.Errorf("file name %q is a reserved device name", filename)
	}
	return nil
}

// normalizePath 返回用于冲突检测的文件标识：清理后的绝对路径
func normalizePath(path string) (string, error) {
	path = preprocessPath(path)
	if path == "" {
		return "", fmt.Errorf("path is empty")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	return filepath.Clean(abs), nil
}
