package logrollx

import (
	"path/filepath"
	"strings"
	"testing"
)

// TestValidateFilePath 测试 validateFilePath 函数
func TestValidateFilePath(t *testing.T) {
	tests := []struct {
		name        string
		path        string
		expectError bool
	}{
		{name: "正常相对路径", path: "logs/app.log"},
		{name: "正常绝对路径", path: "/tmp/app.log"},
		{name: "带点的文件名", path: "logs/console.log"},
		{name: "空路径", path: "", expectError: true},
		{name: "以分隔符结尾", path: "logs" + string(filepath.Separator), expectError: true},
		{name: "控制字符", path: "logs/a\nb.log", expectError: true},
		{name: "超长路径", path: "logs/" + strings.Repeat("a", maxPathLen), expectError: true},
		{name: "保留设备名", path: "logs/NUL", expectError: true},
		{name: "保留设备名带扩展名", path: "logs/com1.txt", expectError: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateFilePath(tt.path)
			if tt.expectError {
				notNil(err, t)
			} else {
				isNil(err, t)
			}
		})
	}
}

func TestNormalizePath(t *testing.T) {
	a, err := normalizePath(" logs/./x/../app.log ")
	isNil(err, t)
	b, err := normalizePath("logs/app.log")
	isNil(err, t)
	equals(a, b, t)
	equals(true, filepath.IsAbs(a), t)

	_, err = normalizePath("  ")
	notNil(err, t)
}

// TestCollisionRegistry 同一名称重复声明不算冲突，不同名称声明同一目标返回 *ConfigError
func TestCollisionRegistry(t *testing.T) {
	r := NewCollisionRegistry()
	isNil(r.ClaimFile("logs/app.log", "A"), t)
	isNil(r.ClaimFile("logs/../logs/app.log", "A"), t)

	err := r.ClaimFile("logs/app.log", "B")
	assert(IsConfigError(err), t, "expected *ConfigError, got %v", err)
	assert(strings.Contains(err.Error(), "[A]"), t, "error should name the earlier appender: %v", err)

	// 空 owner 只检查不登记
	notNil(r.ClaimFile("logs/app.log", ""), t)
	isNil(r.ClaimFile("logs/other.log", ""), t)
	_, ok := r.FileOwner("logs/other.log")
	equals(false, ok, t)

	isNil(r.ClaimPattern("logs/app-%d.log", "A"), t)
	notNil(r.ClaimPattern("logs/app-%d.log", "B"), t)
	owner, ok := r.PatternOwner("logs/app-%d.log")
	equals(true, ok, t)
	equals("A", owner, t)

	err = r.ClaimFile("", "C")
	assert(IsConfigError(err), t, "expected *ConfigError, got %v", err)

	r.Clear()
	isNil(r.ClaimFile("logs/app.log", "B"), t)
	isNil(r.ClaimPattern("logs/app-%d.log", "B"), t)
}
