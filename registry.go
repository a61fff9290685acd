package logrollx

import (
	"fmt"
	"sync"
)

// CollisionRegistry 记录同一 Context 内各写入器声明的目标文件与文件名模式。
//
// 两张表分别以规范化的绝对路径和模式字符串为键，值为声明它的写入器名称。
// 表项在写入器停止后仍然保留，只有 Clear 才会清空。
type CollisionRegistry struct {
	mu       sync.Mutex
	files    map[string]string
	patterns map[string]string
}

// NewCollisionRegistry 创建空的登记表
func NewCollisionRegistry() *CollisionRegistry {
	return &CollisionRegistry{
		files:    make(map[string]string),
		patterns: make(map[string]string),
	}
}

// ClaimFile 以 owner 的名义声明目标文件
//
// 参数:
//   - path: 目标文件路径，内部会规范化为绝对路径
//   - owner: 写入器名称，为空时只检查冲突，不登记
//
// 返回值:
//   - error: 已被其他写入器声明时返回 *ConfigError
func (r *CollisionRegistry) ClaimFile(path, owner string) error {
	key, err := normalizePath(path)
	if err != nil {
		return &ConfigError{Origin: owner, Msg: fmt.Sprintf("invalid file path %q", path), Err: err}
	}
	return r.claim(r.files, key, owner, "File")
}

// ClaimPattern 以 owner 的名义声明文件名模式
func (r *CollisionRegistry) ClaimPattern(pattern, owner string) error {
	return r.claim(r.patterns, pattern, owner, "FileNamePattern")
}

func (r *CollisionRegistry) claim(table map[string]string, key, owner, option string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if prev, ok := table[key]; ok && prev != owner {
		return &ConfigError{
			Origin: owner,
			Msg: fmt.Sprintf("'%s' option has the same value %q as that given for appender [%s] defined earlier",
				option, key, prev),
		}
	}
	if owner != "" {
		table[key] = owner
	}
	return nil
}

// FileOwner 返回声明该文件的写入器名称
func (r *CollisionRegistry) FileOwner(path string) (string, bool) {
	key, err := normalizePath(path)
	if err != nil {
		return "", false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	owner, ok := r.files[key]
	return owner, ok
}

// PatternOwner 返回声明该模式的写入器名称
func (r *CollisionRegistry) PatternOwner(pattern string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	owner, ok := r.patterns[pattern]
	return owner, ok
}

// Clear 清空两张表
func (r *CollisionRegistry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.files = make(map[string]string)
	r.patterns = make(map[string]string)
}
