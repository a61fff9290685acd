package logrollx

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	units "github.com/docker/go-units"
	"gopkg.in/yaml.v3"
)

// FileSize 是以字节为单位的大小，配置中可写作 "10MB"、"512KB" 或纯数字。
// 单位按 1024 进位，与 logback 的 FileSize 一致。
type FileSize int64

// ParseFileSize 解析大小字符串
func ParseFileSize(s string) (FileSize, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	n, err := units.RAMInBytes(s)
	if err != nil {
		return 0, fmt.Errorf("logrollx: invalid file size %q: %w", s, err)
	}
	if n < 0 {
		return 0, fmt.Errorf("logrollx: file size %q must not be negative", s)
	}
	return FileSize(n), nil
}

// String 以人类可读形式输出
func (s FileSize) String() string { return units.BytesSize(float64(s)) }

// UnmarshalYAML 实现 yaml.Unmarshaler
func (s *FileSize) UnmarshalYAML(node *yaml.Node) error {
	v, err := ParseFileSize(node.Value)
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// UnmarshalJSON 同时接受数字与字符串
func (s *FileSize) UnmarshalJSON(data []byte) error {
	raw := string(bytes.TrimSpace(data))
	if unq, err := strconv.Unquote(raw); err == nil {
		raw = unq
	}
	v, err := ParseFileSize(raw)
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// MarshalJSON 输出字节数
func (s FileSize) MarshalJSON() ([]byte, error) { return json.Marshal(int64(s)) }

// Config 描述一个写入器。FileNamePattern 为空时构造普通的 FileAppender。
type Config struct {
	Name                string          `json:"name" yaml:"name"`                               // 写入器名称，默认 "rolling"
	File                string          `json:"file" yaml:"file"`                               // 活动文件路径，滚动写入器可留空
	FileNamePattern     string          `json:"fileNamePattern" yaml:"fileNamePattern"`         // 归档文件名模式
	MaxHistory          int             `json:"maxHistory" yaml:"maxHistory"`                   // 保留的周期数
	TotalSizeCap        FileSize        `json:"totalSizeCap" yaml:"totalSizeCap"`               // 归档总大小上限
	MaxFileSize         FileSize        `json:"maxFileSize" yaml:"maxFileSize"`                 // 单个活动文件大小上限
	CleanHistoryOnStart bool            `json:"cleanHistoryOnStart" yaml:"cleanHistoryOnStart"` // 启动时清理
	Prudent             bool            `json:"prudent" yaml:"prudent"`                         // 谨慎模式
	Append              *bool           `json:"append" yaml:"append"`                           // 未设置时为 true
	AsyncCleanup        bool            `json:"asyncCleanup" yaml:"asyncCleanup"`               // 在执行器中清理
	Buffer              *BufCfg         `json:"buffer" yaml:"buffer"`                           // 缓冲配置，nil 表示每次写入直接落盘
	Executor            *ExecutorConfig `json:"executor" yaml:"executor"`                       // 仅在 Build 自行创建 Context 时生效
}

// Appender 是 Build 返回的写入器
type Appender interface {
	io.WriteCloser
	Sync() error
	Flush() error
	Stop() error
	IsStarted() bool
	ActiveName() string
	Context() *Context
}

var (
	_ Appender = (*FileAppender)(nil)
	_ Appender = (*RollingFileAppender)(nil)
)

// LoadConfig 从 YAML 文件读取配置
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("logrollx: read config %s: %w", path, err)
	}
	return ParseConfig(data)
}

// ParseConfig 解析 YAML 配置，未知字段视为错误
func ParseConfig(data []byte) (*Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && err != io.EOF {
		return nil, fmt.Errorf("logrollx: parse config: %w", err)
	}
	return &cfg, nil
}

// Build 按配置构造并启动写入器
//
// 参数:
//   - ctx: 运行环境，为 nil 时按 Executor 配置新建一个
//
// 返回值:
//   - Appender: 已启动的写入器
//   - error: 配置错误时返回 *ConfigError，此时不会打开任何文件
//
// 注意:
//   - Build 会启动 ctx 的执行器，调用方负责在退出前调用 ctx.Stop
func (c *Config) Build(ctx *Context) (Appender, error) {
	if ctx == nil {
		var opts []Option
		if c.Executor != nil {
			opts = append(opts, WithExecutorConfig(*c.Executor))
		}
		ctx = NewContext(opts...)
	}
	name := c.Name
	if name == "" {
		name = "rolling"
	}
	if c.MaxHistory < 0 {
		return nil, &ConfigError{Origin: name, Msg: "maxHistory must not be negative"}
	}
	ctx.Start()

	if c.FileNamePattern == "" {
		fa := NewFileAppender(ctx, name, c.File)
		c.applyCommon(fa)
		if err := fa.Start(); err != nil {
			return nil, err
		}
		return fa, nil
	}

	policy := NewTimeBasedRollingPolicy(ctx, c.FileNamePattern)
	policy.MaxHistory = c.MaxHistory
	policy.TotalSizeCap = int64(c.TotalSizeCap)
	policy.MaxFileSize = int64(c.MaxFileSize)
	policy.CleanHistoryOnStart = c.CleanHistoryOnStart
	policy.AsyncCleanup = c.AsyncCleanup

	ra := NewRollingFileAppender(ctx, name, c.File, policy)
	c.applyCommon(ra.FileAppender)
	if err := ra.Start(); err != nil {
		return nil, err
	}
	return ra, nil
}

func (c *Config) applyCommon(fa *FileAppender) {
	fa.Prudent = c.Prudent
	if c.Append != nil {
		fa.Append = *c.Append
	}
	fa.Buffer = c.Buffer
}
