package logrollx

import (
	"errors"
	"fmt"
)

var (
	// ErrNotStarted 表示组件尚未成功启动
	ErrNotStarted = errors.New("logrollx: not started")

	// ErrClosed 表示写入器已停止
	ErrClosed = errors.New("logrollx: appender closed")

	// ErrRecovering 表示写入失败后正处于退避期，暂不尝试重新打开文件
	ErrRecovering = errors.New("logrollx: output stream is recovering")

	// ErrExecutorStopped 表示执行器未运行
	ErrExecutorStopped = errors.New("logrollx: executor is not running")

	// ErrQueueFull 表示执行器队列已满
	ErrQueueFull = errors.New("logrollx: executor queue is full")

	// ErrAbandoned 表示任务在执行器关闭时被放弃，未执行
	ErrAbandoned = errors.New("logrollx: task abandoned at shutdown")
)

// ConfigError 表示配置错误，出现时组件保持未启动状态
type ConfigError struct {
	Origin string // 报告错误的组件
	Msg    string
	Err    error
}

func (e *ConfigError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("logrollx: %s: %s: %v", e.Origin, e.Msg, e.Err)
	}
	return fmt.Sprintf("logrollx: %s: %s", e.Origin, e.Msg)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// IsConfigError 报告 err 链中是否存在 *ConfigError
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}
