package status

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
	"go.uber.org/zap"
)

// ZapListener 将事件写入 zap 日志
type ZapListener struct {
	logger *zap.Logger
}

// NewZapListener 创建 zap 监听器
func NewZapListener(logger *zap.Logger) *ZapListener {
	return &ZapListener{logger: logger}
}

// OnStatus 实现 Listener 接口
func (z *ZapListener) OnStatus(s Status) {
	fields := []zap.Field{zap.String("origin", s.Origin), zap.Time("at", s.Time)}
	if s.Cause != nil {
		fields = append(fields, zap.Error(s.Cause))
	}
	switch s.Level {
	case Error:
		z.logger.Error(s.Message, fields...)
	case Warn:
		z.logger.Warn(s.Message, fields...)
	default:
		z.logger.Info(s.Message, fields...)
	}
}

// SlogListener 将事件写入 slog 日志
type SlogListener struct {
	logger *slog.Logger
}

// NewSlogListener 创建 slog 监听器
func NewSlogListener(logger *slog.Logger) *SlogListener {
	return &SlogListener{logger: logger}
}

// OnStatus 实现 Listener 接口
func (l *SlogListener) OnStatus(s Status) {
	attrs := []slog.Attr{slog.String("origin", s.Origin)}
	if s.Cause != nil {
		attrs = append(attrs, tint.Err(s.Cause))
	}
	l.logger.LogAttrs(context.Background(), slogLevel(s.Level), s.Message, attrs...)
}

func slogLevel(l Level) slog.Level {
	switch l {
	case Error:
		return slog.LevelError
	case Warn:
		return slog.LevelWarn
	}
	return slog.LevelInfo
}

// NewConsoleListener 创建输出到终端的监听器，非终端时关闭颜色
//
// 参数:
//   - f: 输出文件，通常为 os.Stderr
//   - min: 最低输出级别
func NewConsoleListener(f *os.File, min Level) *SlogListener {
	h := tint.NewHandler(f, &tint.Options{
		Level:      slogLevel(min),
		TimeFormat: time.TimeOnly,
		NoColor:    !isatty.IsTerminal(f.Fd()),
	})
	return NewSlogListener(slog.New(h))
}
