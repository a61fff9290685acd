package logrollx

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"gitee.com/MM-Q/logrollx/pattern"
)

// compressionWaitTimeout 是停止策略时等待最后一个压缩任务的上限
var compressionWaitTimeout = 30 * time.Second

// RollingPolicy 执行一次滚动：重命名、安排压缩、清理归档
type RollingPolicy interface {
	Start() error
	Stop()
	IsStarted() bool

	// Rollover 在活动文件关闭后调用，失败时写入器继续使用原文件
	Rollover() error

	// ActiveFileName 返回滚动后应打开的活动文件
	ActiveFileName() string

	// FileNamePattern 返回用于冲突检测的模式
	FileNamePattern() string

	bind(rawFile string, prudent bool)
}

// TimeBasedRollingPolicy 按时间（可选叠加大小）滚动。
//
// 模式以 .gz 或 .zip 结尾时，归档在执行器中异步压缩。
// MaxFileSize 大于 0 时使用按大小与时间触发的策略，模式必须包含 %i。
type TimeBasedRollingPolicy struct {
	reporter

	// Pattern 是归档文件名模式，例如 "logs/app-%d{yyyy-MM-dd}.%i.log.gz"
	Pattern string

	// MaxHistory 是保留的周期数，0 表示不按时间清理
	MaxHistory int

	// TotalSizeCap 是归档总大小上限（字节），0 表示不限制
	TotalSizeCap int64

	// MaxFileSize 是活动文件大小上限（字节），0 表示仅按时间滚动
	MaxFileSize int64

	// CleanHistoryOnStart 启动时执行一次清理
	CleanHistoryOnStart bool

	// AsyncCleanup 在执行器中执行清理，而不是在写入线程上
	AsyncCleanup bool

	rawFile     string
	prudent     bool
	pattern     *pattern.Pattern
	compression CompressionMode
	trigger     NamingAndTriggeringPolicy
	remover     *ArchiveRemover
	started     bool

	mu          sync.Mutex
	compressing *Future
}

// NewTimeBasedRollingPolicy 创建滚动策略
//
// 参数:
//   - ctx: 运行环境，提供时钟、执行器与事件管理器
//   - fileNamePattern: 归档文件名模式
func NewTimeBasedRollingPolicy(ctx *Context, fileNamePattern string) *TimeBasedRollingPolicy {
	return &TimeBasedRollingPolicy{
		reporter: reporter{ctx: ctx, origin: "TimeBasedRollingPolicy"},
		Pattern:  fileNamePattern,
	}
}

func (rp *TimeBasedRollingPolicy) bind(rawFile string, prudent bool) {
	rp.rawFile = rawFile
	rp.prudent = prudent
}

// FileNamePattern 实现 RollingPolicy
func (rp *TimeBasedRollingPolicy) FileNamePattern() string { return rp.Pattern }

// Start 解析模式、启动触发策略，必要时执行一次启动清理。失败时保持未启动状态。
func (rp *TimeBasedRollingPolicy) Start() error {
	if rp.started {
		return nil
	}
	if rp.Pattern == "" {
		return rp.configError("The FileNamePattern option must be set before using TimeBasedRollingPolicy", nil)
	}
	p, err := pattern.Parse(rp.Pattern)
	if err != nil {
		return rp.configError("invalid FileNamePattern", err)
	}
	compression := compressionModeOf(p.CompressionSuffix())
	if rp.prudent && compression != CompressionNone {
		return rp.configError("Compression is not supported in prudent mode. Aborting", nil)
	}
	if rp.MaxHistory < 0 || rp.TotalSizeCap < 0 || rp.MaxFileSize < 0 {
		return rp.configError("MaxHistory, TotalSizeCap and MaxFileSize must not be negative", nil)
	}

	plain := p.WithoutCompressionSuffix()
	var trigger NamingAndTriggeringPolicy
	if rp.MaxFileSize > 0 {
		trigger = NewSizeAndTimeBasedPolicy(rp.ctx, plain, rp.rawFile, rp.MaxFileSize, p.CompressionSuffix())
	} else {
		trigger = NewTimeBasedPolicy(rp.ctx, plain, rp.rawFile)
	}
	if err := trigger.Start(); err != nil {
		rp.addError(err.Error(), nil)
		return err
	}

	rp.pattern = p
	rp.compression = compression
	rp.trigger = trigger
	if compression != CompressionNone && !rp.ctx.Executor().IsRunning() {
		rp.addWarn("executor is not running, archives will be left uncompressed until the context is started", nil)
	}

	rp.remover = nil
	if rp.MaxHistory > 0 || rp.TotalSizeCap > 0 {
		rp.remover = NewArchiveRemover(rp.ctx, p, trigger.Calendar(), rp.MaxHistory, rp.TotalSizeCap)
		if rp.CleanHistoryOnStart {
			rp.addInfo("Cleaning on start up")
			rp.remover.Clean(rp.ctx.Now(), rp.ActiveFileName())
		}
	}

	rp.started = true
	return nil
}

func (rp *TimeBasedRollingPolicy) configError(msg string, cause error) error {
	err := &ConfigError{Origin: rp.origin, Msg: msg, Err: cause}
	rp.addError(err.Error(), nil)
	return err
}

// Trigger 返回内部的触发策略
func (rp *TimeBasedRollingPolicy) Trigger() NamingAndTriggeringPolicy { return rp.trigger }

// IsTriggeringEvent 委托给内部触发策略
func (rp *TimeBasedRollingPolicy) IsTriggeringEvent(active ActiveFile, p []byte) bool {
	return rp.trigger.IsTriggeringEvent(active, p)
}

// CurrentPeriod 返回当前周期的起点
func (rp *TimeBasedRollingPolicy) CurrentPeriod() time.Time { return rp.trigger.CurrentPeriod() }

// CompressionMode 返回压缩方式
func (rp *TimeBasedRollingPolicy) CompressionMode() CompressionMode { return rp.compression }

// ActiveFileName 返回活动文件：设置了原始路径时为该路径，否则为当前周期的渲染名
func (rp *TimeBasedRollingPolicy) ActiveFileName() string {
	if rp.rawFile != "" {
		return rp.rawFile
	}
	return rp.trigger.CurrentFileName()
}

// Rollover 将刚关闭的文件移到归档名，安排压缩并清理过期归档
func (rp *TimeBasedRollingPolicy) Rollover() error {
	if !rp.started {
		return ErrNotStarted
	}
	elapsed := rp.trigger.ElapsedFileName()

	switch {
	case rp.compression == CompressionNone:
		if rp.rawFile != "" {
			if err := renameFile(rp.rawFile, elapsed); err != nil {
				return err
			}
		}
	case rp.rawFile == "":
		rp.submitCompression(elapsed, elapsed, elapsed)
	default:
		tmp := elapsed + strconv.FormatInt(rp.ctx.Now().UnixNano(), 10) + ".tmp"
		if err := renameFile(rp.rawFile, tmp); err != nil {
			return err
		}
		rp.submitCompression(tmp, elapsed, elapsed)
	}

	if rp.remover != nil {
		rp.clean()
	}
	return nil
}

// submitCompression 提交压缩任务；无法提交时把文件留在 fallback 位置，不在写入线程上压缩
func (rp *TimeBasedRollingPolicy) submitCompression(src, archive, fallback string) {
	task := &compressionTask{
		reporter:  reporter{ctx: rp.ctx, origin: "Compressor"},
		metrics:   rp.ctx.Metrics(),
		src:       src,
		dst:       archive + rp.pattern.CompressionSuffix(),
		entryName: filepath.Base(archive),
		fallback:  fallback,
	}
	// 每次提交时取 Context 当前的执行器，Reset 之后同样有效
	fut, err := rp.ctx.Executor().Submit("compress "+src, task.run)
	if err != nil {
		rp.addWarn(fmt.Sprintf("cannot schedule compression of [%s], leaving it uncompressed", src), err)
		if src != fallback {
			if rerr := renameFile(src, fallback); rerr != nil {
				rp.addError(fmt.Sprintf("cannot move [%s] back to [%s]", src, fallback), rerr)
			}
		}
		return
	}
	rp.mu.Lock()
	rp.compressing = fut
	rp.mu.Unlock()
}

func (rp *TimeBasedRollingPolicy) clean() {
	now := rp.ctx.Now()
	active := rp.ActiveFileName()
	if rp.AsyncCleanup {
		if _, err := rp.ctx.Executor().Submit("clean archives", func() error {
			rp.remover.Clean(now, active)
			return nil
		}); err == nil {
			return
		}
	}
	rp.remover.Clean(now, active)
}

// Remover 返回归档清理器，未配置保留规则时为 nil
func (rp *TimeBasedRollingPolicy) Remover() *ArchiveRemover { return rp.remover }

// WaitForCompression 等待最近一次提交的压缩任务结束
func (rp *TimeBasedRollingPolicy) WaitForCompression(ctx context.Context) error {
	rp.mu.Lock()
	fut := rp.compressing
	rp.mu.Unlock()
	if fut == nil {
		return nil
	}
	return fut.Wait(ctx)
}

// IsStarted 报告策略是否已启动
func (rp *TimeBasedRollingPolicy) IsStarted() bool { return rp.started }

// Stop 停止策略，并在 compressionWaitTimeout 内等待最后一个压缩任务
func (rp *TimeBasedRollingPolicy) Stop() {
	if !rp.started {
		return
	}
	rp.started = false
	rp.trigger.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), compressionWaitTimeout)
	defer cancel()
	if err := rp.WaitForCompression(ctx); errors.Is(err, context.DeadlineExceeded) {
		rp.addError(fmt.Sprintf("Timeout while waiting for compression job to finish after %s", compressionWaitTimeout), err)
	}
}
