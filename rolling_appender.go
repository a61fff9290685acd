package logrollx

import (
	"fmt"
	"os"
	"time"
)

// RollingFileAppender 是带滚动策略的 FileAppender。
//
// 每次写入之前先询问触发策略；需要滚动时依次关闭活动文件、执行滚动策略、重新打开活动文件，
// 整个过程与写入本身在同一把锁内完成，因此同一实例的触发判断严格串行。
//
// File 为空时活动文件即当前周期的渲染名，滚动时无需重命名。
type RollingFileAppender struct {
	*FileAppender
	policy  RollingPolicy
	trigger TriggeringPolicy
}

// NewRollingFileAppender 创建滚动写入器
//
// 参数:
//   - ctx: 运行环境
//   - name: 写入器名称
//   - file: 活动文件路径，可为空
//   - policy: 滚动策略；若同时实现 TriggeringPolicy 则兼作触发策略
func NewRollingFileAppender(ctx *Context, name, file string, policy RollingPolicy) *RollingFileAppender {
	return &RollingFileAppender{
		FileAppender: NewFileAppender(ctx, name, file),
		policy:       policy,
	}
}

// SetTriggeringPolicy 单独指定触发策略，例如跨进程谨慎模式下的 NoRotationPolicy
func (r *RollingFileAppender) SetTriggeringPolicy(tp TriggeringPolicy) {
	r.trigger = tp
}

// Policy 返回滚动策略
func (r *RollingFileAppender) Policy() RollingPolicy { return r.policy }

// Start 检查冲突、启动策略并打开活动文件；任何配置错误都使写入器保持未启动状态
func (r *RollingFileAppender) Start() error {
	a := r.FileAppender
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.started {
		return nil
	}

	if r.policy == nil {
		err := &ConfigError{Origin: a.Name, Msg: "No RollingPolicy was set for the RollingFileAppender named " + a.Name}
		a.addError(err.Msg, nil)
		return err
	}

	a.File = preprocessPath(a.File)
	if a.Prudent && a.File != "" {
		a.addWarn(`Setting "File" property to null on account of prudent mode`, nil)
		a.File = ""
	}
	a.applyPrudent()
	if a.File != "" {
		if err := validateFilePath(a.File); err != nil {
			cerr := &ConfigError{Origin: a.Name, Msg: "invalid \"File\" property", Err: err}
			a.addError(cerr.Error(), nil)
			return cerr
		}
		if err := a.claimFile(a.File); err != nil {
			return err
		}
	}
	if fnp := r.policy.FileNamePattern(); fnp != "" {
		if err := a.ctx.Registry().ClaimPattern(fnp, a.Name); err != nil {
			a.addError(err.Error(), nil)
			a.addError("Collisions detected with FileAppender/RollingAppender instances defined earlier. Aborting.", nil)
			return err
		}
	}

	r.policy.bind(a.File, a.Prudent)
	if err := r.policy.Start(); err != nil {
		return err
	}
	if r.trigger == nil {
		tp, ok := r.policy.(TriggeringPolicy)
		if !ok {
			r.policy.Stop()
			err := &ConfigError{Origin: a.Name, Msg: "No TriggeringPolicy was set for the RollingFileAppender named " + a.Name}
			a.addError(err.Msg, nil)
			return err
		}
		r.trigger = tp
	} else if !r.trigger.IsStarted() {
		if err := r.trigger.Start(); err != nil {
			r.policy.Stop()
			return err
		}
	}

	active := r.policy.ActiveFileName()
	if err := a.openLocked(active, 0); err != nil {
		a.addError(fmt.Sprintf("openFile(%s,%t) call failed", active, a.Append), err)
		r.policy.Stop()
		return err
	}
	a.addInfo(fmt.Sprintf("Active log file name: %s", active))
	a.started = true
	return nil
}

// periodic 由能报告当前周期的触发策略实现，用于区分按时间与按大小的滚动
type periodic interface {
	CurrentPeriod() time.Time
}

// Write 写入前检查是否需要滚动
func (r *RollingFileAppender) Write(p []byte) (int, error) {
	a := r.FileAppender
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.writable(); err != nil {
		return 0, err
	}

	var period time.Time
	pt, timed := r.trigger.(periodic)
	if timed {
		period = pt.CurrentPeriod()
	}
	if r.trigger.IsTriggeringEvent(activeView{a}, p) {
		reason := "size"
		if !timed || !pt.CurrentPeriod().Equal(period) {
			reason = "time"
		}
		r.rolloverLocked(reason)
	}
	return a.writeLocked(p)
}

// rolloverLocked 关闭活动文件、执行滚动并重新打开。重命名失败时继续写原文件。
func (r *RollingFileAppender) rolloverLocked(reason string) {
	a := r.FileAppender
	previous := a.activeName
	prevInfo, _ := os.Stat(previous)

	if err := a.closeLocked(); err != nil {
		a.addWarn("failed to close active file before rollover", err)
	}

	next := r.policy.ActiveFileName()
	if err := r.policy.Rollover(); err != nil {
		a.addWarn("RolloverFailure occurred. Deferring roll-over.", err)
		a.ctx.Metrics().RotationFailures.WithLabelValues(a.Name).Inc()
		a.Append = true
		next = previous
	} else {
		a.ctx.Metrics().Rotations.WithLabelValues(a.Name, reason).Inc()
	}

	var mode os.FileMode
	if prevInfo != nil {
		mode = prevInfo.Mode().Perm()
	}
	if err := a.openLocked(next, mode); err != nil {
		// 恢复时重新打开的是新的活动文件，而不是已经成为归档的旧文件
		a.activeName = next
		a.addError(fmt.Sprintf("setFile(%s, false) call failed", next), err)
		a.scheduleRetry()
		return
	}
	if prevInfo != nil && next != previous {
		if err := chown(next, prevInfo); err != nil {
			a.addWarn(fmt.Sprintf("failed to preserve owner of [%s]", next), err)
		}
	}
}

// Stop 关闭活动文件并停止策略
func (r *RollingFileAppender) Stop() error {
	a := r.FileAppender
	a.mu.Lock()
	if !a.started {
		a.mu.Unlock()
		return nil
	}
	a.started = false
	a.closed = true
	err := a.closeLocked()
	a.mu.Unlock()

	if r.trigger != nil && any(r.trigger) != any(r.policy) {
		r.trigger.Stop()
	}
	r.policy.Stop()
	return err
}

// Close 实现 io.Closer，等同于 Stop
func (r *RollingFileAppender) Close() error { return r.Stop() }
