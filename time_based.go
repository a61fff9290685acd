package logrollx

import (
	"fmt"
	"time"

	"gitee.com/MM-Q/logrollx/pattern"
	"gitee.com/MM-Q/logrollx/period"
)

// TimeBasedPolicy 在周期边界处触发滚动
type TimeBasedPolicy struct {
	reporter
	tracker periodTracker
	started bool
}

// NewTimeBasedPolicy 创建按时间触发的策略
//
// 参数:
//   - ctx: 运行环境
//   - p: 不含压缩后缀的文件名模式
//   - rawFile: 活动文件路径，为空表示活动文件即当前周期的渲染名
func NewTimeBasedPolicy(ctx *Context, p *pattern.Pattern, rawFile string) *TimeBasedPolicy {
	return &TimeBasedPolicy{
		reporter: reporter{ctx: ctx, origin: "TimeBasedPolicy"},
		tracker:  periodTracker{ctx: ctx, pattern: p, rawFile: rawFile},
	}
}

// Start 校验模式并确定当前周期，失败时保持未启动状态
func (tp *TimeBasedPolicy) Start() error {
	if err := tp.tracker.start(tp.origin); err != nil {
		return err
	}
	if tp.tracker.pattern.HasInteger() {
		return &ConfigError{
			Origin: tp.origin,
			Msg: fmt.Sprintf("FileNamePattern [%s] contains an integer token converter, i.e. %%i, "+
				"which is incompatible with a pure time based policy; set MaxFileSize or remove it", tp.tracker.pattern),
		}
	}
	tp.started = true
	return nil
}

// Stop 停止策略
func (tp *TimeBasedPolicy) Stop() { tp.started = false }

// IsStarted 报告策略是否已启动
func (tp *TimeBasedPolicy) IsStarted() bool { return tp.started }

// IsTriggeringEvent 当前时间越过周期边界时返回 true，并捕获上一周期的归档名
func (tp *TimeBasedPolicy) IsTriggeringEvent(_ ActiveFile, _ []byte) bool {
	now := tp.ctx.Now()
	if !tp.tracker.due(now) {
		return false
	}
	tp.tracker.elapsed = tp.tracker.pattern.Render(tp.tracker.current, 0)
	tp.tracker.advance(now)
	return true
}

// ElapsedFileName 实现 NamingAndTriggeringPolicy
func (tp *TimeBasedPolicy) ElapsedFileName() string { return tp.tracker.elapsed }

// CurrentFileName 实现 NamingAndTriggeringPolicy
func (tp *TimeBasedPolicy) CurrentFileName() string {
	return tp.tracker.pattern.Render(tp.tracker.current, 0)
}

// Calendar 实现 NamingAndTriggeringPolicy
func (tp *TimeBasedPolicy) Calendar() *period.Calendar { return tp.tracker.cal }

// CurrentPeriod 实现 NamingAndTriggeringPolicy
func (tp *TimeBasedPolicy) CurrentPeriod() time.Time { return tp.tracker.current }
