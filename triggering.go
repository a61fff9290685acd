package logrollx

import (
	"fmt"
	"os"
	"time"

	"gitee.com/MM-Q/logrollx/pattern"
	"gitee.com/MM-Q/logrollx/period"
)

// ActiveFile 是触发策略观察到的活动文件
type ActiveFile interface {
	Path() string
	Size() int64
}

// TriggeringPolicy 决定是否需要立即滚动。
//
// IsTriggeringEvent 在写入线程上、每次写入之前同步调用，必须是 O(1) 的。
type TriggeringPolicy interface {
	Start() error
	Stop()
	IsStarted() bool
	IsTriggeringEvent(active ActiveFile, p []byte) bool
}

// NamingAndTriggeringPolicy 在触发的同时给出即将关闭的文件的归档名
type NamingAndTriggeringPolicy interface {
	TriggeringPolicy

	// ElapsedFileName 返回最近一次触发时捕获的归档名（不含压缩后缀）
	ElapsedFileName() string

	// CurrentFileName 返回当前周期、当前计数器下的文件名（不含压缩后缀）
	CurrentFileName() string

	// Calendar 返回周期日历，启动后有效
	Calendar() *period.Calendar

	// CurrentPeriod 返回当前周期的起点
	CurrentPeriod() time.Time
}

// NoRotationPolicy 从不触发滚动，用于跨进程的谨慎模式
type NoRotationPolicy struct {
	started bool
}

func (p *NoRotationPolicy) Start() error    { p.started = true; return nil }
func (p *NoRotationPolicy) Stop()           { p.started = false }
func (p *NoRotationPolicy) IsStarted() bool { return p.started }

// IsTriggeringEvent 始终返回 false
func (p *NoRotationPolicy) IsTriggeringEvent(ActiveFile, []byte) bool { return false }

// periodTracker 是两种时间类触发策略共用的周期状态
type periodTracker struct {
	ctx     *Context
	pattern *pattern.Pattern // 不含压缩后缀
	rawFile string

	cal       *period.Calendar
	current   time.Time // 当前周期起点
	nextCheck time.Time // 下一个周期边界
	elapsed   string    // 最近一次触发捕获的归档名
}

// start 校验主日期转换符、构造日历并确定当前周期
func (pt *periodTracker) start(origin string) error {
	dc := pt.pattern.PrimaryDate()
	if dc == nil {
		return &ConfigError{
			Origin: origin,
			Msg:    fmt.Sprintf("FileNamePattern [%s] does not contain a valid DateToken", pt.pattern),
		}
	}

	cal, err := period.New(dc, dc.Location())
	if err != nil {
		return &ConfigError{
			Origin: origin,
			Msg:    fmt.Sprintf("cannot derive a rollover period from date pattern [%s]", dc.Layout()),
			Err:    err,
		}
	}
	if !cal.IsCollisionFree() {
		return &ConfigError{
			Origin: origin,
			Msg:    "The date format in FileNamePattern will result in collisions in the names of archived log files.",
		}
	}
	pt.cal = cal

	// 恢复已有活动文件时以其修改时间确定周期，避免重启后误触发滚动
	ref := pt.ctx.Now()
	if pt.rawFile != "" {
		if fi, err := os.Stat(pt.rawFile); err == nil {
			ref = fi.ModTime()
		}
	}
	pt.current = cal.Start(ref)
	pt.nextCheck = cal.Next(pt.current)
	return nil
}

func (pt *periodTracker) due(now time.Time) bool {
	return !now.Before(pt.nextCheck)
}

// advance 将当前周期推进到 now 所在的周期
func (pt *periodTracker) advance(now time.Time) {
	pt.current = pt.cal.Start(now)
	pt.nextCheck = pt.cal.Next(pt.current)
}
