package logrollx

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/samber/lo"

	"gitee.com/MM-Q/logrollx/pattern"
	"gitee.com/MM-Q/logrollx/period"
)

// maxSamplingMask 是采样窗口的上限，窗口宽度为 mask+1 次调用
const maxSamplingMask = 0x0F

// samplingGate 决定本次调用是否检查文件大小。
// 掩码从 0x1 开始，每次检查后按 (mask<<1)+1 扩大，直到 maxSamplingMask。
type samplingGate struct {
	invocations uint32
	mask        uint32
}

func newSamplingGate() samplingGate {
	return samplingGate{mask: 0x1}
}

func (g *samplingGate) probe() bool {
	g.invocations++
	if g.invocations&g.mask != g.mask {
		return false
	}
	if g.mask < maxSamplingMask {
		g.mask = (g.mask << 1) + 1
	}
	return true
}

// SizeAndTimeBasedPolicy 在周期边界或活动文件达到大小上限时触发滚动。
//
// 周期内因大小触发的滚动使计数器递增；越过周期边界时计数器归零，且时间检查优先于大小检查。
type SizeAndTimeBasedPolicy struct {
	reporter
	tracker     periodTracker
	maxFileSize int64
	suffix      string // 归档的压缩后缀
	counter     int
	gate        samplingGate
	started     bool
}

// NewSizeAndTimeBasedPolicy 创建按大小与时间触发的策略
//
// 参数:
//   - ctx: 运行环境
//   - p: 不含压缩后缀的文件名模式，必须包含 %d 与 %i
//   - rawFile: 活动文件路径，可为空
//   - maxFileSize: 活动文件大小上限（字节）
//   - compressionSuffix: 归档压缩后缀，不压缩时为空
func NewSizeAndTimeBasedPolicy(ctx *Context, p *pattern.Pattern, rawFile string, maxFileSize int64, compressionSuffix string) *SizeAndTimeBasedPolicy {
	return &SizeAndTimeBasedPolicy{
		reporter:    reporter{ctx: ctx, origin: "SizeAndTimeBasedPolicy"},
		tracker:     periodTracker{ctx: ctx, pattern: p, rawFile: rawFile},
		maxFileSize: maxFileSize,
		suffix:      compressionSuffix,
		gate:        newSamplingGate(),
	}
}

// Start 校验模式、确定当前周期并从磁盘恢复计数器
func (sp *SizeAndTimeBasedPolicy) Start() error {
	p := sp.tracker.pattern
	if !p.HasInteger() {
		return &ConfigError{
			Origin: sp.origin,
			Msg:    fmt.Sprintf("Missing integer token, that is %%i, in FileNamePattern [%s]", p),
		}
	}
	if p.PrimaryDate() == nil {
		return &ConfigError{
			Origin: sp.origin,
			Msg:    fmt.Sprintf("Missing date token, that is %%d, in FileNamePattern [%s]", p),
		}
	}
	if sp.maxFileSize <= 0 {
		return &ConfigError{Origin: sp.origin, Msg: "MaxFileSize must be positive"}
	}
	if err := sp.tracker.start(sp.origin); err != nil {
		return err
	}

	sp.counter = sp.resumeCounter()
	sp.gate = newSamplingGate()
	sp.started = true
	return nil
}

// resumeCounter 扫描当前周期已有的文件，返回可继续使用的计数器
func (sp *SizeAndTimeBasedPolicy) resumeCounter() int {
	current := sp.tracker.current
	dir := filepath.Dir(sp.tracker.pattern.Render(current, 0))

	body := strings.TrimSuffix(strings.TrimPrefix(sp.tracker.pattern.ToRegexForFixedDate(current), "^"), "$")
	if i := strings.LastIndex(body, "/"); i >= 0 {
		body = body[i+1:]
	}
	if sp.suffix != "" {
		body += "(?:" + regexp.QuoteMeta(sp.suffix) + ")?"
	}
	re := regexp.MustCompile("^" + body + "$")
	idx := re.SubexpIndex(pattern.IndexGroup)

	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0
	}
	counters := lo.FilterMap(entries, func(e os.DirEntry, _ int) (int, bool) {
		m := re.FindStringSubmatch(e.Name())
		if m == nil || e.IsDir() {
			return 0, false
		}
		n, err := strconv.Atoi(m[idx])
		return n, err == nil
	})
	if len(counters) == 0 {
		return 0
	}

	highest := lo.Max(counters)
	// 有独立活动文件或启用压缩时，最高计数器已被归档占用
	if sp.tracker.rawFile != "" || sp.suffix != "" {
		highest++
	}
	sp.addInfo(fmt.Sprintf("resuming period %s at counter %d", sp.tracker.pattern.Render(current, highest), highest))
	return highest
}

// Stop 停止策略
func (sp *SizeAndTimeBasedPolicy) Stop() { sp.started = false }

// IsStarted 报告策略是否已启动
func (sp *SizeAndTimeBasedPolicy) IsStarted() bool { return sp.started }

// IsTriggeringEvent 先检查周期边界，再按采样检查活动文件大小
func (sp *SizeAndTimeBasedPolicy) IsTriggeringEvent(active ActiveFile, _ []byte) bool {
	now := sp.ctx.Now()
	if sp.tracker.due(now) {
		sp.tracker.elapsed = sp.tracker.pattern.Render(sp.tracker.current, sp.counter)
		sp.counter = 0
		sp.tracker.advance(now)
		return true
	}

	if !sp.gate.probe() {
		return false
	}
	if active == nil || active.Size() < sp.maxFileSize {
		return false
	}
	sp.tracker.elapsed = sp.tracker.pattern.Render(sp.tracker.current, sp.counter)
	sp.counter++
	return true
}

// ElapsedFileName 实现 NamingAndTriggeringPolicy
func (sp *SizeAndTimeBasedPolicy) ElapsedFileName() string { return sp.tracker.elapsed }

// CurrentFileName 实现 NamingAndTriggeringPolicy
func (sp *SizeAndTimeBasedPolicy) CurrentFileName() string {
	return sp.tracker.pattern.Render(sp.tracker.current, sp.counter)
}

// Calendar 实现 NamingAndTriggeringPolicy
func (sp *SizeAndTimeBasedPolicy) Calendar() *period.Calendar { return sp.tracker.cal }

// CurrentPeriod 实现 NamingAndTriggeringPolicy
func (sp *SizeAndTimeBasedPolicy) CurrentPeriod() time.Time { return sp.tracker.current }

// Counter 返回当前计数器
func (sp *SizeAndTimeBasedPolicy) Counter() int { return sp.counter }
