package logrollx

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"gitee.com/MM-Q/logrollx/pattern"
	"gitee.com/MM-Q/logrollx/status"
)

// line50 是 50 字节的一行
var line50 = strings.Repeat("x", 49) + "\n"

func newRolling(ctx *Context, name, file, fnp string) (*RollingFileAppender, *TimeBasedRollingPolicy) {
	policy := NewTimeBasedRollingPolicy(ctx, fnp)
	return NewRollingFileAppender(ctx, name, file, policy), policy
}

// TestDailyRetentionWithoutRawFile 每天写一次、保留 3 天，最终只剩 3 个归档加当天的活动文件
func TestDailyRetentionWithoutRawFile(t *testing.T) {
	dir := makeTempDir("TestDailyRetentionWithoutRawFile", t)
	clock := newFakeClock(day0)
	ctx := newTestContext(clock, t)

	a, policy := newRolling(ctx, "A", "", filepath.Join(dir, "app-%d{yyyy-MM-dd}.log"))
	policy.MaxHistory = 3
	isNil(a.Start(), t)
	defer func() { _ = a.Stop() }()

	for i := 0; i < 10; i++ {
		clock.Set(day0.AddDate(0, 0, i))
		writeString(a, fmt.Sprintf("day %d\n", i), t)
	}

	fileCount(dir, 4, t)
	for i := 6; i < 10; i++ {
		d := day0.AddDate(0, 0, i)
		existsWithContent(filepath.Join(dir, "app-"+day(d)+".log"), []byte(fmt.Sprintf("day %d\n", i)), t)
	}
	equals(filepath.Join(dir, "app-"+day(day0.AddDate(0, 0, 9))+".log"), a.ActiveName(), t)
	equals(9.0, testutil.ToFloat64(ctx.Metrics().Rotations.WithLabelValues("A", "time")), t)
	equals(6.0, testutil.ToFloat64(ctx.Metrics().ArchivesDeleted.WithLabelValues("history")), t)
}

func TestDailyRetentionWithRawFile(t *testing.T) {
	dir := makeTempDir("TestDailyRetentionWithRawFile", t)
	clock := newFakeClock(day0)
	ctx := newTestContext(clock, t)

	raw := filepath.Join(dir, "app.log")
	a, policy := newRolling(ctx, "A", raw, filepath.Join(dir, "app-%d{yyyy-MM-dd}.log"))
	policy.MaxHistory = 3
	isNil(a.Start(), t)
	defer func() { _ = a.Stop() }()

	for i := 0; i < 10; i++ {
		clock.Set(day0.AddDate(0, 0, i))
		writeString(a, fmt.Sprintf("day %d\n", i), t)
	}

	fileCount(dir, 4, t)
	existsWithContent(raw, []byte("day 9\n"), t)
	for i := 6; i < 9; i++ {
		d := day0.AddDate(0, 0, i)
		existsWithContent(filepath.Join(dir, "app-"+day(d)+".log"), []byte(fmt.Sprintf("day %d\n", i)), t)
	}
}

// TestSizeRolloverWithinDay 300 字节上限、每行 50 字节：第 7 次写入前滚动到计数器 0，之后写入计数器 1
func TestSizeRolloverWithinDay(t *testing.T) {
	dir := makeTempDir("TestSizeRolloverWithinDay", t)
	ctx := newTestContext(newFakeClock(day0), t)

	a, policy := newRolling(ctx, "B", "", filepath.Join(dir, "app-%d{yyyy-MM-dd}.%i.log"))
	policy.MaxFileSize = 300
	isNil(a.Start(), t)
	defer func() { _ = a.Stop() }()

	name := func(i int) string { return filepath.Join(dir, fmt.Sprintf("app-%s.%d.log", day(day0), i)) }
	equals(name(0), a.ActiveName(), t)

	for i := 0; i < 6; i++ {
		writeString(a, line50, t)
	}
	fileCount(dir, 1, t)

	writeString(a, line50, t)
	existsWithContent(name(0), []byte(strings.Repeat(line50, 6)), t)
	existsWithContent(name(1), []byte(line50), t)
	equals(name(1), a.ActiveName(), t)

	for i := 0; i < 3; i++ {
		writeString(a, line50, t)
	}
	existsWithContent(name(1), []byte(strings.Repeat(line50, 4)), t)
	fileCount(dir, 2, t)
	equals(1.0, testutil.ToFloat64(ctx.Metrics().Rotations.WithLabelValues("B", "size")), t)
}

func TestSizeRolloverWithRawFile(t *testing.T) {
	dir := makeTempDir("TestSizeRolloverWithRawFile", t)
	ctx := newTestContext(newFakeClock(day0), t)

	raw := filepath.Join(dir, "app.log")
	a, policy := newRolling(ctx, "B", raw, filepath.Join(dir, "app-%d{yyyy-MM-dd}.%i.log"))
	policy.MaxFileSize = 300
	isNil(a.Start(), t)
	defer func() { _ = a.Stop() }()

	for i := 0; i < 7; i++ {
		writeString(a, line50, t)
	}
	existsWithContent(filepath.Join(dir, "app-"+day(day0)+".0.log"), []byte(strings.Repeat(line50, 6)), t)
	existsWithContent(raw, []byte(line50), t)
	equals(raw, a.ActiveName(), t)
}

// TestMissingDateToken 缺少日期转换符的纯时间策略无法启动，也不会写任何文件
func TestMissingDateToken(t *testing.T) {
	dir := makeTempDir("TestMissingDateToken", t)
	ctx := newTestContext(newFakeClock(day0), t)

	a, policy := newRolling(ctx, "C", filepath.Join(dir, "app.log"), filepath.Join(dir, "app.%i.log"))
	err := a.Start()
	notNil(err, t)
	assert(IsConfigError(err), t, "expected *ConfigError, got %T", err)
	equals(false, a.IsStarted(), t)
	equals(false, policy.IsStarted(), t)
	hasStatus(ctx, status.Error, `does not contain a valid DateToken`, t)

	_, err = a.Write([]byte("nothing"))
	equals(ErrNotStarted, err, t)
	fileCount(dir, 0, t)
}

// TestRawFileCollision 同一 Context 内两个滚动写入器使用同一活动文件
func TestRawFileCollision(t *testing.T) {
	dir := makeTempDir("TestRawFileCollision", t)
	ctx := newTestContext(newFakeClock(day0), t)
	raw := filepath.Join(dir, "app.log")

	first, _ := newRolling(ctx, "FIRST", raw, filepath.Join(dir, "first-%d.log"))
	isNil(first.Start(), t)
	defer func() { _ = first.Stop() }()

	second, _ := newRolling(ctx, "SECOND", raw, filepath.Join(dir, "second-%d.log"))
	err := second.Start()
	notNil(err, t)
	assert(IsConfigError(err), t, "expected *ConfigError, got %T", err)
	equals(false, second.IsStarted(), t)
	equals("", second.ActiveName(), t)
	hasStatus(ctx, status.Error, `'File' option has the same value`, t)
}

func TestPatternCollision(t *testing.T) {
	dir := makeTempDir("TestPatternCollision", t)
	ctx := newTestContext(newFakeClock(day0), t)
	fnp := filepath.Join(dir, "app-%d.log")

	first, _ := newRolling(ctx, "FIRST", filepath.Join(dir, "a.log"), fnp)
	isNil(first.Start(), t)
	defer func() { _ = first.Stop() }()

	second, _ := newRolling(ctx, "SECOND", filepath.Join(dir, "b.log"), fnp)
	err := second.Start()
	notNil(err, t)
	hasStatus(ctx, status.Error, `'FileNamePattern' option has the same value`, t)
	notExist(filepath.Join(dir, "b.log"), t)
}

func TestRollingConfigErrors(t *testing.T) {
	dir := makeTempDir("TestRollingConfigErrors", t)
	ctx := newTestContext(newFakeClock(day0), t)

	cases := []struct {
		name    string
		fnp     string
		maxSize int64
		prudent bool
		msg     string
	}{
		{"empty", "", 0, false, `The FileNamePattern option must be set`},
		{"syntax", filepath.Join(dir, "app-%d{yyyy.log"), 0, false, `invalid FileNamePattern`},
		{"collision", filepath.Join(dir, "app-%d{EE}.log"), 0, false, `will result in collisions`},
		{"hour12", filepath.Join(dir, "app-%d{hh}.log"), 0, false, `will result in collisions`},
		{"integer", filepath.Join(dir, "app-%d.%i.log"), 0, false, `incompatible with a pure time based policy`},
		{"noInteger", filepath.Join(dir, "app-%d.log"), 100, false, `Missing integer token`},
		{"prudentGzip", filepath.Join(dir, "app-%d.log.gz"), 0, true, `Compression is not supported in prudent mode`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			a, policy := newRolling(ctx, "E-"+tc.name, "", tc.fnp)
			policy.MaxFileSize = tc.maxSize
			a.Prudent = tc.prudent
			err := a.Start()
			notNil(err, t)
			assert(IsConfigError(err), t, "expected *ConfigError, got %T: %v", err, err)
			equals(false, a.IsStarted(), t)
			hasStatus(ctx, status.Error, tc.msg, t)
		})
	}
	fileCount(dir, 0, t)

	noPolicy := NewRollingFileAppender(ctx, "NOPOLICY", filepath.Join(dir, "x.log"), nil)
	notNil(noPolicy.Start(), t)
}

// TestPrudentRollingBlanksRawFile 谨慎模式下忽略 File，活动文件即当前周期的渲染名
func TestPrudentRollingBlanksRawFile(t *testing.T) {
	dir := makeTempDir("TestPrudentRollingBlanksRawFile", t)
	clock := newFakeClock(day0)
	ctx := newTestContext(clock, t)

	a, _ := newRolling(ctx, "P", filepath.Join(dir, "app.log"), filepath.Join(dir, "app-%d{yyyy-MM-dd}.log"))
	a.Prudent = true
	isNil(a.Start(), t)
	defer func() { _ = a.Stop() }()
	hasStatus(ctx, status.Warn, `Setting "File" property to null on account of prudent mode`, t)

	writeString(a, "one\n", t)
	clock.Set(day0.AddDate(0, 0, 1))
	writeString(a, "two\n", t)

	notExist(filepath.Join(dir, "app.log"), t)
	existsWithContent(filepath.Join(dir, "app-"+day(day0)+".log"), []byte("one\n"), t)
	existsWithContent(filepath.Join(dir, "app-"+day(day0.AddDate(0, 0, 1))+".log"), []byte("two\n"), t)
}

// TestRenameFailureDefersRollover 重命名失败时继续写原文件
func TestRenameFailureDefersRollover(t *testing.T) {
	originalRename := osRename
	defer func() { osRename = originalRename }()

	dir := makeTempDir("TestRenameFailureDefersRollover", t)
	clock := newFakeClock(day0)
	ctx := newTestContext(clock, t)
	raw := filepath.Join(dir, "app.log")

	a, _ := newRolling(ctx, "R", raw, filepath.Join(dir, "app-%d{yyyy-MM-dd}.log"))
	isNil(a.Start(), t)
	defer func() { _ = a.Stop() }()
	writeString(a, "one\n", t)

	osRename = func(oldpath, newpath string) error {
		return &os.LinkError{Op: "rename", Old: oldpath, New: newpath, Err: errors.New("permission denied")}
	}
	clock.Set(day0.AddDate(0, 0, 1))
	writeString(a, "two\n", t)

	hasStatus(ctx, status.Warn, `RolloverFailure occurred. Deferring roll-over.`, t)
	equals(1.0, testutil.ToFloat64(ctx.Metrics().RotationFailures.WithLabelValues("R")), t)
	existsWithContent(raw, []byte("one\ntwo\n"), t)
	fileCount(dir, 1, t)

	osRename = originalRename
	clock.Set(day0.AddDate(0, 0, 2))
	writeString(a, "three\n", t)
	existsWithContent(filepath.Join(dir, "app-"+day(day0.AddDate(0, 0, 1))+".log"), []byte("one\ntwo\n"), t)
	existsWithContent(raw, []byte("three\n"), t)
}

// TestRolloverReopenFailure 滚动后新活动文件打开失败，退避期满后恢复的是新文件而不是上一周期的归档
func TestRolloverReopenFailure(t *testing.T) {
	dir := makeTempDir("TestRolloverReopenFailure", t)
	clock := newFakeClock(day0)
	ctx := newTestContext(clock, t)
	day1 := day0.AddDate(0, 0, 1)

	a, _ := newRolling(ctx, "RF", "", filepath.Join(dir, "%d{yyyy-MM-dd}", "app.log"))
	isNil(a.Start(), t)
	defer func() { _ = a.Stop() }()
	writeString(a, "day0", t)

	// 同名普通文件占住新周期的目录
	blocker := filepath.Join(dir, day(day1))
	isNil(os.WriteFile(blocker, nil, 0644), t)

	clock.Set(day1)
	_, err := a.Write([]byte("lost"))
	assert(errors.Is(err, ErrRecovering), t, "expected ErrRecovering, got %v", err)
	hasStatus(ctx, status.Error, `call failed`, t)
	equals(filepath.Join(dir, day(day1), "app.log"), a.ActiveName(), t)

	isNil(os.Remove(blocker), t)
	clock.Advance(time.Minute)
	writeString(a, "day1", t)

	hasStatus(ctx, status.Info, `recovered output stream`, t)
	existsWithContent(filepath.Join(dir, day(day1), "app.log"), []byte("day1"), t)
	existsWithContent(filepath.Join(dir, day(day0), "app.log"), []byte("day0"), t)
}

// TestRenameCreatesArchiveDir 归档名落在尚不存在的日期目录时先创建目录再改名
func TestRenameCreatesArchiveDir(t *testing.T) {
	dir := makeTempDir("TestRenameCreatesArchiveDir", t)
	clock := newFakeClock(day0)
	ctx := newTestContext(clock, t)
	raw := filepath.Join(dir, "app.log")

	a, _ := newRolling(ctx, "RD", raw, filepath.Join(dir, "%d{yyyy-MM}", "app-%d{yyyy-MM-dd, aux}.log"))
	isNil(a.Start(), t)
	defer func() { _ = a.Stop() }()
	writeString(a, "march\n", t)
	notExist(filepath.Join(dir, "2024-03"), t)

	clock.Set(time.Date(2024, time.April, 1, 10, 0, 0, 0, time.Local))
	writeString(a, "april\n", t)

	existsWithContent(filepath.Join(dir, "2024-03", "app-2024-03-01.log"), []byte("march\n"), t)
	existsWithContent(raw, []byte("april\n"), t)
	notExist(filepath.Join(dir, "2024-04"), t)
}

// TestTimeTriggerIdempotent 时钟不前进时，同一次越界只触发一次
func TestTimeTriggerIdempotent(t *testing.T) {
	dir := makeTempDir("TestTimeTriggerIdempotent", t)
	clock := newFakeClock(day0)
	ctx := newTestContext(clock, t)

	tp := NewTimeBasedPolicy(ctx, pattern.MustParse(filepath.Join(dir, "app-%d{yyyy-MM-dd}.log")), "")
	isNil(tp.Start(), t)
	equals(false, tp.IsTriggeringEvent(nil, nil), t)

	clock.Set(day0.AddDate(0, 0, 1))
	equals(true, tp.IsTriggeringEvent(nil, nil), t)
	for i := 0; i < 5; i++ {
		equals(false, tp.IsTriggeringEvent(nil, nil), t)
	}
	equals(filepath.Join(dir, "app-"+day(day0)+".log"), tp.ElapsedFileName(), t)
	equals(filepath.Join(dir, "app-"+day(day0.AddDate(0, 0, 1))+".log"), tp.CurrentFileName(), t)

	// 跨越多个周期也只触发一次，归档名为最后一个活动周期
	clock.Set(day0.AddDate(0, 0, 5))
	equals(true, tp.IsTriggeringEvent(nil, nil), t)
	equals(false, tp.IsTriggeringEvent(nil, nil), t)
	equals(filepath.Join(dir, "app-"+day(day0.AddDate(0, 0, 1))+".log"), tp.ElapsedFileName(), t)
}

type fakeActive struct {
	path string
	size int64
}

func (f fakeActive) Path() string { return f.path }
func (f fakeActive) Size() int64  { return f.size }

// TestSizeCountersMonotonic 固定时钟下计数器严格递增，越过周期边界时归零
func TestSizeCountersMonotonic(t *testing.T) {
	dir := makeTempDir("TestSizeCountersMonotonic", t)
	clock := newFakeClock(day0)
	ctx := newTestContext(clock, t)

	sp := NewSizeAndTimeBasedPolicy(ctx, pattern.MustParse(filepath.Join(dir, "app-%d{yyyy-MM-dd}.%i.log")), "", 10, "")
	isNil(sp.Start(), t)
	big := fakeActive{size: 100}

	var elapsed []string
	for i := 0; i < 200; i++ {
		if sp.IsTriggeringEvent(big, nil) {
			elapsed = append(elapsed, sp.ElapsedFileName())
		}
	}
	assert(len(elapsed) >= 5, t, "expected several size rollovers, got %d", len(elapsed))
	for i, name := range elapsed {
		equals(filepath.Join(dir, fmt.Sprintf("app-%s.%d.log", day(day0), i)), name, t)
	}
	last := sp.Counter()
	equals(len(elapsed), last, t)

	clock.Set(day0.AddDate(0, 0, 1))
	equals(true, sp.IsTriggeringEvent(fakeActive{}, nil), t)
	equals(filepath.Join(dir, fmt.Sprintf("app-%s.%d.log", day(day0), last)), sp.ElapsedFileName(), t)
	equals(0, sp.Counter(), t)
	equals(filepath.Join(dir, fmt.Sprintf("app-%s.0.log", day(day0.AddDate(0, 0, 1)))), sp.CurrentFileName(), t)
}

// TestSamplingGate 采样窗口按 1、3、7、15 次调用逐步扩大，之后固定
func TestSamplingGate(t *testing.T) {
	g := newSamplingGate()
	var probed []int
	for i := 1; i <= 64; i++ {
		if g.probe() {
			probed = append(probed, i)
		}
	}
	equals([]int{1, 3, 7, 15, 31, 47, 63}, probed, t)
}

// TestRestartResumesCounter 重启后不会覆盖已有归档，也不会复用已用过的计数器
func TestRestartResumesCounter(t *testing.T) {
	dir := makeTempDir("TestRestartResumesCounter", t)
	raw := filepath.Join(dir, "app.log")
	d := day(day0)
	isNil(os.WriteFile(filepath.Join(dir, "app-"+d+".0.log"), []byte("zero"), 0644), t)
	isNil(os.WriteFile(filepath.Join(dir, "app-"+d+".1.log"), []byte("one"), 0644), t)
	isNil(os.WriteFile(raw, []byte("previous run, long enough"), 0644), t)
	isNil(os.Chtimes(raw, day0, day0), t)

	ctx := newTestContext(newFakeClock(day0.Add(time.Hour)), t)
	a, policy := newRolling(ctx, "S", raw, filepath.Join(dir, "app-%d{yyyy-MM-dd}.%i.log"))
	policy.MaxFileSize = 10
	isNil(a.Start(), t)
	defer func() { _ = a.Stop() }()

	sp := policy.Trigger().(*SizeAndTimeBasedPolicy)
	equals(2, sp.Counter(), t)
	hasStatus(ctx, status.Info, `resuming period`, t)

	writeString(a, "fresh\n", t)
	existsWithContent(filepath.Join(dir, "app-"+d+".0.log"), []byte("zero"), t)
	existsWithContent(filepath.Join(dir, "app-"+d+".1.log"), []byte("one"), t)
	existsWithContent(filepath.Join(dir, "app-"+d+".2.log"), []byte("previous run, long enough"), t)
	existsWithContent(raw, []byte("fresh\n"), t)
}

// TestRestartWithoutRawFile 没有独立活动文件时，继续追加到计数器最高的文件
func TestRestartWithoutRawFile(t *testing.T) {
	dir := makeTempDir("TestRestartWithoutRawFile", t)
	d := day(day0)
	isNil(os.WriteFile(filepath.Join(dir, "app-"+d+".0.log"), []byte("zero"), 0644), t)
	isNil(os.WriteFile(filepath.Join(dir, "app-"+d+".3.log"), []byte("three"), 0644), t)
	isNil(os.WriteFile(filepath.Join(dir, "app-"+day(day0.AddDate(0, 0, -1))+".7.log"), []byte("old"), 0644), t)

	ctx := newTestContext(newFakeClock(day0), t)
	a, policy := newRolling(ctx, "S", "", filepath.Join(dir, "app-%d{yyyy-MM-dd}.%i.log"))
	policy.MaxFileSize = 1000
	isNil(a.Start(), t)
	defer func() { _ = a.Stop() }()

	equals(filepath.Join(dir, "app-"+d+".3.log"), a.ActiveName(), t)
	writeString(a, "+more", t)
	existsWithContent(filepath.Join(dir, "app-"+d+".3.log"), []byte("three+more"), t)
}

// TestRestartKeepsPeriodOfExistingFile 已有活动文件的修改时间决定启动时的周期
func TestRestartKeepsPeriodOfExistingFile(t *testing.T) {
	dir := makeTempDir("TestRestartKeepsPeriodOfExistingFile", t)
	raw := filepath.Join(dir, "app.log")
	yesterday := day0.AddDate(0, 0, -1)
	isNil(os.WriteFile(raw, []byte("yesterday\n"), 0644), t)
	isNil(os.Chtimes(raw, yesterday, yesterday), t)

	ctx := newTestContext(newFakeClock(day0), t)
	a, _ := newRolling(ctx, "K", raw, filepath.Join(dir, "app-%d{yyyy-MM-dd}.log"))
	isNil(a.Start(), t)
	defer func() { _ = a.Stop() }()

	writeString(a, "today\n", t)
	existsWithContent(filepath.Join(dir, "app-"+day(yesterday)+".log"), []byte("yesterday\n"), t)
	existsWithContent(raw, []byte("today\n"), t)
}

func TestNoRotationTriggerOverride(t *testing.T) {
	dir := makeTempDir("TestNoRotationTriggerOverride", t)
	clock := newFakeClock(day0)
	ctx := newTestContext(clock, t)
	raw := filepath.Join(dir, "app.log")

	a, _ := newRolling(ctx, "N", raw, filepath.Join(dir, "app-%d{yyyy-MM-dd}.log"))
	nr := &NoRotationPolicy{}
	a.SetTriggeringPolicy(nr)
	isNil(a.Start(), t)
	equals(true, nr.IsStarted(), t)

	writeString(a, "one\n", t)
	clock.Set(day0.AddDate(0, 0, 3))
	writeString(a, "two\n", t)
	existsWithContent(raw, []byte("one\ntwo\n"), t)
	fileCount(dir, 1, t)

	isNil(a.Stop(), t)
	equals(false, nr.IsStarted(), t)
}
