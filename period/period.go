// Package period 提供按日历对齐的周期计算。
//
// Calendar 根据日期子模式推断滚动周期（分钟、小时、天、周、月……），
// 负责计算某个时刻所在周期的起点、下一个周期边界，以及判断该子模式
// 在相邻周期之间是否会渲染出相同的文件名。
package period

import (
	"errors"
	"fmt"
	"time"
)

// Kind 表示周期类型
type Kind int

const (
	// Unknown 表示无法从子模式推断周期
	Unknown Kind = iota
	Millisecond
	Second
	Minute
	Hour
	HalfDay
	Day
	Week
	Month
	Year
)

var kindNames = map[Kind]string{
	Unknown:     "unknown",
	Millisecond: "millisecond",
	Second:      "second",
	Minute:      "minute",
	Hour:        "hour",
	HalfDay:     "half-day",
	Day:         "day",
	Week:        "week",
	Month:       "month",
	Year:        "year",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Formatter 是日期子模式的渲染接口
type Formatter interface {
	Format(t time.Time) string
}

// ErrUnknownPeriod 表示子模式在任何周期内都不会变化
var ErrUnknownPeriod = errors.New("date pattern does not define a rollover period")

// collisionWindow 是碰撞检测时连续渲染的周期数。
// 小时取 13 可以发现 12 小时制，天取 8 可以发现只含星期的模式，
// 周取 54 可以发现缺少年份的周序号。
var collisionWindow = map[Kind]int{
	Hour: 13,
	Day:  8,
	Week: 54,
}

// detectionOrder 是推断周期时依次尝试的类型
var detectionOrder = []Kind{Millisecond, Second, Minute, Hour, HalfDay, Day, Week, Month, Year}

// Calendar 是与日期子模式绑定的周期日历，创建后只读，可并发使用
type Calendar struct {
	kind          Kind
	loc           *time.Location
	format        Formatter
	collisionFree bool
}

// New 根据子模式推断周期并创建日历
//
// 参数:
//   - f: 日期子模式的渲染器
//   - loc: 周期计算使用的时区，nil 表示本地时区
//
// 返回值:
//   - *Calendar: 日历
//   - error: 子模式无法推断出周期时返回 ErrUnknownPeriod
func New(f Formatter, loc *time.Location) (*Calendar, error) {
	if loc == nil {
		loc = time.Local
	}
	c := &Calendar{loc: loc, format: f}

	// 以 1970-01-01 为参考点，找到第一个使渲染结果发生变化的周期单位
	ref := time.Date(1970, time.January, 1, 0, 0, 0, 0, loc)
	for _, k := range detectionOrder {
		c.kind = k
		if f.Format(ref) != f.Format(c.Relative(ref, 1)) {
			break
		}
		c.kind = Unknown
	}
	if c.kind == Unknown {
		return nil, ErrUnknownPeriod
	}

	c.collisionFree = c.checkCollisionFree(ref)
	return c, nil
}

// Kind 返回周期类型
func (c *Calendar) Kind() Kind { return c.kind }

// Location 返回日历时区
func (c *Calendar) Location() *time.Location { return c.loc }

// IsCollisionFree 报告子模式在相邻周期内是否总能渲染出不同的结果
func (c *Calendar) IsCollisionFree() bool { return c.collisionFree }

func (c *Calendar) checkCollisionFree(ref time.Time) bool {
	n, ok := collisionWindow[c.kind]
	if !ok {
		n = 2
	}
	seen := make(map[string]struct{}, n)
	p := c.Start(ref)
	for i := 0; i < n; i++ {
		s := c.format.Format(p)
		if _, dup := seen[s]; dup {
			return false
		}
		seen[s] = struct{}{}
		p = c.Next(p)
	}
	return true
}

// Start 返回 t 所在周期的起点（位于日历时区）
func (c *Calendar) Start(t time.Time) time.Time {
	t = t.In(c.loc)
	y, m, d := t.Date()
	switch c.kind {
	case Millisecond:
		return t.Truncate(time.Millisecond)
	case Second:
		return time.Date(y, m, d, t.Hour(), t.Minute(), t.Second(), 0, c.loc)
	case Minute:
		return time.Date(y, m, d, t.Hour(), t.Minute(), 0, 0, c.loc)
	case Hour:
		return time.Date(y, m, d, t.Hour(), 0, 0, 0, c.loc)
	case HalfDay:
		h := 0
		if t.Hour() >= 12 {
			h = 12
		}
		return time.Date(y, m, d, h, 0, 0, 0, c.loc)
	case Day:
		return time.Date(y, m, d, 0, 0, 0, 0, c.loc)
	case Week:
		// 周从星期一开始
		offset := (int(t.Weekday()) + 6) % 7
		return time.Date(y, m, d-offset, 0, 0, 0, 0, c.loc)
	case Month:
		return time.Date(y, m, 1, 0, 0, 0, 0, c.loc)
	case Year:
		return time.Date(y, time.January, 1, 0, 0, 0, 0, c.loc)
	}
	return t
}

// Next 返回 t 所在周期之后下一个周期的起点
func (c *Calendar) Next(t time.Time) time.Time {
	return c.Relative(t, 1)
}

// Relative 返回 t 所在周期向前或向后偏移 n 个周期后的周期起点
func (c *Calendar) Relative(t time.Time, n int) time.Time {
	s := c.Start(t)
	y, m, d := s.Date()
	switch c.kind {
	case Millisecond:
		return s.Add(time.Duration(n) * time.Millisecond)
	case Second:
		return s.Add(time.Duration(n) * time.Second)
	case Minute:
		return s.Add(time.Duration(n) * time.Minute)
	case Hour:
		return c.Start(s.Add(time.Duration(n) * time.Hour))
	case HalfDay:
		return c.Start(time.Date(y, m, d, s.Hour()+12*n, 0, 0, 0, c.loc))
	case Day:
		return time.Date(y, m, d+n, 0, 0, 0, 0, c.loc)
	case Week:
		return time.Date(y, m, d+7*n, 0, 0, 0, 0, c.loc)
	case Month:
		return time.Date(y, m+time.Month(n), 1, 0, 0, 0, 0, c.loc)
	case Year:
		return time.Date(y+n, time.January, 1, 0, 0, 0, 0, c.loc)
	}
	return s
}

// PeriodsBetween 返回从 from 所在周期到 to 所在周期经过的周期数，to 早于 from 时为负数
func (c *Calendar) PeriodsBetween(from, to time.Time) int {
	a, b := c.Start(from), c.Start(to)
	if b.Before(a) {
		return -c.PeriodsBetween(to, from)
	}
	switch c.kind {
	case Month:
		return (b.Year()-a.Year())*12 + int(b.Month()-a.Month())
	case Year:
		return b.Year() - a.Year()
	}
	// 以平均周期长度估算，再逐步修正，避免夏令时造成的偏差
	n := int(b.Sub(a) / c.approxLength())
	for c.Relative(a, n).After(b) {
		n--
	}
	for !c.Relative(a, n+1).After(b) {
		n++
	}
	return n
}

func (c *Calendar) approxLength() time.Duration {
	switch c.kind {
	case Millisecond:
		return time.Millisecond
	case Second:
		return time.Second
	case Minute:
		return time.Minute
	case Hour:
		return time.Hour
	case HalfDay:
		return 12 * time.Hour
	case Day:
		return 24 * time.Hour
	case Week:
		return 7 * 24 * time.Hour
	}
	return 24 * time.Hour
}
