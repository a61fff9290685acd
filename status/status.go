// Package status 收集滚动引擎内部产生的诊断事件。
//
// 引擎不会向调用方抛出运行期 IO 错误，而是将其作为 Status 记录到 Manager，
// 并转发给已注册的 Listener（zap、slog 或控制台）。
package status

import (
	"fmt"
	"regexp"
	"sync"
	"time"
)

// Level 表示事件级别
type Level int

const (
	Info Level = iota
	Warn
	Error
)

func (l Level) String() string {
	switch l {
	case Info:
		return "INFO"
	case Warn:
		return "WARN"
	case Error:
		return "ERROR"
	}
	return fmt.Sprintf("Level(%d)", int(l))
}

// Status 是一条诊断事件
type Status struct {
	Level   Level
	Message string
	Origin  string // 产生事件的组件名称
	Cause   error
	Time    time.Time
}

func (s Status) String() string {
	if s.Cause != nil {
		return fmt.Sprintf("%s in %s - %s: %v", s.Level, s.Origin, s.Message, s.Cause)
	}
	return fmt.Sprintf("%s in %s - %s", s.Level, s.Origin, s.Message)
}

// Listener 接收新增的事件
type Listener interface {
	OnStatus(s Status)
}

// ListenerFunc 将普通函数适配为 Listener
type ListenerFunc func(s Status)

// OnStatus 实现 Listener 接口
func (f ListenerFunc) OnStatus(s Status) { f(s) }

const (
	// headLimit 与 tailLimit 限制保留的事件数量：保留最早的 headLimit 条与最近的 tailLimit 条
	headLimit = 150
	tailLimit = 150
)

// Manager 保存事件并通知监听器，可并发使用
type Manager struct {
	mu        sync.Mutex
	head      []Status
	tail      []Status
	tailPos   int
	count     int
	highest   Level
	listeners []Listener
	now       func() time.Time
}

// NewManager 创建事件管理器
func NewManager() *Manager {
	return &Manager{now: time.Now}
}

// SetClock 替换事件时间来源，主要用于测试
func (m *Manager) SetClock(now func() time.Time) {
	m.mu.Lock()
	m.now = now
	m.mu.Unlock()
}

// Add 记录一条事件并同步通知监听器
func (m *Manager) Add(s Status) {
	m.mu.Lock()
	if s.Time.IsZero() {
		s.Time = m.now()
	}
	m.count++
	if s.Level > m.highest {
		m.highest = s.Level
	}
	if len(m.head) < headLimit {
		m.head = append(m.head, s)
	} else if len(m.tail) < tailLimit {
		m.tail = append(m.tail, s)
	} else {
		m.tail[m.tailPos] = s
		m.tailPos = (m.tailPos + 1) % tailLimit
	}
	listeners := append([]Listener(nil), m.listeners...)
	m.mu.Unlock()

	for _, l := range listeners {
		l.OnStatus(s)
	}
}

// AddListener 注册监听器
func (m *Manager) AddListener(l Listener) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, l)
}

// List 按时间顺序返回保留的事件
func (m *Manager) List() []Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Status, 0, len(m.head)+len(m.tail))
	out = append(out, m.head...)
	out = append(out, m.tail[m.tailPos:]...)
	out = append(out, m.tail[:m.tailPos]...)
	return out
}

// Count 返回累计事件数（包含已被淘汰的事件）
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.count
}

// HighestLevel 返回累计出现过的最高级别
func (m *Manager) HighestLevel() Level {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.highest
}

// Clear 清空事件，保留监听器
func (m *Manager) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.head, m.tail = nil, nil
	m.tailPos, m.count, m.highest = 0, 0, Info
}

// ContainsMatch 报告是否存在指定级别且消息匹配正则的事件
func (m *Manager) ContainsMatch(level Level, expr string) bool {
	re, err := regexp.Compile(expr)
	if err != nil {
		return false
	}
	for _, s := range m.List() {
		if s.Level == level && re.MatchString(s.Message) {
			return true
		}
	}
	return false
}
