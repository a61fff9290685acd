package logrollx

import (
	"sync"
	"time"

	"gitee.com/MM-Q/logrollx/status"
)

var (
	// currentTime 是一个函数，用于返回当前时间。它是一个变量，这样测试时可以对其进行模拟。
	currentTime = time.Now
)

// Clock 是时间来源
type Clock interface {
	Now() time.Time
}

// ClockFunc 将普通函数适配为 Clock
type ClockFunc func() time.Time

// Now 实现 Clock 接口
func (f ClockFunc) Now() time.Time { return f() }

// systemClock 读取包级变量 currentTime
type systemClock struct{}

func (systemClock) Now() time.Time { return currentTime() }

// Context 是一组写入器共享的运行环境。
//
// 它持有状态事件管理器、时钟、文件名冲突登记表、压缩执行器与指标。
// 执行器由 Context 显式启动与停止，滚动策略在构造时获得它的引用。
type Context struct {
	name     string
	mu       sync.Mutex
	status   *status.Manager
	clock    Clock
	registry *CollisionRegistry
	execCfg  ExecutorConfig
	executor *Executor
	metrics  *Metrics
	started  bool
}

// Option 用于定制 Context
type Option func(*Context)

// WithName 设置 Context 名称
func WithName(name string) Option {
	return func(c *Context) { c.name = name }
}

// WithClock 替换时钟，主要用于测试
func WithClock(clock Clock) Option {
	return func(c *Context) { c.clock = clock }
}

// WithStatusManager 使用外部的事件管理器
func WithStatusManager(m *status.Manager) Option {
	return func(c *Context) { c.status = m }
}

// WithStatusListener 注册事件监听器，与 WithStatusManager 同时使用时应放在其后
func WithStatusListener(l status.Listener) Option {
	return func(c *Context) { c.status.AddListener(l) }
}

// WithExecutorConfig 设置压缩执行器参数
func WithExecutorConfig(cfg ExecutorConfig) Option {
	return func(c *Context) { c.execCfg = cfg }
}

// NewContext 创建 Context，执行器需调用 Start 后才接受任务
func NewContext(opts ...Option) *Context {
	c := &Context{
		name:     "default",
		status:   status.NewManager(),
		clock:    systemClock{},
		registry: NewCollisionRegistry(),
		execCfg:  DefExecutorConfig(),
		metrics:  NewMetrics(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.status.SetClock(c.clock.Now)
	c.executor = NewExecutor(c.execCfg)
	return c
}

// Name 返回 Context 名称
func (c *Context) Name() string { return c.name }

// Status 返回事件管理器
func (c *Context) Status() *status.Manager { return c.status }

// Now 返回时钟当前时间
func (c *Context) Now() time.Time { return c.clock.Now() }

// Registry 返回文件名冲突登记表
func (c *Context) Registry() *CollisionRegistry { return c.registry }

// Metrics 返回指标
func (c *Context) Metrics() *Metrics { return c.metrics }

// Executor 返回压缩执行器
func (c *Context) Executor() *Executor {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.executor
}

// Start 启动执行器，重复调用无副作用
func (c *Context) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started {
		return
	}
	c.executor.Start()
	c.started = true
}

// IsStarted 报告 Context 是否已启动
func (c *Context) IsStarted() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.started
}

// Stop 关闭执行器，排队中的任务最多等待 grace；超时后未开始的任务被放弃
//
// 返回值:
//   - int: 被放弃的任务数
func (c *Context) Stop(grace time.Duration) int {
	c.mu.Lock()
	ex := c.executor
	wasStarted := c.started
	c.started = false
	c.mu.Unlock()

	if !wasStarted {
		return 0
	}
	abandoned := ex.Shutdown(grace)
	if abandoned > 0 {
		c.status.Add(status.Status{
			Level:   status.Warn,
			Origin:  "context",
			Message: "executor did not drain within the grace period, abandoned queued tasks",
		})
	}
	return abandoned
}

// Reset 停止执行器并清空冲突登记表，之后可以重新 Start
func (c *Context) Reset(grace time.Duration) {
	c.Stop(grace)
	c.registry.Clear()

	c.mu.Lock()
	c.executor = NewExecutor(c.execCfg)
	c.mu.Unlock()
}

// reporter 以固定来源名称向 Context 报告事件
type reporter struct {
	ctx    *Context
	origin string
}

func (r reporter) add(level status.Level, msg string, cause error) {
	r.ctx.status.Add(status.Status{Level: level, Message: msg, Origin: r.origin, Cause: cause})
}

func (r reporter) addInfo(msg string)               { r.add(status.Info, msg, nil) }
func (r reporter) addWarn(msg string, cause error)  { r.add(status.Warn, msg, cause) }
func (r reporter) addError(msg string, cause error) { r.add(status.Error, msg, cause) }
