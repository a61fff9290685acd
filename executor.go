package logrollx

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

// ExecutorConfig 执行器配置
type ExecutorConfig struct {
	Workers   int `json:"workers" yaml:"workers"`     // 工作协程数，默认 2
	QueueSize int `json:"queueSize" yaml:"queueSize"` // 队列容量，默认 256
}

// DefExecutorConfig 默认执行器配置
func DefExecutorConfig() ExecutorConfig {
	return ExecutorConfig{Workers: 2, QueueSize: 256}
}

// Task 是提交给执行器的任务
type Task func() error

// Future 表示已提交任务的结果
type Future struct {
	done chan struct{}
	err  error
}

func newFuture() *Future {
	return &Future{done: make(chan struct{})}
}

func (f *Future) complete(err error) {
	f.err = err
	close(f.done)
}

// Done 返回任务结束时关闭的通道
func (f *Future) Done() <-chan struct{} { return f.done }

// Wait 等待任务结束
//
// 返回值:
//   - error: 任务自身的错误；任务被放弃时为 ErrAbandoned；ctx 结束时为 ctx.Err()
func (f *Future) Wait(ctx context.Context) error {
	select {
	case <-f.done:
		return f.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

type job struct {
	name string
	task Task
	fut  *Future
}

const (
	executorIdle int32 = iota
	executorRunning
	executorStopped
)

// Executor 是固定数量工作协程的任务执行器，用于压缩与异步清理。
//
// 生命周期: NewExecutor -> Start -> Shutdown。Shutdown 之后不可再次启动。
// 正在执行的任务不会被中断，只有排队中尚未开始的任务会在宽限期结束后被放弃。
type Executor struct {
	cfg       ExecutorConfig
	mu        sync.Mutex
	state     int32
	queue     chan job
	abandon   chan struct{}
	group     errgroup.Group
	completed atomic.Int64
	abandoned atomic.Int64
}

// NewExecutor 创建执行器，非法配置使用默认值
func NewExecutor(cfg ExecutorConfig) *Executor {
	def := DefExecutorConfig()
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = def.QueueSize
	}
	return &Executor{cfg: cfg}
}

// Start 启动工作协程
func (e *Executor) Start() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != executorIdle {
		return
	}
	e.queue = make(chan job, e.cfg.QueueSize)
	e.abandon = make(chan struct{})
	for i := 0; i < e.cfg.Workers; i++ {
		e.group.Go(e.worker)
	}
	e.state = executorRunning
}

// IsRunning 报告执行器是否接受新任务
func (e *Executor) IsRunning() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state == executorRunning
}

func (e *Executor) worker() error {
	for j := range e.queue {
		select {
		case <-e.abandon:
			e.abandoned.Add(1)
			j.fut.complete(ErrAbandoned)
			continue
		default:
		}
		j.fut.complete(e.run(j))
		e.completed.Add(1)
	}
	return nil
}

func (e *Executor) run(j job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("logrollx: task %s panicked: %v", j.name, r)
		}
	}()
	return j.task()
}

// Submit 提交任务，不阻塞
//
// 参数:
//   - name: 任务名称，用于错误信息
//   - task: 任务
//
// 返回值:
//   - *Future: 任务结果
//   - error: 执行器未运行时为 ErrExecutorStopped，队列已满时为 ErrQueueFull
func (e *Executor) Submit(name string, task Task) (*Future, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != executorRunning {
		return nil, ErrExecutorStopped
	}
	j := job{name: name, task: task, fut: newFuture()}
	select {
	case e.queue <- j:
		return j.fut, nil
	default:
		return nil, ErrQueueFull
	}
}

// Shutdown 停止接受新任务，并在 grace 内等待队列排空
//
// 宽限期结束后，尚未开始的任务被放弃，其 Future 返回 ErrAbandoned；
// 正在执行的任务会继续运行至结束，Shutdown 在所有工作协程退出后返回。
//
// 返回值:
//   - int: 被放弃的任务数
func (e *Executor) Shutdown(grace time.Duration) int {
	e.mu.Lock()
	if e.state != executorRunning {
		e.state = executorStopped
		e.mu.Unlock()
		return 0
	}
	e.state = executorStopped
	close(e.queue)
	e.mu.Unlock()

	done := make(chan struct{})
	go func() {
		_ = e.group.Wait()
		close(done)
	}()

	timer := time.NewTimer(grace)
	defer timer.Stop()
	select {
	case <-done:
	case <-timer.C:
		close(e.abandon)
		<-done
	}
	return int(e.abandoned.Load())
}

// Completed 返回已执行完成的任务数
func (e *Executor) Completed() int64 { return e.completed.Load() }
