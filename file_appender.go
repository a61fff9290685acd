package logrollx

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap/zapcore"
)

// 编译时接口实现检查
var (
	_ io.WriteCloser      = (*FileAppender)(nil)
	_ zapcore.WriteSyncer = (*FileAppender)(nil)
	_ ActiveFile          = activeView{}
)

// FileAppender 将字节写入一个文件。
//
// 普通模式下文件以追加方式打开。谨慎模式（Prudent）允许多个独立进程写同一个文件：
// 每次写入都会获取独占的建议锁，把写入位置校正到文件末尾，写完后释放锁。
//
// 启动时会在 Context 的冲突登记表中声明目标文件；同一 Context 内另一个名称不同的
// 写入器声明同一文件时，启动失败并返回 *ConfigError，文件不会被打开。
type FileAppender struct {
	reporter

	// Name 是写入器名称，用于冲突检测与诊断信息
	Name string

	// File 是活动文件路径
	File string

	// Append 为 false 时启动会截断已有文件。默认 true。
	Append bool

	// Prudent 开启谨慎模式，开启后 Append 强制为 true
	Prudent bool

	// Buffer 不为 nil 时关闭立即刷新，写入经由缓冲层批量落盘
	Buffer *BufCfg

	mu         sync.Mutex
	activeName string
	file       *os.File
	identity   os.FileInfo // 谨慎模式下打开时的文件身份
	bw         *bufferedWriter
	size       int64
	started    bool
	closed     bool

	retry     *backoff.ExponentialBackOff
	nextRetry time.Time
}

// NewFileAppender 创建写入器
//
// 参数:
//   - ctx: 运行环境，为 nil 时创建独立的 Context
//   - name: 写入器名称
//   - file: 活动文件路径
func NewFileAppender(ctx *Context, name, file string) *FileAppender {
	if ctx == nil {
		ctx = NewContext()
	}
	return &FileAppender{
		reporter: reporter{ctx: ctx, origin: name},
		Name:     name,
		File:     file,
		Append:   true,
	}
}

// Context 返回写入器所属的运行环境
func (a *FileAppender) Context() *Context { return a.ctx }

// Start 校验配置、检查冲突并打开文件
func (a *FileAppender) Start() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.started {
		return nil
	}

	a.File = preprocessPath(a.File)
	if a.File == "" {
		err := &ConfigError{Origin: a.Name, Msg: `"File" property not set for appender named [` + a.Name + "]"}
		a.addError(err.Msg, nil)
		return err
	}
	if err := validateFilePath(a.File); err != nil {
		cerr := &ConfigError{Origin: a.Name, Msg: "invalid \"File\" property", Err: err}
		a.addError(cerr.Error(), nil)
		return cerr
	}
	a.applyPrudent()

	if err := a.claimFile(a.File); err != nil {
		return err
	}
	if err := a.openLocked(a.File, 0); err != nil {
		a.addError(fmt.Sprintf("openFile(%s,%t) call failed", a.File, a.Append), err)
		return err
	}
	a.started = true
	return nil
}

// applyPrudent 谨慎模式下强制追加
func (a *FileAppender) applyPrudent() {
	if a.Prudent && !a.Append {
		a.addWarn(`Setting "Append" property to true on account of "Prudent" mode`, nil)
		a.Append = true
	}
}

// claimFile 在登记表中声明文件，冲突时报告两条错误
func (a *FileAppender) claimFile(path string) error {
	if err := a.ctx.Registry().ClaimFile(path, a.Name); err != nil {
		a.addError(err.Error(), nil)
		a.addError("Collisions detected with FileAppender/RollingAppender instances defined earlier. Aborting.", nil)
		return err
	}
	return nil
}

// openLocked 打开活动文件，必要时创建父目录
//
// 参数:
//   - name: 文件路径
//   - mode: 新建文件的权限，为 0 时使用默认值
func (a *FileAppender) openLocked(name string, mode os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(name), defaultDirPerm); err != nil {
		return fmt.Errorf("logrollx: failed to create parent directories for [%s]: %w", name, err)
	}
	if mode == 0 {
		mode = defaultFilePerm
	}

	flags := os.O_CREATE | os.O_WRONLY
	switch {
	case !a.Append:
		flags |= os.O_TRUNC
	case !a.Prudent:
		flags |= os.O_APPEND
	}
	f, err := os.OpenFile(name, flags, mode)
	if err != nil {
		return fmt.Errorf("logrollx: failed to open [%s]: %w", name, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return fmt.Errorf("logrollx: failed to stat [%s]: %w", name, err)
	}

	a.file = f
	a.activeName = name
	a.identity = info
	a.size = info.Size()
	if a.Buffer != nil {
		a.bw = newBufferedWriter(sinkWriter{a}, a.Buffer, a.ctx.Now)
	} else {
		a.bw = nil
	}
	return nil
}

// closeLocked 刷新缓冲并关闭文件
func (a *FileAppender) closeLocked() error {
	if a.file == nil {
		return nil
	}
	var err error
	if a.bw != nil {
		err = a.bw.Flush()
	}
	if cerr := a.file.Close(); cerr != nil && err == nil {
		err = cerr
	}
	a.file = nil
	a.bw = nil
	if err != nil {
		return fmt.Errorf("logrollx: failed to close [%s]: %w", a.activeName, err)
	}
	return nil
}

// Write 实现 io.Writer 接口
func (a *FileAppender) Write(p []byte) (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.writable(); err != nil {
		return 0, err
	}
	return a.writeLocked(p)
}

func (a *FileAppender) writable() error {
	switch {
	case a.started:
		return nil
	case a.closed:
		return ErrClosed
	default:
		return ErrNotStarted
	}
}

// writeLocked 写入数据；文件处于恢复期时按退避间隔尝试重新打开
func (a *FileAppender) writeLocked(p []byte) (int, error) {
	if a.file == nil {
		if err := a.recoverLocked(); err != nil {
			return 0, err
		}
	}

	var (
		n   int
		err error
	)
	if a.bw != nil {
		n, err = a.bw.Write(p)
	} else {
		n, err = a.writeThrough(p)
	}
	if err != nil {
		a.addWarn(fmt.Sprintf("IO failure while writing to file [%s]", a.activeName), err)
		a.ctx.Metrics().WriteFailures.WithLabelValues(a.Name).Inc()
		_ = a.closeLocked()
		a.scheduleRetry()
		return n, err
	}
	if a.retry != nil {
		a.retry.Reset()
	}
	return n, nil
}

// writeThrough 直接写入文件，谨慎模式下走加锁流程
func (a *FileAppender) writeThrough(p []byte) (int, error) {
	if a.Prudent {
		return a.safeWrite(p)
	}
	n, err := a.file.Write(p)
	a.size += int64(n)
	return n, err
}

// safeWrite 加锁、校正写入位置、写入、释放锁；任何退出路径都会释放锁
func (a *FileAppender) safeWrite(p []byte) (int, error) {
	if err := a.ensureIdentity(); err != nil {
		return 0, err
	}

	f := a.file
	if err := lockFile(f); err != nil {
		return 0, fmt.Errorf("logrollx: failed to lock [%s]: %w", a.activeName, err)
	}
	defer func() {
		if err := unlockFile(f); err != nil {
			a.addWarn(fmt.Sprintf("failed to unlock [%s]", a.activeName), err)
		}
	}()

	pos, err := f.Seek(0, io.SeekCurrent)
	if err != nil {
		return 0, err
	}
	info, err := f.Stat()
	if err != nil {
		return 0, err
	}
	if pos != info.Size() {
		if _, err := f.Seek(info.Size(), io.SeekStart); err != nil {
			return 0, err
		}
	}
	n, err := f.Write(p)
	a.size = info.Size() + int64(n)
	return n, err
}

// ensureIdentity 检查活动路径是否仍指向已打开的文件，被其他进程移走或删除时重新打开
func (a *FileAppender) ensureIdentity() error {
	cur, err := os.Stat(a.activeName)
	if err == nil && os.SameFile(cur, a.identity) {
		return nil
	}
	a.addWarn(fmt.Sprintf("File [%s] was moved or deleted by another process, reopening", a.activeName), err)
	name := a.activeName
	_ = a.file.Close()
	a.file = nil
	return a.openLocked(name, 0)
}

// sinkWriter 是缓冲层的底层写入器
type sinkWriter struct{ a *FileAppender }

func (s sinkWriter) Write(p []byte) (int, error) { return s.a.writeThrough(p) }

// scheduleRetry 按指数退避计算下一次重新打开的时间
func (a *FileAppender) scheduleRetry() {
	if a.retry == nil {
		a.retry = backoff.NewExponentialBackOff()
		a.retry.InitialInterval = 100 * time.Millisecond
		a.retry.MaxInterval = 30 * time.Second
		a.retry.MaxElapsedTime = 0
		a.retry.Reset()
	}
	a.nextRetry = a.ctx.Now().Add(a.retry.NextBackOff())
}

// recoverLocked 在退避期结束后重新打开活动文件
func (a *FileAppender) recoverLocked() error {
	if a.ctx.Now().Before(a.nextRetry) {
		return ErrRecovering
	}
	name := a.activeName
	a.Append = true
	if err := a.openLocked(name, 0); err != nil {
		a.scheduleRetry()
		return err
	}
	a.addInfo(fmt.Sprintf("recovered output stream for [%s]", name))
	if a.retry != nil {
		a.retry.Reset()
	}
	return nil
}

// ActiveName 返回当前活动文件路径
func (a *FileAppender) ActiveName() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.activeName
}

// Size 返回活动文件大小
func (a *FileAppender) Size() int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.currentSize()
}

// currentSize 谨慎模式下读取文件实际大小，其余情况返回已接受的字节数（含缓冲区）
func (a *FileAppender) currentSize() int64 {
	if a.Prudent && a.activeName != "" {
		if fi, err := os.Stat(a.activeName); err == nil {
			return fi.Size()
		}
	}
	if a.bw != nil {
		return a.size + int64(a.bw.Buffered())
	}
	return a.size
}

// activeView 在持有写入锁期间向触发策略暴露活动文件
type activeView struct{ a *FileAppender }

func (v activeView) Path() string { return v.a.activeName }
func (v activeView) Size() int64  { return v.a.currentSize() }

// Sync 刷新缓冲并同步到磁盘，实现 zapcore.WriteSyncer
func (a *FileAppender) Sync() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.file == nil {
		return nil
	}
	if a.bw != nil {
		if err := a.bw.Flush(); err != nil {
			return err
		}
	}
	return a.file.Sync()
}

// Flush 仅刷新缓冲区
func (a *FileAppender) Flush() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.bw == nil {
		return nil
	}
	return a.bw.Flush()
}

// IsStarted 报告写入器是否已启动
func (a *FileAppender) IsStarted() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.started
}

// Stop 关闭文件。登记表中的声明会保留到 Context 重置。
func (a *FileAppender) Stop() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.started {
		return nil
	}
	a.started = false
	a.closed = true
	return a.closeLocked()
}

// Close 实现 io.Closer，等同于 Stop
func (a *FileAppender) Close() error { return a.Stop() }
