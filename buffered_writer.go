/*
buffered_writer.go - 活动文件前的批量写入缓冲
立即刷新关闭时，写入先进入缓冲区，满足任一刷新条件后一次性写入底层文件，以减少系统调用。
*/
package logrollx

import (
	"bytes"
	"io"
	"time"
)

// BufCfg 缓冲配置，任一字段为 0 表示禁用对应的刷新条件
type BufCfg struct {
	MaxBufferSize int           `json:"size" yaml:"size"`         // 缓冲区达到该字节数时刷新
	MaxWriteCount int           `json:"writes" yaml:"writes"`     // 累计写入次数达到该值时刷新
	FlushInterval time.Duration `json:"interval" yaml:"interval"` // 距上次刷新超过该间隔时刷新
}

// DefBufCfg 默认缓冲配置
//
// 注意:
//   - 默认缓冲区大小为 64KB，最大写入次数为 500 次，刷新间隔为 1 秒
func DefBufCfg() *BufCfg {
	return &BufCfg{
		MaxBufferSize: 64 * 1024,
		MaxWriteCount: 500,
		FlushInterval: time.Second,
	}
}

// bufferedWriter 是 FileAppender 内部使用的缓冲层，由调用方加锁
type bufferedWriter struct {
	w      io.Writer
	buffer *bytes.Buffer

	maxBufferSize int
	maxWriteCount int
	flushInterval time.Duration

	writeCount int
	lastFlush  time.Time
	now        func() time.Time
}

// newBufferedWriter 创建缓冲层
//
// 参数:
//   - w: 底层写入器
//   - cfg: 缓冲配置，为 nil 时使用 DefBufCfg
//   - now: 刷新间隔使用的时钟，为 nil 时使用 currentTime
func newBufferedWriter(w io.Writer, cfg *BufCfg, now func() time.Time) *bufferedWriter {
	if cfg == nil {
		cfg = DefBufCfg()
	}
	if now == nil {
		now = currentTime
	}
	return &bufferedWriter{
		w:             w,
		buffer:        bytes.NewBuffer(make([]byte, 0, max(cfg.MaxBufferSize, 0))),
		maxBufferSize: cfg.MaxBufferSize,
		maxWriteCount: cfg.MaxWriteCount,
		flushInterval: cfg.FlushInterval,
		lastFlush:     now(),
		now:           now,
	}
}

// Write 写入缓冲区，满足刷新条件时批量写入底层
func (bw *bufferedWriter) Write(p []byte) (int, error) {
	n, err := bw.buffer.Write(p)
	if err != nil {
		return n, err
	}
	bw.writeCount++

	if bw.shouldFlush() {
		return n, bw.Flush()
	}
	return n, nil
}

// shouldFlush 三重条件：缓冲区大小 OR 写入次数 OR 刷新间隔
func (bw *bufferedWriter) shouldFlush() bool {
	if bw.maxBufferSize > 0 && bw.buffer.Len() >= bw.maxBufferSize {
		return true
	}
	if bw.maxWriteCount > 0 && bw.writeCount >= bw.maxWriteCount {
		return true
	}
	return bw.flushInterval > 0 && bw.now().Sub(bw.lastFlush) >= bw.flushInterval
}

// Flush 将缓冲区写入底层。出错时已写出的前缀被消费，剩余数据保留在缓冲区。
func (bw *bufferedWriter) Flush() error {
	if bw.buffer.Len() == 0 {
		return nil
	}
	if _, err := bw.buffer.WriteTo(bw.w); err != nil {
		return err
	}
	bw.buffer.Reset()
	bw.writeCount = 0
	bw.lastFlush = bw.now()
	return nil
}

// Buffered 返回缓冲区中尚未写出的字节数
func (bw *bufferedWriter) Buffered() int { return bw.buffer.Len() }
