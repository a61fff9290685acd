package logrollx

import (
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"

	"gitee.com/MM-Q/comprx"
	"gitee.com/MM-Q/comprx/types"
)

// CompressionMode 是归档压缩方式，由文件名模式的后缀决定
type CompressionMode int

const (
	CompressionNone CompressionMode = iota
	CompressionGzip
	CompressionZip
)

func (m CompressionMode) String() string {
	switch m {
	case CompressionGzip:
		return "gzip"
	case CompressionZip:
		return "zip"
	}
	return "none"
}

// compressionModeOf 根据模式后缀返回压缩方式
func compressionModeOf(suffix string) CompressionMode {
	switch suffix {
	case ".gz":
		return CompressionGzip
	case ".zip":
		return CompressionZip
	}
	return CompressionNone
}

// stageSeq 为暂存目录生成唯一序号
var stageSeq atomic.Int64

// packFunc 是实际执行压缩的函数，测试时可以替换
var packFunc = func(dst, src string) error {
	opts := comprx.Options{
		CompressionLevel:      types.CompressionLevelDefault, // 默认压缩级别
		OverwriteExisting:     false,                         // 目标已存在时失败，不覆盖旧归档
		ProgressEnabled:       false,                         // 不显示进度条
		ProgressStyle:         types.ProgressStyleDefault,    // 默认进度条样式
		DisablePathValidation: false,                         // 保留路径验证
	}
	return comprx.PackOptions(dst, src, opts)
}

// compressionTask 压缩一个已经离开活动路径的文件。
//
// 步骤：把源文件移入与目标同目录的暂存目录并以条目名命名，在暂存目录内压缩，
// 再把压缩结果重命名为目标文件，最后删除暂存目录。任何一步失败都会把源文件移回
// fallback 路径，归档保持未压缩但完整。
type compressionTask struct {
	reporter
	metrics   *Metrics
	src       string // 待压缩文件
	dst       string // 压缩结果路径，含后缀
	entryName string // zip 条目名，即不含后缀的归档文件名
	fallback  string // 失败时源文件的最终位置
}

func (c *compressionTask) run() error {
	if _, err := os.Stat(c.dst); err == nil {
		c.addWarn(fmt.Sprintf("The target compressed file named [%s] exists already. Aborting.", c.dst), nil)
		c.restore(c.src)
		c.metrics.Compressions.WithLabelValues("skipped").Inc()
		return nil
	}
	if _, err := os.Stat(c.src); err != nil {
		c.addWarn(fmt.Sprintf("file to compress [%s] does not exist", c.src), err)
		c.metrics.Compressions.WithLabelValues("failed").Inc()
		return err
	}

	if err := os.MkdirAll(filepath.Dir(c.dst), defaultDirPerm); err != nil {
		return c.fail(c.src, "cannot create archive directory", err)
	}
	stage := filepath.Join(filepath.Dir(c.dst), fmt.Sprintf(".logrollx-%d-%d", os.Getpid(), stageSeq.Add(1)))
	if err := os.Mkdir(stage, defaultDirPerm); err != nil {
		return c.fail(c.src, "cannot create staging directory", err)
	}
	defer os.RemoveAll(stage)

	staged := filepath.Join(stage, c.entryName)
	if err := renameFile(c.src, staged); err != nil {
		return c.fail(c.src, "cannot move file into staging directory", err)
	}

	packed := filepath.Join(stage, filepath.Base(c.dst))
	if err := packFunc(packed, staged); err != nil {
		return c.fail(staged, fmt.Sprintf("failed to compress [%s]", c.src), err)
	}
	if err := os.Rename(packed, c.dst); err != nil {
		return c.fail(staged, fmt.Sprintf("cannot move compressed archive to [%s]", c.dst), err)
	}

	c.metrics.Compressions.WithLabelValues("ok").Inc()
	return nil
}

// fail 报告错误并把当前位置的源文件移回 fallback
func (c *compressionTask) fail(current, msg string, err error) error {
	c.addWarn(msg, err)
	c.restore(current)
	c.metrics.Compressions.WithLabelValues("failed").Inc()
	return fmt.Errorf("logrollx: %s: %w", msg, err)
}

func (c *compressionTask) restore(current string) {
	if current == c.fallback {
		return
	}
	if err := renameFile(current, c.fallback); err != nil {
		c.addError(fmt.Sprintf("cannot restore [%s] to [%s]", current, c.fallback), err)
	}
}
