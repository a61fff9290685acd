package logrollx

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"time"

	"github.com/samber/lo"

	"gitee.com/MM-Q/logrollx/pattern"
	"gitee.com/MM-Q/logrollx/period"
)

// osRemove 可在测试中替换，用于模拟单个归档删除失败
var osRemove = os.Remove

// ArchiveEntry 是扫描磁盘得到的归档文件
type ArchiveEntry struct {
	Path         string
	RenderedDate string
	Counter      int // 模式不含 %i 时为 0
	Size         int64
	ModTime      time.Time

	offset int // 相对于当前周期的偏移，未知日期时为 minOffset
}

// minOffset 标记无法对应到保留窗口内任何周期的归档
const minOffset = -1 << 30

// ArchiveRemover 按保留周期数与总大小上限清理归档
type ArchiveRemover struct {
	reporter
	pattern      *pattern.Pattern // 去掉压缩后缀的模式
	suffix       string
	cal          *period.Calendar
	maxHistory   int
	totalSizeCap int64
	metrics      *Metrics

	rootDir string
	nested  bool
	re      *regexp.Regexp
}

// NewArchiveRemover 创建归档清理器
//
// 参数:
//   - ctx: 运行环境
//   - p: 文件名模式（可含压缩后缀）
//   - cal: 主日期转换符对应的周期日历
//   - maxHistory: 保留的周期数，0 表示不按时间清理
//   - totalSizeCap: 归档总大小上限（字节），0 表示不限制
func NewArchiveRemover(ctx *Context, p *pattern.Pattern, cal *period.Calendar, maxHistory int, totalSizeCap int64) *ArchiveRemover {
	plain := p.WithoutCompressionSuffix()
	suffix := p.CompressionSuffix()

	expr := plain.RelativeRegex()
	if suffix != "" {
		// 同时匹配压缩前的归档，压缩任务被放弃时它们会以原始名称保留下来
		expr = expr[:len(expr)-1] + "(?:" + regexp.QuoteMeta(suffix) + ")?$"
	}

	return &ArchiveRemover{
		reporter:     reporter{ctx: ctx, origin: "ArchiveRemover"},
		pattern:      plain,
		suffix:       suffix,
		cal:          cal,
		maxHistory:   maxHistory,
		totalSizeCap: totalSizeCap,
		metrics:      ctx.Metrics(),
		rootDir:      filepath.FromSlash(plain.ParentDir()),
		nested:       plain.IsNested(),
		re:           regexp.MustCompile(expr),
	}
}

// Scan 列出所有与模式匹配的归档
func (ar *ArchiveRemover) Scan() ([]ArchiveEntry, error) {
	var out []ArchiveEntry
	dateIdx := ar.re.SubexpIndex(pattern.DateGroup)
	counterIdx := ar.re.SubexpIndex(pattern.IndexGroup)

	visit := func(path string, d fs.DirEntry) {
		rel, err := filepath.Rel(ar.rootDir, path)
		if err != nil {
			return
		}
		m := ar.re.FindStringSubmatch(filepath.ToSlash(rel))
		if m == nil {
			return
		}
		info, err := d.Info()
		if err != nil {
			return
		}
		e := ArchiveEntry{Path: path, Size: info.Size(), ModTime: info.ModTime()}
		if dateIdx >= 0 {
			e.RenderedDate = m[dateIdx]
		}
		if counterIdx >= 0 {
			e.Counter, _ = strconv.Atoi(m[counterIdx])
		}
		out = append(out, e)
	}

	if !ar.nested {
		entries, err := os.ReadDir(ar.rootDir)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, nil
			}
			return nil, err
		}
		for _, d := range entries {
			if d.Type().IsRegular() {
				visit(filepath.Join(ar.rootDir, d.Name()), d)
			}
		}
		return out, nil
	}

	err := filepath.WalkDir(ar.rootDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == ar.rootDir && errors.Is(err, fs.ErrNotExist) {
				return fs.SkipAll
			}
			return nil
		}
		if d.Type().IsRegular() {
			visit(path, d)
		}
		return nil
	})
	return out, err
}

// ComputeFilesToDelete 计算本轮需要删除的归档
//
// 参数:
//   - now: 当前时间
//   - active: 活动文件路径，永远不会被删除
//
// 返回值:
//   - []ArchiveEntry: 按时间保留规则与总大小规则应删除的归档，时间规则在前
//   - error: 扫描目录失败时返回错误
func (ar *ArchiveRemover) ComputeFilesToDelete(now time.Time, active string) ([]ArchiveEntry, error) {
	entries, err := ar.Scan()
	if err != nil {
		return nil, err
	}

	activeAbs, _ := filepath.Abs(active)
	entries = lo.Reject(entries, func(e ArchiveEntry, _ int) bool {
		abs, _ := filepath.Abs(e.Path)
		return active != "" && abs == activeAbs
	})

	// 保留窗口内每个周期的渲染结果及其偏移
	window := make(map[string]int)
	if ar.maxHistory > 0 {
		for off := -ar.maxHistory; off <= 1; off++ {
			window[ar.pattern.PrimaryDate().Format(ar.cal.Relative(now, off))] = off
		}
	}

	var doomed, kept []ArchiveEntry
	for _, e := range entries {
		e.offset = minOffset
		if off, ok := window[e.RenderedDate]; ok {
			e.offset = off
		}
		if ar.maxHistory > 0 && e.offset == minOffset {
			doomed = append(doomed, e)
			continue
		}
		kept = append(kept, e)
	}

	if ar.totalSizeCap > 0 {
		total := lo.SumBy(kept, func(e ArchiveEntry) int64 { return e.Size })
		sortOldestFirst(kept)
		for _, e := range kept {
			if total <= ar.totalSizeCap {
				break
			}
			doomed = append(doomed, e)
			total -= e.Size
		}
	}
	return doomed, nil
}

// sortOldestFirst 按周期偏移、计数器、修改时间排序
func sortOldestFirst(entries []ArchiveEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.offset != b.offset {
			return a.offset < b.offset
		}
		if a.RenderedDate != b.RenderedDate {
			return a.ModTime.Before(b.ModTime)
		}
		if a.Counter != b.Counter {
			return a.Counter < b.Counter
		}
		return a.ModTime.Before(b.ModTime)
	})
}

// Clean 执行一轮清理，单个文件删除失败只报告警告并继续
//
// 返回值:
//   - int: 成功删除的文件数
func (ar *ArchiveRemover) Clean(now time.Time, active string) int {
	doomed, err := ar.ComputeFilesToDelete(now, active)
	if err != nil {
		ar.addWarn(fmt.Sprintf("failed to scan archives under [%s]", ar.rootDir), err)
		return 0
	}

	removed := 0
	dirs := make(map[string]struct{})
	for _, e := range doomed {
		if err := osRemove(e.Path); err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				ar.addWarn(fmt.Sprintf("failed to delete archive [%s]", e.Path), err)
			}
			continue
		}
		removed++
		reason := "history"
		if e.offset != minOffset || ar.maxHistory == 0 {
			reason = "size_cap"
		}
		ar.metrics.ArchivesDeleted.WithLabelValues(reason).Inc()
		ar.addInfo(fmt.Sprintf("deleted archive [%s]", e.Path))
		dirs[filepath.Dir(e.Path)] = struct{}{}
	}

	if ar.nested {
		ar.removeEmptyDirs(lo.Keys(dirs))
	}
	return removed
}

// removeEmptyDirs 删除清理后变空的日期目录，直到模式的固定根目录为止
func (ar *ArchiveRemover) removeEmptyDirs(dirs []string) {
	root := filepath.Clean(ar.rootDir)
	for _, dir := range dirs {
		for dir = filepath.Clean(dir); dir != root && len(dir) > len(root); dir = filepath.Dir(dir) {
			entries, err := os.ReadDir(dir)
			if err != nil || len(entries) > 0 {
				break
			}
			if err := os.Remove(dir); err != nil {
				break
			}
		}
	}
}
