// Package pattern 解析并渲染归档文件名模式。
//
// 模式由字面量与两种转换符组成：
//
//	%d{<日期子模式>[, <时区>][, aux]}  日期转换符，省略花括号时等价于 %d{yyyy-MM-dd}
//	%i                                 整数计数器，用于同一周期内的多个归档
//
// 以 .gz 或 .zip 结尾的模式表示归档需要压缩。
package pattern

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"gitee.com/MM-Q/logrollx/internal/datefmt"
)

const (
	// DefaultDatePattern 是 %d 未指定子模式时使用的格式
	DefaultDatePattern = "yyyy-MM-dd"

	// DateGroup 与 IndexGroup 是 ToRegex 输出中的命名捕获组
	DateGroup  = "date"
	IndexGroup = "index"
)

// Error 表示模式语法错误
type Error struct {
	Pattern string
	Reason  string
}

func (e *Error) Error() string {
	return fmt.Sprintf("invalid file name pattern [%s]: %s", e.Pattern, e.Reason)
}

// token 是模式中的一个片段
type token interface {
	render(t time.Time, counter int) string
	regex(fixed *time.Time) string
}

type literal string

func (l literal) render(time.Time, int) string { return string(l) }
func (l literal) regex(*time.Time) string       { return regexp.QuoteMeta(string(l)) }

// DateConverter 是 %d 转换符
type DateConverter struct {
	layout  *datefmt.Layout
	loc     *time.Location
	aux     bool
	primary bool
}

// Format 在转换符时区下渲染 t
func (d *DateConverter) Format(t time.Time) string {
	return d.layout.Format(t.In(d.loc))
}

// Layout 返回日期子模式
func (d *DateConverter) Layout() string { return d.layout.String() }

// Location 返回转换符时区，未指定时为本地时区
func (d *DateConverter) Location() *time.Location { return d.loc }

// IsAux 报告是否为辅助日期转换符
func (d *DateConverter) IsAux() bool { return d.aux }

func (d *DateConverter) render(t time.Time, _ int) string { return d.Format(t) }

func (d *DateConverter) regex(fixed *time.Time) string {
	if fixed != nil {
		return regexp.QuoteMeta(d.Format(*fixed))
	}
	if d.primary {
		return "(?P<" + DateGroup + ">" + d.layout.Regex() + ")"
	}
	return "(?:" + d.layout.Regex() + ")"
}

// IntegerConverter 是 %i 转换符
type IntegerConverter struct{}

func (IntegerConverter) render(_ time.Time, counter int) string { return strconv.Itoa(counter) }
func (IntegerConverter) regex(*time.Time) string {
	return "(?P<" + IndexGroup + `>\d+)`
}

// Pattern 是解析后的文件名模式，创建后只读
type Pattern struct {
	raw     string
	tokens  []token
	primary *DateConverter
	integer *IntegerConverter
	suffix  string
}

// Parse 解析文件名模式
//
// 参数:
//   - raw: 模式字符串，例如 "logs/app-%d{yyyy-MM-dd}.%i.log.gz"
//
// 返回值:
//   - *Pattern: 解析结果
//   - error: 语法错误时返回 *Error
func Parse(raw string) (*Pattern, error) {
	p := &Pattern{raw: raw}
	if strings.TrimSpace(raw) == "" {
		return nil, &Error{Pattern: raw, Reason: "pattern is empty"}
	}

	var lit strings.Builder
	flush := func() {
		if lit.Len() > 0 {
			p.tokens = append(p.tokens, literal(lit.String()))
			lit.Reset()
		}
	}

	for i := 0; i < len(raw); i++ {
		c := raw[i]
		switch c {
		case '\\':
			// 仅对模式中的特殊字符转义，其余反斜杠按路径分隔符保留
			if i+1 < len(raw) && strings.IndexByte("%{}", raw[i+1]) >= 0 {
				lit.WriteByte(raw[i+1])
				i++
				continue
			}
			lit.WriteByte(c)

		case '}':
			return nil, &Error{Pattern: raw, Reason: fmt.Sprintf("unbalanced '}' at offset %d", i)}

		case '%':
			if i+1 >= len(raw) {
				return nil, &Error{Pattern: raw, Reason: "dangling '%' at end of pattern"}
			}
			flush()
			switch raw[i+1] {
			case 'i':
				if p.integer != nil {
					return nil, &Error{Pattern: raw, Reason: "more than one integer token %i"}
				}
				p.integer = &IntegerConverter{}
				p.tokens = append(p.tokens, p.integer)
				i++

			case 'd':
				opts := ""
				next := i + 2
				if next < len(raw) && raw[next] == '{' {
					end := strings.IndexByte(raw[next:], '}')
					if end < 0 {
						return nil, &Error{Pattern: raw, Reason: fmt.Sprintf("unbalanced '{' at offset %d", next)}
					}
					opts = raw[next+1 : next+end]
					if strings.ContainsRune(opts, '{') {
						return nil, &Error{Pattern: raw, Reason: fmt.Sprintf("nested '{' at offset %d", next)}
					}
					next += end + 1
				}
				dc, err := parseDateOptions(raw, opts)
				if err != nil {
					return nil, err
				}
				if !dc.aux {
					if p.primary != nil {
						return nil, &Error{Pattern: raw, Reason: "more than one primary date token, mark the others with 'aux'"}
					}
					dc.primary = true
					p.primary = dc
				}
				p.tokens = append(p.tokens, dc)
				i = next - 1

			default:
				return nil, &Error{Pattern: raw, Reason: fmt.Sprintf("unknown conversion '%%%c' at offset %d", raw[i+1], i)}
			}

		default:
			lit.WriteByte(c)
		}
	}
	flush()

	for _, s := range []string{".gz", ".zip"} {
		if l, ok := p.tokens[len(p.tokens)-1].(literal); ok && strings.HasSuffix(string(l), s) {
			p.suffix = s
		}
	}
	return p, nil
}

// MustParse 与 Parse 相同，出错时 panic
func MustParse(raw string) *Pattern {
	p, err := Parse(raw)
	if err != nil {
		panic(err)
	}
	return p
}

func parseDateOptions(raw, opts string) (*DateConverter, error) {
	parts := strings.Split(opts, ",")
	layout := strings.TrimSpace(parts[0])
	if layout == "" {
		layout = DefaultDatePattern
	}
	l, err := datefmt.Compile(layout)
	if err != nil {
		return nil, &Error{Pattern: raw, Reason: err.Error()}
	}

	dc := &DateConverter{layout: l, loc: time.Local}
	for _, o := range parts[1:] {
		o = strings.TrimSpace(o)
		switch {
		case o == "":
		case strings.EqualFold(o, "aux"):
			dc.aux = true
		default:
			loc, err := time.LoadLocation(o)
			if err != nil {
				return nil, &Error{Pattern: raw, Reason: fmt.Sprintf("unknown time zone %q", o)}
			}
			dc.loc = loc
		}
	}
	return dc, nil
}

// String 返回原始模式
func (p *Pattern) String() string { return p.raw }

// PrimaryDate 返回主日期转换符，不存在时返回 nil
func (p *Pattern) PrimaryDate() *DateConverter { return p.primary }

// Integer 返回整数转换符，不存在时返回 nil
func (p *Pattern) Integer() *IntegerConverter { return p.integer }

// HasInteger 报告模式是否包含 %i
func (p *Pattern) HasInteger() bool { return p.integer != nil }

// CompressionSuffix 返回 ".gz"、".zip" 或空字符串
func (p *Pattern) CompressionSuffix() string { return p.suffix }

// WithoutCompressionSuffix 返回去掉压缩后缀的模式，无后缀时返回自身
func (p *Pattern) WithoutCompressionSuffix() *Pattern {
	if p.suffix == "" {
		return p
	}
	q := &Pattern{
		raw:     strings.TrimSuffix(p.raw, p.suffix),
		tokens:  append([]token(nil), p.tokens...),
		primary: p.primary,
		integer: p.integer,
	}
	last := len(q.tokens) - 1
	trimmed := strings.TrimSuffix(string(q.tokens[last].(literal)), p.suffix)
	if trimmed == "" {
		q.tokens = q.tokens[:last]
	} else {
		q.tokens[last] = literal(trimmed)
	}
	return q
}

// Render 使用给定的时间与计数器渲染文件名
func (p *Pattern) Render(t time.Time, counter int) string {
	var b strings.Builder
	for _, tk := range p.tokens {
		b.WriteString(tk.render(t, counter))
	}
	return b.String()
}

// ToRegex 返回匹配该模式所有可能输出的正则表达式（带锚点）
//
// 主日期与计数器分别位于命名捕获组 DateGroup 与 IndexGroup 中。
func (p *Pattern) ToRegex() string {
	return p.regexFrom(p.tokens, nil)
}

// ToRegexForFixedDate 返回日期固定为 t 时的正则表达式，仅计数器可变
func (p *Pattern) ToRegexForFixedDate(t time.Time) string {
	return p.regexFrom(p.tokens, &t)
}

func (p *Pattern) regexFrom(tokens []token, fixed *time.Time) string {
	var b strings.Builder
	b.WriteString("^")
	for _, tk := range tokens {
		b.WriteString(tk.regex(fixed))
	}
	b.WriteString("$")
	return b.String()
}

// ParentDir 返回模式中第一个转换符之前的固定目录部分
//
// 例如 "logs/app-%d.log" 返回 "logs"，"app-%d.log" 返回 "."。
func (p *Pattern) ParentDir() string {
	dir, _ := p.splitHead()
	return dir
}

// RelativeRegex 返回相对于 ParentDir 的正则表达式，路径分隔符统一为 '/'
func (p *Pattern) RelativeRegex() string {
	_, tokens := p.splitHead()
	return p.regexFrom(tokens, nil)
}

// IsNested 报告 ParentDir 之后的部分是否还包含目录层级
func (p *Pattern) IsNested() bool {
	_, tokens := p.splitHead()
	probe := time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)
	for _, tk := range tokens {
		if strings.ContainsAny(tk.render(probe, 0), `/\`) {
			return true
		}
	}
	return false
}

func (p *Pattern) splitHead() (string, []token) {
	head, ok := p.tokens[0].(literal)
	if !ok {
		return ".", p.tokens
	}
	s := strings.ReplaceAll(string(head), `\`, "/")
	idx := strings.LastIndexByte(s, '/')
	if idx < 0 {
		return ".", p.tokens
	}
	dir := s[:idx]
	if dir == "" {
		dir = "/"
	}
	rest := append([]token(nil), p.tokens[1:]...)
	if tail := s[idx+1:]; tail != "" {
		rest = append([]token{literal(tail)}, rest...)
	}
	return dir, rest
}
