// Package datefmt 实现文件名模式中 %d{...} 使用的日期子模式。
//
// 子模式采用字母重复计数的写法（如 yyyy-MM-dd、HH、ww），与常见日志框架的
// 配置习惯保持一致。每个子模式既可以格式化时间，也可以生成匹配其输出的正则表达式，
// 后者用于在磁盘上扫描归档文件。
package datefmt

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// item 是编译后的一个片段：字母片段或字面量片段
type item struct {
	letter rune   // 模式字母，0 表示字面量
	count  int    // 字母重复次数
	lit    string // 字面量文本
}

// Layout 是编译后的日期子模式
type Layout struct {
	raw   string
	items []item
}

// supported 记录支持的模式字母
var supported = map[rune]bool{
	'y': true, 'Y': true, 'M': true, 'd': true, 'H': true, 'h': true,
	'k': true, 'K': true, 'm': true, 's': true, 'S': true, 'E': true,
	'a': true, 'w': true, 'u': true, 'D': true, 'Z': true,
}

// Compile 编译日期子模式
//
// 参数:
//   - pattern: 日期子模式，例如 "yyyy-MM-dd_HH"
//
// 返回值:
//   - *Layout: 编译结果
//   - error: 模式为空、引号未闭合或含有不支持的字母时返回错误
func Compile(pattern string) (*Layout, error) {
	if strings.TrimSpace(pattern) == "" {
		return nil, fmt.Errorf("empty date pattern")
	}

	l := &Layout{raw: pattern}
	runes := []rune(pattern)
	var lit strings.Builder

	flushLit := func() {
		if lit.Len() > 0 {
			l.items = append(l.items, item{lit: lit.String()})
			lit.Reset()
		}
	}

	for i := 0; i < len(runes); {
		c := runes[i]
		switch {
		case c == '\'':
			// '' 表示单引号本身
			if i+1 < len(runes) && runes[i+1] == '\'' {
				lit.WriteRune('\'')
				i += 2
				continue
			}
			end := -1
			for j := i + 1; j < len(runes); j++ {
				if runes[j] == '\'' {
					if j+1 < len(runes) && runes[j+1] == '\'' {
						j++
						continue
					}
					end = j
					break
				}
			}
			if end < 0 {
				return nil, fmt.Errorf("unterminated quote in date pattern [%s]", pattern)
			}
			lit.WriteString(strings.ReplaceAll(string(runes[i+1:end]), "''", "'"))
			i = end + 1

		case isLetter(c):
			if !supported[c] {
				return nil, fmt.Errorf("illegal pattern character '%c' in date pattern [%s]", c, pattern)
			}
			j := i
			for j < len(runes) && runes[j] == c {
				j++
			}
			flushLit()
			l.items = append(l.items, item{letter: c, count: j - i})
			i = j

		default:
			lit.WriteRune(c)
			i++
		}
	}
	flushLit()

	return l, nil
}

// MustCompile 与 Compile 相同，出错时 panic
func MustCompile(pattern string) *Layout {
	l, err := Compile(pattern)
	if err != nil {
		panic(err)
	}
	return l
}

func isLetter(c rune) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

// String 返回原始子模式
func (l *Layout) String() string { return l.raw }

// Format 按子模式格式化时间。调用方负责将 t 转换到目标时区。
func (l *Layout) Format(t time.Time) string {
	var b strings.Builder
	for _, it := range l.items {
		if it.letter == 0 {
			b.WriteString(it.lit)
			continue
		}
		b.WriteString(formatItem(it, t))
	}
	return b.String()
}

// Regex 返回能够匹配 Format 输出的正则片段（不含捕获组，不含锚点）
func (l *Layout) Regex() string {
	var b strings.Builder
	for _, it := range l.items {
		if it.letter == 0 {
			b.WriteString(regexp.QuoteMeta(it.lit))
			continue
		}
		b.WriteString(regexItem(it))
	}
	return b.String()
}

func formatItem(it item, t time.Time) string {
	switch it.letter {
	case 'y':
		if it.count == 2 {
			return pad(t.Year()%100, 2)
		}
		return pad(t.Year(), it.count)
	case 'Y':
		year, _ := t.ISOWeek()
		if it.count == 2 {
			return pad(year%100, 2)
		}
		return pad(year, it.count)
	case 'M':
		switch {
		case it.count >= 4:
			return t.Month().String()
		case it.count == 3:
			return t.Month().String()[:3]
		default:
			return pad(int(t.Month()), it.count)
		}
	case 'd':
		return pad(t.Day(), it.count)
	case 'H':
		return pad(t.Hour(), it.count)
	case 'k':
		h := t.Hour()
		if h == 0 {
			h = 24
		}
		return pad(h, it.count)
	case 'K':
		return pad(t.Hour()%12, it.count)
	case 'h':
		h := t.Hour() % 12
		if h == 0 {
			h = 12
		}
		return pad(h, it.count)
	case 'm':
		return pad(t.Minute(), it.count)
	case 's':
		return pad(t.Second(), it.count)
	case 'S':
		return pad(t.Nanosecond()/int(time.Millisecond), it.count)
	case 'E':
		if it.count >= 4 {
			return t.Weekday().String()
		}
		return t.Weekday().String()[:3]
	case 'a':
		if t.Hour() < 12 {
			return "AM"
		}
		return "PM"
	case 'w':
		_, week := t.ISOWeek()
		return pad(week, it.count)
	case 'u':
		wd := int(t.Weekday())
		if wd == 0 {
			wd = 7
		}
		return pad(wd, it.count)
	case 'D':
		return pad(t.YearDay(), it.count)
	case 'Z':
		return t.Format("-0700")
	}
	return ""
}

func regexItem(it item) string {
	switch it.letter {
	case 'M':
		if it.count >= 3 {
			return `[A-Za-z]+`
		}
	case 'E':
		return `[A-Za-z]+`
	case 'a':
		return `(?:AM|PM)`
	case 'Z':
		return `[+-]\d{4}`
	case 'y', 'Y':
		if it.count == 2 {
			return `\d{2}`
		}
	}
	return `\d{` + strconv.Itoa(it.count) + `,}`
}

// pad 将 v 左侧补零到 width 位
func pad(v, width int) string {
	s := strconv.Itoa(v)
	if len(s) >= width {
		return s
	}
	return strings.Repeat("0", width-len(s)) + s
}
