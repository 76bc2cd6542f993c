package literal

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/hatlonely/pgdump/errs"
	"github.com/hatlonely/pgdump/log"
	"github.com/hatlonely/pgdump/log/logger"
	"github.com/hatlonely/pgdump/quote"
)

// CopyNull COPY 文本格式中的 NULL
const CopyNull = `\N`

// CopyEnd COPY 数据块的结束行
const CopyEnd = `\.`

var copyReplacer = strings.NewReplacer(`\`, `\\`, "\t", `\t`, "\n", `\n`, "\r", `\r`)

// CopyEscape 转义 COPY 文本格式中的反斜杠、制表符、换行与回车
func CopyEscape(s string) string {
	return copyReplacer.Replace(s)
}

// Formatter 将属性值格式化为 INSERT 字面量或 COPY 字段
// 截断、非法 UTF-8 等问题通过日志告警
type Formatter struct {
	log logger.Logger
}

func NewFormatter(log logger.Logger) *Formatter {
	return &Formatter{log: log}
}

func (f *Formatter) logger() logger.Logger {
	if f == nil || f.log == nil {
		return log.Default()
	}
	return f.log
}

// token 与输出形式无关的中间结果
type token struct {
	text   string
	null   bool
	quoted bool
	cast   string
}

func (t token) insert() string {
	switch {
	case t.null:
		return "NULL"
	case t.quoted:
		return quote.Literal(t.text) + t.cast
	default:
		return t.text
	}
}

func (t token) copy() string {
	if t.null {
		return CopyNull
	}
	return CopyEscape(t.text)
}

// Format 按 mode 格式化 value，nil 表示 NULL
func (f *Formatter) Format(value any, col ColumnSpec, mode Mode) (string, error) {
	tok, err := f.render(value, col)
	if err != nil {
		return "", err
	}
	if mode == ModeCopy {
		return tok.copy(), nil
	}
	return tok.insert(), nil
}

// FormatBoth 同时得到 INSERT 与 COPY 两种形式，告警只产生一次
func (f *Formatter) FormatBoth(value any, col ColumnSpec) (insert string, copyText string, err error) {
	tok, err := f.render(value, col)
	if err != nil {
		return "", "", err
	}
	return tok.insert(), tok.copy(), nil
}

func (f *Formatter) render(value any, col ColumnSpec) (token, error) {
	if value == nil {
		return token{null: true}, nil
	}

	switch col.Type {
	case FieldString, "":
		s, err := f.stringValue(value, col)
		if err != nil {
			return token{}, err
		}
		return token{text: s, quoted: true}, nil
	case FieldInteger, FieldInteger64:
		if col.SubType == SubBoolean {
			b, err := toBool(value)
			if err != nil {
				return token{}, errs.Encodingf("column %q: %v", col.Name, err)
			}
			if b {
				return token{text: "t", quoted: true}, nil
			}
			return token{text: "f", quoted: true}, nil
		}
		n, err := toInt64(value)
		if err != nil {
			return token{}, errs.Encodingf("column %q: %v", col.Name, err)
		}
		if err := checkRange(n, col); err != nil {
			return token{}, err
		}
		return token{text: strconv.FormatInt(n, 10)}, nil
	case FieldReal:
		v, err := toFloat64(value)
		if err != nil {
			return token{}, errs.Encodingf("column %q: %v", col.Name, err)
		}
		if special, ok := specialFloat(v); ok {
			return token{text: special, quoted: true, cast: "::float8"}, nil
		}
		return token{text: formatFloat(v, col.SubType)}, nil
	case FieldDate, FieldTime, FieldDateTime:
		s, err := f.temporalValue(value, col)
		if err != nil {
			return token{}, err
		}
		return token{text: s, quoted: true}, nil
	case FieldBinary:
		b, err := toBytes(value)
		if err != nil {
			return token{}, errs.Encodingf("column %q: %v", col.Name, err)
		}
		return token{text: `\x` + hex.EncodeToString(b), quoted: true, cast: "::bytea"}, nil
	case FieldIntegerList, FieldInteger64List, FieldRealList, FieldStringList:
		s, err := f.arrayValue(value, col)
		if err != nil {
			return token{}, err
		}
		return token{text: s, quoted: true}, nil
	default:
		return token{}, errs.Encodingf("column %q: unsupported field type %q", col.Name, col.Type)
	}
}

func (f *Formatter) stringValue(value any, col ColumnSpec) (string, error) {
	var s string
	switch v := value.(type) {
	case string:
		s = v
	case []byte:
		s = string(v)
	case json.Number:
		s = v.String()
	case bool:
		s = strconv.FormatBool(v)
	case float64:
		s = strconv.FormatFloat(v, 'g', -1, 64)
	case float32:
		s = strconv.FormatFloat(float64(v), 'g', -1, 32)
	case fmt.Stringer:
		s = v.String()
	default:
		n, err := toInt64(value)
		if err == nil {
			s = strconv.FormatInt(n, 10)
			break
		}
		if col.SubType != SubJSON {
			return "", errs.Encodingf("column %q: unsupported string value %T", col.Name, value)
		}
		buf, err := json.Marshal(value)
		if err != nil {
			return "", errs.Encodingf("column %q: %v", col.Name, err)
		}
		s = string(buf)
	}
	return f.cleanString(s, col)
}

// cleanString 拒绝 NUL，将非法 UTF-8 字节替换为 ?，按 VARCHAR(n) 截断
func (f *Formatter) cleanString(s string, col ColumnSpec) (string, error) {
	if strings.IndexByte(s, 0) >= 0 {
		return "", errs.Encodingf("column %q: value contains a NUL character", col.Name)
	}

	if !utf8.ValidString(s) {
		var sb strings.Builder
		for i := 0; i < len(s); {
			r, size := utf8.DecodeRuneInString(s[i:])
			if r == utf8.RuneError && size == 1 {
				sb.WriteByte('?')
			} else {
				sb.WriteString(s[i : i+size])
			}
			i += size
		}
		s = sb.String()
		f.logger().Warn("invalid UTF-8 replaced", "column", col.Name)
	}

	if col.Type == FieldString && col.Width > 0 && col.SubType == SubNone && utf8.RuneCountInString(s) > col.Width {
		runes := 0
		for i := range s {
			if runes == col.Width {
				s = s[:i]
				break
			}
			runes++
		}
		f.logger().Warn("value truncated to column width", "column", col.Name, "width", col.Width)
	}
	return s, nil
}

func (f *Formatter) temporalValue(value any, col ColumnSpec) (string, error) {
	var t time.Time
	hasTZ := true
	switch v := value.(type) {
	case string:
		return f.cleanString(v, ColumnSpec{Name: col.Name, Type: col.Type})
	case time.Time:
		t = v
	case *time.Time:
		if v == nil {
			return "", errs.Encodingf("column %q: nil time", col.Name)
		}
		t = *v
	case DateTime:
		t, hasTZ = v.Time, v.HasTZ
	default:
		return "", errs.Encodingf("column %q: unsupported %s value %T", col.Name, col.Type, value)
	}

	switch col.Type {
	case FieldDate:
		return t.Format("2006/01/02"), nil
	case FieldTime:
		return formatClock(t), nil
	default:
		s := t.Format("2006/01/02") + " " + formatClock(t)
		if hasTZ {
			s += zoneSuffix(t)
		}
		return s, nil
	}
}

func formatClock(t time.Time) string {
	if t.Nanosecond() != 0 {
		return t.Format("15:04:05.000")
	}
	return t.Format("15:04:05")
}

// zoneSuffix 输出 +00、-05、+05:30 形式的时区
func zoneSuffix(t time.Time) string {
	_, offset := t.Zone()
	sign := "+"
	if offset < 0 {
		sign, offset = "-", -offset
	}
	hours, minutes := offset/3600, offset%3600/60
	if minutes == 0 {
		return fmt.Sprintf("%s%02d", sign, hours)
	}
	return fmt.Sprintf("%s%02d:%02d", sign, hours, minutes)
}

// arrayValue 输出 PostgreSQL 数组字面量 {1,2} / {"a","b"}
func (f *Formatter) arrayValue(value any, col ColumnSpec) (string, error) {
	items, err := toSlice(value)
	if err != nil {
		return "", errs.Encodingf("column %q: %v", col.Name, err)
	}

	parts := make([]string, 0, len(items))
	for _, item := range items {
		if item == nil {
			parts = append(parts, "NULL")
			continue
		}
		switch col.Type {
		case FieldIntegerList, FieldInteger64List:
			n, err := toInt64(item)
			if err != nil {
				return "", errs.Encodingf("column %q: %v", col.Name, err)
			}
			if col.Type == FieldIntegerList && (n < math.MinInt32 || n > math.MaxInt32) {
				return "", errs.Encodingf("column %q: value %d out of integer range", col.Name, n)
			}
			parts = append(parts, strconv.FormatInt(n, 10))
		case FieldRealList:
			v, err := toFloat64(item)
			if err != nil {
				return "", errs.Encodingf("column %q: %v", col.Name, err)
			}
			if special, ok := specialFloat(v); ok {
				parts = append(parts, special)
			} else {
				parts = append(parts, formatFloat(v, SubNone))
			}
		default:
			s, err := f.stringValue(item, ColumnSpec{Name: col.Name, Type: FieldString})
			if err != nil {
				return "", err
			}
			parts = append(parts, `"`+arrayReplacer.Replace(s)+`"`)
		}
	}
	return "{" + strings.Join(parts, ",") + "}", nil
}

var arrayReplacer = strings.NewReplacer(`\`, `\\`, `"`, `\"`)

func specialFloat(v float64) (string, bool) {
	switch {
	case math.IsNaN(v):
		return "NaN", true
	case math.IsInf(v, 1):
		return "Infinity", true
	case math.IsInf(v, -1):
		return "-Infinity", true
	}
	return "", false
}

// formatFloat 输出最短的可往返表示，常见量级不使用指数形式
func formatFloat(v float64, sub SubType) string {
	bitSize := 64
	if sub == SubFloat32 {
		bitSize = 32
	}
	if abs := math.Abs(v); abs == 0 || (abs >= 1e-4 && abs < 1e21) {
		return strconv.FormatFloat(v, 'f', -1, bitSize)
	}
	return strconv.FormatFloat(v, 'g', -1, bitSize)
}

func checkRange(n int64, col ColumnSpec) error {
	switch {
	case col.SubType == SubInt16 && (n < math.MinInt16 || n > math.MaxInt16):
		return errs.Encodingf("column %q: value %d out of smallint range", col.Name, n)
	case col.Type == FieldInteger && (n < math.MinInt32 || n > math.MaxInt32):
		return errs.Encodingf("column %q: value %d out of integer range", col.Name, n)
	}
	return nil
}
