package literal

import (
	"regexp"
	"strings"

	"github.com/hatlonely/pgdump/quote"
)

// 带引号的日期时间默认值，例如 '2015/06/30 12:34:56' 或 '2015-06-30 12:34:56.789'
var dateTimeDefault = regexp.MustCompile(`^'(\d{4}[/-]\d{2}[/-]\d{2} \d{2}:\d{2}:\d{2}(?:\.\d+)?)'$`)

var currentKeywords = map[string]bool{
	"CURRENT_TIMESTAMP": true,
	"CURRENT_DATE":      true,
	"CURRENT_TIME":      true,
}

// IsCurrentKeyword 判断默认值是否为 CURRENT_TIMESTAMP/CURRENT_DATE/CURRENT_TIME
func IsCurrentKeyword(expr string) bool {
	return currentKeywords[strings.ToUpper(strings.TrimSpace(expr))]
}

// NormalizeDefault 规范化列的默认值表达式
// datetime 列上不带时区的日期时间字面量补充 +00 并显式转换类型，其余表达式原样保留
func NormalizeDefault(expr string, t FieldType) string {
	if expr == "" || IsCurrentKeyword(expr) {
		return expr
	}
	if t == FieldDateTime {
		if m := dateTimeDefault.FindStringSubmatch(strings.TrimSpace(expr)); m != nil {
			return "'" + m[1] + "+00'::timestamp with time zone"
		}
	}
	return expr
}

// QuoteDefault 将未加引号的字符串默认值转为 SQL 字符串字面量
func QuoteDefault(s string) string {
	return quote.Literal(s)
}
