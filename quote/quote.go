package quote

import (
	"strings"
	"unicode/utf8"

	"github.com/jackc/pgx/v5"
)

// MaxIdentifierLength PostgreSQL 标识符的最大字节数（NAMEDATALEN - 1）
const MaxIdentifierLength = 63

// Ident 双引号包裹标识符，内部的双引号加倍
func Ident(name string) string {
	return pgx.Identifier{name}.Sanitize()
}

// Table 输出 "schema"."table"
func Table(schema, table string) string {
	return pgx.Identifier{schema, table}.Sanitize()
}

// Literal 单引号包裹字符串，内部的单引号加倍
func Literal(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

var launderReplacer = strings.NewReplacer("'", "_", "-", "_", "#", "_")

// Launder 规范化标识符：转小写，' - # 替换为 _，超长时截断
// 返回值 truncated 表示是否发生了截断
func Launder(name string) (laundered string, truncated bool) {
	return Truncate(launderReplacer.Replace(strings.ToLower(name)))
}

// Truncate 将标识符截断到 MaxIdentifierLength 字节以内，不拆分多字节字符
func Truncate(name string) (string, bool) {
	if len(name) <= MaxIdentifierLength {
		return name, false
	}
	cut := MaxIdentifierLength
	for cut > 0 && !utf8.RuneStart(name[cut]) {
		cut--
	}
	return name[:cut], true
}
