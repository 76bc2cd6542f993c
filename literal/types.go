package literal

import (
	"strings"
	"time"

	"github.com/pkg/errors"
)

// FieldType 属性列的逻辑类型
type FieldType string

const (
	FieldString        FieldType = "string"
	FieldInteger       FieldType = "integer"
	FieldInteger64     FieldType = "integer64"
	FieldReal          FieldType = "real"
	FieldDate          FieldType = "date"
	FieldTime          FieldType = "time"
	FieldDateTime      FieldType = "datetime"
	FieldBinary        FieldType = "binary"
	FieldIntegerList   FieldType = "integerlist"
	FieldInteger64List FieldType = "integer64list"
	FieldRealList      FieldType = "reallist"
	FieldStringList    FieldType = "stringlist"
)

var fieldTypes = []FieldType{
	FieldString, FieldInteger, FieldInteger64, FieldReal, FieldDate, FieldTime, FieldDateTime,
	FieldBinary, FieldIntegerList, FieldInteger64List, FieldRealList, FieldStringList,
}

// ParseFieldType 解析类型名，大小写不敏感，空字符串视为 string
func ParseFieldType(s string) (FieldType, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return FieldString, nil
	}
	for _, t := range fieldTypes {
		if string(t) == s {
			return t, nil
		}
	}
	return "", errors.Errorf("unknown field type %q", s)
}

// IsInteger 是否为可作为主键的整数类型
func (t FieldType) IsInteger() bool {
	return t == FieldInteger || t == FieldInteger64
}

// IsList 是否为数组类型
func (t FieldType) IsList() bool {
	switch t {
	case FieldIntegerList, FieldInteger64List, FieldRealList, FieldStringList:
		return true
	}
	return false
}

// SubType 类型的细分，影响列类型与值的表示
type SubType string

const (
	SubNone    SubType = ""
	SubBoolean SubType = "boolean"
	SubInt16   SubType = "int16"
	SubFloat32 SubType = "float32"
	SubJSON    SubType = "json"
	SubUUID    SubType = "uuid"
)

// ParseSubType 解析子类型，none 与空字符串等价
func ParseSubType(s string) (SubType, error) {
	switch st := SubType(strings.ToLower(strings.TrimSpace(s))); st {
	case "none", SubNone:
		return SubNone, nil
	case SubBoolean, SubInt16, SubFloat32, SubJSON, SubUUID:
		return st, nil
	default:
		return SubNone, errors.Errorf("unknown field subtype %q", s)
	}
}

// ColumnSpec 格式化一个值所需的列信息
type ColumnSpec struct {
	Name      string
	Type      FieldType
	SubType   SubType
	Width     int
	Precision int
}

// Mode 值的输出形式
type Mode int

const (
	// ModeInsert INSERT 语句中的字面量
	ModeInsert Mode = iota
	// ModeCopy COPY 文本格式中的一个字段
	ModeCopy
)

func (m Mode) String() string {
	if m == ModeCopy {
		return "copy"
	}
	return "insert"
}

// DateTime 可选时区的日期时间，HasTZ 为 false 时不输出时区后缀
// 直接传入 time.Time 等价于 HasTZ 为 true
type DateTime struct {
	time.Time
	HasTZ bool
}
