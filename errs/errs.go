package errs

import (
	"github.com/pkg/errors"
)

// 导出过程中的错误分类，调用方通过 errors.Is 判断
var (
	// ErrSchema 表结构定义冲突，例如字段重名或主键字段类型不合法
	ErrSchema = errors.New("schema error")
	// ErrConstraint 要素违反约束，例如非空列缺值或重复的主键
	ErrConstraint = errors.New("constraint error")
	// ErrEncoding 值或几何无法编码
	ErrEncoding = errors.New("encoding error")
	// ErrIO 输出写入失败
	ErrIO = errors.New("io error")
)

// Schemaf 构造一个 ErrSchema
func Schemaf(format string, args ...any) error {
	return errors.Wrapf(ErrSchema, format, args...)
}

// Constraintf 构造一个 ErrConstraint
func Constraintf(format string, args ...any) error {
	return errors.Wrapf(ErrConstraint, format, args...)
}

// Encodingf 构造一个 ErrEncoding
func Encodingf(format string, args ...any) error {
	return errors.Wrapf(ErrEncoding, format, args...)
}

// IO 将底层写入错误包装为 ErrIO，保留原始错误信息
func IO(err error, message string) error {
	if err == nil {
		return nil
	}
	return errors.Wrapf(ErrIO, "%s: %v", message, err)
}

// Kind 返回错误所属的分类名称，未知错误返回空字符串
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrSchema):
		return "schema"
	case errors.Is(err, ErrConstraint):
		return "constraint"
	case errors.Is(err, ErrEncoding):
		return "encoding"
	case errors.Is(err, ErrIO):
		return "io"
	default:
		return ""
	}
}
