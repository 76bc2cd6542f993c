package seq

import (
	"math"

	"github.com/hatlonely/pgdump/errs"
)

// SerialOptions 序列配置
type SerialOptions struct {
	// Start 第一个 nextval 的值
	Start int64 `def:"1"`
	// Bits 32 对应 SERIAL，64 对应 BIGSERIAL
	Bits int `def:"32" validate:"oneof=32 64"`
}

// Serial 模拟 PostgreSQL 的 serial 序列，用于在不连接数据库的情况下回填主键
// 显式写入的主键不推进序列，与数据库回放时的行为一致
type Serial struct {
	next int64
	max  int64
	used map[int64]struct{}
	high int64
}

// NewSerialWithOptions 创建序列，options 为 nil 时等价于 SERIAL 从 1 开始
func NewSerialWithOptions(options *SerialOptions) *Serial {
	if options == nil {
		options = &SerialOptions{}
	}
	start := options.Start
	if start == 0 {
		start = 1
	}
	return &Serial{
		next: start,
		max:  limitOf(options.Bits),
		used: map[int64]struct{}{},
	}
}

func limitOf(bits int) int64 {
	if bits == 64 {
		return math.MaxInt64
	}
	return math.MaxInt32
}

// SetBits 调整序列宽度，主键列由 SERIAL 提升为 BIGSERIAL 时调用
func (s *Serial) SetBits(bits int) {
	s.max = limitOf(bits)
}

// Peek 返回下一个 nextval 的值，不推进序列
// 值已被显式主键占用或超出范围时返回 ErrConstraint
func (s *Serial) Peek() (int64, error) {
	if s.next > s.max || s.next < 1 {
		return 0, errs.Constraintf("sequence exhausted at %d", s.next)
	}
	if _, ok := s.used[s.next]; ok {
		return 0, errs.Constraintf("sequence value %d collides with an existing id", s.next)
	}
	return s.next, nil
}

// Check 校验显式主键
func (s *Serial) Check(id int64) error {
	if id < 1 || id > s.max {
		return errs.Constraintf("id %d out of range", id)
	}
	if _, ok := s.used[id]; ok {
		return errs.Constraintf("duplicate id %d", id)
	}
	return nil
}

// Commit 记录已写出的主键，generated 为 true 时推进序列
func (s *Serial) Commit(id int64, generated bool) {
	s.used[id] = struct{}{}
	if id > s.high {
		s.high = id
	}
	if generated {
		s.next = id + 1
	}
}

// Max 已写出的最大主键，没有时返回 0
func (s *Serial) Max() int64 {
	return s.high
}

// Len 已写出的主键个数
func (s *Serial) Len() int {
	return len(s.used)
}
