package sink

import (
	"io"

	"github.com/pkg/errors"
)

// Sink 脚本与日志的输出目标
type Sink interface {
	io.Writer
	io.Closer
}

// Options 输出目标配置，Path 为空或 "-" 时输出到标准输出
type Options struct {
	Path string `cfg:"path"`
	// 压缩方式：auto 根据扩展名选择，none, gzip, zstd
	Compression string `cfg:"compression" def:"auto" validate:"omitempty,oneof=auto none gzip zstd"`
	// 追加写入，默认覆盖
	Append bool `cfg:"append"`
}

// NewSinkWithOptions 根据配置创建文件或控制台输出
func NewSinkWithOptions(options *Options) (Sink, error) {
	if options == nil {
		return nil, errors.New("options is nil")
	}

	switch options.Path {
	case "", "-":
		return NewConsoleSinkWithOptions(&ConsoleSinkOptions{Target: "stdout", Buffered: true})
	case "/dev/stderr":
		return NewConsoleSinkWithOptions(&ConsoleSinkOptions{Target: "stderr"})
	}

	s, err := NewFileSinkWithOptions(&FileSinkOptions{
		Path:        options.Path,
		Compression: options.Compression,
		Append:      options.Append,
	})
	if err != nil {
		return nil, errors.WithMessage(err, "NewFileSinkWithOptions failed")
	}
	return s, nil
}
