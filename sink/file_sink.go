package sink

import (
	"bufio"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pkg/errors"
)

// FileSinkOptions 文件输出配置
type FileSinkOptions struct {
	// 文件路径
	Path string `cfg:"path" validate:"required"`
	// 压缩方式：auto 根据扩展名选择（.gz 使用 gzip，.zst 使用 zstd），none, gzip, zstd
	Compression string `cfg:"compression" def:"auto" validate:"omitempty,oneof=auto none gzip zstd"`
	// 追加写入，默认覆盖已有文件
	Append bool `cfg:"append"`
	// 压缩级别，0 表示使用默认级别
	Level int `cfg:"level"`
}

// FileSink 文件输出，可选 gzip/zstd 压缩
type FileSink struct {
	file       *os.File
	buf        *bufio.Writer
	compressor io.WriteCloser
	writer     io.Writer
	mu         sync.Mutex
}

// NewFileSinkWithOptions 创建文件输出
func NewFileSinkWithOptions(options *FileSinkOptions) (*FileSink, error) {
	if options == nil || options.Path == "" {
		return nil, errors.New("file path is required")
	}

	compression, err := resolveCompression(options.Path, options.Compression)
	if err != nil {
		return nil, err
	}

	// 确保目录存在
	dir := filepath.Dir(options.Path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, errors.Wrapf(err, "failed to create directory %s", dir)
	}

	flag := os.O_CREATE | os.O_WRONLY | os.O_TRUNC
	if options.Append {
		flag = os.O_CREATE | os.O_WRONLY | os.O_APPEND
	}
	file, err := os.OpenFile(options.Path, flag, 0644)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open file %s", options.Path)
	}

	s := &FileSink{file: file, buf: bufio.NewWriter(file)}
	s.writer = s.buf

	switch compression {
	case "gzip":
		level := gzip.DefaultCompression
		if options.Level != 0 {
			level = options.Level
		}
		gw, err := gzip.NewWriterLevel(s.buf, level)
		if err != nil {
			_ = file.Close()
			return nil, errors.Wrap(err, "gzip.NewWriterLevel failed")
		}
		s.compressor = gw
	case "zstd":
		var opts []zstd.EOption
		if options.Level != 0 {
			opts = append(opts, zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(options.Level)))
		}
		zw, err := zstd.NewWriter(s.buf, opts...)
		if err != nil {
			_ = file.Close()
			return nil, errors.Wrap(err, "zstd.NewWriter failed")
		}
		s.compressor = zw
	}
	if s.compressor != nil {
		s.writer = s.compressor
	}

	return s, nil
}

func resolveCompression(path, compression string) (string, error) {
	switch strings.ToLower(compression) {
	case "", "auto":
		switch strings.ToLower(filepath.Ext(path)) {
		case ".gz", ".gzip":
			return "gzip", nil
		case ".zst", ".zstd":
			return "zstd", nil
		default:
			return "none", nil
		}
	case "none", "gzip", "zstd":
		return strings.ToLower(compression), nil
	default:
		return "", errors.Errorf("unsupported compression %q", compression)
	}
}

// Write 实现 io.Writer 接口
func (f *FileSink) Write(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.file == nil {
		return 0, errors.New("file is closed")
	}
	return f.writer.Write(p)
}

// Close 依次关闭压缩器、刷新缓冲并关闭文件
func (f *FileSink) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.file == nil {
		return nil
	}

	var firstErr error
	if f.compressor != nil {
		if err := f.compressor.Close(); err != nil {
			firstErr = errors.Wrap(err, "close compressor failed")
		}
	}
	if err := f.buf.Flush(); err != nil && firstErr == nil {
		firstErr = errors.Wrap(err, "flush failed")
	}
	if err := f.file.Close(); err != nil && firstErr == nil {
		firstErr = errors.Wrap(err, "close file failed")
	}
	f.file = nil
	return firstErr
}
