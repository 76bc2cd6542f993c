package sink

import (
	"bufio"
	"io"
	"os"
	"sync"
)

// ConsoleSinkOptions 控制台输出配置
type ConsoleSinkOptions struct {
	// 输出目标：stdout, stderr
	Target string `cfg:"target" def:"stdout" validate:"omitempty,oneof=stdout stderr"`
	// 是否缓冲输出，Close 时刷新
	Buffered bool `cfg:"buffered"`
}

// ConsoleSink 控制台输出，Close 不关闭标准输出
type ConsoleSink struct {
	writer io.Writer
	buf    *bufio.Writer
	mu     sync.Mutex
}

// NewConsoleSinkWithOptions 创建控制台输出
func NewConsoleSinkWithOptions(options *ConsoleSinkOptions) (*ConsoleSink, error) {
	if options == nil {
		options = &ConsoleSinkOptions{Target: "stdout"}
	}

	var w io.Writer = os.Stdout
	if options.Target == "stderr" {
		w = os.Stderr
	}

	c := &ConsoleSink{writer: w}
	if options.Buffered {
		c.buf = bufio.NewWriter(w)
		c.writer = c.buf
	}
	return c, nil
}

func (c *ConsoleSink) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.writer.Write(p)
}

func (c *ConsoleSink) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.buf != nil {
		return c.buf.Flush()
	}
	return nil
}
