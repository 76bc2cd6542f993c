package log

import "github.com/hatlonely/pgdump/log/logger"

var defaultLogger logger.Logger

func init() {
	// 默认向标准错误输出 text 格式日志
	slog, err := logger.NewSLogWithOptions(&logger.SLogOptions{
		Level:  "info",
		Format: "text",
	})
	if err != nil {
		panic("failed to initialize default logger: " + err.Error())
	}
	defaultLogger = slog
}

func Default() logger.Logger {
	return defaultLogger
}

// Discard 返回丢弃所有日志的日志器
func Discard() logger.Logger {
	return logger.NewDiscard()
}
