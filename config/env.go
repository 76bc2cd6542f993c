package config

import (
	"os"
)

// EnvUseCopy 进程级的 COPY 开关
const EnvUseCopy = "PG_USE_COPY"

// EnvBool 读取布尔型环境变量，未设置或无法解析时返回 def
func EnvBool(key string, def bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return def
	}
	b, err := ParseBool(value)
	if err != nil {
		return def
	}
	return b
}

// UseCopyFromEnv 读取 PG_USE_COPY，默认 NO
func UseCopyFromEnv() bool {
	return EnvBool(EnvUseCopy, false)
}
