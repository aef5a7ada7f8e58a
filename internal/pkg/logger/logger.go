package logger

import (
	"log/slog"
	"os"
	"strings"
)

// NewDefault 创建默认的 slog Logger，输出到标准输出。
//
// 参数:
//
//	level: 日志级别字符串 (debug / info / warn / error)，无法识别时使用 info
func NewDefault(level string) *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: ParseLevel(level),
	}))
}

// ParseLevel 将日志级别字符串转换为 slog.Level。
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
