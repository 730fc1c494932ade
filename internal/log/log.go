package log

import (
	"io"
	"log/slog"
)

// New 返回写入到 w 的 slog.Logger（level=INFO）。
// stdout 是数据通道，日志应始终写 stderr（由调用方传入）。
func New(w io.Writer) *slog.Logger {
	return NewLevel(w, slog.LevelInfo)
}

// NewLevel 返回指定 level 的 text logger（--verbose 时为 DEBUG）。
func NewLevel(w io.Writer, level slog.Level) *slog.Logger {
	h := slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})
	return slog.New(h)
}

// Discard 返回丢弃所有输出的 logger。
func Discard() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}
