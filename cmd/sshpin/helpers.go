package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/term"

	"github.com/zx06/sshpin/internal/config"
	"github.com/zx06/sshpin/internal/errors"
	"github.com/zx06/sshpin/internal/log"
	"github.com/zx06/sshpin/internal/output"
)

// parseOutputFormat parses and validates the output format string
func parseOutputFormat(s string) (output.Format, error) {
	f, xe := output.ParseFormat(s)
	if xe != nil {
		return "", xe
	}
	return resolveAuto(f), nil
}

// resolveFormatForError resolves the format for error output
func resolveFormatForError(s string) output.Format {
	f, xe := output.ParseFormat(s)
	if xe != nil {
		f = output.FormatAuto
	}
	return resolveAuto(f)
}

// resolveAuto resolves "auto" format to appropriate format based on TTY
func resolveAuto(f output.Format) output.Format {
	if f != output.FormatAuto {
		return f
	}
	if term.IsTerminal(int(os.Stdout.Fd())) {
		return output.FormatTable
	}
	return output.FormatJSON
}

// normalizeErr normalizes any error to XError
func normalizeErr(err error) *errors.XError {
	if xe, ok := errors.As(err); ok {
		return xe
	}
	return errors.Wrap(errors.CodeInternal, err.Error(), nil, err)
}

// selectedHost 返回 -p/--profile 选中的 host。
func selectedHost() (string, config.Host, *errors.XError) {
	name := GlobalConfig.ProfileStr
	if name == "" {
		return "", config.Host{}, errors.New(errors.CodeCfgInvalid, "host is required (use global -p/--profile flag)", nil)
	}
	return name, GlobalConfig.Resolved.Profile, nil
}

// newLogger 返回写 stderr 的 logger；--verbose 时输出 debug。
func newLogger() *slog.Logger {
	if GlobalConfig.Verbose {
		return log.NewLevel(os.Stderr, slog.LevelDebug)
	}
	return log.New(os.Stderr)
}

// signalContext 在 SIGINT/SIGTERM 时取消。
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
