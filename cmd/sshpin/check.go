package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/zx06/sshpin/internal/app"
	"github.com/zx06/sshpin/internal/output"
)

// NewCheckCommand creates the check command
func NewCheckCommand(w *output.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Verify the host key against the pinned keys; no credentials are sent",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()
			return runCheck(ctx, w)
		},
	}
}

func runCheck(ctx context.Context, w *output.Writer) error {
	format, err := parseOutputFormat(GlobalConfig.FormatStr)
	if err != nil {
		return err
	}
	name, host, xe := selectedHost()
	if xe != nil {
		return xe
	}
	res, xe := app.ProbeHost(ctx, app.ConnectionOptions{Name: name, Host: host, Logger: newLogger()})
	if xe != nil {
		// 拒绝时错误 details 已包含 verdict
		return xe
	}
	return w.WriteOK(format, res)
}
