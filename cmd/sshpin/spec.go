package main

import (
	"github.com/spf13/cobra"

	"github.com/zx06/sshpin/internal/app"
	"github.com/zx06/sshpin/internal/output"
)

// NewSpecCommand creates the spec command: commands, flags, error codes and
// their exit codes, so agents can drive check/exec/ls/forward without parsing help text.
func NewSpecCommand(a *app.App, w *output.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "spec",
		Short: "Export the sshpin command, flag and exit-code spec for AI/agents",
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := parseOutputFormat(GlobalConfig.FormatStr)
			if err != nil {
				return err
			}
			return w.WriteOK(format, a.BuildSpec())
		},
	}
}
