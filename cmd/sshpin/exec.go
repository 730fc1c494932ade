package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/zx06/sshpin/internal/app"
	"github.com/zx06/sshpin/internal/errors"
	"github.com/zx06/sshpin/internal/output"
)

// ExecFlags holds the flags for the exec command
type ExecFlags struct {
	AllowPlaintext bool
}

// NewExecCommand creates the exec command
func NewExecCommand(w *output.Writer) *cobra.Command {
	flags := &ExecFlags{}

	cmd := &cobra.Command{
		Use:   "exec -- <command> [args...]",
		Short: "Run a command on the host over a verified connection",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExec(args, flags, w)
		},
	}
	cmd.Flags().BoolVar(&flags.AllowPlaintext, "allow-plaintext", false, "Allow plaintext secrets in config")

	return cmd
}

func runExec(args []string, flags *ExecFlags, w *output.Writer) error {
	format, err := parseOutputFormat(GlobalConfig.FormatStr)
	if err != nil {
		return err
	}
	name, host, xe := selectedHost()
	if xe != nil {
		return xe
	}
	command := strings.TrimSpace(strings.Join(args, " "))
	if command == "" {
		return errors.New(errors.CodeCfgInvalid, "command is required", nil)
	}

	ctx, cancel := signalContext()
	defer cancel()

	conn, xe := app.ResolveConnection(ctx, app.ConnectionOptions{
		Name:           name,
		Host:           host,
		AllowPlaintext: flags.AllowPlaintext,
		Logger:         newLogger(),
	})
	if xe != nil {
		return xe
	}
	defer func() { _ = conn.Close() }()

	res, xe := conn.Client.Run(ctx, command)
	if format == output.FormatTable && res != nil {
		// 终端下直接透传远端输出
		_, _ = fmt.Fprint(w.Out, res.Stdout)
		_, _ = fmt.Fprint(w.Err, res.Stderr)
		if xe != nil {
			return xe
		}
		return nil
	}
	if xe != nil {
		return xe
	}
	return w.WriteOK(format, res)
}
