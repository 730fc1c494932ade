package main

import (
	"github.com/spf13/cobra"

	"github.com/zx06/sshpin/internal/app"
	"github.com/zx06/sshpin/internal/output"
)

// NewHostCommand creates the host command group
func NewHostCommand(w *output.Writer) *cobra.Command {
	hostCmd := &cobra.Command{
		Use:   "host",
		Short: "Inspect configured hosts",
	}

	hostCmd.AddCommand(newHostListCommand(w))
	hostCmd.AddCommand(newHostShowCommand(w))

	return hostCmd
}

func newHostListCommand(w *output.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all configured hosts",
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := parseOutputFormat(GlobalConfig.FormatStr)
			if err != nil {
				return err
			}
			r := GlobalConfig.Resolved
			return w.WriteOK(format, app.ListHosts(r.ConfigPath, r.File))
		},
	}
}

func newHostShowCommand(w *output.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "show <name>",
		Short: "Show host details with pinned key fingerprints (secrets redacted)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := parseOutputFormat(GlobalConfig.FormatStr)
			if err != nil {
				return err
			}
			detail, xe := app.ShowHost(GlobalConfig.Resolved.File, args[0])
			if xe != nil {
				return xe
			}
			return w.WriteOK(format, detail)
		},
	}
}
