package main

import (
	"github.com/spf13/cobra"

	"github.com/zx06/sshpin/internal/app"
	"github.com/zx06/sshpin/internal/output"
)

// NewFingerprintCommand creates the fingerprint command
func NewFingerprintCommand(w *output.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "fingerprint",
		Short: "Print fingerprints and known_hosts lines of the pinned keys (offline)",
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := parseOutputFormat(GlobalConfig.FormatStr)
			if err != nil {
				return err
			}
			name, host, xe := selectedHost()
			if xe != nil {
				return xe
			}
			keys, xe := app.Fingerprints(name, host)
			if xe != nil {
				return xe
			}
			return w.WriteOK(format, keys)
		},
	}
}
