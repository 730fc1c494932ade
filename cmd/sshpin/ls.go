package main

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/zx06/sshpin/internal/app"
	"github.com/zx06/sshpin/internal/output"
	"github.com/zx06/sshpin/internal/ssh"
)

// LsFlags holds the flags for the ls command
type LsFlags struct {
	AllowPlaintext bool
}

type dirListing struct {
	Host    string          `json:"host" yaml:"host"`
	Path    string          `json:"path" yaml:"path"`
	Entries []ssh.FileEntry `json:"entries" yaml:"entries"`
}

func (d *dirListing) ToTableData() ([]string, []map[string]any, bool) {
	cols := []string{"mode", "size", "mod_time", "name"}
	rows := make([]map[string]any, 0, len(d.Entries))
	for _, e := range d.Entries {
		name := e.Name
		if e.IsDir {
			name += "/"
		}
		rows = append(rows, map[string]any{
			"mode":     e.Mode,
			"size":     e.Size,
			"mod_time": e.ModTime.Format(time.DateTime),
			"name":     name,
		})
	}
	return cols, rows, true
}

// NewLsCommand creates the ls command
func NewLsCommand(w *output.Writer) *cobra.Command {
	flags := &LsFlags{}

	cmd := &cobra.Command{
		Use:   "ls [path]",
		Short: "List a remote directory over SFTP",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := ""
			if len(args) == 1 {
				path = args[0]
			}
			return runLs(path, flags, w)
		},
	}
	cmd.Flags().BoolVar(&flags.AllowPlaintext, "allow-plaintext", false, "Allow plaintext secrets in config")

	return cmd
}

func runLs(path string, flags *LsFlags, w *output.Writer) error {
	format, err := parseOutputFormat(GlobalConfig.FormatStr)
	if err != nil {
		return err
	}
	name, host, xe := selectedHost()
	if xe != nil {
		return xe
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

	entries, xe := conn.Client.ReadDir(path)
	if xe != nil {
		return xe
	}
	if path == "" {
		path = "."
	}
	return w.WriteOK(format, &dirListing{Host: name, Path: path, Entries: entries})
}
