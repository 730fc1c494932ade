package main

import (
	"os"

	"github.com/zx06/sshpin/internal/app"
	"github.com/zx06/sshpin/internal/errors"
	"github.com/zx06/sshpin/internal/output"
)

func main() {
	exit := run()
	os.Exit(exit)
}

// run is the main entry point
func run() int {
	a := app.New(version, commit, date)
	w := output.New(os.Stdout, os.Stderr)

	root := NewRootCommand()

	root.AddCommand(NewSpecCommand(&a, &w))
	root.AddCommand(NewVersionCommand(&a, &w))
	root.AddCommand(NewHostCommand(&w))
	root.AddCommand(NewFingerprintCommand(&w))
	root.AddCommand(NewCheckCommand(&w))
	root.AddCommand(NewExecCommand(&w))
	root.AddCommand(NewLsCommand(&w))
	root.AddCommand(NewForwardCommand(&w))
	root.AddCommand(NewMCPCommand())

	if err := root.Execute(); err != nil {
		xe := normalizeErr(err)
		format := resolveFormatForError(GlobalConfig.FormatStr)
		_ = w.WriteError(format, xe)
		return int(xe.ExitCode())
	}

	return int(errors.ExitOK)
}
