package main

import (
	"fmt"
	"net"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/zx06/sshpin/internal/app"
	"github.com/zx06/sshpin/internal/errors"
	"github.com/zx06/sshpin/internal/output"
	"github.com/zx06/sshpin/internal/proxy"
)

// ForwardFlags holds the flags for the forward command
type ForwardFlags struct {
	Remote         string
	LocalPort      int
	LocalHost      string
	AllowPlaintext bool
}

// NewForwardCommand creates the forward command
func NewForwardCommand(w *output.Writer) *cobra.Command {
	flags := &ForwardFlags{}

	cmd := &cobra.Command{
		Use:   "forward --remote host:port [flags]",
		Short: "Forward a local TCP port through a verified connection (replaces ssh -L)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runForward(flags, w)
		},
	}

	cmd.Flags().StringVar(&flags.Remote, "remote", "", "Remote address host:port (resolved on the SSH server)")
	cmd.Flags().IntVar(&flags.LocalPort, "local-port", 0, "Local port to listen on (0 for auto-assign)")
	cmd.Flags().StringVar(&flags.LocalHost, "local-host", "127.0.0.1", "Local host to bind to")
	cmd.Flags().BoolVar(&flags.AllowPlaintext, "allow-plaintext", false, "Allow plaintext secrets in config")

	return cmd
}

func runForward(flags *ForwardFlags, w *output.Writer) error {
	format, err := parseOutputFormat(GlobalConfig.FormatStr)
	if err != nil {
		return err
	}
	name, host, xe := selectedHost()
	if xe != nil {
		return xe
	}
	if flags.Remote == "" {
		return errors.New(errors.CodeCfgInvalid, "--remote is required", nil)
	}
	if _, _, err := net.SplitHostPort(flags.Remote); err != nil {
		return errors.Wrap(errors.CodeCfgInvalid, "remote address must be host:port", map[string]any{"remote": flags.Remote}, err)
	}

	ctx, cancel := signalContext()
	defer cancel()

	logger := newLogger()
	conn, xe := app.ResolveConnection(ctx, app.ConnectionOptions{
		Name:           name,
		Host:           host,
		AllowPlaintext: flags.AllowPlaintext,
		Logger:         logger,
	})
	if xe != nil {
		return xe
	}
	defer func() { _ = conn.Close() }()

	px, result, xe := proxy.Start(ctx, proxy.Options{
		LocalHost:  flags.LocalHost,
		LocalPort:  flags.LocalPort,
		RemoteAddr: flags.Remote,
		Dialer:     conn.Client,
		Logger:     logger,
	})
	if xe != nil {
		return xe
	}
	defer func() { _ = px.Stop() }()

	via := net.JoinHostPort(host.Host, strconv.Itoa(portOrDefault(host.Port)))
	if format == output.FormatTable {
		fmt.Fprintf(w.Err, "✓ Forward started\n")
		fmt.Fprintf(w.Err, "  Local:   %s\n", result.LocalAddress)
		fmt.Fprintf(w.Err, "  Remote:  %s (via %s)\n", result.RemoteAddress, via)
		fmt.Fprintf(w.Err, "  Host:    %s\n", name)
		fmt.Fprintf(w.Err, "\nPress Ctrl+C to stop\n")
	} else {
		_ = w.WriteOK(format, map[string]any{
			"local_address":  result.LocalAddress,
			"remote_address": result.RemoteAddress,
			"via":            via,
			"host":           name,
		})
	}

	<-ctx.Done()
	fmt.Fprintf(w.Err, "\nShutting down forward...\n")
	return nil
}

func portOrDefault(p int) int {
	if p == 0 {
		return 22
	}
	return p
}
