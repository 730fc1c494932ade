package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"

	"github.com/zx06/sshpin/internal/app"
	"github.com/zx06/sshpin/internal/config"
	"github.com/zx06/sshpin/internal/errors"
	mcp_pkg "github.com/zx06/sshpin/internal/mcp"
	"github.com/zx06/sshpin/internal/secret"
)

const defaultMCPHTTPAddr = "127.0.0.1:8787"

// NewMCPCommand creates the MCP command group
func NewMCPCommand() *cobra.Command {
	mcpCmd := &cobra.Command{
		Use:   "mcp",
		Short: "MCP (Model Context Protocol) server commands",
	}
	mcpCmd.AddCommand(newMCPServerCommand())
	return mcpCmd
}

type mcpServerOptions struct {
	transport        string
	transportSet     bool
	httpAddr         string
	httpAddrSet      bool
	httpAuthToken    string
	httpAuthTokenSet bool
	hosts            []string
	hostsSet         bool
}

type mcpServerResolved struct {
	transport     string
	httpAddr      string
	httpAuthToken string
	hosts         []string
}

func newMCPServerCommand() *cobra.Command {
	opts := &mcpServerOptions{}
	cmd := &cobra.Command{
		Use:   "server",
		Short: "Start MCP server exposing host tools (host_list, host_show, host_check)",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.transportSet = cmd.Flags().Changed("transport")
			opts.httpAddrSet = cmd.Flags().Changed("http-addr")
			opts.httpAuthTokenSet = cmd.Flags().Changed("http-auth-token")
			opts.hostsSet = cmd.Flags().Changed("hosts")
			return runMCPServer(opts)
		},
	}
	cmd.Flags().StringVar(&opts.transport, "transport", mcp_pkg.TransportStdio, "MCP transport: stdio|streamable_http")
	cmd.Flags().StringVar(&opts.httpAddr, "http-addr", defaultMCPHTTPAddr, "Streamable HTTP listen address")
	cmd.Flags().StringVar(&opts.httpAuthToken, "http-auth-token", "", "Streamable HTTP auth token (required for streamable_http)")
	cmd.Flags().StringSliceVar(&opts.hosts, "hosts", nil, "Only expose these hosts (comma separated, default all)")
	return cmd
}

func runMCPServer(opts *mcpServerOptions) error {
	cfg, _, xe := config.LoadConfig(config.Options{ConfigPath: GlobalConfig.ConfigStr})
	if xe != nil {
		return xe
	}
	resolved, xe := resolveMCPServerOptions(opts, cfg)
	if xe != nil {
		return xe
	}

	logger := newLogger()
	exposed, xe := exposedHosts(cfg, resolved.hosts, logger)
	if xe != nil {
		return xe
	}
	cfg.Hosts = exposed

	server, err := mcp_pkg.CreateServer(version, &cfg, logger)
	if err != nil {
		return errors.AsOrWrap(err)
	}
	logger.Debug("mcp server ready", "transport", resolved.transport, "hosts", len(exposed))

	ctx, cancel := signalContext()
	defer cancel()

	switch resolved.transport {
	case mcp_pkg.TransportStdio:
		return server.Run(ctx, &mcp.StdioTransport{})
	case mcp_pkg.TransportStreamableHTTP:
		handler, err := mcp_pkg.NewStreamableHTTPHandler(server, resolved.httpAuthToken, logger)
		if err != nil {
			return errors.AsOrWrap(err)
		}
		return serveHTTP(ctx, &http.Server{
			Addr:              resolved.httpAddr,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		}, logger)
	default:
		return errors.New(errors.CodeCfgInvalid, "unsupported mcp transport", map[string]any{"transport": resolved.transport})
	}
}

// serveHTTP 在 ctx 取消时优雅关闭。
func serveHTTP(ctx context.Context, srv *http.Server, logger *slog.Logger) error {
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	logger.Info("mcp streamable http listening", "addr", srv.Addr)

	select {
	case err := <-errCh:
		return errors.Wrap(errors.CodeInternal, "mcp http server failed", map[string]any{"addr": srv.Addr}, err)
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// resolveMCPServerOptions 按 CLI > ENV > config 合并 server 选项。
func resolveMCPServerOptions(opts *mcpServerOptions, cfg config.File) (mcpServerResolved, *errors.XError) {
	if opts == nil {
		opts = &mcpServerOptions{}
	}
	r := mcpServerResolved{
		transport: pick(opts.transportSet, opts.transport, "SSHPIN_MCP_TRANSPORT", cfg.MCP.Transport, mcp_pkg.TransportStdio),
		httpAddr:  pick(opts.httpAddrSet, opts.httpAddr, "SSHPIN_MCP_HTTP_ADDR", cfg.MCP.HTTP.Addr, defaultMCPHTTPAddr),
	}
	if r.transport != mcp_pkg.TransportStdio && r.transport != mcp_pkg.TransportStreamableHTTP {
		return mcpServerResolved{}, errors.New(errors.CodeCfgInvalid, "invalid mcp transport", map[string]any{"transport": r.transport})
	}

	switch {
	case opts.hostsSet:
		r.hosts = opts.hosts
	case os.Getenv("SSHPIN_MCP_HOSTS") != "":
		r.hosts = strings.Split(os.Getenv("SSHPIN_MCP_HOSTS"), ",")
	default:
		r.hosts = cfg.MCP.Hosts
	}

	// config 中的 token 可能是 keyring 引用，只有 CLI/ENV 都没给时才解析。
	r.httpAuthToken = pick(opts.httpAuthTokenSet, opts.httpAuthToken, "SSHPIN_MCP_HTTP_AUTH_TOKEN", "", "")
	if r.httpAuthToken == "" && cfg.MCP.HTTP.AuthToken != "" {
		token, xe := secret.Resolve(cfg.MCP.HTTP.AuthToken, secret.Options{AllowPlaintext: cfg.MCP.HTTP.AllowPlaintextToken})
		if xe != nil {
			return mcpServerResolved{}, xe
		}
		r.httpAuthToken = token
	}
	if r.transport == mcp_pkg.TransportStreamableHTTP && r.httpAuthToken == "" {
		return mcpServerResolved{}, errors.New(errors.CodeCfgInvalid, "streamable http transport requires auth token", nil)
	}
	return r, nil
}

func pick(flagSet bool, flagValue, envKey, cfgValue, def string) string {
	if flagSet && flagValue != "" {
		return flagValue
	}
	if v := os.Getenv(envKey); envKey != "" && v != "" {
		return v
	}
	if cfgValue != "" {
		return cfgValue
	}
	return def
}

// exposedHosts 选出要暴露的 host：未知名字报错；pinned key 无法解析的 host 被排除并告警，
// 否则 host_check 只会对它们返回 KEY_MALFORMED。
func exposedHosts(cfg config.File, names []string, logger *slog.Logger) (map[string]config.Host, *errors.XError) {
	selected := make(map[string]config.Host, len(cfg.Hosts))
	if len(names) == 0 {
		for name, h := range cfg.Hosts {
			selected[name] = h
		}
	} else {
		for _, raw := range names {
			name := strings.TrimSpace(raw)
			if name == "" {
				continue
			}
			h, ok := cfg.Hosts[name]
			if !ok {
				return nil, errors.New(errors.CodeCfgInvalid, "mcp host not found", map[string]any{"name": name})
			}
			selected[name] = h
		}
	}

	keys := make([]string, 0, len(selected))
	for name := range selected {
		keys = append(keys, name)
	}
	sort.Strings(keys)
	for _, name := range keys {
		if _, xe := app.Fingerprints(name, selected[name]); xe != nil {
			logger.Warn("host excluded from mcp", "host", name, "code", xe.Code, "error", xe.Message)
			delete(selected, name)
		}
	}
	return selected, nil
}
