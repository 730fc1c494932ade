package app

import (
	"github.com/zx06/sshpin/internal/errors"
	"github.com/zx06/sshpin/internal/output"
	"github.com/zx06/sshpin/internal/spec"
)

type App struct {
	Version string
	Commit  string
	Date    string
}

func New(version, commit, date string) App {
	return App{Version: version, Commit: commit, Date: date}
}

func (a App) BuildSpec() spec.Spec {
	globalFlags := []spec.FlagSpec{
		{Name: "config", Env: "SSHPIN_CONFIG", Description: "Config file path (YAML); default: ./sshpin.yaml or $HOME/.config/sshpin/sshpin.yaml"},
		{Name: "profile", Shorthand: "p", Env: "SSHPIN_PROFILE", Default: "", Description: "Host name (config: hosts.<name>)"},
		{Name: "format", Shorthand: "f", Env: "SSHPIN_FORMAT", Default: "auto", Description: "Output format: " + output.FormatList()},
		{Name: "verbose", Default: "false", Description: "Enable debug logging on stderr"},
	}
	withFlags := func(extra ...spec.FlagSpec) []spec.FlagSpec {
		flags := make([]spec.FlagSpec, 0, len(globalFlags)+len(extra))
		flags = append(flags, globalFlags...)
		return append(flags, extra...)
	}
	allowPlaintext := spec.FlagSpec{Name: "allow-plaintext", Default: "false", Description: "Allow plaintext secrets in config"}

	return spec.Spec{
		SchemaVersion: output.SchemaVersion,
		Commands: []spec.CommandSpec{
			{Name: "spec", Description: "Export the sshpin command, flag and exit-code spec for AI/agents", Flags: withFlags()},
			{Name: "version", Description: "Print version information", Flags: withFlags()},
			{Name: "host list", Description: "List configured hosts", Flags: withFlags()},
			{Name: "host show", Usage: "<name>", Description: "Show a host with its pinned key fingerprints (secrets redacted)", Flags: withFlags()},
			{Name: "fingerprint", Description: "Print fingerprints and known_hosts lines of the pinned keys (offline)", Flags: withFlags()},
			{Name: "check", Description: "Handshake with the host and report the host key verdict; no credentials are sent", Flags: withFlags()},
			{Name: "exec", Usage: "-- <command> [args...]", Description: "Run a command over a verified connection", Flags: withFlags(allowPlaintext)},
			{Name: "ls", Usage: "[path]", Description: "List a remote directory over SFTP", Flags: withFlags(allowPlaintext)},
			{
				Name:        "forward",
				Description: "Forward a local TCP port through a verified connection",
				Flags: withFlags(allowPlaintext,
					spec.FlagSpec{Name: "remote", Description: "Remote address host:port (resolved on the SSH server)"},
					spec.FlagSpec{Name: "local-host", Default: "127.0.0.1", Description: "Local listen host"},
					spec.FlagSpec{Name: "local-port", Default: "0", Description: "Local listen port (0 = auto)"},
				),
			},
			{
				Name:        "mcp server",
				Description: "Start MCP server exposing host tools",
				Flags: withFlags(
					spec.FlagSpec{Name: "transport", Env: "SSHPIN_MCP_TRANSPORT", Default: "stdio", Description: "MCP transport: stdio|streamable_http"},
					spec.FlagSpec{Name: "http-addr", Env: "SSHPIN_MCP_HTTP_ADDR", Default: "127.0.0.1:8787", Description: "Streamable HTTP listen address"},
					spec.FlagSpec{Name: "http-auth-token", Env: "SSHPIN_MCP_HTTP_AUTH_TOKEN", Description: "Streamable HTTP bearer token"},
					spec.FlagSpec{Name: "hosts", Env: "SSHPIN_MCP_HOSTS", Description: "Only expose these hosts (comma separated, default all)"},
				),
			},
		},
		ErrorCodes: errors.AllCodes(),
		ExitCodes:  spec.ExitCodesFor(errors.AllCodes()),
	}
}

type VersionInfo struct {
	Version string `json:"version" yaml:"version"`
	Commit  string `json:"commit" yaml:"commit"`
	Date    string `json:"date" yaml:"date"`
}

func (a App) VersionInfo() VersionInfo {
	return VersionInfo{Version: a.Version, Commit: a.Commit, Date: a.Date}
}
