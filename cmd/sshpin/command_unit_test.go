package main

import (
	"bytes"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"

	gossh "golang.org/x/crypto/ssh"

	"github.com/zx06/sshpin/internal/app"
	"github.com/zx06/sshpin/internal/config"
	"github.com/zx06/sshpin/internal/errors"
	"github.com/zx06/sshpin/internal/output"
	"github.com/zx06/sshpin/internal/ssh"
)

const githubEd25519 = "ssh-ed25519 AAAAC3NzaC1lZDI1NTE5AAAAIOMqqnkVzrm0SdG6UOoqKLsabgH5C9okWi0dh2l9GKJl"

func resetGlobalConfig(t *testing.T) {
	t.Helper()
	prev := GlobalConfig
	GlobalConfig = &Config{}
	t.Cleanup(func() { GlobalConfig = prev })
}

// useConfig 写入配置文件并按 profile 解析到 GlobalConfig。
func useConfig(t *testing.T, content, profile string) string {
	t.Helper()
	resetGlobalConfig(t)
	path := filepath.Join(t.TempDir(), "sshpin.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	r, xe := config.Resolve(config.Options{
		ConfigPath:    path,
		CLIProfile:    profile,
		CLIProfileSet: profile != "",
		CLIFormat:     "json",
		CLIFormatSet:  true,
	})
	if xe != nil {
		t.Fatalf("resolve config: %v", xe)
	}
	GlobalConfig.ConfigStr = path
	GlobalConfig.Resolved = r
	GlobalConfig.FormatStr = r.Format
	GlobalConfig.ProfileStr = r.ProfileName
	return path
}

func runWithArgs(t *testing.T, args ...string) int {
	t.Helper()
	resetGlobalConfig(t)
	prevArgs := os.Args
	os.Args = append([]string{"sshpin"}, args...)
	t.Cleanup(func() { os.Args = prevArgs })
	return run()
}

// startHandshakeServer 启动只完成握手的 SSH 服务器，返回端口与 host key 行。
func startHandshakeServer(t *testing.T) (int, string) {
	t.Helper()
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate host key: %v", err)
	}
	signer, err := gossh.NewSignerFromKey(priv)
	if err != nil {
		t.Fatalf("host signer: %v", err)
	}
	cfg := &gossh.ServerConfig{
		PublicKeyCallback: func(gossh.ConnMetadata, gossh.PublicKey) (*gossh.Permissions, error) {
			return nil, fmt.Errorf("denied")
		},
	}
	cfg.AddHostKey(signer)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { ln.Close() })
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func() {
				defer conn.Close()
				_, _, _, _ = gossh.NewServerConn(conn, cfg)
			}()
		}
	}()

	pub := signer.PublicKey()
	line := pub.Type() + " " + base64.StdEncoding.EncodeToString(pub.Marshal())
	return ln.Addr().(*net.TCPAddr).Port, line
}

func TestParseOutputFormat(t *testing.T) {
	format, err := parseOutputFormat("auto")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if format != output.FormatJSON && format != output.FormatTable {
		t.Fatalf("unexpected format: %s", format)
	}

	if _, err := parseOutputFormat("invalid"); err == nil {
		t.Fatal("expected error for invalid format")
	}
}

func TestResolveFormatForError(t *testing.T) {
	format := resolveFormatForError("invalid")
	if format != output.FormatJSON && format != output.FormatTable {
		t.Fatalf("unexpected format: %s", format)
	}
	if got := resolveFormatForError("yaml"); got != output.FormatYAML {
		t.Fatalf("expected yaml, got %s", got)
	}
}

func TestNormalizeErr(t *testing.T) {
	xe := errors.New(errors.CodeCfgInvalid, "bad config", nil)
	if got := normalizeErr(xe); got != xe {
		t.Fatalf("expected same error, got %v", got)
	}

	err := normalizeErr(os.ErrInvalid)
	if err.Code != errors.CodeInternal {
		t.Fatalf("expected CodeInternal, got %s", err.Code)
	}
}

func TestSelectedHost(t *testing.T) {
	resetGlobalConfig(t)
	if _, _, xe := selectedHost(); xe == nil || xe.Code != errors.CodeCfgInvalid {
		t.Fatalf("expected CFG_INVALID without profile, got %v", xe)
	}

	useConfig(t, "hosts:\n  gh:\n    host: github.com\n", "gh")
	name, host, xe := selectedHost()
	if xe != nil {
		t.Fatalf("unexpected error: %v", xe)
	}
	if name != "gh" || host.Host != "github.com" {
		t.Errorf("got %s %+v", name, host)
	}
}

func TestRun_ExitCodes(t *testing.T) {
	cases := []struct {
		name string
		args []string
		want errors.ExitCode
	}{
		{"spec", []string{"spec", "--format", "json"}, errors.ExitOK},
		{"version", []string{"version", "--format", "json"}, errors.ExitOK},
		{"invalid format", []string{"spec", "--format", "invalid"}, errors.ExitConfig},
		{"missing config", []string{"host", "list", "--config", "/nonexistent/sshpin.yaml", "--format", "json"}, errors.ExitConfig},
		{"unknown profile", []string{"check", "--config", "/nonexistent/sshpin.yaml", "-p", "nope", "--format", "json"}, errors.ExitConfig},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := runWithArgs(t, tc.args...); got != int(tc.want) {
				t.Fatalf("exit=%d want %d", got, tc.want)
			}
		})
	}
}

// startSilentServer 接受 TCP 连接但从不发送 SSH banner。
func startSilentServer(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	accepted := make(chan net.Conn, 16)
	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				close(accepted)
				return
			}
			accepted <- c
		}
	}()
	t.Cleanup(func() {
		ln.Close()
		for c := range accepted {
			c.Close()
		}
	})
	return ln.Addr().(*net.TCPAddr).Port
}

func TestRun_CheckExitCodes(t *testing.T) {
	port, hostKey := startHandshakeServer(t)
	silentPort := startSilentServer(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "sshpin.yaml")
	content := fmt.Sprintf(`
hosts:
  good:
    host: 127.0.0.1
    port: %[1]d
    user: tester
    host_keys:
      - %[2]s
  wrong:
    host: 127.0.0.1
    port: %[1]d
    user: tester
    host_keys:
      - %[3]s
  nokeys:
    host: 127.0.0.1
    port: %[1]d
    user: tester
  broken:
    host: 127.0.0.1
    port: %[1]d
    host_keys:
      - ssh-ed25519
  closed:
    host: 127.0.0.1
    port: 1
    timeout: 2s
    host_keys:
      - %[2]s
  silent:
    host: 127.0.0.1
    port: %[4]d
    timeout: 300ms
    host_keys:
      - %[2]s
`, port, hostKey, githubEd25519, silentPort)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cases := []struct {
		profile string
		want    errors.ExitCode
	}{
		{"good", errors.ExitOK},
		{"wrong", errors.ExitHostKeyRejected},
		{"nokeys", errors.ExitHostKeyRejected},
		{"broken", errors.ExitConfig},
		{"closed", errors.ExitConnect},
		{"silent", errors.ExitConnect},
	}
	for _, tc := range cases {
		t.Run(tc.profile, func(t *testing.T) {
			got := runWithArgs(t, "check", "--config", path, "-p", tc.profile, "--format", "json")
			if got != int(tc.want) {
				t.Fatalf("exit=%d want %d", got, tc.want)
			}
		})
	}
}

func TestHostCommands_ListAndShow(t *testing.T) {
	useConfig(t, `
hosts:
  github:
    description: GitHub
    host: github.com
    user: git
    passphrase: plaintext
    host_keys:
      - `+githubEd25519+`
  web:
    host: web.internal
    port: 2222
`, "")

	var out bytes.Buffer
	w := output.New(&out, &bytes.Buffer{})
	listCmd := newHostListCommand(&w)
	listCmd.SetArgs([]string{})
	if err := listCmd.Execute(); err != nil {
		t.Fatalf("list command failed: %v", err)
	}
	var listResp struct {
		OK   bool         `json:"ok"`
		Data app.HostList `json:"data"`
	}
	if err := json.Unmarshal(out.Bytes(), &listResp); err != nil {
		t.Fatalf("decode list: %v\n%s", err, out.String())
	}
	if !listResp.OK || len(listResp.Data.Hosts) != 2 || listResp.Data.Hosts[0].Name != "github" {
		t.Errorf("unexpected list: %+v", listResp)
	}

	out.Reset()
	showCmd := newHostShowCommand(&w)
	showCmd.SetArgs([]string{"github"})
	if err := showCmd.Execute(); err != nil {
		t.Fatalf("show command failed: %v", err)
	}
	if strings.Contains(out.String(), `"plaintext"`) {
		t.Errorf("secret leaked: %s", out.String())
	}
	if !strings.Contains(out.String(), "SHA256:+DiY3wvvV6TuJJhbpZisF/zLDA0zPMSvHdkr4UvCOqU") {
		t.Errorf("fingerprint missing: %s", out.String())
	}

	showCmd = newHostShowCommand(&w)
	showCmd.SetArgs([]string{"missing"})
	if err := showCmd.Execute(); err == nil {
		t.Fatal("expected error for missing host")
	}
}

func TestFingerprintCommand(t *testing.T) {
	useConfig(t, "hosts:\n  gh:\n    host: github.com\n    host_keys:\n      - "+githubEd25519+"\n", "gh")
	GlobalConfig.FormatStr = "csv"

	var out bytes.Buffer
	w := output.New(&out, &bytes.Buffer{})
	cmd := NewFingerprintCommand(&w)
	cmd.SetArgs([]string{})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("fingerprint failed: %v", err)
	}
	want := "algorithm,sha256,md5\nssh-ed25519,SHA256:+DiY3wvvV6TuJJhbpZisF/zLDA0zPMSvHdkr4UvCOqU,65:96:2d:fc:e8:d5:a9:11:64:0c:0f:ea:00:6e:5b:bd\n"
	if out.String() != want {
		t.Errorf("got %q\nwant %q", out.String(), want)
	}
}

func TestForward_Validation(t *testing.T) {
	useConfig(t, "hosts:\n  gh:\n    host: github.com\n", "gh")
	w := output.New(&bytes.Buffer{}, &bytes.Buffer{})

	cases := []struct {
		name  string
		flags ForwardFlags
	}{
		{"missing remote", ForwardFlags{}},
		{"remote without port", ForwardFlags{Remote: "db.internal"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := runForward(&tc.flags, &w)
			xe, ok := errors.As(err)
			if !ok || xe.Code != errors.CodeCfgInvalid {
				t.Fatalf("expected CFG_INVALID, got %v", err)
			}
		})
	}
}

func TestExec_RefusesPlaintextPassphrase(t *testing.T) {
	useConfig(t, "hosts:\n  gh:\n    host: github.com\n    passphrase: hunter2\n    host_keys:\n      - "+githubEd25519+"\n", "gh")
	w := output.New(&bytes.Buffer{}, &bytes.Buffer{})

	err := runExec([]string{"uptime"}, &ExecFlags{}, &w)
	xe, ok := errors.As(err)
	if !ok || xe.Code != errors.CodeCfgInvalid {
		t.Fatalf("expected CFG_INVALID, got %v", err)
	}
}

func TestLs_RequiresProfile(t *testing.T) {
	resetGlobalConfig(t)
	GlobalConfig.FormatStr = "json"
	w := output.New(&bytes.Buffer{}, &bytes.Buffer{})
	if err := runLs("", &LsFlags{}, &w); err == nil {
		t.Fatal("expected error without profile")
	}
}

func TestDirListing_ToTableData(t *testing.T) {
	d := &dirListing{Entries: []ssh.FileEntry{{Name: "etc", IsDir: true, Mode: "drwxr-xr-x"}, {Name: "a.txt", Size: 3}}}
	cols, rows, ok := d.ToTableData()
	if !ok || len(cols) != 4 || len(rows) != 2 {
		t.Fatalf("cols=%v rows=%v", cols, rows)
	}
	if rows[0]["name"] != "etc/" || rows[1]["name"] != "a.txt" {
		t.Errorf("names: %v %v", rows[0]["name"], rows[1]["name"])
	}
}

func TestResolveMCPServerOptions_Defaults(t *testing.T) {
	resolved, xe := resolveMCPServerOptions(nil, config.File{})
	if xe != nil {
		t.Fatalf("unexpected error: %v", xe)
	}
	if resolved.transport != "stdio" {
		t.Fatalf("expected stdio transport, got %s", resolved.transport)
	}
	if resolved.httpAddr != "127.0.0.1:8787" {
		t.Fatalf("expected default http addr, got %s", resolved.httpAddr)
	}
}

func TestResolveMCPServerOptions(t *testing.T) {
	cases := []struct {
		name      string
		env       map[string]string
		cfg       config.MCPConfig
		opts      *mcpServerOptions
		wantErr   bool
		transport string
		addr      string
		token     string
	}{
		{
			name:      "env token",
			env:       map[string]string{"SSHPIN_MCP_TRANSPORT": "streamable_http", "SSHPIN_MCP_HTTP_AUTH_TOKEN": "env-token"},
			transport: "streamable_http", addr: "127.0.0.1:8787", token: "env-token",
		},
		{
			name:      "config token",
			cfg:       config.MCPConfig{Transport: "streamable_http", HTTP: config.MCPHTTPConfig{Addr: "127.0.0.1:9999", AuthToken: "config-token", AllowPlaintextToken: true}},
			transport: "streamable_http", addr: "127.0.0.1:9999", token: "config-token",
		},
		{
			name: "cli overrides env and config",
			env:  map[string]string{"SSHPIN_MCP_TRANSPORT": "streamable_http", "SSHPIN_MCP_HTTP_AUTH_TOKEN": "env-token"},
			cfg:  config.MCPConfig{Transport: "streamable_http", HTTP: config.MCPHTTPConfig{Addr: "127.0.0.1:7000", AuthToken: "config-token", AllowPlaintextToken: true}},
			opts: &mcpServerOptions{
				transport: "stdio", transportSet: true,
				httpAddr: "127.0.0.1:6000", httpAddrSet: true,
				httpAuthToken: "cli-token", httpAuthTokenSet: true,
			},
			transport: "stdio", addr: "127.0.0.1:6000", token: "cli-token",
		},
		{name: "invalid transport", cfg: config.MCPConfig{Transport: "bad"}, wantErr: true},
		{name: "missing token", cfg: config.MCPConfig{Transport: "streamable_http"}, wantErr: true},
		{name: "env transport without token", env: map[string]string{"SSHPIN_MCP_TRANSPORT": "streamable_http"}, wantErr: true},
		{
			name:    "plaintext config token not allowed",
			cfg:     config.MCPConfig{Transport: "streamable_http", HTTP: config.MCPHTTPConfig{AuthToken: "config-token"}},
			wantErr: true,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			opts := tc.opts
			if opts == nil {
				opts = &mcpServerOptions{}
			}
			resolved, xe := resolveMCPServerOptions(opts, config.File{MCP: tc.cfg})
			if tc.wantErr {
				if xe == nil || xe.Code != errors.CodeCfgInvalid {
					t.Fatalf("expected CFG_INVALID, got %v", xe)
				}
				return
			}
			if xe != nil {
				t.Fatalf("unexpected error: %v", xe)
			}
			if resolved.transport != tc.transport || resolved.httpAddr != tc.addr || resolved.httpAuthToken != tc.token {
				t.Errorf("got %+v", resolved)
			}
		})
	}
}

func TestResolveMCPServerOptions_Hosts(t *testing.T) {
	cfg := config.File{MCP: config.MCPConfig{Hosts: []string{"from-config"}}}

	resolved, xe := resolveMCPServerOptions(nil, cfg)
	if xe != nil || len(resolved.hosts) != 1 || resolved.hosts[0] != "from-config" {
		t.Fatalf("config hosts: %+v %v", resolved, xe)
	}

	t.Setenv("SSHPIN_MCP_HOSTS", "a,b")
	resolved, _ = resolveMCPServerOptions(nil, cfg)
	if strings.Join(resolved.hosts, ",") != "a,b" {
		t.Errorf("env hosts=%v", resolved.hosts)
	}

	resolved, _ = resolveMCPServerOptions(&mcpServerOptions{hosts: []string{"cli"}, hostsSet: true}, cfg)
	if strings.Join(resolved.hosts, ",") != "cli" {
		t.Errorf("cli hosts=%v", resolved.hosts)
	}
}

func TestExposedHosts(t *testing.T) {
	cfg := config.File{Hosts: map[string]config.Host{
		"gh":     {Host: "github.com", HostKeys: []string{githubEd25519}},
		"nokeys": {Host: "10.0.0.1"},
		"broken": {Host: "broken.example", HostKeys: []string{"ssh-ed25519 AAAA"}},
	}}
	logBuf := &bytes.Buffer{}
	logger := slog.New(slog.NewTextHandler(logBuf, nil))

	all, xe := exposedHosts(cfg, nil, logger)
	if xe != nil {
		t.Fatalf("unexpected error: %v", xe)
	}
	if len(all) != 2 || all["gh"].Host != "github.com" {
		t.Errorf("exposed=%v", all)
	}
	if _, ok := all["broken"]; ok {
		t.Error("host with malformed pinned keys must be excluded")
	}
	if !strings.Contains(logBuf.String(), "host=broken") || !strings.Contains(logBuf.String(), "SSHPIN_KEY_MALFORMED") {
		t.Errorf("log=%s", logBuf.String())
	}

	some, xe := exposedHosts(cfg, []string{" gh ", ""}, logger)
	if xe != nil || len(some) != 1 {
		t.Errorf("subset=%v err=%v", some, xe)
	}

	if _, xe := exposedHosts(cfg, []string{"missing"}, logger); xe == nil || xe.Code != errors.CodeCfgInvalid {
		t.Errorf("expected CFG_INVALID, got %v", xe)
	}
}

func TestMCPServerCommand_ConfigMissing(t *testing.T) {
	resetGlobalConfig(t)
	GlobalConfig.ConfigStr = filepath.Join(t.TempDir(), "missing.yaml")

	cmd := newMCPServerCommand()
	cmd.SetArgs([]string{})
	if err := cmd.Execute(); err == nil {
		t.Fatal("expected error for missing config")
	}
}

func TestVersionCommand_Output(t *testing.T) {
	resetGlobalConfig(t)
	a := app.New("1.0.0", "abc", "2024-01-01")
	var out bytes.Buffer
	w := output.New(&out, &bytes.Buffer{})
	GlobalConfig.FormatStr = "json"

	cmd := NewVersionCommand(&a, &w)
	cmd.SetArgs([]string{})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("version command failed: %v", err)
	}
	var resp struct {
		Data app.VersionInfo `json:"data"`
	}
	if err := json.Unmarshal(out.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Data.Version != "1.0.0" || resp.Data.Commit != "abc" {
		t.Errorf("unexpected version: %+v", resp.Data)
	}
}

func TestSpecCommand_Output(t *testing.T) {
	resetGlobalConfig(t)
	a := app.New("1.0.0", "abc", "2024-01-01")
	var out bytes.Buffer
	w := output.New(&out, &bytes.Buffer{})
	GlobalConfig.FormatStr = "json"

	cmd := NewSpecCommand(&a, &w)
	if !strings.Contains(cmd.Short, "exit-code") {
		t.Errorf("Short=%q", cmd.Short)
	}
	cmd.SetArgs([]string{})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("spec command failed: %v", err)
	}
	var resp struct {
		Data struct {
			ExitCodes []struct {
				Code string `json:"code"`
				Exit int    `json:"exit"`
			} `json:"exit_codes"`
		} `json:"data"`
	}
	if err := json.Unmarshal(out.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	found := false
	for _, ec := range resp.Data.ExitCodes {
		if ec.Code == string(errors.CodeHostKeyUnknown) && ec.Exit == int(errors.ExitHostKeyRejected) {
			found = true
		}
	}
	if !found {
		t.Errorf("exit_codes=%v", resp.Data.ExitCodes)
	}
}
