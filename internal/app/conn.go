package app

import (
	"context"
	stderrors "errors"
	"log/slog"
	"strings"

	"github.com/zx06/sshpin/internal/config"
	"github.com/zx06/sshpin/internal/errors"
	"github.com/zx06/sshpin/internal/hostkey"
	"github.com/zx06/sshpin/internal/secret"
	"github.com/zx06/sshpin/internal/ssh"
)

// globalKnownHosts 是 ssh 客户端默认读取的系统 known_hosts；连接前同样会被重定向。
const globalKnownHosts = "/etc/ssh/ssh_known_hosts"

type Connection struct {
	Name   string
	Host   config.Host
	Client *ssh.Client
}

func (c *Connection) Close() error {
	if c == nil || c.Client == nil {
		return nil
	}
	return c.Client.Close()
}

type ConnectionOptions struct {
	Name           string
	Host           config.Host
	AllowPlaintext bool
	Logger         *slog.Logger
	Keyring        secret.KeyringAPI // nil 则使用系统 keyring
}

// BuildConfig 把 host profile 转换为收紧后的 ssh.Config。
func BuildConfig(opts ConnectionOptions) (ssh.Config, *errors.XError) {
	return buildConfig(opts, true)
}

func buildConfig(opts ConnectionOptions, withSecrets bool) (ssh.Config, *errors.XError) {
	h := opts.Host
	if strings.TrimSpace(h.Host) == "" {
		return ssh.Config{}, errors.New(errors.CodeCfgInvalid, "host is required", map[string]any{"name": opts.Name})
	}

	entries, err := hostkey.ParseKeyEntries(h.HostKeys)
	if err != nil {
		var mk *hostkey.MalformedKeyError
		if stderrors.As(err, &mk) {
			return ssh.Config{}, errors.Wrap(errors.CodeKeyMalformed, "pinned host key is malformed",
				map[string]any{"name": opts.Name, "index": mk.Index}, err)
		}
		return ssh.Config{}, errors.Wrap(errors.CodeKeyMalformed, "pinned host key is malformed", map[string]any{"name": opts.Name}, err)
	}

	posture, err := ssh.ParsePosture(h.StrictHostKeyChecking)
	if err != nil {
		return ssh.Config{}, errors.Wrap(errors.CodeCfgInvalid, "invalid strict_host_key_checking",
			map[string]any{"name": opts.Name, "value": h.StrictHostKeyChecking}, err)
	}

	knownHosts := h.KnownHostsFile
	if knownHosts == "" {
		knownHosts = ssh.DefaultKnownHostsPath()
	}

	base := ssh.Config{
		Host:                  h.Host,
		Port:                  h.Port,
		User:                  h.User,
		HostKeyAlias:          h.HostKeyAlias,
		IdentityFile:          h.IdentityFile,
		AuthMethods:           h.AuthMethods,
		GlobalKnownHostsFiles: []string{globalKnownHosts},
		UserKnownHostsFiles:   []string{knownHosts},
		Posture:               posture,
		Timeout:               h.Timeout,
		Logger:                opts.Logger,
	}
	if withSecrets && h.Passphrase != "" {
		pp, xe := secret.Resolve(h.Passphrase, secret.Options{
			AllowPlaintext: opts.AllowPlaintext || h.AllowPlaintext,
			Keyring:        opts.Keyring,
		})
		if xe != nil {
			return ssh.Config{}, xe
		}
		base.Passphrase = pp
	}

	if posture != ssh.PostureStrict {
		logger(opts).Debug("tightening host key posture", "name", opts.Name, "from", string(posture))
	}
	return ssh.BuildSecureConfig(base, h.VerifyName(), entries)
}

// ResolveConnection 建立经过 pinned host key 校验并完成认证的连接。
func ResolveConnection(ctx context.Context, opts ConnectionOptions) (*Connection, *errors.XError) {
	cfg, xe := BuildConfig(opts)
	if xe != nil {
		return nil, xe
	}
	client, xe := ssh.Connect(ctx, cfg)
	if xe != nil {
		return nil, xe
	}
	return &Connection{Name: opts.Name, Host: opts.Host, Client: client}, nil
}

// CheckResult 是一次 host key 探测的结果。
type CheckResult struct {
	Name                 string   `json:"name" yaml:"name"`
	Host                 string   `json:"host" yaml:"host"`
	Port                 int      `json:"port" yaml:"port"`
	Identity             string   `json:"identity" yaml:"identity"`
	Outcome              string   `json:"outcome" yaml:"outcome"`
	Accepted             bool     `json:"accepted" yaml:"accepted"`
	Algorithm            string   `json:"algorithm,omitempty" yaml:"algorithm,omitempty"`
	Fingerprint          string   `json:"fingerprint,omitempty" yaml:"fingerprint,omitempty"`
	ExpectedFingerprints []string `json:"expected_fingerprints,omitempty" yaml:"expected_fingerprints,omitempty"`
}

func (r *CheckResult) ToTableData() ([]string, []map[string]any, bool) {
	cols := []string{"name", "host", "port", "outcome", "algorithm", "fingerprint"}
	row := map[string]any{
		"name":        r.Name,
		"host":        r.Host,
		"port":        r.Port,
		"outcome":     r.Outcome,
		"algorithm":   r.Algorithm,
		"fingerprint": r.Fingerprint,
	}
	return cols, []map[string]any{row}, true
}

// ProbeHost 只做握手并返回 host key verdict，不解析也不发送任何凭据。
// host key 被拒绝时同时返回结果与 SSHPIN_HOSTKEY_* 错误。
func ProbeHost(ctx context.Context, opts ConnectionOptions) (*CheckResult, *errors.XError) {
	cfg, xe := buildConfig(opts, false)
	if xe != nil {
		return nil, xe
	}
	verdict, xe := ssh.Probe(ctx, cfg)
	if verdict.Outcome == 0 {
		return nil, xe
	}

	port := opts.Host.Port
	if port == 0 {
		port = 22
	}
	res := &CheckResult{
		Name:        opts.Name,
		Host:        opts.Host.Host,
		Port:        port,
		Identity:    verdict.Identity.Primary(),
		Outcome:     verdict.Outcome.String(),
		Accepted:    verdict.Accepted(),
		Fingerprint: verdict.Fingerprint(),
	}
	if verdict.Presented != nil {
		res.Algorithm = verdict.Presented.Type()
	}
	if verdict.Outcome == hostkey.RejectedMismatch {
		res.ExpectedFingerprints = verdict.ExpectedFingerprints()
	}
	if xe != nil && errors.IsHostKeyRejection(xe) {
		xe = xe.WithDetail("profile", opts.Name)
	}
	return res, xe
}

func logger(opts ConnectionOptions) *slog.Logger {
	if opts.Logger != nil {
		return opts.Logger
	}
	return slog.New(slog.DiscardHandler)
}
