package ssh

import (
	"context"
	stderrors "errors"
	"log/slog"
	"net"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"

	"github.com/zx06/sshpin/internal/errors"
	"github.com/zx06/sshpin/internal/hostkey"
)

// Client 包装经过 host key 校验的 ssh.Client。
type Client struct {
	client  *ssh.Client
	verdict hostkey.Verdict
	logger  *slog.Logger
}

// Connect 建立经过 pinned host key 校验并完成认证的 SSH 连接。
// 配置必须带有 Verifier 且为 PostureStrict，否则不拨号，直接返回 SSHPIN_POLICY_VIOLATION。
func Connect(ctx context.Context, cfg Config) (*Client, *errors.XError) {
	cfg, xe := normalize(cfg)
	if xe != nil {
		return nil, xe
	}
	if xe := checkPolicy(cfg); xe != nil {
		return nil, xe
	}

	auth, cleanup, xe := buildAuthMethods(cfg)
	if xe != nil {
		return nil, xe
	}
	defer cleanup()

	client, verdict, xe := handshake(ctx, cfg, auth)
	if xe != nil {
		return nil, xe
	}
	return &Client{client: client, verdict: verdict, logger: cfg.logger()}, nil
}

// Probe 只做握手：不提供任何凭据，返回服务端 host key 的 verdict。
// 认证失败是预期结果，不视为错误；被拒绝时同时返回 verdict 与 SSHPIN_HOSTKEY_* 错误。
func Probe(ctx context.Context, cfg Config) (hostkey.Verdict, *errors.XError) {
	cfg, xe := normalize(cfg)
	if xe != nil {
		return hostkey.Verdict{}, xe
	}
	if xe := checkPolicy(cfg); xe != nil {
		return hostkey.Verdict{}, xe
	}

	client, verdict, xe := handshake(ctx, cfg, nil)
	if client != nil {
		_ = client.Close()
	}
	if xe != nil && errors.HasCode(xe, errors.CodeSSHAuthFailed) && verdict.Accepted() {
		return verdict, nil
	}
	return verdict, xe
}

func normalize(cfg Config) (Config, *errors.XError) {
	if cfg.Host == "" {
		return cfg, errors.New(errors.CodeCfgInvalid, "ssh host is required", nil)
	}
	if cfg.Port == 0 {
		cfg.Port = 22
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Port < 0 || cfg.Port > 65535 {
		return cfg, errors.New(errors.CodeCfgInvalid, "ssh port out of range", map[string]any{"port": cfg.Port})
	}
	if cfg.User == "" {
		cfg.User = os.Getenv("USER")
		if cfg.User == "" {
			cfg.User = os.Getenv("USERNAME")
		}
	}
	return cfg, nil
}

// verdictRecorder 记录握手期间 Verifier 给出的 verdict（回调在 x/crypto 的握手 goroutine 中执行）。
type verdictRecorder struct {
	mu      sync.Mutex
	seen    bool
	verdict hostkey.Verdict
	err     error
}

func (r *verdictRecorder) observe(v hostkey.Verdict, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen, r.verdict, r.err = true, v, err
}

func (r *verdictRecorder) result() (bool, hostkey.Verdict, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.seen, r.verdict, r.err
}

func handshake(ctx context.Context, cfg Config, auth []ssh.AuthMethod) (*ssh.Client, hostkey.Verdict, *errors.XError) {
	if ctx == nil {
		ctx = context.Background()
	}
	log := cfg.logger()
	port := strconv.Itoa(cfg.Port)
	dialAddr := net.JoinHostPort(cfg.Host, port)
	verifyAddr := net.JoinHostPort(cfg.VerifyHost(), port)

	rec := &verdictRecorder{}
	verifier := cfg.Verifier.WithObserver(func(v hostkey.Verdict, err error) {
		rec.observe(v, err)
		logVerdict(log, v, err)
	})

	clientCfg := &ssh.ClientConfig{
		User:              cfg.User,
		Auth:              auth,
		HostKeyCallback:   verifier.HostKeyCallback(),
		HostKeyAlgorithms: cfg.Verifier.HostKeyAlgorithms(verifyAddr),
		Timeout:           cfg.Timeout,
	}

	details := map[string]any{"host": cfg.Host, "port": cfg.Port}
	log.Debug("dialing ssh server", "addr", dialAddr, "verify_as", cfg.VerifyHost())

	d := net.Dialer{Timeout: cfg.Timeout}
	conn, err := d.DialContext(ctx, "tcp", dialAddr)
	if err != nil {
		return nil, hostkey.Verdict{}, errors.Wrap(errors.CodeSSHDialFailed, "failed to connect to ssh server", details, err)
	}
	// Dialer 的超时只覆盖 TCP 建连；版本交换、kex 与认证同样受 cfg.Timeout 约束。
	_ = conn.SetDeadline(time.Now().Add(cfg.Timeout))
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	sshConn, chans, reqs, err := ssh.NewClientConn(conn, verifyAddr, clientCfg)
	stop()

	seen, verdict, verr := rec.result()
	if err != nil {
		_ = conn.Close()
		details["timeout"] = cfg.Timeout.String()
		return nil, verdict, classifyHandshakeError(ctx, err, seen, verdict, verr, details)
	}
	_ = conn.SetDeadline(time.Time{})
	return ssh.NewClient(sshConn, chans, reqs), verdict, nil
}

func classifyHandshakeError(ctx context.Context, err error, seen bool, verdict hostkey.Verdict, verr error, details map[string]any) *errors.XError {
	switch {
	case seen && verr != nil:
		return errors.Wrap(errors.CodeVerifierFailed, "host key verifier failed", details, verr)
	case seen && !verdict.Accepted():
		d := verdict.Details()
		d["port"] = details["port"]
		code := errors.CodeHostKeyMismatch
		msg := "host key does not match any pinned key"
		if verdict.Outcome == hostkey.RejectedUnknownHost {
			code = errors.CodeHostKeyUnknown
			msg = "no pinned host key for this host"
		}
		return errors.Wrap(code, msg, d, verdict.Err())
	case ctx.Err() != nil:
		return errors.Wrap(errors.CodeSSHDialFailed, "ssh handshake cancelled", details, ctx.Err())
	case isTimeout(err):
		return errors.Wrap(errors.CodeSSHDialFailed, "ssh handshake timed out", details, err)
	case isAuthError(err):
		return errors.Wrap(errors.CodeSSHAuthFailed, "ssh authentication failed", details, err)
	default:
		var ve *hostkey.VerificationError
		if stderrors.As(err, &ve) {
			return errors.Wrap(errors.CodeVerifierFailed, "host key verifier failed", details, err)
		}
		return errors.Wrap(errors.CodeSSHDialFailed, "ssh handshake failed", details, err)
	}
}

func isTimeout(err error) bool {
	var ne net.Error
	return stderrors.As(err, &ne) && ne.Timeout()
}

func isAuthError(err error) bool {
	return strings.Contains(err.Error(), "unable to authenticate")
}

func logVerdict(log *slog.Logger, v hostkey.Verdict, err error) {
	if err != nil {
		log.Error("host key verification failed", "error", err)
		return
	}
	attrs := []any{
		"host", v.Identity.Primary(),
		"identity", string(v.Identity),
		"fingerprint", v.Fingerprint(),
		"outcome", v.Outcome.String(),
	}
	if v.Accepted() {
		log.Info("host key accepted", attrs...)
		return
	}
	if v.Outcome == hostkey.RejectedMismatch {
		attrs = append(attrs, "expected", v.ExpectedFingerprints())
	}
	log.Warn("host key rejected", attrs...)
}

var defaultIdentityFiles = []string{"id_ed25519", "id_rsa", "id_ecdsa"}

// buildAuthMethods 按 AuthMethods 顺序构造认证方式；未指定时只用 publickey。
// 返回的 cleanup 在握手结束后释放 agent 连接。
func buildAuthMethods(cfg Config) ([]ssh.AuthMethod, func(), *errors.XError) {
	var methods []ssh.AuthMethod
	var closers []func()
	cleanup := func() {
		for _, c := range closers {
			c()
		}
	}

	names := cfg.AuthMethods
	if len(names) == 0 {
		names = []string{AuthPublicKey}
	}
	for _, name := range names {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case AuthPublicKey:
			m, xe := publicKeyAuth(cfg)
			if xe != nil {
				cleanup()
				return nil, func() {}, xe
			}
			if m != nil {
				methods = append(methods, m)
			}
		case AuthAgent:
			sock := os.Getenv("SSH_AUTH_SOCK")
			if sock == "" {
				continue
			}
			conn, err := net.Dial("unix", sock)
			if err != nil {
				cfg.logger().Debug("ssh agent unavailable", "error", err)
				continue
			}
			closers = append(closers, func() { _ = conn.Close() })
			methods = append(methods, ssh.PublicKeysCallback(agent.NewClient(conn).Signers))
		case AuthPassword, AuthKeyboardInteractive:
			cleanup()
			return nil, func() {}, errors.New(errors.CodePolicyViolation, "password authentication is not allowed", nil)
		default:
			cleanup()
			return nil, func() {}, errors.New(errors.CodeCfgInvalid, "unsupported ssh auth method",
				map[string]any{"method": name, "supported": []string{AuthPublicKey, AuthAgent}})
		}
	}

	if len(methods) == 0 {
		cleanup()
		return nil, func() {}, errors.New(errors.CodeSSHAuthFailed, "no ssh authentication method available", nil)
	}
	return methods, cleanup, nil
}

func publicKeyAuth(cfg Config) (ssh.AuthMethod, *errors.XError) {
	if cfg.IdentityFile != "" {
		keyPath := expandPath(cfg.IdentityFile)
		keyData, err := os.ReadFile(keyPath)
		if err != nil {
			return nil, errors.Wrap(errors.CodeCfgInvalid, "failed to read ssh identity file", map[string]any{"path": keyPath}, err)
		}
		var signer ssh.Signer
		if cfg.Passphrase != "" {
			signer, err = ssh.ParsePrivateKeyWithPassphrase(keyData, []byte(cfg.Passphrase))
		} else {
			signer, err = ssh.ParsePrivateKey(keyData)
		}
		if err != nil {
			return nil, errors.Wrap(errors.CodeSSHAuthFailed, "failed to parse ssh private key", map[string]any{"path": keyPath}, err)
		}
		return ssh.PublicKeys(signer), nil
	}

	// 尝试默认私钥路径
	for _, name := range defaultIdentityFiles {
		keyPath := expandPath("~/.ssh/" + name)
		if keyData, err := os.ReadFile(keyPath); err == nil {
			if signer, err := ssh.ParsePrivateKey(keyData); err == nil {
				return ssh.PublicKeys(signer), nil
			}
		}
	}
	return nil, nil
}
