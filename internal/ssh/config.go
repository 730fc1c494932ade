package ssh

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/zx06/sshpin/internal/hostkey"
)

// DiscardKnownHosts 是 known_hosts 的丢弃目标：读为空，写入即丢弃。
const DiscardKnownHosts = os.DevNull

// DefaultTimeout 用于未配置 Timeout 的连接，覆盖拨号与整个握手。
const DefaultTimeout = 30 * time.Second

const (
	AuthPublicKey           = "publickey"
	AuthAgent               = "agent"
	AuthPassword            = "password"
	AuthKeyboardInteractive = "keyboard-interactive"
)

// Posture 对应 OpenSSH 的 StrictHostKeyChecking。
type Posture string

const (
	// PostureAcceptAny 接受任何 key（"no"）。
	PostureAcceptAny Posture = "no"
	// PostureAcceptNew 接受未知主机并学习其 key（"accept-new"）。
	PostureAcceptNew Posture = "accept-new"
	// PostureStrict 只接受已知 key（"yes"）。Connect 只接受这一种。
	PostureStrict Posture = "yes"
)

// ParsePosture 解析 strict_host_key_checking 配置值；空值视为 "no"（ssh 客户端的宽松默认）。
func ParsePosture(s string) (Posture, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "no", "off", "false":
		return PostureAcceptAny, nil
	case "accept-new":
		return PostureAcceptNew, nil
	case "yes", "strict", "true", "secure":
		return PostureStrict, nil
	default:
		return "", fmt.Errorf("invalid strict_host_key_checking %q (want yes|accept-new|no)", s)
	}
}

// Config 包含一次 SSH 连接所需的全部参数。
// 由 config 层从 profile 解析得到，经 BuildSecureConfig 收紧后交给 Connect / Probe。
type Config struct {
	Host string
	Port int
	User string

	// HostKeyAlias 非空时代替 Host 参与 host key 校验（OpenSSH HostKeyAlias）。
	HostKeyAlias string

	IdentityFile string // 私钥路径
	Passphrase   string // 私钥 passphrase（若有）
	AuthMethods  []string
	Password     string

	GlobalKnownHostsFiles []string
	UserKnownHostsFiles   []string
	Posture               Posture

	Timeout time.Duration

	Verifier *hostkey.Verifier
	Logger   *slog.Logger
}

// VerifyHost 返回参与 host key 校验的主机名。
func (c Config) VerifyHost() string {
	if c.HostKeyAlias != "" {
		return c.HostKeyAlias
	}
	return c.Host
}

func (c Config) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.New(slog.DiscardHandler)
}

func (c Config) hasAuthMethod(name string) bool {
	for _, m := range c.AuthMethods {
		if strings.EqualFold(strings.TrimSpace(m), name) {
			return true
		}
	}
	return false
}

func DefaultKnownHostsPath() string {
	return "~/.ssh/known_hosts"
}

func expandPath(p string) string {
	if strings.HasPrefix(p, "~/") {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, p[2:])
	}
	return p
}
