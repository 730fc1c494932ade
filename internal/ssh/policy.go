package ssh

import (
	stderrors "errors"
	"slices"
	"strings"

	"github.com/zx06/sshpin/internal/errors"
	"github.com/zx06/sshpin/internal/hostkey"
)

// BuildSecureConfig 以 base 为起点构造一份只信任 knownGoodKeys 的连接配置：
// 去掉 password 认证，把 known_hosts 文件指向 DiscardKnownHosts，
// 强制 PostureStrict，并安装绑定到 hostIdentity 的 Verifier。
//
// base 不会被修改。任一 key 无法解析时返回 SSHPIN_KEY_MALFORMED，不会得到可用配置。
func BuildSecureConfig(base Config, hostIdentity string, knownGoodKeys []hostkey.KeyEntry) (Config, *errors.XError) {
	cfg := cloneConfig(base)
	stripPasswordAuth(&cfg)
	redirectKnownHosts(&cfg)
	tightenPosture(&cfg)
	if xe := installVerifier(&cfg, hostIdentity, knownGoodKeys); xe != nil {
		return Config{}, xe
	}
	return cfg, nil
}

func cloneConfig(c Config) Config {
	c.AuthMethods = slices.Clone(c.AuthMethods)
	c.GlobalKnownHostsFiles = slices.Clone(c.GlobalKnownHostsFiles)
	c.UserKnownHostsFiles = slices.Clone(c.UserKnownHostsFiles)
	return c
}

func stripPasswordAuth(c *Config) {
	c.AuthMethods = slices.DeleteFunc(c.AuthMethods, func(m string) bool {
		return isPasswordMethod(m)
	})
	c.Password = ""
}

// keyboard-interactive 在实践中就是口令提示，与 password 同等对待。
func isPasswordMethod(m string) bool {
	m = strings.TrimSpace(m)
	return strings.EqualFold(m, AuthPassword) || strings.EqualFold(m, AuthKeyboardInteractive)
}

func redirectKnownHosts(c *Config) {
	c.GlobalKnownHostsFiles = []string{DiscardKnownHosts}
	c.UserKnownHostsFiles = []string{DiscardKnownHosts}
}

func tightenPosture(c *Config) {
	c.Posture = PostureStrict
}

func installVerifier(c *Config, hostIdentity string, keys []hostkey.KeyEntry) *errors.XError {
	ks, err := hostkey.NewKeySet(hostIdentity, keys)
	if err != nil {
		var mk *hostkey.MalformedKeyError
		if stderrors.As(err, &mk) {
			return errors.Wrap(errors.CodeKeyMalformed, "pinned host key is malformed",
				map[string]any{"host": hostIdentity, "index": mk.Index, "algorithm": mk.Entry.Algorithm}, err)
		}
		return errors.Wrap(errors.CodeCfgInvalid, "invalid host identity", map[string]any{"host": hostIdentity}, err)
	}
	c.Verifier = hostkey.NewVerifier(ks)
	return nil
}

// checkPolicy 拒绝任何未经 BuildSecureConfig 收紧的配置。
func checkPolicy(c Config) *errors.XError {
	switch {
	case c.Verifier == nil:
		return errors.New(errors.CodePolicyViolation, "refusing to connect without a pinned host key verifier", map[string]any{"host": c.Host})
	case c.Posture != PostureStrict:
		return errors.New(errors.CodePolicyViolation, "refusing to connect with a non-strict host key posture",
			map[string]any{"host": c.Host, "posture": string(c.Posture)})
	case c.hasAuthMethod(AuthPassword) || c.hasAuthMethod(AuthKeyboardInteractive) || c.Password != "":
		return errors.New(errors.CodePolicyViolation, "password authentication is not allowed", map[string]any{"host": c.Host})
	}
	return nil
}
