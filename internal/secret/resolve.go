package secret

import (
	"fmt"
	"strings"

	"github.com/zx06/sshpin/internal/errors"
)

const keyringPrefix = "keyring:"

// Options 控制 secret 解析行为。
type Options struct {
	AllowPlaintext bool       // 是否允许明文（默认 false）
	Keyring        KeyringAPI // 可注入的 keyring 实现（nil 则用默认）
}

// Resolve 解析 passphrase / token 等 secret 值：
//  1. keyring:<account> → 从 keyring（service=sshpin）读取
//  2. 否则若允许明文 → 直接返回
//  3. 否则报错
//
// 不做 TTY 交互输入。
func Resolve(raw string, opts Options) (string, *errors.XError) {
	if IsKeyringRef(raw) {
		service, account, err := parseKeyringRef(strings.TrimPrefix(raw, keyringPrefix))
		if err != nil {
			return "", errors.Wrap(errors.CodeCfgInvalid, "invalid keyring reference", map[string]any{"ref": raw}, err)
		}
		kr := opts.Keyring
		if kr == nil {
			kr = defaultKeyring()
		}
		val, err := kr.Get(service, account)
		if err != nil {
			return "", errors.Wrap(errors.CodeSecretNotFound, "failed to read secret from keyring",
				map[string]any{"service": service, "account": account}, err)
		}
		return val, nil
	}
	if opts.AllowPlaintext {
		return raw, nil
	}
	return "", errors.New(errors.CodeCfgInvalid, "plaintext secret not allowed; use keyring: reference or enable --allow-plaintext", nil)
}

// IsKeyringRef 判断值是否为 keyring 引用。
func IsKeyringRef(s string) bool {
	return strings.HasPrefix(s, keyringPrefix)
}

// Redact 返回可安全输出的 secret 表示：keyring 引用原样保留，明文替换为 "***"。
func Redact(s string) string {
	if s == "" || IsKeyringRef(s) {
		return s
	}
	return "***"
}

// parseKeyringRef 把 "github/passphrase" 映射为 (sshpin, github/passphrase)。
func parseKeyringRef(ref string) (service, account string, err error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", "", fmt.Errorf("empty keyring account")
	}
	return ServiceName, ref, nil
}
