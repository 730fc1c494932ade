package hostkey

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/ssh/knownhosts"
)

var (
	// ErrHostNotFound 表示 KeySource 不认识该主机身份。
	ErrHostNotFound = errors.New("hostkey: host not found")

	// ErrEmptyIdentity 表示主机身份为空。
	ErrEmptyIdentity = errors.New("hostkey: empty host identity")

	errNilKey    = errors.New("hostkey: offered key is nil")
	errNoSource  = errors.New("hostkey: verifier has no key source")
	errNoOffered = errors.New("hostkey: no keys offered")
)

// MalformedKeyError 表示构造 KeySet 时某条 key 编码无法解析。
// 构造是全有或全无的：返回该错误时不会得到部分填充的 KeySet。
type MalformedKeyError struct {
	Index int
	Entry KeyEntry
	Err   error
}

func (e *MalformedKeyError) Error() string {
	alg := e.Entry.Algorithm
	if alg == "" {
		alg = "<empty>"
	}
	return fmt.Sprintf("hostkey: malformed key entry #%d (%s): %v", e.Index, alg, e.Err)
}

func (e *MalformedKeyError) Unwrap() error { return e.Err }

// PolicyViolationError 表示有代码路径试图在运行时向 pinned KeySet 添加 key。
type PolicyViolationError struct {
	Identity    HostIdentity
	Fingerprint string
}

func (e *PolicyViolationError) Error() string {
	return fmt.Sprintf("hostkey: refusing to add key %s for %q: pinned key sets are immutable", e.Fingerprint, e.Identity)
}

// VerificationError 表示 verifier 自身出错（配置或编程缺陷），
// 与正常的拒绝 verdict 区分开。
type VerificationError struct {
	Identity HostIdentity
	Err      error
}

func (e *VerificationError) Error() string {
	return fmt.Sprintf("hostkey: verification of %q failed: %v", e.Identity, e.Err)
}

func (e *VerificationError) Unwrap() error { return e.Err }

// RejectionError 是被拒绝的 Verdict 在 ssh.HostKeyCallback 边界上的错误形式。
//
// Unwrap 返回 *knownhosts.KeyError，语义与 x/crypto 的 known_hosts 校验一致：
// Want 为空表示未知主机，非空表示 key 不匹配（Want 为 pinned keys）。
type RejectionError struct {
	Verdict Verdict
}

func (e *RejectionError) Error() string { return e.Verdict.String() }

func (e *RejectionError) Unwrap() error {
	ke := &knownhosts.KeyError{}
	if e.Verdict.Outcome == RejectedMismatch {
		for i, k := range e.Verdict.Expected {
			ke.Want = append(ke.Want, knownhosts.KnownKey{Key: k, Filename: "pinned", Line: i + 1})
		}
	}
	return ke
}
