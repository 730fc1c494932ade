package hostkey

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/ssh"
)

// Observer 在每次 Verify 结束后被调用；err 非空时 verdict 为零值。
type Observer func(Verdict, error)

// Verifier 根据 KeySource 对传输层给出的 host key 做出 verdict。
// Verify 是纯计算：不做 I/O、不阻塞、不联网，可被并发调用。
type Verifier struct {
	source   KeySource
	observer Observer
}

func NewVerifier(source KeySource) *Verifier {
	return &Verifier{source: source}
}

// WithObserver 返回带 observer 的副本，原 Verifier 不变。
func (v *Verifier) WithObserver(fn Observer) *Verifier {
	return &Verifier{source: v.source, observer: fn}
}

// Verify 校验 offered 是否属于 identity 的 pinned keys。
//
//   - identity 取第一个逗号分隔的 token，与来源绑定身份精确比较；不符为 RejectedUnknownHost
//   - 身份相符但没有任何 key，同样是 RejectedUnknownHost
//   - key 存在为 Accepted，否则为 RejectedMismatch（附带完整的期望集合）
//
// 来源返回的其它错误或 panic 以 *VerificationError 返回，不会被当作拒绝。
func (v *Verifier) Verify(identity HostIdentity, offered ssh.PublicKey) (Verdict, error) {
	verdict, err := v.decide(identity, offered)
	if v != nil && v.observer != nil {
		v.observer(verdict, err)
	}
	return verdict, err
}

func (v *Verifier) decide(identity HostIdentity, offered ssh.PublicKey) (verdict Verdict, err error) {
	defer func() {
		if r := recover(); r != nil {
			verdict = Verdict{}
			err = &VerificationError{Identity: identity, Err: fmt.Errorf("key source panicked: %v", r)}
		}
	}()

	if v == nil || v.source == nil {
		return Verdict{}, &VerificationError{Identity: identity, Err: errNoSource}
	}
	primary := identity.Primary()
	if primary == "" {
		return Verdict{}, &VerificationError{Identity: identity, Err: ErrEmptyIdentity}
	}
	if offered == nil {
		return Verdict{}, &VerificationError{Identity: identity, Err: errNilKey}
	}

	verdict = Verdict{Identity: identity, Bound: boundIdentity(v.source), Presented: offered}
	keys, err := v.source.Lookup(HostIdentity(primary))
	switch {
	case errors.Is(err, ErrHostNotFound):
		verdict.Outcome = RejectedUnknownHost
	case err != nil:
		return Verdict{}, &VerificationError{Identity: identity, Err: err}
	case len(keys) == 0:
		verdict.Outcome = RejectedUnknownHost
	case containsKey(keys, offered):
		verdict.Outcome = Accepted
	default:
		verdict.Outcome = RejectedMismatch
		verdict.Expected = keys
	}
	return verdict, nil
}

// VerifyAny 依次校验多个 offered key：首个匹配即 Accepted，全部用尽后才拒绝。
// 身份不符时第一次调用就会返回 RejectedUnknownHost。
func (v *Verifier) VerifyAny(identity HostIdentity, offered ...ssh.PublicKey) (Verdict, error) {
	if len(offered) == 0 {
		return Verdict{}, &VerificationError{Identity: identity, Err: errNoOffered}
	}
	var last Verdict
	for _, key := range offered {
		verdict, err := v.Verify(identity, key)
		if err != nil {
			return Verdict{}, err
		}
		if verdict.Outcome != RejectedMismatch {
			return verdict, nil
		}
		last = verdict
	}
	return last, nil
}

func boundIdentity(source KeySource) string {
	if b, ok := source.(interface{ Identity() string }); ok {
		return b.Identity()
	}
	return ""
}
