package hostkey

import (
	"fmt"
	"strings"

	"golang.org/x/crypto/ssh"
)

// Outcome 是一次校验的结果种类（封闭集合）。
type Outcome int

const (
	Accepted Outcome = iota + 1
	RejectedMismatch
	RejectedUnknownHost
)

func (o Outcome) String() string {
	switch o {
	case Accepted:
		return "accepted"
	case RejectedMismatch:
		return "rejected_mismatch"
	case RejectedUnknownHost:
		return "rejected_unknown_host"
	default:
		return "invalid"
	}
}

// Verdict 是一次 Verify 调用的结果。每次连接尝试都新生成，不缓存、不持久化。
type Verdict struct {
	Outcome Outcome

	// Identity 是传输层给出的原始身份，可能为 "host,ip"。
	Identity HostIdentity

	// Bound 是 key 来源绑定的身份（来源不暴露时为空）。
	Bound string

	Presented ssh.PublicKey

	// Expected 仅在 RejectedMismatch 时填充，为完整的 pinned key 集合。
	Expected []ssh.PublicKey
}

func (v Verdict) Accepted() bool { return v.Outcome == Accepted }

// Err 在被拒绝时返回 *RejectionError，接受时返回 nil。
func (v Verdict) Err() error {
	if v.Accepted() {
		return nil
	}
	return &RejectionError{Verdict: v}
}

func (v Verdict) Fingerprint() string {
	if v.Presented == nil {
		return ""
	}
	return Fingerprint(v.Presented)
}

func (v Verdict) ExpectedFingerprints() []string {
	fps := make([]string, 0, len(v.Expected))
	for _, k := range v.Expected {
		fps = append(fps, Fingerprint(k))
	}
	return fps
}

// Details 返回供审计日志与结构化输出使用的字段。
func (v Verdict) Details() map[string]any {
	d := map[string]any{
		"outcome":  v.Outcome.String(),
		"host":     v.Identity.Primary(),
		"identity": string(v.Identity),
	}
	if aliases := v.Identity.Aliases(); len(aliases) > 0 {
		d["aliases"] = aliases
	}
	if v.Bound != "" {
		d["bound_identity"] = v.Bound
	}
	if v.Presented != nil {
		d["algorithm"] = v.Presented.Type()
		d["fingerprint"] = v.Fingerprint()
	}
	if v.Outcome == RejectedMismatch {
		d["expected_fingerprints"] = v.ExpectedFingerprints()
	}
	return d
}

func (v Verdict) String() string {
	host := v.Identity.Primary()
	switch v.Outcome {
	case Accepted:
		return fmt.Sprintf("host key %s accepted for %s", v.Fingerprint(), host)
	case RejectedMismatch:
		return fmt.Sprintf("host key mismatch for %s: presented %s, expected one of [%s]",
			host, v.Fingerprint(), strings.Join(v.ExpectedFingerprints(), ", "))
	case RejectedUnknownHost:
		if v.Bound != "" && v.Bound != host {
			return fmt.Sprintf("unknown host %s: verifier is bound to %s", host, v.Bound)
		}
		return fmt.Sprintf("unknown host %s: no pinned keys", host)
	default:
		return "invalid verdict"
	}
}
