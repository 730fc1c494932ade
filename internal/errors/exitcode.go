package errors

// ExitCode 是进程退出码（稳定契约）。
type ExitCode int

const (
	ExitOK ExitCode = 0

	// 2: 参数/配置错误（含无法解析的 host key、策略违规）
	ExitConfig ExitCode = 2

	// 3: SSH 连接/认证错误
	ExitConnect ExitCode = 3

	// 4: host key 被拒绝（未知主机或 key 不匹配）
	ExitHostKeyRejected ExitCode = 4

	// 5: 远端命令 / sftp 执行错误
	ExitRemote ExitCode = 5

	// 10: 内部错误（含 verifier 自身故障）
	ExitInternal ExitCode = 10
)

func ExitCodeFor(code Code) ExitCode {
	switch code {
	case CodeCfgNotFound, CodeCfgInvalid, CodeSecretNotFound,
		CodeKeyMalformed, CodePolicyViolation:
		return ExitConfig
	case CodeSSHAuthFailed, CodeSSHDialFailed:
		return ExitConnect
	case CodeHostKeyUnknown, CodeHostKeyMismatch:
		return ExitHostKeyRejected
	case CodeRemoteExecFailed:
		return ExitRemote
	case CodeVerifierFailed, CodeInternal:
		fallthrough
	default:
		return ExitInternal
	}
}
