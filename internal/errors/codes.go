package errors

// Code 是稳定错误码（字符串），供 AI/agent 与程序判断。
// 只增不改、不复用旧含义。
type Code string

const (
	// Config / args
	CodeCfgNotFound    Code = "SSHPIN_CFG_NOT_FOUND"
	CodeCfgInvalid     Code = "SSHPIN_CFG_INVALID"
	CodeSecretNotFound Code = "SSHPIN_SECRET_NOT_FOUND"

	// Host key policy
	CodeKeyMalformed    Code = "SSHPIN_KEY_MALFORMED"
	CodePolicyViolation Code = "SSHPIN_POLICY_VIOLATION"
	CodeHostKeyUnknown  Code = "SSHPIN_HOSTKEY_UNKNOWN"
	CodeHostKeyMismatch Code = "SSHPIN_HOSTKEY_MISMATCH"
	CodeVerifierFailed  Code = "SSHPIN_VERIFIER_FAILED"

	// SSH transport
	CodeSSHAuthFailed Code = "SSHPIN_SSH_AUTH_FAILED"
	CodeSSHDialFailed Code = "SSHPIN_SSH_DIAL_FAILED"

	// Remote (exec / sftp)
	CodeRemoteExecFailed Code = "SSHPIN_REMOTE_EXEC_FAILED"

	// Internal
	CodeInternal Code = "SSHPIN_INTERNAL"
)

func AllCodes() []Code {
	return []Code{
		CodeCfgNotFound,
		CodeCfgInvalid,
		CodeSecretNotFound,
		CodeKeyMalformed,
		CodePolicyViolation,
		CodeHostKeyUnknown,
		CodeHostKeyMismatch,
		CodeVerifierFailed,
		CodeSSHAuthFailed,
		CodeSSHDialFailed,
		CodeRemoteExecFailed,
		CodeInternal,
	}
}
