package output

import "github.com/zx06/sshpin/internal/errors"

// SchemaVersion 是输出信封的版本；字段语义变化时递增。
const SchemaVersion = 1

type ErrorObject struct {
	Code    errors.Code    `json:"code" yaml:"code"`
	Message string         `json:"message" yaml:"message"`
	Details map[string]any `json:"details,omitempty" yaml:"details,omitempty"`
}

// Envelope 是所有命令（CLI 与 MCP）共用的输出结构：成功带 data，失败带 error。
type Envelope struct {
	OK            bool         `json:"ok" yaml:"ok"`
	SchemaVersion int          `json:"schema_version" yaml:"schema_version"`
	Error         *ErrorObject `json:"error,omitempty" yaml:"error,omitempty"`
	Data          any          `json:"data,omitempty" yaml:"data,omitempty"`
}

func OKEnvelope(data any) Envelope {
	return Envelope{OK: true, SchemaVersion: SchemaVersion, Data: data}
}

// ErrorEnvelope 将 XError 转为失败信封；nil 视为内部错误。
func ErrorEnvelope(xe *errors.XError) Envelope {
	if xe == nil {
		xe = errors.New(errors.CodeInternal, "unknown error", nil)
	}
	return Envelope{
		OK:            false,
		SchemaVersion: SchemaVersion,
		Error:         &ErrorObject{Code: xe.Code, Message: xe.Message, Details: xe.Details},
	}
}
