// Package spec describes the CLI surface in machine-readable form for agents.
package spec

import "github.com/zx06/sshpin/internal/errors"

type FlagSpec struct {
	Name        string `json:"name" yaml:"name"`
	Shorthand   string `json:"shorthand,omitempty" yaml:"shorthand,omitempty"`
	Env         string `json:"env,omitempty" yaml:"env,omitempty"`
	Default     string `json:"default,omitempty" yaml:"default,omitempty"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
}

// CommandSpec 描述一个子命令；Usage 是位置参数部分，例如 "-- <command>"。
type CommandSpec struct {
	Name        string     `json:"name" yaml:"name"`
	Usage       string     `json:"usage,omitempty" yaml:"usage,omitempty"`
	Description string     `json:"description,omitempty" yaml:"description,omitempty"`
	Flags       []FlagSpec `json:"flags,omitempty" yaml:"flags,omitempty"`
}

// ExitCodeSpec 将错误码映射到进程退出码。
type ExitCodeSpec struct {
	Code errors.Code     `json:"code" yaml:"code"`
	Exit errors.ExitCode `json:"exit" yaml:"exit"`
}

type Spec struct {
	SchemaVersion int            `json:"schema_version" yaml:"schema_version"`
	Commands      []CommandSpec  `json:"commands" yaml:"commands"`
	ErrorCodes    []errors.Code  `json:"error_codes" yaml:"error_codes"`
	ExitCodes     []ExitCodeSpec `json:"exit_codes" yaml:"exit_codes"`
}

// ExitCodesFor 为每个 code 生成退出码映射，顺序与输入一致。
func ExitCodesFor(codes []errors.Code) []ExitCodeSpec {
	out := make([]ExitCodeSpec, 0, len(codes))
	for _, c := range codes {
		out = append(out, ExitCodeSpec{Code: c, Exit: errors.ExitCodeFor(c)})
	}
	return out
}
