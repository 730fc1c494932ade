package config

import "time"

// File 表示 sshpin.yaml 的配置结构。
// 约束：配置优先级为 CLI > ENV > Config。
type File struct {
	Hosts map[string]Host `yaml:"hosts"`
	MCP   MCPConfig       `yaml:"mcp"`
}

// Host 是一个命名的 SSH 目标（profile）。
type Host struct {
	Description string `yaml:"description"`
	Format      string `yaml:"format"`

	Host         string `yaml:"host"`
	Port         int    `yaml:"port"`
	User         string `yaml:"user"`
	HostKeyAlias string `yaml:"host_key_alias"` // 非空时按该名字校验 host key

	IdentityFile string   `yaml:"identity_file"`
	Passphrase   string   `yaml:"passphrase"` // 支持 keyring:xxx 引用
	AuthMethods  []string `yaml:"auth_methods"`

	// 以下两项来自 ssh_config 习惯写法，连接前总会被收紧：
	// known_hosts 被重定向到 /dev/null，检查级别被提升为 yes。
	KnownHostsFile        string `yaml:"known_hosts_file"`
	StrictHostKeyChecking string `yaml:"strict_host_key_checking"`

	Timeout        time.Duration `yaml:"timeout"`
	AllowPlaintext bool          `yaml:"allow_plaintext"`

	// HostKeys 是带外获得的 pinned host key，格式同 known_hosts 去掉主机名："<algorithm> <base64> [comment]"。
	HostKeys []string `yaml:"host_keys"`
}

// VerifyName 返回 host key 校验使用的身份。
func (h Host) VerifyName() string {
	if h.HostKeyAlias != "" {
		return h.HostKeyAlias
	}
	return h.Host
}

// MCPConfig 是 MCP server 的配置。
type MCPConfig struct {
	Transport string        `yaml:"transport"`
	HTTP      MCPHTTPConfig `yaml:"http"`
	// Hosts 限定暴露给 MCP 客户端的 host；为空表示全部。
	Hosts []string `yaml:"hosts"`
}

type MCPHTTPConfig struct {
	Addr                string `yaml:"addr"`
	AuthToken           string `yaml:"auth_token"` // 支持 keyring:xxx 引用
	AllowPlaintextToken bool   `yaml:"allow_plaintext_token"`
}

type Resolved struct {
	ConfigPath  string
	ProfileName string
	Format      string
	Profile     Host // 选中的 host
	File        File
}

type Options struct {
	// ConfigPath: 若非空，则只读取该文件（不存在报错）。
	ConfigPath string

	// CLI
	CLIProfile    string
	CLIProfileSet bool
	CLIFormat     string
	CLIFormatSet  bool

	// ENV（由调用方注入，便于测试）
	EnvProfile string
	EnvFormat  string

	// HomeDir 用于默认路径计算（为空则自动探测）。
	HomeDir string

	// WorkDir 用于默认路径（为空则使用进程当前工作目录）。
	WorkDir string
}
