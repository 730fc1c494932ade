package app

import (
	"sort"
	"strings"

	gossh "golang.org/x/crypto/ssh"

	"github.com/zx06/sshpin/internal/config"
	"github.com/zx06/sshpin/internal/errors"
	"github.com/zx06/sshpin/internal/hostkey"
	"github.com/zx06/sshpin/internal/secret"
)

// HostSummary 是 host list 的一行。
type HostSummary struct {
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	Host        string `json:"host" yaml:"host"`
	Port        int    `json:"port" yaml:"port"`
	User        string `json:"user,omitempty" yaml:"user,omitempty"`
	PinnedKeys  int    `json:"pinned_keys" yaml:"pinned_keys"`
}

type HostList struct {
	ConfigPath string        `json:"config_path" yaml:"config_path"`
	Hosts      []HostSummary `json:"hosts" yaml:"hosts"`
}

func (l *HostList) ToTableData() ([]string, []map[string]any, bool) {
	cols := []string{"name", "host", "port", "user", "pinned_keys", "description"}
	rows := make([]map[string]any, 0, len(l.Hosts))
	for _, h := range l.Hosts {
		rows = append(rows, map[string]any{
			"name":        h.Name,
			"host":        h.Host,
			"port":        h.Port,
			"user":        h.User,
			"pinned_keys": h.PinnedKeys,
			"description": h.Description,
		})
	}
	return cols, rows, true
}

// ListHosts 按名字排序列出配置中的全部 host。
func ListHosts(configPath string, file config.File) *HostList {
	names := make([]string, 0, len(file.Hosts))
	for name := range file.Hosts {
		names = append(names, name)
	}
	sort.Strings(names)

	out := &HostList{ConfigPath: configPath, Hosts: make([]HostSummary, 0, len(names))}
	for _, name := range names {
		h := file.Hosts[name]
		out.Hosts = append(out.Hosts, HostSummary{
			Name:        name,
			Description: h.Description,
			Host:        h.Host,
			Port:        portOrDefault(h.Port),
			User:        h.User,
			PinnedKeys:  len(h.HostKeys),
		})
	}
	return out
}

// KeyInfo 描述一个 pinned key。
type KeyInfo struct {
	Algorithm      string `json:"algorithm" yaml:"algorithm"`
	SHA256         string `json:"sha256" yaml:"sha256"`
	MD5            string `json:"md5" yaml:"md5"`
	KnownHostsLine string `json:"known_hosts_line" yaml:"known_hosts_line"`
}

type KeyList struct {
	Name     string    `json:"name" yaml:"name"`
	Identity string    `json:"identity" yaml:"identity"`
	Keys     []KeyInfo `json:"keys" yaml:"keys"`
}

func (l *KeyList) ToTableData() ([]string, []map[string]any, bool) {
	cols := []string{"algorithm", "sha256", "md5"}
	rows := make([]map[string]any, 0, len(l.Keys))
	for _, k := range l.Keys {
		rows = append(rows, map[string]any{"algorithm": k.Algorithm, "sha256": k.SHA256, "md5": k.MD5})
	}
	return cols, rows, true
}

// Fingerprints 离线解析 host 的 pinned key，不发起任何连接。
func Fingerprints(name string, h config.Host) (*KeyList, *errors.XError) {
	ks, xe := pinnedKeySet(name, h)
	if xe != nil {
		return nil, xe
	}
	lines := ks.KnownHostsLines(portOrDefault(h.Port))

	out := &KeyList{Name: name, Identity: ks.Identity(), Keys: make([]KeyInfo, 0, ks.Len())}
	for i, k := range ks.Keys() {
		out.Keys = append(out.Keys, KeyInfo{
			Algorithm:      k.Type(),
			SHA256:         hostkey.Fingerprint(k),
			MD5:            gossh.FingerprintLegacyMD5(k),
			KnownHostsLine: lines[i],
		})
	}
	return out, nil
}

func pinnedKeySet(name string, h config.Host) (*hostkey.KeySet, *errors.XError) {
	if strings.TrimSpace(h.VerifyName()) == "" {
		return nil, errors.New(errors.CodeCfgInvalid, "host is required", map[string]any{"name": name})
	}
	entries, err := hostkey.ParseKeyEntries(h.HostKeys)
	if err == nil {
		var ks *hostkey.KeySet
		ks, err = hostkey.NewKeySet(h.VerifyName(), entries)
		if err == nil {
			return ks, nil
		}
	}
	return nil, errors.Wrap(errors.CodeKeyMalformed, "pinned host key is malformed", map[string]any{"name": name}, err)
}

// HostDetail 是 host show 的输出；secret 已脱敏。
type HostDetail struct {
	Name                  string    `json:"name" yaml:"name"`
	Description           string    `json:"description,omitempty" yaml:"description,omitempty"`
	Host                  string    `json:"host" yaml:"host"`
	Port                  int       `json:"port" yaml:"port"`
	User                  string    `json:"user,omitempty" yaml:"user,omitempty"`
	HostKeyAlias          string    `json:"host_key_alias,omitempty" yaml:"host_key_alias,omitempty"`
	IdentityFile          string    `json:"identity_file,omitempty" yaml:"identity_file,omitempty"`
	Passphrase            string    `json:"passphrase,omitempty" yaml:"passphrase,omitempty"`
	AuthMethods           []string  `json:"auth_methods,omitempty" yaml:"auth_methods,omitempty"`
	KnownHostsFile        string    `json:"known_hosts_file,omitempty" yaml:"known_hosts_file,omitempty"`
	StrictHostKeyChecking string    `json:"strict_host_key_checking,omitempty" yaml:"strict_host_key_checking,omitempty"`
	Timeout               string    `json:"timeout,omitempty" yaml:"timeout,omitempty"`
	PinnedKeys            []KeyInfo `json:"pinned_keys" yaml:"pinned_keys"`
}

// ShowHost 返回指定 host 的详情。
func ShowHost(file config.File, name string) (*HostDetail, *errors.XError) {
	h, ok := file.Hosts[name]
	if !ok {
		return nil, errors.New(errors.CodeCfgInvalid, "host not found", map[string]any{"name": name})
	}
	keys, xe := Fingerprints(name, h)
	if xe != nil {
		return nil, xe
	}
	d := &HostDetail{
		Name:                  name,
		Description:           h.Description,
		Host:                  h.Host,
		Port:                  portOrDefault(h.Port),
		User:                  h.User,
		HostKeyAlias:          h.HostKeyAlias,
		IdentityFile:          h.IdentityFile,
		Passphrase:            secret.Redact(h.Passphrase),
		AuthMethods:           h.AuthMethods,
		KnownHostsFile:        h.KnownHostsFile,
		StrictHostKeyChecking: h.StrictHostKeyChecking,
		PinnedKeys:            keys.Keys,
	}
	if h.Timeout > 0 {
		d.Timeout = h.Timeout.String()
	}
	return d, nil
}

func portOrDefault(p int) int {
	if p == 0 {
		return 22
	}
	return p
}
