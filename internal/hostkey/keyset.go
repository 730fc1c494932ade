package hostkey

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"

	skeemakh "github.com/skeema/knownhosts"
	"golang.org/x/crypto/ssh"
)

// KeyEntry 是一条原始 key 编码：算法名 + base64 编码的 SSH wire blob。
// 字段布局与 known_hosts 行一致（去掉主机名字段）。
type KeyEntry struct {
	Algorithm string `json:"algorithm" yaml:"algorithm"`
	Material  string `json:"material" yaml:"material"`
}

func (e KeyEntry) String() string {
	return e.Algorithm + " " + e.Material
}

// ParseKeyEntry 解析 "ssh-ed25519 AAAA... [comment]"。
// 只做字段切分；key 本身在 NewKeySet 时解析。
func ParseKeyEntry(line string) (KeyEntry, error) {
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return KeyEntry{}, fmt.Errorf("expected \"<algorithm> <base64>\", got %d field(s)", len(fields))
	}
	return KeyEntry{Algorithm: fields[0], Material: fields[1]}, nil
}

// ParseKeyEntries 按顺序解析多行；出错时返回带下标的 *MalformedKeyError。
func ParseKeyEntries(lines []string) ([]KeyEntry, error) {
	entries := make([]KeyEntry, 0, len(lines))
	for i, line := range lines {
		e, err := ParseKeyEntry(line)
		if err != nil {
			return nil, &MalformedKeyError{Index: i, Entry: KeyEntry{Algorithm: firstField(line)}, Err: err}
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// EntryFromKey 将已解析的 key 编码为 KeyEntry。
func EntryFromKey(key ssh.PublicKey) KeyEntry {
	return KeyEntry{Algorithm: key.Type(), Material: base64.StdEncoding.EncodeToString(key.Marshal())}
}

func (e KeyEntry) parse() (ssh.PublicKey, error) {
	if e.Algorithm == "" {
		return nil, errors.New("missing algorithm name")
	}
	blob, err := base64.StdEncoding.DecodeString(e.Material)
	if err != nil {
		return nil, fmt.Errorf("decode base64 material: %w", err)
	}
	key, err := ssh.ParsePublicKey(blob)
	if err != nil {
		return nil, fmt.Errorf("parse key blob: %w", err)
	}
	if key.Type() != e.Algorithm {
		return nil, fmt.Errorf("declared algorithm %q does not match key type %q", e.Algorithm, key.Type())
	}
	return key, nil
}

// KeySource 是参与 host key 校验的 key 来源。
// AddKey 存在是为了兼容可学习的 known_hosts 实现；pinned 实现必须拒绝它。
type KeySource interface {
	Lookup(identity HostIdentity) ([]ssh.PublicKey, error)
	AddKey(identity HostIdentity, key ssh.PublicKey) error
}

// KeySet 是单个主机身份的不可变 pinned key 集合。
// 构造后只读，可在任意数量的并发连接间共享。
type KeySet struct {
	identity string
	keys     []ssh.PublicKey
}

var _ KeySource = (*KeySet)(nil)

// NewKeySet 用调用方提供的 key 编码构造 KeySet，绑定到 identity 的 primary。
// 任一条目解析失败则整体失败；重复的 key 只保留第一次出现的位置。
func NewKeySet(identity string, entries []KeyEntry) (*KeySet, error) {
	primary := HostIdentity(identity).Primary()
	if primary == "" {
		return nil, ErrEmptyIdentity
	}
	keys := make([]ssh.PublicKey, 0, len(entries))
	for i, e := range entries {
		key, err := e.parse()
		if err != nil {
			return nil, &MalformedKeyError{Index: i, Entry: e, Err: err}
		}
		if containsKey(keys, key) {
			continue
		}
		keys = append(keys, key)
	}
	return &KeySet{identity: primary, keys: keys}, nil
}

// Identity 返回绑定的 primary 身份。
func (ks *KeySet) Identity() string { return ks.identity }

func (ks *KeySet) Len() int { return len(ks.keys) }

// Keys 返回按构造顺序排列的 key 副本。
func (ks *KeySet) Keys() []ssh.PublicKey {
	out := make([]ssh.PublicKey, len(ks.keys))
	copy(out, ks.keys)
	return out
}

func (ks *KeySet) Contains(key ssh.PublicKey) bool {
	return key != nil && containsKey(ks.keys, key)
}

// Algorithms 返回 key 类型（去重，保持构造顺序）。
func (ks *KeySet) Algorithms() []string {
	var algos []string
	seen := make(map[string]bool, len(ks.keys))
	for _, k := range ks.keys {
		if !seen[k.Type()] {
			seen[k.Type()] = true
			algos = append(algos, k.Type())
		}
	}
	return algos
}

// Lookup 在 identity 的 primary 与绑定身份完全相同时返回 key 副本，否则返回 ErrHostNotFound。
func (ks *KeySet) Lookup(identity HostIdentity) ([]ssh.PublicKey, error) {
	if identity.Primary() != ks.identity {
		return nil, fmt.Errorf("%w: %q (bound to %q)", ErrHostNotFound, identity.Primary(), ks.identity)
	}
	return ks.Keys(), nil
}

// AddKey 总是失败。静默成功就是 trust-on-first-use。
func (ks *KeySet) AddKey(identity HostIdentity, key ssh.PublicKey) error {
	fp := ""
	if key != nil {
		fp = Fingerprint(key)
	}
	return &PolicyViolationError{Identity: identity, Fingerprint: fp}
}

// KnownHostsLines 以 known_hosts 格式输出全部 key（port 22 时不带端口）。
func (ks *KeySet) KnownHostsLines(port int) []string {
	if port == 0 {
		port = 22
	}
	addr := net.JoinHostPort(ks.identity, strconv.Itoa(port))
	lines := make([]string, 0, len(ks.keys))
	for _, k := range ks.keys {
		lines = append(lines, skeemakh.Line([]string{addr}, k))
	}
	return lines
}

// Fingerprint 返回 OpenSSH 风格的 SHA256 指纹。
func Fingerprint(key ssh.PublicKey) string {
	return ssh.FingerprintSHA256(key)
}

func keysEqual(a, b ssh.PublicKey) bool {
	return a.Type() == b.Type() && bytes.Equal(a.Marshal(), b.Marshal())
}

func containsKey(keys []ssh.PublicKey, key ssh.PublicKey) bool {
	for _, k := range keys {
		if keysEqual(k, key) {
			return true
		}
	}
	return false
}

func firstField(line string) string {
	if f := strings.Fields(line); len(f) > 0 {
		return f[0]
	}
	return ""
}
