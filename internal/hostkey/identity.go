package hostkey

import (
	"net"
	"strings"
)

// HostIdentity 是同一逻辑主机的一个或多个名字/地址，以逗号连接，
// 例如传输层给出的 "github.com,140.82.121.4"。
type HostIdentity string

// Primary 返回第一个逗号分隔的 token；校验只针对 primary 做精确匹配。
func (h HostIdentity) Primary() string {
	s := string(h)
	if i := strings.IndexByte(s, ','); i >= 0 {
		return s[:i]
	}
	return s
}

// Aliases 返回 primary 之外的名字（不参与匹配，仅用于审计输出）。
func (h HostIdentity) Aliases() []string {
	parts := strings.Split(string(h), ",")
	if len(parts) <= 1 {
		return nil
	}
	return parts[1:]
}

// IdentityForAddr 由拨号地址（host:port）与对端地址构造 "host,ip" 形式的身份。
// 端口被去掉；对端 IP 与 host 相同时不重复追加。
func IdentityForAddr(hostname string, remote net.Addr) HostIdentity {
	host := hostname
	if h, _, err := net.SplitHostPort(hostname); err == nil {
		host = h
	}
	if tcp, ok := remote.(*net.TCPAddr); ok && tcp != nil && tcp.IP != nil {
		if ip := tcp.IP.String(); ip != host {
			return HostIdentity(host + "," + ip)
		}
	}
	return HostIdentity(host)
}
