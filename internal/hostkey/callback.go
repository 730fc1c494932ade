package hostkey

import (
	"net"
	"slices"

	skeemakh "github.com/skeema/knownhosts"
	"golang.org/x/crypto/ssh"
)

// HostKeyCallback 将 Verifier 适配为 ssh.HostKeyCallback。
// 身份由拨号地址与对端 IP 组成（"host,ip"），拒绝时返回 *RejectionError，
// verifier 故障时返回 *VerificationError。
func (v *Verifier) HostKeyCallback() ssh.HostKeyCallback {
	return func(hostname string, remote net.Addr, key ssh.PublicKey) error {
		verdict, err := v.Verify(IdentityForAddr(hostname, remote), key)
		if err != nil {
			return err
		}
		return verdict.Err()
	}
}

// HostKeyAlgorithms 返回供 ssh.ClientConfig.HostKeyAlgorithms 使用的算法顺序：
// 先是 pinned key 对应的算法，再是其余受支持的算法。
// 不把列表收窄为 pinned 算法，否则 key 不匹配会表现为协商失败而非 RejectedMismatch。
// 未知主机返回 nil（使用 x/crypto 默认顺序）。
func (v *Verifier) HostKeyAlgorithms(hostWithPort string) []string {
	probe := &Verifier{source: v.source}
	pinned := skeemakh.HostKeyCallback(probe.HostKeyCallback()).HostKeyAlgorithms(hostWithPort)
	if len(pinned) == 0 {
		return nil
	}
	algos := slices.Clone(pinned)
	for _, a := range ssh.SupportedAlgorithms().HostKeys {
		if !slices.Contains(algos, a) {
			algos = append(algos, a)
		}
	}
	return algos
}
