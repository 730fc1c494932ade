package app

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"net"
	"os"
	"path/filepath"
	"testing"

	gossh "golang.org/x/crypto/ssh"

	"github.com/zx06/sshpin/internal/config"
	"github.com/zx06/sshpin/internal/hostkey"
)

// sshServer 是只完成握手与认证的进程内 SSH 服务器。
type sshServer struct {
	port    int
	hostKey gossh.PublicKey
	keyPath string
}

func startSSHServer(t *testing.T) *sshServer {
	t.Helper()

	_, hostPriv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate host key: %v", err)
	}
	hostSigner, err := gossh.NewSignerFromKey(hostPriv)
	if err != nil {
		t.Fatalf("host signer: %v", err)
	}
	clientPub, clientPriv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate client key: %v", err)
	}
	authorized, err := gossh.NewPublicKey(clientPub)
	if err != nil {
		t.Fatalf("client public key: %v", err)
	}

	cfg := &gossh.ServerConfig{
		PublicKeyCallback: func(_ gossh.ConnMetadata, key gossh.PublicKey) (*gossh.Permissions, error) {
			if string(key.Marshal()) == string(authorized.Marshal()) {
				return &gossh.Permissions{}, nil
			}
			return nil, os.ErrPermission
		},
	}
	cfg.AddHostKey(hostSigner)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { ln.Close() })

	block, err := gossh.MarshalPrivateKey(clientPriv, "")
	if err != nil {
		t.Fatalf("marshal client key: %v", err)
	}
	keyPath := filepath.Join(t.TempDir(), "id_ed25519")
	if err := os.WriteFile(keyPath, pem.EncodeToMemory(block), 0o600); err != nil {
		t.Fatalf("write client key: %v", err)
	}

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func() {
				defer conn.Close()
				sc, chans, reqs, err := gossh.NewServerConn(conn, cfg)
				if err != nil {
					return
				}
				defer sc.Close()
				go gossh.DiscardRequests(reqs)
				for nc := range chans {
					_ = nc.Reject(gossh.Prohibited, "no channels")
				}
			}()
		}
	}()

	return &sshServer{
		port:    ln.Addr().(*net.TCPAddr).Port,
		hostKey: hostSigner.PublicKey(),
		keyPath: keyPath,
	}
}

// profile 返回指向测试服务器、只 pin 了 pinned 的 host 配置。
func (s *sshServer) profile(pinned ...string) config.Host {
	return config.Host{
		Host:         "127.0.0.1",
		Port:         s.port,
		User:         "tester",
		IdentityFile: s.keyPath,
		AuthMethods:  []string{"publickey"},
		HostKeys:     pinned,
	}
}

func (s *sshServer) hostKeyLine() string {
	return hostkey.EntryFromKey(s.hostKey).String()
}

func randomKeyLine(t *testing.T) string {
	t.Helper()
	pub, _, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	k, err := gossh.NewPublicKey(pub)
	if err != nil {
		t.Fatalf("convert key: %v", err)
	}
	return hostkey.EntryFromKey(k).String()
}
