package ssh

import (
	"bytes"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/pkg/sftp"
	gossh "golang.org/x/crypto/ssh"

	"github.com/zx06/sshpin/internal/hostkey"
)

// testServer 是测试用的进程内 SSH 服务器。
type testServer struct {
	host    string
	port    int
	hostKey gossh.PublicKey
	keyPath string // 被服务器接受的客户端私钥
	rootDir string // sftp 工作目录
}

type serverOption func(*gossh.ServerConfig)

// passwordOnly 让服务器只接受密码认证。
func passwordOnly(cfg *gossh.ServerConfig) {
	cfg.PublicKeyCallback = nil
	cfg.PasswordCallback = func(gossh.ConnMetadata, []byte) (*gossh.Permissions, error) {
		return nil, fmt.Errorf("wrong password")
	}
}

func startTestServer(t *testing.T, opts ...serverOption) *testServer {
	t.Helper()

	_, hostPriv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate host key: %v", err)
	}
	hostSigner, err := gossh.NewSignerFromKey(hostPriv)
	if err != nil {
		t.Fatalf("create host signer: %v", err)
	}

	clientPub, clientPriv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate client key: %v", err)
	}
	clientSSHPub, err := gossh.NewPublicKey(clientPub)
	if err != nil {
		t.Fatalf("convert client public key: %v", err)
	}

	cfg := &gossh.ServerConfig{
		PublicKeyCallback: func(conn gossh.ConnMetadata, key gossh.PublicKey) (*gossh.Permissions, error) {
			if bytes.Equal(key.Marshal(), clientSSHPub.Marshal()) {
				return &gossh.Permissions{}, nil
			}
			return nil, fmt.Errorf("unknown public key")
		},
	}
	for _, o := range opts {
		o(cfg)
	}
	cfg.AddHostKey(hostSigner)

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { listener.Close() })

	dir := t.TempDir()
	srv := &testServer{
		host:    "127.0.0.1",
		port:    listener.Addr().(*net.TCPAddr).Port,
		hostKey: hostSigner.PublicKey(),
		rootDir: dir,
	}

	pemBlock, err := gossh.MarshalPrivateKey(clientPriv, "")
	if err != nil {
		t.Fatalf("marshal client private key: %v", err)
	}
	srv.keyPath = filepath.Join(dir, "client.key")
	if err := os.WriteFile(srv.keyPath, pem.EncodeToMemory(pemBlock), 0o600); err != nil {
		t.Fatalf("write client key: %v", err)
	}

	go func() {
		for {
			conn, err := listener.Accept()
			if err != nil {
				return
			}
			go srv.serveConn(conn, cfg)
		}
	}()
	return srv
}

func (s *testServer) serveConn(conn net.Conn, cfg *gossh.ServerConfig) {
	defer conn.Close()
	srvConn, chans, reqs, err := gossh.NewServerConn(conn, cfg)
	if err != nil {
		return
	}
	defer srvConn.Close()
	go gossh.DiscardRequests(reqs)
	for newChan := range chans {
		switch newChan.ChannelType() {
		case "session":
			ch, requests, err := newChan.Accept()
			if err != nil {
				continue
			}
			go s.serveSession(ch, requests)
		case "direct-tcpip":
			s.serveDirect(newChan)
		default:
			_ = newChan.Reject(gossh.UnknownChannelType, "unsupported")
		}
	}
}

func (s *testServer) serveSession(ch gossh.Channel, requests <-chan *gossh.Request) {
	defer ch.Close()
	for req := range requests {
		switch req.Type {
		case "exec":
			var payload struct{ Command string }
			if err := gossh.Unmarshal(req.Payload, &payload); err != nil {
				_ = req.Reply(false, nil)
				continue
			}
			_ = req.Reply(true, nil)
			status := runFakeCommand(ch, payload.Command)
			_, _ = ch.SendRequest("exit-status", false, gossh.Marshal(struct{ Status uint32 }{status}))
			return
		case "subsystem":
			var payload struct{ Name string }
			if err := gossh.Unmarshal(req.Payload, &payload); err != nil || payload.Name != "sftp" {
				_ = req.Reply(false, nil)
				continue
			}
			_ = req.Reply(true, nil)
			server, err := sftp.NewServer(ch, sftp.WithServerWorkingDirectory(s.rootDir))
			if err != nil {
				return
			}
			_ = server.Serve()
			return
		default:
			if req.WantReply {
				_ = req.Reply(false, nil)
			}
		}
	}
}

// runFakeCommand 模拟远端命令：echo 原样输出，fail 写 stderr 并以 3 退出。
func runFakeCommand(ch gossh.Channel, command string) uint32 {
	switch {
	case command == "fail":
		_, _ = ch.Stderr().Write([]byte("boom\n"))
		return 3
	case len(command) > 5 && command[:5] == "echo ":
		_, _ = ch.Write([]byte(command[5:] + "\n"))
		return 0
	default:
		_, _ = ch.Stderr().Write([]byte(command + ": command not found\n"))
		return 127
	}
}

// serveDirect 把 direct-tcpip 通道回显给调用方。
func (s *testServer) serveDirect(newChan gossh.NewChannel) {
	ch, requests, err := newChan.Accept()
	if err != nil {
		return
	}
	go gossh.DiscardRequests(requests)
	go func() {
		defer ch.Close()
		buf := make([]byte, 4096)
		for {
			n, err := ch.Read(buf)
			if n > 0 {
				if _, werr := ch.Write(buf[:n]); werr != nil {
					return
				}
			}
			if err != nil {
				return
			}
		}
	}()
}

// baseConfig 返回指向测试服务器、尚未收紧的配置。
func (s *testServer) baseConfig() Config {
	return Config{
		Host:         s.host,
		Port:         s.port,
		User:         "tester",
		IdentityFile: s.keyPath,
		AuthMethods:  []string{AuthPublicKey},
	}
}

func (s *testServer) addr() string {
	return net.JoinHostPort(s.host, strconv.Itoa(s.port))
}

func (s *testServer) hostKeyEntry() hostkey.KeyEntry {
	return hostkey.EntryFromKey(s.hostKey)
}

func randomKeyEntry(t *testing.T) hostkey.KeyEntry {
	t.Helper()
	pub, _, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	k, err := gossh.NewPublicKey(pub)
	if err != nil {
		t.Fatalf("convert key: %v", err)
	}
	return hostkey.EntryFromKey(k)
}
