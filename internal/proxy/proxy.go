package proxy

import (
	"context"
	stderrors "errors"
	"io"
	"log/slog"
	"net"
	"strconv"
	"sync"

	"github.com/zx06/sshpin/internal/errors"
)

// Dialer 通过已校验的 SSH 连接建立到远端的连接（*ssh.Client 实现该接口）。
type Dialer interface {
	DialContext(ctx context.Context, network, addr string) (net.Conn, error)
}

// Proxy 是本地 TCP 端口转发：每个本地连接都经 Dialer 转发到 RemoteAddr。
type Proxy struct {
	dialer     Dialer
	listener   net.Listener
	remoteAddr string
	logger     *slog.Logger
	ctx        context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup
}

// Options holds configuration for starting a proxy.
type Options struct {
	LocalHost  string // 默认 127.0.0.1
	LocalPort  int    // 0 表示自动分配
	RemoteAddr string // 远端 host:port（从 SSH 服务器一侧解析）
	Dialer     Dialer
	Logger     *slog.Logger
}

// Result 描述已启动的转发。
type Result struct {
	LocalAddress  string `json:"local_address" yaml:"local_address"`
	RemoteAddress string `json:"remote_address" yaml:"remote_address"`
}

// Start 开始监听本地端口并转发。
func Start(ctx context.Context, opts Options) (*Proxy, *Result, *errors.XError) {
	if opts.LocalHost == "" {
		opts.LocalHost = "127.0.0.1"
	}
	if opts.Dialer == nil {
		return nil, nil, errors.New(errors.CodeInternal, "dialer is required", nil)
	}
	if _, _, err := net.SplitHostPort(opts.RemoteAddr); err != nil {
		return nil, nil, errors.Wrap(errors.CodeCfgInvalid, "remote address must be host:port", map[string]any{"remote": opts.RemoteAddr}, err)
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}

	addr := net.JoinHostPort(opts.LocalHost, strconv.Itoa(opts.LocalPort))
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, nil, errors.Wrap(errors.CodeInternal, "failed to listen on local port", map[string]any{"address": addr}, err)
	}

	proxyCtx, cancel := context.WithCancel(ctx)
	p := &Proxy{
		dialer:     opts.Dialer,
		listener:   listener,
		remoteAddr: opts.RemoteAddr,
		logger:     opts.Logger,
		ctx:        proxyCtx,
		cancel:     cancel,
	}

	p.wg.Add(1)
	go p.acceptConnections()

	p.logger.Info("port forward started", "local", listener.Addr().String(), "remote", opts.RemoteAddr)
	return p, &Result{LocalAddress: listener.Addr().String(), RemoteAddress: opts.RemoteAddr}, nil
}

func (p *Proxy) acceptConnections() {
	defer p.wg.Done()
	for {
		localConn, err := p.listener.Accept()
		if err != nil {
			if p.ctx.Err() != nil || stderrors.Is(err, net.ErrClosed) {
				return
			}
			p.logger.Warn("accept failed", "error", err)
			continue
		}
		p.wg.Add(1)
		go p.handleConnection(localConn)
	}
}

func (p *Proxy) handleConnection(localConn net.Conn) {
	defer p.wg.Done()
	defer func() { _ = localConn.Close() }()

	remoteConn, err := p.dialer.DialContext(p.ctx, "tcp", p.remoteAddr)
	if err != nil {
		p.logger.Warn("forward dial failed", "remote", p.remoteAddr, "error", err)
		return
	}
	defer func() { _ = remoteConn.Close() }()
	p.logger.Debug("forwarding connection", "client", localConn.RemoteAddr().String(), "remote", p.remoteAddr)

	done := make(chan struct{}, 2)
	go func() {
		_, _ = io.Copy(localConn, remoteConn)
		done <- struct{}{}
	}()
	go func() {
		_, _ = io.Copy(remoteConn, localConn)
		done <- struct{}{}
	}()

	// 任一方向结束或转发被停止时关闭两端
	select {
	case <-done:
	case <-p.ctx.Done():
	}
}

// Stop 关闭监听并等待所有转发中的连接结束。
func (p *Proxy) Stop() error {
	p.cancel()
	err := p.listener.Close()
	p.wg.Wait()
	if stderrors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}

// LocalAddress returns the actual local address the proxy is listening on.
func (p *Proxy) LocalAddress() string {
	if p.listener != nil {
		return p.listener.Addr().String()
	}
	return ""
}
