package ssh

import (
	"bytes"
	"context"
	stderrors "errors"
	"net"
	"time"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"

	"github.com/zx06/sshpin/internal/errors"
	"github.com/zx06/sshpin/internal/hostkey"
)

// Verdict 返回建立连接时被接受的 host key verdict。
func (c *Client) Verdict() hostkey.Verdict {
	return c.verdict
}

// DialContext 通过 SSH 通道建立到 addr 的连接（供端口转发使用）。
func (c *Client) DialContext(ctx context.Context, network, addr string) (net.Conn, error) {
	return c.client.DialContext(ctx, network, addr)
}

// Close 关闭 SSH 连接。
func (c *Client) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}

// RunResult 是一次远程命令执行的结果。
type RunResult struct {
	Command    string `json:"command" yaml:"command"`
	Stdout     string `json:"stdout" yaml:"stdout"`
	Stderr     string `json:"stderr" yaml:"stderr"`
	ExitStatus int    `json:"exit_status" yaml:"exit_status"`
}

// Run 在新 session 中执行 command。非零退出码返回 SSHPIN_REMOTE_EXEC_FAILED，同时返回已收集的输出。
// ctx 取消时向远端发送 SIGKILL 并关闭 session。
func (c *Client) Run(ctx context.Context, command string) (*RunResult, *errors.XError) {
	session, err := c.client.NewSession()
	if err != nil {
		return nil, errors.Wrap(errors.CodeRemoteExecFailed, "failed to open ssh session", nil, err)
	}
	defer session.Close()

	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr

	stop := context.AfterFunc(ctx, func() {
		_ = session.Signal(ssh.SIGKILL)
		_ = session.Close()
	})
	defer stop()

	c.logger.Debug("running remote command", "command", command)
	err = session.Run(command)
	res := &RunResult{Command: command, Stdout: stdout.String(), Stderr: stderr.String()}
	if err == nil {
		return res, nil
	}

	details := map[string]any{"command": command}
	var exitErr *ssh.ExitError
	if stderrors.As(err, &exitErr) {
		res.ExitStatus = exitErr.ExitStatus()
		details["exit_status"] = res.ExitStatus
		details["stderr"] = res.Stderr
		return res, errors.Wrap(errors.CodeRemoteExecFailed, "remote command exited with non-zero status", details, err)
	}
	if ctx.Err() != nil {
		return res, errors.Wrap(errors.CodeRemoteExecFailed, "remote command cancelled", details, ctx.Err())
	}
	return res, errors.Wrap(errors.CodeRemoteExecFailed, "remote command failed", details, err)
}

// FileEntry 是 ReadDir 返回的目录项。
type FileEntry struct {
	Name    string    `json:"name" yaml:"name"`
	Size    int64     `json:"size" yaml:"size"`
	Mode    string    `json:"mode" yaml:"mode"`
	ModTime time.Time `json:"mod_time" yaml:"mod_time"`
	IsDir   bool      `json:"is_dir" yaml:"is_dir"`
}

// ReadDir 通过 SFTP 子系统列出远程目录；path 为空时列出登录目录。
func (c *Client) ReadDir(path string) ([]FileEntry, *errors.XError) {
	client, err := sftp.NewClient(c.client)
	if err != nil {
		return nil, errors.Wrap(errors.CodeRemoteExecFailed, "failed to start sftp subsystem", nil, err)
	}
	defer client.Close()

	if path == "" {
		path = "."
	}
	infos, err := client.ReadDir(path)
	if err != nil {
		return nil, errors.Wrap(errors.CodeRemoteExecFailed, "failed to read remote directory", map[string]any{"path": path}, err)
	}
	entries := make([]FileEntry, 0, len(infos))
	for _, fi := range infos {
		entries = append(entries, FileEntry{
			Name:    fi.Name(),
			Size:    fi.Size(),
			Mode:    fi.Mode().String(),
			ModTime: fi.ModTime().UTC(),
			IsDir:   fi.IsDir(),
		})
	}
	return entries, nil
}
