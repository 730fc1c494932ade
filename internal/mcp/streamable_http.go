package mcp

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/zx06/sshpin/internal/errors"
)

const (
	TransportStdio          = "stdio"
	TransportStreamableHTTP = "streamable_http"
)

const (
	authHeader   = "Authorization"
	bearerPrefix = "Bearer "
)

// NewStreamableHTTPHandler 返回带 bearer token 校验的 streamable HTTP handler。
// token 为空时拒绝启动：host_check 会替调用方发起出站连接。
func NewStreamableHTTPHandler(server *mcp.Server, authToken string, logger *slog.Logger) (http.Handler, error) {
	if server == nil {
		return nil, errors.New(errors.CodeInternal, "mcp server is nil", nil)
	}
	if authToken == "" {
		return nil, errors.New(errors.CodeCfgInvalid, "mcp streamable http auth token is required", nil)
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	handler := mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server {
		return server
	}, &mcp.StreamableHTTPOptions{JSONResponse: true})
	return requireBearer(handler, authToken, logger), nil
}

func requireBearer(next http.Handler, token string, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if reason := checkBearer(req.Header.Get(authHeader), token); reason != "" {
			logger.Warn("mcp request rejected", "remote", req.RemoteAddr, "reason", reason)
			http.Error(w, reason, http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, req)
	})
}

// checkBearer 返回拒绝原因；通过时返回空串。
func checkBearer(header, token string) string {
	auth := strings.TrimSpace(header)
	switch {
	case auth == "":
		return "authorization header is required"
	case !strings.HasPrefix(auth, bearerPrefix):
		return "unauthorized"
	case subtle.ConstantTimeCompare([]byte(strings.TrimPrefix(auth, bearerPrefix)), []byte(token)) != 1:
		return "unauthorized"
	}
	return ""
}
