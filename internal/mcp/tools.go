package mcp

import (
	"context"
	"encoding/json"
	"log/slog"
	"sort"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/zx06/sshpin/internal/app"
	"github.com/zx06/sshpin/internal/config"
	"github.com/zx06/sshpin/internal/errors"
	"github.com/zx06/sshpin/internal/output"
)

// HostInput 是 host_show / host_check 的输入。
type HostInput struct {
	Name string `json:"name" jsonschema:"Host name"`
}

// ToolHandler manages MCP tools
type ToolHandler struct {
	config *config.File
	logger *slog.Logger
}

func NewToolHandler(cfg *config.File, logger *slog.Logger) *ToolHandler {
	if cfg == nil {
		cfg = &config.File{}
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &ToolHandler{config: cfg, logger: logger}
}

func (h *ToolHandler) hostNames() []string {
	names := make([]string, 0, len(h.config.Hosts))
	for name := range h.config.Hosts {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// RegisterTools registers all tools with the MCP server
func (h *ToolHandler) RegisterTools(server *mcp.Server) {
	names := h.hostNames()
	hostEnums := make([]any, len(names))
	for i, name := range names {
		hostEnums[i] = name
	}
	hostSchema := func() *jsonschema.Schema {
		return &jsonschema.Schema{
			Type:     "object",
			Required: []string{"name"},
			Properties: map[string]*jsonschema.Schema{
				"name": {
					Type:        "string",
					Description: "Host name",
					Enum:        hostEnums,
				},
			},
		}
	}

	mcp.AddTool[struct{}, any](server, &mcp.Tool{
		Name:        "host_list",
		Description: "List all configured SSH hosts",
	}, h.HostList)

	server.AddTool(&mcp.Tool{
		Name:        "host_show",
		Description: "Show host details and pinned host key fingerprints (secrets redacted)",
		InputSchema: hostSchema(),
	}, h.rawHandler(h.HostShow))

	server.AddTool(&mcp.Tool{
		Name:        "host_check",
		Description: "Handshake with the host and verify its key against the pinned keys; no credentials are sent",
		InputSchema: hostSchema(),
	}, h.rawHandler(h.HostCheck))
}

type hostTool func(ctx context.Context, req *mcp.CallToolRequest, input HostInput) (*mcp.CallToolResult, any, error)

func (h *ToolHandler) rawHandler(fn hostTool) mcp.ToolHandler {
	return func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var input HostInput
		if err := json.Unmarshal(req.Params.Arguments, &input); err != nil {
			return h.errorResult(errors.Wrap(errors.CodeCfgInvalid, "invalid input", nil, err)), nil
		}
		result, _, err := fn(ctx, req, input)
		return result, err
	}
}

// HostList lists all hosts
func (h *ToolHandler) HostList(ctx context.Context, req *mcp.CallToolRequest, input struct{}) (*mcp.CallToolResult, any, error) {
	return h.okResult(app.ListHosts("", *h.config)), nil, nil
}

// HostShow shows host details
func (h *ToolHandler) HostShow(ctx context.Context, req *mcp.CallToolRequest, input HostInput) (*mcp.CallToolResult, any, error) {
	if input.Name == "" {
		return h.errorResult(errors.New(errors.CodeCfgInvalid, "name is required", nil)), nil, nil
	}
	detail, xe := app.ShowHost(*h.config, input.Name)
	if xe != nil {
		return h.errorResult(xe), nil, nil
	}
	return h.okResult(detail), nil, nil
}

// HostCheck probes the host key
func (h *ToolHandler) HostCheck(ctx context.Context, req *mcp.CallToolRequest, input HostInput) (*mcp.CallToolResult, any, error) {
	if input.Name == "" {
		return h.errorResult(errors.New(errors.CodeCfgInvalid, "name is required", nil)), nil, nil
	}
	host, ok := h.config.Hosts[input.Name]
	if !ok {
		return h.errorResult(errors.New(errors.CodeCfgInvalid, "host not found", map[string]any{"name": input.Name})), nil, nil
	}
	res, xe := app.ProbeHost(ctx, app.ConnectionOptions{Name: input.Name, Host: host, Logger: h.logger})
	if xe != nil {
		return h.errorResult(xe), nil, nil
	}
	return h.okResult(res), nil, nil
}

func (h *ToolHandler) okResult(data any) *mcp.CallToolResult {
	jsonData, err := json.MarshalIndent(output.OKEnvelope(data), "", "  ")
	if err != nil {
		return h.errorResult(errors.Wrap(errors.CodeInternal, "failed to marshal result", nil, err))
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: string(jsonData)}},
	}
}

func (h *ToolHandler) errorResult(err error) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{&mcp.TextContent{Text: h.formatError(err)}},
	}
}

// formatError formats an error as JSON
func (h *ToolHandler) formatError(err error) string {
	var xe *errors.XError
	if err != nil {
		xe = errors.AsOrWrap(err)
	}
	jsonData, _ := json.MarshalIndent(output.ErrorEnvelope(xe), "", "  ")
	return string(jsonData)
}

// CreateServer creates a new MCP server
func CreateServer(version string, cfg *config.File, logger *slog.Logger) (*mcp.Server, error) {
	server := mcp.NewServer(&mcp.Implementation{
		Name:    "sshpin",
		Version: version,
	}, nil)

	handler := NewToolHandler(cfg, logger)
	handler.RegisterTools(server)

	return server, nil
}
