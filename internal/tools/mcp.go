package tools

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/rs/zerolog"

	"github.com/maxxentropy/agentforge-sub001/internal/constants"
	"github.com/maxxentropy/agentforge-sub001/internal/domain"
	forgeerrors "github.com/maxxentropy/agentforge-sub001/internal/errors"
)

// mcpClientVersion identifies this client to MCP servers during the
// initialize handshake.
const mcpClientVersion = "1.0.0"

// MCPServerConfig describes one stdio MCP server the bridge can launch.
type MCPServerConfig struct {
	Command string            `json:"command"        mapstructure:"command"`
	Args    []string          `json:"args,omitempty" mapstructure:"args"`
	Env     map[string]string `json:"env,omitempty"  mapstructure:"env"`
	Enabled bool              `json:"enabled"        mapstructure:"enabled"`
}

// BridgedTool identifies one tool discovered on a connected MCP server.
type BridgedTool struct {
	Server      string
	Name        string
	Description string
}

// ToolCaller invokes a named tool on a named server. MCPBridge implements
// it against live servers; tests substitute a stub.
type ToolCaller interface {
	CallTool(ctx context.Context, server, tool string, args map[string]any) (text string, isError bool, err error)
}

// MCPBridge connects to external MCP servers over stdio and exposes their
// tools through the dispatcher under mcp_<server>_<tool> names. Connection
// failures are logged and skipped so a dead server never blocks a task.
type MCPBridge struct {
	mu      sync.RWMutex
	clients map[string]*client.Client
	tools   []BridgedTool
	logger  zerolog.Logger
}

var _ ToolCaller = (*MCPBridge)(nil)

// NewMCPBridge creates a bridge with no connections.
func NewMCPBridge(logger zerolog.Logger) *MCPBridge {
	return &MCPBridge{
		clients: make(map[string]*client.Client),
		logger:  logger.With().Str("component", "mcp_bridge").Logger(),
	}
}

// Connect starts and initializes every enabled server. Failures are
// per-server: the bridge keeps whatever connected and always returns nil.
func (b *MCPBridge) Connect(ctx context.Context, servers map[string]MCPServerConfig) error {
	for name, cfg := range servers {
		if !cfg.Enabled {
			continue
		}

		connectCtx, cancel := context.WithTimeout(ctx, constants.MCPConnectTimeout)
		err := b.connectServer(connectCtx, name, cfg)
		cancel()
		if err != nil {
			b.logger.Warn().
				Err(err).
				Str("server", name).
				Msg("MCP server unavailable, skipping")
		}
	}
	return nil
}

// connectServer launches one server, initializes the session, and records
// its tool list.
func (b *MCPBridge) connectServer(ctx context.Context, name string, cfg MCPServerConfig) error {
	env := make([]string, 0, len(cfg.Env))
	for key, value := range cfg.Env {
		env = append(env, fmt.Sprintf("%s=%s", key, os.ExpandEnv(value)))
	}

	mcpClient, err := client.NewStdioMCPClient(cfg.Command, env, cfg.Args...)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", forgeerrors.ErrMCPServerUnavailable, name, err)
	}

	initReq := mcp.InitializeRequest{
		Params: mcp.InitializeParams{
			ProtocolVersion: mcp.LATEST_PROTOCOL_VERSION,
			ClientInfo: mcp.Implementation{
				Name:    constants.AppName,
				Version: mcpClientVersion,
			},
			Capabilities: mcp.ClientCapabilities{},
		},
	}
	if _, err := mcpClient.Initialize(ctx, initReq); err != nil {
		mcpClient.Close()
		return fmt.Errorf("initialize %s: %w", name, err)
	}

	listed, err := mcpClient.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		mcpClient.Close()
		return fmt.Errorf("list tools on %s: %w", name, err)
	}

	b.mu.Lock()
	b.clients[name] = mcpClient
	for _, tool := range listed.Tools {
		b.tools = append(b.tools, BridgedTool{
			Server:      name,
			Name:        tool.Name,
			Description: tool.Description,
		})
	}
	b.mu.Unlock()

	b.logger.Info().
		Str("server", name).
		Int("tools", len(listed.Tools)).
		Msg("MCP server connected")
	return nil
}

// Tools returns the discovered tools sorted by dispatcher name.
func (b *MCPBridge) Tools() []BridgedTool {
	b.mu.RLock()
	out := make([]BridgedTool, len(b.tools))
	copy(out, b.tools)
	b.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Server != out[j].Server {
			return out[i].Server < out[j].Server
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// RegisterAll registers every discovered tool with the dispatcher under
// mcp_<server>_<tool>.
func (b *MCPBridge) RegisterAll(d *Dispatcher) {
	for _, tool := range b.Tools() {
		d.Register(BridgedToolName(tool.Server, tool.Name), NewBridgedExecutor(b, tool.Server, tool.Name))
	}
}

// CallTool invokes tool on server and flattens the result content to text.
func (b *MCPBridge) CallTool(ctx context.Context, server, tool string, args map[string]any) (string, bool, error) {
	b.mu.RLock()
	mcpClient, ok := b.clients[server]
	b.mu.RUnlock()
	if !ok {
		return "", false, fmt.Errorf("%w: %s not connected", forgeerrors.ErrMCPServerUnavailable, server)
	}

	result, err := mcpClient.CallTool(ctx, mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      tool,
			Arguments: args,
		},
	})
	if err != nil {
		return "", false, fmt.Errorf("%w: %s/%s: %w", forgeerrors.ErrMCPToolFailed, server, tool, err)
	}

	var parts []string
	for _, content := range result.Content {
		if text, ok := mcp.AsTextContent(content); ok {
			parts = append(parts, text.Text)
			continue
		}
		parts = append(parts, fmt.Sprintf("[%T]", content))
	}
	return strings.Join(parts, "\n"), result.IsError, nil
}

// Close shuts down all connected servers.
func (b *MCPBridge) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for name, mcpClient := range b.clients {
		if err := mcpClient.Close(); err != nil {
			b.logger.Warn().Err(err).Str("server", name).Msg("MCP server close failed")
		}
	}
	b.clients = make(map[string]*client.Client)
	b.tools = nil
}

// BridgedToolName builds the dispatcher name for a server tool.
func BridgedToolName(server, tool string) string {
	return fmt.Sprintf("mcp_%s_%s", server, tool)
}

// NewBridgedExecutor adapts one MCP tool to the dispatcher contract. Tool
// errors surface as failure results, matching the dispatcher boundary.
func NewBridgedExecutor(caller ToolCaller, server, tool string) Executor {
	return func(ctx context.Context, _ string, params map[string]any, _ *domain.TaskState) (*domain.ToolResult, error) {
		text, isErr, err := caller.CallTool(ctx, server, tool, params)
		if err != nil {
			return nil, err
		}
		if isErr {
			summary := firstLine(text)
			if summary == "" {
				summary = fmt.Sprintf("MCP tool %s/%s failed", server, tool)
			}
			return &domain.ToolResult{
				Status:  constants.ToolFailure,
				Summary: summary,
				Output:  text,
				Error:   summary,
			}, nil
		}

		summary := firstLine(text)
		if summary == "" {
			summary = fmt.Sprintf("MCP tool %s/%s completed", server, tool)
		}
		return &domain.ToolResult{
			Status:  constants.ToolSuccess,
			Summary: summary,
			Output:  text,
		}, nil
	}
}
