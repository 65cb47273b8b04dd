package tools

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	forgeerrors "github.com/maxxentropy/agentforge-sub001/internal/errors"
)

// stubCaller returns a canned tool response and records the call.
type stubCaller struct {
	text      string
	isError   bool
	err       error
	gotServer string
	gotTool   string
	gotArgs   map[string]any
}

func (s *stubCaller) CallTool(_ context.Context, server, tool string, args map[string]any) (string, bool, error) {
	s.gotServer = server
	s.gotTool = tool
	s.gotArgs = args
	return s.text, s.isError, s.err
}

var _ ToolCaller = (*stubCaller)(nil)

func TestBridgedToolName(t *testing.T) {
	assert.Equal(t, "mcp_files_search", BridgedToolName("files", "search"))
}

func TestNewBridgedExecutor(t *testing.T) {
	t.Run("returns success with first line summary", func(t *testing.T) {
		caller := &stubCaller{text: "42 matches\nsee attached listing"}
		exec := NewBridgedExecutor(caller, "files", "search")

		result, err := exec(context.Background(), "mcp_files_search", map[string]any{"query": "retry"}, testState())

		require.NoError(t, err)
		require.NotNil(t, result)
		assert.True(t, result.Success())
		assert.Equal(t, "42 matches", result.Summary)
		assert.Equal(t, "42 matches\nsee attached listing", result.Output)
		assert.Equal(t, "files", caller.gotServer)
		assert.Equal(t, "search", caller.gotTool)
		assert.Equal(t, "retry", caller.gotArgs["query"])
	})

	t.Run("flags tool error results as failure", func(t *testing.T) {
		caller := &stubCaller{text: "unknown query syntax", isError: true}
		exec := NewBridgedExecutor(caller, "files", "search")

		result, err := exec(context.Background(), "mcp_files_search", nil, testState())

		require.NoError(t, err)
		require.NotNil(t, result)
		assert.False(t, result.Success())
		assert.Equal(t, "unknown query syntax", result.Summary)
		assert.Equal(t, "unknown query syntax", result.Error)
	})

	t.Run("defaults summary for empty output", func(t *testing.T) {
		caller := &stubCaller{text: ""}
		exec := NewBridgedExecutor(caller, "files", "search")

		result, err := exec(context.Background(), "mcp_files_search", nil, testState())

		require.NoError(t, err)
		require.NotNil(t, result)
		assert.True(t, result.Success())
		assert.Equal(t, "MCP tool files/search completed", result.Summary)
	})

	t.Run("transport errors surface through the dispatcher", func(t *testing.T) {
		caller := &stubCaller{err: forgeerrors.ErrMCPToolFailed}
		d := NewDispatcher(zerolog.Nop())
		d.Register("mcp_files_search", NewBridgedExecutor(caller, "files", "search"))

		result := d.Execute(context.Background(), "mcp_files_search", nil, testState())

		require.NotNil(t, result)
		assert.False(t, result.Success())
		assert.Contains(t, result.Summary, "mcp tool call failed")
	})
}

func TestMCPBridge_Tools(t *testing.T) {
	b := NewMCPBridge(zerolog.Nop())
	b.tools = []BridgedTool{
		{Server: "web", Name: "fetch"},
		{Server: "files", Name: "search"},
		{Server: "files", Name: "list"},
	}

	tools := b.Tools()

	require.Len(t, tools, 3)
	assert.Equal(t, BridgedTool{Server: "files", Name: "list"}, tools[0])
	assert.Equal(t, BridgedTool{Server: "files", Name: "search"}, tools[1])
	assert.Equal(t, BridgedTool{Server: "web", Name: "fetch"}, tools[2])
}

func TestMCPBridge_RegisterAll(t *testing.T) {
	b := NewMCPBridge(zerolog.Nop())
	b.tools = []BridgedTool{
		{Server: "files", Name: "search"},
		{Server: "web", Name: "fetch"},
	}
	d := NewDispatcher(zerolog.Nop())

	b.RegisterAll(d)

	assert.True(t, d.Has("mcp_files_search"))
	assert.True(t, d.Has("mcp_web_fetch"))

	// The servers were never connected, so bridged calls fail cleanly.
	result := d.Execute(context.Background(), "mcp_files_search", nil, testState())
	require.NotNil(t, result)
	assert.False(t, result.Success())
	assert.Contains(t, result.Summary, "not connected")
}

func TestMCPBridge_CallTool(t *testing.T) {
	t.Run("fails for unconnected server", func(t *testing.T) {
		b := NewMCPBridge(zerolog.Nop())

		_, _, err := b.CallTool(context.Background(), "files", "search", nil)

		require.Error(t, err)
		require.ErrorIs(t, err, forgeerrors.ErrMCPServerUnavailable)
	})
}

func TestMCPBridge_Connect(t *testing.T) {
	t.Run("skips disabled servers", func(t *testing.T) {
		b := NewMCPBridge(zerolog.Nop())

		err := b.Connect(context.Background(), map[string]MCPServerConfig{
			"off": {Command: "definitely-not-a-binary", Enabled: false},
		})

		require.NoError(t, err)
		assert.Empty(t, b.Tools())
	})

	t.Run("survives unavailable server", func(t *testing.T) {
		b := NewMCPBridge(zerolog.Nop())

		err := b.Connect(context.Background(), map[string]MCPServerConfig{
			"dead": {Command: "/nonexistent/mcp-server", Enabled: true},
		})

		require.NoError(t, err)
		assert.Empty(t, b.Tools())
	})
}
