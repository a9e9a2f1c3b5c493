package mcpbridge

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSession struct {
	listTools func(ctx context.Context, params *mcp.ListToolsParams) (*mcp.ListToolsResult, error)
	callTool  func(ctx context.Context, params *mcp.CallToolParams) (*mcp.CallToolResult, error)
	closed    bool
}

func (f *fakeSession) ListTools(ctx context.Context, params *mcp.ListToolsParams) (*mcp.ListToolsResult, error) {
	return f.listTools(ctx, params)
}

func (f *fakeSession) CallTool(ctx context.Context, params *mcp.CallToolParams) (*mcp.CallToolResult, error) {
	return f.callTool(ctx, params)
}

func (f *fakeSession) Close() error {
	f.closed = true
	return nil
}

func decodeRPC(t *testing.T, raw json.RawMessage) map[string]any {
	t.Helper()
	var resp map[string]any
	require.NoError(t, json.Unmarshal(raw, &resp))
	return resp
}

func rpcErrorCode(t *testing.T, resp map[string]any) float64 {
	t.Helper()
	errObj, ok := resp["error"].(map[string]any)
	require.True(t, ok, "expected error object, got %v", resp)
	code, ok := errObj["code"].(float64)
	require.True(t, ok)
	return code
}

func TestExternalToolsList(t *testing.T) {
	r := &externalRoute{name: "search", session: &fakeSession{
		listTools: func(_ context.Context, _ *mcp.ListToolsParams) (*mcp.ListToolsResult, error) {
			return &mcp.ListToolsResult{Tools: []*mcp.Tool{
				{Name: "web_search", Description: "Search the web"},
			}}, nil
		},
	}}

	raw, err := r.handle(context.Background(), json.RawMessage(`{"jsonrpc":"2.0","id":4,"method":"tools/list"}`))
	require.NoError(t, err)

	resp := decodeRPC(t, raw)
	assert.Equal(t, float64(4), resp["id"])
	assert.Contains(t, string(raw), "web_search")
}

func TestExternalToolsCall(t *testing.T) {
	r := &externalRoute{name: "search", session: &fakeSession{
		callTool: func(_ context.Context, params *mcp.CallToolParams) (*mcp.CallToolResult, error) {
			assert.Equal(t, "web_search", params.Name)
			return &mcp.CallToolResult{Content: []mcp.Content{
				&mcp.TextContent{Text: "3 results"},
			}}, nil
		},
	}}

	raw, err := r.handle(context.Background(), json.RawMessage(
		`{"jsonrpc":"2.0","id":7,"method":"tools/call","params":{"name":"web_search","arguments":{"query":"go"}}}`,
	))
	require.NoError(t, err)

	resp := decodeRPC(t, raw)
	assert.Equal(t, float64(7), resp["id"])
	assert.Contains(t, string(raw), "3 results")
}

func TestExternalInitializeAnsweredLocally(t *testing.T) {
	// Nil session funcs double as the assertion: forwarding would panic.
	r := &externalRoute{name: "search", session: &fakeSession{}}

	raw, err := r.handle(context.Background(), json.RawMessage(
		`{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2024-11-05"}}`,
	))
	require.NoError(t, err)

	resp := decodeRPC(t, raw)
	result, ok := resp["result"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "2024-11-05", result["protocolVersion"])
	assert.Contains(t, result, "serverInfo")
}

func TestExternalPing(t *testing.T) {
	r := &externalRoute{name: "search", session: &fakeSession{}}

	raw, err := r.handle(context.Background(), json.RawMessage(`{"jsonrpc":"2.0","id":9,"method":"ping"}`))
	require.NoError(t, err)

	resp := decodeRPC(t, raw)
	assert.Contains(t, resp, "result")
}

func TestExternalNotificationsDropped(t *testing.T) {
	r := &externalRoute{name: "search", session: &fakeSession{}}

	for _, msg := range []string{
		`{"jsonrpc":"2.0","method":"notifications/initialized"}`,
		`{"jsonrpc":"2.0","id":null,"method":"notifications/cancelled"}`,
	} {
		raw, err := r.handle(context.Background(), json.RawMessage(msg))
		require.NoError(t, err)
		assert.Nil(t, raw, "message %s", msg)
	}
}

func TestExternalUnknownMethod(t *testing.T) {
	r := &externalRoute{name: "search", session: &fakeSession{}}

	raw, err := r.handle(context.Background(), json.RawMessage(`{"jsonrpc":"2.0","id":2,"method":"resources/read"}`))
	require.NoError(t, err)

	resp := decodeRPC(t, raw)
	assert.Equal(t, float64(codeMethodNotFound), rpcErrorCode(t, resp))
}

func TestExternalSessionFailureBecomesInternalError(t *testing.T) {
	r := &externalRoute{name: "search", session: &fakeSession{
		listTools: func(_ context.Context, _ *mcp.ListToolsParams) (*mcp.ListToolsResult, error) {
			return nil, errors.New("connection reset")
		},
	}}

	raw, err := r.handle(context.Background(), json.RawMessage(`{"jsonrpc":"2.0","id":3,"method":"tools/list"}`))
	require.NoError(t, err)

	resp := decodeRPC(t, raw)
	assert.Equal(t, float64(codeInternalError), rpcErrorCode(t, resp))
	assert.Contains(t, string(raw), "connection reset")
}

func TestExternalParseError(t *testing.T) {
	r := &externalRoute{name: "search", session: &fakeSession{}}

	raw, err := r.handle(context.Background(), json.RawMessage(`[not json`))
	require.NoError(t, err)

	resp := decodeRPC(t, raw)
	assert.Equal(t, float64(codeParseError), rpcErrorCode(t, resp))
	assert.Nil(t, resp["id"])
}

func TestExternalInvalidParams(t *testing.T) {
	r := &externalRoute{name: "search", session: &fakeSession{}}

	raw, err := r.handle(context.Background(), json.RawMessage(`{"jsonrpc":"2.0","id":5,"method":"tools/call","params":42}`))
	require.NoError(t, err)

	resp := decodeRPC(t, raw)
	assert.Equal(t, float64(codeInvalidParams), rpcErrorCode(t, resp))
}

func TestExternalCloseClosesSession(t *testing.T) {
	sess := &fakeSession{}
	r := &externalRoute{name: "search", session: sess}

	require.NoError(t, r.close())
	assert.True(t, sess.closed)
}
