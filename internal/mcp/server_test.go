package mcp

import (
	"context"
	"encoding/json"
	"testing"

	"seqthink/internal/thinking"
	"seqthink/internal/tools"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// rpcReply is the decoded shape of a response for assertions.
type rpcReply struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *mcpError       `json:"error"`
}

func newTestServer(t *testing.T) (*Server, *thinking.Processor) {
	t.Helper()
	p := thinking.NewProcessor(thinking.WithRenderThoughts(false))
	reg := tools.NewRegistry()
	reg.MustRegister(tools.NewSequentialThinkingTool(p))
	return NewServer("seqthink", "test", reg), p
}

func call(t *testing.T, s *Server, msg string) rpcReply {
	t.Helper()
	out := s.HandleMessage(context.Background(), []byte(msg))
	require.NotNil(t, out, "expected a reply for %s", msg)
	var r rpcReply
	require.NoError(t, json.Unmarshal(out, &r))
	assert.Equal(t, "2.0", r.JSONRPC)
	return r
}

func TestInitialize(t *testing.T) {
	s, _ := newTestServer(t)

	r := call(t, s, `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2024-11-05","capabilities":{},"clientInfo":{"name":"t","version":"0"}}}`)
	require.Nil(t, r.Error)
	assert.JSONEq(t, `1`, string(r.ID))

	var res InitializeResult
	require.NoError(t, json.Unmarshal(r.Result, &res))
	assert.Equal(t, ProtocolVersion, res.ProtocolVersion)
	assert.Equal(t, "seqthink", res.ServerInfo.Name)
	require.NotNil(t, res.Capabilities.Tools)

	assert.False(t, s.Initialized())
	assert.Nil(t, s.HandleMessage(context.Background(), []byte(`{"jsonrpc":"2.0","method":"notifications/initialized"}`)))
	assert.True(t, s.Initialized())
}

func TestPingEchoesStringID(t *testing.T) {
	s, _ := newTestServer(t)

	r := call(t, s, `{"jsonrpc":"2.0","id":"abc-1","method":"ping"}`)
	require.Nil(t, r.Error)
	assert.JSONEq(t, `"abc-1"`, string(r.ID))
	assert.JSONEq(t, `{}`, string(r.Result))
}

func TestToolsList(t *testing.T) {
	s, _ := newTestServer(t)

	r := call(t, s, `{"jsonrpc":"2.0","id":2,"method":"tools/list"}`)
	require.Nil(t, r.Error)

	var res struct {
		Tools []struct {
			Name        string         `json:"name"`
			Description string         `json:"description"`
			InputSchema map[string]any `json:"inputSchema"`
		} `json:"tools"`
	}
	require.NoError(t, json.Unmarshal(r.Result, &res))
	require.Len(t, res.Tools, 1)
	assert.Equal(t, "sequential_thinking", res.Tools[0].Name)
	assert.Equal(t, "object", res.Tools[0].InputSchema["type"])
	assert.NotEmpty(t, res.Tools[0].Description)
}

func TestToolsCall(t *testing.T) {
	s, p := newTestServer(t)

	r := call(t, s, `{"jsonrpc":"2.0","id":3,"method":"tools/call","params":{"name":"sequential_thinking","arguments":{"thought":"a","thoughtNumber":1,"totalThoughts":2,"nextThoughtNeeded":true,"branchFromThought":1,"branchId":"b1"}}}`)
	require.Nil(t, r.Error)

	var res CallToolResult
	require.NoError(t, json.Unmarshal(r.Result, &res))
	assert.False(t, res.IsError)
	require.Len(t, res.Content, 1)
	assert.Equal(t, "text", res.Content[0].Type)
	assert.JSONEq(t, `{"thoughtNumber":1,"totalThoughts":2,"nextThoughtNeeded":true,"branches":["b1"],"thoughtHistoryLength":1}`, res.Content[0].Text)
	assert.Equal(t, 1, p.HistoryLength())
}

func TestToolsCallRejectedStep(t *testing.T) {
	s, p := newTestServer(t)

	r := call(t, s, `{"jsonrpc":"2.0","id":4,"method":"tools/call","params":{"name":"sequential_thinking","arguments":{"thought":"a","thoughtNumber":1}}}`)
	require.Nil(t, r.Error, "a rejected step is a tool result, not a protocol error")

	var res CallToolResult
	require.NoError(t, json.Unmarshal(r.Result, &res))
	assert.True(t, res.IsError)
	assert.Contains(t, res.Content[0].Text, `"status": "failed"`)
	assert.Contains(t, res.Content[0].Text, "totalThoughts")
	assert.Equal(t, 0, p.HistoryLength())
}

func TestProtocolErrors(t *testing.T) {
	s, _ := newTestServer(t)

	tests := []struct {
		name string
		msg  string
		code int
	}{
		{"parse error", `{"jsonrpc":"2.0",`, CodeParseError},
		{"empty", ``, CodeParseError},
		{"not an object", `"hello"`, CodeInvalidRequest},
		{"wrong version", `{"jsonrpc":"1.0","id":1,"method":"ping"}`, CodeInvalidRequest},
		{"missing method", `{"jsonrpc":"2.0","id":1}`, CodeInvalidRequest},
		{"batch", `[{"jsonrpc":"2.0","id":1,"method":"ping"}]`, CodeInvalidRequest},
		{"unknown method", `{"jsonrpc":"2.0","id":1,"method":"resources/list"}`, CodeMethodNotFound},
		{"unknown tool", `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"nope"}}`, CodeInvalidParams},
		{"missing params", `{"jsonrpc":"2.0","id":1,"method":"tools/call"}`, CodeInvalidParams},
		{"bad params", `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":[1]}`, CodeInvalidParams},
		{"missing tool name", `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{}}`, CodeInvalidParams},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := call(t, s, tt.msg)
			require.NotNil(t, r.Error)
			assert.Equal(t, tt.code, r.Error.Code)
			assert.Nil(t, r.Result)
		})
	}
}

func TestUnknownNotificationIsSilent(t *testing.T) {
	s, _ := newTestServer(t)
	assert.Nil(t, s.HandleMessage(context.Background(), []byte(`{"jsonrpc":"2.0","method":"notifications/whatever"}`)))
}

func TestPanickingToolBecomesErrorResult(t *testing.T) {
	reg := tools.NewRegistry()
	reg.MustRegister(&tools.Tool{
		Name: "explode",
		Execute: func(ctx context.Context, args json.RawMessage) (tools.Output, error) {
			panic("boom")
		},
	})
	s := NewServer("seqthink", "test", reg)

	r := call(t, s, `{"jsonrpc":"2.0","id":9,"method":"tools/call","params":{"name":"explode"}}`)
	require.Nil(t, r.Error)

	var res CallToolResult
	require.NoError(t, json.Unmarshal(r.Result, &res))
	assert.True(t, res.IsError)
	assert.Contains(t, res.Content[0].Text, "boom")
}
