package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// lockedBuffer collects transport output safely.
type lockedBuffer struct {
	mu sync.Mutex
	sb strings.Builder
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.sb.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.sb.String()
}

func TestStdioTransportRoundTrip(t *testing.T) {
	s, p := newTestServer(t)

	input := strings.Join([]string{
		`{"jsonrpc":"2.0","id":1,"method":"initialize","params":{}}`,
		`{"jsonrpc":"2.0","method":"notifications/initialized"}`,
		``,
		`{"jsonrpc":"2.0","id":2,"method":"tools/call","params":{"name":"sequential_thinking","arguments":{"thought":"x","thoughtNumber":1,"totalThoughts":1,"nextThoughtNeeded":false}}}`,
		`not json`,
	}, "\n") + "\n"

	var out lockedBuffer
	tr := NewStdioTransport(s, strings.NewReader(input), &out)
	require.NoError(t, tr.Serve(context.Background()))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 3, "notifications and blank lines produce no output")

	var first, second, third rpcReply
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &second))
	require.NoError(t, json.Unmarshal([]byte(lines[2]), &third))

	assert.JSONEq(t, `1`, string(first.ID))
	assert.JSONEq(t, `2`, string(second.ID))
	require.NotNil(t, third.Error)
	assert.Equal(t, CodeParseError, third.Error.Code)
	assert.JSONEq(t, `null`, string(third.ID))

	assert.True(t, s.Initialized())
	assert.Equal(t, 1, p.HistoryLength())
}

func TestStdioTransportStopsOnCancel(t *testing.T) {
	s, _ := newTestServer(t)

	pr, pw := io.Pipe()
	outR, outW := io.Pipe()
	tr := NewStdioTransport(s, pr, outW)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- tr.Serve(ctx) }()

	_, err := io.WriteString(pw, `{"jsonrpc":"2.0","id":7,"method":"ping"}`+"\n")
	require.NoError(t, err)

	reader := bufio.NewReader(outR)
	line, err := reader.ReadString('\n')
	require.NoError(t, err)
	assert.Contains(t, line, `"id":7`)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}

	// Unblock the reader goroutine so nothing leaks.
	require.NoError(t, pw.Close())
	require.NoError(t, outW.Close())
}

func TestStdioTransportOversizedLine(t *testing.T) {
	s, _ := newTestServer(t)

	huge := `{"jsonrpc":"2.0","id":1,"method":"ping","params":{"pad":"` + strings.Repeat("x", maxMessageSize) + `"}}` + "\n"
	var out lockedBuffer
	tr := NewStdioTransport(s, strings.NewReader(huge), &out)

	err := tr.Serve(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "stdio read failed")
}
