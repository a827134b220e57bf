package mcp

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPTransport(t *testing.T) {
	s, p := newTestServer(t)
	router := NewRouter(s, NewHTTPTransport(s, "/mcp"), RouterOptions{MetricsPath: "/metrics"})

	post := func(body string) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/mcp", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		router.ServeHTTP(w, req)
		return w
	}

	t.Run("request gets inline reply", func(t *testing.T) {
		w := post(`{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"sequential_thinking","arguments":{"thought":"x","thoughtNumber":1,"totalThoughts":1,"nextThoughtNeeded":false}}}`)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

		var r rpcReply
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &r))
		require.Nil(t, r.Error)
		assert.Equal(t, 1, p.HistoryLength())
	})

	t.Run("notification is accepted without body", func(t *testing.T) {
		w := post(`{"jsonrpc":"2.0","method":"notifications/initialized"}`)
		assert.Equal(t, http.StatusAccepted, w.Code)
		assert.Empty(t, w.Body.String())
	})

	t.Run("parse error is a json-rpc error", func(t *testing.T) {
		w := post(`{`)
		require.Equal(t, http.StatusOK, w.Code)
		var r rpcReply
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &r))
		require.NotNil(t, r.Error)
		assert.Equal(t, CodeParseError, r.Error.Code)
	})

	t.Run("health", func(t *testing.T) {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
		require.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"status":"ok","name":"seqthink","version":"test","initialized":true}`, w.Body.String())
	})

	t.Run("metrics", func(t *testing.T) {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), "seqthink_history_length")
	})
}

func TestRouterWithoutMetrics(t *testing.T) {
	s, _ := newTestServer(t)
	router := NewRouter(s, NewHTTPTransport(s, "/mcp"), RouterOptions{})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestServeShutsDownOnCancel(t *testing.T) {
	s, _ := newTestServer(t)
	router := NewRouter(s, NewHTTPTransport(s, "/mcp"), RouterOptions{})

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	hookRan := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- Serve(ctx, ln, router, time.Second, func() { close(hookRan) })
	}()

	client := &http.Client{Transport: &http.Transport{DisableKeepAlives: true}}
	resp, err := client.Get("http://" + ln.Addr().String() + "/health")
	require.NoError(t, err)
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
	select {
	case <-hookRan:
	case <-time.After(time.Second):
		t.Fatal("shutdown hook did not run")
	}
}
