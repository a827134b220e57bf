package mcp

import (
	"io"
	"net/http"

	"seqthink/internal/logging"

	"github.com/gin-gonic/gin"
)

// HTTPTransport serves MCP as plain request/response over POST: each
// request body is one JSON-RPC message and the reply is the response body.
type HTTPTransport struct {
	server *Server
	path   string
}

// NewHTTPTransport creates an HTTP transport mounted at path.
func NewHTTPTransport(server *Server, path string) *HTTPTransport {
	return &HTTPTransport{server: server, path: path}
}

// Register mounts the endpoint on router.
func (t *HTTPTransport) Register(router gin.IRoutes) {
	router.POST(t.path, t.handle)
}

func (t *HTTPTransport) handle(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxMessageSize+1))
	if err != nil {
		c.String(http.StatusBadRequest, "Could not read message")
		return
	}
	if len(body) > maxMessageSize {
		c.String(http.StatusRequestEntityTooLarge, "Message too large")
		return
	}

	reply := t.server.HandleMessage(c.Request.Context(), body)
	if reply == nil {
		c.Status(http.StatusAccepted)
		return
	}

	logging.TransportDebug("HTTP %s: %d bytes in, %d bytes out", t.path, len(body), len(reply))
	c.Data(http.StatusOK, "application/json", reply)
}
