package mcp

import (
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"seqthink/internal/logging"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// sessionBuffer is how many replies may queue for a slow stream.
const sessionBuffer = 32

// sseSession is one connected event stream.
type sseSession struct {
	id      string
	replies chan []byte
	done    chan struct{}
	once    sync.Once
}

func (s *sseSession) close() {
	s.once.Do(func() { close(s.done) })
}

// SSETransport serves MCP over a server-sent event stream paired with a
// POST endpoint. A client opens the stream, receives an endpoint event
// naming its message URL, then posts requests there; replies arrive on
// the stream as message events.
type SSETransport struct {
	server      *Server
	ssePath     string
	messagePath string
	keepAlive   time.Duration

	mu       sync.RWMutex
	sessions map[string]*sseSession
	closed   bool
}

// NewSSETransport creates an SSE transport. keepAlive <= 0 disables pings.
func NewSSETransport(server *Server, ssePath, messagePath string, keepAlive time.Duration) *SSETransport {
	return &SSETransport{
		server:      server,
		ssePath:     ssePath,
		messagePath: messagePath,
		keepAlive:   keepAlive,
		sessions:    make(map[string]*sseSession),
	}
}

// Register mounts the stream and message endpoints on router.
func (t *SSETransport) Register(router gin.IRoutes) {
	router.GET(t.ssePath, t.handleStream)
	router.POST(t.messagePath, t.handleMessage)
}

// SessionCount returns the number of open streams.
func (t *SSETransport) SessionCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.sessions)
}

// Close ends every open stream and refuses new ones. It is registered as
// the HTTP server's shutdown hook so long-lived streams do not hold up
// graceful shutdown.
func (t *SSETransport) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.closed = true
	for id, s := range t.sessions {
		s.close()
		delete(t.sessions, id)
	}
}

func (t *SSETransport) openSession() (*sseSession, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil, false
	}
	s := &sseSession{
		id:      uuid.NewString(),
		replies: make(chan []byte, sessionBuffer),
		done:    make(chan struct{}),
	}
	t.sessions[s.id] = s
	return s, true
}

func (t *SSETransport) closeSession(s *sseSession) {
	t.mu.Lock()
	delete(t.sessions, s.id)
	t.mu.Unlock()
	s.close()
}

func (t *SSETransport) session(id string) *sseSession {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.sessions[id]
}

// setSSEHeaders configures headers for an event stream response.
func setSSEHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
}

func writeEvent(w http.ResponseWriter, event string, data []byte) error {
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data); err != nil {
		return err
	}
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
	return nil
}

func (t *SSETransport) handleStream(c *gin.Context) {
	log := logging.Get(logging.CategoryTransport)

	if _, ok := c.Writer.(http.Flusher); !ok {
		c.String(http.StatusInternalServerError, "Streaming not supported")
		return
	}

	s, ok := t.openSession()
	if !ok {
		c.String(http.StatusServiceUnavailable, "Server shutting down")
		return
	}
	defer t.closeSession(s)

	setSSEHeaders(c.Writer)
	c.Status(http.StatusOK)

	endpoint := fmt.Sprintf("%s?session_id=%s", t.messagePath, s.id)
	if err := writeEvent(c.Writer, "endpoint", []byte(endpoint)); err != nil {
		log.Warn("SSE session %s: failed to send endpoint: %v", s.id, err)
		return
	}
	log.Info("SSE session %s opened from %s", s.id, c.ClientIP())

	var ping <-chan time.Time
	if t.keepAlive > 0 {
		ticker := time.NewTicker(t.keepAlive)
		defer ticker.Stop()
		ping = ticker.C
	}

	ctx := c.Request.Context()
	for {
		select {
		case <-ctx.Done():
			log.Info("SSE session %s closed by client", s.id)
			return

		case <-s.done:
			log.Info("SSE session %s closed by server", s.id)
			return

		case reply := <-s.replies:
			if err := writeEvent(c.Writer, "message", reply); err != nil {
				log.Warn("SSE session %s: write failed: %v", s.id, err)
				return
			}

		case <-ping:
			if _, err := io.WriteString(c.Writer, ": ping\n\n"); err != nil {
				return
			}
			c.Writer.Flush()
		}
	}
}

func (t *SSETransport) handleMessage(c *gin.Context) {
	log := logging.Get(logging.CategoryTransport)

	id := c.Query("session_id")
	if id == "" {
		c.String(http.StatusBadRequest, "session_id is required")
		return
	}
	if _, err := uuid.Parse(id); err != nil {
		c.String(http.StatusBadRequest, "Invalid session ID")
		return
	}
	s := t.session(id)
	if s == nil {
		c.String(http.StatusNotFound, "Could not find session")
		return
	}

	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxMessageSize+1))
	if err != nil {
		c.String(http.StatusBadRequest, "Could not read message")
		return
	}
	if len(body) > maxMessageSize {
		c.String(http.StatusRequestEntityTooLarge, "Message too large")
		return
	}
	if strings.TrimSpace(string(body)) == "" {
		c.String(http.StatusBadRequest, "Could not parse message")
		return
	}

	reply := t.server.HandleMessage(c.Request.Context(), body)
	if reply != nil {
		select {
		case s.replies <- reply:
		case <-s.done:
			c.String(http.StatusGone, "Session closed")
			return
		case <-c.Request.Context().Done():
			return
		}
	}

	log.Debug("SSE session %s: accepted %d bytes", s.id, len(body))
	c.String(http.StatusAccepted, "Accepted")
}
