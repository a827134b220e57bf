package mcp

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"

	"seqthink/internal/logging"
)

// maxMessageSize bounds a single newline-delimited JSON-RPC message.
const maxMessageSize = 4 * 1024 * 1024

// StdioTransport serves newline-delimited JSON-RPC over a reader/writer
// pair, normally the process's stdin and stdout.
type StdioTransport struct {
	server *Server
	in     io.Reader

	writeMu sync.Mutex
	out     io.Writer
}

// NewStdioTransport creates a stdio transport for server.
func NewStdioTransport(server *Server, in io.Reader, out io.Writer) *StdioTransport {
	return &StdioTransport{
		server: server,
		in:     in,
		out:    out,
	}
}

// Serve reads messages until EOF or ctx is cancelled. Replies are written
// one per line in request order.
func (t *StdioTransport) Serve(ctx context.Context) error {
	log := logging.Get(logging.CategoryTransport)
	logging.Transport("Serving MCP over stdio")

	lines := make(chan []byte)
	readErr := make(chan error, 1)

	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(t.in)
		scanner.Buffer(make([]byte, 0, 64*1024), maxMessageSize)
		for scanner.Scan() {
			line := bytes.TrimSpace(scanner.Bytes())
			if len(line) == 0 {
				continue
			}
			msg := make([]byte, len(line))
			copy(msg, line)
			select {
			case lines <- msg:
			case <-ctx.Done():
				return
			}
		}
		readErr <- scanner.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			log.Debug("Stdio transport stopped: %v", ctx.Err())
			return nil

		case msg, ok := <-lines:
			if !ok {
				var err error
				select {
				case err = <-readErr:
				default:
				}
				if err != nil {
					return fmt.Errorf("stdio read failed: %w", err)
				}
				log.Info("Stdin closed, stopping stdio transport")
				return nil
			}
			if reply := t.server.HandleMessage(ctx, msg); reply != nil {
				if err := t.write(reply); err != nil {
					return fmt.Errorf("stdio write failed: %w", err)
				}
			}
		}
	}
}

func (t *StdioTransport) write(msg []byte) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	if _, err := t.out.Write(append(msg, '\n')); err != nil {
		return err
	}
	logging.TransportDebug("-> %d bytes", len(msg))
	return nil
}
