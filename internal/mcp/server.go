package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"

	"seqthink/internal/logging"
	"seqthink/internal/tools"
)

// Server dispatches JSON-RPC messages to registered tools.
// HandleMessage is safe for concurrent use.
type Server struct {
	info     ServerInfo
	registry *tools.Registry

	initialized atomic.Bool
}

// NewServer creates a server exposing the tools in registry.
func NewServer(name, version string, registry *tools.Registry) *Server {
	if registry == nil {
		registry = tools.NewRegistry()
	}
	return &Server{
		info:     ServerInfo{Name: name, Version: version},
		registry: registry,
	}
}

// Info returns the server name and version.
func (s *Server) Info() ServerInfo {
	return s.info
}

// Initialized reports whether a client has sent notifications/initialized.
func (s *Server) Initialized() bool {
	return s.initialized.Load()
}

// HandleMessage processes one raw JSON-RPC message and returns the encoded
// reply, or nil when the message was a notification.
func (s *Server) HandleMessage(ctx context.Context, data []byte) []byte {
	resp := s.handle(ctx, data)
	if resp == nil {
		return nil
	}
	out, err := json.Marshal(resp)
	if err != nil {
		logging.Get(logging.CategoryTransport).Error("Failed to encode response: %v", err)
		out, _ = json.Marshal(errorResponse(resp.ID, CodeInternalError, "failed to encode response"))
	}
	return out
}

func (s *Server) handle(ctx context.Context, data []byte) (resp *mcpResponse) {
	log := logging.Get(logging.CategoryTransport)

	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		return errorResponse(nil, CodeInvalidRequest, "batch requests are not supported")
	}

	var req mcpRequest
	if err := json.Unmarshal(trimmed, &req); err != nil {
		var syntaxErr *json.SyntaxError
		if errors.As(err, &syntaxErr) || len(trimmed) == 0 {
			return errorResponse(nil, CodeParseError, "Parse error")
		}
		return errorResponse(nil, CodeInvalidRequest, "Invalid Request")
	}
	if req.JSONRPC != "2.0" || req.Method == "" {
		return errorResponse(req.ID, CodeInvalidRequest, "Invalid Request")
	}

	defer func() {
		if r := recover(); r != nil {
			log.Error("Panic handling %s: %v", req.Method, r)
			if req.isNotification() {
				resp = nil
				return
			}
			resp = errorResponse(req.ID, CodeInternalError, fmt.Sprintf("internal error: %v", r))
		}
	}()

	log.Debug("<- %s id=%s", req.Method, string(req.ID))

	result, rpcErr := s.dispatch(ctx, &req)
	if req.isNotification() {
		return nil
	}
	if rpcErr != nil {
		return &mcpResponse{JSONRPC: "2.0", ID: req.ID, Error: rpcErr}
	}
	return &mcpResponse{JSONRPC: "2.0", ID: req.ID, Result: result}
}

func (s *Server) dispatch(ctx context.Context, req *mcpRequest) (any, *mcpError) {
	switch req.Method {
	case "initialize":
		return &InitializeResult{
			ProtocolVersion: ProtocolVersion,
			Capabilities:    Capabilities{Tools: &ToolsCapability{}},
			ServerInfo:      s.info,
		}, nil

	case "notifications/initialized":
		s.initialized.Store(true)
		return nil, nil

	case "notifications/cancelled":
		return nil, nil

	case "ping":
		return struct{}{}, nil

	case "tools/list":
		return s.listTools(), nil

	case "tools/call":
		return s.callTool(ctx, req.Params)

	default:
		return nil, &mcpError{Code: CodeMethodNotFound, Message: fmt.Sprintf("Method not found: %s", req.Method)}
	}
}

func (s *Server) listTools() *ListToolsResult {
	all := s.registry.All()
	out := &ListToolsResult{Tools: make([]ToolDescriptor, 0, len(all))}
	for _, t := range all {
		out.Tools = append(out.Tools, ToolDescriptor{
			Name:        t.Name,
			Description: t.Description,
			InputSchema: t.Schema,
		})
	}
	return out
}

func (s *Server) callTool(ctx context.Context, raw json.RawMessage) (any, *mcpError) {
	var params CallToolParams
	if len(raw) == 0 {
		return nil, &mcpError{Code: CodeInvalidParams, Message: "missing params"}
	}
	if err := json.Unmarshal(raw, &params); err != nil {
		return nil, &mcpError{Code: CodeInvalidParams, Message: fmt.Sprintf("invalid params: %v", err)}
	}
	if params.Name == "" {
		return nil, &mcpError{Code: CodeInvalidParams, Message: "missing tool name"}
	}

	res, err := s.registry.Execute(ctx, params.Name, params.Arguments)
	if errors.Is(err, tools.ErrToolNotFound) {
		return nil, &mcpError{Code: CodeInvalidParams, Message: fmt.Sprintf("Unknown tool: %s", params.Name)}
	}
	if err != nil {
		logging.Get(logging.CategoryTransport).Error("Tool %s failed: %v", params.Name, err)
		return textResult(fmt.Sprintf("Error executing tool %s: %v", params.Name, err), true), nil
	}
	return textResult(res.Output.Text, res.Output.IsError), nil
}

func errorResponse(id json.RawMessage, code int, msg string) *mcpResponse {
	return &mcpResponse{
		JSONRPC: "2.0",
		ID:      id,
		Error:   &mcpError{Code: code, Message: msg},
	}
}
