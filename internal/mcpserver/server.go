package mcpserver

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/threatlens/threatlens/internal/audit"
	"github.com/threatlens/threatlens/internal/engine"
	"github.com/threatlens/threatlens/internal/metrics"
	"github.com/threatlens/threatlens/internal/store"
	"github.com/threatlens/threatlens/pkg/threat"
)

// Config holds the MCP server's dependencies. Engine is required;
// Store and Audit are optional.
type Config struct {
	Engine  *engine.Engine
	Store   *store.Store
	Audit   *audit.Logger
	Version string

	// Stderr is where diagnostics go. Defaults to os.Stderr; stdout is
	// reserved for the protocol.
	Stderr io.Writer
}

var nullID = json.RawMessage("null")

// Server is an MCP stdio server exposing the analyze tools.
type Server struct {
	cfg    Config
	stderr io.Writer
}

// New creates an MCP server.
func New(cfg Config) *Server {
	stderr := cfg.Stderr
	if stderr == nil {
		stderr = os.Stderr
	}
	if cfg.Version == "" {
		cfg.Version = "dev"
	}
	return &Server{cfg: cfg, stderr: stderr}
}

// RunStdio serves the MCP protocol on the process stdin/stdout.
func (s *Server) RunStdio(ctx context.Context) error {
	return s.Run(ctx, os.Stdin, os.Stdout)
}

// Run reads newline-delimited JSON-RPC messages from r and writes
// responses to w, until EOF or ctx cancellation.
func (s *Server) Run(ctx context.Context, r io.Reader, w io.Writer) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 1024*1024), 10*1024*1024) // up to 10MB per message

	for scanner.Scan() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var msg Message
		if err := json.Unmarshal(line, &msg); err != nil {
			// JSON-RPC 2.0 requires "id": null when the request id
			// could not be read.
			s.writeError(w, &nullID, RPCParseError, "parse error")
			continue
		}

		// Notifications carry no id and get no response.
		if msg.ID == nil {
			continue
		}

		s.dispatch(ctx, w, &msg)
	}
	return scanner.Err()
}

func (s *Server) dispatch(ctx context.Context, w io.Writer, msg *Message) {
	switch msg.Method {
	case MethodInitialize:
		s.writeResult(w, msg.ID, InitializeResult{
			ProtocolVersion: ProtocolVersion,
			Capabilities:    map[string]any{"tools": map[string]any{}},
			ServerInfo:      ServerInfo{Name: "threatlens", Version: s.cfg.Version},
		})
	case MethodPing:
		s.writeResult(w, msg.ID, map[string]any{})
	case MethodToolsList:
		s.writeResult(w, msg.ID, ListToolsResult{Tools: toolDefinitions()})
	case MethodToolsCall:
		s.handleToolCall(ctx, w, msg)
	default:
		s.writeError(w, msg.ID, RPCMethodNotFound, fmt.Sprintf("method %q not found", msg.Method))
	}
}

func (s *Server) handleToolCall(ctx context.Context, w io.Writer, msg *Message) {
	var params CallToolParams
	if err := json.Unmarshal(msg.Params, &params); err != nil {
		s.writeError(w, msg.ID, RPCInvalidParams, "invalid tools/call params")
		return
	}

	switch params.Name {
	case "analyze_prompt":
		s.toolAnalyzePrompt(ctx, w, msg.ID, params.Arguments)
	case "batch_analyze":
		s.toolBatchAnalyze(ctx, w, msg.ID, params.Arguments)
	case "get_threat_statistics":
		s.toolStatistics(w, msg.ID)
	default:
		s.writeError(w, msg.ID, RPCInvalidParams, fmt.Sprintf("unknown tool %q", params.Name))
	}
}

func (s *Server) toolAnalyzePrompt(_ context.Context, w io.Writer, id *json.RawMessage, args map[string]interface{}) {
	text, _ := args["prompt"].(string)
	result, err := s.analyze(text)
	if err != nil {
		s.writeToolError(w, id, err.Error())
		return
	}
	s.writeToolJSON(w, id, result, result.Action == threat.ActionBlock)
}

func (s *Server) toolBatchAnalyze(_ context.Context, w io.Writer, id *json.RawMessage, args map[string]interface{}) {
	rawList, ok := args["prompts"].([]interface{})
	if !ok || len(rawList) == 0 {
		s.writeToolError(w, id, "prompts must be a non-empty array of strings")
		return
	}

	results := make([]*threat.AnalysisResult, 0, len(rawList))
	anyBlocked := false
	for i, raw := range rawList {
		text, ok := raw.(string)
		if !ok {
			s.writeToolError(w, id, fmt.Sprintf("prompts[%d] is not a string", i))
			return
		}
		result, err := s.analyze(text)
		if err != nil {
			s.writeToolError(w, id, fmt.Sprintf("prompts[%d]: %v", i, err))
			return
		}
		if result.Action == threat.ActionBlock {
			anyBlocked = true
		}
		results = append(results, result)
	}
	s.writeToolJSON(w, id, map[string]any{"results": results}, anyBlocked)
}

func (s *Server) toolStatistics(w io.Writer, id *json.RawMessage) {
	var stats *threat.Statistics
	if s.cfg.Store != nil {
		var err error
		stats, err = s.cfg.Store.Stats(20)
		if err != nil {
			s.writeToolError(w, id, err.Error())
			return
		}
	} else {
		stats = &threat.Statistics{
			ByCategory: map[string]int64{},
			BySeverity: map[string]int64{},
			ByAction:   map[string]int64{},
		}
	}
	s.writeToolJSON(w, id, stats, false)
}

func (s *Server) analyze(text string) (*threat.AnalysisResult, error) {
	result, err := s.cfg.Engine.Analyze(text)
	if err != nil {
		return nil, err
	}
	if s.cfg.Store != nil {
		_ = s.cfg.Store.Record("mcp", text, result)
	}
	if s.cfg.Audit != nil {
		_ = s.cfg.Audit.LogResult("mcp", text, result)
	}
	metrics.ObserveResult("mcp", string(result.Action),
		float64(result.DurationMs)/1000.0, result.IsThreat, result.ThreatTypes)
	return result, nil
}

// --- response plumbing ---

func (s *Server) writeResult(w io.Writer, id *json.RawMessage, result any) {
	data, err := json.Marshal(result)
	if err != nil {
		s.writeError(w, id, RPCInternalError, "failed to encode result")
		return
	}
	s.writeLine(w, Message{JSONRPC: "2.0", ID: id, Result: data})
}

func (s *Server) writeError(w io.Writer, id *json.RawMessage, code int, message string) {
	s.writeLine(w, Message{JSONRPC: "2.0", ID: id, Error: &RPCError{Code: code, Message: message}})
}

// writeToolJSON wraps a payload as a text content item. isError marks
// blocked verdicts so agents treat them as failures.
func (s *Server) writeToolJSON(w io.Writer, id *json.RawMessage, payload any, isError bool) {
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		s.writeError(w, id, RPCInternalError, "failed to encode tool result")
		return
	}
	s.writeResult(w, id, CallToolResult{
		Content: []ContentItem{{Type: "text", Text: string(data)}},
		IsError: isError,
	})
}

func (s *Server) writeToolError(w io.Writer, id *json.RawMessage, message string) {
	s.writeResult(w, id, CallToolResult{
		Content: []ContentItem{{Type: "text", Text: message}},
		IsError: true,
	})
}

func (s *Server) writeLine(w io.Writer, msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		_, _ = fmt.Fprintf(s.stderr, "[threatlens mcp] failed to encode response: %v\n", err)
		return
	}
	if _, err := w.Write(append(data, '\n')); err != nil {
		_, _ = fmt.Fprintf(s.stderr, "[threatlens mcp] write failed: %v\n", err)
	}
}

// toolDefinitions describes the tools this server exposes.
func toolDefinitions() []ToolDefinition {
	return []ToolDefinition{
		{
			Name:        "analyze_prompt",
			Description: "Analyze a prompt or LLM response for prompt injection, jailbreaks, and data leakage. Returns a risk score (0-100), threat types, and a policy action.",
			InputSchema: schema(`{
				"type": "object",
				"properties": {
					"prompt": {"type": "string", "description": "The text to analyze"}
				},
				"required": ["prompt"]
			}`),
		},
		{
			Name:        "batch_analyze",
			Description: "Analyze a list of texts and return one result per item.",
			InputSchema: schema(`{
				"type": "object",
				"properties": {
					"prompts": {"type": "array", "items": {"type": "string"}, "description": "Texts to analyze"}
				},
				"required": ["prompts"]
			}`),
		},
		{
			Name:        "get_threat_statistics",
			Description: "Return aggregated detection statistics for this ThreatLens instance.",
			InputSchema: schema(`{"type": "object", "properties": {}}`),
		},
	}
}

// schema compacts an inline JSON schema literal.
func schema(raw string) json.RawMessage {
	var buf bytes.Buffer
	if err := json.Compact(&buf, []byte(raw)); err != nil {
		return json.RawMessage(raw)
	}
	return json.RawMessage(buf.Bytes())
}
