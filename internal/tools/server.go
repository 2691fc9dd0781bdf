// Package tools exposes the caller-facing MCP surface: ntfy_enable,
// ntfy_disable, ntfy_status and ntfy_publish over stdio.
//
// This layer owns framing, schema validation and outcome codes; all
// publish semantics live in the dispatch package.
package tools

import (
	"context"
	"errors"
	"io"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/teh-hippo/tiny-ntfy-mcp/internal/config"
	"github.com/teh-hippo/tiny-ntfy-mcp/internal/dispatch"
	"github.com/teh-hippo/tiny-ntfy-mcp/internal/gate"
	"github.com/teh-hippo/tiny-ntfy-mcp/internal/sequence"
	logx "github.com/teh-hippo/tiny-ntfy-mcp/pkg/logx"
)

const (
	serverName = "tiny-ntfy-mcp"
	// Version is the advertised server version.
	Version = "0.1.0"

	instructions = "Use ntfy_enable() once, then call ntfy_publish(...) for progress/completion updates."
)

// Machine-readable outcome codes carried in structured results, so callers
// can tell invalid input apart from gate suppression and queue pressure.
const (
	codeInvalidParams = "invalid_params"
	codeSuppressed    = "disabled"
	codeQueueFull     = "queue_full"
	codeStopped       = "stopped"
)

// Server wires the MCP tool handlers to the publish core.
type Server struct {
	cfg  *config.Snapshot
	gate *gate.Gate
	reg  *sequence.Registry
	disp *dispatch.Service
	log  logx.Logger

	emptySchema   *jsonschema.Schema
	publishSchema *jsonschema.Schema
}

func New(cfg *config.Snapshot, g *gate.Gate, reg *sequence.Registry, disp *dispatch.Service, log logx.Logger) (*Server, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	empty, err := compileSchema("empty", emptyObjectSchema)
	if err != nil {
		return nil, err
	}
	publish, err := compileSchema("publish", publishSchema)
	if err != nil {
		return nil, err
	}
	return &Server{
		cfg:           cfg,
		gate:          g,
		reg:           reg,
		disp:          disp,
		log:           log,
		emptySchema:   empty,
		publishSchema: publish,
	}, nil
}

// Serve runs the MCP stdio loop until ctx is cancelled or stdin closes.
func (s *Server) Serve(ctx context.Context, in io.Reader, out io.Writer) error {
	m := server.NewMCPServer(serverName, Version, server.WithInstructions(instructions))

	m.AddTool(
		mcp.NewToolWithRawSchema("ntfy_enable", "Enable notifications for this process.", []byte(emptyObjectSchema)),
		s.withValidation(s.emptySchema, s.handleEnable),
	)
	m.AddTool(
		mcp.NewToolWithRawSchema("ntfy_disable", "Disable notifications for this process.", []byte(emptyObjectSchema)),
		s.withValidation(s.emptySchema, s.handleDisable),
	)
	m.AddTool(
		mcp.NewToolWithRawSchema("ntfy_status", "Show ntfy configuration and delivery stats.", []byte(emptyObjectSchema)),
		s.withValidation(s.emptySchema, s.handleStatus),
	)
	m.AddTool(
		mcp.NewToolWithRawSchema("ntfy_publish", "Publish a progress/completion notification (fast ACK; delivery is background).", []byte(publishSchema)),
		s.withValidation(s.publishSchema, s.handlePublish),
	)

	std := server.NewStdioServer(m)
	return std.Listen(ctx, in, out)
}

type handlerFunc func(ctx context.Context, args map[string]any) (*mcp.CallToolResult, error)

// withValidation rejects any arguments failing the tool's schema before the
// handler (and thus any side effect) runs.
func (s *Server) withValidation(schema *jsonschema.Schema, h handlerFunc) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := req.GetArguments()
		if args == nil {
			args = map[string]any{}
		}
		if err := schema.Validate(anyMap(args)); err != nil {
			s.log.Debug("tool arguments rejected", logx.String("tool", req.Params.Name), logx.Err(err))
			return errorResult(codeInvalidParams, "ntfy: invalid params: "+err.Error()), nil
		}
		return h(ctx, args)
	}
}

func (s *Server) handleEnable(context.Context, map[string]any) (*mcp.CallToolResult, error) {
	return s.setEnabled(true), nil
}

func (s *Server) handleDisable(context.Context, map[string]any) (*mcp.CallToolResult, error) {
	return s.setEnabled(false), nil
}

func (s *Server) setEnabled(enabled bool) *mcp.CallToolResult {
	if !s.gate.SetEnabled(enabled) {
		return textResult("ntfy: state pinned by "+config.KeyEnabled+" override; request ignored", map[string]any{
			"enabled":  s.gate.Enabled(),
			"override": true,
		})
	}
	word := "disabled"
	if enabled {
		word = "enabled"
	}
	return textResult("ntfy: "+word, map[string]any{"enabled": enabled})
}

func (s *Server) handleStatus(context.Context, map[string]any) (*mcp.CallToolResult, error) {
	enabled := s.gate.Enabled()
	st := s.disp.Stats()

	structured := map[string]any{
		"enabled":          enabled,
		"override":         s.gate.Overridden(),
		"configured":       s.cfg.Topic != "",
		"backend":          "ntfy",
		"ntfyUrl":          s.cfg.URL,
		"ntfyTopic":        config.Redact(s.cfg.Topic),
		"timeoutSec":       s.cfg.Timeout.Seconds(),
		"dryRun":           s.cfg.DryRun,
		"auth":             s.cfg.AuthMode(),
		"sequenceIdForced": s.reg.Forced(),
		"sequenceIdCount":  s.reg.Len(),
		"queueSize":        st.QueueSize,
		"sentOk":           st.SentOK,
		"sentErr":          st.SentErr,
		"dryRunSends":      st.DryRun,
		"dropped":          st.Dropped,
	}
	if !st.LastSuccessAt.IsZero() {
		structured["lastSuccessAt"] = st.LastSuccessAt
	}
	if !st.LastErrorAt.IsZero() {
		structured["lastErrorAt"] = st.LastErrorAt
		structured["lastError"] = st.LastError
	}

	word := "disabled"
	if enabled {
		word = "enabled"
	}
	return textResult("ntfy: "+word+"; backend=ntfy", structured), nil
}

func (s *Server) handlePublish(_ context.Context, args map[string]any) (*mcp.CallToolResult, error) {
	ack, err := s.disp.Publish(args)
	switch {
	case errors.Is(err, dispatch.ErrInvalidParams):
		return errorResult(codeInvalidParams, "ntfy: "+err.Error()), nil
	case errors.Is(err, dispatch.ErrQueueFull):
		return errorResult(codeQueueFull, "ntfy: queue full (dropped)"), nil
	case errors.Is(err, dispatch.ErrStopped):
		return errorResult(codeStopped, "ntfy: shutting down (dropped)"), nil
	case err != nil:
		return errorResult(codeStopped, "ntfy: "+err.Error()), nil
	}

	if ack.Suppressed {
		return textResult("ntfy: disabled (dropped)", map[string]any{
			"enabled":  false,
			"enqueued": false,
			"reason":   codeSuppressed,
		}), nil
	}
	return textResult("ntfy: enqueued", ack), nil
}

func textResult(text string, structured any) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content:           []mcp.Content{mcp.NewTextContent(text)},
		StructuredContent: structured,
	}
}

func errorResult(code, text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content:           []mcp.Content{mcp.NewTextContent(text)},
		StructuredContent: map[string]any{"code": code, "error": text},
		IsError:           true,
	}
}

// anyMap forces a plain map[string]any copy so the validator sees only
// JSON-native types.
func anyMap(m map[string]any) any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
