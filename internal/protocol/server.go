// Package protocol exposes the query engine over a stdio
// JSON-object-per-message surface, one tool per query method, with
// the freshness guard invoked on admission and the encoder selected
// per request (toon or json; a "text" request is rendered in the same
// compact notation as toon).
package protocol

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/standardbeagle/semidx/internal/encode"
	"github.com/standardbeagle/semidx/internal/errs"
	"github.com/standardbeagle/semidx/internal/fresh"
	"github.com/standardbeagle/semidx/internal/query"
)

const serverName = "semidx"
const serverVersion = "0.1.0"

// Server binds the engine and guard to an MCP server instance.
type Server struct {
	engine *query.Engine
	guard  *fresh.Guard
	mcp    *mcp.Server
}

// New builds the adapter and registers every method.
func New(engine *query.Engine, guard *fresh.Guard) *Server {
	s := &Server{
		engine: engine,
		guard:  guard,
		mcp: mcp.NewServer(&mcp.Implementation{
			Name:    serverName,
			Version: serverVersion,
		}, nil),
	}
	s.registerTools()
	return s
}

// Run serves requests over stdio until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	return s.mcp.Run(ctx, &mcp.StdioTransport{})
}

// formatParams is embedded in every request's parameter struct.
type formatParams struct {
	Format string `json:"format,omitempty"` // toon (default) | json; text renders as toon
}

// respond renders a typed result in the requested encoding, appending
// the guard's refresh note when a reindex ran.
func respond(kind, format string, v any, note *fresh.Note) (*mcp.CallToolResult, error) {
	if note != nil && note.Status == "fresh" {
		note = nil
	}
	switch format {
	case "json":
		envelope := map[string]any{"_type": kind, "result": v}
		if note != nil {
			envelope["refreshed"] = note
		}
		data, err := json.Marshal(envelope)
		if err != nil {
			return nil, err
		}
		return textResult(string(data)), nil
	default:
		rec := encode.RecordOf(kind, v)
		if note != nil {
			rec.Add("refreshed.status", note.Status)
			rec.Add("refreshed.files_updated", int64(note.FilesUpdated))
			rec.Add("refreshed.duration_ms", note.DurationMs)
		}
		return textResult(encode.Format(rec)), nil
	}
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{Content: []mcp.Content{&mcp.TextContent{Text: text}}}
}

// failure maps a typed error to the protocol error payload; the result
// carries IsError so clients can branch without parsing.
func failure(err error) (*mcp.CallToolResult, error) {
	rec := encode.Typed("error")
	var typed *errs.Error
	if errors.As(err, &typed) {
		rec.Add("code", string(typed.Kind))
		rec.Add("message", typed.Message)
		if typed.Hint != "" {
			rec.Add("hint", typed.Hint)
		}
		if typed.Path != "" {
			rec.Add("path", typed.Path)
		}
	} else {
		rec.Add("code", "internal")
		rec.Add("message", err.Error())
	}
	res := textResult(encode.Format(rec))
	res.IsError = true
	return res, nil
}

func unmarshalArgs(req *mcp.CallToolRequest, v any) error {
	if len(req.Params.Arguments) == 0 {
		return nil
	}
	if err := json.Unmarshal(req.Params.Arguments, v); err != nil {
		return fmt.Errorf("protocol: invalid parameters: %w", err)
	}
	return nil
}

func objectSchema(props map[string]*jsonschema.Schema) *jsonschema.Schema {
	if props == nil {
		props = map[string]*jsonschema.Schema{}
	}
	props["format"] = &jsonschema.Schema{Type: "string", Description: "Response encoding: toon (default) or json; text renders as toon"}
	return &jsonschema.Schema{Type: "object", Properties: props}
}

func str(desc string) *jsonschema.Schema  { return &jsonschema.Schema{Type: "string", Description: desc} }
func num(desc string) *jsonschema.Schema  { return &jsonschema.Schema{Type: "integer", Description: desc} }
func flag(desc string) *jsonschema.Schema { return &jsonschema.Schema{Type: "boolean", Description: desc} }
