package ingest

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/codexa/kit"
	"github.com/hazyhaar/codexa/manifest"
)

// RegisterMCP registers intake tools on an MCP server.
func (ing *Ingester) RegisterMCP(srv *mcp.Server) {
	ing.registerIngestTool(srv)
	ing.registerExtractTool(srv)
	ing.registerManifestTool(srv)
}

func inputSchema(properties map[string]any, required []string) map[string]any {
	s := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

// --- ingest ---

type mcpIngestReq struct {
	Filename      string `json:"filename"`
	ContentBase64 string `json:"content_base64"`
	Contract      string `json:"contract"`
	UploaderID    string `json:"uploader_id"`
	PIIScrub      bool   `json:"pii_scrub"`
}

func (ing *Ingester) registerIngestTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "codexa_ingest",
		Description: "Ingest a file into the content intake pipeline: dedupe, store, extract, clean, index.",
		InputSchema: inputSchema(map[string]any{
			"filename":       map[string]any{"type": "string", "description": "Original file name with extension"},
			"content_base64": map[string]any{"type": "string", "description": "File content, base64-encoded"},
			"contract":       map[string]any{"type": "string", "description": "Contract key (pretrain_v1, finetune_v1, research_v1)"},
			"uploader_id":    map[string]any{"type": "string", "description": "Uploader identifier"},
			"pii_scrub":      map[string]any{"type": "boolean", "description": "Replace emails, phone numbers and URLs with placeholders"},
		}, []string{"filename", "content_base64", "contract"}),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*mcpIngestReq)
		data, err := base64.StdEncoding.DecodeString(r.ContentBase64)
		if err != nil {
			return nil, fmt.Errorf("decode content: %w", err)
		}
		return ing.Ingest(ctx, r.Filename, data, Options{
			ContractKey: r.Contract,
			UploaderID:  r.UploaderID,
			Clean:       ing.Config.CleanOnUpload,
			PIIScrub:    r.PIIScrub,
		})
	}

	decode := func(req *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		var r mcpIngestReq
		if err := json.Unmarshal(req.Params.Arguments, &r); err != nil {
			return nil, err
		}
		return &kit.MCPDecodeResult{Request: &r}, nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decode)
}

// --- extract ---

type mcpExtractReq struct {
	Filename      string `json:"filename"`
	ContentBase64 string `json:"content_base64"`
}

func (ing *Ingester) registerExtractTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "codexa_extract",
		Description: "Extract plain text from a file without ingesting it.",
		InputSchema: inputSchema(map[string]any{
			"filename":       map[string]any{"type": "string", "description": "File name, used to select the extractor"},
			"content_base64": map[string]any{"type": "string", "description": "File content, base64-encoded"},
		}, []string{"filename", "content_base64"}),
	}

	endpoint := func(_ context.Context, req any) (any, error) {
		r := req.(*mcpExtractReq)
		data, err := base64.StdEncoding.DecodeString(r.ContentBase64)
		if err != nil {
			return nil, fmt.Errorf("decode content: %w", err)
		}
		text, warnings := ing.Pipe.Extract(r.Filename, data)
		return map[string]any{"text": text, "warnings": warnings}, nil
	}

	decode := func(req *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		var r mcpExtractReq
		if err := json.Unmarshal(req.Params.Arguments, &r); err != nil {
			return nil, err
		}
		return &kit.MCPDecodeResult{Request: &r}, nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decode)
}

// --- manifest ---

type mcpManifestReq struct {
	Contract string `json:"contract"`
	Language string `json:"language"`
	Uploader string `json:"uploader"`
}

func (ing *Ingester) registerManifestTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "codexa_manifest",
		Description: "Build a manifest of indexed records matching a filter.",
		InputSchema: inputSchema(map[string]any{
			"contract": map[string]any{"type": "string", "description": "Filter by contract key"},
			"language": map[string]any{"type": "string", "description": "Filter by language"},
			"uploader": map[string]any{"type": "string", "description": "Filter by uploader ID"},
		}, nil),
	}

	endpoint := func(_ context.Context, req any) (any, error) {
		r := req.(*mcpManifestReq)
		index, err := ing.Store.Load()
		if err != nil {
			return nil, fmt.Errorf("load index: %w", err)
		}
		b := manifest.NewBuilder(manifest.WithIDGenerator(ing.NewID), manifest.WithClock(ing.Now))
		return b.Build(index, manifest.Query{
			Contract: r.Contract,
			Language: r.Language,
			Uploader: r.Uploader,
		}), nil
	}

	decode := func(req *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		var r mcpManifestReq
		if err := json.Unmarshal(req.Params.Arguments, &r); err != nil {
			return nil, err
		}
		return &kit.MCPDecodeResult{Request: &r}, nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decode)
}
