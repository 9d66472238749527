// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes the curation pipeline for LLM integration via stdio
// transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/laguz/internal/models"
	"github.com/starford/laguz/internal/pipeline"
	"github.com/starford/laguz/internal/store"
)

// Server wraps the MCP server with pipeline tools.
type Server struct {
	mcp  *server.MCPServer
	pipe *pipeline.Pipeline
	db   store.Store
}

// New creates a new MCP server with all pipeline tools registered.
func New(pipe *pipeline.Pipeline, db store.Store) *Server {
	s := &Server{pipe: pipe, db: db}

	s.mcp = server.NewMCPServer(
		"Laguz",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("ingest_candidate",
		mcp.WithDescription("Submit a candidate automation loop for curation. "+
			"The candidate runs the full pipeline and the final decision is returned. "+
			"Read the expected record shape via the get_candidate_contract tool first."),
		mcp.WithString("source_url", mcp.Required(), mcp.Description("URL the candidate was discovered at")),
		mcp.WithString("source_type", mcp.Required(), mcp.Description("Connector family: github, reddit, forum, manual")),
		mcp.WithString("content_type", mcp.Description("Content shape: code_snippet, article, html, discussion")),
		mcp.WithString("raw_content", mcp.Description("Raw text or code content, if available")),
		mcp.WithString("title", mcp.Description("Candidate title")),
	), s.ingestCandidate)

	s.mcp.AddTool(mcp.NewTool("get_decision",
		mcp.WithDescription("Fetch the stored curation decision for a loop id."),
		mcp.WithString("loop_id", mcp.Required(), mcp.Description("Loop identifier")),
	), s.getDecision)

	s.mcp.AddTool(mcp.NewTool("search_loops",
		mcp.WithDescription("List curated loops filtered by category or disposition."),
		mcp.WithString("category", mcp.Description("Taxonomy category filter (e.g. web_scraping)")),
		mcp.WithString("disposition", mcp.Description("Disposition filter: approved, rejected, needs_review")),
	), s.searchLoops)

	s.mcp.AddTool(mcp.NewTool("pipeline_stats",
		mcp.WithDescription("Return disposition counts and category breakdown."),
	), s.pipelineStats)

	s.mcp.AddTool(mcp.NewTool("get_candidate_contract",
		mcp.WithDescription("Returns the canonical candidate record contract. "+
			"Call this before ingesting candidates to ensure correct structure."),
	), s.getCandidateContract)

	// Resource: candidate record contract.
	s.mcp.AddResource(
		mcp.NewResource("laguz://candidate-format", "Candidate Record Contract",
			mcp.WithResourceDescription("Canonical candidate record shape that connectors must submit."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readCandidateContractResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func (s *Server) ingestCandidate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sourceURL, err := req.RequireString("source_url")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	sourceType, err := req.RequireString("source_type")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	cand := models.RawCandidate{
		SourceURL:  sourceURL,
		SourceType: sourceType,
	}
	if v, err := req.RequireString("content_type"); err == nil {
		cand.ContentType = v
	}
	if v, err := req.RequireString("raw_content"); err == nil {
		cand.RawContent = v
	}
	if v, err := req.RequireString("title"); err == nil && v != "" {
		cand.Metadata = map[string]string{"title": v}
	}

	res, err := s.pipe.Ingest(ctx, cand)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out, _ := json.MarshalIndent(res, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) getDecision(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	loopID, err := req.RequireString("loop_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	decision, err := s.db.GetDecision(ctx, loopID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("not found: %s", loopID)), nil
	}
	out, _ := json.MarshalIndent(decision, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) searchLoops(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	filter := store.LoopFilter{Limit: 20}
	if v, err := req.RequireString("category"); err == nil {
		filter.Category = v
	}
	if v, err := req.RequireString("disposition"); err == nil {
		filter.Disposition = v
	}
	loops, total, err := s.db.ListLoops(ctx, filter)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out, _ := json.MarshalIndent(map[string]any{"loops": loops, "total": total}, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) pipelineStats(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	stats, err := s.db.Stats(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out, _ := json.MarshalIndent(stats, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) getCandidateContract(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(candidateContract), nil
}

func (s *Server) readCandidateContractResource(_ context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      req.Params.URI,
			MIMEType: "text/markdown",
			Text:     candidateContract,
		},
	}, nil
}
