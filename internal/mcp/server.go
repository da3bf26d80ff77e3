// Package mcp exposes capability search to agent runtimes over the Model
// Context Protocol.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	errors "github.com/Laisky/errors/v2"
	logSDK "github.com/Laisky/go-utils/v6/log"
	"github.com/Laisky/zap"
	mcp "github.com/mark3labs/mcp-go/mcp"
	srv "github.com/mark3labs/mcp-go/server"

	"github.com/Laisky/capability-search/internal/web/search/dto"
	"github.com/Laisky/capability-search/internal/web/search/service"
	"github.com/Laisky/capability-search/library/log"
)

// Server wraps the MCP server state for the HTTP transport.
type Server struct {
	handler http.Handler
	logger  logSDK.Logger
	svc     *service.Service
}

// NewServer constructs a remote MCP server exposing the search pipeline as a
// single tool under one HTTP handler.
func NewServer(svc *service.Service, logger logSDK.Logger) (*Server, error) {
	if svc == nil {
		return nil, errors.New("search service is required")
	}
	if logger == nil {
		logger = log.Logger
	}

	mcpServer := srv.NewMCPServer(
		"capability-search",
		"1.0.0",
		srv.WithToolCapabilities(true),
		srv.WithInstructions("Use the search_capabilities tool to find tools, prompts and resources matching a natural-language task description."),
		srv.WithRecovery(),
	)

	streamable := srv.NewStreamableHTTPServer(mcpServer)

	s := &Server{
		handler: streamable,
		logger:  logger.Named("mcp"),
		svc:     svc,
	}

	tool := mcp.NewTool(
		"search_capabilities",
		mcp.WithDescription("Semantic search over the capability catalog. Runs hierarchical skill-then-item retrieval and returns matched items with scores and schemas."),
		mcp.WithString(
			"query",
			mcp.Required(),
			mcp.Description("Plain text description of the task to find capabilities for."),
		),
		mcp.WithString(
			"strategy",
			mcp.Description("Either \"hierarchical\" (default) or \"direct\"."),
		),
		mcp.WithString(
			"item_type",
			mcp.Description("Optional filter: tool, prompt or resource."),
		),
		mcp.WithNumber(
			"limit",
			mcp.Description("Maximum number of items to return."),
		),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithIdempotentHintAnnotation(true),
	)

	mcpServer.AddTool(tool, s.handleSearchCapabilities)

	return s, nil
}

// Handler returns the HTTP handler that should be mounted to serve MCP traffic.
func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) handleSearchCapabilities(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return mcp.NewToolResultError("query cannot be empty"), nil
	}

	searchReq := &dto.SearchRequest{
		Query:    query,
		Strategy: req.GetString("strategy", ""),
		ItemType: req.GetString("item_type", ""),
	}
	if limit := req.GetInt("limit", 0); limit > 0 {
		searchReq.Limit = &limit
	}

	resp, err := s.svc.Search(ctx, searchReq)
	if err != nil {
		if errors.Is(err, dto.ErrInvalidRequest) {
			return mcp.NewToolResultError(err.Error()), nil
		}
		s.logger.Error("search_capabilities failed", zap.Error(err), zap.String("query", query))
		return mcp.NewToolResultError(fmt.Sprintf("search failed: %v", err)), nil
	}

	encoded, err := json.Marshal(resp)
	if err != nil {
		return nil, errors.Wrap(err, "marshal search response")
	}

	return mcp.NewToolResultText(string(encoded)), nil
}
