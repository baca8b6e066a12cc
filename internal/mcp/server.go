// Package mcp exposes the metrics engine as Model Context Protocol tools
// served over stdio.
package mcp

import (
	"context"

	"eng-metrics/internal/config"
	"eng-metrics/internal/fetcher"
	"eng-metrics/internal/stats"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rs/zerolog/log"
)

// Analyzer is the cache-through metrics engine behind the tools.
type Analyzer interface {
	Points(ctx context.Context, q fetcher.Query) (stats.AggregateResult, error)
	Timing(ctx context.Context, q fetcher.Query) (stats.TimingResult, error)
	Statuses(ctx context.Context, q fetcher.Query) (stats.StatusResult, error)
	CycleTime(ctx context.Context, q fetcher.Query) ([]stats.Violation, error)
	SprintHistory(ctx context.Context, q fetcher.SprintQuery) (stats.SprintHistory, error)
	Dashboard(ctx context.Context, queries []fetcher.Query, force bool) (fetcher.Dashboard, error)
}

// Server holds the state for the MCP server.
type Server struct {
	cfg      *config.AppConfig
	analyzer Analyzer
	server   *sdk.Server
}

// NewServer creates a new MCP server with every tool registered.
func NewServer(cfg *config.AppConfig, analyzer Analyzer, version string) *Server {
	s := &Server{
		cfg:      cfg,
		analyzer: analyzer,
		server:   sdk.NewServer(&sdk.Implementation{Name: "eng-metrics", Version: version}, nil),
	}
	s.registerTools()
	return s
}

// Start runs the server over stdio until the client disconnects or ctx ends.
func (s *Server) Start(ctx context.Context) error {
	log.Info().Msg("MCP server listening on stdio")
	return s.server.Run(ctx, &sdk.StdioTransport{})
}

// Connect serves a single session over t. Used for in-process clients.
func (s *Server) Connect(ctx context.Context, t sdk.Transport) (*sdk.ServerSession, error) {
	return s.server.Connect(ctx, t, nil)
}
