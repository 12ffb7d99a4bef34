package server

import (
	"context"
	"log/slog"
	"os"

	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/samber/do"

	"graphmem/app/config"
	"graphmem/app/service/graph"
	"graphmem/app/service/kv"
	"graphmem/app/service/mcptool"
)

// Service is the MCP server over stdio. It only wires tools to the
// underlying services; no graph logic lives here.
type Service struct {
	cfg      *config.Config
	graphSvc *graph.Service
	mcp      *mcpserver.MCPServer
}

func New(di *do.Injector) (*Service, error) {
	cfg := do.MustInvoke[*config.Config](di)

	s := mcpserver.NewMCPServer(
		cfg.Server.Name,
		cfg.Server.Version,
		mcpserver.WithToolCapabilities(true),
		mcpserver.WithRecovery(),
		mcpserver.WithInstructions(serverInstructions()),
	)

	do.MustInvoke[*mcptool.GraphTools](di).Register(s)

	// kv service is provided alongside the graph; force its init here so
	// a broken storage dir fails at startup, not on first tool call
	_ = do.MustInvoke[*kv.Service](di)
	do.MustInvoke[*mcptool.KVTools](di).Register(s)

	return &Service{
		cfg:      cfg,
		graphSvc: do.MustInvoke[*graph.Service](di),
		mcp:      s,
	}, nil
}

// Run serves MCP over stdio until the context is cancelled or stdin
// closes.
func (s *Service) Run(ctx context.Context) error {
	stats, err := s.graphSvc.Stats(ctx)
	if err != nil {
		slog.Warn("Could not collect startup stats", "error", err)
	} else {
		for _, st := range stats {
			slog.Info("Loaded session",
				"session", st.Session,
				"entities", st.Entities,
				"relationships", st.Relationships,
			)
		}
	}

	slog.Info("Serving MCP over stdio",
		"name", s.cfg.Server.Name,
		"version", s.cfg.Server.Version,
	)

	stdio := mcpserver.NewStdioServer(s.mcp)

	return stdio.Listen(ctx, os.Stdin, os.Stdout)
}

func serverInstructions() string {
	return `You have access to a persistent knowledge graph memory.

Entities are named nodes with a type and free-text observations.
Relationships are directed, typed edges between entity names.

- Use create_entities / create_relations to record new knowledge.
- Use add_observations to attach facts to existing entities.
- Use search_nodes for substring search, open_nodes for exact names.
- Pass a session key to keep separate graphs isolated; omit it to use
  the shared global graph.
- kv_set / kv_get hold flat values that do not fit the graph shape.`
}
