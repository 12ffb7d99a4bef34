package mcptool

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/samber/do"

	"graphmem/app/service/graph"
)

// GraphTools exposes the graph engine as MCP tools. Arguments are bound
// into the typed request structs and validated here, before they reach
// the engine. Every tool takes an optional "session" argument selecting
// the isolated graph to operate on; absent means the global graph.
type GraphTools struct {
	svc      *graph.Service
	validate *validator.Validate
}

func NewGraphTools(di *do.Injector) (*GraphTools, error) {
	return &GraphTools{
		svc:      do.MustInvoke[*graph.Service](di),
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}, nil
}

var entityItemSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"name":         map[string]any{"type": "string", "description": "Unique entity name"},
		"entityType":   map[string]any{"type": "string", "description": "Entity type tag"},
		"observations": map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
	},
	"required": []string{"name", "entityType"},
}

var relationshipItemSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"from":             map[string]any{"type": "string", "description": "Source entity name"},
		"to":               map[string]any{"type": "string", "description": "Target entity name"},
		"relationshipType": map[string]any{"type": "string", "description": "Relationship type, active voice"},
	},
	"required": []string{"from", "to", "relationshipType"},
}

func sessionOption() mcp.ToolOption {
	return mcp.WithString("session",
		mcp.Description("Optional session key isolating a separate graph; omit for the global graph"),
	)
}

func (t *GraphTools) Register(s *server.MCPServer) {
	s.AddTool(mcp.NewTool("create_entities",
		mcp.WithDescription("Create new entities in the knowledge graph. Entities whose name already exists are skipped; only the newly created ones are returned."),
		mcp.WithArray("entities", mcp.Required(), mcp.Items(entityItemSchema)),
		sessionOption(),
	), t.handleCreateEntities)

	s.AddTool(mcp.NewTool("create_relations",
		mcp.WithDescription("Create directed relationships between entities. Exact duplicates of stored relationships are skipped; only the newly created ones are returned."),
		mcp.WithArray("relationships", mcp.Required(), mcp.Items(relationshipItemSchema)),
		sessionOption(),
	), t.handleCreateRelationships)

	s.AddTool(mcp.NewTool("add_observations",
		mcp.WithDescription("Append observations to existing entities. Fails if any referenced entity does not exist."),
		mcp.WithArray("observations", mcp.Required(), mcp.Items(map[string]any{
			"type": "object",
			"properties": map[string]any{
				"entityName": map[string]any{"type": "string"},
				"contents":   map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
			},
			"required": []string{"entityName", "contents"},
		})),
		sessionOption(),
	), t.handleAddObservations)

	s.AddTool(mcp.NewTool("delete_entities",
		mcp.WithDescription("Delete entities by name along with every relationship touching them. Unknown names are ignored."),
		mcp.WithArray("entityNames", mcp.Required(), mcp.Items(map[string]any{"type": "string"})),
		sessionOption(),
	), t.handleDeleteEntities)

	s.AddTool(mcp.NewTool("delete_observations",
		mcp.WithDescription("Delete specific observations from entities. Unknown entities are ignored."),
		mcp.WithArray("deletions", mcp.Required(), mcp.Items(map[string]any{
			"type": "object",
			"properties": map[string]any{
				"entityName":   map[string]any{"type": "string"},
				"observations": map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
			},
			"required": []string{"entityName", "observations"},
		})),
		sessionOption(),
	), t.handleDeleteObservations)

	s.AddTool(mcp.NewTool("delete_relations",
		mcp.WithDescription("Delete relationships matching the given triples exactly. Non-matching triples are ignored."),
		mcp.WithArray("relationships", mcp.Required(), mcp.Items(relationshipItemSchema)),
		sessionOption(),
	), t.handleDeleteRelationships)

	s.AddTool(mcp.NewTool("read_graph",
		mcp.WithDescription("Read the entire knowledge graph of a session."),
		sessionOption(),
	), t.handleReadGraph)

	s.AddTool(mcp.NewTool("search_nodes",
		mcp.WithDescription("Search for entities whose name, type or observations contain the query (case-insensitive substring), plus every relationship touching a matched entity."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Substring to match")),
		sessionOption(),
	), t.handleSearchNodes)

	s.AddTool(mcp.NewTool("open_nodes",
		mcp.WithDescription("Open specific entities by exact name, plus every relationship touching them. Unknown names are absent from the result."),
		mcp.WithArray("names", mcp.Required(), mcp.Items(map[string]any{"type": "string"})),
		sessionOption(),
	), t.handleOpenNodes)

	s.AddTool(mcp.NewTool("graph_stats",
		mcp.WithDescription("Report entity and relationship counts for every stored session."),
	), t.handleStats)
}

type createEntitiesArgs struct {
	Session  string         `json:"session"`
	Entities []graph.Entity `json:"entities" validate:"required,min=1,dive"`
}

func (t *GraphTools) handleCreateEntities(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args createEntitiesArgs
	if err := t.bind(req, &args); err != nil {
		return mcp.NewToolResultErrorFromErr("invalid arguments", err), nil
	}

	created, err := t.svc.CreateEntities(ctx, args.Session, args.Entities)
	if err != nil {
		return mcp.NewToolResultErrorFromErr("create_entities failed", err), nil
	}

	return jsonResult(created)
}

type createRelationshipsArgs struct {
	Session       string               `json:"session"`
	Relationships []graph.Relationship `json:"relationships" validate:"required,min=1,dive"`
}

func (t *GraphTools) handleCreateRelationships(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args createRelationshipsArgs
	if err := t.bind(req, &args); err != nil {
		return mcp.NewToolResultErrorFromErr("invalid arguments", err), nil
	}

	created, err := t.svc.CreateRelationships(ctx, args.Session, args.Relationships)
	if err != nil {
		return mcp.NewToolResultErrorFromErr("create_relations failed", err), nil
	}

	return jsonResult(created)
}

type addObservationsArgs struct {
	Session      string                         `json:"session"`
	Observations []graph.AddObservationsRequest `json:"observations" validate:"required,min=1,dive"`
}

func (t *GraphTools) handleAddObservations(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args addObservationsArgs
	if err := t.bind(req, &args); err != nil {
		return mcp.NewToolResultErrorFromErr("invalid arguments", err), nil
	}

	results, err := t.svc.AddObservations(ctx, args.Session, args.Observations)
	if err != nil {
		return mcp.NewToolResultErrorFromErr("add_observations failed", err), nil
	}

	return jsonResult(results)
}

type deleteEntitiesArgs struct {
	Session     string   `json:"session"`
	EntityNames []string `json:"entityNames" validate:"required,min=1"`
}

func (t *GraphTools) handleDeleteEntities(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args deleteEntitiesArgs
	if err := t.bind(req, &args); err != nil {
		return mcp.NewToolResultErrorFromErr("invalid arguments", err), nil
	}

	if err := t.svc.DeleteEntities(ctx, args.Session, args.EntityNames); err != nil {
		return mcp.NewToolResultErrorFromErr("delete_entities failed", err), nil
	}

	return mcp.NewToolResultText("Entities deleted successfully"), nil
}

type deleteObservationsArgs struct {
	Session   string                            `json:"session"`
	Deletions []graph.DeleteObservationsRequest `json:"deletions" validate:"required,min=1,dive"`
}

func (t *GraphTools) handleDeleteObservations(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args deleteObservationsArgs
	if err := t.bind(req, &args); err != nil {
		return mcp.NewToolResultErrorFromErr("invalid arguments", err), nil
	}

	if err := t.svc.DeleteObservations(ctx, args.Session, args.Deletions); err != nil {
		return mcp.NewToolResultErrorFromErr("delete_observations failed", err), nil
	}

	return mcp.NewToolResultText("Observations deleted successfully"), nil
}

type deleteRelationshipsArgs struct {
	Session       string               `json:"session"`
	Relationships []graph.Relationship `json:"relationships" validate:"required,min=1,dive"`
}

func (t *GraphTools) handleDeleteRelationships(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args deleteRelationshipsArgs
	if err := t.bind(req, &args); err != nil {
		return mcp.NewToolResultErrorFromErr("invalid arguments", err), nil
	}

	if err := t.svc.DeleteRelationships(ctx, args.Session, args.Relationships); err != nil {
		return mcp.NewToolResultErrorFromErr("delete_relations failed", err), nil
	}

	return mcp.NewToolResultText("Relationships deleted successfully"), nil
}

func (t *GraphTools) handleReadGraph(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	result, err := t.svc.ReadGraph(ctx, req.GetString("session", ""))
	if err != nil {
		return mcp.NewToolResultErrorFromErr("read_graph failed", err), nil
	}

	return jsonResult(result)
}

func (t *GraphTools) handleSearchNodes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultErrorFromErr("invalid arguments", err), nil
	}

	result, err := t.svc.SearchNodes(ctx, req.GetString("session", ""), query)
	if err != nil {
		return mcp.NewToolResultErrorFromErr("search_nodes failed", err), nil
	}

	return jsonResult(result)
}

type openNodesArgs struct {
	Session string   `json:"session"`
	Names   []string `json:"names" validate:"required,min=1"`
}

func (t *GraphTools) handleOpenNodes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args openNodesArgs
	if err := t.bind(req, &args); err != nil {
		return mcp.NewToolResultErrorFromErr("invalid arguments", err), nil
	}

	result, err := t.svc.OpenNodes(ctx, args.Session, args.Names)
	if err != nil {
		return mcp.NewToolResultErrorFromErr("open_nodes failed", err), nil
	}

	return jsonResult(result)
}

func (t *GraphTools) handleStats(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	stats, err := t.svc.Stats(ctx)
	if err != nil {
		return mcp.NewToolResultErrorFromErr("graph_stats failed", err), nil
	}

	return jsonResult(stats)
}

func (t *GraphTools) bind(req mcp.CallToolRequest, args any) error {
	if err := req.BindArguments(args); err != nil {
		return fmt.Errorf("failed to parse arguments: %w", err)
	}

	if err := t.validate.Struct(args); err != nil {
		return fmt.Errorf("failed to validate arguments: %w", err)
	}

	return nil
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal result: %w", err)
	}

	return mcp.NewToolResultText(string(data)), nil
}
