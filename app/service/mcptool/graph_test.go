package mcptool

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/samber/do"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"graphmem/app/config"
	"graphmem/app/service/graph"
	"graphmem/app/service/kv"
)

func newTestTools(t *testing.T) (*GraphTools, *KVTools) {
	t.Helper()

	di := do.New()
	t.Cleanup(func() { _ = di.Shutdown() })

	do.ProvideValue(di, &config.Config{
		Storage: config.Storage{Dir: t.TempDir()},
	})
	do.Provide(di, graph.NewStore)
	do.Provide(di, graph.New)
	do.Provide(di, kv.New)
	do.Provide(di, NewGraphTools)
	do.Provide(di, NewKVTools)

	return do.MustInvoke[*GraphTools](di), do.MustInvoke[*KVTools](di)
}

func callRequest(args map[string]any) mcp.CallToolRequest {
	req := mcp.CallToolRequest{}
	req.Params.Arguments = args

	return req
}

func resultText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()

	require.NotEmpty(t, result.Content)
	text, ok := result.Content[0].(mcp.TextContent)
	require.True(t, ok, "expected text content")

	return text.Text
}

func TestCreateEntities_ReturnsCreatedSubset(t *testing.T) {
	tools, _ := newTestTools(t)
	ctx := context.Background()

	req := callRequest(map[string]any{
		"entities": []map[string]any{
			{"name": "Alice", "entityType": "Person", "observations": []string{"likes Go"}},
		},
	})

	result, err := tools.handleCreateEntities(ctx, req)
	require.NoError(t, err)
	require.False(t, result.IsError)

	var created []graph.Entity
	require.NoError(t, json.Unmarshal([]byte(resultText(t, result)), &created))
	require.Len(t, created, 1)
	assert.Equal(t, "Alice", created[0].Name)

	// the duplicate is filtered out on the second call
	result, err = tools.handleCreateEntities(ctx, req)
	require.NoError(t, err)
	require.False(t, result.IsError)

	require.NoError(t, json.Unmarshal([]byte(resultText(t, result)), &created))
	assert.Empty(t, created)
}

func TestCreateEntities_ValidationRejectsEmptyName(t *testing.T) {
	tools, _ := newTestTools(t)

	result, err := tools.handleCreateEntities(context.Background(), callRequest(map[string]any{
		"entities": []map[string]any{
			{"name": "", "entityType": "Person"},
		},
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestCreateEntities_ValidationRejectsMissingList(t *testing.T) {
	tools, _ := newTestTools(t)

	result, err := tools.handleCreateEntities(context.Background(), callRequest(map[string]any{}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestAddObservations_MissingEntityIsToolError(t *testing.T) {
	tools, _ := newTestTools(t)

	result, err := tools.handleAddObservations(context.Background(), callRequest(map[string]any{
		"observations": []map[string]any{
			{"entityName": "Nobody", "contents": []string{"x"}},
		},
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestSearchNodes_SessionArgumentIsolates(t *testing.T) {
	tools, _ := newTestTools(t)
	ctx := context.Background()

	result, err := tools.handleCreateEntities(ctx, callRequest(map[string]any{
		"session":  "s1",
		"entities": []map[string]any{{"name": "Apple", "entityType": "Fruit"}},
	}))
	require.NoError(t, err)
	require.False(t, result.IsError)

	result, err = tools.handleSearchNodes(ctx, callRequest(map[string]any{
		"session": "s1",
		"query":   "fruit",
	}))
	require.NoError(t, err)
	require.False(t, result.IsError)

	var found graph.KnowledgeGraph
	require.NoError(t, json.Unmarshal([]byte(resultText(t, result)), &found))
	assert.Len(t, found.Entities, 1)

	// the global session sees nothing
	result, err = tools.handleSearchNodes(ctx, callRequest(map[string]any{
		"query": "fruit",
	}))
	require.NoError(t, err)
	require.False(t, result.IsError)

	require.NoError(t, json.Unmarshal([]byte(resultText(t, result)), &found))
	assert.Empty(t, found.Entities)
}

func TestReadGraph_EmptyByDefault(t *testing.T) {
	tools, _ := newTestTools(t)

	result, err := tools.handleReadGraph(context.Background(), callRequest(map[string]any{}))
	require.NoError(t, err)
	require.False(t, result.IsError)

	var g graph.KnowledgeGraph
	require.NoError(t, json.Unmarshal([]byte(resultText(t, result)), &g))
	assert.Empty(t, g.Entities)
	assert.Empty(t, g.Relationships)
}

func TestKVTools_SetGetDelete(t *testing.T) {
	_, kvTools := newTestTools(t)
	ctx := context.Background()

	result, err := kvTools.handleSet(ctx, callRequest(map[string]any{
		"key":   "greeting",
		"value": "hello",
	}))
	require.NoError(t, err)
	require.False(t, result.IsError)

	result, err = kvTools.handleGet(ctx, callRequest(map[string]any{"key": "greeting"}))
	require.NoError(t, err)
	require.False(t, result.IsError)
	assert.Equal(t, "hello", resultText(t, result))

	result, err = kvTools.handleDelete(ctx, callRequest(map[string]any{"key": "greeting"}))
	require.NoError(t, err)
	require.False(t, result.IsError)

	result, err = kvTools.handleGet(ctx, callRequest(map[string]any{"key": "greeting"}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}
