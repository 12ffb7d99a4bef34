package mcptool

import (
	"context"
	"errors"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/samber/do"

	"graphmem/app/service/kv"
)

// KVTools exposes the flat key-value store as MCP tools.
type KVTools struct {
	svc *kv.Service
}

func NewKVTools(di *do.Injector) (*KVTools, error) {
	return &KVTools{
		svc: do.MustInvoke[*kv.Service](di),
	}, nil
}

func (t *KVTools) Register(s *server.MCPServer) {
	s.AddTool(mcp.NewTool("kv_set",
		mcp.WithDescription("Store a value under a key, overwriting any previous value."),
		mcp.WithString("key", mcp.Required()),
		mcp.WithString("value", mcp.Required()),
	), t.handleSet)

	s.AddTool(mcp.NewTool("kv_get",
		mcp.WithDescription("Read the value stored under a key."),
		mcp.WithString("key", mcp.Required()),
	), t.handleGet)

	s.AddTool(mcp.NewTool("kv_delete",
		mcp.WithDescription("Remove a key. Missing keys are ignored."),
		mcp.WithString("key", mcp.Required()),
	), t.handleDelete)

	s.AddTool(mcp.NewTool("kv_keys",
		mcp.WithDescription("List every stored key."),
	), t.handleKeys)
}

func (t *KVTools) handleSet(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	key, err := req.RequireString("key")
	if err != nil {
		return mcp.NewToolResultErrorFromErr("invalid arguments", err), nil
	}

	value, err := req.RequireString("value")
	if err != nil {
		return mcp.NewToolResultErrorFromErr("invalid arguments", err), nil
	}

	if err = t.svc.Set(key, value); err != nil {
		return mcp.NewToolResultErrorFromErr("kv_set failed", err), nil
	}

	return mcp.NewToolResultText("Value stored successfully"), nil
}

func (t *KVTools) handleGet(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	key, err := req.RequireString("key")
	if err != nil {
		return mcp.NewToolResultErrorFromErr("invalid arguments", err), nil
	}

	value, err := t.svc.Get(key)
	if err != nil {
		if errors.Is(err, kv.ErrKeyNotFound) {
			return mcp.NewToolResultError(err.Error()), nil
		}

		return mcp.NewToolResultErrorFromErr("kv_get failed", err), nil
	}

	return mcp.NewToolResultText(value), nil
}

func (t *KVTools) handleDelete(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	key, err := req.RequireString("key")
	if err != nil {
		return mcp.NewToolResultErrorFromErr("invalid arguments", err), nil
	}

	if err = t.svc.Delete(key); err != nil {
		return mcp.NewToolResultErrorFromErr("kv_delete failed", err), nil
	}

	return mcp.NewToolResultText("Key deleted successfully"), nil
}

func (t *KVTools) handleKeys(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	keys, err := t.svc.Keys()
	if err != nil {
		return mcp.NewToolResultErrorFromErr("kv_keys failed", err), nil
	}

	return jsonResult(keys)
}
