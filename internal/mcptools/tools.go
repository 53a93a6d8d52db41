// Package mcptools exposes cache configurations as MCP tools.
package mcptools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/oriys/cachebridge/internal/bridge"
	"github.com/oriys/cachebridge/internal/logging"
)

type handlerFunc = func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error)

// Tools binds MCP tool handlers to the bridges of a resolver.
type Tools struct {
	bridges      *bridge.Resolver
	defaultCache string
}

// New creates the tool set. Calls without a cache argument use
// defaultCache.
func New(bridges *bridge.Resolver, defaultCache string) *Tools {
	return &Tools{bridges: bridges, defaultCache: defaultCache}
}

// NewServer creates an MCP server with every cache tool registered.
func NewServer(t *Tools, version string) *server.MCPServer {
	s := server.NewMCPServer(
		"cachebridge",
		version,
		server.WithRecovery(),
		server.WithToolCapabilities(false),
	)
	t.Register(s)
	return s
}

// Register adds the cache tools to s.
func (t *Tools) Register(s *server.MCPServer) {
	cacheArg := mcp.WithString("cache", mcp.Description("Cache configuration name (default: "+t.defaultCache+")"))
	keyArg := mcp.WithString("key", mcp.Required(), mcp.Description("Cache key"))
	keysArg := mcp.WithArray("keys", mcp.Required(), mcp.Description("Cache keys"), mcp.Items(map[string]any{"type": "string"}))
	ttlArg := mcp.WithString("ttl", mcp.Description("Expiration as seconds or a duration such as 90s; engine default when omitted"))
	defaultArg := mcp.WithString("default", mcp.Description("JSON value returned for missing keys"))

	s.AddTool(mcp.NewTool("cache-get",
		mcp.WithDescription("Reads a key, returning the default when it is missing or expired"),
		cacheArg, keyArg, defaultArg,
	), t.Get)
	s.AddTool(mcp.NewTool("cache-set",
		mcp.WithDescription(multiline(
			"Stores a value under a key",
			"- value is JSON; text that is not valid JSON is stored as a string",
			"- ttl overrides the cache's default expiration for this write only",
		)),
		cacheArg, keyArg,
		mcp.WithString("value", mcp.Required(), mcp.Description("JSON value to store")),
		ttlArg,
	), t.Set)
	s.AddTool(mcp.NewTool("cache-delete",
		mcp.WithDescription("Removes a key"),
		cacheArg, keyArg,
	), t.Delete)
	s.AddTool(mcp.NewTool("cache-has",
		mcp.WithDescription("Reports whether a key holds a truthy value"),
		cacheArg, keyArg,
	), t.Has)
	s.AddTool(mcp.NewTool("cache-clear",
		mcp.WithDescription("Removes every key of the cache configuration, leaving other configurations sharing the backend intact"),
		cacheArg,
	), t.Clear)
	s.AddTool(mcp.NewTool("cache-get-many",
		mcp.WithDescription("Reads several keys at once"),
		cacheArg, keysArg, defaultArg,
	), t.GetMany)
	s.AddTool(mcp.NewTool("cache-set-many",
		mcp.WithDescription("Stores several values at once"),
		cacheArg,
		mcp.WithObject("values", mcp.Required(), mcp.Description("Key to value mapping")),
		ttlArg,
	), t.SetMany)
	s.AddTool(mcp.NewTool("cache-delete-many",
		mcp.WithDescription("Removes several keys at once"),
		cacheArg, keysArg,
	), t.DeleteMany)

	logging.Op().Debug("registered MCP cache tools", "caches", t.bridges.Names())
}

func (t *Tools) Get(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return t.call(ctx, req, func(ctx context.Context, b *bridge.Bridge, args map[string]any) (any, error) {
		v, err := b.Get(ctx, args["key"], bridge.ParseValue(stringArg(args, "default")))
		if err != nil {
			return nil, err
		}
		return map[string]any{"key": args["key"], "value": v}, nil
	})
}

func (t *Tools) Set(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return t.call(ctx, req, func(ctx context.Context, b *bridge.Bridge, args map[string]any) (any, error) {
		ttl, err := bridge.ParseTTL(stringArg(args, "ttl"))
		if err != nil {
			return nil, err
		}
		value := args["value"]
		if s, ok := value.(string); ok {
			value = bridge.ParseValue(s)
		}
		return okResult(b.Set(ctx, args["key"], value, ttl))
	})
}

func (t *Tools) Delete(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return t.call(ctx, req, func(ctx context.Context, b *bridge.Bridge, args map[string]any) (any, error) {
		return okResult(b.Delete(ctx, args["key"]))
	})
}

func (t *Tools) Has(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return t.call(ctx, req, func(ctx context.Context, b *bridge.Bridge, args map[string]any) (any, error) {
		found, err := b.Has(ctx, args["key"])
		if err != nil {
			return nil, err
		}
		return map[string]any{"key": args["key"], "has": found}, nil
	})
}

func (t *Tools) Clear(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return t.call(ctx, req, func(ctx context.Context, b *bridge.Bridge, _ map[string]any) (any, error) {
		return okResult(b.Clear(ctx))
	})
}

func (t *Tools) GetMany(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return t.call(ctx, req, func(ctx context.Context, b *bridge.Bridge, args map[string]any) (any, error) {
		values, err := b.GetMultiple(ctx, args["keys"], bridge.ParseValue(stringArg(args, "default")))
		if err != nil {
			return nil, err
		}
		return map[string]any{"values": values}, nil
	})
}

func (t *Tools) SetMany(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return t.call(ctx, req, func(ctx context.Context, b *bridge.Bridge, args map[string]any) (any, error) {
		ttl, err := bridge.ParseTTL(stringArg(args, "ttl"))
		if err != nil {
			return nil, err
		}
		return okResult(b.SetMultiple(ctx, args["values"], ttl))
	})
}

func (t *Tools) DeleteMany(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return t.call(ctx, req, func(ctx context.Context, b *bridge.Bridge, args map[string]any) (any, error) {
		return okResult(b.DeleteMultiple(ctx, args["keys"]))
	})
}

// call resolves the cache argument, runs fn and renders its result as JSON
// text. Failures become tool errors so the client sees the message.
func (t *Tools) call(ctx context.Context, req mcp.CallToolRequest, fn func(context.Context, *bridge.Bridge, map[string]any) (any, error)) (*mcp.CallToolResult, error) {
	if ctx.Err() != nil {
		return mcp.NewToolResultError(ctx.Err().Error()), nil
	}
	args := req.GetArguments()
	name := stringArg(args, "cache")
	if name == "" {
		name = t.defaultCache
	}
	b, err := t.bridges.Get(name)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	out, err := fn(ctx, b, args)
	if err != nil {
		logging.Op().Debug("cache tool failed", "tool", req.Params.Name, "cache", name, "error", err)
		return mcp.NewToolResultError(err.Error()), nil
	}
	data, err := json.Marshal(out)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("encode result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

func okResult(ok bool, err error) (any, error) {
	if err != nil {
		return nil, err
	}
	return map[string]any{"ok": ok}, nil
}

func stringArg(args map[string]any, name string) string {
	s, _ := args[name].(string)
	return s
}

// multiline joins lines with newlines for tool descriptions.
func multiline(lines ...string) string { return strings.Join(lines, "\n") }
