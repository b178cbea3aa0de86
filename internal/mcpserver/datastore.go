package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/datastack-mcp/datastack-go/internal/datastore"
	"github.com/datastack-mcp/datastack-go/internal/observability"
)

// DatastoreDeps bundles the record store and cache behind the tools.
type DatastoreDeps struct {
	Records datastore.RecordStore
	Cache   datastore.Cache
	Metrics *observability.Metrics
}

// RegisterDatastoreTools registers the Postgres record and Redis cache
// tools on the server.
func RegisterDatastoreTools(server *mcp.Server, deps DatastoreDeps) {
	mcp.AddTool(server,
		&mcp.Tool{
			Name:        "store_record",
			Description: "Store a JSON value under a key, replacing any existing value",
		},
		instrumented(deps.Metrics, "store_record", storeRecordHandler(deps)),
	)

	mcp.AddTool(server,
		&mcp.Tool{
			Name:        "get_record",
			Description: "Get the stored value for a key",
		},
		instrumented(deps.Metrics, "get_record", getRecordHandler(deps)),
	)

	mcp.AddTool(server,
		&mcp.Tool{
			Name:        "query_records",
			Description: "List records whose keys start with a prefix",
		},
		instrumented(deps.Metrics, "query_records", queryRecordsHandler(deps)),
	)

	mcp.AddTool(server,
		&mcp.Tool{
			Name:        "delete_record",
			Description: "Delete the record stored under a key",
		},
		instrumented(deps.Metrics, "delete_record", deleteRecordHandler(deps)),
	)

	mcp.AddTool(server,
		&mcp.Tool{
			Name:        "cache_set",
			Description: "Set a cache value with an optional TTL in seconds",
		},
		instrumented(deps.Metrics, "cache_set", cacheSetHandler(deps)),
	)

	mcp.AddTool(server,
		&mcp.Tool{
			Name:        "cache_get",
			Description: "Get a cache value and its remaining TTL",
		},
		instrumented(deps.Metrics, "cache_get", cacheGetHandler(deps)),
	)

	mcp.AddTool(server,
		&mcp.Tool{
			Name:        "cache_delete",
			Description: "Delete a cache key",
		},
		instrumented(deps.Metrics, "cache_delete", cacheDeleteHandler(deps)),
	)

	mcp.AddTool(server,
		&mcp.Tool{
			Name:        "cache_list",
			Description: "List cache keys matching a glob pattern",
		},
		instrumented(deps.Metrics, "cache_list", cacheListHandler(deps)),
	)
}

type storeRecordInput struct {
	Key         string `json:"key"`
	Value       any    `json:"value"`
	ContentType string `json:"content_type,omitempty"`
}

func storeRecordHandler(deps DatastoreDeps) mcp.ToolHandlerFor[storeRecordInput, any] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input storeRecordInput) (*mcp.CallToolResult, any, error) {
		if input.Key == "" {
			return errorResult("key is required"), nil, nil
		}
		if input.Value == nil {
			return errorResult("value is required"), nil, nil
		}

		value, err := json.Marshal(input.Value)
		if err != nil {
			return errorResult(fmt.Sprintf("value is not valid JSON: %v", err)), nil, nil
		}

		rec, err := deps.Records.Store(ctx, datastore.Record{
			Key:         input.Key,
			Value:       value,
			ContentType: input.ContentType,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("store_record: %w", err)
		}
		return textResult(rec)
	}
}

type recordKeyInput struct {
	Key string `json:"key"`
}

func getRecordHandler(deps DatastoreDeps) mcp.ToolHandlerFor[recordKeyInput, any] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input recordKeyInput) (*mcp.CallToolResult, any, error) {
		if input.Key == "" {
			return errorResult("key is required"), nil, nil
		}

		rec, err := deps.Records.Get(ctx, input.Key)
		if errors.Is(err, datastore.ErrNotFound) {
			return errorResult(fmt.Sprintf("no record stored under key %q", input.Key)), nil, nil
		}
		if err != nil {
			return nil, nil, fmt.Errorf("get_record: %w", err)
		}
		return textResult(rec)
	}
}

type queryRecordsInput struct {
	Prefix string `json:"prefix,omitempty"`
	Limit  int    `json:"limit,omitempty"`
}

func queryRecordsHandler(deps DatastoreDeps) mcp.ToolHandlerFor[queryRecordsInput, any] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input queryRecordsInput) (*mcp.CallToolResult, any, error) {
		recs, err := deps.Records.List(ctx, input.Prefix, input.Limit)
		if err != nil {
			return nil, nil, fmt.Errorf("query_records: %w", err)
		}
		return textResult(map[string]any{
			"count":   len(recs),
			"records": recs,
		})
	}
}

func deleteRecordHandler(deps DatastoreDeps) mcp.ToolHandlerFor[recordKeyInput, any] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input recordKeyInput) (*mcp.CallToolResult, any, error) {
		if input.Key == "" {
			return errorResult("key is required"), nil, nil
		}

		err := deps.Records.Delete(ctx, input.Key)
		if errors.Is(err, datastore.ErrNotFound) {
			return errorResult(fmt.Sprintf("no record stored under key %q", input.Key)), nil, nil
		}
		if err != nil {
			return nil, nil, fmt.Errorf("delete_record: %w", err)
		}
		return textResult(map[string]string{"deleted": input.Key})
	}
}

type cacheSetInput struct {
	Key        string `json:"key"`
	Value      string `json:"value"`
	TTLSeconds int    `json:"ttl_seconds,omitempty"`
}

func cacheSetHandler(deps DatastoreDeps) mcp.ToolHandlerFor[cacheSetInput, any] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input cacheSetInput) (*mcp.CallToolResult, any, error) {
		if input.Key == "" {
			return errorResult("key is required"), nil, nil
		}

		ttl := time.Duration(input.TTLSeconds) * time.Second
		if err := deps.Cache.Set(ctx, input.Key, input.Value, ttl); err != nil {
			return nil, nil, fmt.Errorf("cache_set: %w", err)
		}
		return textResult(map[string]any{
			"key":         input.Key,
			"ttl_seconds": input.TTLSeconds,
		})
	}
}

func cacheGetHandler(deps DatastoreDeps) mcp.ToolHandlerFor[recordKeyInput, any] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input recordKeyInput) (*mcp.CallToolResult, any, error) {
		if input.Key == "" {
			return errorResult("key is required"), nil, nil
		}

		value, ttl, err := deps.Cache.Get(ctx, input.Key)
		if errors.Is(err, datastore.ErrCacheMiss) {
			return errorResult(fmt.Sprintf("cache miss for key %q", input.Key)), nil, nil
		}
		if err != nil {
			return nil, nil, fmt.Errorf("cache_get: %w", err)
		}
		return textResult(map[string]any{
			"key":         input.Key,
			"value":       value,
			"ttl_seconds": int(ttl.Seconds()),
		})
	}
}

func cacheDeleteHandler(deps DatastoreDeps) mcp.ToolHandlerFor[recordKeyInput, any] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input recordKeyInput) (*mcp.CallToolResult, any, error) {
		if input.Key == "" {
			return errorResult("key is required"), nil, nil
		}

		if err := deps.Cache.Delete(ctx, input.Key); err != nil {
			return nil, nil, fmt.Errorf("cache_delete: %w", err)
		}
		return textResult(map[string]string{"deleted": input.Key})
	}
}

type cacheListInput struct {
	Pattern string `json:"pattern,omitempty"`
	Limit   int64  `json:"limit,omitempty"`
}

func cacheListHandler(deps DatastoreDeps) mcp.ToolHandlerFor[cacheListInput, any] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input cacheListInput) (*mcp.CallToolResult, any, error) {
		keys, err := deps.Cache.Keys(ctx, input.Pattern, input.Limit)
		if err != nil {
			return nil, nil, fmt.Errorf("cache_list: %w", err)
		}
		return textResult(map[string]any{
			"count": len(keys),
			"keys":  keys,
		})
	}
}
