// Command mcp-datastore runs the MCP tool server for record storage and
// caching: Postgres-backed records and Redis-backed cache entries. Serves
// stdio by default; -http switches to streamable HTTP.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/datastack-mcp/datastack-go/internal/config"
	"github.com/datastack-mcp/datastack-go/internal/datastore"
	"github.com/datastack-mcp/datastack-go/internal/mcpserver"
	"github.com/datastack-mcp/datastack-go/internal/observability"
	"github.com/datastack-mcp/datastack-go/internal/transport"
)

func main() {
	httpMode := flag.Bool("http", false, "serve streamable HTTP instead of stdio")
	flag.Parse()

	cfg, err := config.LoadFromEnv()
	if err != nil {
		slog.Error("config error", "error", err)
		os.Exit(1)
	}
	logger := observability.InitLogger(cfg.LogLevel)

	if cfg.PostgresDSN == "" {
		logger.Error("DATASTACK_POSTGRES_DSN is required")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.OTelEnabled {
		shutdown, err := observability.InitTracer(ctx, "mcp-datastore")
		if err != nil {
			logger.Error("otel init failed", "error", err)
		} else {
			defer shutdown(context.Background())
		}
	}

	metrics, err := observability.NewMetrics()
	if err != nil {
		logger.Error("metrics init failed", "error", err)
		os.Exit(1)
	}

	records, err := datastore.NewPostgresStore(ctx, cfg.PostgresDSN)
	if err != nil {
		logger.Error("postgres connect failed", "error", err)
		os.Exit(1)
	}
	defer records.Close()

	if err := records.Migrate(); err != nil {
		logger.Error("migrations failed", "error", err)
		os.Exit(1)
	}

	cache, err := datastore.NewRedisCache(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		logger.Error("redis connect failed", "error", err)
		os.Exit(1)
	}
	defer cache.Close()

	server := mcp.NewServer(&mcp.Implementation{
		Name:    "datastack-datastore",
		Version: "v1.0.0",
	}, nil)
	mcpserver.RegisterDatastoreTools(server, mcpserver.DatastoreDeps{
		Records: records,
		Cache:   cache,
		Metrics: metrics,
	})

	opts := transport.Options{
		OIDCIssuer:   cfg.OIDCIssuer,
		OIDCAudience: cfg.OIDCAudience,
		CORSOrigins:  cfg.CORSOrigins,
	}
	if *httpMode {
		opts.Addr = ":" + cfg.HTTPPort
	}
	if err := transport.Run(ctx, logger, server, opts); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}
