// Command mcp-render runs the MCP tool server for chart and PDF rendering.
// Charts are built as echarts HTML and rasterized by headless Chrome.
// Serves stdio by default; -http switches to streamable HTTP.
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
	"github.com/datastack-mcp/datastack-go/internal/mcpserver"
	"github.com/datastack-mcp/datastack-go/internal/observability"
	"github.com/datastack-mcp/datastack-go/internal/render"
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

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.OTelEnabled {
		shutdown, err := observability.InitTracer(ctx, "mcp-render")
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

	if err := os.MkdirAll(cfg.OutputDir, 0o755); err != nil {
		logger.Error("output dir create failed", "error", err, "dir", cfg.OutputDir)
		os.Exit(1)
	}

	server := mcp.NewServer(&mcp.Implementation{
		Name:    "datastack-render",
		Version: "v1.0.0",
	}, nil)
	mcpserver.RegisterRenderTools(server, mcpserver.RenderDeps{
		Rasterizer: render.NewRenderer(cfg.ChromePath, cfg.OutputDir),
		Metrics:    metrics,
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
