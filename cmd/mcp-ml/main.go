// Command mcp-ml runs the MCP tool server for Python ML script jobs:
// anomaly detection, model training, and prediction, with cron-style
// scheduling for recurring runs. Serves stdio by default; -http switches
// to streamable HTTP.
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
	"github.com/datastack-mcp/datastack-go/internal/mlrunner"
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

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.OTelEnabled {
		shutdown, err := observability.InitTracer(ctx, "mcp-ml")
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

	runner := mlrunner.NewScriptRunner(cfg.PythonBin, cfg.ScriptsDir, cfg.JobTimeout)
	jobs := mlrunner.NewJobs(runner)
	scheduler := mlrunner.NewScheduler(jobs, logger)
	scheduler.Start()
	defer scheduler.Stop()

	server := mcp.NewServer(&mcp.Implementation{
		Name:    "datastack-ml",
		Version: "v1.0.0",
	}, nil)
	mcpserver.RegisterMLTools(server, mcpserver.MLDeps{
		Jobs:      jobs,
		Scheduler: scheduler,
		Metrics:   metrics,
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
