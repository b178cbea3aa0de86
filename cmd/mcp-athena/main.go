// Command mcp-athena runs the MCP tool server for Athena query operations:
// submit, poll, fetch results, cancel, plus catalog browsing and cost
// estimation. Serves stdio by default for AI assistant integration; -http
// switches to streamable HTTP.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/datastack-mcp/datastack-go/internal/athena"
	"github.com/datastack-mcp/datastack-go/internal/awsauth"
	"github.com/datastack-mcp/datastack-go/internal/config"
	"github.com/datastack-mcp/datastack-go/internal/mcpserver"
	"github.com/datastack-mcp/datastack-go/internal/observability"
	"github.com/datastack-mcp/datastack-go/internal/ratelimit"
	"github.com/datastack-mcp/datastack-go/internal/spend"
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
		shutdown, err := observability.InitTracer(ctx, "mcp-athena")
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

	awsCfg, err := awsauth.NewConfig(ctx, cfg.AWSRegion, cfg.AWSProfile, cfg.CrossAccountRole)
	if err != nil {
		logger.Error("aws config failed", "error", err)
		os.Exit(1)
	}

	deps := mcpserver.QueryDeps{
		Queries:   athena.New(awsCfg, athena.NewExecStore(), cfg.AthenaDatabase, cfg.AthenaWorkgroup, cfg.AthenaOutputLocation),
		Catalog:   athena.NewCatalog(awsCfg, cfg.AthenaCatalog),
		Presigner: athena.NewPresigner(awsCfg),
		Spend:     spend.New(awsCfg),
		Limiter:   ratelimit.NewServiceLimiter(ratelimit.DefaultServiceRates()),
		Metrics:   metrics,
		Workgroup: cfg.AthenaWorkgroup,
		PageSize:  cfg.ResultPageSize,
	}
	if cfg.QueryBudgetPerHour > 0 {
		deps.Budget = ratelimit.NewQueryBudget(cfg.QueryBudgetPerHour, time.Hour)
	}

	server := mcp.NewServer(&mcp.Implementation{
		Name:    "datastack-athena",
		Version: "v1.0.0",
	}, nil)
	mcpserver.RegisterQueryTools(server, deps)

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
