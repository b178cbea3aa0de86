// Command mcp-email runs the MCP tool server for email delivery. The
// provider (SES, SendGrid, or Mailgun) is chosen once at startup from
// configuration. Serves stdio by default; -http switches to streamable HTTP.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/datastack-mcp/datastack-go/internal/awsauth"
	"github.com/datastack-mcp/datastack-go/internal/config"
	"github.com/datastack-mcp/datastack-go/internal/email"
	"github.com/datastack-mcp/datastack-go/internal/mcpserver"
	"github.com/datastack-mcp/datastack-go/internal/observability"
	"github.com/datastack-mcp/datastack-go/internal/ratelimit"
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
		shutdown, err := observability.InitTracer(ctx, "mcp-email")
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

	provider, err := newProvider(ctx, cfg)
	if err != nil {
		logger.Error("email provider init failed", "error", err)
		os.Exit(1)
	}
	logger.Info("email provider configured", "provider", provider.Name(), "from", cfg.EmailFrom)

	server := mcp.NewServer(&mcp.Implementation{
		Name:    "datastack-email",
		Version: "v1.0.0",
	}, nil)
	mcpserver.RegisterEmailTools(server, mcpserver.EmailDeps{
		Provider: provider,
		Limiter:  ratelimit.NewServiceLimiter(ratelimit.DefaultServiceRates()),
		Metrics:  metrics,
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

// newProvider constructs the one provider the server will use. Config
// validation has already checked the provider-specific credentials.
func newProvider(ctx context.Context, cfg config.Config) (email.Provider, error) {
	switch cfg.EmailProvider {
	case config.ProviderSendGrid:
		return email.NewSendGrid(cfg.SendGridAPIKey, cfg.EmailFrom), nil
	case config.ProviderMailgun:
		return email.NewMailgun(cfg.MailgunBaseURL, cfg.MailgunDomain, cfg.MailgunAPIKey, cfg.EmailFrom), nil
	default:
		awsCfg, err := awsauth.NewConfig(ctx, cfg.AWSRegion, cfg.AWSProfile, cfg.CrossAccountRole)
		if err != nil {
			return nil, err
		}
		return email.NewSES(awsCfg, cfg.EmailFrom), nil
	}
}
