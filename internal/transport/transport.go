// Package transport runs an MCP server over stdio or streamable HTTP.
// Stdio is the default for assistant integrations; HTTP adds OIDC bearer
// auth, CORS, and request logging for shared deployments.
package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const shutdownGrace = 10 * time.Second

// Options selects and configures the transport.
type Options struct {
	// Addr is the HTTP listen address. Empty means stdio.
	Addr string

	// CORSOrigins is the allowed origin list for HTTP mode.
	CORSOrigins []string

	// OIDCIssuer enables bearer token verification on the HTTP
	// endpoint when set. Tokens must be issued for OIDCAudience.
	OIDCIssuer   string
	OIDCAudience string
}

// Run serves the MCP server until ctx is cancelled or the transport
// fails.
func Run(ctx context.Context, logger *slog.Logger, server *mcp.Server, opts Options) error {
	if opts.Addr == "" {
		logger.Info("serving on stdio")
		return server.Run(ctx, &mcp.StdioTransport{})
	}

	handler, err := Handler(ctx, server, opts)
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:              opts.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- httpServer.ListenAndServe() }()
	logger.Info("serving on http", "addr", opts.Addr, "auth", opts.OIDCIssuer != "")

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("transport: serve: %w", err)
	}
}

// Handler builds the HTTP handler stack: the MCP endpoint at /mcp plus a
// health probe, wrapped in auth, CORS, request id, logging, and tracing.
func Handler(ctx context.Context, server *mcp.Server, opts Options) (http.Handler, error) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	mux.Handle("/mcp", mcp.NewStreamableHTTPHandler(
		func(*http.Request) *mcp.Server { return server }, nil,
	))

	var handler http.Handler = mux
	if opts.OIDCIssuer != "" {
		provider, err := oidc.NewProvider(ctx, opts.OIDCIssuer)
		if err != nil {
			return nil, fmt.Errorf("transport: oidc discovery %s: %w", opts.OIDCIssuer, err)
		}
		handler = bearerAuth(provider, opts.OIDCAudience)(handler)
	}
	handler = requestID(logging(cors(opts.CORSOrigins, handler)))
	return otelhttp.NewHandler(handler, "mcp"), nil
}
