package mcpserver

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/datastack-mcp/datastack-go/internal/athena"
	"github.com/datastack-mcp/datastack-go/internal/observability"
	"github.com/datastack-mcp/datastack-go/internal/ratelimit"
	"github.com/datastack-mcp/datastack-go/internal/spend"
)

// QueryService is the query lifecycle surface the tools call.
type QueryService interface {
	Submit(ctx context.Context, queryText string, opts athena.SubmitOptions) (string, error)
	GetStatus(ctx context.Context, executionID string) (athena.QueryExecution, error)
	GetResults(ctx context.Context, executionID string, maxResults int32, pageToken string) (athena.ResultPage, error)
	Cancel(ctx context.Context, executionID string) error
	Tracked(executionID string) (athena.QueryExecution, bool)
}

// CatalogService lists databases and table schemas.
type CatalogService interface {
	ListDatabases(ctx context.Context) ([]athena.Database, error)
	ListTables(ctx context.Context, database string) ([]string, error)
	GetTableMetadata(ctx context.Context, database, table string) (athena.TableMetadata, error)
}

// DownloadSigner mints presigned URLs for persisted result objects.
type DownloadSigner interface {
	DownloadURL(ctx context.Context, resultLocation string, expiry time.Duration) (string, error)
}

// SpendService reports billed service spend.
type SpendService interface {
	Summarize(ctx context.Context, startDate, endDate string) (spend.Summary, error)
}

// QueryDeps bundles the collaborators behind the query tools. Presigner
// and Spend are optional; their tools report a config error when absent.
type QueryDeps struct {
	Queries   QueryService
	Catalog   CatalogService
	Presigner DownloadSigner
	Spend     SpendService
	Limiter   *ratelimit.ServiceLimiter
	Budget    *ratelimit.QueryBudget
	Metrics   *observability.Metrics

	// Workgroup is the default workgroup name, used to key the
	// submission budget when a call does not override it.
	Workgroup string

	// PageSize caps result pages when the caller asks for more.
	PageSize int32
}

// RegisterQueryTools registers the Athena query tools on the server.
func RegisterQueryTools(server *mcp.Server, deps QueryDeps) {
	mcp.AddTool(server,
		&mcp.Tool{
			Name:        "run_query",
			Description: "Submit a query, wait for completion, and return the first page of results",
		},
		instrumented(deps.Metrics, "run_query", runQueryHandler(deps)),
	)

	mcp.AddTool(server,
		&mcp.Tool{
			Name:        "submit_query",
			Description: "Submit a query for asynchronous execution and return its execution id",
		},
		instrumented(deps.Metrics, "submit_query", submitQueryHandler(deps)),
	)

	mcp.AddTool(server,
		&mcp.Tool{
			Name:        "get_query_status",
			Description: "Get the current state of a submitted query",
		},
		instrumented(deps.Metrics, "get_query_status", getQueryStatusHandler(deps)),
	)

	mcp.AddTool(server,
		&mcp.Tool{
			Name:        "get_query_results",
			Description: "Fetch a page of results for a succeeded query",
		},
		instrumented(deps.Metrics, "get_query_results", getQueryResultsHandler(deps)),
	)

	mcp.AddTool(server,
		&mcp.Tool{
			Name:        "cancel_query",
			Description: "Cancel a running query",
		},
		instrumented(deps.Metrics, "cancel_query", cancelQueryHandler(deps)),
	)

	mcp.AddTool(server,
		&mcp.Tool{
			Name:        "estimate_query_cost",
			Description: "Estimate scan size, cost, and runtime for a query without executing it",
		},
		instrumented(deps.Metrics, "estimate_query_cost", estimateQueryCostHandler()),
	)

	mcp.AddTool(server,
		&mcp.Tool{
			Name:        "list_databases",
			Description: "List databases in the data catalog",
		},
		instrumented(deps.Metrics, "list_databases", listDatabasesHandler(deps)),
	)

	mcp.AddTool(server,
		&mcp.Tool{
			Name:        "list_tables",
			Description: "List tables in a database",
		},
		instrumented(deps.Metrics, "list_tables", listTablesHandler(deps)),
	)

	mcp.AddTool(server,
		&mcp.Tool{
			Name:        "get_table_metadata",
			Description: "Get columns and partition keys for a table",
		},
		instrumented(deps.Metrics, "get_table_metadata", getTableMetadataHandler(deps)),
	)

	mcp.AddTool(server,
		&mcp.Tool{
			Name:        "get_result_download_url",
			Description: "Get a time-limited download URL for the persisted results of a succeeded query",
		},
		instrumented(deps.Metrics, "get_result_download_url", getResultDownloadURLHandler(deps)),
	)

	mcp.AddTool(server,
		&mcp.Tool{
			Name:        "get_spend_summary",
			Description: "Summarize billed Athena spend between two dates",
		},
		instrumented(deps.Metrics, "get_spend_summary", getSpendSummaryHandler(deps)),
	)
}

// queryToolError renders caller-correctable failures as tool errors and
// passes infrastructure failures through as handler errors.
func queryToolError(tool string, err error) (*mcp.CallToolResult, any, error) {
	var qerr *athena.Error
	if errors.As(err, &qerr) {
		switch qerr.Kind {
		case athena.KindSubmission, athena.KindNotFound, athena.KindNotReady:
			return errorResult(err.Error()), nil, nil
		}
	}
	return nil, nil, fmt.Errorf("%s: %w", tool, err)
}

// recordTerminal emits the per-query metrics for a terminal execution.
func recordTerminal(ctx context.Context, metrics *observability.Metrics, exec athena.QueryExecution) {
	var scanned int64
	var dur time.Duration
	if exec.Statistics != nil {
		scanned = exec.Statistics.BytesScanned
		dur = time.Duration(exec.Statistics.TotalTimeMillis) * time.Millisecond
	}
	if dur == 0 && exec.CompletedAt != nil {
		dur = exec.CompletedAt.Sub(exec.SubmittedAt)
	}
	metrics.RecordQueryTerminal(ctx, string(exec.State), scanned, dur)
}

func (d QueryDeps) waitRemote(ctx context.Context) error {
	if d.Limiter == nil {
		return nil
	}
	return d.Limiter.Wait(ctx, ratelimit.ServiceAthena)
}

// effectiveWorkgroup resolves the workgroup a submission will land in,
// for budget accounting.
func (d QueryDeps) effectiveWorkgroup(override string) string {
	if override != "" {
		return override
	}
	return d.Workgroup
}

func (d QueryDeps) pageSize(requested int32) int32 {
	if d.PageSize > 0 && (requested <= 0 || requested > d.PageSize) {
		return d.PageSize
	}
	return requested
}

type submitQueryInput struct {
	Query     string `json:"query"`
	Database  string `json:"database,omitempty"`
	Workgroup string `json:"workgroup,omitempty"`
}

func submitQueryHandler(deps QueryDeps) mcp.ToolHandlerFor[submitQueryInput, any] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input submitQueryInput) (*mcp.CallToolResult, any, error) {
		if input.Query == "" {
			return errorResult("query is required"), nil, nil
		}

		workgroup := deps.effectiveWorkgroup(input.Workgroup)
		if deps.Budget != nil {
			if err := deps.Budget.Check(workgroup); err != nil {
				return errorResult(err.Error()), nil, nil
			}
		}
		if err := deps.waitRemote(ctx); err != nil {
			return nil, nil, fmt.Errorf("submit_query: %w", err)
		}

		id, err := deps.Queries.Submit(ctx, input.Query, athena.SubmitOptions{
			Database:  input.Database,
			Workgroup: input.Workgroup,
		})
		if err != nil {
			return queryToolError("submit_query", err)
		}
		if deps.Budget != nil {
			deps.Budget.Record(workgroup)
		}

		return textResult(map[string]string{
			"execution_id": id,
			"state":        string(athena.StateQueued),
		})
	}
}

type runQueryInput struct {
	Query          string `json:"query"`
	Database       string `json:"database,omitempty"`
	Workgroup      string `json:"workgroup,omitempty"`
	MaxRows        int32  `json:"max_rows,omitempty"`
	TimeoutSeconds int    `json:"timeout_seconds,omitempty"`
}

// runQueryOutput is the convenience bundle for synchronous callers.
type runQueryOutput struct {
	Execution athena.QueryExecution `json:"execution"`
	Columns   []string              `json:"columns,omitempty"`
	Rows      [][]string            `json:"rows,omitempty"`
	NextPage  string                `json:"next_page_token,omitempty"`
}

func runQueryHandler(deps QueryDeps) mcp.ToolHandlerFor[runQueryInput, any] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input runQueryInput) (*mcp.CallToolResult, any, error) {
		if input.Query == "" {
			return errorResult("query is required"), nil, nil
		}

		workgroup := deps.effectiveWorkgroup(input.Workgroup)
		if deps.Budget != nil {
			if err := deps.Budget.Check(workgroup); err != nil {
				return errorResult(err.Error()), nil, nil
			}
		}
		if err := deps.waitRemote(ctx); err != nil {
			return nil, nil, fmt.Errorf("run_query: %w", err)
		}

		id, err := deps.Queries.Submit(ctx, input.Query, athena.SubmitOptions{
			Database:  input.Database,
			Workgroup: input.Workgroup,
		})
		if err != nil {
			return queryToolError("run_query", err)
		}
		if deps.Budget != nil {
			deps.Budget.Record(workgroup)
		}

		waiter := athena.NewWaiter(deps.Queries)
		waiter.CancelOnTimeout = true
		if input.TimeoutSeconds > 0 {
			waiter.Timeout = time.Duration(input.TimeoutSeconds) * time.Second
		}

		exec, err := waiter.Wait(ctx, id)
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				return errorResult(fmt.Sprintf("query %s timed out and was cancelled", id)), nil, nil
			}
			return queryToolError("run_query", err)
		}
		recordTerminal(ctx, deps.Metrics, exec)

		out := runQueryOutput{Execution: exec}
		if exec.State == athena.StateSucceeded {
			page, err := deps.Queries.GetResults(ctx, id, deps.pageSize(input.MaxRows), "")
			if err != nil {
				return queryToolError("run_query", err)
			}
			out.Columns = page.Columns
			out.Rows = page.Rows
			out.NextPage = page.NextPageToken
		}
		return textResult(out)
	}
}

type executionIDInput struct {
	ExecutionID string `json:"execution_id"`
}

func getQueryStatusHandler(deps QueryDeps) mcp.ToolHandlerFor[executionIDInput, any] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input executionIDInput) (*mcp.CallToolResult, any, error) {
		if input.ExecutionID == "" {
			return errorResult("execution_id is required"), nil, nil
		}

		prev, known := deps.Queries.Tracked(input.ExecutionID)
		cached := known && prev.State.Terminal()
		if !cached {
			// Only non-terminal lookups go to the remote service; the
			// limiter does not need to cover cache hits.
			if err := deps.waitRemote(ctx); err != nil {
				return nil, nil, fmt.Errorf("get_query_status: %w", err)
			}
		}

		exec, err := deps.Queries.GetStatus(ctx, input.ExecutionID)
		if err != nil {
			return queryToolError("get_query_status", err)
		}
		if cached {
			deps.Metrics.RecordCacheHit(ctx)
		} else if exec.State.Terminal() {
			recordTerminal(ctx, deps.Metrics, exec)
		}
		return textResult(exec)
	}
}

type getQueryResultsInput struct {
	ExecutionID string `json:"execution_id"`
	MaxResults  int32  `json:"max_results,omitempty"`
	PageToken   string `json:"page_token,omitempty"`
}

func getQueryResultsHandler(deps QueryDeps) mcp.ToolHandlerFor[getQueryResultsInput, any] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input getQueryResultsInput) (*mcp.CallToolResult, any, error) {
		if input.ExecutionID == "" {
			return errorResult("execution_id is required"), nil, nil
		}
		if err := deps.waitRemote(ctx); err != nil {
			return nil, nil, fmt.Errorf("get_query_results: %w", err)
		}

		page, err := deps.Queries.GetResults(ctx, input.ExecutionID, deps.pageSize(input.MaxResults), input.PageToken)
		if err != nil {
			return queryToolError("get_query_results", err)
		}
		return textResult(page)
	}
}

func cancelQueryHandler(deps QueryDeps) mcp.ToolHandlerFor[executionIDInput, any] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input executionIDInput) (*mcp.CallToolResult, any, error) {
		if input.ExecutionID == "" {
			return errorResult("execution_id is required"), nil, nil
		}
		if err := deps.waitRemote(ctx); err != nil {
			return nil, nil, fmt.Errorf("cancel_query: %w", err)
		}

		if err := deps.Queries.Cancel(ctx, input.ExecutionID); err != nil {
			return queryToolError("cancel_query", err)
		}
		return textResult(map[string]string{
			"execution_id": input.ExecutionID,
			"state":        string(athena.StateCancelled),
		})
	}
}

type estimateInput struct {
	Query string `json:"query"`
}

func estimateQueryCostHandler() mcp.ToolHandlerFor[estimateInput, any] {
	return func(_ context.Context, _ *mcp.CallToolRequest, input estimateInput) (*mcp.CallToolResult, any, error) {
		if input.Query == "" {
			return errorResult("query is required"), nil, nil
		}
		return textResult(athena.EstimateCost(input.Query))
	}
}

func listDatabasesHandler(deps QueryDeps) mcp.ToolHandlerFor[struct{}, any] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, _ struct{}) (*mcp.CallToolResult, any, error) {
		if err := deps.waitRemote(ctx); err != nil {
			return nil, nil, fmt.Errorf("list_databases: %w", err)
		}

		dbs, err := deps.Catalog.ListDatabases(ctx)
		if err != nil {
			return queryToolError("list_databases", err)
		}
		return textResult(dbs)
	}
}

type listTablesInput struct {
	Database string `json:"database"`
}

func listTablesHandler(deps QueryDeps) mcp.ToolHandlerFor[listTablesInput, any] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input listTablesInput) (*mcp.CallToolResult, any, error) {
		if input.Database == "" {
			return errorResult("database is required"), nil, nil
		}
		if err := deps.waitRemote(ctx); err != nil {
			return nil, nil, fmt.Errorf("list_tables: %w", err)
		}

		tables, err := deps.Catalog.ListTables(ctx, input.Database)
		if err != nil {
			return queryToolError("list_tables", err)
		}
		return textResult(map[string]any{"database": input.Database, "tables": tables})
	}
}

type tableMetadataInput struct {
	Database string `json:"database"`
	Table    string `json:"table"`
}

func getTableMetadataHandler(deps QueryDeps) mcp.ToolHandlerFor[tableMetadataInput, any] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input tableMetadataInput) (*mcp.CallToolResult, any, error) {
		if input.Database == "" || input.Table == "" {
			return errorResult("database and table are required"), nil, nil
		}
		if err := deps.waitRemote(ctx); err != nil {
			return nil, nil, fmt.Errorf("get_table_metadata: %w", err)
		}

		meta, err := deps.Catalog.GetTableMetadata(ctx, input.Database, input.Table)
		if err != nil {
			return queryToolError("get_table_metadata", err)
		}
		return textResult(meta)
	}
}

type downloadURLInput struct {
	ExecutionID   string `json:"execution_id"`
	ExpirySeconds int    `json:"expiry_seconds,omitempty"`
}

func getResultDownloadURLHandler(deps QueryDeps) mcp.ToolHandlerFor[downloadURLInput, any] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input downloadURLInput) (*mcp.CallToolResult, any, error) {
		if input.ExecutionID == "" {
			return errorResult("execution_id is required"), nil, nil
		}
		if deps.Presigner == nil {
			return errorResult("result downloads are not configured on this server"), nil, nil
		}

		exec, err := deps.Queries.GetStatus(ctx, input.ExecutionID)
		if err != nil {
			return queryToolError("get_result_download_url", err)
		}
		if exec.State != athena.StateSucceeded {
			return errorResult(fmt.Sprintf("query %s has not succeeded (state %s)", input.ExecutionID, exec.State)), nil, nil
		}
		if exec.ResultLocation == "" {
			return errorResult(fmt.Sprintf("query %s has no persisted result location", input.ExecutionID)), nil, nil
		}

		expiry := athena.DefaultDownloadExpiry
		if input.ExpirySeconds > 0 {
			expiry = time.Duration(input.ExpirySeconds) * time.Second
		}
		url, err := deps.Presigner.DownloadURL(ctx, exec.ResultLocation, expiry)
		if err != nil {
			return nil, nil, fmt.Errorf("get_result_download_url: %w", err)
		}
		return textResult(map[string]any{
			"execution_id": input.ExecutionID,
			"url":          url,
			"expires_in":   expiry.String(),
		})
	}
}

type spendSummaryInput struct {
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
}

func getSpendSummaryHandler(deps QueryDeps) mcp.ToolHandlerFor[spendSummaryInput, any] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input spendSummaryInput) (*mcp.CallToolResult, any, error) {
		if input.StartDate == "" || input.EndDate == "" {
			return errorResult("start_date and end_date are required"), nil, nil
		}
		for _, d := range []string{input.StartDate, input.EndDate} {
			if _, err := time.Parse("2006-01-02", d); err != nil {
				return errorResult(fmt.Sprintf("dates must be YYYY-MM-DD, got %q", d)), nil, nil
			}
		}
		if deps.Spend == nil {
			return errorResult("spend reporting is not configured on this server"), nil, nil
		}
		if deps.Limiter != nil {
			if err := deps.Limiter.Wait(ctx, ratelimit.ServiceCostExplorer); err != nil {
				return nil, nil, fmt.Errorf("get_spend_summary: %w", err)
			}
		}

		summary, err := deps.Spend.Summarize(ctx, input.StartDate, input.EndDate)
		if err != nil {
			return nil, nil, fmt.Errorf("get_spend_summary: %w", err)
		}
		return textResult(summary)
	}
}
