// Package athena tracks the lifecycle of queries submitted to the AWS
// Athena execution service: submit, poll status, fetch paginated results,
// cancel. The manager performs exactly the remote calls each operation
// names and returns; polling loops, retries, backoff and timeouts are the
// caller's responsibility (see Waiter).
package athena

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	ath "github.com/aws/aws-sdk-go-v2/service/athena"
	athtypes "github.com/aws/aws-sdk-go-v2/service/athena/types"
)

// API is the subset of the Athena client used by the Manager.
type API interface {
	StartQueryExecution(ctx context.Context, params *ath.StartQueryExecutionInput, optFns ...func(*ath.Options)) (*ath.StartQueryExecutionOutput, error)
	GetQueryExecution(ctx context.Context, params *ath.GetQueryExecutionInput, optFns ...func(*ath.Options)) (*ath.GetQueryExecutionOutput, error)
	GetQueryResults(ctx context.Context, params *ath.GetQueryResultsInput, optFns ...func(*ath.Options)) (*ath.GetQueryResultsOutput, error)
	StopQueryExecution(ctx context.Context, params *ath.StopQueryExecutionInput, optFns ...func(*ath.Options)) (*ath.StopQueryExecutionOutput, error)
}

// Manager owns the mapping from execution ids to their remote query
// executions. It caches the latest known status in an injected ExecStore so
// terminal states are served without another remote round-trip.
type Manager struct {
	api       API
	store     *ExecStore
	database  string
	workgroup string
	outputLoc string
}

// New creates a Manager backed by the real Athena client.
func New(cfg aws.Config, store *ExecStore, database, workgroup, outputLoc string) *Manager {
	return NewFromAPI(ath.NewFromConfig(cfg), store, database, workgroup, outputLoc)
}

// NewFromAPI creates a Manager from an explicit API implementation (for testing).
func NewFromAPI(api API, store *ExecStore, database, workgroup, outputLoc string) *Manager {
	return &Manager{
		api:       api,
		store:     store,
		database:  database,
		workgroup: workgroup,
		outputLoc: outputLoc,
	}
}

// SubmitOptions override the manager's default database and workgroup for
// a single submission.
type SubmitOptions struct {
	Database  string
	Workgroup string
}

// Submit starts a remote execution of queryText and begins tracking it.
// The remote service assigns the execution id. Submission failures are not
// retried.
func (m *Manager) Submit(ctx context.Context, queryText string, opts SubmitOptions) (string, error) {
	if strings.TrimSpace(queryText) == "" {
		return "", &Error{Kind: KindSubmission, Op: opSubmit, Err: errors.New("query text is empty")}
	}

	database := m.database
	if opts.Database != "" {
		database = opts.Database
	}
	workgroup := m.workgroup
	if opts.Workgroup != "" {
		workgroup = opts.Workgroup
	}

	in := &ath.StartQueryExecutionInput{
		QueryString: aws.String(queryText),
	}
	if database != "" {
		in.QueryExecutionContext = &athtypes.QueryExecutionContext{Database: aws.String(database)}
	}
	if workgroup != "" {
		in.WorkGroup = aws.String(workgroup)
	}
	if m.outputLoc != "" {
		in.ResultConfiguration = &athtypes.ResultConfiguration{OutputLocation: aws.String(m.outputLoc)}
	}

	out, err := m.api.StartQueryExecution(ctx, in)
	if err != nil {
		return "", wrapRemote(opSubmit, "", err)
	}

	id := aws.ToString(out.QueryExecutionId)
	m.store.Put(QueryExecution{
		ExecutionID: id,
		QueryText:   queryText,
		State:       StateQueued,
		SubmittedAt: time.Now().UTC(),
	})
	return id, nil
}

// GetStatus returns the current state of an execution. Terminal states are
// immutable, so a cached terminal record is returned without a remote call;
// anything else performs exactly one remote status fetch and updates the
// cache before returning.
func (m *Manager) GetStatus(ctx context.Context, executionID string) (QueryExecution, error) {
	if cached, ok := m.store.Get(executionID); ok && cached.State.Terminal() {
		return cached, nil
	}

	out, err := m.api.GetQueryExecution(ctx, &ath.GetQueryExecutionInput{
		QueryExecutionId: aws.String(executionID),
	})
	if err != nil {
		return QueryExecution{}, wrapRemote(opGetStatus, executionID, err)
	}
	if out.QueryExecution == nil || out.QueryExecution.Status == nil {
		return QueryExecution{}, &Error{
			Kind: KindTransport, Op: opGetStatus, ExecutionID: executionID,
			Err: errors.New("remote returned no execution status"),
		}
	}

	exec := fromRemote(out.QueryExecution)
	if exec.ExecutionID == "" {
		exec.ExecutionID = executionID
	}
	if prev, ok := m.store.Get(executionID); ok {
		if exec.QueryText == "" {
			exec.QueryText = prev.QueryText
		}
		if exec.SubmittedAt.IsZero() {
			exec.SubmittedAt = prev.SubmittedAt
		}
	}
	m.store.Put(exec)
	return exec, nil
}

// ResultPage is one page of query results. Columns carries the header the
// remote service reports for the result set; Rows never includes the
// header row some backends prepend to the first page.
type ResultPage struct {
	Columns       []string   `json:"columns,omitempty"`
	Rows          [][]string `json:"rows"`
	NextPageToken string     `json:"next_page_token,omitempty"`
}

// GetResults fetches one page of results. It is valid only once the
// execution has SUCCEEDED; earlier calls surface the remote service's
// rejection as a NotReady error rather than an empty page. The page token
// is opaque and forwarded verbatim; callers loop until NextPageToken is
// empty to obtain all rows.
func (m *Manager) GetResults(ctx context.Context, executionID string, maxResults int32, pageToken string) (ResultPage, error) {
	in := &ath.GetQueryResultsInput{
		QueryExecutionId: aws.String(executionID),
	}
	if maxResults > 0 {
		in.MaxResults = aws.Int32(maxResults)
	}
	if pageToken != "" {
		in.NextToken = aws.String(pageToken)
	}

	out, err := m.api.GetQueryResults(ctx, in)
	if err != nil {
		return ResultPage{}, wrapRemote(opGetResults, executionID, err)
	}

	page := ResultPage{NextPageToken: aws.ToString(out.NextToken)}
	if out.ResultSet == nil {
		return page, nil
	}

	if md := out.ResultSet.ResultSetMetadata; md != nil {
		for _, ci := range md.ColumnInfo {
			page.Columns = append(page.Columns, aws.ToString(ci.Name))
		}
	}

	rows := out.ResultSet.Rows
	// Athena prepends a header row to the first page of SELECT results but
	// not to SHOW or DDL output, so row 0 is data unless it repeats the
	// column names.
	if pageToken == "" && len(rows) > 0 && isHeaderRow(rows[0], page.Columns) {
		rows = rows[1:]
	}
	page.Rows = make([][]string, 0, len(rows))
	for _, r := range rows {
		page.Rows = append(page.Rows, datumStrings(r.Data))
	}
	return page, nil
}

// Cancel issues a remote stop request and prunes the local record.
// Cancelled executions are not cached: a later GetStatus becomes a fresh
// remote fetch, which reports CANCELLED. Cancelling an already-terminal
// execution is not an error.
func (m *Manager) Cancel(ctx context.Context, executionID string) error {
	if _, err := m.api.StopQueryExecution(ctx, &ath.StopQueryExecutionInput{
		QueryExecutionId: aws.String(executionID),
	}); err != nil {
		return wrapRemote(opCancel, executionID, err)
	}
	m.store.Delete(executionID)
	return nil
}

// Tracked returns the cached execution for id without any remote call.
func (m *Manager) Tracked(executionID string) (QueryExecution, bool) {
	return m.store.Get(executionID)
}

func isHeaderRow(row athtypes.Row, columns []string) bool {
	if len(columns) == 0 || len(row.Data) != len(columns) {
		return false
	}
	for i, d := range row.Data {
		if aws.ToString(d.VarCharValue) != columns[i] {
			return false
		}
	}
	return true
}

func datumStrings(data []athtypes.Datum) []string {
	vals := make([]string, len(data))
	for i, d := range data {
		vals[i] = aws.ToString(d.VarCharValue)
	}
	return vals
}
