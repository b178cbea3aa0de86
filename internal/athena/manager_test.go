package athena

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	ath "github.com/aws/aws-sdk-go-v2/service/athena"
	athtypes "github.com/aws/aws-sdk-go-v2/service/athena/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockAPI struct {
	mu sync.Mutex

	startOut   *ath.StartQueryExecutionOutput
	startErr   error
	startCalls int

	// execOuts is served in order; the last entry repeats.
	execOuts  []*ath.GetQueryExecutionOutput
	execErr   error
	execCalls int

	// resPages is keyed by page token, "" for the first page.
	resPages map[string]*ath.GetQueryResultsOutput
	resErr   error
	resCalls int

	stopErr   error
	stopCalls int
}

func (m *mockAPI) StartQueryExecution(_ context.Context, _ *ath.StartQueryExecutionInput, _ ...func(*ath.Options)) (*ath.StartQueryExecutionOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.startCalls++
	if m.startErr != nil {
		return nil, m.startErr
	}
	return m.startOut, nil
}

func (m *mockAPI) GetQueryExecution(_ context.Context, _ *ath.GetQueryExecutionInput, _ ...func(*ath.Options)) (*ath.GetQueryExecutionOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.execCalls++
	if m.execErr != nil {
		return nil, m.execErr
	}
	if len(m.execOuts) == 0 {
		return &ath.GetQueryExecutionOutput{}, nil
	}
	out := m.execOuts[0]
	if len(m.execOuts) > 1 {
		m.execOuts = m.execOuts[1:]
	}
	return out, nil
}

func (m *mockAPI) GetQueryResults(_ context.Context, in *ath.GetQueryResultsInput, _ ...func(*ath.Options)) (*ath.GetQueryResultsOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resCalls++
	if m.resErr != nil {
		return nil, m.resErr
	}
	if out, ok := m.resPages[aws.ToString(in.NextToken)]; ok {
		return out, nil
	}
	return &ath.GetQueryResultsOutput{}, nil
}

func (m *mockAPI) StopQueryExecution(_ context.Context, _ *ath.StopQueryExecutionInput, _ ...func(*ath.Options)) (*ath.StopQueryExecutionOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopCalls++
	if m.stopErr != nil {
		return nil, m.stopErr
	}
	return &ath.StopQueryExecutionOutput{}, nil
}

func statusOut(state athtypes.QueryExecutionState) *ath.GetQueryExecutionOutput {
	return &ath.GetQueryExecutionOutput{
		QueryExecution: &athtypes.QueryExecution{
			QueryExecutionId: aws.String("exec-1"),
			Status: &athtypes.QueryExecutionStatus{
				State:              state,
				SubmissionDateTime: aws.Time(time.Date(2025, 3, 7, 12, 0, 0, 0, time.UTC)),
			},
		},
	}
}

func textRow(vals ...string) athtypes.Row {
	data := make([]athtypes.Datum, len(vals))
	for i, v := range vals {
		data[i] = athtypes.Datum{VarCharValue: aws.String(v)}
	}
	return athtypes.Row{Data: data}
}

func resultMetadata(names ...string) *athtypes.ResultSetMetadata {
	cols := make([]athtypes.ColumnInfo, len(names))
	for i, n := range names {
		cols[i] = athtypes.ColumnInfo{Name: aws.String(n), Type: aws.String("varchar")}
	}
	return &athtypes.ResultSetMetadata{ColumnInfo: cols}
}

func newTestManager(mock *mockAPI) (*Manager, *ExecStore) {
	store := NewExecStore()
	return NewFromAPI(mock, store, "analytics", "primary", "s3://results/"), store
}

func TestSubmit_TracksExecution(t *testing.T) {
	mock := &mockAPI{startOut: &ath.StartQueryExecutionOutput{QueryExecutionId: aws.String("exec-1")}}
	mgr, store := newTestManager(mock)

	id, err := mgr.Submit(context.Background(), "SELECT 1", SubmitOptions{})
	require.NoError(t, err)
	assert.Equal(t, "exec-1", id)
	assert.Equal(t, 1, mock.startCalls)

	exec, ok := store.Get("exec-1")
	require.True(t, ok)
	assert.Equal(t, StateQueued, exec.State)
	assert.Equal(t, "SELECT 1", exec.QueryText)
	assert.False(t, exec.SubmittedAt.IsZero())
}

func TestSubmit_EmptyQuery(t *testing.T) {
	mock := &mockAPI{}
	mgr, _ := newTestManager(mock)

	_, err := mgr.Submit(context.Background(), "   ", SubmitOptions{})
	require.Error(t, err)
	assert.True(t, IsSubmission(err))
	assert.Zero(t, mock.startCalls)
}

func TestSubmit_RemoteRejection(t *testing.T) {
	mock := &mockAPI{startErr: &athtypes.InvalidRequestException{
		Message: aws.String("line 1:8: mismatched input 'FORM'"),
	}}
	mgr, store := newTestManager(mock)

	_, err := mgr.Submit(context.Background(), "SELECT 1 FORM t", SubmitOptions{})
	require.Error(t, err)
	assert.True(t, IsSubmission(err))
	assert.Zero(t, store.Len())
}

func TestGetStatus_UnknownExecution(t *testing.T) {
	mock := &mockAPI{execErr: &athtypes.InvalidRequestException{
		Message: aws.String("QueryExecution exec-404 was not found"),
	}}
	mgr, store := newTestManager(mock)

	_, err := mgr.GetStatus(context.Background(), "exec-404")
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
	assert.Equal(t, 1, mock.execCalls)
	assert.Zero(t, store.Len())
}

func TestGetStatus_CachesRemoteRead(t *testing.T) {
	mock := &mockAPI{execOuts: []*ath.GetQueryExecutionOutput{
		statusOut(athtypes.QueryExecutionStateRunning),
	}}
	mgr, store := newTestManager(mock)

	exec, err := mgr.GetStatus(context.Background(), "exec-1")
	require.NoError(t, err)
	assert.Equal(t, StateRunning, exec.State)
	assert.Equal(t, 1, mock.execCalls)

	cached, ok := store.Get("exec-1")
	require.True(t, ok)
	assert.Equal(t, StateRunning, cached.State)
}

func TestGetStatus_TerminalServedFromCache(t *testing.T) {
	mock := &mockAPI{}
	mgr, store := newTestManager(mock)
	store.Put(QueryExecution{ExecutionID: "exec-9", State: StateFailed, StateReason: "exceeded scan limit"})

	exec, err := mgr.GetStatus(context.Background(), "exec-9")
	require.NoError(t, err)
	assert.Equal(t, StateFailed, exec.State)
	assert.Equal(t, "exceeded scan limit", exec.StateReason)
	assert.Zero(t, mock.execCalls)
}

func TestGetStatus_NetworkError(t *testing.T) {
	mock := &mockAPI{execErr: errors.New("dial tcp: i/o timeout")}
	mgr, _ := newTestManager(mock)

	_, err := mgr.GetStatus(context.Background(), "exec-1")
	require.Error(t, err)
	assert.True(t, IsTransport(err))
}

func TestLifecycle_ThreePollsThenCached(t *testing.T) {
	completed := time.Date(2025, 3, 7, 12, 0, 3, 0, time.UTC)
	succeeded := &ath.GetQueryExecutionOutput{
		QueryExecution: &athtypes.QueryExecution{
			QueryExecutionId: aws.String("exec-1"),
			Query:            aws.String("SELECT 1"),
			Status: &athtypes.QueryExecutionStatus{
				State:              athtypes.QueryExecutionStateSucceeded,
				SubmissionDateTime: aws.Time(completed.Add(-3 * time.Second)),
				CompletionDateTime: aws.Time(completed),
			},
			Statistics: &athtypes.QueryExecutionStatistics{
				DataScannedInBytes: aws.Int64(1024),
			},
		},
	}
	mock := &mockAPI{
		startOut: &ath.StartQueryExecutionOutput{QueryExecutionId: aws.String("exec-1")},
		execOuts: []*ath.GetQueryExecutionOutput{
			statusOut(athtypes.QueryExecutionStateQueued),
			statusOut(athtypes.QueryExecutionStateRunning),
			succeeded,
		},
	}
	mgr, _ := newTestManager(mock)

	id, err := mgr.Submit(context.Background(), "SELECT 1", SubmitOptions{})
	require.NoError(t, err)

	var states []State
	for i := 0; i < 3; i++ {
		exec, err := mgr.GetStatus(context.Background(), id)
		require.NoError(t, err)
		states = append(states, exec.State)
	}
	assert.Equal(t, []State{StateQueued, StateRunning, StateSucceeded}, states)
	assert.Equal(t, 3, mock.execCalls)

	// The terminal record is immutable; a fourth status call must not
	// reach the remote service.
	final, err := mgr.GetStatus(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, StateSucceeded, final.State)
	require.NotNil(t, final.Statistics)
	assert.Equal(t, int64(1024), final.Statistics.BytesScanned)
	require.NotNil(t, final.CompletedAt)
	assert.Equal(t, "SELECT 1", final.QueryText)
	assert.Equal(t, 3, mock.execCalls)
}

func TestGetResults_NotReady(t *testing.T) {
	mock := &mockAPI{resErr: &athtypes.InvalidRequestException{
		Message: aws.String("Query has not yet finished. Current state: RUNNING"),
	}}
	mgr, _ := newTestManager(mock)

	_, err := mgr.GetResults(context.Background(), "exec-1", 0, "")
	require.Error(t, err)
	assert.True(t, IsNotReady(err))
}

func TestGetResults_FailedQuery(t *testing.T) {
	mock := &mockAPI{resErr: &athtypes.InvalidRequestException{
		Message: aws.String("Query did not finish successfully. Final query state: FAILED"),
	}}
	mgr, _ := newTestManager(mock)

	_, err := mgr.GetResults(context.Background(), "exec-1", 0, "")
	require.Error(t, err)
	assert.True(t, IsNotReady(err))
}

func TestGetResults_HeaderRowExcludedOnce(t *testing.T) {
	mock := &mockAPI{resPages: map[string]*ath.GetQueryResultsOutput{
		"": {
			ResultSet: &athtypes.ResultSet{
				ResultSetMetadata: resultMetadata("id", "name"),
				Rows: []athtypes.Row{
					textRow("id", "name"),
					textRow("1", "alpha"),
					textRow("2", "beta"),
				},
			},
		},
	}}
	mgr, _ := newTestManager(mock)

	page, err := mgr.GetResults(context.Background(), "exec-1", 0, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "name"}, page.Columns)
	assert.Equal(t, [][]string{{"1", "alpha"}, {"2", "beta"}}, page.Rows)
}

func TestGetResults_ShowStatementKeepsFirstRow(t *testing.T) {
	// SHOW TABLES output carries no header row; row 0 is data.
	mock := &mockAPI{resPages: map[string]*ath.GetQueryResultsOutput{
		"": {
			ResultSet: &athtypes.ResultSet{
				ResultSetMetadata: resultMetadata("tab_name"),
				Rows:              []athtypes.Row{textRow("orders"), textRow("users")},
			},
		},
	}}
	mgr, _ := newTestManager(mock)

	page, err := mgr.GetResults(context.Background(), "exec-1", 0, "")
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"orders"}, {"users"}}, page.Rows)
}

func TestGetResults_PaginationRoundTrip(t *testing.T) {
	paged := &mockAPI{resPages: map[string]*ath.GetQueryResultsOutput{
		"": {
			ResultSet: &athtypes.ResultSet{
				ResultSetMetadata: resultMetadata("id", "name"),
				Rows: []athtypes.Row{
					textRow("id", "name"),
					textRow("1", "alpha"),
					textRow("2", "beta"),
				},
			},
			NextToken: aws.String("page-2"),
		},
		"page-2": {
			ResultSet: &athtypes.ResultSet{
				ResultSetMetadata: resultMetadata("id", "name"),
				Rows: []athtypes.Row{
					textRow("3", "gamma"),
					textRow("4", "delta"),
				},
			},
		},
	}}
	mgr, _ := newTestManager(paged)

	var rows [][]string
	token := ""
	pages := 0
	for {
		page, err := mgr.GetResults(context.Background(), "exec-1", 2, token)
		require.NoError(t, err)
		rows = append(rows, page.Rows...)
		pages++
		if page.NextPageToken == "" {
			break
		}
		token = page.NextPageToken
	}
	assert.Equal(t, 2, pages)
	assert.Equal(t, 2, paged.resCalls)

	single := &mockAPI{resPages: map[string]*ath.GetQueryResultsOutput{
		"": {
			ResultSet: &athtypes.ResultSet{
				ResultSetMetadata: resultMetadata("id", "name"),
				Rows: []athtypes.Row{
					textRow("id", "name"),
					textRow("1", "alpha"),
					textRow("2", "beta"),
					textRow("3", "gamma"),
					textRow("4", "delta"),
				},
			},
		},
	}}
	mgrSingle, _ := newTestManager(single)

	all, err := mgrSingle.GetResults(context.Background(), "exec-1", 0, "")
	require.NoError(t, err)
	assert.Equal(t, all.Rows, rows)
}

func TestCancel_PrunesTracking(t *testing.T) {
	mock := &mockAPI{}
	mgr, store := newTestManager(mock)
	store.Put(QueryExecution{ExecutionID: "exec-1", State: StateRunning})

	require.NoError(t, mgr.Cancel(context.Background(), "exec-1"))
	assert.Equal(t, 1, mock.stopCalls)
	assert.Zero(t, store.Len())
}

func TestCancel_Idempotent(t *testing.T) {
	// The remote service treats a stop on an already-finished execution as
	// success, so a second cancel never errors.
	mock := &mockAPI{}
	mgr, _ := newTestManager(mock)

	require.NoError(t, mgr.Cancel(context.Background(), "exec-1"))
	require.NoError(t, mgr.Cancel(context.Background(), "exec-1"))
	assert.Equal(t, 2, mock.stopCalls)
}

func TestCancel_StopRejected(t *testing.T) {
	mock := &mockAPI{stopErr: &athtypes.InternalServerException{
		Message: aws.String("internal service error"),
	}}
	mgr, store := newTestManager(mock)
	store.Put(QueryExecution{ExecutionID: "exec-1", State: StateRunning})

	err := mgr.Cancel(context.Background(), "exec-1")
	require.Error(t, err)
	assert.True(t, IsCancellation(err))
	assert.Equal(t, 1, store.Len())
}

func TestCancel_NetworkError(t *testing.T) {
	mock := &mockAPI{stopErr: errors.New("dial tcp: connection refused")}
	mgr, _ := newTestManager(mock)

	err := mgr.Cancel(context.Background(), "exec-1")
	require.Error(t, err)
	assert.True(t, IsTransport(err))
}
