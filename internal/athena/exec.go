package athena

import (
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	athtypes "github.com/aws/aws-sdk-go-v2/service/athena/types"
)

// State is the remote-reported lifecycle state of a query execution.
type State string

const (
	StateQueued    State = "QUEUED"
	StateRunning   State = "RUNNING"
	StateSucceeded State = "SUCCEEDED"
	StateFailed    State = "FAILED"
	StateCancelled State = "CANCELLED"
)

// Terminal reports whether no further state transitions can occur.
func (s State) Terminal() bool {
	switch s {
	case StateSucceeded, StateFailed, StateCancelled:
		return true
	}
	return false
}

// QueryExecution is the locally tracked view of one submitted query. The
// remote service is the source of truth; every field except QueryText is
// overwritten by status polls until the state turns terminal.
type QueryExecution struct {
	ExecutionID    string          `json:"execution_id"`
	QueryText      string          `json:"query_text,omitempty"`
	State          State           `json:"state"`
	StateReason    string          `json:"state_reason,omitempty"`
	SubmittedAt    time.Time       `json:"submitted_at"`
	CompletedAt    *time.Time      `json:"completed_at,omitempty"`
	Statistics     *ExecStatistics `json:"statistics,omitempty"`
	ResultLocation string          `json:"result_location,omitempty"`
}

// ExecStatistics carries engine metrics, populated only once a query
// reaches a terminal state.
type ExecStatistics struct {
	BytesScanned     int64 `json:"bytes_scanned"`
	EngineTimeMillis int64 `json:"engine_time_millis"`
	TotalTimeMillis  int64 `json:"total_time_millis"`
}

// fromRemote converts the Athena wire representation into the local model.
func fromRemote(qe *athtypes.QueryExecution) QueryExecution {
	exec := QueryExecution{
		ExecutionID: aws.ToString(qe.QueryExecutionId),
		QueryText:   aws.ToString(qe.Query),
	}
	if st := qe.Status; st != nil {
		exec.State = State(st.State)
		exec.StateReason = aws.ToString(st.StateChangeReason)
		if st.SubmissionDateTime != nil {
			exec.SubmittedAt = *st.SubmissionDateTime
		}
		if st.CompletionDateTime != nil && exec.State.Terminal() {
			t := *st.CompletionDateTime
			exec.CompletedAt = &t
		}
	}
	if stats := qe.Statistics; stats != nil && exec.State.Terminal() {
		exec.Statistics = &ExecStatistics{
			BytesScanned:     aws.ToInt64(stats.DataScannedInBytes),
			EngineTimeMillis: aws.ToInt64(stats.EngineExecutionTimeInMillis),
			TotalTimeMillis:  aws.ToInt64(stats.TotalExecutionTimeInMillis),
		}
	}
	if rc := qe.ResultConfiguration; rc != nil {
		exec.ResultLocation = aws.ToString(rc.OutputLocation)
	}
	return exec
}
