package mlrunner

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRunner struct {
	block  chan struct{}
	result json.RawMessage
	err    error
	calls  atomic.Int32
}

func (f *fakeRunner) RunScript(ctx context.Context, _ string, _ any, _ map[string]string) (json.RawMessage, error) {
	f.calls.Add(1)
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return f.result, f.err
}

func waitForTerminal(t *testing.T, jobs *Jobs, id string) Job {
	t.Helper()
	require.Eventually(t, func() bool {
		job, err := jobs.Get(id)
		return err == nil && job.State.Terminal()
	}, 2*time.Second, 5*time.Millisecond)

	job, err := jobs.Get(id)
	require.NoError(t, err)
	return job
}

func TestSubmit_ReturnsImmediately(t *testing.T) {
	runner := &fakeRunner{block: make(chan struct{}), result: json.RawMessage(`{"ok":true}`)}
	jobs := NewJobs(runner)

	job := jobs.Submit(context.Background(), "detect_anomalies", nil, nil)
	assert.NotEmpty(t, job.ID)
	assert.Equal(t, JobRunning, job.State)
	assert.Nil(t, job.CompletedAt)

	close(runner.block)
	done := waitForTerminal(t, jobs, job.ID)
	assert.Equal(t, JobSucceeded, done.State)
	assert.JSONEq(t, `{"ok":true}`, string(done.Result))
	assert.NotNil(t, done.CompletedAt)
}

func TestResult_BeforeCompletion(t *testing.T) {
	runner := &fakeRunner{block: make(chan struct{}), result: json.RawMessage(`1`)}
	jobs := NewJobs(runner)

	job := jobs.Submit(context.Background(), "train_model", nil, nil)

	_, err := jobs.Result(job.ID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "has not yet finished")

	close(runner.block)
	waitForTerminal(t, jobs, job.ID)

	result, err := jobs.Result(job.ID)
	require.NoError(t, err)
	assert.Equal(t, "1", string(result))
}

func TestSubmit_FailureRecorded(t *testing.T) {
	runner := &fakeRunner{err: errors.New("script exploded")}
	jobs := NewJobs(runner)

	job := jobs.Submit(context.Background(), "detect_anomalies", nil, nil)
	done := waitForTerminal(t, jobs, job.ID)

	assert.Equal(t, JobFailed, done.State)
	assert.Contains(t, done.Error, "script exploded")

	_, err := jobs.Result(job.ID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "did not finish successfully")
}

func TestCancel_StopsRunningJob(t *testing.T) {
	runner := &fakeRunner{block: make(chan struct{})}
	jobs := NewJobs(runner)

	job := jobs.Submit(context.Background(), "detect_anomalies", nil, nil)
	require.NoError(t, jobs.Cancel(job.ID))

	done := waitForTerminal(t, jobs, job.ID)
	assert.Equal(t, JobCancelled, done.State)

	// Cancelling a finished job is a no-op.
	assert.NoError(t, jobs.Cancel(job.ID))
}

func TestCancel_UnknownJob(t *testing.T) {
	jobs := NewJobs(&fakeRunner{})
	err := jobs.Cancel("does-not-exist")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestGet_UnknownJob(t *testing.T) {
	jobs := NewJobs(&fakeRunner{})
	_, err := jobs.Get("does-not-exist")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestSubmit_DetachesFromCallerContext(t *testing.T) {
	runner := &fakeRunner{block: make(chan struct{}), result: json.RawMessage(`2`)}
	jobs := NewJobs(runner)

	callerCtx, cancelCaller := context.WithCancel(context.Background())
	job := jobs.Submit(callerCtx, "detect_anomalies", nil, nil)

	// The tool call that submitted the job returns and its context dies;
	// the job must keep running.
	cancelCaller()
	time.Sleep(20 * time.Millisecond)
	current, err := jobs.Get(job.ID)
	require.NoError(t, err)
	assert.Equal(t, JobRunning, current.State)

	close(runner.block)
	done := waitForTerminal(t, jobs, job.ID)
	assert.Equal(t, JobSucceeded, done.State)
}

func TestList(t *testing.T) {
	runner := &fakeRunner{result: json.RawMessage(`{}`)}
	jobs := NewJobs(runner)

	first := jobs.Submit(context.Background(), "detect_anomalies", nil, nil)
	second := jobs.Submit(context.Background(), "train_model", nil, nil)
	waitForTerminal(t, jobs, first.ID)
	waitForTerminal(t, jobs, second.ID)

	all := jobs.List()
	assert.Len(t, all, 2)
}
