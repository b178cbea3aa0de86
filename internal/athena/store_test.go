package athena

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecStore_PutGetDelete(t *testing.T) {
	store := NewExecStore()

	_, ok := store.Get("exec-1")
	assert.False(t, ok)

	store.Put(QueryExecution{ExecutionID: "exec-1", State: StateQueued})
	exec, ok := store.Get("exec-1")
	require.True(t, ok)
	assert.Equal(t, StateQueued, exec.State)
	assert.Equal(t, 1, store.Len())

	store.Put(QueryExecution{ExecutionID: "exec-1", State: StateRunning})
	exec, _ = store.Get("exec-1")
	assert.Equal(t, StateRunning, exec.State)
	assert.Equal(t, 1, store.Len())

	store.Delete("exec-1")
	_, ok = store.Get("exec-1")
	assert.False(t, ok)
	assert.Zero(t, store.Len())
}

func TestExecStore_DeleteUnknownIsNoop(t *testing.T) {
	store := NewExecStore()
	store.Delete("never-seen")
	assert.Zero(t, store.Len())
}

func TestExecStore_ConcurrentAccess(t *testing.T) {
	store := NewExecStore()

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			id := fmt.Sprintf("exec-%d", n%4)
			store.Put(QueryExecution{ExecutionID: id, State: StateRunning})
			store.Get(id)
			store.Len()
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 4, store.Len())
}
