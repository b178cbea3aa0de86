package athena

import "sync"

// ExecStore caches the latest known QueryExecution per execution id. It is
// the only shared mutable state in the package. Entries live for the
// lifetime of the process; nothing is persisted across restarts.
type ExecStore struct {
	mu    sync.RWMutex
	execs map[string]QueryExecution
}

// NewExecStore returns an empty store.
func NewExecStore() *ExecStore {
	return &ExecStore{execs: make(map[string]QueryExecution)}
}

// Get returns the cached execution for id.
func (s *ExecStore) Get(id string) (QueryExecution, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	exec, ok := s.execs[id]
	return exec, ok
}

// Put stores the latest known state of an execution. Concurrent writers for
// the same id race last-writer-wins, which is safe because every value
// derives from an authoritative remote read.
func (s *ExecStore) Put(exec QueryExecution) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.execs[exec.ExecutionID] = exec
}

// Delete removes an execution from the cache.
func (s *ExecStore) Delete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.execs, id)
}

// Len reports the number of tracked executions.
func (s *ExecStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.execs)
}
