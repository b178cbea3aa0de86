package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueryBudget_UnderLimit(t *testing.T) {
	b := NewQueryBudget(5, time.Minute)

	err := b.Check("primary")
	require.NoError(t, err)

	b.Record("primary")
	b.Record("primary")

	err = b.Check("primary")
	assert.NoError(t, err)
}

func TestQueryBudget_ExceedsLimit(t *testing.T) {
	b := NewQueryBudget(2, time.Minute)

	b.Record("primary")
	b.Record("primary")

	err := b.Check("primary")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "budget exceeded")
}

func TestQueryBudget_WindowReset(t *testing.T) {
	b := NewQueryBudget(2, time.Minute)

	now := time.Now()
	b.now = func() time.Time { return now }

	b.Record("primary")
	b.Record("primary")
	err := b.Check("primary")
	assert.Error(t, err)

	// Advance time past window.
	b.now = func() time.Time { return now.Add(2 * time.Minute) }
	err = b.Check("primary")
	assert.NoError(t, err)
}

func TestQueryBudget_IndependentWorkgroups(t *testing.T) {
	b := NewQueryBudget(1, time.Minute)

	b.Record("primary")
	err := b.Check("primary")
	assert.Error(t, err)

	// A different workgroup has its own budget.
	err = b.Check("adhoc")
	assert.NoError(t, err)
}
