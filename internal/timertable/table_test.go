package timertable

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReserveAndReleaseRecyclesID(t *testing.T) {
	tbl := NewTable()
	before := tbl.FreeCount()

	c, ok := tbl.Reserve()
	require.True(t, ok)
	assert.Equal(t, Idle, c.State)
	assert.Equal(t, before-1, tbl.FreeCount())

	c.Lock()
	tbl.Release(c)
	c.Unlock()

	assert.Equal(t, before, tbl.FreeCount())
	assert.Equal(t, Invalid, c.State)
}

func TestReleaseHasNoPriorStatePrecondition(t *testing.T) {
	// Unlike worktable.Table.Release (which asserts Terminating),
	// timertable.Table.Release resets whatever state it finds - the
	// daemon's deferred-destruction path releases straight from
	// Destroyed, and RetireTimer releases from every state.
	tbl := NewTable()
	c, ok := tbl.Reserve()
	require.True(t, ok)

	c.Lock()
	c.State = Destroyed
	tbl.Release(c)
	c.Unlock()

	assert.Equal(t, Invalid, c.State)
}

func TestFetchOutOfRange(t *testing.T) {
	tbl := NewTable()
	assert.Nil(t, tbl.Fetch(65000))
}

func TestReserveExhaustion(t *testing.T) {
	tbl := NewTable()
	count := tbl.Count()
	for i := 0; i < count; i++ {
		_, ok := tbl.Reserve()
		require.True(t, ok)
	}
	_, ok := tbl.Reserve()
	assert.False(t, ok, "reserving past MaxTimerCount must fail")
}
