package input

import (
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryDisabledByDefault(t *testing.T) {
	r := NewRegistry()
	require.False(t, r.Enabled())

	var calls atomic.Int64
	r.Register(func(core int) { calls.Add(1) })
	r.Poll(0)

	assert.Zero(t, calls.Load())
}

func TestRegistryEnableDisable(t *testing.T) {
	r := NewRegistry()

	var calls atomic.Int64
	r.Register(func(core int) { calls.Add(1) })

	r.Enable()
	require.True(t, r.Enabled())
	r.Poll(0)
	r.Poll(1)
	assert.EqualValues(t, 2, calls.Load())

	r.Disable()
	r.Poll(0)
	assert.EqualValues(t, 2, calls.Load())
}

func TestRegistryMultipleCallbacks(t *testing.T) {
	r := NewRegistry()
	r.Enable()

	var seenCores []int
	r.Register(func(core int) { seenCores = append(seenCores, core) })
	r.Register(func(core int) { seenCores = append(seenCores, core) })

	r.Poll(3)
	assert.Equal(t, []int{3, 3}, seenCores)
}
