package coremap

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolveIsStableForSameMask(t *testing.T) {
	m := New()
	a := m.Resolve(0b1111)
	b := m.Resolve(0b1111)
	assert.Equal(t, a, b)
}

func TestResolveAssignsDistinctHandles(t *testing.T) {
	m := New()
	a := m.Resolve(0b0001)
	b := m.Resolve(0b0011)
	assert.NotEqual(t, a, b)
	assert.Equal(t, 2, m.Len())
}
