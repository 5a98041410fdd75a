package shmem

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRefPutBalancedChain(t *testing.T) {
	b := Get(RuntimeShared, 1024)
	assert.EqualValues(t, 1, b.RefCount())

	b.Ref()
	assert.EqualValues(t, 2, b.RefCount())

	b.Put()
	assert.EqualValues(t, 1, b.RefCount())

	b.Put()
	assert.EqualValues(t, 0, b.RefCount())
}

func TestPutUnderflowIsFatal(t *testing.T) {
	b := Get(Local, 16)
	b.Put()

	assert.Panics(t, func() { b.Put() }, "releasing past a zero refcount must be fatal")
}

func TestInitSharedReleaseIsNonFatal(t *testing.T) {
	b := Get(InitShared, 16)
	assert.NotPanics(t, func() { b.Put() }, "releasing InitShared memory is a logged programming error, not fatal")
}

func TestRuntimeSharedBucketSizing(t *testing.T) {
	b := Get(RuntimeShared, 100)
	assert.Len(t, b.Data, 100)
	assert.GreaterOrEqual(t, cap(b.Data), 100)
	b.Put()
}
