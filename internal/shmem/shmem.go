// Package shmem implements the platform's reference-counted memory
// blocks. In a single-process runtime the three pools are a refcounting
// and allocation-strategy distinction, not distinct memory regions:
// every per-core goroutine already shares one heap.
//
// RuntimeShared allocation draws from a ladder of size-bucketed
// sync.Pools so that repeated alloc/free cycles of the hot pool don't
// pressure the GC the way Local's plain make() would.
package shmem

import (
	"sync"
	"sync/atomic"

	"github.com/forkcore/platform/internal/logging"
	"github.com/forkcore/platform/internal/pcore"
)

// Pool identifies which allocation discipline a Block was obtained from.
type Pool uint8

const (
	// Local is private, non-shared, plain heap memory - released the
	// instant its refcount drops to zero.
	Local Pool = iota
	// InitShared is page-backed memory allocated once during bring-up
	// and never released for the life of the process.
	InitShared
	// RuntimeShared is drawn from a platform-wide, size-bucketed event
	// pool and returned to that pool once its refcount drops to zero.
	RuntimeShared
)

func (p Pool) String() string {
	switch p {
	case Local:
		return "local"
	case InitShared:
		return "init-shared"
	case RuntimeShared:
		return "runtime-shared"
	default:
		return "unknown"
	}
}

// Block is a reference-counted memory region. Every Get must be matched
// by a chain of Ref/Put calls; Put underflow (releasing past zero) is
// fatal, and releasing an InitShared block to zero is a non-fatal
// programming error logged and otherwise ignored (InitShared memory
// outlives every runtime refcount by design).
type Block struct {
	refCount int32
	pool     Pool
	Data     []byte
}

// Get allocates a block of size bytes from pool, with an initial
// refcount of one.
func Get(pool Pool, size int) *Block {
	var data []byte
	switch pool {
	case RuntimeShared:
		data = getPooled(size)
	default:
		data = make([]byte, size)
	}
	return &Block{refCount: 1, pool: pool, Data: data}
}

// Pool reports which pool b was allocated from.
func (b *Block) Pool() Pool { return b.pool }

// RefCount reports the current reference count.
func (b *Block) RefCount() int32 { return atomic.LoadInt32(&b.refCount) }

// Ref increments b's reference count. Never valid to call on a block
// whose count has already reached zero - that block is gone.
func (b *Block) Ref() {
	n := atomic.AddInt32(&b.refCount, 1)
	pcore.AssertTrue(n > 1, "Ref resurrected a shared-memory block with a zero refcount")
}

// Put decrements b's reference count, releasing the block's backing
// storage once it reaches zero. Decrementing past zero is fatal.
func (b *Block) Put() {
	n := atomic.AddInt32(&b.refCount, -1)
	pcore.AssertTrue(n >= 0, "shared-memory block refcount underflow")
	if n != 0 {
		return
	}

	switch b.pool {
	case InitShared:
		logging.Warn("shmem: InitShared block released to zero refcount, ignoring", "size", len(b.Data))
		return
	case RuntimeShared:
		putPooled(b.Data)
	}
	b.Data = nil
}

const (
	bucket4k  = 4 * 1024
	bucket16k = 16 * 1024
	bucket64k = 64 * 1024
)

var runtimeSharedPool = struct {
	p4k  sync.Pool
	p16k sync.Pool
	p64k sync.Pool
}{
	p4k:  sync.Pool{New: func() any { b := make([]byte, bucket4k); return &b }},
	p16k: sync.Pool{New: func() any { b := make([]byte, bucket16k); return &b }},
	p64k: sync.Pool{New: func() any { b := make([]byte, bucket64k); return &b }},
}

func getPooled(size int) []byte {
	switch {
	case size <= bucket4k:
		return (*runtimeSharedPool.p4k.Get().(*[]byte))[:size]
	case size <= bucket16k:
		return (*runtimeSharedPool.p16k.Get().(*[]byte))[:size]
	case size <= bucket64k:
		return (*runtimeSharedPool.p64k.Get().(*[]byte))[:size]
	default:
		return make([]byte, size)
	}
}

func putPooled(buf []byte) {
	c := cap(buf)
	buf = buf[:c]
	switch c {
	case bucket4k:
		runtimeSharedPool.p4k.Put(&buf)
	case bucket16k:
		runtimeSharedPool.p16k.Put(&buf)
	case bucket64k:
		runtimeSharedPool.p64k.Put(&buf)
	}
}
