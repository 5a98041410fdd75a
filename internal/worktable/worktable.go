// Package worktable implements the fixed worker table: one individually
// locked entry per possible worker identifier, plus the dynamic-id
// allocator in fifo.go.
package worktable

import (
	"sync"

	"github.com/forkcore/platform/internal/message"
	"github.com/forkcore/platform/internal/pcore"
)

// State is a worker's lifecycle state. Every transition happens under
// the entry's own lock. Only Inactive->Deploying (on Reserve),
// Deploying->Active (on MarkDeploymentSuccessful), Active->Terminating
// (on stop request), Terminating->Inactive (on Release) and the direct Deploying->Terminating (deployment
// cancelled mid-flight) are legal.
type State int

const (
	Inactive State = iota
	Deploying
	Active
	Terminating
)

func (s State) String() string {
	switch s {
	case Inactive:
		return "inactive"
	case Deploying:
		return "deploying"
	case Active:
		return "active"
	case Terminating:
		return "terminating"
	default:
		return "unknown"
	}
}

// Context holds everything the platform tracks about one worker
// identifier, whether or not it is currently in use. Entries are
// allocated once, for the lifetime of the process, and reused across
// deploy/terminate cycles rather than allocated per worker.
type Context struct {
	mu sync.Mutex

	ID       pcore.WorkerID
	Name     string
	CoreMask uint64
	Parallel bool
	State    State

	TerminationRequested bool

	SharedData any
	LocalData  []any // indexed by core index, one slot per physical core

	Buffer      [pcore.MessageBufferLength]*message.Message
	BufferCount int

	Queue chan *message.Message
}

// Lock acquires the entry's per-worker lock. Callers must pair with Unlock.
func (c *Context) Lock() { c.mu.Lock() }

// Unlock releases the entry's per-worker lock.
func (c *Context) Unlock() { c.mu.Unlock() }

// bufferMessage appends m to the deployment-time message buffer. It must
// be called with the entry locked and the entry in the Deploying state;
// overflow past MessageBufferLength is a resource-exhaustion condition
// the caller reports to the sender, not a fatal assertion, since an
// overeager sender during deployment is expected and recoverable.
func (c *Context) bufferMessage(m *message.Message) bool {
	if c.BufferCount >= pcore.MessageBufferLength {
		return false
	}
	c.Buffer[c.BufferCount] = m
	c.BufferCount++
	return true
}

// drainBuffer returns the buffered messages in arrival order and resets
// the buffer, for replay once the worker becomes Active.
func (c *Context) drainBuffer() []*message.Message {
	out := make([]*message.Message, c.BufferCount)
	copy(out, c.Buffer[:c.BufferCount])
	for i := range c.Buffer {
		c.Buffer[i] = nil
	}
	c.BufferCount = 0
	return out
}

// Table is the fixed array of worker contexts, indexed by local id, plus
// the dynamic-id FIFO used to hand out identifiers in the dynamic range.
type Table struct {
	entries [pcore.MaxWorkerCount]*Context
	fifo    *dynamicFIFO
	node    uint16
}

// NewTable builds an empty table for the given node, with one
// pre-allocated, Inactive Context per possible local identifier.
func NewTable(node uint16) *Table {
	t := &Table{fifo: newDynamicFIFO(), node: node}
	for i := range t.entries {
		t.entries[i] = &Context{ID: pcore.MakeWorkerID(node, uint16(i)), State: Inactive}
	}
	return t
}

// Fetch returns the entry for id, or nil if id is out of range for this
// node. Fetch does not lock the entry; callers lock it themselves.
func (t *Table) Fetch(id pcore.WorkerID) *Context {
	if id.Node() != t.node || int(id.Local()) >= len(t.entries) {
		return nil
	}
	return t.entries[id.Local()]
}

// ReserveStatic transitions the entry for a caller-supplied static id
// from Inactive to Deploying. It fails if the id is not in the static
// range or the entry is not Inactive.
func (t *Table) ReserveStatic(local uint16) (*Context, bool) {
	if local >= pcore.WorkerLocalStaticMax {
		return nil, false
	}
	c := t.entries[local]
	c.Lock()
	defer c.Unlock()
	if c.State != Inactive {
		return nil, false
	}
	c.State = Deploying
	c.TerminationRequested = false
	c.BufferCount = 0
	return c, true
}

// ReserveDynamic allocates the next free dynamic id and transitions its
// entry to Deploying. It fails only when the dynamic range is exhausted.
func (t *Table) ReserveDynamic() (*Context, bool) {
	local, ok := t.fifo.allocate()
	if !ok {
		return nil, false
	}
	c := t.entries[local]
	c.Lock()
	defer c.Unlock()
	pcore.AssertTrue(c.State == Inactive, "dynamic id %d allocated while entry in state %s", local, c.State)
	c.State = Deploying
	c.TerminationRequested = false
	c.BufferCount = 0
	return c, true
}

// Release returns a Terminating entry to Inactive and, if its id was
// dynamic, recycles the id back into the FIFO. Release must be called
// with the entry already locked by the caller's teardown path; it
// unlocks the entry itself before returning.
func (t *Table) Release(c *Context) {
	pcore.AssertTrue(c.State == Terminating, "release of worker %d not in terminating state (%s)", c.ID, c.State)
	id := c.ID
	c.State = Inactive
	c.Name = ""
	c.CoreMask = 0
	c.Parallel = false
	c.TerminationRequested = false
	c.SharedData = nil
	c.LocalData = nil
	c.Queue = nil
	for i := range c.Buffer {
		c.Buffer[i] = nil
	}
	c.BufferCount = 0
	c.Unlock()

	if id.IsDynamic() {
		t.fifo.release(id.Local())
	}
}

// MarkDeploymentSuccessful transitions an entry from Deploying to
// Active, returning any messages buffered while it deployed so the
// caller can replay them in order. The entry must already be locked.
func (c *Context) MarkDeploymentSuccessful() []*message.Message {
	pcore.AssertTrue(c.State == Deploying, "deployment completion on worker %d not deploying (%s)", c.ID, c.State)
	c.State = Active
	return c.drainBuffer()
}

// MarkTeardownInProgress transitions an entry from Active (or a
// still-Deploying entry whose deployment is being cancelled) to
// Terminating. The entry must already be locked.
func (c *Context) MarkTeardownInProgress() {
	pcore.AssertTrue(c.State == Active || c.State == Deploying, "teardown requested on worker %d in state %s", c.ID, c.State)
	c.State = Terminating
	c.TerminationRequested = true
}

// DynamicFreeCount reports how many dynamic identifiers remain available.
func (t *Table) DynamicFreeCount() int { return t.fifo.freeCount() }

// DeliveryResult reports what Deliver did with a message, so the router
// can update its own metrics and, for Rejected, free the message.
type DeliveryResult int

const (
	// Delivered means the message was pushed onto the worker's queue.
	Delivered DeliveryResult = iota
	// Buffered means the worker is still Deploying and the message was
	// appended to its deployment-time buffer for later replay.
	Buffered
	// Rejected means the worker does not exist, is Inactive or
	// Terminating, or its deployment buffer is full.
	Rejected
)

// Deliver routes m to the entry for id: queued if Active, buffered if
// Deploying, rejected otherwise. This is the single entry point message
// routing uses so the buffering rule lives in one place.
func (t *Table) Deliver(id pcore.WorkerID, m *message.Message) DeliveryResult {
	c := t.Fetch(id)
	if c == nil {
		return Rejected
	}
	c.Lock()
	defer c.Unlock()
	switch c.State {
	case Active:
		select {
		case c.Queue <- m:
			return Delivered
		default:
			return Rejected
		}
	case Deploying:
		if c.bufferMessage(m) {
			return Buffered
		}
		return Rejected
	default:
		return Rejected
	}
}
