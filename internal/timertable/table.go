// Package timertable implements the fixed timer table: one individually
// locked entry per possible timer identifier, plus the fully-recyclable
// ID FIFO in fifo.go (every id, not just a dynamic range, since timers
// have no caller-assigned static range).
package timertable

import (
	"sync"
	"time"

	"github.com/forkcore/platform/internal/message"
	"github.com/forkcore/platform/internal/pcore"
)

// State is a timer's lifecycle state.
type State int

const (
	Invalid State = iota
	Idle
	Armed
	Destroyed
	Retired
)

func (s State) String() string {
	switch s {
	case Invalid:
		return "invalid"
	case Idle:
		return "idle"
	case Armed:
		return "armed"
	case Destroyed:
		return "destroyed"
	case Retired:
		return "retired"
	default:
		return "unknown"
	}
}

// Context holds everything the timing engine and daemon track about one
// timer identifier. The one-shot primitive is a *time.Timer; periodic
// timers are built on top of it by rearming on every firing.
type Context struct {
	mu sync.Mutex

	ID    pcore.TimerID
	Name  string
	State State

	Message  *message.Message
	Receiver pcore.WorkerID

	// Period is the rearm interval in ticks (time.Duration-equivalent
	// nanoseconds here); 0 means one-shot.
	Period             time.Duration
	PreviousExpiration time.Time

	// SkipEvents reconciles a disarm/destroy race against the daemon:
	// incremented whenever a cancel attempt loses the race to an
	// already-fired (or already-queued) expiration, decremented by the
	// daemon as it works through the events it must ignore.
	SkipEvents int

	// Tmo is the underlying one-shot timer. Owned by internal/timing;
	// the table only stores it so Release/Fetch have a single home for
	// all per-timer state.
	Tmo *time.Timer
}

// Lock acquires the entry's per-timer lock.
func (c *Context) Lock() { c.mu.Lock() }

// Unlock releases the entry's per-timer lock.
func (c *Context) Unlock() { c.mu.Unlock() }

// Table is the fixed array of timer contexts plus the recyclable-id FIFO.
type Table struct {
	entries [pcore.MaxTimerCount]*Context
	fifo    *idFIFO
}

// NewTable builds an empty table with one pre-allocated, Invalid Context
// per possible timer identifier.
func NewTable() *Table {
	t := &Table{fifo: newIDFIFO()}
	for i := range t.entries {
		t.entries[i] = &Context{ID: pcore.TimerID(i), State: Invalid, Receiver: pcore.WorkerIDInvalid}
	}
	return t
}

// Fetch returns the entry for id, or nil if id is out of range. Fetch
// does not lock the entry; callers lock it themselves.
func (t *Table) Fetch(id pcore.TimerID) *Context {
	if int(id) >= len(t.entries) {
		return nil
	}
	return t.entries[id]
}

// Reserve allocates the next free timer id and transitions its entry
// from Invalid to Idle. It fails only when the table is exhausted.
func (t *Table) Reserve() (*Context, bool) {
	id, ok := t.fifo.allocate()
	if !ok {
		return nil, false
	}
	c := t.entries[id]
	c.Lock()
	defer c.Unlock()
	pcore.AssertTrue(c.State == Invalid, "timer id %d allocated while entry in state %s", id, c.State)
	c.State = Idle
	c.SkipEvents = 0
	return c, true
}

// Release resets an entry to Invalid and recycles its id back into the
// FIFO. The caller must already hold the entry's lock and is
// responsible for unlocking afterward (unlike worktable.Table.Release,
// which unlocks itself) so that RetireTimer can stamp the entry Retired
// immediately after release without a relock.
func (t *Table) Release(c *Context) {
	id := c.ID
	c.Name = ""
	c.Message = nil
	c.Receiver = pcore.WorkerIDInvalid
	c.Period = 0
	c.PreviousExpiration = time.Time{}
	c.SkipEvents = 0
	c.Tmo = nil
	c.State = Invalid

	t.fifo.release(uint16(id))
}

// FreeCount reports how many timer identifiers remain available.
func (t *Table) FreeCount() int { return t.fifo.freeCount() }

// Count returns the fixed table size, MAX_TIMER_COUNT.
func (t *Table) Count() int { return len(t.entries) }
