package platform

import (
	"sync"

	"github.com/forkcore/platform/internal/message"
	"github.com/forkcore/platform/internal/workers"
)

// MockWorker provides call-tracking implementations of the worker
// callback set, for tests that deploy a worker without wanting to write
// out GlobalInit/LocalInit/Body/LocalExit/GlobalExit by hand every time.
type MockWorker struct {
	mu sync.Mutex

	globalInitCalls int
	localInitCalls  int
	localExitCalls  int
	globalExitCalls int
	bodyCalls       int

	received []*message.Message

	// GlobalInitResult is returned by GlobalInit; non-zero fails
	// deployment.
	GlobalInitResult int
	// OnBody, if set, runs inside Body after the call is recorded - tests
	// use this to exercise Handle.Terminate()/Handle.EndAtomicContext()
	// from within a running worker.
	OnBody func(h *workers.Handle, msg *message.Message)
}

// NewMockWorker builds an empty MockWorker.
func NewMockWorker() *MockWorker {
	return &MockWorker{}
}

// Callbacks returns the workers.Callbacks set bound to this mock, ready
// to drop into a workers.Config literal.
func (m *MockWorker) Callbacks() workers.Callbacks {
	return workers.Callbacks{
		GlobalInit: m.GlobalInit,
		LocalInit:  m.LocalInit,
		LocalExit:  m.LocalExit,
		GlobalExit: m.GlobalExit,
		Body:       m.Body,
	}
}

func (m *MockWorker) GlobalInit(h *workers.Handle, initArg any) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.globalInitCalls++
	return m.GlobalInitResult
}

func (m *MockWorker) LocalInit(h *workers.Handle, core int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.localInitCalls++
}

func (m *MockWorker) LocalExit(h *workers.Handle, core int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.localExitCalls++
}

func (m *MockWorker) GlobalExit(h *workers.Handle) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.globalExitCalls++
}

func (m *MockWorker) Body(h *workers.Handle, msg *message.Message) {
	m.mu.Lock()
	m.bodyCalls++
	m.received = append(m.received, msg)
	onBody := m.OnBody
	m.mu.Unlock()

	if onBody != nil {
		onBody(h, msg)
	}
}

// CallCounts returns how many times each callback has fired so far.
func (m *MockWorker) CallCounts() map[string]int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return map[string]int{
		"globalInit": m.globalInitCalls,
		"localInit":  m.localInitCalls,
		"localExit":  m.localExitCalls,
		"globalExit": m.globalExitCalls,
		"body":       m.bodyCalls,
	}
}

// Received returns every message delivered to Body so far, in arrival
// order.
func (m *MockWorker) Received() []*message.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*message.Message, len(m.received))
	copy(out, m.received)
	return out
}
