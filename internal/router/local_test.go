package router

import (
	"testing"

	"github.com/forkcore/platform/internal/message"
	"github.com/forkcore/platform/internal/pcore"
	"github.com/forkcore/platform/internal/worktable"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingObserver struct {
	delivered, buffered, dropped int
}

func (o *countingObserver) MessageDelivered(pcore.WorkerID)       { o.delivered++ }
func (o *countingObserver) MessageBuffered(pcore.WorkerID)        { o.buffered++ }
func (o *countingObserver) MessageDropped(pcore.WorkerID, string) { o.dropped++ }

func TestSendFromRejectsInvalidReceiver(t *testing.T) {
	tbl := worktable.NewTable(1)
	obs := &countingObserver{}
	r := New(1, tbl, nil, obs)

	r.SendFrom(message.CreateMessage(1, 0), pcore.WorkerIDInvalid, pcore.WorkerIDInvalid)
	assert.Equal(t, 1, obs.dropped)
}

func TestSendFromQueuesActiveWorker(t *testing.T) {
	tbl := worktable.NewTable(1)
	c, ok := tbl.ReserveStatic(4)
	require.True(t, ok)
	c.Queue = make(chan *message.Message, 1)
	c.Lock()
	c.MarkDeploymentSuccessful()
	c.Unlock()

	obs := &countingObserver{}
	r := New(1, tbl, nil, obs)
	r.SendFrom(message.CreateMessage(9, 4), pcore.WorkerIDInvalid, c.ID)

	assert.Equal(t, 1, obs.delivered)
	msg := <-c.Queue
	assert.Equal(t, uint16(9), msg.Header.MessageID)
	assert.Equal(t, uint16(pcore.WorkerIDInvalid), msg.Header.Sender)
}

// TestSendFromBufferOverflowDropsExcessMessages exercises the
// deployment-time FIFO-in-array buffer's overflow path: once
// MessageBufferLength messages are buffered, further sends to a still
// Deploying worker are rejected and the message destroyed.
func TestSendFromBufferOverflowDropsExcessMessages(t *testing.T) {
	tbl := worktable.NewTable(1)
	c, ok := tbl.ReserveStatic(5)
	require.True(t, ok)

	obs := &countingObserver{}
	r := New(1, tbl, nil, obs)

	for i := 0; i < pcore.MessageBufferLength; i++ {
		r.SendFrom(message.CreateMessage(uint16(i), 0), pcore.WorkerIDInvalid, c.ID)
	}
	assert.Equal(t, pcore.MessageBufferLength, obs.buffered)

	r.SendFrom(message.CreateMessage(999, 0), pcore.WorkerIDInvalid, c.ID)
	assert.Equal(t, 1, obs.dropped, "buffer is full, the extra message must be rejected and destroyed")

	c.Queue = make(chan *message.Message, pcore.MessageBufferLength)
	c.Lock()
	flushed := c.MarkDeploymentSuccessful()
	c.Unlock()
	assert.Len(t, flushed, pcore.MessageBufferLength)
}

func TestSendFromRoutesRemoteNodeThroughWire(t *testing.T) {
	tbl := worktable.NewTable(1)
	wire := &fakeWireSender{}
	r := New(1, tbl, wire, nil)

	receiver := pcore.MakeWorkerID(2, 5)
	r.SendFrom(message.CreateMessage(3, 0), pcore.WorkerIDInvalid, receiver)

	require.Len(t, wire.sent, 1)
	assert.Equal(t, uint16(receiver), wire.sent[0].Header.Receiver)
}

func TestSendFromDropsRemoteWithoutWireConfigured(t *testing.T) {
	tbl := worktable.NewTable(1)
	obs := &countingObserver{}
	r := New(1, tbl, nil, obs)

	r.SendFrom(message.CreateMessage(3, 0), pcore.WorkerIDInvalid, pcore.MakeWorkerID(2, 5))
	assert.Equal(t, 1, obs.dropped)
}

type fakeWireSender struct {
	sent []*message.Message
}

func (f *fakeWireSender) SendRemote(msg *message.Message) {
	f.sent = append(f.sent, msg)
}
