package platform

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forkcore/platform/internal/message"
	"github.com/forkcore/platform/internal/pcore"
	"github.com/forkcore/platform/internal/workers"
)

func TestNewPlatformRejectsInvalidNodeID(t *testing.T) {
	_, err := NewPlatform(Config{NodeID: pcore.MaxNodeID + 1})
	require.Error(t, err)
}

func TestNewPlatformDefaultsCoresAndNetIf(t *testing.T) {
	p, err := NewPlatform(Config{NodeID: 1, Cores: 2})
	require.NoError(t, err)
	assert.Len(t, p.loops, 2)
	assert.Equal(t, "eth0", p.cfg.NetIf)
}

func TestPlatformStartStopLifecycle(t *testing.T) {
	p, err := NewPlatform(Config{NodeID: 1, Cores: 2})
	require.NoError(t, err)

	require.NoError(t, p.Start())
	require.Error(t, p.Start(), "starting twice must fail")

	require.NoError(t, p.Stop())
	require.NoError(t, p.Stop(), "stopping twice must be a no-op")
}

func TestPlatformDeployAndSendLocalMessage(t *testing.T) {
	p, err := NewPlatform(Config{NodeID: 1, Cores: 2})
	require.NoError(t, err)
	require.NoError(t, p.Start())
	defer p.Stop()

	mock := NewMockWorker()
	id, err := p.DeployWorker(workerConfig(mock, "echo"))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return mock.CallCounts()["localInit"] > 0
	}, time.Second, time.Millisecond)

	msg := message.CreateMessage(1, 4)
	p.SendMessage(msg, id)

	require.Eventually(t, func() bool {
		return mock.CallCounts()["body"] == 1
	}, time.Second, time.Millisecond)
}

func TestWorkerSendStampsSenderID(t *testing.T) {
	p, err := NewPlatform(Config{NodeID: 1, Cores: 2})
	require.NoError(t, err)
	require.NoError(t, p.Start())
	defer p.Stop()

	sink := NewMockWorker()
	sinkID, err := p.DeployWorker(workerConfig(sink, "sink"))
	require.NoError(t, err)

	forwarder := NewMockWorker()
	forwarder.OnBody = func(h *workers.Handle, msg *message.Message) {
		h.Send(message.CreateMessage(2, 0), sinkID)
		message.DestroyMessage(msg)
	}
	forwarderID, err := p.DeployWorker(workerConfig(forwarder, "forwarder"))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return p.Metrics().WorkersDeployed == 2
	}, time.Second, time.Millisecond)

	p.SendMessage(message.CreateMessage(1, 0), forwarderID)

	require.Eventually(t, func() bool {
		return len(sink.Received()) == 1
	}, time.Second, time.Millisecond)

	got := sink.Received()[0]
	assert.Equal(t, uint16(forwarderID), got.Header.Sender, "a send from inside a worker callback carries that worker's id")
	assert.Equal(t, uint16(2), got.Header.MessageID)
}

func TestHandlerRunsOnCoreInMask(t *testing.T) {
	p, err := NewPlatform(Config{NodeID: 1, Cores: 2})
	require.NoError(t, err)
	require.NoError(t, p.Start())
	defer p.Stop()

	coreCh := make(chan int, 1)
	mock := NewMockWorker()
	mock.OnBody = func(h *workers.Handle, msg *message.Message) {
		coreCh <- h.Core()
		message.DestroyMessage(msg)
	}

	id, err := p.DeployWorker(workers.Config{
		ID:        pcore.WorkerIDInvalid,
		Name:      "core-one-only",
		CoreMask:  0b10,
		Callbacks: mock.Callbacks(),
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return p.Metrics().WorkersDeployed == 1
	}, time.Second, time.Millisecond)

	p.SendMessage(message.CreateMessage(1, 0), id)

	select {
	case core := <-coreCh:
		assert.Equal(t, 1, core, "a handler body must run on a core from the worker's mask")
	case <-time.After(2 * time.Second):
		t.Fatal("handler never ran")
	}
}

func TestPlatformTimerFiresAndDeliversToWorker(t *testing.T) {
	p, err := NewPlatform(Config{NodeID: 1, Cores: 1})
	require.NoError(t, err)
	require.NoError(t, p.Start())
	defer p.Stop()

	mock := NewMockWorker()
	id, err := p.DeployWorker(workerConfig(mock, "timer-target"))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return mock.CallCounts()["localInit"] > 0
	}, time.Second, time.Millisecond)

	timerID, err := p.CreateTimer("test-timer")
	require.NoError(t, err)

	msg := message.CreateMessage(42, 0)
	_, err = p.ArmTimer(timerID, 5*time.Millisecond, 0, msg, id)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return mock.CallCounts()["body"] == 1
	}, time.Second, time.Millisecond)

	snap := p.Metrics()
	assert.EqualValues(t, 1, snap.TimersArmed)
}

func TestPlatformMetricsReflectWorkerLifecycle(t *testing.T) {
	p, err := NewPlatform(Config{NodeID: 2, Cores: 1})
	require.NoError(t, err)
	require.NoError(t, p.Start())
	defer p.Stop()

	mock := NewMockWorker()
	id, err := p.DeployWorker(workerConfig(mock, "lifecycle"))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return p.Metrics().WorkersDeployed == 1
	}, time.Second, time.Millisecond)

	require.NoError(t, p.TerminateWorker(id))

	require.Eventually(t, func() bool {
		return p.Metrics().WorkersTerminated == 1
	}, time.Second, time.Millisecond)
}

func workerConfig(mock *MockWorker, name string) workers.Config {
	return workers.Config{
		ID:        pcore.WorkerIDInvalid,
		Name:      name,
		CoreMask:  1,
		Callbacks: mock.Callbacks(),
	}
}
