package timing

import (
	"testing"
	"time"

	"github.com/forkcore/platform/internal/message"
	"github.com/forkcore/platform/internal/pcore"
	"github.com/forkcore/platform/internal/timertable"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateArmDisarmLifecycle(t *testing.T) {
	e := NewEngine()

	id, err := e.CreateTimer("heartbeat")
	require.NoError(t, err)

	msg := message.CreateMessage(1, 4)
	_, err = e.ArmTimer(id, time.Hour, 0, msg, pcore.MakeWorkerID(0, 1))
	require.NoError(t, err)

	ctx := e.Table().Fetch(id)
	ctx.Lock()
	assert.Equal(t, timertable.Armed, ctx.State)
	ctx.Unlock()

	_, err = e.DisarmTimer(id)
	require.NoError(t, err)

	ctx.Lock()
	assert.Equal(t, timertable.Idle, ctx.State)
	assert.Nil(t, ctx.Message)
	ctx.Unlock()

	// Disarming again from Idle runs the idle-state receiver assertion.
	assert.NotPanics(t, func() {
		_, err = e.DisarmTimer(id)
	})
	require.NoError(t, err)
}

func TestArmTimerRejectsDoubleArm(t *testing.T) {
	e := NewEngine()
	id, err := e.CreateTimer("t")
	require.NoError(t, err)

	msg := message.CreateMessage(1, 4)
	_, err = e.ArmTimer(id, time.Hour, 0, msg, pcore.MakeWorkerID(0, 1))
	require.NoError(t, err)

	_, err = e.ArmTimer(id, time.Hour, 0, message.CreateMessage(1, 4), pcore.MakeWorkerID(0, 1))
	assert.Error(t, err, "arming an already-armed timer must fail")
}

func TestDestroyTimerCleansUpIdle(t *testing.T) {
	e := NewEngine()
	id, err := e.CreateTimer("t")
	require.NoError(t, err)

	before := e.Table().FreeCount()
	require.NoError(t, e.DestroyTimer(id))
	assert.Equal(t, before+1, e.Table().FreeCount())
}

func TestDestroyTimerRejectsArmed(t *testing.T) {
	e := NewEngine()
	id, err := e.CreateTimer("t")
	require.NoError(t, err)

	_, err = e.ArmTimer(id, time.Hour, 0, message.CreateMessage(1, 4), pcore.MakeWorkerID(0, 1))
	require.NoError(t, err)

	err = e.DestroyTimer(id)
	assert.Error(t, err)
}

func TestRetireTimerIsIdempotentAcrossStates(t *testing.T) {
	e := NewEngine()

	idleID, err := e.CreateTimer("idle")
	require.NoError(t, err)
	e.RetireTimer(idleID)
	ctx := e.Table().Fetch(idleID)
	ctx.Lock()
	assert.Equal(t, timertable.Retired, ctx.State)
	ctx.Unlock()

	armedID, err := e.CreateTimer("armed")
	require.NoError(t, err)
	_, err = e.ArmTimer(armedID, time.Hour, 0, message.CreateMessage(1, 4), pcore.MakeWorkerID(0, 1))
	require.NoError(t, err)
	e.RetireTimer(armedID)
	armedCtx := e.Table().Fetch(armedID)
	armedCtx.Lock()
	assert.Equal(t, timertable.Retired, armedCtx.State)
	armedCtx.Unlock()
}

func TestDisarmRaceIncrementsSkipEvents(t *testing.T) {
	e := NewEngine()
	id, err := e.CreateTimer("racer")
	require.NoError(t, err)

	_, err = e.ArmTimer(id, time.Millisecond, 0, message.CreateMessage(1, 4), pcore.MakeWorkerID(0, 1))
	require.NoError(t, err)

	// Give the one-shot time to fire before disarming, so Stop() loses
	// the race and SkipEvents must be bumped.
	time.Sleep(5 * time.Millisecond)
	_, err = e.DisarmTimer(id)
	require.NoError(t, err)

	ctx := e.Table().Fetch(id)
	ctx.Lock()
	skip := ctx.SkipEvents
	ctx.Unlock()
	assert.Equal(t, 1, skip, "a disarm losing the race to an already-fired timer must record a skip event")
}
