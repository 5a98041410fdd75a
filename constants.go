package platform

import "github.com/forkcore/platform/internal/pcore"

// Re-exported limits; see internal/pcore for the canonical definitions,
// kept in a leaf package so internal/worktable, internal/timertable, and
// friends can depend on them without importing the root package.
const (
	MaxWorkerCount        = pcore.MaxWorkerCount
	MaxTimerCount         = pcore.MaxTimerCount
	MessageBufferLength   = pcore.MessageBufferLength
	MaxNodeID             = pcore.MaxNodeID
	MaxPhysicalCores      = pcore.MaxPhysicalCores
	MessageMagic          = pcore.MessageMagic
	SharedBlockMagic      = pcore.SharedBlockMagic
	WorkerIDInvalid       = pcore.WorkerIDInvalid
	TimerIDInvalid        = pcore.TimerIDInvalid
	WorkerLocalStaticMax  = pcore.WorkerLocalStaticMax
	WorkerLocalDynamicMax = pcore.WorkerLocalDynamicMax
)

// Dispatch round sizes sized so the timing characteristics of the
// fixed-size dispatch chunk stay predictable across cores.
const (
	SyncDispatchRounds      = pcore.SyncDispatchRounds
	ExitCheckDispatchRounds = pcore.ExitCheckDispatchRounds
	DrainDispatchRounds     = pcore.DrainDispatchRounds
)
