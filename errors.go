package platform

import "github.com/forkcore/platform/internal/errorsx"

// Re-exported structured error type; see internal/errorsx for the
// canonical definitions, kept in a leaf package so every internal
// package (worktable, timertable, router, workers, timing, ...) can
// return structured errors without importing this root package.
type (
	ErrorKind  = errorsx.ErrorKind
	Error      = errorsx.Error
	FatalError = errorsx.FatalError
)

const (
	KindProgrammingViolation   = errorsx.KindProgrammingViolation
	KindResourceExhaustion     = errorsx.KindResourceExhaustion
	KindFrameworkInconsistency = errorsx.KindFrameworkInconsistency
	KindSignalFatal            = errorsx.KindSignalFatal
	KindOrderlyShutdown        = errorsx.KindOrderlyShutdown
)

var (
	NewError       = errorsx.NewError
	NewWorkerError = errorsx.NewWorkerError
	NewTimerError  = errorsx.NewTimerError
	WrapError      = errorsx.WrapError
	IsKind         = errorsx.IsKind
	Fatal          = errorsx.Fatal
)
