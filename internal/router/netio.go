package router

// FrameIO is the interface the wire router needs for batched Ethernet
// frame I/O: prepare N sends/receives, flush them with a single
// syscall, then drain whatever completions are ready. A real NewFrameIO
// is built with the giouring build tag on, against
// github.com/pawelgaczynski/giouring.
type FrameIO interface {
	// Close releases the ring and the underlying socket.
	Close() error

	// PrepareSend queues an outbound frame without submitting it.
	// Returns ErrQueueFull if no submission slot is available.
	PrepareSend(frame []byte, userData uint64) error

	// PrepareRecv queues a receive into buf without submitting it.
	// Returns ErrQueueFull if no submission slot is available.
	PrepareRecv(buf []byte, userData uint64) error

	// Submit flushes every prepared-but-unsubmitted operation with one
	// syscall and returns how many were submitted.
	Submit() (uint32, error)

	// WaitCompletions blocks for at least one completion (timeoutMs <= 0
	// waits indefinitely) and returns every completion ready at that
	// point.
	WaitCompletions(timeoutMs int) ([]FrameResult, error)
}

// FrameResult reports the outcome of one completed send or receive.
type FrameResult interface {
	// UserData is the tag supplied to PrepareSend/PrepareRecv.
	UserData() uint64
	// N is the number of bytes sent, or received into the recv buffer.
	N() int32
	// Err is non-nil if the operation failed.
	Err() error
}

// SocketConfig configures the raw AF_PACKET socket backing a FrameIO.
type SocketConfig struct {
	// Iface is the network interface to bind to, e.g. "eth0".
	Iface string
	// Entries is the submission/completion ring depth.
	Entries uint32
}

// NewFrameIO builds the platform's frame I/O ring for cfg. The real
// implementation is only linked in under the giouring build tag;
// without it, NewFrameIO reports that the tag is required.
func NewFrameIO(cfg SocketConfig) (FrameIO, error) {
	return newFrameIO(cfg)
}
