package router

import (
	"sync"

	"github.com/forkcore/platform/internal/logging"
	"github.com/forkcore/platform/internal/message"
	"github.com/forkcore/platform/internal/pcore"
)

// recvBufferSize is the largest Ethernet frame the wire router will
// read; large enough for the biggest message this platform allows plus
// header overhead.
const recvBufferSize = 9000

// WireRouter is the remote-node transport: it frames outbound messages
// as Ethernet/LLC and hands them to a FrameIO ring, and decodes inbound
// frames back into messages for delivery into the local worker table.
// The underlying frame I/O batches: prepare N operations, flush once,
// then drain whatever completions are ready.
type WireRouter struct {
	node    uint16
	io      FrameIO
	deliver func(msg *message.Message)

	mu      sync.Mutex
	pending int
	closed  bool
	recvBuf []byte
}

// NewWireRouter builds a WireRouter for node using io for frame
// transport. deliver is called for every validly-decoded inbound frame
// and is expected to hand the message to the local worker table
// (Router.routeIntranode's Deliver call), same as RouteIntranodeMessage
// being the terminal step for a message that arrived over the network.
func NewWireRouter(node uint16, io FrameIO, deliver func(msg *message.Message)) *WireRouter {
	w := &WireRouter{node: node, io: io, deliver: deliver, recvBuf: make([]byte, recvBufferSize)}
	if err := w.io.PrepareRecv(w.recvBuf, 0); err == nil {
		w.pending++
	}
	return w
}

// SendRemote implements router.WireSender: it encodes msg as a frame
// and queues it for the next flush. Nothing is submitted here: the
// Pump goroutine calls Flush on each iteration, batching every frame
// queued since the previous iteration into one submission.
func (w *WireRouter) SendRemote(msg *message.Message) {
	if llcHeaderLen+message.HeaderSize+len(msg.Payload) > maxEthPayload {
		logging.Warn("wire router: message exceeds maximum frame payload, dropping", "receiver", msg.Header.Receiver, "payloadSize", len(msg.Payload))
		message.DestroyMessage(msg)
		return
	}
	frame := EncodeFrame(w.node, msg)
	message.DestroyMessage(msg)

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	if err := w.io.PrepareSend(frame, 0); err != nil {
		logging.Warn("wire router: submission queue full, dropping outbound frame", "error", err)
		return
	}
	w.pending++
}

// Flush submits every prepared-but-unsubmitted send/recv with a single
// syscall. Pump calls it once per iteration.
func (w *WireRouter) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.pending == 0 {
		return nil
	}
	_, err := w.io.Submit()
	w.pending = 0
	return err
}

// DrainCompletions processes whatever send/recv completions are ready,
// re-arming a fresh receive for every completed recv so the ring always
// has one outstanding.
func (w *WireRouter) DrainCompletions(timeoutMs int) error {
	results, err := w.io.WaitCompletions(timeoutMs)
	if err != nil {
		return err
	}
	for _, res := range results {
		if res.Err() != nil {
			logging.Warn("wire router: frame I/O completion failed", "error", res.Err())
			continue
		}
		n := res.N()
		if n <= 0 {
			continue
		}
		w.handleRecvCompletion(int(n))
	}
	return nil
}

func (w *WireRouter) handleRecvCompletion(n int) {
	frame := make([]byte, n)
	copy(frame, w.recvBuf[:n])

	w.mu.Lock()
	if !w.closed {
		if err := w.io.PrepareRecv(w.recvBuf, 0); err == nil {
			w.pending++
		}
	}
	w.mu.Unlock()

	msg, ok := DecodeFrame(frame, w.node)
	if !ok {
		return
	}
	if msg.Header.Receiver == pcore.WorkerIDInvalid {
		return
	}
	w.deliver(msg)
}

// pumpPollMs bounds how long one Pump iteration blocks waiting for
// completions before flushing whatever sends queued up in the meantime.
const pumpPollMs = 10

// Pump flushes queued submissions and drains completions until stop is
// closed. Platform.Start runs it on a dedicated goroutine; SendRemote
// only prepares frames, so nothing moves on the wire without a running
// pump.
func (w *WireRouter) Pump(stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			return
		default:
		}
		if err := w.Flush(); err != nil {
			logging.Warn("wire router: failed to flush submissions", "error", err)
		}
		if err := w.DrainCompletions(pumpPollMs); err != nil {
			// A poll timeout with nothing ready lands here; only worth a
			// debug line.
			logging.Debug("wire router: completion wait returned", "error", err)
		}
	}
}

// Close releases the underlying ring and socket.
func (w *WireRouter) Close() error {
	w.mu.Lock()
	w.closed = true
	w.mu.Unlock()
	return w.io.Close()
}
