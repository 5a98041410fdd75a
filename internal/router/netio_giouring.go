//go:build giouring
// +build giouring

// Frame I/O backed by github.com/pawelgaczynski/giouring, batching
// send/recv SQEs (PrepareSend/PrepareRecv, one Submit, then drain
// whatever completions are ready) against a raw AF_PACKET socket
// carrying Ethernet frames.
package router

import (
	"fmt"
	"net"
	"syscall"
	"unsafe"

	"github.com/pawelgaczynski/giouring"
	"golang.org/x/sys/unix"
)

// ErrQueueFull is returned when a PrepareSend/PrepareRecv call has no
// free submission-queue entry to use.
var ErrQueueFull = fmt.Errorf("submission queue full")

const ethPAll = 0x0003 // ETH_P_ALL, network byte order applied via htons

func htons(v uint16) uint16 { return (v << 8) | (v >> 8) }

type giouringFrameIO struct {
	fd   int
	ring *giouring.Ring

	// inflight pins every buffer handed to the kernel until its
	// completion is reaped, keyed by user data; without it the GC is
	// free to move or collect a frame mid-operation.
	inflight map[uint64][]byte
}

func newFrameIO(cfg SocketConfig) (FrameIO, error) {
	fd, err := unix.Socket(unix.AF_PACKET, unix.SOCK_RAW, int(htons(ethPAll)))
	if err != nil {
		return nil, fmt.Errorf("open AF_PACKET socket: %w", err)
	}

	iface, err := net.InterfaceByName(cfg.Iface)
	if err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("lookup interface %s: %w", cfg.Iface, err)
	}

	addr := &unix.SockaddrLinklayer{Protocol: htons(ethPAll), Ifindex: iface.Index}
	if err := unix.Bind(fd, addr); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("bind AF_PACKET socket to %s: %w", cfg.Iface, err)
	}

	entries := cfg.Entries
	if entries == 0 {
		entries = 256
	}
	ring, err := giouring.CreateRing(entries)
	if err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("create giouring ring: %w", err)
	}

	return &giouringFrameIO{fd: fd, ring: ring, inflight: make(map[uint64][]byte)}, nil
}

func (g *giouringFrameIO) Close() error {
	g.ring.QueueExit()
	return unix.Close(g.fd)
}

func (g *giouringFrameIO) PrepareSend(frame []byte, userData uint64) error {
	sqe := g.ring.GetSQE()
	if sqe == nil {
		return ErrQueueFull
	}
	sqe.PrepareSend(g.fd, uintptr(unsafe.Pointer(&frame[0])), uint32(len(frame)), 0)
	sqe.UserData = userData
	g.inflight[userData] = frame
	return nil
}

func (g *giouringFrameIO) PrepareRecv(buf []byte, userData uint64) error {
	sqe := g.ring.GetSQE()
	if sqe == nil {
		return ErrQueueFull
	}
	sqe.PrepareRecv(g.fd, uintptr(unsafe.Pointer(&buf[0])), uint32(len(buf)), 0)
	sqe.UserData = userData
	g.inflight[userData] = buf
	return nil
}

func (g *giouringFrameIO) Submit() (uint32, error) {
	n, err := g.ring.Submit()
	return uint32(n), err
}

func (g *giouringFrameIO) WaitCompletions(timeoutMs int) ([]FrameResult, error) {
	var cqe *giouring.CompletionQueueEvent
	var err error
	if timeoutMs <= 0 {
		cqe, err = g.ring.WaitCQE()
	} else {
		ts := syscall.NsecToTimespec(int64(timeoutMs) * 1_000_000)
		cqe, err = g.ring.WaitCQETimeout(&ts)
	}
	if err != nil {
		return nil, err
	}

	results := []FrameResult{giouringResult{userData: cqe.UserData, res: cqe.Res}}
	delete(g.inflight, cqe.UserData)
	g.ring.CQESeen(cqe)

	// Drain whatever else is already ready without blocking again, one
	// batch of completions per wakeup.
	for {
		next, peekErr := g.ring.PeekCQE()
		if peekErr != nil || next == nil {
			break
		}
		results = append(results, giouringResult{userData: next.UserData, res: next.Res})
		delete(g.inflight, next.UserData)
		g.ring.CQESeen(next)
	}

	return results, nil
}

type giouringResult struct {
	userData uint64
	res      int32
}

func (r giouringResult) UserData() uint64 { return r.userData }
func (r giouringResult) N() int32         { return r.res }
func (r giouringResult) Err() error {
	if r.res < 0 {
		return unix.Errno(-r.res)
	}
	return nil
}
