// Package router implements the platform's message send hook: receiver
// validation, sender stamping, and the same-node vs remote-node routing
// split.
package router

import (
	"github.com/forkcore/platform/internal/logging"
	"github.com/forkcore/platform/internal/message"
	"github.com/forkcore/platform/internal/pcore"
	"github.com/forkcore/platform/internal/worktable"
)

// WireSender pushes a message out the network interface to a remote
// node. internal/router/wire.go provides the real implementation;
// tests substitute a fake so local.go can be exercised without a socket.
type WireSender interface {
	SendRemote(msg *message.Message)
}

// Observer lets the router report delivery outcomes into the platform's
// metrics, mirrored as a narrow interface per the root Observer pattern.
type Observer interface {
	MessageDelivered(receiver pcore.WorkerID)
	MessageBuffered(receiver pcore.WorkerID)
	MessageDropped(receiver pcore.WorkerID, reason string)
}

type noOpObserver struct{}

func (noOpObserver) MessageDelivered(pcore.WorkerID)       {}
func (noOpObserver) MessageBuffered(pcore.WorkerID)        {}
func (noOpObserver) MessageDropped(pcore.WorkerID, string) {}

// Router is the platform's single send hook, installed once per node.
// It is the internal/timing.Sender implementation passed to
// timing.NewDaemon, and the worker engine's Handle.Send delegates to it.
type Router struct {
	table    *worktable.Table
	node     uint16
	wire     WireSender
	observer Observer
}

// New builds a Router for node, routing intranode messages through
// table and internode messages through wire. wire may be nil until
// internal/router/wire.go's real transport is wired in by the platform
// facade; a nil wire makes routeInternode drop remote-bound messages with
// a logged warning instead of panicking.
func New(node uint16, table *worktable.Table, wire WireSender, observer Observer) *Router {
	if observer == nil {
		observer = noOpObserver{}
	}
	return &Router{table: table, node: node, wire: wire, observer: observer}
}

// Send implements internal/timing.Sender and is used for messages sent
// from a non-worker (platform-internal) context: the sender field is
// stamped invalid.
func (r *Router) Send(msg *message.Message, receiver pcore.WorkerID) {
	r.SendFrom(msg, pcore.WorkerIDInvalid, receiver)
}

// SendFrom is the full send hook: sender is the worker issuing the send
// (or pcore.WorkerIDInvalid for a platform-internal send), receiver is
// the destination worker. Invalid receivers are rejected and the
// message destroyed.
func (r *Router) SendFrom(msg *message.Message, sender, receiver pcore.WorkerID) {
	if !receiver.Valid() || receiver.Local() >= pcore.MaxWorkerCount || receiver.Node() > pcore.MaxNodeID {
		logging.Warn("router: invalid receiver, message not sent", "receiver", receiver, "messageId", msg.Header.MessageID)
		message.DestroyMessage(msg)
		r.observer.MessageDropped(receiver, "invalid-receiver")
		return
	}

	msg.Header.Sender = uint16(sender)
	msg.Header.Receiver = uint16(receiver)

	r.routeMessage(msg, receiver)
}

// routeMessage splits same-node from remote-node delivery.
func (r *Router) routeMessage(msg *message.Message, receiver pcore.WorkerID) {
	if receiver.Node() == r.node {
		r.routeIntranode(msg, receiver)
		return
	}
	r.routeInternode(msg, receiver)
}

// routeIntranode delivers msg to a worker on this node via the worker
// table - worktable.Table.Deliver holds the entry's lock for the
// duration of the state check and queue send.
func (r *Router) routeIntranode(msg *message.Message, receiver pcore.WorkerID) {
	switch r.table.Deliver(receiver, msg) {
	case worktable.Delivered:
		r.observer.MessageDelivered(receiver)
	case worktable.Buffered:
		r.observer.MessageBuffered(receiver)
	default:
		logging.Warn("router: failed to deliver message, receiver unavailable", "receiver", receiver, "messageId", msg.Header.MessageID, "sender", msg.Header.Sender)
		message.DestroyMessage(msg)
		r.observer.MessageDropped(receiver, "receiver-unavailable")
	}
}

// routeInternode pushes msg out the network interface. No message ever
// gets enqueued into a local worker's queue on this path.
func (r *Router) routeInternode(msg *message.Message, receiver pcore.WorkerID) {
	if r.wire == nil {
		logging.Warn("router: no wire transport configured, dropping remote message", "receiver", receiver, "messageId", msg.Header.MessageID)
		message.DestroyMessage(msg)
		r.observer.MessageDropped(receiver, "no-wire-transport")
		return
	}
	r.wire.SendRemote(msg)
}
