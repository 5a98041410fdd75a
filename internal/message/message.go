// Package message implements the platform's typed message envelope:
// a fixed 16-byte header (payload size, sender, receiver, message id,
// magic, padding) followed by the user payload. Payloads come from
// internal/shmem's runtime-shared event pool and return to it on
// DestroyMessage.
package message

import (
	"encoding/binary"
	"unsafe"

	"github.com/forkcore/platform/internal/pcore"
	"github.com/forkcore/platform/internal/shmem"
)

// HeaderSize is the fixed, 16-byte-aligned size of Header on the wire.
const HeaderSize = 16

// Header is the fixed message header. Field order matches the wire
// layout exactly; the trailing Pad keeps the struct a multiple of 8
// bytes.
type Header struct {
	PayloadSize uint32
	Sender      uint16
	Receiver    uint16
	MessageID   uint16
	Magic       uint16
	Pad         [4]byte
}

// compile-time layout assertion pinning Header to its on-wire size.
var _ [HeaderSize]byte = [unsafe.Sizeof(Header{})]byte{}

// Message owns a header and a payload slice backed by a runtime-shared
// pool block. The handler that receives a Message is responsible for
// destroying or forwarding it; the platform never implicitly frees a
// message still referenced by user code.
type Message struct {
	Header  Header
	Payload []byte

	block *shmem.Block
}

// CreateMessage allocates a new message for messageID with a zeroed
// payload of size bytes drawn from the runtime-shared event pool.
// Sender and Receiver start out invalid and are filled in by the send
// hook.
func CreateMessage(messageID uint16, size int) *Message {
	block := shmem.Get(shmem.RuntimeShared, size)
	clear(block.Data)
	return &Message{
		Header: Header{
			PayloadSize: uint32(size),
			Sender:      pcore.WorkerIDInvalid,
			Receiver:    pcore.WorkerIDInvalid,
			MessageID:   messageID,
			Magic:       pcore.MessageMagic,
		},
		Payload: block.Data,
		block:   block,
	}
}

// CopyMessage returns an independent message with identical header
// fields and payload contents, backed by its own pool block.
func CopyMessage(m *Message) *Message {
	if m == nil {
		return nil
	}
	cp := CreateMessage(m.Header.MessageID, len(m.Payload))
	cp.Header = m.Header
	copy(cp.Payload, m.Payload)
	return cp
}

// DestroyMessage releases a message's payload block back to its pool.
// Safe to call twice or on nil; the Payload slice must not be touched
// after the call.
func DestroyMessage(m *Message) {
	if m == nil {
		return
	}
	if m.block != nil {
		m.block.Put()
		m.block = nil
	}
	m.Payload = nil
}

// IsValidMessage reports whether buf is at least a well-formed header
// plus consistent payload, addressed to localNode. Any other content
// must be dropped silently by the caller.
func IsValidMessage(buf []byte, localNode uint16) bool {
	hdr, ok := decodeHeader(buf)
	if !ok {
		return false
	}
	if hdr.Magic != pcore.MessageMagic {
		return false
	}
	if len(buf)-HeaderSize != int(hdr.PayloadSize) {
		return false
	}
	receiverNode := pcore.WorkerID(hdr.Receiver).Node()
	return receiverNode == localNode
}

// CreateMessageFromBuffer decodes buf into a Message if and only if it
// passes IsValidMessage; otherwise it returns (nil, false) so the caller
// drops the buffer silently, per the wire router's inbound contract.
func CreateMessageFromBuffer(buf []byte, localNode uint16) (*Message, bool) {
	if !IsValidMessage(buf, localNode) {
		return nil, false
	}
	hdr, _ := decodeHeader(buf)
	msg := CreateMessage(hdr.MessageID, int(hdr.PayloadSize))
	msg.Header = hdr
	copy(msg.Payload, buf[HeaderSize:])
	return msg, true
}

// EncodeHeader serializes hdr into a freshly allocated 16-byte slice,
// used by the wire router when building an outbound frame.
func EncodeHeader(hdr Header) []byte {
	buf := make([]byte, HeaderSize)
	binary.BigEndian.PutUint32(buf[0:4], hdr.PayloadSize)
	binary.BigEndian.PutUint16(buf[4:6], hdr.Sender)
	binary.BigEndian.PutUint16(buf[6:8], hdr.Receiver)
	binary.BigEndian.PutUint16(buf[8:10], hdr.MessageID)
	binary.BigEndian.PutUint16(buf[10:12], hdr.Magic)
	return buf
}

func decodeHeader(buf []byte) (Header, bool) {
	if len(buf) < HeaderSize {
		return Header{}, false
	}
	return Header{
		PayloadSize: binary.BigEndian.Uint32(buf[0:4]),
		Sender:      binary.BigEndian.Uint16(buf[4:6]),
		Receiver:    binary.BigEndian.Uint16(buf[6:8]),
		MessageID:   binary.BigEndian.Uint16(buf[8:10]),
		Magic:       binary.BigEndian.Uint16(buf[10:12]),
	}, true
}
