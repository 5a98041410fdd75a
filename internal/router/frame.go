package router

import (
	"encoding/binary"

	"github.com/forkcore/platform/internal/message"
	"github.com/forkcore/platform/internal/pcore"
)

// macAddrLen is the length of an Ethernet hardware address.
const macAddrLen = 6

// ethHeaderLen is the size of an Ethernet-II header: dst MAC, src MAC,
// 2-byte EtherType/length field.
const ethHeaderLen = 2*macAddrLen + 2

// llcHeaderLen is the size of the null LLC header appended after the
// Ethernet header: DSAP, SSAP, Control (1 byte each, Control padded to
// 2 bytes).
const llcHeaderLen = 4

// maxEthPayload is the largest Ethernet payload (LLC header, message
// header, and user payload included) a single frame may carry.
const maxEthPayload = 1500

// macPrefix is the platform's locally-administered MAC address prefix;
// the sixth byte of every address the platform emits or accepts is a
// node identifier, not part of the prefix.
var macPrefix = [5]byte{0xDE, 0xAD, 0xBE, 0xEF, 0x42}

// nodeMAC returns the platform's MAC address for node.
func nodeMAC(node uint16) [macAddrLen]byte {
	var mac [macAddrLen]byte
	copy(mac[:5], macPrefix[:])
	mac[5] = byte(node)
	return mac
}

// EncodeFrame builds a complete Ethernet-II frame carrying msg: 6-byte
// dst MAC (built from the receiver's node), 6-byte src MAC (built from
// localNode), a big-endian EtherType/length field carrying the Ethernet
// payload length, 4 zero LLC bytes, then the message's wire encoding.
func EncodeFrame(localNode uint16, msg *message.Message) []byte {
	payload := message.EncodeHeader(msg.Header)
	payload = append(payload, msg.Payload...)

	ethPayloadLen := llcHeaderLen + len(payload)
	frame := make([]byte, ethHeaderLen+ethPayloadLen)

	dst := nodeMAC(pcore.WorkerID(msg.Header.Receiver).Node())
	src := nodeMAC(localNode)
	copy(frame[0:macAddrLen], dst[:])
	copy(frame[macAddrLen:2*macAddrLen], src[:])
	binary.BigEndian.PutUint16(frame[2*macAddrLen:ethHeaderLen], uint16(ethPayloadLen))

	// LLC header is all zero (null DSAP/SSAP/Control) - already the
	// zero value of the freshly allocated frame, nothing to set.
	copy(frame[ethHeaderLen+llcHeaderLen:], payload)

	return frame
}

// DecodeFrame validates frame as an inbound Ethernet/LLC frame addressed
// to localNode and, if valid, decodes the message it carries. Any
// malformed or misaddressed frame is dropped silently (ok == false).
func DecodeFrame(frame []byte, localNode uint16) (msg *message.Message, ok bool) {
	if len(frame) < ethHeaderLen+llcHeaderLen {
		return nil, false
	}
	if !isValidEthHeader(frame, localNode) {
		return nil, false
	}
	if !isValidLlcHeader(frame) {
		return nil, false
	}

	data := frame[ethHeaderLen+llcHeaderLen:]
	return message.CreateMessageFromBuffer(data, localNode)
}

// isValidEthHeader checks the src MAC carries the platform's prefix with
// a node id in range, and the dst MAC is this node's own address.
func isValidEthHeader(frame []byte, localNode uint16) bool {
	dst := frame[0:macAddrLen]
	src := frame[macAddrLen : 2*macAddrLen]

	for i := 0; i < 5; i++ {
		if src[i] != macPrefix[i] || dst[i] != macPrefix[i] {
			return false
		}
	}
	if src[5] > pcore.MaxNodeID {
		return false
	}
	return dst[5] == byte(localNode)
}

// isValidLlcHeader checks the frame is long enough to carry an LLC
// header and that header is the expected null DSAP/SSAP/Control.
func isValidLlcHeader(frame []byte) bool {
	if len(frame) < ethHeaderLen+llcHeaderLen {
		return false
	}
	llc := frame[ethHeaderLen : ethHeaderLen+llcHeaderLen]
	return llc[0] == 0 && llc[1] == 0 && llc[2] == 0 && llc[3] == 0
}
