package router

import (
	"testing"

	"github.com/forkcore/platform/internal/message"
	"github.com/forkcore/platform/internal/pcore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeFrameRoundTrip(t *testing.T) {
	msg := message.CreateMessage(0x42, 5)
	copy(msg.Payload, []byte("hello"))
	msg.Header.Sender = uint16(pcore.MakeWorkerID(1, 10))
	msg.Header.Receiver = uint16(pcore.MakeWorkerID(2, 20))

	frame := EncodeFrame(1, msg)

	dst := pcore.MakeWorkerID(2, 20).Node()
	assert.Equal(t, []byte{0xDE, 0xAD, 0xBE, 0xEF, 0x42, byte(dst)}, frame[0:6])
	assert.Equal(t, []byte{0xDE, 0xAD, 0xBE, 0xEF, 0x42, 1}, frame[6:12])

	got, ok := DecodeFrame(frame, 2)
	require.True(t, ok)
	assert.Equal(t, msg.Header, got.Header)
	assert.Equal(t, msg.Payload, got.Payload)
}

func TestDecodeFrameRejectsWrongDestinationNode(t *testing.T) {
	msg := message.CreateMessage(1, 0)
	msg.Header.Receiver = uint16(pcore.MakeWorkerID(2, 0))
	frame := EncodeFrame(1, msg)

	_, ok := DecodeFrame(frame, 3)
	assert.False(t, ok, "a frame addressed to node 2 must be rejected by node 3")
}

func TestDecodeFrameRejectsCorruptLlcHeader(t *testing.T) {
	msg := message.CreateMessage(1, 0)
	msg.Header.Receiver = uint16(pcore.MakeWorkerID(2, 0))
	frame := EncodeFrame(1, msg)
	frame[ethHeaderLen] = 0xFF

	_, ok := DecodeFrame(frame, 2)
	assert.False(t, ok)
}

func TestDecodeFrameRejectsTruncatedFrame(t *testing.T) {
	_, ok := DecodeFrame([]byte{0x01, 0x02, 0x03}, 1)
	assert.False(t, ok)
}
