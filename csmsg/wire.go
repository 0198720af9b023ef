package csmsg

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// Wire frame layout, little-endian throughout:
//
//	uint64 ServiceID
//	uint64 OperationID
//	uint32 OperationCode
//	uint64 RequestID
//	uint64 Source.ComponentID
//	uint64 Source.RegID
//	uint32 Status
//	uint32 PayloadLength
//	[]byte Payload
//
// Transports that deliver whole frames (NATS subjects, WebSocket
// messages) use EncodeFrame/DecodeFrame directly. Transports that
// deliver a byte stream must length-prefix frames themselves; this
// package only defines the frame body.

const frameHeaderLen = 8 + 8 + 4 + 8 + 8 + 8 + 4 + 4

// EncodeFrame serializes m into the wire frame format.
func EncodeFrame(m Message) []byte {
	var payload []byte
	if m.Payload != nil {
		payload = m.Payload.Bytes()
	}

	buf := make([]byte, frameHeaderLen+len(payload))
	off := 0
	binary.LittleEndian.PutUint64(buf[off:], m.ServiceID)
	off += 8
	binary.LittleEndian.PutUint64(buf[off:], m.OperationID)
	off += 8
	binary.LittleEndian.PutUint32(buf[off:], uint32(m.OperationCode))
	off += 4
	binary.LittleEndian.PutUint64(buf[off:], m.RequestID)
	off += 8
	binary.LittleEndian.PutUint64(buf[off:], m.Source.ComponentID)
	off += 8
	binary.LittleEndian.PutUint64(buf[off:], m.Source.RegID)
	off += 8
	binary.LittleEndian.PutUint32(buf[off:], uint32(m.Status))
	off += 4
	binary.LittleEndian.PutUint32(buf[off:], uint32(len(payload)))
	off += 4
	copy(buf[off:], payload)

	return buf
}

// DecodeFrame parses a wire frame produced by EncodeFrame. The resulting
// Message's Payload is a RawPayload; callers that need a typed value run
// it through a Codec.
func DecodeFrame(data []byte) (Message, error) {
	if len(data) < frameHeaderLen {
		return Message{}, fmt.Errorf("csmsg: frame too short: %d bytes", len(data))
	}

	r := bytes.NewReader(data)
	var m Message
	var opCode, status, payloadLen uint32

	readUint64 := func(dst *uint64) {
		var v uint64
		_ = binary.Read(r, binary.LittleEndian, &v)
		*dst = v
	}

	readUint64(&m.ServiceID)
	readUint64(&m.OperationID)
	_ = binary.Read(r, binary.LittleEndian, &opCode)
	m.OperationCode = OpCode(opCode)
	readUint64(&m.RequestID)
	readUint64(&m.Source.ComponentID)
	readUint64(&m.Source.RegID)
	_ = binary.Read(r, binary.LittleEndian, &status)
	m.Status = ResponseStatus(status)
	_ = binary.Read(r, binary.LittleEndian, &payloadLen)

	if r.Len() < int(payloadLen) {
		return Message{}, fmt.Errorf("csmsg: truncated payload: want %d, have %d", payloadLen, r.Len())
	}

	if payloadLen > 0 {
		payload := make(RawPayload, payloadLen)
		if _, err := r.Read(payload); err != nil {
			return Message{}, fmt.Errorf("csmsg: read payload: %w", err)
		}
		m.Payload = payload
	}

	return m, nil
}
