package protocol

import (
	"encoding/binary"
	"errors"
	"strings"
	"unicode/utf8"
)

// Opcode represents WebSocket frame opcodes per RFC 6455.
type Opcode uint8

const (
	OpcodeContinuation Opcode = 0x0
	OpcodeText         Opcode = 0x1
	OpcodeBinary       Opcode = 0x2
	OpcodeClose        Opcode = 0x8
	OpcodePing         Opcode = 0x9
	OpcodePong         Opcode = 0xA
)

// IsControl checks if the opcode is a control frame opcode.
func (o Opcode) IsControl() bool {
	return o&0x8 != 0
}

// String returns the string representation of the opcode.
func (o Opcode) String() string {
	switch o {
	case OpcodeContinuation:
		return "continuation"
	case OpcodeText:
		return "text"
	case OpcodeBinary:
		return "binary"
	case OpcodeClose:
		return "close"
	case OpcodePing:
		return "ping"
	case OpcodePong:
		return "pong"
	default:
		return "unknown"
	}
}

// MaxPayloadSize is the default upper bound on a single frame's payload.
const MaxPayloadSize = 16 * 1024 * 1024

var (
	// ErrIncomplete means more bytes are needed before a frame can be parsed.
	// It is not a protocol failure.
	ErrIncomplete = errors.New("incomplete frame")
	// ErrFrameTooLarge is returned when the declared payload exceeds the limit.
	ErrFrameTooLarge = errors.New("frame too large")
)

// Frame is one WebSocket protocol unit.
type Frame struct {
	Fin     bool
	Opcode  Opcode
	Masked  bool
	Mask    [4]byte
	Payload []byte
}

// Text decodes the payload as UTF-8. Invalid sequences become U+FFFD.
func (f *Frame) Text() string {
	return lossyText(f.Payload)
}

func lossyText(b []byte) string {
	if utf8.Valid(b) {
		return string(b)
	}
	return strings.ToValidUTF8(string(b), "�")
}

// ParseFrame parses a single frame from the start of b using MaxPayloadSize.
// It returns the frame and the number of bytes consumed.
func ParseFrame(b []byte) (*Frame, int, error) {
	return parseFrame(b, MaxPayloadSize)
}

func parseFrame(b []byte, maxPayload uint64) (*Frame, int, error) {
	if len(b) < 2 {
		return nil, 0, ErrIncomplete
	}

	f := &Frame{
		Fin:    b[0]&0x80 != 0,
		Opcode: Opcode(b[0] & 0x0F),
		Masked: b[1]&0x80 != 0,
	}
	length := uint64(b[1] & 0x7F)
	offset := 2

	switch length {
	case 126:
		if len(b) < offset+2 {
			return nil, 0, ErrIncomplete
		}
		length = uint64(binary.BigEndian.Uint16(b[offset:]))
		offset += 2
	case 127:
		if len(b) < offset+8 {
			return nil, 0, ErrIncomplete
		}
		length = binary.BigEndian.Uint64(b[offset:])
		offset += 8
	}

	if length > maxPayload {
		return nil, 0, ErrFrameTooLarge
	}

	if f.Masked {
		if len(b) < offset+4 {
			return nil, 0, ErrIncomplete
		}
		copy(f.Mask[:], b[offset:offset+4])
		offset += 4
	}

	if uint64(len(b)-offset) < length {
		return nil, 0, ErrIncomplete
	}

	end := offset + int(length)
	f.Payload = make([]byte, length)
	copy(f.Payload, b[offset:end])
	if f.Masked {
		for i := range f.Payload {
			f.Payload[i] ^= f.Mask[i%4]
		}
	}

	return f, end, nil
}

// BuildFrame encodes message as a single unmasked text frame.
// Server-to-client frames are never masked.
func BuildFrame(message string) []byte {
	return buildFrame(OpcodeText, []byte(message))
}

// BuildControlFrame encodes a control frame such as close.
func BuildControlFrame(op Opcode, payload []byte) []byte {
	return buildFrame(op, payload)
}

func buildFrame(op Opcode, payload []byte) []byte {
	n := len(payload)

	var hdr []byte
	b0 := 0x80 | byte(op&0x0F)
	switch {
	case n < 126:
		hdr = []byte{b0, byte(n)}
	case n < 65536:
		hdr = make([]byte, 4)
		hdr[0], hdr[1] = b0, 126
		binary.BigEndian.PutUint16(hdr[2:], uint16(n))
	default:
		hdr = make([]byte, 10)
		hdr[0], hdr[1] = b0, 127
		binary.BigEndian.PutUint64(hdr[2:], uint64(n))
	}

	buf := make([]byte, len(hdr)+n)
	copy(buf, hdr)
	copy(buf[len(hdr):], payload)
	return buf
}
