package protocol

import "errors"

var (
	ErrUnexpectedContinuation = errors.New("continuation frame without a message in progress")
	ErrInterleavedMessage     = errors.New("data frame before the previous message finished")
	ErrFragmentedControl      = errors.New("fragmented control frame")
	ErrMessageTooLarge        = errors.New("message too large")
)

// Message is a whole data message reassembled from its fragments, or a
// single control frame.
type Message struct {
	Opcode  Opcode
	Payload []byte
}

// Text decodes the payload as UTF-8. Invalid sequences become U+FFFD.
func (m *Message) Text() string {
	return lossyText(m.Payload)
}

// Decoder accumulates bytes read from a connection and yields whole frames.
// TCP gives no message boundaries, so a frame may arrive split across reads
// or several frames may arrive in one read.
//
// A Decoder is owned by a single connection goroutine and is not safe for
// concurrent use.
type Decoder struct {
	buf        []byte
	maxPayload uint64

	// Fragmented message in progress
	fragmented bool
	msgOp      Opcode
	msg        []byte
}

// NewDecoder creates a decoder that rejects frames and messages above
// maxPayload bytes. A zero maxPayload selects MaxPayloadSize.
func NewDecoder(maxPayload int) *Decoder {
	limit := uint64(MaxPayloadSize)
	if maxPayload > 0 {
		limit = uint64(maxPayload)
	}
	return &Decoder{maxPayload: limit}
}

// Write appends received bytes. It never fails.
func (d *Decoder) Write(p []byte) (int, error) {
	d.buf = append(d.buf, p...)
	return len(p), nil
}

// Next returns the next complete frame, or ErrIncomplete when the buffer
// does not yet hold one. Any other error is fatal for the connection.
func (d *Decoder) Next() (*Frame, error) {
	f, n, err := parseFrame(d.buf, d.maxPayload)
	if err != nil {
		return nil, err
	}

	// Shift the remainder down so the buffer does not grow without bound
	rest := copy(d.buf, d.buf[n:])
	d.buf = d.buf[:rest]
	return f, nil
}

// NextMessage returns the next whole message. Data frames with FIN unset
// are joined with their continuation frames; control frames arriving in
// between are returned on their own without disturbing the message being
// assembled. ErrIncomplete means more bytes are needed. Any other error is
// a protocol violation and fatal for the connection.
func (d *Decoder) NextMessage() (*Message, error) {
	for {
		f, err := d.Next()
		if err != nil {
			return nil, err
		}

		if f.Opcode.IsControl() {
			if !f.Fin {
				return nil, ErrFragmentedControl
			}
			return &Message{Opcode: f.Opcode, Payload: f.Payload}, nil
		}

		if f.Opcode == OpcodeContinuation {
			if !d.fragmented {
				return nil, ErrUnexpectedContinuation
			}
		} else {
			if d.fragmented {
				return nil, ErrInterleavedMessage
			}
			if f.Fin {
				return &Message{Opcode: f.Opcode, Payload: f.Payload}, nil
			}
			d.fragmented = true
			d.msgOp = f.Opcode
			d.msg = nil
		}

		if uint64(len(d.msg))+uint64(len(f.Payload)) > d.maxPayload {
			return nil, ErrMessageTooLarge
		}
		d.msg = append(d.msg, f.Payload...)

		if f.Fin {
			m := &Message{Opcode: d.msgOp, Payload: d.msg}
			d.fragmented = false
			d.msg = nil
			return m, nil
		}
	}
}

// Buffered reports how many bytes are waiting for a complete frame.
func (d *Decoder) Buffered() int {
	return len(d.buf)
}
