// Package protocol implements the WebSocket wire format used by the sync server.
//
// The codec is pure: no sockets, no shared state. It covers the subset of
// RFC 6455 the server needs:
//   - Opening handshake: Sec-WebSocket-Key to Sec-WebSocket-Accept derivation,
//     101 and 400 responses
//   - Frame parsing: FIN/opcode, mask bit, 7/16/64-bit lengths, XOR unmasking
//   - Frame building: unmasked text frames with the same three length tiers
//   - Buffered decoding: frames split across TCP reads are reassembled
//   - Messages: fragmented data frames are joined by Decoder.NextMessage
//
// Not implemented: extensions, subprotocols, automatic ping/pong replies.
//
// Example Usage:
//
//	dec := protocol.NewDecoder(0)
//	dec.Write(chunk)
//	for {
//	    m, err := dec.NextMessage()
//	    if errors.Is(err, protocol.ErrIncomplete) {
//	        break
//	    }
//	    ...
//	}
package protocol
