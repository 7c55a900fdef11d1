package protocol

import (
	"bufio"
	"bytes"
	"crypto/sha1"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strconv"
)

const (
	// WebSocketGUID is the fixed suffix from RFC 6455 Section 1.3.
	WebSocketGUID = "258EAFA5-E914-47DA-95CA-C5AB0DC85B11"
	// HeaderSecWebSocketKey carries the client nonce.
	HeaderSecWebSocketKey = "Sec-WebSocket-Key"
	// MaxHandshakeSize bounds the opening request headers.
	MaxHandshakeSize = 8192
)

var (
	ErrHandshakeTooLarge = errors.New("handshake request too large")
	ErrBadHandshake      = errors.New("malformed handshake request")
	ErrMissingKey        = errors.New("missing Sec-WebSocket-Key header")
)

var headerTerminator = []byte("\r\n\r\n")

// Handshake is a parsed opening request.
type Handshake struct {
	Method string
	Path   string
	Key    string
	Header http.Header
}

// ComputeAcceptKey derives Sec-WebSocket-Accept from the client key.
func ComputeAcceptKey(key string) string {
	sum := sha1.Sum([]byte(key + WebSocketGUID))
	return base64.StdEncoding.EncodeToString(sum[:])
}

// ReadHandshake parses the opening request from the start of buf. It returns
// ErrIncomplete until the blank line ending the headers has arrived, and the
// number of bytes consumed on success. Bytes past that point belong to the
// frame stream. When the request parses but carries no key, the handshake is
// returned together with ErrMissingKey.
func ReadHandshake(buf []byte) (*Handshake, int, error) {
	end := bytes.Index(buf, headerTerminator)
	if end < 0 {
		if len(buf) > MaxHandshakeSize {
			return nil, 0, ErrHandshakeTooLarge
		}
		return nil, 0, ErrIncomplete
	}
	n := end + len(headerTerminator)
	if n > MaxHandshakeSize {
		return nil, 0, ErrHandshakeTooLarge
	}

	req, err := http.ReadRequest(bufio.NewReader(bytes.NewReader(buf[:n])))
	if err != nil {
		return nil, n, fmt.Errorf("%w: %v", ErrBadHandshake, err)
	}

	hs := &Handshake{
		Method: req.Method,
		Path:   req.URL.RequestURI(),
		Key:    req.Header.Get(HeaderSecWebSocketKey),
		Header: req.Header,
	}
	if hs.Key == "" {
		return hs, n, ErrMissingKey
	}
	return hs, n, nil
}

// SwitchingProtocols builds the 101 response for an accepted handshake.
func SwitchingProtocols(accept string) []byte {
	return []byte("HTTP/1.1 101 Switching Protocols\r\n" +
		"Upgrade: websocket\r\n" +
		"Connection: Upgrade\r\n" +
		"Sec-WebSocket-Accept: " + accept + "\r\n\r\n")
}

// BadRequest builds a 400 response that rejects the upgrade.
func BadRequest(reason string) []byte {
	return []byte("HTTP/1.1 400 Bad Request\r\n" +
		"Content-Type: text/plain; charset=utf-8\r\n" +
		"Content-Length: " + strconv.Itoa(len(reason)) + "\r\n" +
		"Connection: close\r\n\r\n" + reason)
}
