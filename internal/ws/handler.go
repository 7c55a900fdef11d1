package ws

import (
	"context"
	"errors"
	"io"
	"net"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/todosync/internal/infrastructure/logging"
	"github.com/GriffinCanCode/todosync/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/todosync/internal/shared/types"
	"github.com/GriffinCanCode/todosync/internal/ws/protocol"
)

// Dispatcher handles one decoded text message from a client. Calls for a
// given connection are made sequentially from that connection's goroutine.
type Dispatcher interface {
	Dispatch(ctx context.Context, from types.Sender, payload []byte)
}

// DispatcherFunc adapts a function to Dispatcher
type DispatcherFunc func(ctx context.Context, from types.Sender, payload []byte)

func (f DispatcherFunc) Dispatch(ctx context.Context, from types.Sender, payload []byte) {
	f(ctx, from, payload)
}

// HandlerConfig tunes per-connection behaviour
type HandlerConfig struct {
	ReadBufferSize   int
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
	MaxPayload       int
}

// DefaultHandlerConfig returns the production defaults
func DefaultHandlerConfig() HandlerConfig {
	return HandlerConfig{
		ReadBufferSize:   4096,
		HandshakeTimeout: 10 * time.Second,
		WriteTimeout:     defaultWriteTimeout,
		MaxPayload:       protocol.MaxPayloadSize,
	}
}

// State is the lifecycle stage of a connection
type State int

const (
	StateConnecting State = iota
	StateOpen
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Handler drives one socket through Connecting, Open and Closed
type Handler struct {
	cfg        HandlerConfig
	registry   *Registry
	dispatcher Dispatcher
	metrics    *monitoring.Metrics
	log        *zap.Logger
}

// NewHandler creates a connection handler. metrics may be nil.
func NewHandler(cfg HandlerConfig, registry *Registry, dispatcher Dispatcher, metrics *monitoring.Metrics, log *zap.Logger) *Handler {
	def := DefaultHandlerConfig()
	if cfg.ReadBufferSize <= 0 {
		cfg.ReadBufferSize = def.ReadBufferSize
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = def.HandshakeTimeout
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}
	if cfg.MaxPayload <= 0 {
		cfg.MaxPayload = def.MaxPayload
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{
		cfg:        cfg,
		registry:   registry,
		dispatcher: dispatcher,
		metrics:    metrics,
		log:        log.Named("ws"),
	}
}

// Serve runs the connection until it closes. It always closes raw.
func (h *Handler) Serve(ctx context.Context, raw net.Conn) {
	conn := newConn(raw, h.cfg.WriteTimeout)
	log := h.log.With(logging.ConnID(conn.ID()), zap.String("remote", conn.RemoteAddr()))

	rest, ok := h.handshake(conn, log)
	if !ok {
		_ = conn.Close()
		return
	}

	h.registry.Add(conn)
	h.metrics.IncWSConnections()
	log.Info("client connected", zap.Int("clients", h.registry.Len()))

	defer func() {
		h.registry.Remove(conn)
		_ = conn.Close()
		h.metrics.DecWSConnections()
		log.Info("client disconnected", zap.Int("clients", h.registry.Len()))
	}()

	if err := h.readLoop(ctx, conn, rest, log); err != nil {
		log.Debug("connection ended", zap.Error(err))
	}
}

// handshake reads the upgrade request and answers it. It returns any bytes
// that arrived after the request headers.
func (h *Handler) handshake(conn *Conn, log *zap.Logger) ([]byte, bool) {
	_ = conn.raw.SetReadDeadline(time.Now().Add(h.cfg.HandshakeTimeout))

	buf := make([]byte, 0, h.cfg.ReadBufferSize)
	chunk := make([]byte, h.cfg.ReadBufferSize)
	for {
		n, err := conn.raw.Read(chunk)
		buf = append(buf, chunk[:n]...)

		hs, consumed, perr := protocol.ReadHandshake(buf)
		switch {
		case perr == nil:
			if werr := conn.writeRaw(protocol.SwitchingProtocols(protocol.ComputeAcceptKey(hs.Key))); werr != nil {
				h.metrics.RecordHandshake("error")
				log.Warn("handshake write failed", zap.Error(werr))
				return nil, false
			}
			_ = conn.raw.SetReadDeadline(time.Time{})
			h.metrics.RecordHandshake("accepted")
			log.Debug("handshake complete", zap.String("path", hs.Path))
			return buf[consumed:], true

		case errors.Is(perr, protocol.ErrIncomplete):
			if err != nil {
				h.metrics.RecordHandshake("error")
				if !errors.Is(err, io.EOF) {
					log.Debug("handshake read failed", zap.Error(err))
				}
				return nil, false
			}
			continue

		default:
			h.metrics.RecordHandshake("rejected")
			log.Warn("handshake rejected", zap.Error(perr))
			_ = conn.writeRaw(protocol.BadRequest(perr.Error()))
			return nil, false
		}
	}
}

func (h *Handler) readLoop(ctx context.Context, conn *Conn, initial []byte, log *zap.Logger) error {
	dec := protocol.NewDecoder(h.cfg.MaxPayload)
	_, _ = dec.Write(initial)

	chunk := make([]byte, h.cfg.ReadBufferSize)
	for {
		done, err := h.drain(ctx, conn, dec, log)
		if err != nil || done {
			return err
		}

		n, rerr := conn.raw.Read(chunk)
		if n > 0 {
			_, _ = dec.Write(chunk[:n])
		}
		if rerr != nil {
			// Frames that arrived together with EOF are still dispatched
			if _, derr := h.drain(ctx, conn, dec, log); derr != nil {
				return derr
			}
			return rerr
		}
	}
}

// drain dispatches every complete message in dec. done is true after a close frame.
func (h *Handler) drain(ctx context.Context, conn *Conn, dec *protocol.Decoder, log *zap.Logger) (bool, error) {
	for {
		m, err := dec.NextMessage()
		if errors.Is(err, protocol.ErrIncomplete) {
			return false, nil
		}
		if err != nil {
			return true, err
		}

		switch m.Opcode {
		case protocol.OpcodeText:
			h.dispatcher.Dispatch(ctx, conn, []byte(m.Text()))
		case protocol.OpcodeClose:
			code := m.Payload
			if len(code) > 2 {
				code = code[:2]
			}
			_ = conn.WriteFrame(protocol.BuildControlFrame(protocol.OpcodeClose, code))
			return true, nil
		case protocol.OpcodePing, protocol.OpcodePong:
			// Keepalives are accepted without a reply
		default:
			log.Debug("ignoring message", zap.Stringer("opcode", m.Opcode))
		}
	}
}
