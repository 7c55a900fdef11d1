package ws

import (
	"encoding/json"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/todosync/internal/infrastructure/logging"
	"github.com/GriffinCanCode/todosync/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/todosync/internal/shared/types"
	"github.com/GriffinCanCode/todosync/internal/ws/protocol"
)

// Broadcaster fans one message out to every registered connection
type Broadcaster struct {
	registry *Registry
	metrics  *monitoring.Metrics
	log      *zap.Logger
}

// NewBroadcaster creates a broadcaster over registry. metrics may be nil.
func NewBroadcaster(registry *Registry, metrics *monitoring.Metrics, log *zap.Logger) *Broadcaster {
	if log == nil {
		log = zap.NewNop()
	}
	return &Broadcaster{registry: registry, metrics: metrics, log: log.Named("broadcast")}
}

// Broadcast sends env to all open connections and returns the number of
// successful deliveries. The frame is built once. Connections whose write
// fails are removed and closed after the loop.
func (b *Broadcaster) Broadcast(env types.Envelope) int {
	payload, err := json.Marshal(env)
	if err != nil {
		b.log.Error("marshal broadcast", zap.String("type", env.Type), zap.Error(err))
		return 0
	}
	frame := protocol.BuildFrame(string(payload))

	var failed []*Conn
	delivered := 0
	for _, c := range b.registry.Snapshot() {
		if err := c.WriteFrame(frame); err != nil {
			failed = append(failed, c)
			continue
		}
		delivered++
	}

	for _, c := range failed {
		b.registry.Remove(c)
		_ = c.Close()
		b.log.Debug("pruned connection", logging.ConnID(c.ID()))
	}

	b.metrics.RecordBroadcast(delivered, len(failed))
	b.metrics.RecordWSMessage("out", env.Type)
	return delivered
}

// BroadcastTaskChange notifies every client that a task changed
func (b *Broadcaster) BroadcastTaskChange(action types.Action, task any) int {
	return b.Broadcast(types.NewSyncNotification(action, task))
}
