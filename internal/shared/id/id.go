// Package id provides centralized ID generation for the backend.
//
// Task identifiers are prefixed ULIDs (task_<ULID>):
//   - Lexicographic sortability: ties on created_at resolve by id
//   - Monotonic within a millisecond: ids issued by one generator never go backwards
//   - Debuggable: prefixes make logs readable
//
// Clients that create tasks while offline use temporary ids carrying the
// "temp_" prefix. Those ids never reference a stored task; helpers here let
// the router and REST layer recognize and reject them.
package id

import (
	"crypto/rand"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// TaskID identifies a persisted task
type TaskID string

// ConnID identifies a WebSocket connection
type ConnID string

const (
	TaskPrefix      = "task"
	ConnPrefix      = "conn"
	TemporaryPrefix = "temp_"
)

// Generator generates monotonic ULIDs with optional prefixes
type Generator struct {
	mu      sync.Mutex // Protects entropy
	entropy io.Reader
}

var (
	defaultGenerator *Generator
	once             sync.Once
)

// Default returns the singleton generator instance
func Default() *Generator {
	once.Do(func() {
		defaultGenerator = NewGenerator()
	})
	return defaultGenerator
}

// NewGenerator creates a generator backed by crypto/rand with monotonic entropy
func NewGenerator() *Generator {
	return NewGeneratorWithEntropy(rand.Reader)
}

// NewGeneratorWithEntropy creates a generator with a custom entropy source.
// Useful for deterministic tests.
func NewGeneratorWithEntropy(entropy io.Reader) *Generator {
	return &Generator{entropy: ulid.Monotonic(entropy, 0)}
}

// Generate creates a new ULID stamped with the current time
func (g *Generator) Generate() ulid.ULID {
	return g.GenerateAt(time.Now())
}

// GenerateAt creates a new ULID stamped with t
func (g *Generator) GenerateAt(t time.Time) ulid.ULID {
	g.mu.Lock()
	defer g.mu.Unlock()

	return ulid.MustNew(ulid.Timestamp(t), g.entropy)
}

// GenerateWithPrefix creates a prefixed ULID string
func (g *Generator) GenerateWithPrefix(prefix string) string {
	return fmt.Sprintf("%s_%s", prefix, g.Generate().String())
}

// NewTaskID generates a new task ID
func NewTaskID() TaskID {
	return TaskID(Default().GenerateWithPrefix(TaskPrefix))
}

// NewTaskIDAt generates a task ID whose timestamp matches t
func NewTaskIDAt(t time.Time) TaskID {
	return TaskID(fmt.Sprintf("%s_%s", TaskPrefix, Default().GenerateAt(t).String()))
}

// NewConnID generates a connection ID. Connection ids are random, not sortable.
func NewConnID() ConnID {
	return ConnID(ConnPrefix + "_" + uuid.NewString())
}

func (id TaskID) String() string { return string(id) }
func (id ConnID) String() string { return string(id) }

// IsTemporary reports whether id is a client-side placeholder
func IsTemporary(id string) bool {
	return strings.HasPrefix(id, TemporaryPrefix)
}

// IsValid checks if a string is a bare ULID
func IsValid(id string) bool {
	_, err := ulid.Parse(id)
	return err == nil
}

// IsTaskID checks if a string has the task_<ULID> shape
func IsTaskID(id string) bool {
	rest, ok := strings.CutPrefix(id, TaskPrefix+"_")
	if !ok {
		return false
	}
	_, err := ulid.ParseStrict(rest)
	return err == nil
}

// Timestamp extracts the creation time from a bare or prefixed ULID
func Timestamp(id string) (time.Time, error) {
	if i := strings.LastIndexByte(id, '_'); i >= 0 {
		id = id[i+1:]
	}
	parsed, err := ulid.Parse(id)
	if err != nil {
		return time.Time{}, err
	}
	return ulid.Time(parsed.Time()), nil
}
