package task

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/GriffinCanCode/todosync/internal/shared/id"
)

// ErrNotFound is returned when a referenced task does not exist
var ErrNotFound = errors.New("task not found")

// Store is the persistence boundary for tasks. Every call is atomic from
// the caller's point of view.
type Store interface {
	List(ctx context.Context, filter Filter) ([]*Task, error)
	Create(ctx context.Context, fields Fields) (*Task, error)
	Get(ctx context.Context, id string) (*Task, error)
	Update(ctx context.Context, id string, patch Patch) (*Task, error)
	Delete(ctx context.Context, id string) error
	DeleteAll(ctx context.Context) (int, error)
}

// Importer is implemented by stores that can be seeded from a backup
type Importer interface {
	Import(ctx context.Context, tasks []*Task) (int, error)
}

// MemoryStore is an in-process Store guarded by a RWMutex
type MemoryStore struct {
	mu    sync.RWMutex
	tasks map[string]*Task // Protected by mu
	now   func() time.Time
}

// NewMemoryStore creates an empty store using the wall clock
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tasks: make(map[string]*Task),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// WithClock replaces the clock used for created_at and completed_at
func (s *MemoryStore) WithClock(now func() time.Time) *MemoryStore {
	s.now = now
	return s
}

// List returns matching tasks, newest created first
func (s *MemoryStore) List(ctx context.Context, filter Filter) ([]*Task, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	out := make([]*Task, 0, len(s.tasks))
	for _, t := range s.tasks {
		if filter.Match(t) {
			out = append(out, t.Clone())
		}
	}
	s.mu.RUnlock()

	sortNewestFirst(out)
	return out, nil
}

// Create validates fields and persists a new task
func (s *MemoryStore) Create(ctx context.Context, fields Fields) (*Task, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := fields.Validate(); err != nil {
		return nil, err
	}

	now := s.now()
	t := &Task{
		ID:        id.NewTaskIDAt(now).String(),
		Title:     fields.Title,
		Content:   fields.Content,
		Category:  fields.Category,
		CreatedAt: now,
	}
	t.setCompleted(fields.Completed, now)

	s.mu.Lock()
	s.tasks[t.ID] = t
	s.mu.Unlock()

	return t.Clone(), nil
}

// Get returns a copy of the task with the given id
func (s *MemoryStore) Get(ctx context.Context, taskID string) (*Task, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.tasks[taskID]
	if !ok {
		return nil, ErrNotFound
	}
	return t.Clone(), nil
}

// Update applies patch to an existing task
func (s *MemoryStore) Update(ctx context.Context, taskID string, patch Patch) (*Task, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := patch.Validate(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[taskID]
	if !ok {
		return nil, ErrNotFound
	}
	patch.Apply(t, s.now())
	return t.Clone(), nil
}

// Delete removes a task
func (s *MemoryStore) Delete(ctx context.Context, taskID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tasks[taskID]; !ok {
		return ErrNotFound
	}
	delete(s.tasks, taskID)
	return nil
}

// DeleteAll removes every task and reports how many were removed
func (s *MemoryStore) DeleteAll(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	n := len(s.tasks)
	s.tasks = make(map[string]*Task)
	return n, nil
}

// Import inserts tasks verbatim, replacing any with the same id
func (s *MemoryStore) Import(ctx context.Context, tasks []*Task) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, t := range tasks {
		if t == nil || t.ID == "" {
			continue
		}
		s.tasks[t.ID] = t.Clone()
		n++
	}
	return n, nil
}

// Len returns the number of stored tasks
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tasks)
}

func sortNewestFirst(tasks []*Task) {
	sort.Slice(tasks, func(i, j int) bool {
		if !tasks[i].CreatedAt.Equal(tasks[j].CreatedAt) {
			return tasks[i].CreatedAt.After(tasks[j].CreatedAt)
		}
		return tasks[i].ID > tasks[j].ID
	})
}
