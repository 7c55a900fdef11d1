package task

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr[T any](v T) *T { return &v }

// fixedClock returns a clock that advances one second per call
func fixedClock(start time.Time) func() time.Time {
	var mu sync.Mutex
	cur := start
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		cur = cur.Add(time.Second)
		return cur
	}
}

func newTestStore() *MemoryStore {
	return NewMemoryStore().WithClock(fixedClock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)))
}

func TestCreateDefaults(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()

	created, err := s.Create(ctx, Fields{Content: "buy milk"})
	require.NoError(t, err)

	assert.NotEmpty(t, created.ID)
	assert.Equal(t, "buy milk", created.Content)
	assert.Equal(t, CategoryTask, created.Category)
	assert.Nil(t, created.Title)
	assert.False(t, created.Completed)
	assert.Nil(t, created.CompletedAt)
	assert.False(t, created.CreatedAt.IsZero())
}

func TestCreateCompletedStampsCompletedAt(t *testing.T) {
	s := newTestStore()

	created, err := s.Create(context.Background(), Fields{Content: "done already", Completed: true})
	require.NoError(t, err)

	assert.True(t, created.Completed)
	require.NotNil(t, created.CompletedAt)
}

func TestCreateValidation(t *testing.T) {
	tests := []struct {
		name   string
		fields Fields
		want   error
	}{
		{"empty content", Fields{Content: ""}, ErrEmptyContent},
		{"whitespace content", Fields{Content: "   \t"}, ErrEmptyContent},
		{"unknown category", Fields{Content: "x", Category: "work"}, ErrInvalidCategory},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestStore()
			_, err := s.Create(context.Background(), tt.fields)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)
			assert.ErrorIs(t, err, ErrInvalid)
			assert.Equal(t, 0, s.Len())
		})
	}
}

func TestUpdateAppliesPresentFields(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()

	created, err := s.Create(ctx, Fields{Title: ptr("old"), Content: "old content"})
	require.NoError(t, err)

	cat := CategoryTry
	updated, err := s.Update(ctx, created.ID, Patch{
		Content:  ptr("new content"),
		Category: &cat,
	})
	require.NoError(t, err)

	assert.Equal(t, "new content", updated.Content)
	assert.Equal(t, CategoryTry, updated.Category)
	require.NotNil(t, updated.Title)
	assert.Equal(t, "old", *updated.Title)
}

func TestUpdateClearsTitle(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()

	created, err := s.Create(ctx, Fields{Title: ptr("title"), Content: "c"})
	require.NoError(t, err)

	updated, err := s.Update(ctx, created.ID, Patch{SetTitle: true})
	require.NoError(t, err)
	assert.Nil(t, updated.Title)
}

func TestUpdateCompletedTransitions(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()

	created, err := s.Create(ctx, Fields{Content: "c"})
	require.NoError(t, err)

	done, err := s.Update(ctx, created.ID, Patch{Completed: ptr(true)})
	require.NoError(t, err)
	assert.True(t, done.Completed)
	require.NotNil(t, done.CompletedAt)

	reopened, err := s.Update(ctx, created.ID, Patch{Completed: ptr(false)})
	require.NoError(t, err)
	assert.False(t, reopened.Completed)
	assert.Nil(t, reopened.CompletedAt)
}

func TestUpdateInvalidCategoryDoesNotMutate(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()

	created, err := s.Create(ctx, Fields{Content: "c"})
	require.NoError(t, err)

	bad := Category("nope")
	_, err = s.Update(ctx, created.ID, Patch{Content: ptr("changed"), Category: &bad})
	assert.ErrorIs(t, err, ErrInvalidCategory)

	got, err := s.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "c", got.Content)
	assert.Equal(t, CategoryTask, got.Category)
}

func TestNotFound(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()

	_, err := s.Get(ctx, "task_missing")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.Update(ctx, "task_missing", Patch{Completed: ptr(true)})
	assert.ErrorIs(t, err, ErrNotFound)

	assert.ErrorIs(t, s.Delete(ctx, "task_missing"), ErrNotFound)
}

func TestDeleteTwice(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()

	created, err := s.Create(ctx, Fields{Content: "c"})
	require.NoError(t, err)

	require.NoError(t, s.Delete(ctx, created.ID))
	assert.ErrorIs(t, s.Delete(ctx, created.ID), ErrNotFound)
}

func TestListFilterAndOrder(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()

	first, err := s.Create(ctx, Fields{Content: "1", Category: CategoryTask})
	require.NoError(t, err)
	second, err := s.Create(ctx, Fields{Content: "2", Category: CategoryTry, Completed: true})
	require.NoError(t, err)
	third, err := s.Create(ctx, Fields{Content: "3", Category: CategoryTask, Completed: true})
	require.NoError(t, err)

	all, err := s.List(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{third.ID, second.ID, first.ID}, []string{all[0].ID, all[1].ID, all[2].ID})

	byCategory, err := s.List(ctx, NewFilter(string(CategoryTask), nil))
	require.NoError(t, err)
	assert.Len(t, byCategory, 2)

	completed, err := s.List(ctx, NewFilter("", ptr(true)))
	require.NoError(t, err)
	assert.Len(t, completed, 2)

	// Unknown categories are ignored, not rejected
	unknown, err := s.List(ctx, NewFilter("bogus", nil))
	require.NoError(t, err)
	assert.Len(t, unknown, 3)
}

func TestListReturnsCopies(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()

	created, err := s.Create(ctx, Fields{Content: "original"})
	require.NoError(t, err)

	list, err := s.List(ctx, Filter{})
	require.NoError(t, err)
	list[0].Content = "mutated"

	got, err := s.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "original", got.Content)
}

func TestDeleteAllAndImport(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := s.Create(ctx, Fields{Content: "c"})
		require.NoError(t, err)
	}
	snapshot, err := s.List(ctx, Filter{})
	require.NoError(t, err)

	n, err := s.DeleteAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, 0, s.Len())

	imported, err := s.Import(ctx, snapshot)
	require.NoError(t, err)
	assert.Equal(t, 3, imported)
	assert.Equal(t, 3, s.Len())
}

func TestCanceledContext(t *testing.T) {
	s := newTestStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Create(ctx, Fields{Content: "c"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestConcurrentAccess(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			created, err := s.Create(ctx, Fields{Content: "c"})
			if !assert.NoError(t, err) {
				return
			}
			_, err = s.Update(ctx, created.ID, Patch{Completed: ptr(true)})
			assert.NoError(t, err)
			_, err = s.List(ctx, Filter{})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 20, s.Len())
}
