package task

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"
)

// Category is one of a fixed set of task buckets
type Category string

const (
	CategoryTask     Category = "任务"
	CategoryTry      Category = "想尝试"
	CategoryReminder Category = "提醒"

	DefaultCategory = CategoryTask
)

// Categories lists every accepted category in display order
var Categories = []Category{CategoryTask, CategoryTry, CategoryReminder}

// Valid reports whether c belongs to the fixed set
func (c Category) Valid() bool {
	return slices.Contains(Categories, c)
}

// Validation errors. All of them wrap ErrInvalid.
var (
	ErrInvalid         = errors.New("invalid task")
	ErrEmptyContent    = fmt.Errorf("%w: content is required", ErrInvalid)
	ErrInvalidCategory = fmt.Errorf("%w: invalid category", ErrInvalid)
)

// Task is a single todo item
type Task struct {
	ID          string     `json:"id"`
	Title       *string    `json:"title"`
	Content     string     `json:"content"`
	Category    Category   `json:"category"`
	Completed   bool       `json:"completed"`
	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at"`
}

// Clone returns a deep copy so callers never share pointers with a store
func (t *Task) Clone() *Task {
	c := *t
	if t.Title != nil {
		title := *t.Title
		c.Title = &title
	}
	if t.CompletedAt != nil {
		at := *t.CompletedAt
		c.CompletedAt = &at
	}
	return &c
}

// setCompleted applies the completed_at stamping rule
func (t *Task) setCompleted(completed bool, now time.Time) {
	t.Completed = completed
	if completed {
		at := now
		t.CompletedAt = &at
	} else {
		t.CompletedAt = nil
	}
}

// Fields holds the attributes of a task to be created
type Fields struct {
	Title     *string
	Content   string
	Category  Category
	Completed bool
}

// Validate checks content and category, filling the default category
func (f *Fields) Validate() error {
	if strings.TrimSpace(f.Content) == "" {
		return ErrEmptyContent
	}
	if f.Category == "" {
		f.Category = DefaultCategory
	}
	if !f.Category.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidCategory, f.Category)
	}
	return nil
}

// Patch holds a partial update. Nil fields are left untouched.
type Patch struct {
	Content   *string
	SetTitle  bool
	Title     *string
	Category  *Category
	Completed *bool
}

// Empty reports whether the patch changes nothing
func (p Patch) Empty() bool {
	return p.Content == nil && !p.SetTitle && p.Category == nil && p.Completed == nil
}

// Validate checks the fields that are present
func (p Patch) Validate() error {
	if p.Content != nil && strings.TrimSpace(*p.Content) == "" {
		return ErrEmptyContent
	}
	if p.Category != nil && !p.Category.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidCategory, *p.Category)
	}
	return nil
}

// Apply mutates t. completed_at is stamped with now on true and cleared on false.
func (p Patch) Apply(t *Task, now time.Time) {
	if p.Content != nil {
		t.Content = *p.Content
	}
	if p.SetTitle {
		t.Title = p.Title
	}
	if p.Category != nil {
		t.Category = *p.Category
	}
	if p.Completed != nil {
		t.setCompleted(*p.Completed, now)
	}
}

// Filter narrows List results. Nil fields match everything.
type Filter struct {
	Category  *Category
	Completed *bool
}

// NewFilter builds a filter from loosely-typed input. Unknown categories are
// dropped rather than rejected so a stale client still gets a list.
func NewFilter(category string, completed *bool) Filter {
	var f Filter
	if c := Category(category); c.Valid() {
		f.Category = &c
	}
	f.Completed = completed
	return f
}

// Match reports whether t passes the filter
func (f Filter) Match(t *Task) bool {
	if f.Category != nil && t.Category != *f.Category {
		return false
	}
	if f.Completed != nil && t.Completed != *f.Completed {
		return false
	}
	return true
}
