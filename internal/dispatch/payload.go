package dispatch

import (
	"bytes"
	"encoding/json"

	"github.com/GriffinCanCode/todosync/internal/domain/task"
	"github.com/GriffinCanCode/todosync/internal/shared/id"
)

// optionalString distinguishes an absent field from an explicit null
type optionalString struct {
	Set   bool
	Value *string
}

func (o *optionalString) UnmarshalJSON(b []byte) error {
	o.Set = true
	if bytes.Equal(b, []byte("null")) {
		o.Value = nil
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	o.Value = &s
	return nil
}

// taskData is the task-shaped payload shared by most message types. Clients
// send it either flat in data or nested under data.task.
type taskData struct {
	ID        string         `json:"id"`
	TempID    string         `json:"tempId"`
	Title     optionalString `json:"title"`
	Content   *string        `json:"content"`
	Category  *string        `json:"category"`
	Completed *bool          `json:"completed"`
	Task      *taskData      `json:"task"`
}

// decodeTask parses raw data and flattens the nested form. Identifiers on the
// outer object are used when the nested task does not carry them.
func decodeTask(raw json.RawMessage) (*taskData, error) {
	var d taskData
	if len(raw) > 0 && !bytes.Equal(raw, []byte("null")) {
		if err := json.Unmarshal(raw, &d); err != nil {
			return nil, ValidationError("invalid task payload: " + err.Error())
		}
	}
	if d.Task == nil {
		return &d, nil
	}

	inner := *d.Task
	inner.Task = nil
	if inner.ID == "" {
		inner.ID = d.ID
	}
	if inner.TempID == "" {
		inner.TempID = d.TempID
	}
	return &inner, nil
}

// fields converts the payload for task creation
func (d *taskData) fields() task.Fields {
	f := task.Fields{Title: d.Title.Value}
	if d.Content != nil {
		f.Content = *d.Content
	}
	if d.Category != nil {
		f.Category = task.Category(*d.Category)
	}
	if d.Completed != nil {
		f.Completed = *d.Completed
	}
	return f
}

// patch converts the payload for a partial update
func (d *taskData) patch() task.Patch {
	p := task.Patch{
		Content:   d.Content,
		SetTitle:  d.Title.Set,
		Title:     d.Title.Value,
		Completed: d.Completed,
	}
	if d.Category != nil {
		c := task.Category(*d.Category)
		p.Category = &c
	}
	return p
}

// validateCreate checks create input before it reaches the store
func (d *taskData) validateCreate() error {
	if d.Content == nil {
		return ValidationError("content is required")
	}
	f := d.fields()
	if err := f.Validate(); err != nil {
		return Classify(err)
	}
	return nil
}

// requireID enforces the rules for operations on persisted tasks
func requireID(taskID string) error {
	switch {
	case taskID == "":
		return ValidationError("task id is required")
	case id.IsTemporary(taskID):
		return ValidationError("temporary id cannot be used here: " + taskID)
	case !id.IsTaskID(taskID):
		return ValidationError("malformed task id: " + taskID)
	}
	return nil
}

type syncData struct {
	Tasks []json.RawMessage `json:"tasks"`
}
