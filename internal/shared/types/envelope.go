package types

import "encoding/json"

// Inbound message types
const (
	TypeFetchTasks          = "fetch_tasks"
	TypeCreateTask          = "create_task"
	TypeUpdateTask          = "update_task"
	TypeDeleteTask          = "delete_task"
	TypeUpdateTaskCompleted = "update_task_completed"
	TypeToggleComplete      = "toggle_complete"
	TypeClearAllTasks       = "clear_all_tasks"
	TypeSyncTasks           = "sync_tasks"
	TypePing                = "ping"
)

// Outbound message types
const (
	TypeTasksData            = "tasks_data"
	TypeTaskCreated          = "task_created"
	TypeTaskUpdated          = "task_updated"
	TypeTaskDeleted          = "task_deleted"
	TypeTaskCompletedUpdated = "task_completed_updated"
	TypeAllTasksCleared      = "all_tasks_cleared"
	TypeSyncResult           = "sync_result"
	TypePong                 = "pong"
	TypeError                = "error"
	TypeSyncNotification     = "sync_notification"
)

// Request is an inbound envelope as sent by clients
type Request struct {
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data,omitempty"`
	RequestID string          `json:"requestId,omitempty"`
}

// Envelope is an outbound message. Correlation ids travel inside Data.
type Envelope struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// Action names the kind of change carried by a sync notification
type Action string

const (
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
	ActionClear  Action = "clear"
)

// SyncNotification is broadcast to every connection after a mutation
type SyncNotification struct {
	Action Action `json:"action"`
	Task   any    `json:"task"`
}

// ErrorBody is the data of an error envelope
type ErrorBody struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"requestId,omitempty"`
}

// NewSyncNotification wraps a change in a sync_notification envelope
func NewSyncNotification(action Action, task any) Envelope {
	return Envelope{
		Type: TypeSyncNotification,
		Data: SyncNotification{Action: action, Task: task},
	}
}

// Sender is a single client that can receive envelopes
type Sender interface {
	ID() string
	Send(env Envelope) error
}
