// Package task defines the Task entity and its persistence boundary.
//
// A task carries free-form content, an optional title, a category from a
// fixed set, and a completion flag. completed_at is stamped exactly when a
// task becomes completed and cleared when it is reopened.
//
// The Store interface is what the WebSocket router, the REST handlers, the
// backup utility and the reminder digest consume. MemoryStore is the
// in-process implementation used by the server and by tests.
//
// Example Usage:
//
//	store := task.NewMemoryStore()
//	t, err := store.Create(ctx, task.Fields{Content: "buy milk"})
//	done := true
//	t, err = store.Update(ctx, t.ID, task.Patch{Completed: &done})
package task
