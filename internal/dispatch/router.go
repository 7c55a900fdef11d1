package dispatch

import (
	"context"
	"encoding/json"
	"errors"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/todosync/internal/domain/task"
	"github.com/GriffinCanCode/todosync/internal/infrastructure/logging"
	"github.com/GriffinCanCode/todosync/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/todosync/internal/shared/id"
	"github.com/GriffinCanCode/todosync/internal/shared/types"
)

// Notifier fans a task change out to every connected client
type Notifier interface {
	BroadcastTaskChange(action types.Action, task any) int
}

// change is one sync notification produced by a handler
type change struct {
	action types.Action
	task   any
}

type handlerFunc func(ctx context.Context, req *types.Request) (any, []change, error)

type route struct {
	reply string
	fn    handlerFunc
}

// Router decodes inbound envelopes, runs the matching task operation,
// replies to the sender and broadcasts resulting changes.
type Router struct {
	store    task.Store
	notifier Notifier
	metrics  *monitoring.Metrics
	log      *zap.Logger
	routes   map[string]route
}

// NewRouter creates a router. metrics may be nil.
func NewRouter(store task.Store, notifier Notifier, metrics *monitoring.Metrics, log *zap.Logger) *Router {
	if log == nil {
		log = zap.NewNop()
	}
	r := &Router{
		store:    store,
		notifier: notifier,
		metrics:  metrics,
		log:      log.Named("router"),
	}
	r.routes = map[string]route{
		types.TypeFetchTasks:          {types.TypeTasksData, r.fetchTasks},
		types.TypeCreateTask:          {types.TypeTaskCreated, r.createTask},
		types.TypeUpdateTask:          {types.TypeTaskUpdated, r.updateTask},
		types.TypeDeleteTask:          {types.TypeTaskDeleted, r.deleteTask},
		types.TypeUpdateTaskCompleted: {types.TypeTaskCompletedUpdated, r.updateTaskCompleted},
		types.TypeToggleComplete:      {types.TypeTaskUpdated, r.toggleComplete},
		types.TypeClearAllTasks:       {types.TypeAllTasksCleared, r.clearAllTasks},
		types.TypeSyncTasks:           {types.TypeSyncResult, r.syncTasks},
		types.TypePing:                {types.TypePong, r.ping},
	}
	return r
}

// Types lists the message types the router accepts
func (r *Router) Types() []string {
	out := make([]string, 0, len(r.routes))
	for t := range r.routes {
		out = append(out, t)
	}
	return out
}

// Dispatch handles one text message from a client. The reply goes to from
// first, then every change is broadcast. Errors only reach from.
func (r *Router) Dispatch(ctx context.Context, from types.Sender, payload []byte) {
	var req types.Request
	if err := json.Unmarshal(payload, &req); err != nil {
		r.reply(from, errorEnvelope(ProcessError("invalid JSON message", err), ""))
		return
	}

	rt, ok := r.routes[req.Type]
	if !ok {
		r.metrics.RecordWSMessage("in", "unknown")
		r.reply(from, errorEnvelope(ProcessError("unknown message type: "+req.Type, nil), req.RequestID))
		return
	}
	r.metrics.RecordWSMessage("in", req.Type)

	data, changes, err := rt.fn(ctx, &req)
	if err != nil {
		de := Classify(err)
		log := r.log.With(logging.ConnID(from.ID()), logging.MsgType(req.Type), zap.String("code", de.Code()))
		if de.Kind == KindStore {
			log.Error("operation failed", zap.Error(err))
		} else {
			log.Debug("request rejected", zap.Error(err))
		}
		r.reply(from, errorEnvelope(de, req.RequestID))
		return
	}

	r.reply(from, types.Envelope{Type: rt.reply, Data: data})
	for _, c := range changes {
		r.notifier.BroadcastTaskChange(c.action, c.task)
	}
}

func (r *Router) reply(to types.Sender, env types.Envelope) {
	if err := to.Send(env); err != nil {
		r.log.Debug("reply not delivered", logging.ConnID(to.ID()), logging.MsgType(env.Type), zap.Error(err))
		return
	}
	r.metrics.RecordWSMessage("out", env.Type)
}

func errorEnvelope(e *Error, requestID string) types.Envelope {
	return types.Envelope{
		Type: types.TypeError,
		Data: types.ErrorBody{Code: e.Code(), Message: e.Message, RequestID: requestID},
	}
}

// timed wraps a store call with a duration metric
func (r *Router) timed(op string, fn func() error) error {
	timer := monitoring.NewTimer(r.metrics, op)
	err := fn()
	timer.Stop(err)
	return err
}

type tasksReply struct {
	Tasks []*task.Task `json:"tasks"`
}

// fetchFilter optionally narrows fetch_tasks. Unknown categories are ignored.
type fetchFilter struct {
	Category  string `json:"category"`
	Completed *bool  `json:"completed"`
}

func (r *Router) fetchTasks(ctx context.Context, req *types.Request) (any, []change, error) {
	var ff fetchFilter
	if len(req.Data) > 0 {
		if err := json.Unmarshal(req.Data, &ff); err != nil {
			return nil, nil, ValidationError("invalid fetch filter: " + err.Error())
		}
	}

	var tasks []*task.Task
	err := r.timed("list", func() (err error) {
		tasks, err = r.store.List(ctx, task.NewFilter(ff.Category, ff.Completed))
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	return tasksReply{Tasks: tasks}, nil, nil
}

type taskReply struct {
	Task      *task.Task `json:"task"`
	TempID    string     `json:"tempId,omitempty"`
	RequestID string     `json:"requestId,omitempty"`
}

func (r *Router) createTask(ctx context.Context, req *types.Request) (any, []change, error) {
	d, err := decodeTask(req.Data)
	if err != nil {
		return nil, nil, err
	}
	if err := d.validateCreate(); err != nil {
		return nil, nil, err
	}

	var created *task.Task
	err = r.timed("create", func() (err error) {
		created, err = r.store.Create(ctx, d.fields())
		return err
	})
	if err != nil {
		return nil, nil, err
	}

	return taskReply{Task: created, TempID: d.TempID, RequestID: req.RequestID},
		[]change{{types.ActionCreate, created}}, nil
}

func (r *Router) updateTask(ctx context.Context, req *types.Request) (any, []change, error) {
	d, err := decodeTask(req.Data)
	if err != nil {
		return nil, nil, err
	}
	updated, err := r.applyPatch(ctx, d.ID, d.patch())
	if err != nil {
		return nil, nil, err
	}
	return taskReply{Task: updated, RequestID: req.RequestID},
		[]change{{types.ActionUpdate, updated}}, nil
}

// applyPatch validates the id and patch, then updates the store
func (r *Router) applyPatch(ctx context.Context, taskID string, patch task.Patch) (*task.Task, error) {
	if err := requireID(taskID); err != nil {
		return nil, err
	}
	if err := patch.Validate(); err != nil {
		return nil, err
	}

	var updated *task.Task
	err := r.timed("update", func() (err error) {
		updated, err = r.store.Update(ctx, taskID, patch)
		return err
	})
	if errors.Is(err, task.ErrNotFound) {
		return nil, NotFoundError(taskID)
	}
	return updated, err
}

type deletedReply struct {
	ID        string `json:"id"`
	RequestID string `json:"requestId,omitempty"`
}

type deletedTask struct {
	ID string `json:"id"`
}

func (r *Router) deleteTask(ctx context.Context, req *types.Request) (any, []change, error) {
	d, err := decodeTask(req.Data)
	if err != nil {
		return nil, nil, err
	}
	if err := requireID(d.ID); err != nil {
		return nil, nil, err
	}

	err = r.timed("delete", func() error { return r.store.Delete(ctx, d.ID) })
	if errors.Is(err, task.ErrNotFound) {
		return nil, nil, NotFoundError(d.ID)
	}
	if err != nil {
		return nil, nil, err
	}

	return deletedReply{ID: d.ID, RequestID: req.RequestID},
		[]change{{types.ActionDelete, deletedTask{ID: d.ID}}}, nil
}

type completedReply struct {
	ID        string     `json:"id"`
	Task      *task.Task `json:"task"`
	RequestID string     `json:"requestId,omitempty"`
}

// setCompleted is shared by update_task_completed and toggle_complete.
// A missing completed flag means false.
func (r *Router) setCompleted(ctx context.Context, req *types.Request) (*task.Task, error) {
	d, err := decodeTask(req.Data)
	if err != nil {
		return nil, err
	}
	completed := d.Completed != nil && *d.Completed
	return r.applyPatch(ctx, d.ID, task.Patch{Completed: &completed})
}

func (r *Router) updateTaskCompleted(ctx context.Context, req *types.Request) (any, []change, error) {
	updated, err := r.setCompleted(ctx, req)
	if err != nil {
		return nil, nil, err
	}
	return completedReply{ID: updated.ID, Task: updated, RequestID: req.RequestID},
		[]change{{types.ActionUpdate, updated}}, nil
}

func (r *Router) toggleComplete(ctx context.Context, req *types.Request) (any, []change, error) {
	updated, err := r.setCompleted(ctx, req)
	if err != nil {
		return nil, nil, err
	}
	return taskReply{Task: updated, RequestID: req.RequestID},
		[]change{{types.ActionUpdate, updated}}, nil
}

type clearedReply struct {
	Count     int    `json:"count"`
	RequestID string `json:"requestId,omitempty"`
}

func (r *Router) clearAllTasks(ctx context.Context, req *types.Request) (any, []change, error) {
	var n int
	err := r.timed("delete_all", func() (err error) {
		n, err = r.store.DeleteAll(ctx)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	r.log.Info("all tasks cleared", zap.Int("count", n))
	return clearedReply{Count: n, RequestID: req.RequestID},
		[]change{{types.ActionClear, nil}}, nil
}

// syncedTask is a task echoed back with the placeholder id it replaced
type syncedTask struct {
	*task.Task
	TempID string `json:"tempId,omitempty"`
}

type syncError struct {
	TaskID string `json:"taskId"`
	Code   string `json:"code"`
	Error  string `json:"error"`
}

type syncReply struct {
	Success     bool          `json:"success"`
	SyncedTasks []*syncedTask `json:"syncedTasks"`
	Errors      []syncError   `json:"errors"`
	RequestID   string        `json:"requestId,omitempty"`
}

// syncTasks reconciles a batch of offline edits. Items fail independently.
func (r *Router) syncTasks(ctx context.Context, req *types.Request) (any, []change, error) {
	var batch syncData
	if len(req.Data) > 0 {
		if err := json.Unmarshal(req.Data, &batch); err != nil {
			return nil, nil, ValidationError("invalid sync payload: " + err.Error())
		}
	}

	reply := syncReply{
		SyncedTasks: make([]*syncedTask, 0, len(batch.Tasks)),
		Errors:      []syncError{},
		RequestID:   req.RequestID,
	}
	var changes []change

	for _, raw := range batch.Tasks {
		d, err := decodeTask(raw)
		if err != nil {
			reply.Errors = append(reply.Errors, toSyncError("", err))
			continue
		}

		synced, action, err := r.syncOne(ctx, d)
		if err != nil {
			reply.Errors = append(reply.Errors, toSyncError(d.ID, err))
			continue
		}
		reply.SyncedTasks = append(reply.SyncedTasks, synced)
		changes = append(changes, change{action, synced})
	}

	reply.Success = len(reply.Errors) == 0
	return reply, changes, nil
}

func (r *Router) syncOne(ctx context.Context, d *taskData) (*syncedTask, types.Action, error) {
	if id.IsTemporary(d.ID) {
		if err := d.validateCreate(); err != nil {
			return nil, "", err
		}
		var created *task.Task
		err := r.timed("create", func() (err error) {
			created, err = r.store.Create(ctx, d.fields())
			return err
		})
		if err != nil {
			return nil, "", err
		}
		return &syncedTask{Task: created, TempID: d.ID}, types.ActionCreate, nil
	}

	updated, err := r.applyPatch(ctx, d.ID, d.patch())
	if err != nil {
		return nil, "", err
	}
	return &syncedTask{Task: updated}, types.ActionUpdate, nil
}

func toSyncError(taskID string, err error) syncError {
	de := Classify(err)
	return syncError{TaskID: taskID, Code: de.Code(), Error: de.Message}
}

type pongReply struct {
	RequestID string `json:"requestId,omitempty"`
}

func (r *Router) ping(_ context.Context, req *types.Request) (any, []change, error) {
	return pongReply{RequestID: req.RequestID}, nil, nil
}
