package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/todosync/internal/backup"
	"github.com/GriffinCanCode/todosync/internal/domain/task"
	"github.com/GriffinCanCode/todosync/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/todosync/internal/infrastructure/tracing"
	"github.com/GriffinCanCode/todosync/internal/reminder"
	"github.com/GriffinCanCode/todosync/internal/shared/types"
)

// Notifier pushes task changes to WebSocket clients
type Notifier interface {
	BroadcastTaskChange(action types.Action, task any) int
}

// Clients reports how many WebSocket clients are connected
type Clients interface {
	Len() int
}

// Backups runs and lists task backups
type Backups interface {
	Backup(ctx context.Context) (string, error)
	List() ([]backup.Info, error)
}

// Reminder sends the reminder digest on demand
type Reminder interface {
	SendNow(ctx context.Context) (reminder.Record, error)
}

// Handlers contains all HTTP handlers
type Handlers struct {
	store    task.Store
	notifier Notifier
	clients  Clients
	backups  Backups
	reminder Reminder
	metrics  *monitoring.Metrics
	log      *zap.Logger
	events   []string
}

// NewHandlers creates a new handler set. backups and reminder may be nil, in
// which case their endpoints answer 503.
func NewHandlers(
	store task.Store,
	notifier Notifier,
	clients Clients,
	backups Backups,
	reminder Reminder,
	metrics *monitoring.Metrics,
	log *zap.Logger,
) *Handlers {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handlers{
		store:    store,
		notifier: notifier,
		clients:  clients,
		backups:  backups,
		reminder: reminder,
		metrics:  metrics,
		log:      log.Named("http"),
	}
}

// WithEvents sets the WebSocket message types advertised by Root
func (h *Handlers) WithEvents(events []string) *Handlers {
	h.events = events
	return h
}

// Root describes the service
func (h *Handlers) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"message": "TodoSync API Server",
		"version": "1.0.0",
		"status":  "running",
		"endpoints": gin.H{
			"tasks":         "/api/tasks",
			"create_task":   "/api/tasks (POST)",
			"update_task":   "/api/tasks/:id (PUT)",
			"delete_task":   "/api/tasks/:id (DELETE)",
			"complete_task": "/api/tasks/:id/complete (PUT)",
			"test_email":    "/api/send-test-email (POST)",
			"backups":       "/api/backups",
			"metrics":       "/metrics",
		},
		"websocket_events": h.events,
	})
}

// Health handles detailed health check
func (h *Handlers) Health(c *gin.Context) {
	clients := 0
	if h.clients != nil {
		clients = h.clients.Len()
	}
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"clients": clients,
		"metrics": h.metrics.Snapshot(),
	})
}

// ListTasks returns tasks newest first, optionally filtered by category and
// completed. Unknown categories are ignored.
func (h *Handlers) ListTasks(c *gin.Context) {
	var completed *bool
	if v, ok := c.GetQuery("completed"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "completed must be true or false"})
			return
		}
		completed = &b
	}

	tasks, err := h.store.List(c.Request.Context(), task.NewFilter(c.Query("category"), completed))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, tasks)
}

// taskBody is the JSON body of create and update requests. Title is kept
// raw so an explicit null can be told apart from an absent field.
type taskBody struct {
	Title     json.RawMessage `json:"title"`
	Content   *string         `json:"content"`
	Category  *string         `json:"category"`
	Completed *bool           `json:"completed"`
}

func (b *taskBody) title() (bool, *string, error) {
	if len(b.Title) == 0 {
		return false, nil, nil
	}
	var title *string
	if err := json.Unmarshal(b.Title, &title); err != nil {
		return false, nil, errors.New("title must be a string or null")
	}
	return true, title, nil
}

func bindBody(c *gin.Context) (*taskBody, bool) {
	var body taskBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return nil, false
	}
	return &body, true
}

// CreateTask creates a task and notifies WebSocket clients
func (h *Handlers) CreateTask(c *gin.Context) {
	body, ok := bindBody(c)
	if !ok {
		return
	}
	if body.Content == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "content is required"})
		return
	}
	_, title, err := body.title()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	fields := task.Fields{Title: title, Content: *body.Content}
	if body.Category != nil {
		fields.Category = task.Category(*body.Category)
	}
	if body.Completed != nil {
		fields.Completed = *body.Completed
	}

	created, err := h.store.Create(c.Request.Context(), fields)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.notifier.BroadcastTaskChange(types.ActionCreate, created)
	c.JSON(http.StatusCreated, created)
}

// GetTask returns one task
func (h *Handlers) GetTask(c *gin.Context) {
	t, err := h.store.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

// UpdateTask applies the fields present in the body
func (h *Handlers) UpdateTask(c *gin.Context) {
	body, ok := bindBody(c)
	if !ok {
		return
	}
	setTitle, title, err := body.title()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	patch := task.Patch{
		Content:   body.Content,
		SetTitle:  setTitle,
		Title:     title,
		Completed: body.Completed,
	}
	if body.Category != nil {
		cat := task.Category(*body.Category)
		patch.Category = &cat
	}
	if patch.Empty() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "request body is empty"})
		return
	}
	if err := patch.Validate(); err != nil {
		h.fail(c, err)
		return
	}

	updated, err := h.store.Update(c.Request.Context(), c.Param("id"), patch)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.notifier.BroadcastTaskChange(types.ActionUpdate, updated)
	c.JSON(http.StatusOK, updated)
}

// DeleteTask removes a task
func (h *Handlers) DeleteTask(c *gin.Context) {
	taskID := c.Param("id")
	if err := h.store.Delete(c.Request.Context(), taskID); err != nil {
		h.fail(c, err)
		return
	}
	h.notifier.BroadcastTaskChange(types.ActionDelete, gin.H{"id": taskID})
	c.JSON(http.StatusOK, gin.H{"message": "task deleted", "id": taskID})
}

// CompleteTask sets the completed flag, toggling it when the body omits it
func (h *Handlers) CompleteTask(c *gin.Context) {
	ctx := c.Request.Context()
	taskID := c.Param("id")

	var body struct {
		Completed *bool `json:"completed"`
	}
	raw, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
	}

	if body.Completed == nil {
		current, err := h.store.Get(ctx, taskID)
		if err != nil {
			h.fail(c, err)
			return
		}
		toggled := !current.Completed
		body.Completed = &toggled
	}

	updated, err := h.store.Update(ctx, taskID, task.Patch{Completed: body.Completed})
	if err != nil {
		h.fail(c, err)
		return
	}
	h.notifier.BroadcastTaskChange(types.ActionUpdate, updated)
	c.JSON(http.StatusOK, updated)
}

// SendTestEmail mails the reminder digest immediately
func (h *Handlers) SendTestEmail(c *gin.Context) {
	if h.reminder == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "reminder is not available"})
		return
	}
	rec, err := h.reminder.SendNow(c.Request.Context())
	if err != nil {
		h.log.Warn("test email failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "send failed: " + err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "test email sent", "task_count": rec.TaskCount})
}

// CreateBackup runs a backup now
func (h *Handlers) CreateBackup(c *gin.Context) {
	if h.backups == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "backups are not available"})
		return
	}
	path, err := h.backups.Backup(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"path": path})
}

// ListBackups lists backups newest first
func (h *Handlers) ListBackups(c *gin.Context) {
	if h.backups == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "backups are not available"})
		return
	}
	infos, err := h.backups.List()
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"backups": infos, "count": len(infos)})
}

// fail maps domain errors onto status codes
func (h *Handlers) fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, task.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "task not found"})
	case errors.Is(err, task.ErrEmptyContent):
		c.JSON(http.StatusBadRequest, gin.H{"error": "content is required"})
	case errors.Is(err, task.ErrInvalidCategory):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid category"})
	case errors.Is(err, task.ErrInvalid):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		h.log.Error("request failed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.String("trace_id", string(tracing.GetTraceID(c.Request.Context()))),
			zap.Error(err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}
