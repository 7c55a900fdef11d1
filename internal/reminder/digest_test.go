package reminder

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/todosync/internal/domain/task"
)

func TestRenderEmpty(t *testing.T) {
	d, err := NewRenderer(cst).Render(nil, morning)
	require.NoError(t, err)

	assert.Equal(t, 0, d.TaskCount)
	assert.Contains(t, d.HTML, "目前没有待办任务")
}

func TestRenderGroupsInCategoryOrder(t *testing.T) {
	created := time.Date(2024, 2, 28, 20, 0, 0, 0, time.UTC)
	title := "weekly"
	tasks := []*task.Task{
		{ID: "a", Content: "call mom", Category: task.CategoryReminder, CreatedAt: created},
		{ID: "b", Title: &title, Content: "report", Category: task.CategoryTask, CreatedAt: created},
		{ID: "c", Content: "finished", Category: task.CategoryTask, Completed: true},
	}

	d, err := NewRenderer(cst).Render(tasks, morning)
	require.NoError(t, err)

	assert.Equal(t, 2, d.TaskCount)
	assert.Contains(t, d.HTML, "<strong>2</strong>")
	assert.Contains(t, d.HTML, "任务 (1)")
	assert.Contains(t, d.HTML, "提醒 (1)")
	assert.NotContains(t, d.HTML, "想尝试")
	assert.NotContains(t, d.HTML, "finished")
	assert.Less(t, strings.Index(d.HTML, "任务 (1)"), strings.Index(d.HTML, "提醒 (1)"))
	assert.Contains(t, d.HTML, "1. weekly")
	// 20:00 UTC on the 28th is the 29th in CST
	assert.Contains(t, d.HTML, "创建时间: 2024-02-29")
}

func TestRenderSanitizesContent(t *testing.T) {
	title := "<i>hi</i>"
	tasks := []*task.Task{
		{ID: "a", Title: &title, Content: `<b>bold</b><script>alert(1)</script>`, Category: task.CategoryTask},
	}

	d, err := NewRenderer(cst).Render(tasks, morning)
	require.NoError(t, err)

	assert.Contains(t, d.HTML, "<b>bold</b>")
	assert.NotContains(t, d.HTML, "<script")
	assert.NotContains(t, d.HTML, "alert(1)")
	assert.Contains(t, d.HTML, "&lt;i&gt;hi&lt;/i&gt;")
	assert.Contains(t, d.HTML, "未知")
}
