package reminder

import (
	"bytes"
	"fmt"
	"html/template"
	"time"

	"github.com/microcosm-cc/bluemonday"

	"github.com/GriffinCanCode/todosync/internal/domain/task"
)

const dateLayout = "2006-01-02"

// Digest is a rendered reminder ready to hand to a Mailer
type Digest struct {
	Subject   string
	HTML      string
	TaskCount int
}

type digestItem struct {
	Index   int
	Title   string
	Content template.HTML
	Created string
}

type digestGroup struct {
	Category task.Category
	Items    []digestItem
}

type digestData struct {
	Total  int
	Groups []digestGroup
}

var digestTemplate = template.Must(template.New("digest").Parse(`<div style="font-family: Arial, sans-serif; max-width: 600px; margin: 0 auto;">
{{- if eq .Total 0}}
<h2 style="color: #333; border-bottom: 2px solid #4CAF50; padding-bottom: 10px;">今日待办事项</h2>
<p style="color: #666; font-size: 16px;">目前没有待办任务，继续保持！</p>
{{- else}}
<h2 style="color: #333; border-bottom: 2px solid #4CAF50; padding-bottom: 10px;">待办任务清单</h2>
<p style="color: #666; font-size: 16px; background-color: #f9f9f9; padding: 10px; border-radius: 5px;">待办任务总数：<strong>{{.Total}}</strong></p>
{{- range .Groups}}
<div style="margin: 20px 0;">
<h3 style="color: #4CAF50; background-color: #f5f5f5; padding: 10px; border-radius: 5px;">{{.Category}} ({{len .Items}})</h3>
<ul style="list-style-type: none; padding: 0;">
{{- range .Items}}
<li style="background-color: #fff; margin: 10px 0; padding: 15px; border-radius: 8px; border-left: 4px solid #4CAF50;">
<span style="font-weight: bold; color: #333; font-size: 16px;">{{.Index}}. {{.Title}}</span>
<div style="color: #666; margin-top: 5px; font-size: 14px;">{{.Content}}</div>
<div style="color: #999; font-size: 12px; margin-top: 8px;">创建时间: {{.Created}}</div>
</li>
{{- end}}
</ul>
</div>
{{- end}}
{{- end}}
</div>
`))

// Renderer builds the HTML digest. Task content may carry simple markup,
// which is passed through a UGC sanitizer; titles are always escaped.
type Renderer struct {
	policy *bluemonday.Policy
	loc    *time.Location
}

// NewRenderer creates a renderer that formats dates in loc
func NewRenderer(loc *time.Location) *Renderer {
	if loc == nil {
		loc = time.UTC
	}
	return &Renderer{policy: bluemonday.UGCPolicy(), loc: loc}
}

// Render groups the incomplete tasks by category in display order
func (r *Renderer) Render(tasks []*task.Task, now time.Time) (Digest, error) {
	byCategory := make(map[task.Category][]*task.Task, len(task.Categories))
	total := 0
	for _, t := range tasks {
		if t.Completed {
			continue
		}
		byCategory[t.Category] = append(byCategory[t.Category], t)
		total++
	}

	data := digestData{Total: total}
	for _, c := range task.Categories {
		list := byCategory[c]
		if len(list) == 0 {
			continue
		}
		group := digestGroup{Category: c, Items: make([]digestItem, 0, len(list))}
		for i, t := range list {
			group.Items = append(group.Items, r.item(i+1, t))
		}
		data.Groups = append(data.Groups, group)
	}

	var buf bytes.Buffer
	if err := digestTemplate.Execute(&buf, data); err != nil {
		return Digest{}, fmt.Errorf("render digest: %w", err)
	}
	return Digest{
		Subject:   "待办事项提醒 - " + now.In(r.loc).Format(dateLayout),
		HTML:      buf.String(),
		TaskCount: total,
	}, nil
}

func (r *Renderer) item(index int, t *task.Task) digestItem {
	it := digestItem{Index: index, Created: "未知"}
	if t.Title != nil {
		it.Title = *t.Title
	}
	content := t.Content
	if content == "" {
		content = "无详细内容"
	}
	it.Content = template.HTML(r.policy.Sanitize(content))
	if !t.CreatedAt.IsZero() {
		it.Created = t.CreatedAt.In(r.loc).Format(dateLayout)
	}
	return it
}
