package reminder

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/todosync/internal/domain/task"
)

type mockMailer struct {
	mock.Mock
}

func (m *mockMailer) Send(ctx context.Context, msg Message) error {
	return m.Called(ctx, msg).Error(0)
}

var cst = time.FixedZone("CST", 8*3600)

// 2024-03-01 10:00 in CST
var morning = time.Date(2024, 3, 1, 10, 0, 0, 0, cst)

func fixed(t time.Time) func() time.Time { return func() time.Time { return t } }

func storeWith(t *testing.T, fields ...task.Fields) *task.MemoryStore {
	t.Helper()
	s := task.NewMemoryStore()
	for _, f := range fields {
		_, err := s.Create(context.Background(), f)
		require.NoError(t, err)
	}
	return s
}

func newService(t *testing.T, mailer Mailer, store *task.MemoryStore) *Service {
	t.Helper()
	cfg := Config{Enabled: true, Hour: 0, Location: cst}
	return NewService(cfg, store, mailer, nil, nil).WithClock(fixed(morning))
}

func TestSendNowMailsIncompleteTasks(t *testing.T) {
	store := storeWith(t,
		task.Fields{Content: "write report"},
		task.Fields{Content: "learn go", Category: task.CategoryTry},
		task.Fields{Content: "done", Completed: true},
	)
	mailer := new(mockMailer)
	mailer.On("Send", mock.Anything, mock.MatchedBy(func(msg Message) bool {
		return msg.Subject == "待办事项提醒 - 2024-03-01" &&
			strings.Contains(msg.HTML, "write report") &&
			!strings.Contains(msg.HTML, "done")
	})).Return(nil).Once()

	svc := newService(t, mailer, store)
	rec, err := svc.SendNow(context.Background())
	require.NoError(t, err)

	assert.True(t, rec.OK)
	assert.Equal(t, 2, rec.TaskCount)
	assert.Len(t, svc.History(), 1)
	mailer.AssertExpectations(t)
}

func TestSendNowRecordsFailure(t *testing.T) {
	mailer := new(mockMailer)
	mailer.On("Send", mock.Anything, mock.Anything).Return(errors.New("relay down"))

	svc := newService(t, mailer, storeWith(t, task.Fields{Content: "x"}))
	rec, err := svc.SendNow(context.Background())
	require.Error(t, err)

	assert.False(t, rec.OK)
	assert.Contains(t, rec.Error, "relay down")
	assert.False(t, svc.SentToday(morning))
}

func TestSendNowWithoutMailer(t *testing.T) {
	svc := newService(t, nil, storeWith(t))
	_, err := svc.SendNow(context.Background())
	assert.ErrorIs(t, err, ErrNotConfigured)
	assert.Empty(t, svc.History())
}

func TestSentTodayUsesLocation(t *testing.T) {
	svc := newService(t, new(mockMailer), storeWith(t))

	// 2024-03-01 00:30 CST is still Feb 29 in UTC
	svc.record(Record{At: time.Date(2024, 2, 29, 16, 30, 0, 0, time.UTC), OK: true})
	assert.True(t, svc.SentToday(morning))
	assert.False(t, svc.SentToday(morning.AddDate(0, 0, 1)))
}

func TestCheckStartup(t *testing.T) {
	tests := []struct {
		name    string
		history []Record
		send    bool
		want    Decision
	}{
		{
			name: "nothing sent",
			send: true,
			want: DecisionSent,
		},
		{
			name:    "success two minutes ago",
			history: []Record{{At: morning.Add(-2 * time.Minute), OK: true}},
			want:    DecisionRecentSuccess,
		},
		{
			name:    "failure ten minutes ago",
			history: []Record{{At: morning.Add(-10 * time.Minute), Error: "timeout"}},
			want:    DecisionRecentFailure,
		},
		{
			name:    "success earlier today",
			history: []Record{{At: morning.Add(-3 * time.Hour), OK: true}},
			want:    DecisionAlreadySent,
		},
		{
			name: "old failure and yesterday's success",
			history: []Record{
				{At: morning.Add(-24 * time.Hour), OK: true},
				{At: morning.Add(-time.Hour), Error: "timeout"},
			},
			send: true,
			want: DecisionSent,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mailer := new(mockMailer)
			if tt.send {
				mailer.On("Send", mock.Anything, mock.Anything).Return(nil).Once()
			}
			svc := newService(t, mailer, storeWith(t))
			for _, r := range tt.history {
				svc.record(r)
			}

			assert.Equal(t, tt.want, svc.CheckStartup(context.Background()))
			mailer.AssertExpectations(t)
			if !tt.send {
				mailer.AssertNotCalled(t, "Send", mock.Anything, mock.Anything)
			}
		})
	}
}

func TestCheckStartupSendFailure(t *testing.T) {
	mailer := new(mockMailer)
	mailer.On("Send", mock.Anything, mock.Anything).Return(errors.New("refused"))

	svc := newService(t, mailer, storeWith(t))
	assert.Equal(t, DecisionFailed, svc.CheckStartup(context.Background()))
	assert.Equal(t, DecisionRecentFailure, svc.CheckStartup(context.Background()))
}

func TestCheckStartupDisabled(t *testing.T) {
	mailer := new(mockMailer)
	svc := NewService(Config{Location: cst}, storeWith(t), mailer, nil, nil)
	assert.Equal(t, DecisionDisabled, svc.CheckStartup(context.Background()))
	mailer.AssertNotCalled(t, "Send", mock.Anything, mock.Anything)
}

func TestNextRun(t *testing.T) {
	tests := []struct {
		name string
		now  time.Time
		hour int
		want time.Time
	}{
		{"later today", morning, 18, time.Date(2024, 3, 1, 18, 0, 0, 0, cst)},
		{"midnight is tomorrow", morning, 0, time.Date(2024, 3, 2, 0, 0, 0, 0, cst)},
		{"exactly on the hour", time.Date(2024, 3, 1, 9, 0, 0, 0, cst), 9, time.Date(2024, 3, 2, 9, 0, 0, 0, cst)},
		{"month rollover", time.Date(2024, 2, 29, 23, 0, 0, 0, cst), 7, time.Date(2024, 3, 1, 7, 0, 0, 0, cst)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NextRun(tt.now, tt.hour, cst)
			assert.True(t, tt.want.Equal(got), "got %s", got)
		})
	}
}

func TestStartRunsStartupCheck(t *testing.T) {
	sent := make(chan struct{})
	mailer := new(mockMailer)
	mailer.On("Send", mock.Anything, mock.Anything).Return(nil).Once().Run(func(mock.Arguments) {
		close(sent)
	})

	svc := newService(t, mailer, storeWith(t))
	svc.Start(context.Background())

	select {
	case <-sent:
	case <-time.After(2 * time.Second):
		t.Fatal("startup send did not happen")
	}
	svc.Stop()

	assert.True(t, svc.SentToday(morning))
}

func TestStartDisabledIsNoop(t *testing.T) {
	svc := NewService(Config{}, storeWith(t), nil, nil, nil)
	svc.Start(context.Background())
	svc.Stop()
	assert.Empty(t, svc.History())
}
