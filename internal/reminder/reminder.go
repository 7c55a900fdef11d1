package reminder

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/todosync/internal/domain/task"
	"github.com/GriffinCanCode/todosync/internal/infrastructure/monitoring"
)

const (
	// recentSuccessWindow suppresses a startup send after a quick restart
	recentSuccessWindow = 5 * time.Minute
	// recentFailureWindow suppresses a startup send while the relay is failing
	recentFailureWindow = 30 * time.Minute
	// maxLog bounds the in-memory send history
	maxLog = 100
)

// ErrNotConfigured is returned by SendNow when no mailer is set
var ErrNotConfigured = errors.New("reminder mailer not configured")

// Decision is the outcome of the startup check
type Decision string

const (
	DecisionSent          Decision = "sent"
	DecisionFailed        Decision = "failed"
	DecisionDisabled      Decision = "disabled"
	DecisionRecentSuccess Decision = "skipped_recent_success"
	DecisionRecentFailure Decision = "skipped_recent_failure"
	DecisionAlreadySent   Decision = "skipped_sent_today"
)

// Config controls the daily schedule
type Config struct {
	Enabled  bool
	Hour     int
	Location *time.Location
}

// Source supplies the tasks to summarize
type Source interface {
	List(ctx context.Context, filter task.Filter) ([]*task.Task, error)
}

// Record is one entry of the send log
type Record struct {
	At        time.Time `json:"at"`
	TaskCount int       `json:"task_count"`
	OK        bool      `json:"ok"`
	Error     string    `json:"error,omitempty"`
}

// Service mails a digest of incomplete tasks once a day
type Service struct {
	cfg      Config
	source   Source
	mailer   Mailer
	renderer *Renderer
	metrics  *monitoring.Metrics
	log      *zap.Logger
	now      func() time.Time

	sendMu sync.Mutex // One send at a time

	logMu   sync.RWMutex
	records []Record

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewService creates a reminder service. mailer may be nil, in which case
// SendNow fails with ErrNotConfigured.
func NewService(cfg Config, source Source, mailer Mailer, metrics *monitoring.Metrics, log *zap.Logger) *Service {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		cfg:      cfg,
		source:   source,
		mailer:   mailer,
		renderer: NewRenderer(cfg.Location),
		metrics:  metrics,
		log:      log.Named("reminder"),
		now:      time.Now,
	}
}

// WithClock replaces the wall clock. Tests only.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// SendNow renders and mails the digest immediately
func (s *Service) SendNow(ctx context.Context) (Record, error) {
	if s.mailer == nil {
		return Record{}, ErrNotConfigured
	}

	s.sendMu.Lock()
	defer s.sendMu.Unlock()

	tasks, err := s.source.List(ctx, task.Filter{Completed: new(bool)})
	if err != nil {
		return s.fail(0, fmt.Errorf("list tasks: %w", err))
	}
	digest, err := s.renderer.Render(tasks, s.now())
	if err != nil {
		return s.fail(0, err)
	}
	if err := s.mailer.Send(ctx, Message{Subject: digest.Subject, HTML: digest.HTML}); err != nil {
		return s.fail(digest.TaskCount, fmt.Errorf("send reminder: %w", err))
	}

	rec := s.record(Record{At: s.now(), TaskCount: digest.TaskCount, OK: true})
	s.metrics.RecordReminder("success")
	s.log.Info("reminder sent", zap.Int("tasks", digest.TaskCount))
	return rec, nil
}

func (s *Service) fail(count int, err error) (Record, error) {
	rec := s.record(Record{At: s.now(), TaskCount: count, Error: err.Error()})
	s.metrics.RecordReminder("error")
	s.log.Warn("reminder failed", zap.Error(err))
	return rec, err
}

func (s *Service) record(r Record) Record {
	s.logMu.Lock()
	defer s.logMu.Unlock()
	s.records = append(s.records, r)
	if len(s.records) > maxLog {
		s.records = s.records[len(s.records)-maxLog:]
	}
	return r
}

// History returns the send log, oldest first
func (s *Service) History() []Record {
	s.logMu.RLock()
	defer s.logMu.RUnlock()
	return append([]Record(nil), s.records...)
}

// SentToday reports whether a successful send happened on now's calendar
// day in the configured time zone
func (s *Service) SentToday(now time.Time) bool {
	local := now.In(s.cfg.Location)
	y, m, d := local.Date()
	start := time.Date(y, m, d, 0, 0, 0, 0, s.cfg.Location)
	return s.any(func(r Record) bool { return r.OK && !r.At.Before(start) })
}

func (s *Service) any(match func(Record) bool) bool {
	s.logMu.RLock()
	defer s.logMu.RUnlock()
	for _, r := range s.records {
		if match(r) {
			return true
		}
	}
	return false
}

// CheckStartup sends the digest unless one went out recently, a recent
// attempt failed, or today's digest was already sent
func (s *Service) CheckStartup(ctx context.Context) Decision {
	if !s.cfg.Enabled {
		return DecisionDisabled
	}

	now := s.now()
	decision := DecisionSent
	switch {
	case s.any(func(r Record) bool { return r.OK && now.Sub(r.At) < recentSuccessWindow }):
		decision = DecisionRecentSuccess
	case s.any(func(r Record) bool { return !r.OK && now.Sub(r.At) < recentFailureWindow }):
		decision = DecisionRecentFailure
	case s.SentToday(now):
		decision = DecisionAlreadySent
	default:
		if _, err := s.SendNow(ctx); err != nil {
			decision = DecisionFailed
		}
	}

	if decision != DecisionSent && decision != DecisionFailed {
		s.metrics.RecordReminder("skipped")
	}
	s.log.Info("startup reminder check", zap.String("decision", string(decision)))
	return decision
}

// NextRun returns the next time at hour:00 in loc strictly after now
func NextRun(now time.Time, hour int, loc *time.Location) time.Time {
	local := now.In(loc)
	y, m, d := local.Date()
	next := time.Date(y, m, d, hour, 0, 0, 0, loc)
	if !next.After(now) {
		next = time.Date(y, m, d+1, hour, 0, 0, 0, loc)
	}
	return next
}

// Start runs the startup check and the daily scheduler in the background.
// It does nothing when the service is disabled.
func (s *Service) Start(ctx context.Context) {
	if !s.cfg.Enabled {
		s.log.Info("reminder disabled")
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.CheckStartup(ctx)
		s.loop(ctx)
	}()
}

func (s *Service) loop(ctx context.Context) {
	for {
		now := s.now()
		next := NextRun(now, s.cfg.Hour, s.cfg.Location)
		s.log.Debug("next reminder scheduled", zap.Time("at", next))

		timer := time.NewTimer(next.Sub(now))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		// A failed send is retried at the next scheduled time
		_, _ = s.SendNow(ctx)
	}
}

// Stop cancels the scheduler and waits for an in-flight send to finish
func (s *Service) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}
