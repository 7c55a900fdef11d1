package backup

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/bytedance/sonic"
	"github.com/klauspost/compress/gzip"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/todosync/internal/domain/task"
	"github.com/GriffinCanCode/todosync/internal/infrastructure/monitoring"
)

const (
	filePrefix = "backup_"
	timeLayout = "20060102_150405"
	extJSON    = ".json"
	extGzip    = ".json.gz"
	// filePattern matches plain and compressed backups
	filePattern = "backup_*.{json,json.gz}"
)

// ErrNoBackups is returned by Latest when the directory holds no backups
var ErrNoBackups = errors.New("no backups found")

// Config controls where backups go and how many are kept
type Config struct {
	Dir  string
	Keep int
	Gzip bool
}

// Source supplies the tasks to back up
type Source interface {
	List(ctx context.Context, filter task.Filter) ([]*task.Task, error)
}

// Document is the on-disk backup format
type Document struct {
	BackupTime time.Time    `json:"backup_time"`
	TotalTasks int          `json:"total_tasks"`
	Tasks      []*task.Task `json:"tasks"`
}

// Info describes one backup file
type Info struct {
	Name       string    `json:"name"`
	Path       string    `json:"path"`
	BackupTime time.Time `json:"backup_time"`
	TaskCount  int       `json:"task_count"`
	Size       int64     `json:"size"`
	Compressed bool      `json:"compressed"`
}

// Service writes task snapshots to disk and prunes old ones
type Service struct {
	cfg     Config
	source  Source
	metrics *monitoring.Metrics
	log     *zap.Logger
	now     func() time.Time

	mu sync.Mutex // Serializes Backup so names and pruning never race
}

// NewService creates a backup service. metrics may be nil.
func NewService(cfg Config, source Source, metrics *monitoring.Metrics, log *zap.Logger) *Service {
	if cfg.Dir == "" {
		cfg.Dir = "back"
	}
	if cfg.Keep <= 0 {
		cfg.Keep = 10
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		cfg:     cfg,
		source:  source,
		metrics: metrics,
		log:     log.Named("backup"),
		now:     time.Now,
	}
}

// WithClock replaces the clock used for file names and backup_time
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Backup snapshots every task to a new file and returns its path
func (s *Service) Backup(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	path, n, err := s.backup(ctx)
	if err != nil {
		s.metrics.RecordBackup("error")
		s.log.Error("backup failed", zap.Error(err))
		return "", err
	}
	s.metrics.RecordBackup("success")
	s.log.Info("backup written", zap.String("path", path), zap.Int("tasks", n))

	if err := s.prune(); err != nil {
		s.log.Warn("prune old backups", zap.Error(err))
	}
	return path, nil
}

func (s *Service) backup(ctx context.Context) (string, int, error) {
	tasks, err := s.source.List(ctx, task.Filter{})
	if err != nil {
		return "", 0, fmt.Errorf("list tasks: %w", err)
	}

	now := s.now()
	doc := Document{BackupTime: now, TotalTasks: len(tasks), Tasks: tasks}
	data, err := sonic.ConfigStd.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", 0, fmt.Errorf("encode backup: %w", err)
	}

	if err := os.MkdirAll(s.cfg.Dir, 0o755); err != nil {
		return "", 0, fmt.Errorf("create backup dir: %w", err)
	}

	path := s.nextPath(now)
	if err := writeAtomic(path, data, s.cfg.Gzip); err != nil {
		return "", 0, err
	}
	return path, len(tasks), nil
}

// nextPath picks a file name for now, adding a counter when a backup from
// the same second already exists
func (s *Service) nextPath(now time.Time) string {
	ext := extJSON
	if s.cfg.Gzip {
		ext = extGzip
	}
	base := filePrefix + now.Format(timeLayout)
	path := filepath.Join(s.cfg.Dir, base+ext)
	for i := 2; fileExists(path); i++ {
		path = filepath.Join(s.cfg.Dir, fmt.Sprintf("%s_%d%s", base, i, ext))
	}
	return path
}

func writeAtomic(path string, data []byte, compress bool) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".backup-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	var w io.Writer = tmp
	var zw *gzip.Writer
	if compress {
		zw = gzip.NewWriter(tmp)
		w = zw
	}
	if _, err := w.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write backup: %w", err)
	}
	if zw != nil {
		if err := zw.Close(); err != nil {
			tmp.Close()
			return fmt.Errorf("compress backup: %w", err)
		}
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close backup: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename backup: %w", err)
	}
	return nil
}

// List returns every backup in the directory, newest first
func (s *Service) List() ([]Info, error) {
	names, err := doublestar.Glob(os.DirFS(s.cfg.Dir), filePattern)
	if err != nil {
		return nil, fmt.Errorf("glob backups: %w", err)
	}

	infos := make([]Info, 0, len(names))
	for _, name := range names {
		path := filepath.Join(s.cfg.Dir, name)
		st, err := os.Stat(path)
		if err != nil || st.IsDir() {
			continue
		}
		info := Info{
			Name:       name,
			Path:       path,
			BackupTime: nameTime(name, st.ModTime()),
			Size:       st.Size(),
			Compressed: strings.HasSuffix(name, extGzip),
		}
		if doc, err := Load(path); err == nil {
			info.TaskCount = doc.TotalTasks
		}
		infos = append(infos, info)
	}

	sortNewestFirst(infos)
	return infos, nil
}

// Latest returns the newest backup
func (s *Service) Latest() (*Info, error) {
	infos, err := s.List()
	if err != nil {
		return nil, err
	}
	if len(infos) == 0 {
		return nil, ErrNoBackups
	}
	return &infos[0], nil
}

// Restore loads the newest backup into dst and returns the number of tasks
// imported
func (s *Service) Restore(ctx context.Context, dst task.Importer) (int, error) {
	latest, err := s.Latest()
	if err != nil {
		return 0, err
	}
	doc, err := Load(latest.Path)
	if err != nil {
		return 0, err
	}
	n, err := dst.Import(ctx, doc.Tasks)
	if err != nil {
		return 0, fmt.Errorf("import %s: %w", latest.Name, err)
	}
	s.log.Info("restored backup", zap.String("name", latest.Name), zap.Int("tasks", n))
	return n, nil
}

// prune removes all but the newest Keep backups
func (s *Service) prune() error {
	infos, err := s.List()
	if err != nil {
		return err
	}
	if len(infos) <= s.cfg.Keep {
		return nil
	}

	var errs []error
	for _, info := range infos[s.cfg.Keep:] {
		if err := os.Remove(info.Path); err != nil {
			errs = append(errs, err)
			continue
		}
		s.log.Debug("removed old backup", zap.String("name", info.Name))
	}
	return errors.Join(errs...)
}

// Load reads a backup file, transparently decompressing .gz files
func Load(path string) (*Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var r io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		zr, err := gzip.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("open gzip %s: %w", path, err)
		}
		defer zr.Close()
		r = zr
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	var doc Document
	if err := sonic.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return &doc, nil
}

// nameTime recovers the timestamp encoded in a backup file name
func nameTime(name string, fallback time.Time) time.Time {
	stamp := strings.TrimPrefix(name, filePrefix)
	if len(stamp) < len(timeLayout) {
		return fallback
	}
	t, err := time.ParseInLocation(timeLayout, stamp[:len(timeLayout)], time.Local)
	if err != nil {
		return fallback
	}
	return t
}

func sortNewestFirst(infos []Info) {
	sort.SliceStable(infos, func(i, j int) bool {
		if !infos[i].BackupTime.Equal(infos[j].BackupTime) {
			return infos[i].BackupTime.After(infos[j].BackupTime)
		}
		return counter(infos[i].Name) > counter(infos[j].Name)
	})
}

// counter extracts the same-second suffix from a name; 1 when absent
func counter(name string) int {
	base := strings.TrimSuffix(strings.TrimSuffix(name, ".gz"), extJSON)
	stamp := strings.TrimPrefix(base, filePrefix)
	if len(stamp) <= len(timeLayout)+1 {
		return 1
	}
	var n int
	if _, err := fmt.Sscanf(stamp[len(timeLayout)+1:], "%d", &n); err != nil {
		return 1
	}
	return n
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
