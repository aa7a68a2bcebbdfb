package registry

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/renameio/v2"

	"github.com/agentkit-run/agentkit/internal/core"
	"github.com/agentkit-run/agentkit/internal/logging"
)

// JSONStore keeps terminal task records in memory and flushes them to a
// single JSON file on a timer (when anything changed) and once more on
// Close; Record itself does not write the file. It uses renameio for the
// same crash-safe
// write-to-temp-then-rename the teacher's atomic_unix.go performs for its
// own state files.
type JSONStore struct {
	path       string
	flushEvery time.Duration
	log        *logging.Logger

	mu      sync.Mutex
	records map[string]*core.Task
	dirty   bool

	stop chan struct{}
	done chan struct{}
}

// NewJSONStore loads any existing snapshot at path (absent file is not an
// error, it just means a fresh registry) and starts a background flusher.
func NewJSONStore(path string, flushEvery time.Duration, log *logging.Logger) (*JSONStore, error) {
	if log == nil {
		log = logging.Nop()
	}
	if flushEvery <= 0 {
		flushEvery = 5 * time.Second
	}
	s := &JSONStore{
		path:       path,
		flushEvery: flushEvery,
		log:        log,
		records:    map[string]*core.Task{},
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	go s.flushLoop()
	return s, nil
}

func (s *JSONStore) load() error {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return core.ErrInternal("reading registry snapshot: " + err.Error())
	}
	if len(data) == 0 {
		return nil
	}
	var tasks []*core.Task
	if err := json.Unmarshal(data, &tasks); err != nil {
		return core.ErrInternal("parsing registry snapshot: " + err.Error())
	}
	for _, t := range tasks {
		s.records[t.ID] = t
	}
	return nil
}

// Record upserts a task's terminal snapshot. The Recorder calls this once
// it sees a task's status change into a terminal status.
func (s *JSONStore) Record(task *core.Task) error {
	if !task.Status.Terminal() {
		return core.ErrValidation(core.CodeInvalidArguments, "registry only records terminal tasks")
	}
	cp := *task
	s.mu.Lock()
	s.records[task.ID] = &cp
	s.dirty = true
	s.mu.Unlock()
	return nil
}

// Snapshot returns every recorded terminal task, newest-submitted first.
func (s *JSONStore) Snapshot() ([]*core.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*core.Task, 0, len(s.records))
	for _, t := range s.records {
		cp := *t
		out = append(out, &cp)
	}
	sortTasksBySubmittedDesc(out)
	return out, nil
}

func sortTasksBySubmittedDesc(tasks []*core.Task) {
	for i := 1; i < len(tasks); i++ {
		for j := i; j > 0 && tasks[j].SubmittedAt.After(tasks[j-1].SubmittedAt); j-- {
			tasks[j], tasks[j-1] = tasks[j-1], tasks[j]
		}
	}
}

func (s *JSONStore) flushLoop() {
	defer close(s.done)
	ticker := time.NewTicker(s.flushEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := s.flush(); err != nil {
				s.log.Error("registry snapshot flush failed", "error", err)
			}
		case <-s.stop:
			_ = s.flush()
			return
		}
	}
}

func (s *JSONStore) flush() error {
	s.mu.Lock()
	if !s.dirty {
		s.mu.Unlock()
		return nil
	}
	tasks := make([]*core.Task, 0, len(s.records))
	for _, t := range s.records {
		tasks = append(tasks, t)
	}
	s.dirty = false
	s.mu.Unlock()

	sortTasksBySubmittedDesc(tasks)
	data, err := json.MarshalIndent(tasks, "", "  ")
	if err != nil {
		return err
	}
	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return renameio.WriteFile(s.path, data, 0o644)
}

// Close stops the background flusher after performing one final flush.
func (s *JSONStore) Close() error {
	close(s.stop)
	<-s.done
	return nil
}

var _ Store = (*JSONStore)(nil)
