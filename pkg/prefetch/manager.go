package prefetch

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Sternrassler/crm-cache/pkg/logging"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// DefaultConcurrency bounds ExecuteAll when no limit is configured.
const DefaultConcurrency = 4

type record struct {
	task Task
	fn   Func
}

// Manager is a registry of prefetch tasks. It is safe for concurrent use.
type Manager struct {
	mu          sync.Mutex
	tasks       map[string]*record
	order       []string
	concurrency int
	now         func() time.Time
	logger      zerolog.Logger
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithConcurrency sets how many tasks ExecuteAll runs at once.
func WithConcurrency(n int) ManagerOption {
	return func(m *Manager) {
		if n > 0 {
			m.concurrency = n
		}
	}
}

// WithLogger sets the logger. The component field is added by the Manager.
func WithLogger(logger zerolog.Logger) ManagerOption {
	return func(m *Manager) { m.logger = logger }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) ManagerOption {
	return func(m *Manager) { m.now = now }
}

// NewManager creates an empty Manager.
func NewManager(opts ...ManagerOption) *Manager {
	m := &Manager{
		tasks:       make(map[string]*record),
		concurrency: DefaultConcurrency,
		now:         time.Now,
		logger:      log.Logger,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = logging.WithComponent(m.logger, logging.ComponentPrefetch)
	return m
}

// Register stores fn under key and returns the new task id. An existing
// task with the same key is replaced; if it is running it finishes
// unobserved.
func (m *Manager) Register(key string, fn Func, opts ...Option) string {
	t := Task{
		ID:       uuid.NewString(),
		Key:      key,
		Priority: PriorityMedium,
		Enabled:  true,
		Status:   StatusQueued,
	}
	for _, opt := range opts {
		opt(&t)
	}

	m.mu.Lock()
	t.RegisteredAt = m.now()
	if _, exists := m.tasks[key]; !exists {
		m.order = append(m.order, key)
	}
	m.tasks[key] = &record{task: t, fn: fn}
	m.mu.Unlock()

	m.logger.Debug().
		Str("key", key).
		Str("task_id", t.ID).
		Stringer("priority", t.Priority).
		Bool("enabled", t.Enabled).
		Msg("Prefetch task registered")

	return t.ID
}

// Execute runs the task registered under key and waits for it.
//
// Unknown keys return ErrTaskNotFound and keys already in flight return
// ErrTaskRunning. A disabled task is skipped and returns nil. A failing
// task returns *Error wrapping the cause.
func (m *Manager) Execute(ctx context.Context, key string) error {
	m.mu.Lock()
	rec, ok := m.tasks[key]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrTaskNotFound, key)
	}
	if !rec.task.Enabled {
		m.mu.Unlock()
		return nil
	}
	if rec.task.Status == StatusRunning {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrTaskRunning, key)
	}
	rec.task.Status = StatusRunning
	rec.task.Err = nil
	rec.task.StartedAt = m.now()
	priority := rec.task.Priority
	fn := rec.fn
	m.mu.Unlock()

	start := time.Now()
	err := run(ctx, fn)
	prefetchDuration.WithLabelValues(priority.String()).Observe(time.Since(start).Seconds())

	m.mu.Lock()
	// A replacement registered meanwhile keeps its own state.
	if m.tasks[key] == rec {
		rec.task.FinishedAt = m.now()
		if err != nil {
			rec.task.Status = StatusFailed
			rec.task.Err = err
		} else {
			rec.task.Status = StatusCompleted
		}
	}
	m.mu.Unlock()

	if err != nil {
		prefetchRunsTotal.WithLabelValues(string(StatusFailed)).Inc()
		m.logger.Warn().Err(err).Str("key", key).Msg("Prefetch task failed")
		return &Error{Key: key, Err: err}
	}

	prefetchRunsTotal.WithLabelValues(string(StatusCompleted)).Inc()
	m.logger.Debug().Str("key", key).Dur("duration", time.Since(start)).Msg("Prefetch task completed")
	return nil
}

func run(ctx context.Context, fn Func) (err error) {
	if fn == nil {
		return fmt.Errorf("nil prefetch function")
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("prefetch panic: %v", r)
		}
	}()
	return fn(ctx)
}

// Results summarizes an ExecuteAll batch.
type Results struct {
	Executed int
	Failed   map[string]error
}

// ExecuteAll runs every enabled queued task, highest priority first, with
// bounded concurrency. Task failures are collected and never abort the
// batch. It returns early only when ctx is cancelled before all tasks
// have been started.
func (m *Manager) ExecuteAll(ctx context.Context) Results {
	m.mu.Lock()
	pending := make([]Task, 0, len(m.order))
	for _, key := range m.order {
		t := m.tasks[key].task
		if t.Enabled && t.Status == StatusQueued {
			pending = append(pending, t)
		}
	}
	m.mu.Unlock()

	sort.SliceStable(pending, func(i, j int) bool {
		return pending[i].Priority > pending[j].Priority
	})

	res := Results{Failed: make(map[string]error)}
	var resMu sync.Mutex

	var g errgroup.Group
	g.SetLimit(m.concurrency)

	for _, t := range pending {
		if ctx.Err() != nil {
			break
		}
		key := t.Key
		g.Go(func() error {
			err := m.Execute(ctx, key)
			resMu.Lock()
			res.Executed++
			if err != nil {
				res.Failed[key] = err
			}
			resMu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	m.logger.Info().
		Int("executed", res.Executed).
		Int("failed", len(res.Failed)).
		Msg("Prefetch batch finished")

	return res
}

// Task returns a snapshot of the task registered under key.
func (m *Manager) Task(key string) (Task, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.tasks[key]
	if !ok {
		return Task{}, false
	}
	return rec.task, true
}

// Tasks returns snapshots of every task in first-registration order.
func (m *Manager) Tasks() []Task {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Task, 0, len(m.order))
	for _, key := range m.order {
		out = append(out, m.tasks[key].task)
	}
	return out
}

// Stats counts tasks by status.
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()

	var s Stats
	for _, rec := range m.tasks {
		s.Total++
		switch rec.task.Status {
		case StatusQueued:
			s.Queued++
		case StatusRunning:
			s.Running++
		case StatusCompleted:
			s.Completed++
		case StatusFailed:
			s.Failed++
		}
	}
	return s
}
