// Package prefetch keeps a registry of cache warm-up tasks keyed by name.
//
// There is one task per key. Registering a key again replaces the record
// but never cancels work that is already running; a finished run of the
// old task does not touch the new record. Records live as long as the
// Manager.
package prefetch

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrTaskNotFound is returned when executing a key that was never registered.
	ErrTaskNotFound = errors.New("prefetch task not found")

	// ErrTaskRunning is returned when executing a key whose task is in flight.
	ErrTaskRunning = errors.New("prefetch task already running")
)

// Error reports a failed prefetch run.
type Error struct {
	Key string
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("prefetch failed for %s", e.Key)
}

// Unwrap returns the error returned by the task function.
func (e *Error) Unwrap() error {
	return e.Err
}

// Func is the work performed by a task.
type Func func(ctx context.Context) error

// Priority orders tasks in ExecuteAll.
type Priority int

const (
	PriorityLow Priority = iota
	PriorityMedium
	PriorityHigh
)

// String returns the lower-case name of p.
func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityMedium:
		return "medium"
	case PriorityHigh:
		return "high"
	default:
		return fmt.Sprintf("priority(%d)", int(p))
	}
}

// Status is the lifecycle state of a task.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Task is a snapshot of a registered task.
type Task struct {
	ID           string
	Key          string
	Priority     Priority
	Enabled      bool
	Status       Status
	Err          error
	RegisteredAt time.Time
	StartedAt    time.Time
	FinishedAt   time.Time
}

// Option configures a task at registration.
type Option func(*Task)

// WithPriority sets the task priority. The default is PriorityMedium.
func WithPriority(p Priority) Option {
	return func(t *Task) { t.Priority = p }
}

// WithEnabled sets whether the task runs. Tasks are enabled by default.
func WithEnabled(enabled bool) Option {
	return func(t *Task) { t.Enabled = enabled }
}

// Stats counts tasks by status. Total always equals the sum of the others.
type Stats struct {
	Total     int `json:"total"`
	Queued    int `json:"queued"`
	Running   int `json:"running"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
}
