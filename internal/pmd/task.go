package pmd

import (
	"fmt"
	"sync"
	"time"
)

// State is the lifecycle position of a Task.
type State int

const (
	NotStarted State = iota
	Running
	Completed
	TimedOut
	Failed
)

func (s State) String() string {
	switch s {
	case NotStarted:
		return "not-started"
	case Running:
		return "running"
	case Completed:
		return "completed"
	case TimedOut:
		return "timed-out"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == Completed || s == TimedOut || s == Failed
}

var transitions = map[State][]State{
	NotStarted: {Running, Completed, Failed},
	Running:    {Completed, TimedOut, Failed},
}

// Task is one analysis of the working tree at Commit, producing the report
// for Release. Report 0 describes the state before release 1.
type Task struct {
	Release int
	Commit  string
	Report  string

	mu       sync.Mutex
	state    State
	err      error
	reused   bool
	started  time.Time
	finished time.Time
	output   []byte
}

// NewTask creates a task in the NotStarted state.
func NewTask(release int, commit, report string) *Task {
	return &Task{Release: release, Commit: commit, Report: report}
}

// State returns the current state.
func (t *Task) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Err returns the error that moved the task to TimedOut or Failed.
func (t *Task) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

// Reused reports whether the task completed from an existing report.
func (t *Task) Reused() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.reused
}

// Output returns the combined stdout and stderr of the analysis process.
func (t *Task) Output() []byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.output
}

// Duration returns how long the process ran, or zero if it never did.
func (t *Task) Duration() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.started.IsZero() || t.finished.IsZero() {
		return 0
	}
	return t.finished.Sub(t.started)
}

func (t *Task) transition(to State, err error) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	allowed := false
	for _, s := range transitions[t.state] {
		if s == to {
			allowed = true
			break
		}
	}
	if !allowed {
		return fmt.Errorf("pmd task %d: illegal transition %s -> %s", t.Release, t.state, to)
	}

	now := time.Now()
	switch {
	case to == Running:
		t.started = now
	case to.Terminal() && t.state == Running:
		t.finished = now
	}
	t.state = to
	t.err = err
	return nil
}

func (t *Task) markReused() error {
	if err := t.transition(Completed, nil); err != nil {
		return err
	}
	t.mu.Lock()
	t.reused = true
	t.mu.Unlock()
	return nil
}

func (t *Task) setOutput(out []byte) {
	t.mu.Lock()
	t.output = out
	t.mu.Unlock()
}
