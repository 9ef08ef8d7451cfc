package models

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Phase names the step of a migration run currently executing.
type Phase string

const (
	PhaseResolve Phase = "resolve"
	PhasePair    Phase = "pair"
	PhaseCapture Phase = "capture"
	PhaseRestore Phase = "restore"
	PhaseDone    Phase = "done"
)

// Run status values.
const (
	RunRunning   = "running"
	RunCompleted = "completed"
	RunFailed    = "failed"
)

// Run represents one orchestration of a source → target profile migration.
type Run struct {
	ID         string     `json:"id"`
	SourceHost string     `json:"source_host"`
	TargetHost string     `json:"target_host"`
	Phase      Phase      `json:"phase"`
	Status     string     `json:"status"` // "running", "completed", "failed"
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Error      string     `json:"error,omitempty"`
	Output     []string   `json:"output"`
	mu         sync.Mutex
}

// AppendLog adds a log line to the run output.
func (r *Run) AppendLog(line string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Output = append(r.Output, line)
}

// LogsSince returns log lines starting from the given index.
func (r *Run) LogsSince(offset int) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if offset >= len(r.Output) {
		return nil
	}
	lines := make([]string, len(r.Output)-offset)
	copy(lines, r.Output[offset:])
	return lines
}

// SetPhase records the step the run has entered.
func (r *Run) SetPhase(p Phase) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Phase = p
}

// Complete marks the run as completed.
func (r *Run) Complete() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Status = RunCompleted
	r.Phase = PhaseDone
	now := time.Now()
	r.FinishedAt = &now
}

// Fail marks the run as failed with an error message.
func (r *Run) Fail(err string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Status = RunFailed
	r.Error = err
	now := time.Now()
	r.FinishedAt = &now
}

// Done reports whether the run has reached a terminal status.
func (r *Run) Done() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.Status == RunCompleted || r.Status == RunFailed
}

// RunSnapshot is a copy of a run's state that is safe to serialize.
type RunSnapshot struct {
	ID         string     `json:"id"`
	SourceHost string     `json:"source_host"`
	TargetHost string     `json:"target_host"`
	Phase      Phase      `json:"phase"`
	Status     string     `json:"status"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Error      string     `json:"error,omitempty"`
	Output     []string   `json:"output"`
}

// Snapshot copies the run under its lock.
func (r *Run) Snapshot() RunSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.Output))
	copy(out, r.Output)
	return RunSnapshot{
		ID:         r.ID,
		SourceHost: r.SourceHost,
		TargetHost: r.TargetHost,
		Phase:      r.Phase,
		Status:     r.Status,
		StartedAt:  r.StartedAt,
		FinishedAt: r.FinishedAt,
		Error:      r.Error,
		Output:     out,
	}
}

// RunStore is an in-memory thread-safe store for runs.
type RunStore struct {
	mu   sync.RWMutex
	runs map[string]*Run
}

// NewRunStore creates an empty run store.
func NewRunStore() *RunStore {
	return &RunStore{runs: make(map[string]*Run)}
}

// Create adds a new run, assigning it a UUID.
func (s *RunStore) Create(source, target string) *Run {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := &Run{
		ID:         uuid.New().String(),
		SourceHost: source,
		TargetHost: target,
		Phase:      PhaseResolve,
		Status:     RunRunning,
		StartedAt:  time.Now(),
		Output:     []string{},
	}
	s.runs[r.ID] = r
	return r
}

// Get returns a run by ID.
func (s *RunStore) Get(id string) *Run {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.runs[id]
}

// List returns all runs, most recent first.
func (s *RunStore) List() []*Run {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]*Run, 0, len(s.runs))
	for _, r := range s.runs {
		result = append(result, r)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].StartedAt.After(result[j].StartedAt)
	})
	return result
}
