// Package schedule runs recurring chart snapshots. Each job captures a
// configured symbol on a cron cadence and delivers it into a
// conversation; the scheduler persists its jobs to a yaml store so
// runtime edits survive restarts.
package schedule

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	robfigcron "github.com/robfig/cron/v3"

	"github.com/tradeberg/tradeberg/logger"
)

// Job is one recurring snapshot.
type Job struct {
	ID           string    `json:"id" yaml:"id"`
	Expr         string    `json:"expr" yaml:"expr"`     // standard 5-field cron or @descriptor
	Symbol       string    `json:"symbol" yaml:"symbol"` // e.g. NASDAQ:AAPL
	Interval     string    `json:"interval,omitempty" yaml:"interval,omitempty"`
	Theme        string    `json:"theme,omitempty" yaml:"theme,omitempty"`
	Conversation string    `json:"conversation,omitempty" yaml:"conversation,omitempty"` // pinned after the first delivery
	Note         string    `json:"note,omitempty" yaml:"note,omitempty"`                 // message sent with the snapshot
	Disabled     bool      `json:"disabled,omitempty" yaml:"disabled,omitempty"`
	CreatedAt    time.Time `json:"createdAt" yaml:"createdAt"`
}

// Runner delivers one snapshot when a job fires. It returns the
// conversation the snapshot landed in so the scheduler can pin the job
// to it for subsequent runs.
type Runner func(job *Job) (conversationID string, err error)

// Scheduler owns the cron runtime and the job store.
type Scheduler struct {
	cron      *robfigcron.Cron
	runner    Runner
	jobs      map[string]Job
	cancels   map[string]func()
	storePath string
	mu        sync.Mutex
}

// NewScheduler creates a scheduler persisting to storePath. An empty
// storePath keeps jobs in memory only.
func NewScheduler(storePath string, runner Runner) *Scheduler {
	return &Scheduler{
		cron:      robfigcron.New(),
		runner:    runner,
		jobs:      make(map[string]Job),
		cancels:   make(map[string]func()),
		storePath: strings.TrimSpace(storePath),
	}
}

// Load replaces the in-memory jobs with the store contents and
// schedules the enabled ones. Invalid entries are skipped.
func (s *Scheduler) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.resetLocked()
	list, err := s.readStore()
	if err != nil {
		return err
	}

	for _, raw := range list {
		job := normalize(raw)
		if !validStored(job) {
			logger.Warn("skipping invalid snapshot job in store", "id", job.ID)
			continue
		}

		s.jobs[job.ID] = job
		cancel, err := s.scheduleLocked(job)
		if err != nil {
			logger.Warn("failed to schedule snapshot job from store", "id", job.ID, "err", err)
			continue
		}
		if cancel != nil {
			s.cancels[job.ID] = cancel
		}
	}
	return nil
}

// Seed merges config-declared jobs into the scheduler. Jobs already in
// the store win over their config counterparts so runtime edits stick.
func (s *Scheduler) Seed(jobs []Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	dirty := false
	for _, raw := range jobs {
		job := normalize(raw)
		if _, exists := s.jobs[job.ID]; exists {
			logger.Debug("snapshot job already in store, keeping stored copy", "id", job.ID)
			continue
		}
		if err := validateNew(job, s.jobs); err != nil {
			return fmt.Errorf("schedule: seed job %q: %w", raw.ID, err)
		}

		cancel, err := s.scheduleLocked(job)
		if err != nil {
			return fmt.Errorf("schedule: seed job %q: %w", job.ID, err)
		}
		s.jobs[job.ID] = job
		if cancel != nil {
			s.cancels[job.ID] = cancel
		}
		dirty = true
	}

	if dirty {
		return s.saveLocked()
	}
	return nil
}

// Add registers a new job and persists it.
func (s *Scheduler) Add(job Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job = normalize(job)
	if err := validateNew(job, s.jobs); err != nil {
		return err
	}

	cancel, err := s.scheduleLocked(job)
	if err != nil {
		return err
	}

	s.jobs[job.ID] = job
	if cancel != nil {
		s.cancels[job.ID] = cancel
	}
	if err := s.saveLocked(); err != nil {
		s.unscheduleLocked(job.ID)
		delete(s.jobs, job.ID)
		return err
	}
	return nil
}

// SetDisabled pauses or resumes a job and persists the change.
func (s *Scheduler) SetDisabled(id string, disabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	id = strings.TrimSpace(id)
	job, ok := s.jobs[id]
	if !ok {
		return fmt.Errorf("job not found: %s", id)
	}
	if job.Disabled == disabled {
		return nil
	}

	job.Disabled = disabled
	s.unscheduleLocked(id)
	if !disabled {
		cancel, err := s.scheduleLocked(job)
		if err != nil {
			return err
		}
		if cancel != nil {
			s.cancels[id] = cancel
		}
	}
	s.jobs[id] = job
	return s.saveLocked()
}

// Remove deletes a job and persists the change.
func (s *Scheduler) Remove(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("id is required")
	}
	if _, ok := s.jobs[id]; !ok {
		return fmt.Errorf("job not found: %s", id)
	}

	s.unscheduleLocked(id)
	delete(s.jobs, id)
	return s.saveLocked()
}

// List returns all jobs sorted by id.
func (s *Scheduler) List() []*Job {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		j := job
		out = append(out, &j)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Count returns the number of registered jobs.
func (s *Scheduler) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}

// Start begins firing schedules.
func (s *Scheduler) Start() { s.cron.Start() }

// Stop halts the cron runtime, waits for running jobs, and clears the
// in-memory schedule.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()

	s.mu.Lock()
	s.resetLocked()
	s.mu.Unlock()
}

func (s *Scheduler) scheduleLocked(job Job) (func(), error) {
	if job.Disabled {
		return nil, nil
	}

	id := job.ID
	entryID, err := s.cron.AddFunc(job.Expr, func() { s.fire(id) })
	if err != nil {
		return nil, err
	}
	return func() { s.cron.Remove(entryID) }, nil
}

// fire runs one job through the runner and pins the job to the
// conversation the snapshot was delivered into.
func (s *Scheduler) fire(id string) {
	s.mu.Lock()
	job, ok := s.jobs[id]
	s.mu.Unlock()
	if !ok || s.runner == nil {
		return
	}

	start := time.Now()
	convID, err := s.runner(&job)
	if err != nil {
		logger.Warn("scheduled snapshot failed", "id", id, "symbol", job.Symbol, "err", err)
		return
	}
	logger.Info("scheduled snapshot delivered",
		"id", id,
		"symbol", job.Symbol,
		"conversation", convID,
		"latencyMs", time.Since(start).Milliseconds())

	if convID == "" || convID == job.Conversation {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.jobs[id]
	if !ok {
		return
	}
	stored.Conversation = convID
	s.jobs[id] = stored
	if err := s.saveLocked(); err != nil {
		logger.Warn("failed to persist snapshot job conversation", "id", id, "err", err)
	}
}

func (s *Scheduler) unscheduleLocked(id string) {
	if cancel, ok := s.cancels[id]; ok {
		cancel()
		delete(s.cancels, id)
	}
}

func (s *Scheduler) resetLocked() {
	for _, cancel := range s.cancels {
		cancel()
	}
	s.jobs = make(map[string]Job)
	s.cancels = make(map[string]func())
}

func validateNew(job Job, existing map[string]Job) error {
	if job.ID == "" {
		return fmt.Errorf("id is required")
	}
	if job.Symbol == "" {
		return fmt.Errorf("symbol is required")
	}
	if job.Expr == "" {
		return fmt.Errorf("expr is required")
	}
	if _, err := robfigcron.ParseStandard(job.Expr); err != nil {
		return fmt.Errorf("invalid expr %q: %w", job.Expr, err)
	}
	if _, ok := existing[job.ID]; ok {
		return fmt.Errorf("job already exists: %s", job.ID)
	}
	return nil
}

func validStored(job Job) bool {
	return job.ID != "" && job.Symbol != "" && job.Expr != ""
}

func normalize(job Job) Job {
	job.ID = strings.TrimSpace(job.ID)
	job.Expr = strings.TrimSpace(job.Expr)
	job.Symbol = strings.TrimSpace(job.Symbol)
	job.Interval = strings.TrimSpace(job.Interval)
	job.Theme = strings.TrimSpace(job.Theme)
	job.Conversation = strings.TrimSpace(job.Conversation)
	job.Note = strings.TrimSpace(job.Note)
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now().UTC()
	}
	return job
}
