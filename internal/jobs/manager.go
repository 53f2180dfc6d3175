// Package jobs keeps the in-memory registry of preview jobs submitted
// to the HTTP service and runs them in the background.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"rapidsprite/internal/pipeline"
	"rapidsprite/internal/storage"
	"rapidsprite/pkg/models"
)

var (
	// ErrJobActive is returned while another job writes to the same
	// artifact stem, either the same input or one sharing its base name
	ErrJobActive = errors.New("a job for this output name is already running")
	// ErrNotStarted is returned by Submit before Start
	ErrNotStarted = errors.New("job manager not started")
)

// Runner generates a preview for one input
type Runner interface {
	Run(ctx context.Context, input string) (*pipeline.Result, error)
}

// Manager handles job lifecycle and maintains the in-memory registry.
// It also implements pipeline.Observer to track progress per input.
type Manager struct {
	jobs   map[string]*models.Job // id -> Job
	active map[string]*models.Job // stem -> unfinished Job
	mu     sync.RWMutex

	runner Runner
	ctx    context.Context
	sem    chan struct{}
	wg     sync.WaitGroup
	log    *logrus.Entry
}

// New creates a manager running at most concurrency jobs at a time
func New(concurrency int, log *logrus.Entry) *Manager {
	if concurrency <= 0 {
		concurrency = 1
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Manager{
		jobs:   make(map[string]*models.Job),
		active: make(map[string]*models.Job),
		sem:    make(chan struct{}, concurrency),
		log:    log,
	}
}

// Start sets the runner. Jobs are cancelled when ctx ends.
func (m *Manager) Start(ctx context.Context, runner Runner) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ctx = ctx
	m.runner = runner
}

// Submit queues a job for input
func (m *Manager) Submit(input string) (*models.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.runner == nil {
		return nil, ErrNotStarted
	}
	stem := storage.Stem(input)
	if job, exists := m.active[stem]; exists {
		return nil, fmt.Errorf("%w: %s (%s)", ErrJobActive, job.ID, job.Input)
	}

	job := &models.Job{
		ID:          uuid.NewString(),
		Input:       input,
		Stem:        stem,
		State:       models.JobStateQueued,
		SubmittedAt: time.Now(),
	}
	m.jobs[job.ID] = job
	m.active[stem] = job

	m.wg.Add(1)
	go m.process(job)

	return job, nil
}

func (m *Manager) process(job *models.Job) {
	defer m.wg.Done()
	defer m.release(job)

	log := m.log.WithFields(logrus.Fields{"job": job.ID, "input": job.Input})

	select {
	case m.sem <- struct{}{}:
		defer func() { <-m.sem }()
	case <-m.ctx.Done():
		job.Complete(nil, "", "", m.ctx.Err())
		return
	}

	log.Info("Job started")
	res, err := m.runner.Run(m.ctx, job.Input)
	if res != nil {
		job.Complete(res.Sheets, res.CuePath, res.MetadataPath, err)
	} else {
		job.Complete(nil, "", "", err)
	}

	if err != nil {
		log.WithError(err).Warn("Job failed")
		return
	}
	log.Info("Job finished")
}

func (m *Manager) release(job *models.Job) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active[job.Stem] == job {
		delete(m.active, job.Stem)
	}
}

// Get retrieves a job by id
func (m *Manager) Get(id string) (*models.Job, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	job, exists := m.jobs[id]
	return job, exists
}

// List returns all jobs, oldest first
func (m *Manager) List() []*models.Job {
	m.mu.RLock()
	defer m.mu.RUnlock()

	jobs := make([]*models.Job, 0, len(m.jobs))
	for _, job := range m.jobs {
		jobs = append(jobs, job)
	}
	sort.Slice(jobs, func(i, k int) bool {
		return jobs[i].SubmittedAt.Before(jobs[k].SubmittedAt)
	})
	return jobs
}

// ActiveCount returns the number of unfinished jobs
func (m *Manager) ActiveCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.active)
}

// Wait blocks until every submitted job has finished
func (m *Manager) Wait() {
	m.wg.Wait()
}

// activeJob finds the running job for a pipeline callback. At most one
// active job exists per stem, so the stem identifies it.
func (m *Manager) activeJob(input string) *models.Job {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if job := m.active[storage.Stem(input)]; job != nil && job.Input == input {
		return job
	}
	return nil
}

// StateChanged implements pipeline.Observer
func (m *Manager) StateChanged(input string, state pipeline.State) {
	job := m.activeJob(input)
	if job == nil {
		return
	}
	// terminal states are set by Complete together with the outputs
	if state == pipeline.StateDone || state == pipeline.StateFailed {
		return
	}
	job.SetState(models.JobState(state.String()))
}

// Planned implements pipeline.Observer
func (m *Manager) Planned(input string, samples int) {
	if job := m.activeJob(input); job != nil {
		job.SetPlanned(samples)
	}
}

// Sampled implements pipeline.Observer
func (m *Manager) Sampled(input string, index int, ok bool) {
	if job := m.activeJob(input); job != nil {
		job.RecordSample(ok)
	}
}
