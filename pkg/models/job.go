package models

import (
	"sync"
	"time"
)

// JobState represents the current state of a preview job
type JobState string

const (
	JobStateQueued    JobState = "queued"
	JobStateProbing   JobState = "probing"
	JobStatePlanning  JobState = "planning"
	JobStateSampling  JobState = "sampling"
	JobStateComposing JobState = "composing"
	JobStateEmitting  JobState = "emitting"
	JobStateDone      JobState = "done"
	JobStateFailed    JobState = "failed"
)

// Finished reports whether the job reached a terminal state
func (s JobState) Finished() bool {
	return s == JobStateDone || s == JobStateFailed
}

// Job is one preview generation requested over the API
type Job struct {
	ID          string     // Unique job id
	Input       string     // Source path
	Stem        string     // Artifact name prefix
	State       JobState   // Current state
	SubmittedAt time.Time  // When the job was queued
	StartedAt   *time.Time // When processing began
	FinishedAt  *time.Time // When the job reached done or failed

	// Progress
	Samples int // Planned samples, known after planning
	Sampled int // Samples attempted so far
	Failed  int // Samples left blank

	// Outputs
	Sheets       []SheetRef
	CuePath      string
	MetadataPath string
	Error        string

	mu sync.RWMutex // Protects concurrent access
}

// JobStatus is a point-in-time copy of a Job for serialization
type JobStatus struct {
	ID           string     `json:"id"`
	Input        string     `json:"input"`
	Stem         string     `json:"stem"`
	State        JobState   `json:"state"`
	SubmittedAt  time.Time  `json:"submitted_at"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
	FinishedAt   *time.Time `json:"finished_at,omitempty"`
	Samples      int        `json:"samples"`
	Sampled      int        `json:"sampled"`
	Failed       int        `json:"failed_samples"`
	Sheets       []SheetRef `json:"sheets,omitempty"`
	CuePath      string     `json:"cue_path,omitempty"`
	MetadataPath string     `json:"metadata_path,omitempty"`
	Error        string     `json:"error,omitempty"`
}

// SetState safely updates the job state
func (j *Job) SetState(state JobState) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.State = state

	now := time.Now()
	if state == JobStateProbing && j.StartedAt == nil {
		j.StartedAt = &now
	} else if state.Finished() && j.FinishedAt == nil {
		j.FinishedAt = &now
	}
}

// GetState safely returns the current job state
func (j *Job) GetState() JobState {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.State
}

// SetPlanned records the number of planned samples
func (j *Job) SetPlanned(samples int) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Samples = samples
}

// RecordSample counts one attempted sample
func (j *Job) RecordSample(ok bool) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Sampled++
	if !ok {
		j.Failed++
	}
}

// Complete stores the outputs of a finished run. A non-nil err marks the
// job failed, even when some outputs were written.
func (j *Job) Complete(sheets []SheetRef, cuePath, metadataPath string, err error) {
	j.mu.Lock()
	j.Sheets = sheets
	j.CuePath = cuePath
	j.MetadataPath = metadataPath
	state := JobStateDone
	if err != nil {
		j.Error = err.Error()
		state = JobStateFailed
	}
	j.mu.Unlock()

	j.SetState(state)
}

// Status returns a copy of the job for serialization
func (j *Job) Status() JobStatus {
	j.mu.RLock()
	defer j.mu.RUnlock()

	return JobStatus{
		ID:           j.ID,
		Input:        j.Input,
		Stem:         j.Stem,
		State:        j.State,
		SubmittedAt:  j.SubmittedAt,
		StartedAt:    j.StartedAt,
		FinishedAt:   j.FinishedAt,
		Samples:      j.Samples,
		Sampled:      j.Sampled,
		Failed:       j.Failed,
		Sheets:       append([]SheetRef(nil), j.Sheets...),
		CuePath:      j.CuePath,
		MetadataPath: j.MetadataPath,
		Error:        j.Error,
	}
}
