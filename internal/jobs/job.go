// Package jobs records build and reindex runs and executes reindex jobs in
// the background.
package jobs

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// JobStatus represents the current state of a job.
type JobStatus string

const (
	JobQueued    JobStatus = "queued"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
	JobCancelled JobStatus = "cancelled"
)

// JobType identifies the kind of work a job performs.
type JobType string

const (
	// JobTypeBuild is a compiler run started from /build. Build jobs are
	// driven by the build orchestrator and only recorded here.
	JobTypeBuild JobType = "build"
	// JobTypeReindex reloads analysis data without building.
	JobTypeReindex JobType = "reindex"
)

// Job is one recorded build or reindex run.
type Job struct {
	ID   string  `json:"id"`
	Type JobType `json:"type"`
	// Scope and Result hold JSON: a BuildScope/ReindexScope and a
	// BuildResult/ReindexResult respectively.
	Scope       string     `json:"scope,omitempty"`
	Status      JobStatus  `json:"status"`
	Progress    int        `json:"progress"`
	CreatedAt   time.Time  `json:"createdAt"`
	StartedAt   *time.Time `json:"startedAt,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
	Error       string     `json:"error,omitempty"`
	Result      string     `json:"result,omitempty"`
}

// NewJob returns a queued job of the given type; scope may be nil.
func NewJob(jobType JobType, scope any) (*Job, error) {
	encoded, err := encodeJSON(scope)
	if err != nil {
		return nil, err
	}
	return &Job{
		ID:        uuid.NewString(),
		Type:      jobType,
		Scope:     encoded,
		Status:    JobQueued,
		CreatedAt: time.Now().UTC(),
	}, nil
}

func encodeJSON(v any) (string, error) {
	if v == nil {
		return "", nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (j *Job) IsTerminal() bool {
	switch j.Status {
	case JobCompleted, JobFailed, JobCancelled:
		return true
	}
	return false
}

func (j *Job) CanCancel() bool { return !j.IsTerminal() }

func (j *Job) MarkStarted() {
	now := time.Now().UTC()
	j.Status = JobRunning
	j.StartedAt = &now
}

// finish moves the job into a terminal status.
func (j *Job) finish(status JobStatus) {
	now := time.Now().UTC()
	j.Status = status
	j.CompletedAt = &now
}

// MarkCompleted stores result as JSON. A result that does not encode fails
// the job instead.
func (j *Job) MarkCompleted(result any) error {
	encoded, err := encodeJSON(result)
	if err != nil {
		j.MarkFailed(err)
		return err
	}
	j.Result = encoded
	j.Progress = 100
	j.finish(JobCompleted)
	return nil
}

func (j *Job) MarkFailed(err error) {
	if err != nil {
		j.Error = err.Error()
	}
	j.finish(JobFailed)
}

func (j *Job) MarkCancelled() { j.finish(JobCancelled) }

// SetProgress clamps progress to 0..100.
func (j *Job) SetProgress(progress int) {
	j.Progress = max(0, min(progress, 100))
}

// Duration is the run time so far, or the total once finished. Unstarted
// jobs report zero.
func (j *Job) Duration() time.Duration {
	if j.StartedAt == nil {
		return 0
	}
	end := time.Now().UTC()
	if j.CompletedAt != nil {
		end = *j.CompletedAt
	}
	return end.Sub(*j.StartedAt)
}

// JobSummary is the listing view of a job, without scope or result.
type JobSummary struct {
	ID          string     `json:"id"`
	Type        JobType    `json:"type"`
	Status      JobStatus  `json:"status"`
	Progress    int        `json:"progress"`
	CreatedAt   time.Time  `json:"createdAt"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
	DurationMs  int64      `json:"durationMs"`
	Error       string     `json:"error,omitempty"`
}

func (j *Job) ToSummary() JobSummary {
	return JobSummary{
		ID:          j.ID,
		Type:        j.Type,
		Status:      j.Status,
		Progress:    j.Progress,
		CreatedAt:   j.CreatedAt,
		CompletedAt: j.CompletedAt,
		DurationMs:  j.Duration().Milliseconds(),
		Error:       j.Error,
	}
}

// ListJobsOptions contains options for listing jobs.
type ListJobsOptions struct {
	Status []JobStatus
	Type   []JobType
	Limit  int
	Offset int
}

// ListJobsResponse contains the result of listing jobs.
type ListJobsResponse struct {
	Jobs       []JobSummary `json:"jobs"`
	TotalCount int          `json:"totalCount"`
}
