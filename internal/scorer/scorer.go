// Package scorer defines the external LLM scoring contracts the evaluation
// pipeline depends on, plus the Gemini implementations.
package scorer

import (
	"context"
	"errors"
)

// Scorer is a synchronous, single-prompt scoring call. The returned text is
// expected to be JSON-ish but callers must tolerate anything.
type Scorer interface {
	Score(ctx context.Context, prompt string) (string, error)
}

// BulkRequest is one prompt inside a bulk job, tagged with the correlation
// id results are matched on.
type BulkRequest struct {
	ID     string
	Prompt string
}

// BulkResult is one entry of a finished bulk job. Err is set when the
// provider failed that single request; the rest of the job is unaffected.
type BulkResult struct {
	ID   string
	Text string
	Err  string
}

type JobStatus string

const (
	JobQueued    JobStatus = "queued"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
	JobExpired   JobStatus = "expired"
	JobCanceled  JobStatus = "canceled"
)

func (s JobStatus) Terminal() bool {
	switch s {
	case JobCompleted, JobFailed, JobExpired, JobCanceled:
		return true
	}
	return false
}

// BulkScorer is the asynchronous bulk mechanism: submit many prompts as one
// job, poll, then fetch results addressable by correlation id.
type BulkScorer interface {
	Submit(ctx context.Context, reqs []BulkRequest) (jobID string, err error)
	Status(ctx context.Context, jobID string) (JobStatus, error)
	Results(ctx context.Context, jobID string) ([]BulkResult, error)
}

// ErrTokenLimit tags a bulk submission rejected for exceeding the provider's
// token/capacity budget. The batch runner falls back to synchronous calls on
// this error and only this error.
var ErrTokenLimit = errors.New("bulk job exceeds provider token limit")
