package model

import "time"

// Job is the lifecycle record of one scoring request, kept in Redis under the
// job id. Only the worker's sequential batch loop writes to it after creation;
// deletion of the record doubles as the cancellation signal.
type Job struct {
	ID          string            `json:"id"`
	Progress    int               `json:"progress"`
	Total       int               `json:"total"`
	Results     []ScoredCandidate `json:"results"`
	Done        bool              `json:"done"`
	Error       *string           `json:"error,omitempty"`
	CreatedAt   time.Time         `json:"createdAt"`
	CompletedAt *time.Time        `json:"completedAt,omitempty"`
}

// ScoreSubmitRequest is the submission payload.
type ScoreSubmitRequest struct {
	JobDescription string `json:"job_description" validate:"required,max=200"`
}

// ScoreSubmitResponse acknowledges an accepted submission.
type ScoreSubmitResponse struct {
	JobID string `json:"job_id"`
}

// ScoreStatusResponse is the polling view of a job.
type ScoreStatusResponse struct {
	Progress int               `json:"progress"`
	Total    int               `json:"total"`
	Results  []ScoredCandidate `json:"results"`
	Done     bool              `json:"done"`
	Error    *string           `json:"error,omitempty"`
}

// PendingStatusResponse is returned when no job record exists for an id.
// Callers cannot tell "not yet visible" from "expired" from "never existed".
type PendingStatusResponse struct {
	Status string `json:"status"`
}

// ScoreCancelResponse confirms a cancellation.
type ScoreCancelResponse struct {
	Cancelled bool   `json:"cancelled"`
	JobID     string `json:"job_id"`
}

// ScoreTaskPayload is the queued unit of batch work. The candidate pool is
// fetched once at submission and travels with the task.
type ScoreTaskPayload struct {
	JobID          string      `json:"jobId"`
	JobDescription string      `json:"jobDescription"`
	Candidates     []Candidate `json:"candidates"`
}
