package model

// Candidate is one entry of the externally prepared candidate pool.
// The pool is read-only input; this service never mutates it.
type Candidate struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	JobTitle string `json:"jobTitle,omitempty"`
	Resume   string `json:"resume"`
}

// ScoredCandidate is a single ranked result produced by the scoring backend.
// Immutable once produced.
type ScoredCandidate struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	Score      int      `json:"score"`
	Highlights []string `json:"highlights"`
}
