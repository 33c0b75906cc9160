package model

// WebSocket message types
const (
	WSMessageTypeProgress = "progress"
	WSMessageTypeComplete = "complete"
	WSMessageTypeError    = "error"
	WSMessageTypePing     = "ping"
	WSMessageTypePong     = "pong"
)

// WSMessage represents a generic WebSocket message
type WSMessage struct {
	Type string `json:"type"`
}

// WSProgressMessage reports how many candidates have been scored so far
type WSProgressMessage struct {
	Type     string `json:"type"`
	JobID    string `json:"jobId"`
	Progress int    `json:"progress"`
	Total    int    `json:"total"`
}

// WSCompleteMessage carries the final ranked results
type WSCompleteMessage struct {
	Type    string            `json:"type"`
	JobID   string            `json:"jobId"`
	Results []ScoredCandidate `json:"results"`
}

// WSErrorMessage represents a job failure
type WSErrorMessage struct {
	Type  string  `json:"type"`
	JobID string  `json:"jobId"`
	Error WSError `json:"error"`
}

// WSError represents error details
type WSError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
