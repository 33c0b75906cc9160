package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/alejandroramirez/llm-powered-candidate-scoring/internal/config"
	"github.com/alejandroramirez/llm-powered-candidate-scoring/internal/model"
)

// ScoringClient handles communication with the scoring backend. The backend's
// ranking algorithm is opaque to this service; a batch goes in, per-candidate
// scores come out. The HTTP client enforces the request deadline so an
// unresponsive backend cannot stall a job's batch loop forever.
type ScoringClient struct {
	httpClient *http.Client
	baseURL    string
}

// scoreInput is the candidate shape the backend expects; job titles stay
// local to this service.
type scoreInput struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Resume string `json:"resume"`
}

// ScoreBackendRequest is the request body for a batch scoring call
type ScoreBackendRequest struct {
	JobDescription string       `json:"job_description"`
	Candidates     []scoreInput `json:"candidates"`
}

// NewScoringClient creates a new scoring backend client
func NewScoringClient(cfg *config.ScoringConfig) *ScoringClient {
	timeout := time.Duration(cfg.Timeout) * time.Second
	if cfg.Timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &ScoringClient{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		baseURL: cfg.ServiceURL,
	}
}

// Score submits one batch of candidates for scoring. The response order is
// not guaranteed; callers sort. Falls back to deterministic mock scores when
// no backend is configured.
func (c *ScoringClient) Score(ctx context.Context, jobDescription string, candidates []model.Candidate) ([]model.ScoredCandidate, error) {
	if !c.IsConfigured() {
		return c.mockScore(candidates), nil
	}

	inputs := make([]scoreInput, 0, len(candidates))
	for _, cand := range candidates {
		inputs = append(inputs, scoreInput{
			ID:     cand.ID,
			Name:   cand.Name,
			Resume: cand.Resume,
		})
	}

	reqBody := ScoreBackendRequest{
		JobDescription: jobDescription,
		Candidates:     inputs,
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/score", bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("scoring backend error (status %d): %s", resp.StatusCode, string(respBody))
	}

	var scored []model.ScoredCandidate
	if err := json.Unmarshal(respBody, &scored); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	if len(scored) != len(candidates) {
		return nil, fmt.Errorf("scoring backend returned %d results for %d candidates", len(scored), len(candidates))
	}

	return scored, nil
}

// mockScore mirrors the backend's placeholder behavior for development.
func (c *ScoringClient) mockScore(candidates []model.Candidate) []model.ScoredCandidate {
	scored := make([]model.ScoredCandidate, 0, len(candidates))
	for i, cand := range candidates {
		scored = append(scored, model.ScoredCandidate{
			ID:         cand.ID,
			Name:       cand.Name,
			Score:      80 + i%10,
			Highlights: []string{"Example highlight"},
		})
	}
	return scored
}

// IsConfigured returns true if the client has valid configuration
func (c *ScoringClient) IsConfigured() bool {
	return c.baseURL != ""
}
