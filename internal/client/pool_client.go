package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/alejandroramirez/llm-powered-candidate-scoring/internal/config"
	"github.com/alejandroramirez/llm-powered-candidate-scoring/internal/model"
)

// PoolClient fetches the static candidate pool prepared by the external
// collaborator. The pool is fetched once per job submission and treated as
// read-only input. Falls back to a small embedded pool when no URL is
// configured.
type PoolClient struct {
	httpClient *http.Client
	url        string
	limit      int
}

// NewPoolClient creates a new candidate pool client
func NewPoolClient(cfg *config.PoolConfig) *PoolClient {
	return &PoolClient{
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		url:   cfg.URL,
		limit: cfg.Limit,
	}
}

// FetchCandidates retrieves the candidate pool, order preserved.
func (p *PoolClient) FetchCandidates(ctx context.Context) ([]model.Candidate, error) {
	if !p.IsConfigured() {
		return p.truncate(samplePool()), nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch candidate pool: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("candidate pool fetch failed (status %d)", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read candidate pool: %w", err)
	}

	var candidates []model.Candidate
	if err := json.Unmarshal(body, &candidates); err != nil {
		return nil, fmt.Errorf("failed to unmarshal candidate pool: %w", err)
	}

	return p.truncate(candidates), nil
}

func (p *PoolClient) truncate(candidates []model.Candidate) []model.Candidate {
	if p.limit > 0 && len(candidates) > p.limit {
		return candidates[:p.limit]
	}
	return candidates
}

// IsConfigured returns true if the client has valid configuration
func (p *PoolClient) IsConfigured() bool {
	return p.url != ""
}

// samplePool is the development fallback when no pool URL is configured.
func samplePool() []model.Candidate {
	return []model.Candidate{
		{ID: "candidate-1", Name: "ada lovelace", JobTitle: "backend engineer", Resume: "10 years writing distributed systems in go and c. led a team of 6."},
		{ID: "candidate-2", Name: "grace hopper", JobTitle: "platform engineer", Resume: "compiler work, infrastructure automation, strong mentoring record."},
		{ID: "candidate-3", Name: "alan kay", JobTitle: "software architect", Resume: "object oriented design, long-lived systems, research background."},
		{ID: "candidate-4", Name: "barbara liskov", JobTitle: "senior engineer", Resume: "api design, data abstraction, reliable services at scale."},
		{ID: "candidate-5", Name: "dennis ritchie", JobTitle: "systems programmer", Resume: "operating systems, networking stacks, low-level performance tuning."},
		{ID: "candidate-6", Name: "ken thompson", JobTitle: "infrastructure engineer", Resume: "unix tooling, concurrency, build pipelines."},
	}
}
