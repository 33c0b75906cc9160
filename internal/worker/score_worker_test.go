package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/alejandroramirez/llm-powered-candidate-scoring/internal/cache"
	"github.com/alejandroramirez/llm-powered-candidate-scoring/internal/client"
	"github.com/alejandroramirez/llm-powered-candidate-scoring/internal/config"
	"github.com/alejandroramirez/llm-powered-candidate-scoring/internal/model"
	"github.com/alejandroramirez/llm-powered-candidate-scoring/internal/service"
	ws "github.com/alejandroramirez/llm-powered-candidate-scoring/internal/websocket"
)

// testEnv wires a worker against Redis (localhost — must be running, DB 15
// to avoid collision) the way main.go does, with the scoring backend mocked.
type testEnv struct {
	redis   *redis.Client
	cache   *cache.ResultCache
	service *service.ScoreService
	hub     *ws.Hub
}

func setupEnv(t *testing.T) *testEnv {
	t.Helper()

	redisClient := redis.NewClient(&redis.Options{
		Addr: "localhost:6379",
		DB:   15,
	})

	asynqClient := asynq.NewClient(asynq.RedisClientOpt{
		Addr: "localhost:6379",
		DB:   15,
	})
	t.Cleanup(func() { asynqClient.Close() })

	resultCache := cache.New(redisClient, time.Hour)
	poolClient := client.NewPoolClient(&config.PoolConfig{}) // unused by the worker
	scoreService := service.NewScoreService(redisClient, asynqClient, resultCache, poolClient, 10*time.Minute)

	hub := ws.NewHub()
	go hub.Run()

	return &testEnv{
		redis:   redisClient,
		cache:   resultCache,
		service: scoreService,
		hub:     hub,
	}
}

func makeCandidates(n int) []model.Candidate {
	out := make([]model.Candidate, 0, n)
	for i := 1; i <= n; i++ {
		out = append(out, model.Candidate{
			ID:     fmt.Sprintf("candidate-%d", i),
			Name:   fmt.Sprintf("name-%d", i),
			Resume: "several years of backend work in go",
		})
	}
	return out
}

func newScoreTask(t *testing.T, jobID, jobDescription string, candidates []model.Candidate) *asynq.Task {
	t.Helper()
	data, err := json.Marshal(model.ScoreTaskPayload{
		JobID:          jobID,
		JobDescription: jobDescription,
		Candidates:     candidates,
	})
	if err != nil {
		t.Fatalf("failed to marshal task payload: %v", err)
	}
	return asynq.NewTask(service.TaskTypeScore, data)
}

func createJob(t *testing.T, env *testEnv, jobID string) {
	t.Helper()
	job := &model.Job{
		ID:        jobID,
		Results:   []model.ScoredCandidate{},
		CreatedAt: time.Now(),
	}
	if err := env.service.SaveJob(context.Background(), job); err != nil {
		t.Fatalf("failed to save job: %v", err)
	}
}

// uniqueQuery keeps each test's cache entries isolated on the shared DB.
func uniqueQuery(t *testing.T) string {
	t.Helper()
	return "Go backend engineer " + uuid.New().String()
}

func TestProcessTask_CompletesAndSortsResults(t *testing.T) {
	env := setupEnv(t)
	ctx := context.Background()

	jobID := uuid.New().String()
	query := uniqueQuery(t)
	candidates := makeCandidates(23) // three chunks: 10, 10, 3
	createJob(t, env, jobID)

	scoringClient := client.NewScoringClient(&config.ScoringConfig{}) // mock
	w := NewScoreWorker(env.service, scoringClient, env.cache, env.hub, 10)

	if err := w.ProcessTask(ctx, newScoreTask(t, jobID, query, candidates)); err != nil {
		t.Fatalf("ProcessTask failed: %v", err)
	}

	job, err := env.service.GetJob(ctx, jobID)
	if err != nil {
		t.Fatalf("failed to read job: %v", err)
	}
	if !job.Done {
		t.Error("expected job to be done")
	}
	if job.Error != nil {
		t.Errorf("expected no error, got %q", *job.Error)
	}
	if job.Total != 23 || job.Progress != 23 {
		t.Errorf("expected progress=total=23, got progress=%d total=%d", job.Progress, job.Total)
	}
	if len(job.Results) != 23 {
		t.Fatalf("expected 23 results, got %d", len(job.Results))
	}

	for i := 1; i < len(job.Results); i++ {
		if job.Results[i].Score > job.Results[i-1].Score {
			t.Fatalf("results not sorted by descending score at index %d", i)
		}
	}

	// Mock scores repeat per chunk position, so ties must keep pool order:
	// the top score 89 belongs to pool positions 10 and 20, in that order
	if job.Results[0].ID != "candidate-10" || job.Results[1].ID != "candidate-20" {
		t.Errorf("expected stable tie ordering [candidate-10 candidate-20], got [%s %s]",
			job.Results[0].ID, job.Results[1].ID)
	}
}

func TestProcessTask_CancelledJobStopsProcessing(t *testing.T) {
	env := setupEnv(t)
	ctx := context.Background()

	jobID := uuid.New().String()
	query := uniqueQuery(t)
	candidates := makeCandidates(23)
	createJob(t, env, jobID)

	if _, err := env.service.Cancel(ctx, jobID); err != nil {
		t.Fatalf("cancel failed: %v", err)
	}

	scoringClient := client.NewScoringClient(&config.ScoringConfig{})
	w := NewScoreWorker(env.service, scoringClient, env.cache, env.hub, 10)

	if err := w.ProcessTask(ctx, newScoreTask(t, jobID, query, candidates)); err != nil {
		t.Fatalf("expected cancelled job to be dropped silently, got %v", err)
	}

	// No write may resurrect the deleted record
	if _, err := env.service.GetJob(ctx, jobID); !errors.Is(err, service.ErrJobNotFound) {
		t.Errorf("expected job to stay deleted, got %v", err)
	}
}

func TestProcessTask_ScoringFailureResetsJob(t *testing.T) {
	env := setupEnv(t)
	ctx := context.Background()

	jobID := uuid.New().String()
	query := uniqueQuery(t)
	candidates := makeCandidates(23)
	createJob(t, env, jobID)

	// First batch succeeds, second fails
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		calls++
		if calls > 1 {
			http.Error(rw, "model overloaded", http.StatusInternalServerError)
			return
		}
		var req client.ScoreBackendRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("failed to decode request: %v", err)
		}
		scored := make([]model.ScoredCandidate, 0, len(req.Candidates))
		for _, c := range req.Candidates {
			scored = append(scored, model.ScoredCandidate{ID: c.ID, Name: c.Name, Score: 70, Highlights: []string{"go"}})
		}
		json.NewEncoder(rw).Encode(scored)
	}))
	defer srv.Close()

	scoringClient := client.NewScoringClient(&config.ScoringConfig{ServiceURL: srv.URL, Timeout: 5})
	w := NewScoreWorker(env.service, scoringClient, env.cache, env.hub, 10)

	if err := w.ProcessTask(ctx, newScoreTask(t, jobID, query, candidates)); err == nil {
		t.Fatal("expected ProcessTask to report the scoring failure")
	}

	job, err := env.service.GetJob(ctx, jobID)
	if err != nil {
		t.Fatalf("failed to read job: %v", err)
	}
	if !job.Done {
		t.Error("expected failed job to be done")
	}
	if job.Error == nil {
		t.Error("expected error message on failed job")
	}
	if job.Progress != 0 || len(job.Results) != 0 {
		t.Errorf("expected full reset on failure, got progress=%d results=%d", job.Progress, len(job.Results))
	}
}

func TestProcessTask_FullResultCachedForResubmission(t *testing.T) {
	env := setupEnv(t)
	ctx := context.Background()

	jobID := uuid.New().String()
	query := uniqueQuery(t)
	candidates := makeCandidates(23)
	createJob(t, env, jobID)

	scoringClient := client.NewScoringClient(&config.ScoringConfig{})
	w := NewScoreWorker(env.service, scoringClient, env.cache, env.hub, 10)

	if err := w.ProcessTask(ctx, newScoreTask(t, jobID, query, candidates)); err != nil {
		t.Fatalf("ProcessTask failed: %v", err)
	}

	cached, hit, err := env.cache.Get(ctx, cache.FullKey(query, candidates))
	if err != nil {
		t.Fatalf("cache read failed: %v", err)
	}
	if !hit {
		t.Fatal("expected the full result set to be cached")
	}
	if len(cached) != 23 {
		t.Fatalf("expected 23 cached results, got %d", len(cached))
	}

	// A resubmission of the same query over the same pool finishes
	// immediately from the cache, with no batch work scheduled
	poolSrv := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		json.NewEncoder(rw).Encode(candidates)
	}))
	defer poolSrv.Close()

	asynqClient := asynq.NewClient(asynq.RedisClientOpt{Addr: "localhost:6379", DB: 15})
	t.Cleanup(func() { asynqClient.Close() })
	poolClient := client.NewPoolClient(&config.PoolConfig{URL: poolSrv.URL})
	svc := service.NewScoreService(env.redis, asynqClient, env.cache, poolClient, 10*time.Minute)

	resp, err := svc.Submit(ctx, query)
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}

	job, err := svc.GetJob(ctx, resp.JobID)
	if err != nil {
		t.Fatalf("failed to read job: %v", err)
	}
	if !job.Done {
		t.Error("expected cached submission to be done immediately")
	}
	if job.Progress != 23 || job.Total != 23 {
		t.Errorf("expected progress=total=23, got progress=%d total=%d", job.Progress, job.Total)
	}
	if len(job.Results) != 23 {
		t.Errorf("expected 23 results, got %d", len(job.Results))
	}
}

func TestChunkCandidates(t *testing.T) {
	chunks := chunkCandidates(makeCandidates(23), 10)
	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(chunks))
	}
	if len(chunks[0]) != 10 || len(chunks[1]) != 10 || len(chunks[2]) != 3 {
		t.Errorf("expected chunk sizes [10 10 3], got [%d %d %d]", len(chunks[0]), len(chunks[1]), len(chunks[2]))
	}
	if chunks[2][0].ID != "candidate-21" {
		t.Errorf("expected order preserved across chunks, got %s", chunks[2][0].ID)
	}
}

func TestSortByScore_StableOnTies(t *testing.T) {
	results := []model.ScoredCandidate{
		{ID: "a", Score: 80},
		{ID: "b", Score: 90},
		{ID: "c", Score: 80},
		{ID: "d", Score: 95},
	}
	sortByScore(results)

	got := []string{results[0].ID, results[1].ID, results[2].ID, results[3].ID}
	want := []string{"d", "b", "a", "c"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected order %v, got %v", want, got)
		}
	}
}
