package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sort"

	"github.com/hibiken/asynq"

	"github.com/alejandroramirez/llm-powered-candidate-scoring/internal/cache"
	"github.com/alejandroramirez/llm-powered-candidate-scoring/internal/client"
	"github.com/alejandroramirez/llm-powered-candidate-scoring/internal/model"
	"github.com/alejandroramirez/llm-powered-candidate-scoring/internal/service"
	"github.com/alejandroramirez/llm-powered-candidate-scoring/internal/websocket"
)

// ScoreWorker processes scoring jobs: one sequential chunk loop per job, no
// intra-job parallelism, so result ordering stays deterministic and the
// scoring backend sees bounded load.
type ScoreWorker struct {
	scoreService  *service.ScoreService
	scoringClient *client.ScoringClient
	cache         *cache.ResultCache
	hub           *websocket.Hub
	batchSize     int
}

// NewScoreWorker creates a new scoring worker
func NewScoreWorker(scoreService *service.ScoreService, scoringClient *client.ScoringClient, resultCache *cache.ResultCache, hub *websocket.Hub, batchSize int) *ScoreWorker {
	if batchSize <= 0 {
		batchSize = 10
	}
	return &ScoreWorker{
		scoreService:  scoreService,
		scoringClient: scoringClient,
		cache:         resultCache,
		hub:           hub,
		batchSize:     batchSize,
	}
}

// ProcessTask handles scoring task processing
func (w *ScoreWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload model.ScoreTaskPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal task payload: %w", err)
	}

	jobID := payload.JobID
	log.Printf("Starting scoring job: %s", jobID)

	total := len(payload.Candidates)
	results := make([]model.ScoredCandidate, 0, total)
	progress := 0

	for _, chunk := range chunkCandidates(payload.Candidates, w.batchSize) {
		// Deletion of the job record is the cancellation signal
		if _, err := w.scoreService.GetJob(ctx, jobID); err != nil {
			if errors.Is(err, service.ErrJobNotFound) {
				log.Printf("Scoring job %s cancelled", jobID)
				return nil
			}
			return err
		}

		scored, err := w.scoreChunk(ctx, payload.JobDescription, chunk)
		if err != nil {
			w.failJob(ctx, jobID, fmt.Sprintf("Scoring failed: %v", err))
			return err
		}

		results = append(results, scored...)
		sortByScore(results)
		progress += len(chunk)

		// UpdateProgress re-reads the record, so a job deleted while the
		// chunk was in flight discards this chunk's result
		if err := w.scoreService.UpdateProgress(ctx, jobID, progress, total, results); err != nil {
			if errors.Is(err, service.ErrJobNotFound) {
				log.Printf("Scoring job %s cancelled mid-chunk, discarding result", jobID)
				return nil
			}
			return err
		}
		w.hub.BroadcastProgress(jobID, progress, total)
	}

	// Publish the full-set result before marking the job terminal; cache
	// writes are best-effort
	fullKey := cache.FullKey(payload.JobDescription, payload.Candidates)
	if err := w.cache.Set(ctx, fullKey, results); err != nil {
		log.Printf("Failed to cache full result for job %s: %v", jobID, err)
	}

	if err := w.scoreService.CompleteJob(ctx, jobID, results); err != nil {
		if errors.Is(err, service.ErrJobNotFound) {
			return nil
		}
		return err
	}

	w.hub.BroadcastComplete(jobID, results)
	log.Printf("Scoring job %s completed", jobID)
	return nil
}

// scoreChunk consults the chunk cache before calling the scoring backend.
func (w *ScoreWorker) scoreChunk(ctx context.Context, jobDescription string, chunk []model.Candidate) ([]model.ScoredCandidate, error) {
	key := cache.ChunkKey(jobDescription, chunk)

	cached, hit, err := w.cache.Get(ctx, key)
	if err != nil {
		log.Printf("Chunk cache read failed: %v", err)
	}
	if hit {
		return cached, nil
	}

	scored, err := w.scoringClient.Score(ctx, jobDescription, chunk)
	if err != nil {
		return nil, err
	}

	if err := w.cache.Set(ctx, key, scored); err != nil {
		log.Printf("Failed to cache chunk result: %v", err)
	}

	return scored, nil
}

func (w *ScoreWorker) failJob(ctx context.Context, jobID, errMsg string) {
	if err := w.scoreService.FailJob(ctx, jobID, errMsg); err != nil {
		if !errors.Is(err, service.ErrJobNotFound) {
			log.Printf("Failed to mark job %s as failed: %v", jobID, err)
		}
		return
	}
	w.hub.BroadcastError(jobID, "SCORING_FAILED", errMsg)
}

// chunkCandidates partitions the pool into fixed-size chunks, order
// preserved; the last chunk may be smaller.
func chunkCandidates(candidates []model.Candidate, size int) [][]model.Candidate {
	var chunks [][]model.Candidate
	for start := 0; start < len(candidates); start += size {
		end := start + size
		if end > len(candidates) {
			end = len(candidates)
		}
		chunks = append(chunks, candidates[start:end])
	}
	return chunks
}

// sortByScore orders results by descending score; ties keep first-seen order.
func sortByScore(results []model.ScoredCandidate) {
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
}
