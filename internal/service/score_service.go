package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/alejandroramirez/llm-powered-candidate-scoring/internal/cache"
	"github.com/alejandroramirez/llm-powered-candidate-scoring/internal/client"
	"github.com/alejandroramirez/llm-powered-candidate-scoring/internal/model"
)

const TaskTypeScore = "score:process"

var (
	// ErrJobNotFound covers unknown, expired and cancelled jobs alike; the
	// store does not distinguish them.
	ErrJobNotFound = errors.New("job not found")

	// ErrPoolUnavailable signals a candidate pool fetch failure before any
	// job state exists.
	ErrPoolUnavailable = errors.New("candidate pool unavailable")
)

// ScoreService owns the scoring job lifecycle: creation, full-result cache
// short-circuit, enqueueing of batch work, status reads and cancellation.
type ScoreService struct {
	redis       *redis.Client
	asynqClient *asynq.Client
	cache       *cache.ResultCache
	pool        *client.PoolClient
	jobTTL      time.Duration
}

func NewScoreService(redisClient *redis.Client, asynqClient *asynq.Client, resultCache *cache.ResultCache, poolClient *client.PoolClient, jobTTL time.Duration) *ScoreService {
	return &ScoreService{
		redis:       redisClient,
		asynqClient: asynqClient,
		cache:       resultCache,
		pool:        poolClient,
		jobTTL:      jobTTL,
	}
}

// Submit accepts a job description, fetches the candidate pool and either
// answers from the full-result cache or queues batch processing. It returns
// as soon as the job record exists; callers poll for progress.
func (s *ScoreService) Submit(ctx context.Context, jobDescription string) (*model.ScoreSubmitResponse, error) {
	candidates, err := s.pool.FetchCandidates(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPoolUnavailable, err)
	}

	jobID := uuid.New().String()
	now := time.Now()
	job := &model.Job{
		ID:        jobID,
		Progress:  0,
		Total:     0,
		Results:   []model.ScoredCandidate{},
		Done:      false,
		CreatedAt: now,
	}

	// A cached full result finishes the job before any batch is scheduled
	fullKey := cache.FullKey(jobDescription, candidates)
	cached, hit, err := s.cache.Get(ctx, fullKey)
	if err != nil {
		log.Printf("Full-result cache read failed: %v", err)
	}
	if hit {
		job.Done = true
		job.Progress = len(candidates)
		job.Total = len(candidates)
		job.Results = cached
		job.CompletedAt = &now
		if err := s.SaveJob(ctx, job); err != nil {
			return nil, fmt.Errorf("failed to save job: %w", err)
		}
		return &model.ScoreSubmitResponse{JobID: jobID}, nil
	}

	if err := s.SaveJob(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to save job: %w", err)
	}

	task, err := newScoreTask(jobID, jobDescription, candidates)
	if err != nil {
		s.deleteJob(ctx, jobID)
		return nil, fmt.Errorf("failed to create task: %w", err)
	}

	// No automatic retries: a failed job must surface its error, not rerun
	_, err = s.asynqClient.Enqueue(task,
		asynq.Queue("score"),
		asynq.MaxRetry(0),
		asynq.Retention(time.Hour),
	)
	if err != nil {
		s.deleteJob(ctx, jobID)
		return nil, fmt.Errorf("failed to enqueue task: %w", err)
	}

	return &model.ScoreSubmitResponse{JobID: jobID}, nil
}

// GetStatus returns the polling view of a job.
func (s *ScoreService) GetStatus(ctx context.Context, jobID string) (*model.ScoreStatusResponse, error) {
	job, err := s.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}

	return &model.ScoreStatusResponse{
		Progress: job.Progress,
		Total:    job.Total,
		Results:  job.Results,
		Done:     job.Done,
		Error:    job.Error,
	}, nil
}

// Cancel deletes the job record. The worker's batch loop treats the absence
// of the record as an authoritative stop signal.
func (s *ScoreService) Cancel(ctx context.Context, jobID string) (*model.ScoreCancelResponse, error) {
	deleted, err := s.redis.Del(ctx, jobKey(jobID)).Result()
	if err != nil {
		return nil, err
	}
	if deleted == 0 {
		return nil, ErrJobNotFound
	}

	return &model.ScoreCancelResponse{
		Cancelled: true,
		JobID:     jobID,
	}, nil
}

// UpdateProgress overwrites the job with the batch loop's accumulated state
// (called by worker). Returns ErrJobNotFound when the record was deleted in
// the meantime so the caller can discard the write.
func (s *ScoreService) UpdateProgress(ctx context.Context, jobID string, progress, total int, results []model.ScoredCandidate) error {
	job, err := s.GetJob(ctx, jobID)
	if err != nil {
		return err
	}

	job.Progress = progress
	job.Total = total
	job.Results = results

	return s.SaveJob(ctx, job)
}

// CompleteJob marks the job terminal with its final sorted results (called
// by worker).
func (s *ScoreService) CompleteJob(ctx context.Context, jobID string, results []model.ScoredCandidate) error {
	job, err := s.GetJob(ctx, jobID)
	if err != nil {
		return err
	}

	job.Done = true
	job.Progress = job.Total
	job.Results = results
	now := time.Now()
	job.CompletedAt = &now

	return s.SaveJob(ctx, job)
}

// FailJob marks the job terminal with an error, resetting progress and
// results; a failed job never retains partial output (called by worker).
func (s *ScoreService) FailJob(ctx context.Context, jobID string, errMsg string) error {
	job, err := s.GetJob(ctx, jobID)
	if err != nil {
		return err
	}

	job.Done = true
	job.Progress = 0
	job.Results = []model.ScoredCandidate{}
	job.Error = &errMsg
	now := time.Now()
	job.CompletedAt = &now

	return s.SaveJob(ctx, job)
}

// GetJob reads a job record; ErrJobNotFound for absent keys.
func (s *ScoreService) GetJob(ctx context.Context, jobID string) (*model.Job, error) {
	data, err := s.redis.Get(ctx, jobKey(jobID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, ErrJobNotFound
		}
		return nil, err
	}

	var job model.Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, err
	}

	return &job, nil
}

// SaveJob writes a job record with the job TTL.
func (s *ScoreService) SaveJob(ctx context.Context, job *model.Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return err
	}
	return s.redis.Set(ctx, jobKey(job.ID), data, s.jobTTL).Err()
}

func (s *ScoreService) deleteJob(ctx context.Context, jobID string) {
	if err := s.redis.Del(ctx, jobKey(jobID)).Err(); err != nil {
		log.Printf("Failed to delete job %s: %v", jobID, err)
	}
}

func jobKey(jobID string) string {
	return fmt.Sprintf("scorejob:%s", jobID)
}

func newScoreTask(jobID, jobDescription string, candidates []model.Candidate) (*asynq.Task, error) {
	payload := model.ScoreTaskPayload{
		JobID:          jobID,
		JobDescription: jobDescription,
		Candidates:     candidates,
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeScore, data), nil
}
