package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alejandroramirez/llm-powered-candidate-scoring/internal/model"
)

const (
	chunkKeyPrefix = "score:chunk:"
	fullKeyPrefix  = "score:full:"
)

// ResultCache stores fully-computed scoring results in Redis, keyed by a
// content fingerprint. Partial results are never written here.
type ResultCache struct {
	redis *redis.Client
	ttl   time.Duration
}

func New(redisClient *redis.Client, ttl time.Duration) *ResultCache {
	return &ResultCache{
		redis: redisClient,
		ttl:   ttl,
	}
}

// Fingerprint digests the job description together with the candidate ids in
// the order of this particular batch. Re-slicing the pool with different
// chunk boundaries therefore yields different keys; identical batches always
// collide.
func Fingerprint(jobDescription string, candidates []model.Candidate) string {
	h := sha256.New()
	h.Write([]byte(jobDescription))
	for _, c := range candidates {
		h.Write([]byte{0})
		h.Write([]byte(c.ID))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// ChunkKey is the cache key for a single scored batch.
func ChunkKey(jobDescription string, chunk []model.Candidate) string {
	return chunkKeyPrefix + Fingerprint(jobDescription, chunk)
}

// FullKey is the cache key for the full candidate set's final result.
func FullKey(jobDescription string, candidates []model.Candidate) string {
	return fullKeyPrefix + Fingerprint(jobDescription, candidates)
}

// Get returns the cached result for key, reporting a miss for both absent
// keys and undecodable entries.
func (c *ResultCache) Get(ctx context.Context, key string) ([]model.ScoredCandidate, bool, error) {
	data, err := c.redis.Get(ctx, key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, false, nil
		}
		return nil, false, err
	}

	var results []model.ScoredCandidate
	if err := json.Unmarshal(data, &results); err != nil {
		return nil, false, nil
	}
	return results, true, nil
}

// Set writes a fully-computed result under key with the cache TTL.
func (c *ResultCache) Set(ctx context.Context, key string, results []model.ScoredCandidate) error {
	data, err := json.Marshal(results)
	if err != nil {
		return err
	}
	return c.redis.Set(ctx, key, data, c.ttl).Err()
}
