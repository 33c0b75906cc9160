package config

import (
	"os"
	"strings"

	"github.com/spf13/viper"
)

// readSecret reads a Docker secret from a file path specified by an env var
// with _FILE suffix. If FOO is already set directly, the file is skipped.
// If FOO_FILE is set, reads the file content and sets FOO.
func readSecret(envKey string) {
	if os.Getenv(envKey) != "" {
		return
	}
	fileKey := envKey + "_FILE"
	filePath := os.Getenv(fileKey)
	if filePath == "" {
		return
	}
	data, err := os.ReadFile(filePath)
	if err != nil {
		return
	}
	val := strings.TrimSpace(string(data))
	os.Setenv(envKey, val)
}

type Config struct {
	Server    ServerConfig
	Redis     RedisConfig
	RateLimit RateLimitConfig
	Scoring   ScoringConfig
	Pool      PoolConfig
	Cache     CacheConfig
	Job       JobConfig
}

type ServerConfig struct {
	Port     string
	Env      string
	LogLevel string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type RateLimitConfig struct {
	CooldownSeconds int
}

type ScoringConfig struct {
	ServiceURL string
	Timeout    int // seconds
	BatchSize  int
}

type PoolConfig struct {
	URL   string
	Limit int // 0 means the whole pool
}

type CacheConfig struct {
	TTL int // seconds; must outlive the job TTL
}

type JobConfig struct {
	TTL int // seconds
}

func Load() (*Config, error) {
	// Read Docker Swarm secrets from _FILE env vars before Viper binds
	readSecret("REDIS_PASSWORD")

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	// Environment variables
	viper.AutomaticEnv()

	// Bind environment variables with underscores to nested config keys
	_ = viper.BindEnv("server.port", "SERVER_PORT")
	_ = viper.BindEnv("server.env", "SERVER_ENV")
	_ = viper.BindEnv("server.log_level", "LOG_LEVEL")
	_ = viper.BindEnv("redis.addr", "REDIS_ADDR")
	_ = viper.BindEnv("redis.password", "REDIS_PASSWORD")
	_ = viper.BindEnv("redis.db", "REDIS_DB")
	_ = viper.BindEnv("ratelimit.cooldown_seconds", "RATELIMIT_COOLDOWN_SECONDS")
	_ = viper.BindEnv("scoring.service_url", "SCORING_SERVICE_URL")
	_ = viper.BindEnv("scoring.timeout", "SCORING_TIMEOUT")
	_ = viper.BindEnv("scoring.batch_size", "SCORING_BATCH_SIZE")
	_ = viper.BindEnv("pool.url", "CANDIDATE_POOL_URL")
	_ = viper.BindEnv("pool.limit", "CANDIDATE_POOL_LIMIT")
	_ = viper.BindEnv("cache.ttl", "CACHE_TTL")
	_ = viper.BindEnv("job.ttl", "JOB_TTL")

	// Defaults
	viper.SetDefault("server.port", "8080")
	viper.SetDefault("server.env", "development")
	viper.SetDefault("server.log_level", "info")
	viper.SetDefault("redis.addr", "localhost:6379")
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("ratelimit.cooldown_seconds", 3)

	// Scoring backend defaults
	viper.SetDefault("scoring.service_url", "http://localhost:8000")
	viper.SetDefault("scoring.timeout", 60)
	viper.SetDefault("scoring.batch_size", 10)

	// Candidate pool defaults
	viper.SetDefault("pool.url", "http://localhost:3000/candidates.json")
	viper.SetDefault("pool.limit", 0)

	// Result cache outlives the job record so a repeated query can still
	// short-circuit after the job itself has expired
	viper.SetDefault("cache.ttl", 3600)
	viper.SetDefault("job.ttl", 600)

	// Try to read config file (optional)
	_ = viper.ReadInConfig()

	cfg := &Config{
		Server: ServerConfig{
			Port:     viper.GetString("server.port"),
			Env:      viper.GetString("server.env"),
			LogLevel: viper.GetString("server.log_level"),
		},
		Redis: RedisConfig{
			Addr:     viper.GetString("redis.addr"),
			Password: viper.GetString("redis.password"),
			DB:       viper.GetInt("redis.db"),
		},
		RateLimit: RateLimitConfig{
			CooldownSeconds: viper.GetInt("ratelimit.cooldown_seconds"),
		},
		Scoring: ScoringConfig{
			ServiceURL: viper.GetString("scoring.service_url"),
			Timeout:    viper.GetInt("scoring.timeout"),
			BatchSize:  viper.GetInt("scoring.batch_size"),
		},
		Pool: PoolConfig{
			URL:   viper.GetString("pool.url"),
			Limit: viper.GetInt("pool.limit"),
		},
		Cache: CacheConfig{
			TTL: viper.GetInt("cache.ttl"),
		},
		Job: JobConfig{
			TTL: viper.GetInt("job.ttl"),
		},
	}

	return cfg, nil
}
