package e2e

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/alejandroramirez/llm-powered-candidate-scoring/internal/cache"
	"github.com/alejandroramirez/llm-powered-candidate-scoring/internal/client"
	"github.com/alejandroramirez/llm-powered-candidate-scoring/internal/config"
	"github.com/alejandroramirez/llm-powered-candidate-scoring/internal/handler"
	"github.com/alejandroramirez/llm-powered-candidate-scoring/internal/middleware"
	"github.com/alejandroramirez/llm-powered-candidate-scoring/internal/service"
)

// testApp holds all components needed for testing
type testApp struct {
	app *fiber.App
}

// setupApp creates a Fiber app identical to main.go but with unconfigured
// external clients, so the scoring backend and candidate pool fall back to
// their mocks. No Asynq worker server runs; queued jobs stay queued.
func setupApp(t *testing.T) *testApp {
	return setupAppWithCooldown(t, 3*time.Second)
}

func setupAppWithCooldown(t *testing.T, cooldown time.Duration) *testApp {
	t.Helper()

	// Redis (localhost — must be running)
	redisClient := redis.NewClient(&redis.Options{
		Addr: "localhost:6379",
		DB:   15, // use DB 15 for tests to avoid collision
	})

	// Asynq client
	asynqClient := asynq.NewClient(asynq.RedisClientOpt{
		Addr: "localhost:6379",
		DB:   15,
	})
	t.Cleanup(func() { asynqClient.Close() })

	validate := validator.New()

	// External clients — unconfigured so mock fallbacks kick in
	scoringClient := client.NewScoringClient(&config.ScoringConfig{})
	poolClient := client.NewPoolClient(&config.PoolConfig{})

	resultCache := cache.New(redisClient, time.Hour)
	scoreService := service.NewScoreService(redisClient, asynqClient, resultCache, poolClient, 10*time.Minute)
	scoreHandler := handler.NewScoreHandler(scoreService, validate)
	rateLimiter := middleware.NewRateLimiter(redisClient)

	// Fiber app
	app := fiber.New()

	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"timestamp": time.Now().Unix()})
	})
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "ok",
			"services": fiber.Map{
				"scoring": scoringClient.IsConfigured(),
				"pool":    poolClient.IsConfigured(),
				"redis":   redisClient.Ping(c.Context()).Err() == nil,
			},
		})
	})

	api := app.Group("/api", middleware.ClientIdentity())
	api.Post("/score", rateLimiter.SubmitCooldown(cooldown), scoreHandler.Submit)
	api.Get("/score/status", scoreHandler.Status)
	api.Post("/score/cancel/:jobId", scoreHandler.Cancel)

	return &testApp{app: app}
}

// doRequest is a helper to perform HTTP requests against the test app.
func doRequest(app *fiber.App, method, path string, body string, headers map[string]string) (*http.Response, error) {
	var bodyReader io.Reader
	if body != "" {
		bodyReader = strings.NewReader(body)
	}

	req, err := http.NewRequest(method, path, bodyReader)
	if err != nil {
		return nil, err
	}

	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	return app.Test(req, -1)
}

// doClientRequest performs a request with an explicit client identity, so
// rate-limit state never bleeds between tests.
func doClientRequest(t *testing.T, app *fiber.App, method, path, body, clientID string) (*http.Response, error) {
	t.Helper()
	return doRequest(app, method, path, body, map[string]string{
		"X-User-Id": clientID,
	})
}

// readBody reads and returns the response body as a string.
func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read response body: %v", err)
	}
	return string(b)
}

// parseJSON parses response body into a map.
func parseJSON(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()
	body := readBody(t, resp)
	var result map[string]interface{}
	if err := json.Unmarshal([]byte(body), &result); err != nil {
		t.Fatalf("failed to parse JSON: %v\nbody: %s", err, body)
	}
	return result
}

// assertStatus checks the HTTP status code.
func assertStatus(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		t.Errorf("expected status %d, got %d", expected, resp.StatusCode)
	}
}
