package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/parleychat/parley/internal/middleware"
	"github.com/parleychat/parley/internal/models"
)

// Client requests chat completions from an agent's configured endpoint.
type Client interface {
	Complete(ctx context.Context, agent *models.Agent, messages []models.ChatMessage, maxTokens int) (string, error)
}

// clientError marks responses that retrying cannot fix.
type clientError struct {
	status int
	body   string
}

func (e *clientError) Error() string {
	return fmt.Sprintf("completion request failed with client error %d: %s", e.status, e.body)
}

// HTTPClient implements Client against OpenAI-compatible endpoints.
// Each agent carries its own base URL, key and model; the client is
// shared across all of them.
type HTTPClient struct {
	httpClient *http.Client
	limiter    middleware.RateLimiter
	metrics    *middleware.Metrics
	logger     *logrus.Logger
}

// NewHTTPClient creates a completion client. limiter may be nil to
// disable per-agent throttling.
func NewHTTPClient(limiter middleware.RateLimiter, metrics *middleware.Metrics, logger *logrus.Logger) *HTTPClient {
	return &HTTPClient{
		httpClient: &http.Client{
			Timeout: 120 * time.Second,
		},
		limiter: limiter,
		metrics: metrics,
		logger:  logger,
	}
}

// Complete sends a completion request for the agent with retry logic.
// Transient failures are retried up to three times with exponential
// backoff; 4xx responses fail immediately.
func (c *HTTPClient) Complete(ctx context.Context, agent *models.Agent, messages []models.ChatMessage, maxTokens int) (string, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx, agent.ID); err != nil {
			c.metrics.RecordRateLimitExceeded(agent.ID)
			return "", fmt.Errorf("rate limit wait for %s: %w", agent.Name, err)
		}
	}

	const maxRetries = 3
	var lastErr error

	for attempt := 1; attempt <= maxRetries; attempt++ {
		response, err := c.completeOnce(ctx, agent, messages, maxTokens, attempt)
		if err == nil {
			return response, nil
		}

		lastErr = err
		var ce *clientError
		if errors.As(err, &ce) {
			return "", err
		}

		c.logger.WithFields(logrus.Fields{
			"attempt": attempt,
			"error":   err.Error(),
			"agent":   agent.Name,
			"model":   agent.Model,
		}).Warn("Completion request failed, retrying...")

		if attempt < maxRetries {
			// Exponential backoff: 2s, 4s, 8s
			waitTime := time.Duration(2<<uint(attempt-1)) * time.Second
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(waitTime):
			}
		}
	}

	return "", fmt.Errorf("all retry attempts failed: %w", lastErr)
}

// completeOnce performs a single request attempt.
func (c *HTTPClient) completeOnce(ctx context.Context, agent *models.Agent, messages []models.ChatMessage, maxTokens int, attempt int) (string, error) {
	reqBody := map[string]interface{}{
		"model":             agent.Model,
		"messages":          messages,
		"max_tokens":        maxTokens,
		"temperature":       0.7,
		"presence_penalty":  0.6,
		"frequency_penalty": 0.5,
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	// Timeout context for this specific attempt
	reqCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	url := fmt.Sprintf("%s/chat/completions", strings.TrimSuffix(agent.Endpoint, "/"))
	req, err := http.NewRequestWithContext(reqCtx, "POST", url, bytes.NewBuffer(jsonData))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if agent.APIKey != "" {
		req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", agent.APIKey))
	}

	c.logger.WithFields(logrus.Fields{
		"agent":   agent.Name,
		"model":   agent.Model,
		"url":     url,
		"attempt": attempt,
	}).Debug("Sending completion request")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.metrics.RecordCompletion(agent.Model, "error", time.Since(start))
		return "", fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		c.metrics.RecordCompletion(agent.Model, "error", time.Since(start))
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		c.metrics.RecordCompletion(agent.Model, "error", time.Since(start))
		c.logger.WithFields(logrus.Fields{
			"status":  resp.StatusCode,
			"body":    string(body),
			"agent":   agent.Name,
			"attempt": attempt,
		}).Error("Completion request failed")

		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			return "", &clientError{status: resp.StatusCode, body: string(body)}
		}
		return "", fmt.Errorf("completion request failed with status %d: %s", resp.StatusCode, string(body))
	}

	var result struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}

	if err := json.Unmarshal(body, &result); err != nil {
		c.metrics.RecordCompletion(agent.Model, "error", time.Since(start))
		return "", fmt.Errorf("failed to parse response: %w", err)
	}

	if result.Error.Message != "" {
		c.metrics.RecordCompletion(agent.Model, "error", time.Since(start))
		return "", fmt.Errorf("completion error: %s", result.Error.Message)
	}

	if len(result.Choices) == 0 || result.Choices[0].Message.Content == "" {
		c.metrics.RecordCompletion(agent.Model, "error", time.Since(start))
		return "", fmt.Errorf("empty completion response")
	}

	c.metrics.RecordCompletion(agent.Model, "success", time.Since(start))
	return result.Choices[0].Message.Content, nil
}
