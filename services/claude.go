package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"whatsapp-bot/models"
)

const (
	claudeAPIURL = "https://api.anthropic.com/v1/messages"
	voyageAPIURL = "https://api.voyageai.com/v1/embeddings"
)

// ErrModelExhausted is returned after every completion attempt failed; the
// caller substitutes a templated apology instead of surfacing the error.
var ErrModelExhausted = errors.New("model call failed after all attempts")

// ClaudeRequest represents the request to Claude API
type ClaudeRequest struct {
	Model     string    `json:"model"`
	MaxTokens int       `json:"max_tokens"`
	Messages  []Message `json:"messages"`
	System    string    `json:"system,omitempty"`
}

// Message represents a message in the conversation
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ContentBlock represents a content block in Claude's response
type ContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// ClaudeResponse represents the response from Claude API
type ClaudeResponse struct {
	ID         string         `json:"id"`
	Type       string         `json:"type"`
	Role       string         `json:"role"`
	Content    []ContentBlock `json:"content"`
	Model      string         `json:"model"`
	StopReason string         `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// ModelClient calls the language model provider with bounded retries.
type ModelClient struct {
	attempts   int
	timeout    time.Duration
	httpClient *http.Client
}

// NewModelClient creates a client. Each attempt gets its own timeout; on
// exhaustion ErrModelExhausted is returned.
func NewModelClient(attempts int, timeout time.Duration) *ModelClient {
	if attempts <= 0 {
		attempts = 3
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &ModelClient{
		attempts:   attempts,
		timeout:    timeout,
		httpClient: &http.Client{},
	}
}

// Complete requests a completion for the assembled prompt using the tenant's
// model configuration. Attempts are retried with exponential backoff.
func (c *ModelClient) Complete(ctx context.Context, tenant *models.Tenant, prompt string) (string, error) {
	// Test mode: if API key is "TEST_MODE", return a mock response
	if tenant.ClaudeAPIKey == "TEST_MODE" {
		slog.Info("Running in TEST_MODE - returning mock response")
		return "TEST RESPONSE: mensagem recebida. Esta é uma resposta de teste.", nil
	}

	if tenant.ClaudeAPIKey == "" {
		return "", fmt.Errorf("Claude API key not configured for tenant %s", tenant.TenantID)
	}

	maxTokens := tenant.MaxTokens
	if maxTokens == 0 {
		maxTokens = 1024
	}

	requestBody := ClaudeRequest{
		Model:     tenant.ClaudeModel,
		MaxTokens: maxTokens,
		Messages: []Message{
			{Role: "user", Content: prompt},
		},
	}

	jsonData, err := json.Marshal(requestBody)
	if err != nil {
		return "", err
	}

	var lastErr error
	backoff := time.Second

	for attempt := 1; attempt <= c.attempts; attempt++ {
		text, err := c.doCompletion(ctx, tenant.ClaudeAPIKey, jsonData)
		if err == nil {
			return text, nil
		}
		lastErr = err

		slog.Warn("Claude completion attempt failed",
			"attempt", attempt,
			"maxAttempts", c.attempts,
			"tenantID", tenant.TenantID,
			"error", err)

		if attempt < c.attempts {
			select {
			case <-time.After(backoff):
				backoff *= 2
			case <-ctx.Done():
				return "", fmt.Errorf("%w: %v", ErrModelExhausted, ctx.Err())
			}
		}
	}

	return "", fmt.Errorf("%w: %v", ErrModelExhausted, lastErr)
}

func (c *ModelClient) doCompletion(ctx context.Context, apiKey string, jsonData []byte) (string, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(attemptCtx, "POST", claudeAPIURL, bytes.NewBuffer(jsonData))
	if err != nil {
		return "", err
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", apiKey)
	req.Header.Set("anthropic-version", "2023-06-01")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if os.IsTimeout(err) || strings.Contains(err.Error(), "deadline exceeded") {
			return "", fmt.Errorf("Claude API timeout: %w", err)
		}
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}

	if resp.StatusCode != http.StatusOK {
		slog.Error("Claude API error", "status", resp.StatusCode, "body", string(body))
		return "", fmt.Errorf("Claude API error: %s", resp.Status)
	}

	var claudeResp ClaudeResponse
	if err := json.Unmarshal(body, &claudeResp); err != nil {
		return "", err
	}

	for _, block := range claudeResp.Content {
		if block.Type == "text" && block.Text != "" {
			slog.Info("Claude response generated",
				"inputTokens", claudeResp.Usage.InputTokens,
				"outputTokens", claudeResp.Usage.OutputTokens)
			return block.Text, nil
		}
	}

	return "", fmt.Errorf("no response content from Claude")
}

// embeddingRequest is the Voyage-style embeddings payload.
type embeddingRequest struct {
	Input []string `json:"input"`
	Model string   `json:"model"`
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float64 `json:"embedding"`
	} `json:"data"`
}

// Embed converts text into a vector, for callers that enrich catalog
// matching. Fallible and timeout-bound like Complete; a single attempt.
func (c *ModelClient) Embed(ctx context.Context, apiKey, model, text string) ([]float64, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("embedding API key not configured")
	}

	requestBody := embeddingRequest{Input: []string{text}, Model: model}
	jsonData, err := json.Marshal(requestBody)
	if err != nil {
		return nil, err
	}

	attemptCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(attemptCtx, "POST", voyageAPIURL, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, err
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("embedding API error %d: %s", resp.StatusCode, string(body))
	}

	var embResp embeddingResponse
	if err := json.NewDecoder(resp.Body).Decode(&embResp); err != nil {
		return nil, err
	}

	if len(embResp.Data) == 0 {
		return nil, fmt.Errorf("no embedding returned")
	}

	return embResp.Data[0].Embedding, nil
}
