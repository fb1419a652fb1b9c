// Package llm is a small client for OpenAI-compatible chat-completions endpoints.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"
)

// ErrNotConfigured is returned when no API key is set
var ErrNotConfigured = errors.New("llm: not configured")

// Message roles
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one chat message
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Options tune a single completion
type Options struct {
	Temperature float64
	MaxTokens   int
	JSON        bool // ask for a json_object response
}

// Config holds client settings
type Config struct {
	APIKey      string
	BaseURL     string
	Model       string
	Timeout     time.Duration
	MaxRetries  int
	Temperature float64
}

// Client talks to a /v1/chat/completions endpoint
type Client struct {
	apiKey      string
	baseURL     string
	model       string
	maxRetries  int
	temperature float64
	backoff     time.Duration
	client      *http.Client
}

// New creates a client. An empty API key yields a client that reports ErrNotConfigured.
func New(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com"
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.MaxRetries < 1 {
		cfg.MaxRetries = 1
	}

	return &Client{
		apiKey:      cfg.APIKey,
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		model:       cfg.Model,
		maxRetries:  cfg.MaxRetries,
		temperature: cfg.Temperature,
		backoff:     time.Second,
		client:      &http.Client{Timeout: cfg.Timeout},
	}
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []Message       `json:"messages"`
	Temperature    float64         `json:"temperature"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message      Message `json:"message"`
		FinishReason string  `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		TotalTokens int `json:"total_tokens"`
	} `json:"usage"`
}

// StatusError is a non-200 response from the endpoint
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("llm: unexpected status %d: %s", e.StatusCode, e.Body)
}

// IsConfigured reports whether an API key is set
func (c *Client) IsConfigured() bool {
	return c != nil && c.apiKey != ""
}

// Model returns the configured model name
func (c *Client) Model() string {
	return c.model
}

// Chat sends one completion request without retrying
func (c *Client) Chat(ctx context.Context, messages []Message, opts Options) (string, error) {
	if !c.IsConfigured() {
		return "", ErrNotConfigured
	}

	req := chatRequest{
		Model:       c.model,
		Messages:    messages,
		Temperature: opts.Temperature,
		MaxTokens:   opts.MaxTokens,
	}
	if req.Temperature == 0 {
		req.Temperature = c.temperature
	}
	if opts.JSON {
		req.ResponseFormat = &responseFormat{Type: "json_object"}
	}

	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("encoding request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", &StatusError{StatusCode: resp.StatusCode, Body: truncate(string(respBody), 200)}
	}

	var chatResp chatResponse
	if err := json.Unmarshal(respBody, &chatResp); err != nil {
		return "", fmt.Errorf("decoding response: %w", err)
	}
	if len(chatResp.Choices) == 0 {
		return "", errors.New("llm: response has no choices")
	}

	slog.Debug("llm call succeeded", "model", c.model, "tokens", chatResp.Usage.TotalTokens)

	return chatResp.Choices[0].Message.Content, nil
}

// ChatWithRetry retries transient failures with exponential backoff (1s, 2s, 4s...)
func (c *Client) ChatWithRetry(ctx context.Context, messages []Message, opts Options) (string, error) {
	var lastErr error
	for i := 0; i < c.maxRetries; i++ {
		resp, err := c.Chat(ctx, messages, opts)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		if !isRetryable(err) || i == c.maxRetries-1 {
			break
		}

		backoff := c.backoff << uint(i)
		slog.Warn("llm call failed, retrying", "attempt", i+1, "backoff", backoff, "error", err)

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(backoff):
		}
	}
	if !isRetryable(lastErr) {
		return "", lastErr
	}
	return "", fmt.Errorf("llm: giving up after %d attempts: %w", c.maxRetries, lastErr)
}

// Complete is ChatWithRetry; it satisfies the consumer-side completer interfaces
func (c *Client) Complete(ctx context.Context, messages []Message, opts Options) (string, error) {
	return c.ChatWithRetry(ctx, messages, opts)
}

// isRetryable reports network timeouts, 429 and 5xx responses
func isRetryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, ErrNotConfigured) {
		return false
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode == http.StatusTooManyRequests || statusErr.StatusCode >= 500
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}

// CleanJSON strips markdown fences and surrounding prose from a JSON object response
func CleanJSON(response string) string {
	response = strings.TrimSpace(response)

	if strings.Contains(response, "```") {
		start := strings.Index(response, "```")
		if nl := strings.Index(response[start:], "\n"); nl != -1 {
			response = response[start+nl+1:]
		}
		if end := strings.LastIndex(response, "```"); end != -1 {
			response = response[:end]
		}
	}

	if i := strings.Index(response, "{"); i > 0 {
		response = response[i:]
	}
	if i := strings.LastIndex(response, "}"); i != -1 && i < len(response)-1 {
		response = response[:i+1]
	}

	return strings.TrimSpace(response)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
