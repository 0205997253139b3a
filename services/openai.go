package services

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

	"github.com/LaithMimi/blendarchatbot2/config"
	"github.com/LaithMimi/blendarchatbot2/metrics"
	"github.com/LaithMimi/blendarchatbot2/pkg/logger"
)

// slowModelCallMs is the duration above which a successful model call is logged
const slowModelCallMs = 5000

// ChatModel produces a tutor answer for a system prompt and user question
type ChatModel interface {
	Complete(ctx context.Context, systemPrompt, userText string) (string, error)
}

// OpenAIMessage is a chat message in OpenAI format
type OpenAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// OpenAIRequest is the /chat/completions request body
type OpenAIRequest struct {
	Model       string          `json:"model"`
	Messages    []OpenAIMessage `json:"messages"`
	Temperature float64         `json:"temperature"`
	MaxTokens   int             `json:"max_tokens,omitempty"`
}

// OpenAIResponse is the non-streaming /chat/completions response
type OpenAIResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Index        int           `json:"index"`
		Message      OpenAIMessage `json:"message"`
		FinishReason string        `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage,omitempty"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// OpenAIClient calls an OpenAI-compatible chat completions endpoint. Each
// call is bounded by the configured timeout and is never retried.
type OpenAIClient struct {
	apiKey      string
	baseURL     string
	model       string
	temperature float64
	maxTokens   int
	httpClient  *http.Client
	breaker     *CircuitBreaker
	metrics     *metrics.Metrics
	log         *logger.Logger
}

// NewOpenAIClient creates a client from config. m may be nil.
func NewOpenAIClient(cfg config.OpenAIConfig, m *metrics.Metrics) *OpenAIClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &OpenAIClient{
		apiKey:      cfg.APIKey,
		baseURL:     strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        20,
				MaxIdleConnsPerHost: 5,
				IdleConnTimeout:     90 * time.Second,
				TLSHandshakeTimeout: 10 * time.Second,
			},
		},
		breaker: NewCircuitBreaker(5, 30*time.Second, 1),
		metrics: m,
		log:     logger.GetLogger("openai"),
	}
}

// WithHTTPClient replaces the underlying HTTP client
func (c *OpenAIClient) WithHTTPClient(hc *http.Client) *OpenAIClient {
	c.httpClient = hc
	return c
}

// Configured reports whether an API key is set
func (c *OpenAIClient) Configured() bool {
	return c != nil && c.apiKey != ""
}

// Complete sends the system prompt and user text and returns the answer
func (c *OpenAIClient) Complete(ctx context.Context, systemPrompt, userText string) (string, error) {
	if !c.Configured() {
		return "", fmt.Errorf("%w: model client not configured", ErrUpstreamUnavailable)
	}
	if !c.breaker.Allow() {
		return "", fmt.Errorf("%w: %v", ErrUpstreamUnavailable, ErrCircuitOpen)
	}

	op := c.log.StartOperation("model completion", slowModelCallMs)
	start := time.Now()
	answer, err := c.complete(ctx, systemPrompt, userText)
	c.metrics.ObserveModel(err, time.Since(start))
	if err != nil {
		op.CompleteWithError(ctx, err)
		c.breaker.OnFailure()
		return "", fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}
	c.breaker.OnSuccess()
	op.Complete(ctx)
	return answer, nil
}

func (c *OpenAIClient) complete(ctx context.Context, systemPrompt, userText string) (string, error) {
	reqBody := OpenAIRequest{
		Model: c.model,
		Messages: []OpenAIMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userText},
		},
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("error marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(jsonData))
	if err != nil {
		return "", fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("error calling OpenAI API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("OpenAI API returned status %d: %s", resp.StatusCode, string(respBody))
	}

	var response OpenAIResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return "", fmt.Errorf("error decoding response: %w", err)
	}
	if response.Error != nil {
		return "", errors.New(response.Error.Message)
	}
	if len(response.Choices) == 0 {
		return "", errors.New("no choices in response")
	}

	answer := strings.TrimSpace(response.Choices[0].Message.Content)
	if answer == "" {
		return "", errors.New("empty answer in response")
	}
	return answer, nil
}
