// Package llm talks to an OpenAI-compatible chat-completions API.
package llm

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

	"github.com/guidopia/apiserver/config"
)

// Failure classes surfaced to the handlers. Upstream status codes are
// folded into these so API responses never echo provider error bodies.
var (
	ErrNotConfigured = errors.New("llm api key not configured")
	ErrUnauthorized  = errors.New("llm authentication failed")
	ErrRateLimited   = errors.New("llm rate limit exceeded")
	ErrUnavailable   = errors.New("llm service unavailable")
)

// Message is one chat turn sent to the model.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Completion is the usable part of a chat-completions response.
type Completion struct {
	Content    string
	Model      string
	TokensUsed int
}

// Client is a minimal chat-completions client.
type Client struct {
	httpClient *http.Client
	apiKey     string
	baseURL    string
	model      string
	maxTokens  int
}

// NewClient constructs a Client from config.
func NewClient(cfg config.OpenAIConfig) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 2 * time.Minute},
		apiKey:     cfg.APIKey,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		model:      cfg.Model,
		maxTokens:  cfg.MaxTokens,
	}
}

// Model returns the configured model name.
func (c *Client) Model() string {
	return c.model
}

type completionRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
}

type completionResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message Message `json:"message"`
	} `json:"choices"`
	Usage struct {
		TotalTokens int `json:"total_tokens"`
	} `json:"usage"`
}

// Complete sends the messages to the configured model and returns the
// first choice.
func (c *Client) Complete(ctx context.Context, messages []Message) (Completion, error) {
	return c.complete(ctx, messages, c.maxTokens)
}

// Ping issues a minimal one-token completion to probe key validity.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.complete(ctx, []Message{{Role: "user", Content: "ping"}}, 1)
	if errors.Is(err, ErrRateLimited) {
		// A rate-limited key is still a valid key.
		return nil
	}
	return err
}

func (c *Client) complete(ctx context.Context, messages []Message, maxTokens int) (Completion, error) {
	if strings.TrimSpace(c.apiKey) == "" {
		return Completion{}, ErrNotConfigured
	}
	if len(messages) == 0 {
		return Completion{}, errors.New("llm: no messages provided")
	}

	body, err := json.Marshal(completionRequest{
		Model:       c.model,
		Messages:    messages,
		Temperature: 0.7,
		MaxTokens:   maxTokens,
	})
	if err != nil {
		return Completion{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return Completion{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Completion{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		io.Copy(io.Discard, resp.Body)
		return Completion{}, ErrUnauthorized
	case resp.StatusCode == http.StatusTooManyRequests:
		io.Copy(io.Discard, resp.Body)
		return Completion{}, ErrRateLimited
	case resp.StatusCode >= 500:
		io.Copy(io.Discard, resp.Body)
		return Completion{}, ErrUnavailable
	case resp.StatusCode != http.StatusOK:
		io.Copy(io.Discard, resp.Body)
		return Completion{}, fmt.Errorf("llm: unexpected status %d", resp.StatusCode)
	}

	var parsed completionResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return Completion{}, fmt.Errorf("llm: decode response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return Completion{}, errors.New("llm: empty completion")
	}

	return Completion{
		Content:    parsed.Choices[0].Message.Content,
		Model:      parsed.Model,
		TokensUsed: parsed.Usage.TotalTokens,
	}, nil
}
