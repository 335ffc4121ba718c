package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/mchmarny/pulse/pkg/config"
	"github.com/mchmarny/pulse/pkg/net"
)

const completionsPath = "/v1/chat/completions"

var (
	ErrMissingKey = errors.New("chat API key not set")
	ErrNoChoices  = errors.New("model returned no choices")
)

// Message is one chat turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type completionRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Temperature float64   `json:"temperature"`
}

type completionResponse struct {
	Choices []struct {
		Message Message `json:"message"`
	} `json:"choices"`
}

// Client calls an OpenAI-compatible chat completions endpoint.
type Client struct {
	http        *http.Client
	url         string
	model       string
	maxTokens   int
	temperature float64
}

// New creates a client authorized with the configured API key.
func New(ctx context.Context, cfg config.ChatConfig) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, ErrMissingKey
	}
	hc := net.GetOAuthClient(ctx, cfg.APIKey)
	if cfg.Timeout > 0 {
		hc.Timeout = cfg.Timeout
	}
	return &Client{
		http:        hc,
		url:         strings.TrimRight(cfg.BaseURL, "/") + completionsPath,
		model:       cfg.Model,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
	}, nil
}

// Complete sends a system prompt and one user message and returns the
// first choice.
func (c *Client) Complete(ctx context.Context, system, user string) (string, error) {
	req := &completionRequest{
		Model: c.model,
		Messages: []Message{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		MaxTokens:   c.maxTokens,
		Temperature: c.temperature,
	}

	var resp completionResponse
	if err := net.PostJSON(ctx, c.http, c.url, req, &resp); err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrNoChoices
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}
