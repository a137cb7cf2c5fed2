// Package llm provides the SummaryProvider abstraction the analysis stage
// uses to generate an architecture summary: an opaque OpenAI-compatible
// text-completion client with a primary/fallback orchestration and a
// deterministic template used when no provider is configured or every
// provider call fails.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// SummaryProvider is a single named text-completion backend.
type SummaryProvider interface {
	Name() string
	Complete(ctx context.Context, prompt string, timeout time.Duration) (string, error)
}

// chatCompletionProvider implements SummaryProvider against any
// OpenAI-compatible /chat/completions endpoint (OpenRouter, Groq, ...).
type chatCompletionProvider struct {
	name    string
	baseURL string
	apiKey  string
	model   string
	client  *http.Client
}

// NewOpenRouterProvider builds a provider against OpenRouter's chat completions API.
func NewOpenRouterProvider(baseURL, apiKey, model string) SummaryProvider {
	return &chatCompletionProvider{name: "openrouter", baseURL: baseURL, apiKey: apiKey, model: model, client: &http.Client{}}
}

// NewGroqProvider builds a provider against Groq's OpenAI-compatible API.
func NewGroqProvider(baseURL, apiKey, model string) SummaryProvider {
	return &chatCompletionProvider{name: "groq", baseURL: baseURL, apiKey: apiKey, model: model, client: &http.Client{}}
}

func (p *chatCompletionProvider) Name() string { return p.name }

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// Complete sends a single chat-completion request and returns the first
// choice's message content.
func (p *chatCompletionProvider) Complete(ctx context.Context, prompt string, timeout time.Duration) (string, error) {
	if p.apiKey == "" {
		return "", fmt.Errorf("%s: no api key configured", p.name)
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	body, err := json.Marshal(chatRequest{
		Model: p.model,
		Messages: []chatMessage{
			{Role: "system", Content: "You summarize repository architecture for developers."},
			{Role: "user", Content: prompt},
		},
		Temperature: 0.2,
		MaxTokens:   220,
	})
	if err != nil {
		return "", fmt.Errorf("%s: encode request: %w", p.name, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("%s: build request: %w", p.name, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%s: request failed: %w", p.name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return "", fmt.Errorf("%s: unexpected status %d", p.name, resp.StatusCode)
	}

	var parsed chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("%s: decode response: %w", p.name, err)
	}
	if len(parsed.Choices) == 0 || parsed.Choices[0].Message.Content == "" {
		return "", fmt.Errorf("%s: empty completion", p.name)
	}
	return parsed.Choices[0].Message.Content, nil
}
