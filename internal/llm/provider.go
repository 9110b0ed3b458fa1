package llm

import (
	"context"
	"time"
)

// Completer sends a chat completion request to an OpenAI-compatible
// endpoint and returns the first choice's message content.
type Completer interface {
	Complete(ctx context.Context, ep Endpoint, req ChatRequest, timeout time.Duration) (string, error)
}

// Endpoint identifies a provider: the base URL that /chat/completions is
// appended to, and the bearer key.
type Endpoint struct {
	BaseURL string
	APIKey  string
}

// Message represents a chat message
type Message struct {
	Role    string `json:"role"` // "system", "user", "assistant"
	Content string `json:"content"`
}

// ChatRequest is the request body of /chat/completions.
type ChatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Temperature *float64  `json:"temperature,omitempty"`
	Stream      *bool     `json:"stream,omitempty"`
}
