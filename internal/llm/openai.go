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

	"ainotebook/internal/logging"
)

// maxErrorBody bounds how much of a failed response is read.
const maxErrorBody = 64 * 1024

// ErrEmptyResponse is returned when a successful response carries no
// message content.
var ErrEmptyResponse = errors.New("llm: response has no message content")

// StatusError is returned when the provider answers with a non-2xx status.
type StatusError struct {
	StatusCode int
	Message    string // error.message from the response body, if any
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("llm: provider returned status %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("llm: provider returned status %d", e.StatusCode)
}

// Client talks to OpenAI-compatible chat completion endpoints.
type Client struct {
	client *http.Client
	logger *logging.Logger
}

// NewClient creates a client. A nil httpClient uses a default one; per-call
// deadlines come from the timeout passed to Complete.
func NewClient(httpClient *http.Client, logger *logging.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Client{
		client: httpClient,
		logger: logger,
	}
}

// Complete posts req to {BaseURL}/chat/completions and returns
// choices[0].message.content. A non-2xx answer yields *StatusError.
func (c *Client) Complete(ctx context.Context, ep Endpoint, req ChatRequest, timeout time.Duration) (string, error) {
	logger := c.logger.WithFields(map[string]interface{}{
		"model":         req.Model,
		"operation":     "complete",
		"message_count": len(req.Messages),
	})
	logger.Debug("starting chat completion request")

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	start := time.Now()
	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("llm: failed to marshal chat request: %w", err)
	}

	url := strings.TrimRight(ep.BaseURL, "/") + "/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		logger.WithContext("error", err.Error()).Error("failed to create chat request")
		return "", fmt.Errorf("llm: failed to create chat request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+ep.APIKey)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"error":      err.Error(),
			"latency_ms": time.Since(start).Milliseconds(),
		}).Error("chat request failed")
		return "", fmt.Errorf("llm: chat request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		logger.WithFields(map[string]interface{}{
			"status":     resp.StatusCode,
			"latency_ms": time.Since(start).Milliseconds(),
		}).Error("chat returned non-OK status")
		return "", &StatusError{StatusCode: resp.StatusCode, Message: errorMessage(bodyBytes)}
	}

	var result struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		logger.WithFields(map[string]interface{}{
			"error":      err.Error(),
			"latency_ms": time.Since(start).Milliseconds(),
		}).Error("failed to decode chat response")
		return "", fmt.Errorf("llm: failed to decode chat response: %w", err)
	}
	if len(result.Choices) == 0 || result.Choices[0].Message.Content == "" {
		logger.WithContext("latency_ms", time.Since(start).Milliseconds()).Error("received empty completion")
		return "", ErrEmptyResponse
	}

	content := result.Choices[0].Message.Content
	logger.WithFields(map[string]interface{}{
		"latency_ms":      time.Since(start).Milliseconds(),
		"response_length": len(content),
	}).Debug("chat completion finished")
	return content, nil
}

// errorMessage extracts error.message from an OpenAI-style error body.
func errorMessage(body []byte) string {
	var payload struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return ""
	}
	return payload.Error.Message
}
