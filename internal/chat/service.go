// Package chat relays chat messages to the OpenAI-compatible providers a
// user has configured and manages those provider configs.
package chat

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ainotebook/internal/apperr"
	"ainotebook/internal/llm"
	"ainotebook/internal/logging"
	"ainotebook/internal/store"
)

// Options tune the outbound calls.
type Options struct {
	Timeout       time.Duration
	TestTimeout   time.Duration
	MaxTokens     int
	Temperature   float64
	HistoryLimit  int
	RatePerMinute int
	Burst         int
}

// DefaultOptions match the provider defaults the frontend expects.
func DefaultOptions() Options {
	return Options{
		Timeout:      30 * time.Second,
		TestTimeout:  10 * time.Second,
		MaxTokens:    2000,
		Temperature:  0.7,
		HistoryLimit: 10,
	}
}

// Service is the chat proxy.
type Service struct {
	configs store.Collection[store.APIConfig]
	client  llm.Completer
	notes   NoteSource
	opts    Options
	limiter *userLimiter
	metrics *Metrics
	logger  *logging.Logger
}

// NewService creates the proxy. notes and metrics may be nil.
func NewService(configs store.Collection[store.APIConfig], client llm.Completer, notes NoteSource, metrics *Metrics, opts Options, logger *logging.Logger) *Service {
	return &Service{
		configs: configs,
		client:  client,
		notes:   notes,
		opts:    opts,
		limiter: newUserLimiter(opts.RatePerMinute, opts.Burst),
		metrics: metrics,
		logger:  logger,
	}
}

// Reply is the assistant's answer.
type Reply struct {
	Content string `json:"content"`
	Model   string `json:"model"`
}

// SendMessage forwards message and the tail of history to the first of the
// user's configs that lists the model.
func (s *Service) SendMessage(ctx context.Context, userID string, in SendMessageInput) (Reply, error) {
	if err := in.Validate(); err != nil {
		return Reply{}, err
	}

	cfg, err := s.configFor(ctx, userID, in.Model)
	if err != nil {
		return Reply{}, err
	}

	messages, err := s.buildMessages(ctx, userID, in)
	if err != nil {
		return Reply{}, err
	}

	if !s.limiter.Allow(userID) {
		s.metrics.observe(outcomeRateLimited, 0)
		return Reply{}, apperr.RateLimited("too many chat requests, please slow down")
	}

	temp := s.opts.Temperature
	stream := false
	req := llm.ChatRequest{
		Model:       in.Model,
		Messages:    messages,
		MaxTokens:   s.opts.MaxTokens,
		Temperature: &temp,
		Stream:      &stream,
	}

	start := time.Now()
	content, err := s.client.Complete(ctx, llm.Endpoint{BaseURL: cfg.BaseURL, APIKey: cfg.APIKey}, req, s.opts.Timeout)
	if err != nil {
		s.metrics.observe(outcomeError, time.Since(start))
		s.logger.WithFields(map[string]interface{}{
			"user_id":    userID,
			"model":      in.Model,
			"config_id":  cfg.ID,
			"latency_ms": time.Since(start).Milliseconds(),
			"error":      err.Error(),
		}).Error("chat completion failed")
		return Reply{}, upstreamError(err)
	}
	s.metrics.observe(outcomeOK, time.Since(start))

	return Reply{Content: content, Model: in.Model}, nil
}

func (s *Service) configFor(ctx context.Context, userID, model string) (store.APIConfig, error) {
	configs, err := s.userConfigs(ctx, userID)
	if err != nil {
		return store.APIConfig{}, err
	}
	for _, c := range configs {
		if c.SupportsModel(model) {
			return c, nil
		}
	}
	return store.APIConfig{}, apperr.NotFound(fmt.Sprintf("no API config supports model %s", model))
}

func (s *Service) buildMessages(ctx context.Context, userID string, in SendMessageInput) ([]llm.Message, error) {
	history := in.History
	if limit := s.opts.HistoryLimit; limit > 0 && len(history) > limit {
		history = history[len(history)-limit:]
	}

	messages := make([]llm.Message, 0, len(history)+2)
	if len(in.NoteIDs) > 0 && s.notes != nil {
		notes := make([]store.Note, 0, len(in.NoteIDs))
		for _, id := range in.NoteIDs {
			n, err := s.notes.GetNote(ctx, userID, id)
			if err != nil {
				return nil, err
			}
			notes = append(notes, n)
		}
		if sys, ok := buildNoteContext(notes); ok {
			messages = append(messages, sys)
		}
	}
	messages = append(messages, history...)
	messages = append(messages, llm.Message{Role: "user", Content: in.Message})
	return messages, nil
}

// upstreamError turns a client failure into the message shown to users.
func upstreamError(err error) error {
	var se *llm.StatusError
	if errors.As(err, &se) {
		switch se.StatusCode {
		case 401:
			return apperr.Upstream("invalid or expired API key", err)
		case 429:
			return apperr.Upstream("API rate limit exceeded, please try again later", err)
		case 400:
			msg := se.Message
			if msg == "" {
				msg = "unknown error"
			}
			return apperr.Upstream("bad request: "+msg, err)
		}
	}
	return apperr.Upstream("AI service call failed, please check the network connection and API configuration", err)
}

// AvailableModels lists the distinct models across the user's configs, or
// DemoModel when there are none.
func (s *Service) AvailableModels(ctx context.Context, userID string) ([]Model, error) {
	configs, err := s.userConfigs(ctx, userID)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	models := make([]Model, 0)
	for _, c := range configs {
		provider := ProviderFromURL(c.BaseURL)
		for _, id := range c.Models {
			if seen[id] {
				continue
			}
			seen[id] = true
			models = append(models, Model{
				ID:          id,
				Name:        DisplayName(id),
				Provider:    provider,
				Description: Description(id),
			})
		}
	}
	if len(models) == 0 {
		return []Model{DemoModel}, nil
	}
	return models, nil
}

// TestConfig sends a tiny request to check that the credentials work. It
// never returns an error; failures are logged and reported as false.
func (s *Service) TestConfig(ctx context.Context, in TestConfigInput) bool {
	if err := in.Validate(); err != nil {
		return false
	}
	req := llm.ChatRequest{
		Model:     in.Model,
		Messages:  []llm.Message{{Role: "user", Content: "Hello"}},
		MaxTokens: 10,
	}
	_, err := s.client.Complete(ctx, llm.Endpoint{BaseURL: in.BaseURL, APIKey: in.APIKey}, req, s.opts.TestTimeout)
	if err != nil && !errors.Is(err, llm.ErrEmptyResponse) {
		s.logger.WithFields(map[string]interface{}{
			"model": in.Model,
			"error": err.Error(),
		}).Warn("API config test failed")
		return false
	}
	return true
}
