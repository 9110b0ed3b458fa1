package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ainotebook/internal/apperr"
	"ainotebook/internal/llm"
	"ainotebook/internal/logging"
	"ainotebook/internal/store"
)

type call struct {
	ep      llm.Endpoint
	req     llm.ChatRequest
	timeout time.Duration
}

type fakeCompleter struct {
	mu    sync.Mutex
	calls []call
	reply string
	err   error
}

func (f *fakeCompleter) Complete(ctx context.Context, ep llm.Endpoint, req llm.ChatRequest, timeout time.Duration) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call{ep, req, timeout})
	return f.reply, f.err
}

type fakeNotes map[string]store.Note

func (f fakeNotes) GetNote(ctx context.Context, userID, id string) (store.Note, error) {
	n, ok := f[id]
	if !ok || n.UserID != userID {
		return store.Note{}, apperr.NotFound("note not found")
	}
	return n, nil
}

func testLogger() *logging.Logger {
	return logging.NewLogger("chat", logging.DEBUG, io.Discard)
}

func newTestService(t *testing.T, client llm.Completer, opts Options) (*Service, store.Collection[store.APIConfig]) {
	t.Helper()
	configs := store.NewMemoryCollection[store.APIConfig](nil)
	notes := fakeNotes{
		"7": {ID: "7", Title: "Trip", ContentText: "Flight at 9am", UserID: "u1"},
	}
	return NewService(configs, client, notes, NewMetrics(prometheus.NewRegistry()), opts, testLogger()), configs
}

func addConfig(t *testing.T, s *Service, userID, name, baseURL string, models ...string) store.APIConfig {
	t.Helper()
	cfg, err := s.CreateConfig(context.Background(), userID, CreateConfigInput{
		Name: name, BaseURL: baseURL, APIKey: "sk-" + name + "-1234", Models: models,
	})
	require.NoError(t, err)
	return cfg
}

func history(n int) []llm.Message {
	out := make([]llm.Message, n)
	for i := range out {
		out[i] = llm.Message{Role: "user", Content: fmt.Sprintf("m%d", i)}
	}
	return out
}

func TestSendMessage_UsesFirstMatchingConfig(t *testing.T) {
	fc := &fakeCompleter{reply: "hello back"}
	s, _ := newTestService(t, fc, DefaultOptions())
	ctx := context.Background()

	addConfig(t, s, "u1", "moonshot", "https://api.moonshot.cn/v1", "moonshot-v1-8k")
	addConfig(t, s, "u1", "openai", "https://api.openai.com/v1", "gpt-4", "gpt-4o")
	addConfig(t, s, "u1", "backup", "https://backup.example.com/v1", "gpt-4")

	reply, err := s.SendMessage(ctx, "u1", SendMessageInput{Message: "hi", Model: "gpt-4", History: history(15)})
	require.NoError(t, err)
	assert.Equal(t, Reply{Content: "hello back", Model: "gpt-4"}, reply)

	require.Len(t, fc.calls, 1)
	c := fc.calls[0]
	assert.Equal(t, "https://api.openai.com/v1", c.ep.BaseURL)
	assert.Equal(t, "sk-openai-1234", c.ep.APIKey)
	assert.Equal(t, 30*time.Second, c.timeout)
	assert.Equal(t, 2000, c.req.MaxTokens)
	assert.InDelta(t, 0.7, *c.req.Temperature, 1e-9)
	assert.False(t, *c.req.Stream)

	require.Len(t, c.req.Messages, 11)
	assert.Equal(t, "m5", c.req.Messages[0].Content, "only the last 10 history entries")
	assert.Equal(t, llm.Message{Role: "user", Content: "hi"}, c.req.Messages[10])
}

func TestSendMessage_NoMatchingConfigMakesNoCall(t *testing.T) {
	fc := &fakeCompleter{reply: "x"}
	s, _ := newTestService(t, fc, DefaultOptions())
	addConfig(t, s, "u2", "openai", "https://api.openai.com/v1", "gpt-4")

	_, err := s.SendMessage(context.Background(), "u1", SendMessageInput{Message: "hi", Model: "gpt-4"})
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
	assert.Empty(t, fc.calls)
}

func TestSendMessage_Validation(t *testing.T) {
	fc := &fakeCompleter{}
	s, _ := newTestService(t, fc, DefaultOptions())

	_, err := s.SendMessage(context.Background(), "u1", SendMessageInput{Model: "gpt-4"})
	assert.EqualError(t, err, "message and model are required")

	_, err = s.SendMessage(context.Background(), "u1", SendMessageInput{Message: "hi", Model: "gpt-4", History: []llm.Message{{Role: "tool"}}})
	assert.True(t, apperr.Is(err, apperr.KindValidation))
}

func TestSendMessage_UpstreamErrorMapping(t *testing.T) {
	tests := []struct {
		err error
		msg string
	}{
		{&llm.StatusError{StatusCode: 401}, "invalid or expired API key"},
		{&llm.StatusError{StatusCode: 429}, "API rate limit exceeded, please try again later"},
		{&llm.StatusError{StatusCode: 400, Message: "context too long"}, "bad request: context too long"},
		{&llm.StatusError{StatusCode: 400}, "bad request: unknown error"},
		{&llm.StatusError{StatusCode: 503}, "AI service call failed, please check the network connection and API configuration"},
		{llm.ErrEmptyResponse, "AI service call failed, please check the network connection and API configuration"},
		{errors.New("dial tcp: refused"), "AI service call failed, please check the network connection and API configuration"},
	}
	for _, tt := range tests {
		t.Run(tt.msg, func(t *testing.T) {
			s, _ := newTestService(t, &fakeCompleter{err: tt.err}, DefaultOptions())
			addConfig(t, s, "u1", "openai", "https://api.openai.com/v1", "gpt-4")

			_, err := s.SendMessage(context.Background(), "u1", SendMessageInput{Message: "hi", Model: "gpt-4"})
			require.Error(t, err)
			assert.True(t, apperr.Is(err, apperr.KindUpstream))
			var ae *apperr.Error
			require.True(t, errors.As(err, &ae))
			assert.Equal(t, tt.msg, ae.Message)
		})
	}
}

func TestSendMessage_RateLimited(t *testing.T) {
	fc := &fakeCompleter{reply: "ok"}
	opts := DefaultOptions()
	opts.RatePerMinute = 1
	opts.Burst = 2
	s, _ := newTestService(t, fc, opts)
	addConfig(t, s, "u1", "openai", "https://api.openai.com/v1", "gpt-4")
	addConfig(t, s, "u2", "openai", "https://api.openai.com/v1", "gpt-4")
	ctx := context.Background()
	in := SendMessageInput{Message: "hi", Model: "gpt-4"}

	for i := 0; i < 2; i++ {
		_, err := s.SendMessage(ctx, "u1", in)
		require.NoError(t, err)
	}
	_, err := s.SendMessage(ctx, "u1", in)
	assert.True(t, apperr.Is(err, apperr.KindRateLimited))
	assert.Len(t, fc.calls, 2)

	_, err = s.SendMessage(ctx, "u2", in)
	assert.NoError(t, err, "limits are per user")

	assert.Equal(t, 1.0, testutil.ToFloat64(s.metrics.RequestsTotal.WithLabelValues(outcomeRateLimited)))
	assert.Equal(t, 3.0, testutil.ToFloat64(s.metrics.RequestsTotal.WithLabelValues(outcomeOK)))
}

func TestSendMessage_UnknownNoteSpendsNoQuota(t *testing.T) {
	fc := &fakeCompleter{reply: "ok"}
	opts := DefaultOptions()
	opts.RatePerMinute = 1
	opts.Burst = 1
	s, _ := newTestService(t, fc, opts)
	addConfig(t, s, "u1", "openai", "https://api.openai.com/v1", "gpt-4")
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := s.SendMessage(ctx, "u1", SendMessageInput{Message: "hi", Model: "gpt-4", NoteIDs: []string{"missing"}})
		assert.True(t, apperr.Is(err, apperr.KindNotFound))
	}
	_, err := s.SendMessage(ctx, "u1", SendMessageInput{Message: "hi", Model: "gpt-4"})
	require.NoError(t, err)
	assert.Len(t, fc.calls, 1)
	assert.Equal(t, 0.0, testutil.ToFloat64(s.metrics.RequestsTotal.WithLabelValues(outcomeRateLimited)))
}

func TestUserLimiter_PrunesIdleBuckets(t *testing.T) {
	l := newUserLimiter(60, 2)
	start := time.Now()

	for i := 0; i < 50; i++ {
		assert.True(t, l.allowAt(fmt.Sprintf("u%d", i), start))
	}
	assert.True(t, l.allowAt("busy", start))
	assert.True(t, l.allowAt("busy", start))
	assert.False(t, l.allowAt("busy", start))
	assert.Len(t, l.limiters, 51)

	later := start.Add(l.idle)
	assert.True(t, l.allowAt("busy", later), "refilled bucket")
	assert.Len(t, l.limiters, 1, "idle buckets are dropped")

	var nilLimiter *userLimiter
	assert.True(t, nilLimiter.Allow("anyone"))
}

func TestSendMessage_NoteContext(t *testing.T) {
	fc := &fakeCompleter{reply: "9am"}
	s, _ := newTestService(t, fc, DefaultOptions())
	addConfig(t, s, "u1", "openai", "https://api.openai.com/v1", "gpt-4")
	ctx := context.Background()

	_, err := s.SendMessage(ctx, "u1", SendMessageInput{Message: "when is my flight?", Model: "gpt-4", NoteIDs: []string{"7"}})
	require.NoError(t, err)
	msgs := fc.calls[0].req.Messages
	require.Len(t, msgs, 2)
	assert.Equal(t, "system", msgs[0].Role)
	assert.Contains(t, msgs[0].Content, "[1] Trip\nFlight at 9am")

	_, err = s.SendMessage(ctx, "u1", SendMessageInput{Message: "x", Model: "gpt-4", NoteIDs: []string{"missing"}})
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}

func TestAvailableModels(t *testing.T) {
	s, _ := newTestService(t, &fakeCompleter{}, DefaultOptions())
	ctx := context.Background()

	models, err := s.AvailableModels(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, []Model{DemoModel}, models)

	addConfig(t, s, "u1", "openai", "https://api.openai.com/v1", "gpt-4", "my-finetune")
	addConfig(t, s, "u1", "kimi", "https://api.moonshot.cn/v1", "moonshot-v1-8k", "gpt-4")

	models, err = s.AvailableModels(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, models, 3)
	assert.Equal(t, Model{ID: "gpt-4", Name: "GPT-4", Provider: "OpenAI", Description: "Stronger reasoning"}, models[0])
	assert.Equal(t, Model{ID: "my-finetune", Name: "my-finetune", Provider: "OpenAI", Description: "Custom model"}, models[1])
	assert.Equal(t, "Kimi 8K", models[2].Name)
	assert.Equal(t, "Moonshot", models[2].Provider)
}

func TestProviderFromURL(t *testing.T) {
	tests := map[string]string{
		"https://api.openai.com/v1":                         "OpenAI",
		"https://api.anthropic.com/v1":                      "Anthropic",
		"https://generativelanguage.googleapis.com/v1beta":  "Google",
		"https://api-inference.huggingface.co/v1":           "Hugging Face",
		"https://api.together.ai/v1":                        "Together AI",
		"https://api.replicate.com/v1":                      "Replicate",
		"https://api.deepseek.com/v1":                       "Deepseek",
		"http://localhost:11434/v1":                         "Custom",
		"not a url":                                         "Custom",
	}
	for in, want := range tests {
		assert.Equal(t, want, ProviderFromURL(in), in)
	}
}

func TestTestConfig(t *testing.T) {
	fc := &fakeCompleter{reply: "hi"}
	s, _ := newTestService(t, fc, DefaultOptions())
	ctx := context.Background()

	assert.True(t, s.TestConfig(ctx, TestConfigInput{BaseURL: "https://api.openai.com/v1", APIKey: "k", Model: "gpt-4"}))
	require.Len(t, fc.calls, 1)
	assert.Equal(t, 10, fc.calls[0].req.MaxTokens)
	assert.Equal(t, 10*time.Second, fc.calls[0].timeout)
	assert.Equal(t, []llm.Message{{Role: "user", Content: "Hello"}}, fc.calls[0].req.Messages)
	assert.Nil(t, fc.calls[0].req.Temperature)

	fc.err = &llm.StatusError{StatusCode: 401}
	assert.False(t, s.TestConfig(ctx, TestConfigInput{BaseURL: "https://api.openai.com/v1", APIKey: "k", Model: "gpt-4"}))
	assert.False(t, s.TestConfig(ctx, TestConfigInput{BaseURL: "ftp://x", APIKey: "k", Model: "gpt-4"}))
}

func TestSendMessage_AgainstHTTPUpstream(t *testing.T) {
	var calls atomic.Int32
	var auth atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		auth.Store(r.Header.Get("Authorization"))
		var body map[string]interface{}
		json.NewDecoder(r.Body).Decode(&body)
		w.Write([]byte(`{"choices":[{"message":{"content":"pong"}}]}`))
	}))
	defer srv.Close()

	s, _ := newTestService(t, llm.NewClient(srv.Client(), testLogger()), DefaultOptions())
	cfg := addConfig(t, s, "u1", "local", srv.URL, "gpt-4")
	require.NotEmpty(t, cfg.ID)

	reply, err := s.SendMessage(context.Background(), "u1", SendMessageInput{Message: "ping", Model: "gpt-4"})
	require.NoError(t, err)
	assert.Equal(t, "pong", reply.Content)
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, "Bearer sk-local-1234", auth.Load())
}
