package chat

import (
	"net/url"
	"strings"

	"ainotebook/internal/apperr"
	"ainotebook/internal/llm"
)

// SendMessageInput is the body of POST /chat/message.
type SendMessageInput struct {
	Message string        `json:"message"`
	Model   string        `json:"model"`
	History []llm.Message `json:"history"`
	NoteIDs []string      `json:"note_ids"` // notes quoted to the model as context
}

func (in SendMessageInput) Validate() error {
	if strings.TrimSpace(in.Message) == "" || in.Model == "" {
		return apperr.Validation("message and model are required")
	}
	for _, m := range in.History {
		switch m.Role {
		case "user", "assistant", "system":
		default:
			return apperr.Validation("history role must be user, assistant or system")
		}
	}
	return nil
}

// TestConfigInput is the body of POST /chat/configs/test.
type TestConfigInput struct {
	BaseURL string `json:"baseUrl"`
	APIKey  string `json:"apiKey"`
	Model   string `json:"model"`
}

func (in TestConfigInput) Validate() error {
	if in.BaseURL == "" || in.APIKey == "" || in.Model == "" {
		return apperr.Validation("baseUrl, apiKey and model are required")
	}
	return validBaseURL(in.BaseURL)
}

// CreateConfigInput is the body of POST /chat/configs.
type CreateConfigInput struct {
	Name    string   `json:"name"`
	BaseURL string   `json:"baseUrl"`
	APIKey  string   `json:"apiKey"`
	Models  []string `json:"models"`
}

func (in CreateConfigInput) Validate() error {
	if strings.TrimSpace(in.Name) == "" || in.BaseURL == "" || in.APIKey == "" {
		return apperr.Validation("name, baseUrl and apiKey are required")
	}
	return validBaseURL(in.BaseURL)
}

// UpdateConfigInput is the body of PUT /chat/configs/:id. Nil fields are
// unchanged.
type UpdateConfigInput struct {
	Name    *string   `json:"name"`
	BaseURL *string   `json:"baseUrl"`
	APIKey  *string   `json:"apiKey"`
	Models  *[]string `json:"models"`
}

func (in UpdateConfigInput) Validate() error {
	if in.Name != nil && strings.TrimSpace(*in.Name) == "" {
		return apperr.Validation("name cannot be empty")
	}
	if in.APIKey != nil && *in.APIKey == "" {
		return apperr.Validation("apiKey cannot be empty")
	}
	if in.BaseURL != nil {
		return validBaseURL(*in.BaseURL)
	}
	return nil
}

func validBaseURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return apperr.Validation("baseUrl must be an http(s) URL")
	}
	return nil
}
