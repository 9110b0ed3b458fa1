package chat

import (
	"net/url"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Model describes a model offered to the user.
type Model struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Provider    string `json:"provider"`
	Description string `json:"description,omitempty"`
}

// DemoModel is listed when the user has no API configs.
var DemoModel = Model{
	ID:          "demo-model",
	Name:        "Demo Model",
	Provider:    "System",
	Description: "Configure your API in settings to use a real AI model",
}

var modelNames = map[string]string{
	"gpt-3.5-turbo":    "GPT-3.5 Turbo",
	"gpt-4":            "GPT-4",
	"gpt-4-turbo":      "GPT-4 Turbo",
	"gpt-4o":           "GPT-4o",
	"claude-3-haiku":   "Claude 3 Haiku",
	"claude-3-sonnet":  "Claude 3 Sonnet",
	"claude-3-opus":    "Claude 3 Opus",
	"gemini-pro":       "Gemini Pro",
	"llama-2-70b":      "Llama 2 70B",
	"mixtral-8x7b":     "Mixtral 8x7B",
	"moonshot-v1-8k":   "Kimi 8K",
	"moonshot-v1-32k":  "Kimi 32K",
	"moonshot-v1-128k": "Kimi 128K",
}

var modelDescriptions = map[string]string{
	"gpt-3.5-turbo":    "Fast, economical chat model",
	"gpt-4":            "Stronger reasoning",
	"gpt-4-turbo":      "Faster GPT-4",
	"gpt-4o":           "Latest multimodal model",
	"claude-3-haiku":   "Fast, lightweight model",
	"claude-3-sonnet":  "Balanced performance and speed",
	"claude-3-opus":    "Strongest reasoning",
	"gemini-pro":       "Google's advanced model",
	"llama-2-70b":      "Open source large language model",
	"mixtral-8x7b":     "Efficient mixture-of-experts model",
	"moonshot-v1-8k":   "Kimi 8K context model",
	"moonshot-v1-32k":  "Kimi 32K context model",
	"moonshot-v1-128k": "Kimi 128K context model",
}

const customModelDescription = "Custom model"

// DisplayName returns the human readable name of a model id, or the id.
func DisplayName(modelID string) string {
	if name, ok := modelNames[modelID]; ok {
		return name
	}
	return modelID
}

// Description returns a short description of a model id.
func Description(modelID string) string {
	if d, ok := modelDescriptions[modelID]; ok {
		return d
	}
	return customModelDescription
}

var knownProviders = []struct {
	hosts []string
	name  string
}{
	{[]string{"openai.com"}, "OpenAI"},
	{[]string{"anthropic.com"}, "Anthropic"},
	{[]string{"google.com", "googleapis.com"}, "Google"},
	{[]string{"huggingface.co"}, "Hugging Face"},
	{[]string{"together.ai"}, "Together AI"},
	{[]string{"replicate.com"}, "Replicate"},
}

// ProviderFromURL names the provider behind baseURL: a well known vendor,
// otherwise the capitalised second-level domain, otherwise "Custom".
func ProviderFromURL(baseURL string) string {
	for _, p := range knownProviders {
		for _, h := range p.hosts {
			if strings.Contains(baseURL, h) {
				return p.name
			}
		}
	}

	u, err := url.Parse(baseURL)
	if err == nil {
		parts := strings.Split(u.Hostname(), ".")
		if len(parts) >= 2 {
			return capitalize(parts[len(parts)-2])
		}
	}
	return "Custom"
}

// statsProvider is the coarse provider grouping used by config stats.
func statsProvider(baseURL string) string {
	switch {
	case strings.Contains(baseURL, "openai.com"):
		return "OpenAI"
	case strings.Contains(baseURL, "anthropic.com"):
		return "Anthropic"
	case strings.Contains(baseURL, "google.com"):
		return "Google"
	default:
		return "Custom"
	}
}

func capitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}
