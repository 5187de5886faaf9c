package completion

import (
	"context"
	"errors"
	"net/http"
	"unicode/utf8"

	conversationdomain "github.com/badrx15/creavisionbot/internal/conversation/domain"
)

const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderGemini    = "gemini"
)

// Request is one prompt: a system turn, prior history, and the new user text.
type Request struct {
	SystemPrompt string
	History      []conversationdomain.Message
	UserText     string
}

type Result struct {
	Text string
	// Tokens is informational. Providers that omit usage get an estimate.
	Tokens int64
}

// Completer produces one assistant reply.
type Completer interface {
	Complete(ctx context.Context, req Request) (Result, error)
}

// Backend is a provider-specific Completer.
type Backend interface {
	Completer
	Provider() string
}

// Options configures a backend client.
type Options struct {
	APIKey      string
	BaseURL     string
	Model       string
	MaxTokens   int64
	Temperature float64
	HTTPClient  *http.Client
}

type BackendFactory func(ctx context.Context, opts Options) (Backend, error)

var (
	ErrProviderNotConfigured = errors.New("completion_provider_not_configured")
	ErrUnsupportedProvider   = errors.New("completion_provider_unsupported")
	ErrEmptyCompletion       = errors.New("completion_empty")
)

// EstimateTokens approximates one token per four characters.
func EstimateTokens(texts ...string) int64 {
	var chars int
	for _, text := range texts {
		chars += utf8.RuneCountInString(text)
	}
	if chars == 0 {
		return 0
	}
	tokens := int64(chars / 4)
	if tokens == 0 {
		tokens = 1
	}
	return tokens
}

func (r Request) texts() []string {
	out := make([]string, 0, len(r.History)+2)
	out = append(out, r.SystemPrompt)
	for _, m := range r.History {
		out = append(out, m.Content)
	}
	return append(out, r.UserText)
}
