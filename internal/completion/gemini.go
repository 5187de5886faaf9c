package completion

import (
	"context"
	"fmt"
	"strings"

	conversationdomain "github.com/badrx15/creavisionbot/internal/conversation/domain"
	"google.golang.org/genai"
)

const defaultGeminiModel = "gemini-2.0-flash"

type geminiBackend struct {
	client *genai.Client
	opts   Options
}

func NewGemini(ctx context.Context, opts Options) (Backend, error) {
	if opts.APIKey == "" {
		return nil, ErrProviderNotConfigured
	}
	if opts.Model == "" {
		opts.Model = defaultGeminiModel
	}

	clientCfg := &genai.ClientConfig{
		APIKey:     opts.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: opts.HTTPClient,
	}
	if opts.BaseURL != "" {
		clientCfg.HTTPOptions = genai.HTTPOptions{BaseURL: opts.BaseURL}
	}
	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}

	return &geminiBackend{client: client, opts: opts}, nil
}

func (b *geminiBackend) Provider() string { return ProviderGemini }

func (b *geminiBackend) Complete(ctx context.Context, req Request) (Result, error) {
	contents := make([]*genai.Content, 0, len(req.History)+1)
	system := req.SystemPrompt
	for _, m := range req.History {
		switch m.Role {
		case conversationdomain.RoleUser:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleUser))
		case conversationdomain.RoleAssistant:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleModel))
		case conversationdomain.RoleSystem:
			system = strings.TrimSpace(system + "\n" + m.Content)
		}
	}
	contents = append(contents, genai.NewContentFromText(req.UserText, genai.RoleUser))

	cfg := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(float32(b.opts.Temperature)),
	}
	if b.opts.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(b.opts.MaxTokens)
	}
	if system != "" {
		cfg.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
	}

	resp, err := b.client.Models.GenerateContent(ctx, b.opts.Model, contents, cfg)
	if err != nil {
		return Result{}, err
	}
	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return Result{}, ErrEmptyCompletion
	}

	var tokens int64
	if resp.UsageMetadata != nil {
		tokens = int64(resp.UsageMetadata.TotalTokenCount)
	}
	return Result{Text: text, Tokens: tokens}, nil
}
