package completion

import (
	"context"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	conversationdomain "github.com/badrx15/creavisionbot/internal/conversation/domain"
)

const (
	defaultAnthropicModel     = "claude-3-5-haiku-latest"
	defaultAnthropicMaxTokens = 500
)

type anthropicBackend struct {
	client anthropic.Client
	opts   Options
}

func NewAnthropic(ctx context.Context, opts Options) (Backend, error) {
	if opts.APIKey == "" {
		return nil, ErrProviderNotConfigured
	}
	if opts.Model == "" {
		opts.Model = defaultAnthropicModel
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = defaultAnthropicMaxTokens
	}

	clientOpts := []option.RequestOption{
		option.WithAPIKey(opts.APIKey),
	}
	if opts.BaseURL != "" {
		clientOpts = append(clientOpts, option.WithBaseURL(opts.BaseURL))
	}
	if opts.HTTPClient != nil {
		clientOpts = append(clientOpts, option.WithHTTPClient(opts.HTTPClient))
	}

	return &anthropicBackend{
		client: anthropic.NewClient(clientOpts...),
		opts:   opts,
	}, nil
}

func (b *anthropicBackend) Provider() string { return ProviderAnthropic }

func (b *anthropicBackend) Complete(ctx context.Context, req Request) (Result, error) {
	system := req.SystemPrompt
	messages := make([]anthropic.MessageParam, 0, len(req.History)+1)
	for _, m := range req.History {
		switch m.Role {
		case conversationdomain.RoleUser:
			messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		case conversationdomain.RoleAssistant:
			messages = append(messages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Content)))
		case conversationdomain.RoleSystem:
			// Messages API has no system role inside the turn list.
			system = strings.TrimSpace(system + "\n" + m.Content)
		}
	}
	messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(req.UserText)))

	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(b.opts.Model),
		MaxTokens:   b.opts.MaxTokens,
		Messages:    messages,
		Temperature: anthropic.Float(b.opts.Temperature),
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}

	msg, err := b.client.Messages.New(ctx, params)
	if err != nil {
		return Result{}, err
	}

	var sb strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	text := strings.TrimSpace(sb.String())
	if text == "" {
		return Result{}, ErrEmptyCompletion
	}
	return Result{Text: text, Tokens: msg.Usage.InputTokens + msg.Usage.OutputTokens}, nil
}
