package completion

import (
	"context"
	"strings"

	conversationdomain "github.com/badrx15/creavisionbot/internal/conversation/domain"
	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
)

const defaultOpenAIModel = "gpt-3.5-turbo"

type openAIBackend struct {
	client openai.Client
	opts   Options
}

func NewOpenAI(ctx context.Context, opts Options) (Backend, error) {
	if opts.APIKey == "" {
		return nil, ErrProviderNotConfigured
	}
	if opts.Model == "" {
		opts.Model = defaultOpenAIModel
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

	return &openAIBackend{
		client: openai.NewClient(clientOpts...),
		opts:   opts,
	}, nil
}

func (b *openAIBackend) Provider() string { return ProviderOpenAI }

func (b *openAIBackend) Complete(ctx context.Context, req Request) (Result, error) {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.History)+2)
	if req.SystemPrompt != "" {
		messages = append(messages, openai.SystemMessage(req.SystemPrompt))
	}
	for _, m := range req.History {
		switch m.Role {
		case conversationdomain.RoleUser:
			messages = append(messages, openai.UserMessage(m.Content))
		case conversationdomain.RoleAssistant:
			messages = append(messages, openai.AssistantMessage(m.Content))
		case conversationdomain.RoleSystem:
			messages = append(messages, openai.SystemMessage(m.Content))
		}
	}
	messages = append(messages, openai.UserMessage(req.UserText))

	params := openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(b.opts.Model),
		Messages:    messages,
		Temperature: openai.Float(b.opts.Temperature),
	}
	if b.opts.MaxTokens > 0 {
		params.MaxTokens = openai.Int(b.opts.MaxTokens)
	}

	resp, err := b.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return Result{}, err
	}
	if len(resp.Choices) == 0 {
		return Result{}, ErrEmptyCompletion
	}
	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return Result{}, ErrEmptyCompletion
	}
	return Result{Text: text, Tokens: resp.Usage.TotalTokens}, nil
}
