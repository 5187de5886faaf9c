package completion

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/badrx15/creavisionbot/internal/config"
	obsmetrics "github.com/badrx15/creavisionbot/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Cfg        config.Config
	Log        *zap.Logger
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

// Service routes requests to the configured provider, building its client lazily.
type Service struct {
	cfg        config.CompletionConfig
	log        *zap.Logger
	obsMetrics *obsmetrics.Metrics
	factories  map[string]BackendFactory
	clients    *clientCache[Backend]
}

func NewService(p Params) Completer {
	return newService(p, map[string]BackendFactory{
		ProviderOpenAI:    NewOpenAI,
		ProviderAnthropic: NewAnthropic,
		ProviderGemini:    NewGemini,
	})
}

func newService(p Params, factories map[string]BackendFactory) *Service {
	return &Service{
		cfg:        p.Cfg.Completion,
		log:        p.Log.Named("completion.service"),
		obsMetrics: p.ObsMetrics,
		factories:  factories,
		clients:    newClientCache[Backend](),
	}
}

func (s *Service) Complete(ctx context.Context, req Request) (Result, error) {
	backend, err := s.backend()
	if err != nil {
		return Result{}, err
	}

	start := time.Now()
	result, err := backend.Complete(ctx, req)
	s.obsMetrics.ObserveCompletion(ctx, backend.Provider(), time.Since(start))
	if err != nil {
		s.log.Warn("completion failed",
			zap.String("provider", backend.Provider()),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err),
		)
		return Result{}, fmt.Errorf("%s completion: %w", backend.Provider(), err)
	}

	if result.Tokens <= 0 {
		result.Tokens = EstimateTokens(append(req.texts(), result.Text)...)
	}
	return result, nil
}

func (s *Service) backend() (Backend, error) {
	provider := strings.ToLower(strings.TrimSpace(s.cfg.Provider))
	if provider == "" {
		provider = ProviderOpenAI
	}
	factory, ok := s.factories[provider]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedProvider, provider)
	}

	opts := s.options(provider)
	key := provider + ":" + opts.Model
	return s.clients.GetOrCreate(key, func() (Backend, error) {
		s.log.Debug("creating completion client", zap.String("provider", provider), zap.String("model", opts.Model))
		return factory(context.Background(), opts)
	})
}

func (s *Service) options(provider string) Options {
	opts := Options{
		Model:       s.cfg.Model,
		MaxTokens:   s.cfg.MaxTokens,
		Temperature: s.cfg.Temperature,
	}
	switch provider {
	case ProviderOpenAI:
		opts.APIKey = s.cfg.OpenAIAPIKey
		opts.BaseURL = s.cfg.OpenAIBaseURL
	case ProviderAnthropic:
		opts.APIKey = s.cfg.AnthropicAPIKey
	case ProviderGemini:
		opts.APIKey = s.cfg.GeminiAPIKey
	}
	return opts
}
