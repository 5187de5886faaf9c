package adapters

import (
	"strings"
	"sync"

	"github.com/badrx15/creavisionbot/internal/payment/domain"
)

// Registry holds adapter factories and lazily builds one adapter per configured provider.
type Registry struct {
	factories map[string]domain.AdapterFactory
	configs   map[string]domain.AdapterConfig

	mu       sync.Mutex
	adapters map[string]domain.PaymentAdapter
}

func NewRegistry(factories ...domain.AdapterFactory) *Registry {
	registry := &Registry{
		factories: map[string]domain.AdapterFactory{},
		configs:   map[string]domain.AdapterConfig{},
		adapters:  map[string]domain.PaymentAdapter{},
	}
	for _, factory := range factories {
		if factory == nil {
			continue
		}
		provider := normalize(factory.Provider())
		if provider == "" {
			continue
		}
		registry.factories[provider] = factory
	}
	return registry
}

// Configure sets the credentials used when the provider's adapter is first requested.
func (r *Registry) Configure(cfg domain.AdapterConfig) {
	provider := normalize(cfg.Provider)
	if provider == "" {
		return
	}
	cfg.Provider = provider

	r.mu.Lock()
	defer r.mu.Unlock()
	r.configs[provider] = cfg
	delete(r.adapters, provider)
}

// Use installs a ready adapter, bypassing the factory.
func (r *Registry) Use(provider string, adapter domain.PaymentAdapter) {
	provider = normalize(provider)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[provider] = adapter
}

func (r *Registry) ProviderExists(provider string) bool {
	if r == nil {
		return false
	}
	provider = normalize(provider)
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.adapters[provider]; ok {
		return true
	}
	_, ok := r.factories[provider]
	return ok
}

func (r *Registry) Adapter(provider string) (domain.PaymentAdapter, error) {
	if r == nil {
		return nil, domain.ErrProviderNotFound
	}
	provider = normalize(provider)

	r.mu.Lock()
	defer r.mu.Unlock()
	if adapter, ok := r.adapters[provider]; ok {
		return adapter, nil
	}
	factory, ok := r.factories[provider]
	if !ok {
		return nil, domain.ErrProviderNotFound
	}
	cfg, ok := r.configs[provider]
	if !ok {
		return nil, domain.ErrInvalidConfig
	}
	adapter, err := factory.NewAdapter(cfg)
	if err != nil {
		return nil, err
	}
	r.adapters[provider] = adapter
	return adapter, nil
}

func normalize(provider string) string {
	return strings.ToLower(strings.TrimSpace(provider))
}
