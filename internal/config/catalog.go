package config

import (
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// CreditPackage is a purchasable bundle of credits.
type CreditPackage struct {
	ID       string  `mapstructure:"id" json:"id"`
	Name     string  `mapstructure:"name" json:"name"`
	Credits  int64   `mapstructure:"credits" json:"credits"`
	Price    float64 `mapstructure:"price" json:"price"`
	Currency string  `mapstructure:"currency" json:"currency"`
}

// Persona is a selectable assistant profile.
type Persona struct {
	ID             string `mapstructure:"id" json:"id"`
	Name           string `mapstructure:"name" json:"name"`
	PromptStart    string `mapstructure:"prompt_start" json:"prompt_start"`
	WelcomeMessage string `mapstructure:"welcome_message" json:"welcome_message"`
	ParseMode      string `mapstructure:"parse_mode" json:"parse_mode"`
}

type Catalog struct {
	Packages []CreditPackage `mapstructure:"packages"`
	Personas []Persona       `mapstructure:"personas"`
}

const DefaultPersonaID = "assistant"

func DefaultCatalog() Catalog {
	return Catalog{
		Packages: []CreditPackage{
			{ID: "basic", Name: "Paquete Básico", Credits: 50, Price: 5.00, Currency: "USD"},
			{ID: "standard", Name: "Paquete Estándar", Credits: 150, Price: 10.00, Currency: "USD"},
			{ID: "premium", Name: "Paquete Premium", Credits: 500, Price: 25.00, Currency: "USD"},
		},
		Personas: []Persona{
			{
				ID:          DefaultPersonaID,
				Name:        "Asistente",
				PromptStart: "You are a helpful assistant.",
				ParseMode:   "html",
			},
			{
				ID:             "copywriter",
				Name:           "Copywriter",
				PromptStart:    "You are an expert copywriter. Write persuasive, concise marketing copy.",
				WelcomeMessage: "Cuéntame qué producto quieres promocionar.",
				ParseMode:      "markdown",
			},
			{
				ID:             "translator",
				Name:           "Traductor",
				PromptStart:    "You are a professional translator. Translate the user's text preserving tone and meaning.",
				WelcomeMessage: "Envíame el texto y el idioma de destino.",
				ParseMode:      "html",
			},
		},
	}
}

// Package returns the catalog entry for id.
func (c Catalog) Package(id string) (CreditPackage, bool) {
	id = strings.TrimSpace(id)
	for _, p := range c.Packages {
		if p.ID == id {
			return p, true
		}
	}
	return CreditPackage{}, false
}

// Persona returns the persona for id.
func (c Catalog) Persona(id string) (Persona, bool) {
	id = strings.TrimSpace(id)
	for _, p := range c.Personas {
		if p.ID == id {
			return p, true
		}
	}
	return Persona{}, false
}

// ResolvePersona falls back to the default persona, then to the first configured one.
func (c Catalog) ResolvePersona(id string) Persona {
	if p, ok := c.Persona(id); ok {
		return p
	}
	if p, ok := c.Persona(DefaultPersonaID); ok {
		return p
	}
	if len(c.Personas) > 0 {
		return c.Personas[0]
	}
	return Persona{ID: DefaultPersonaID, PromptStart: "You are a helpful assistant.", ParseMode: "html"}
}

type CatalogHolder struct {
	current atomic.Value // holds Catalog
}

// NewStaticCatalogHolder wraps a fixed catalog; used by tests and tooling.
func NewStaticCatalogHolder(c Catalog) *CatalogHolder {
	holder := &CatalogHolder{}
	holder.current.Store(c)
	return holder
}

func NewCatalogHolder(cfg Config, log *zap.Logger) (*CatalogHolder, error) {
	log = log.Named("catalog")
	v := viper.New()

	if cfg.CatalogPath != "" {
		v.SetConfigFile(cfg.CatalogPath)
	} else {
		v.SetConfigName("catalog")
		v.SetConfigType("yml")
		v.AddConfigPath("/etc/creavisionbot")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("CREAVISION")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	fileLoaded := true
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
		fileLoaded = false
		defaults := DefaultCatalog()
		v.SetDefault("catalog.packages", defaults.Packages)
		v.SetDefault("catalog.personas", defaults.Personas)
	}

	var catalog Catalog
	if fileLoaded {
		if err := v.UnmarshalKey("catalog", &catalog); err != nil {
			return nil, err
		}
	} else {
		catalog = DefaultCatalog()
	}
	if err := validateCatalog(catalog); err != nil {
		return nil, err
	}

	holder := NewStaticCatalogHolder(catalog)
	if !fileLoaded {
		log.Info("catalog file not found, using defaults")
		return holder, nil
	}

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated Catalog
		if err := v.UnmarshalKey("catalog", &updated); err != nil {
			log.Warn("catalog reload failed", zap.Error(err))
			return
		}
		if err := validateCatalog(updated); err != nil {
			log.Warn("invalid catalog ignored", zap.Error(err))
			return
		}
		holder.current.Store(updated)
		log.Info("catalog reloaded", zap.String("file", e.Name))
	})

	return holder, nil
}

func (h *CatalogHolder) Get() Catalog {
	return h.current.Load().(Catalog)
}

func validateCatalog(c Catalog) error {
	if len(c.Packages) == 0 {
		return errors.New("catalog.packages cannot be empty")
	}
	if len(c.Personas) == 0 {
		return errors.New("catalog.personas cannot be empty")
	}
	seen := map[string]struct{}{}
	for _, p := range c.Packages {
		if strings.TrimSpace(p.ID) == "" {
			return errors.New("catalog package id is required")
		}
		if _, dup := seen[p.ID]; dup {
			return fmt.Errorf("duplicate catalog package %q", p.ID)
		}
		seen[p.ID] = struct{}{}
		if p.Credits <= 0 || p.Price <= 0 {
			return fmt.Errorf("catalog package %q must have positive credits and price", p.ID)
		}
		if strings.TrimSpace(p.Currency) == "" {
			return fmt.Errorf("catalog package %q currency is required", p.ID)
		}
		if _, ok := CurrencyExponent(p.Currency); !ok {
			return fmt.Errorf("catalog package %q currency %q is not supported", p.ID, p.Currency)
		}
	}
	for _, p := range c.Personas {
		if strings.TrimSpace(p.ID) == "" {
			return errors.New("catalog persona id is required")
		}
	}
	return nil
}
