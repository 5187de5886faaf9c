package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/badrx15/creavisionbot/internal/clock"
	"github.com/badrx15/creavisionbot/internal/payment/adapters"
	paymentdomain "github.com/badrx15/creavisionbot/internal/payment/domain"
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	Repo       paymentdomain.Repository
	PaymentSvc paymentdomain.Service
	Adapters   *adapters.Registry
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	repo       paymentdomain.Repository
	paymentSvc paymentdomain.Service
	adapters   *adapters.Registry
}

func NewService(p Params) paymentdomain.WebhookService {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("payment.webhook"),
		genID:      p.GenID,
		clock:      p.Clock,
		repo:       p.Repo,
		paymentSvc: p.PaymentSvc,
		adapters:   p.Adapters,
	}
}

// IngestWebhook verifies the callback with the provider adapter, stores it once,
// and forwards it to the reconciler. Replays of a processed event are no-ops.
func (s *Service) IngestWebhook(ctx context.Context, provider string, payload []byte, headers http.Header) error {
	provider = strings.ToLower(strings.TrimSpace(provider))
	if provider == "" {
		return paymentdomain.ErrInvalidProvider
	}
	if !s.adapters.ProviderExists(provider) {
		return paymentdomain.ErrProviderNotFound
	}
	if !json.Valid(payload) {
		return paymentdomain.ErrInvalidPayload
	}

	adapter, err := s.adapters.Adapter(provider)
	if err != nil {
		return err
	}

	event, err := adapter.ParseWebhook(ctx, payload, headers)
	if err != nil {
		if errors.Is(err, paymentdomain.ErrWebhookMalformed) {
			s.log.Warn("dropping malformed webhook", zap.String("provider", provider))
			return nil
		}
		return err
	}
	if event.Kind == paymentdomain.EventKindIgnored {
		s.log.Debug("ignoring webhook event",
			zap.String("provider", provider),
			zap.String("event_type", event.Type),
		)
		return nil
	}

	now := s.clock.Now()
	record := paymentdomain.EventRecord{
		ID:              s.genID.Generate(),
		Provider:        provider,
		ProviderEventID: event.ProviderEventID,
		EventType:       event.Type,
		Payload:         datatypes.JSON(payload),
		ReceivedAt:      now,
	}
	inserted, err := s.repo.InsertEvent(ctx, s.db, &record)
	if err != nil {
		return err
	}
	stored := &record
	if !inserted {
		stored, err = s.repo.FindEvent(ctx, s.db, provider, event.ProviderEventID)
		if err != nil {
			return err
		}
		if stored == nil {
			return paymentdomain.ErrInvalidPayload
		}
		if stored.ProcessedAt != nil {
			s.log.Debug("webhook already processed",
				zap.String("provider", provider),
				zap.String("provider_event_id", event.ProviderEventID),
			)
			return nil
		}
	}

	if err := s.paymentSvc.HandleWebhookEvent(ctx, event); err != nil {
		return err
	}

	paymentID := ""
	if correlation, err := paymentdomain.ParseCorrelation(event.CorrelationToken); err == nil {
		paymentID = correlation.PaymentID
	}
	return s.repo.MarkEventProcessed(ctx, s.db, stored.ID, paymentID, s.clock.Now())
}
