package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/badrx15/creavisionbot/internal/clock"
	"github.com/badrx15/creavisionbot/internal/config"
	"github.com/badrx15/creavisionbot/internal/conversation/domain"
	"github.com/badrx15/creavisionbot/internal/locks"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB     *gorm.DB
	Log    *zap.Logger
	Cfg    config.Config
	Clock  clock.Clock
	Locker locks.Locker
	Repo   domain.Repository
}

type Service struct {
	db      *gorm.DB
	log     *zap.Logger
	timeout time.Duration
	clock   clock.Clock
	locker  locks.Locker
	repo    domain.Repository
}

func New(p Params) domain.Service {
	return &Service{
		db:      p.DB,
		log:     p.Log.Named("conversation.service"),
		timeout: p.Cfg.Conversation.Timeout,
		clock:   p.Clock,
		locker:  p.Locker,
		repo:    p.Repo,
	}
}

func (s *Service) GetContext(ctx context.Context, userID int64) ([]domain.Message, error) {
	if userID == 0 {
		return nil, domain.ErrInvalidUser
	}
	conversation, err := s.repo.Find(ctx, s.db, userID)
	if err != nil {
		return nil, err
	}
	if conversation == nil || s.expired(conversation, s.clock.Now()) {
		return []domain.Message{}, nil
	}
	return decodeMessages(conversation.Messages)
}

func (s *Service) AppendTurn(ctx context.Context, tx *gorm.DB, userID int64, userText, assistantText string) error {
	if userID == 0 {
		return domain.ErrInvalidUser
	}
	db := tx
	if db == nil {
		db = s.db
	}

	now := s.clock.Now()
	messages := []domain.Message{}
	createdAt := now

	existing, err := s.repo.Find(ctx, db, userID)
	if err != nil {
		return err
	}
	if existing != nil && !s.expired(existing, now) {
		messages, err = decodeMessages(existing.Messages)
		if err != nil {
			return err
		}
		createdAt = existing.CreatedAt
	}

	messages = append(messages,
		domain.Message{Role: domain.RoleUser, Content: userText},
		domain.Message{Role: domain.RoleAssistant, Content: assistantText},
	)
	raw, err := json.Marshal(messages)
	if err != nil {
		return err
	}

	return s.repo.Upsert(ctx, db, &domain.Conversation{
		UserID:       userID,
		Messages:     datatypes.JSON(raw),
		LastActivity: now,
		CreatedAt:    createdAt,
	})
}

func (s *Service) Reset(ctx context.Context, userID int64) error {
	if userID == 0 {
		return domain.ErrInvalidUser
	}
	unlock, err := s.locker.Lock(ctx, locks.UserKey(userID))
	if err != nil {
		return err
	}
	defer unlock()

	if _, err := s.repo.Delete(ctx, s.db, userID); err != nil {
		return err
	}
	s.log.Debug("conversation reset", zap.Int64("user_id", userID))
	return nil
}

// Sweep computes one cutoff for the whole pass. Each delete re-checks the cutoff
// under the user's lock so a turn that lands mid-sweep keeps its history.
func (s *Service) Sweep(ctx context.Context, timeout time.Duration) ([]int64, error) {
	if timeout <= 0 {
		return nil, domain.ErrInvalidTimeout
	}
	cutoff := s.clock.Now().Add(-timeout)

	candidates, err := s.repo.ListIdle(ctx, s.db, cutoff)
	if err != nil {
		return nil, err
	}

	expired := make([]int64, 0, len(candidates))
	for _, userID := range candidates {
		deleted, err := s.deleteIdle(ctx, userID, cutoff)
		if err != nil {
			return expired, err
		}
		if deleted {
			expired = append(expired, userID)
		}
	}

	if len(expired) > 0 {
		s.log.Info("conversations expired",
			zap.Int("count", len(expired)),
			zap.Time("cutoff", cutoff),
		)
	}
	return expired, nil
}

func (s *Service) deleteIdle(ctx context.Context, userID int64, cutoff time.Time) (bool, error) {
	unlock, err := s.locker.Lock(ctx, locks.UserKey(userID))
	if err != nil {
		return false, err
	}
	defer unlock()

	affected, err := s.repo.DeleteIdle(ctx, s.db, userID, cutoff)
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

func (s *Service) expired(c *domain.Conversation, now time.Time) bool {
	if s.timeout <= 0 {
		return false
	}
	return c.LastActivity.Before(now.Add(-s.timeout))
}

func decodeMessages(raw datatypes.JSON) ([]domain.Message, error) {
	if len(raw) == 0 {
		return []domain.Message{}, nil
	}
	var messages []domain.Message
	if err := json.Unmarshal(raw, &messages); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrCorruptHistory, err)
	}
	if messages == nil {
		messages = []domain.Message{}
	}
	return messages, nil
}
