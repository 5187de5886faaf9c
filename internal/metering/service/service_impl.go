package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	accountdomain "github.com/badrx15/creavisionbot/internal/account/domain"
	"github.com/badrx15/creavisionbot/internal/completion"
	"github.com/badrx15/creavisionbot/internal/config"
	conversationdomain "github.com/badrx15/creavisionbot/internal/conversation/domain"
	ledgerdomain "github.com/badrx15/creavisionbot/internal/ledger/domain"
	"github.com/badrx15/creavisionbot/internal/locks"
	meteringdomain "github.com/badrx15/creavisionbot/internal/metering/domain"
	obsmetrics "github.com/badrx15/creavisionbot/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	defaultHistoryLimit = 10

	outcomeOK                  = "ok"
	outcomeInsufficientCredits = "insufficient_credits"
	outcomeCompletionFailed    = "completion_failed"
	outcomePersistenceFailed   = "persistence_failed"
)

type Params struct {
	fx.In

	DB              *gorm.DB
	Log             *zap.Logger
	Cfg             config.Config
	Locker          locks.Locker
	AccountSvc      accountdomain.Service
	LedgerSvc       ledgerdomain.Service
	ConversationSvc conversationdomain.Service
	Completer       completion.Completer
	ObsMetrics      *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db              *gorm.DB
	log             *zap.Logger
	cost            int64
	historyLimit    int
	timeout         time.Duration
	locker          locks.Locker
	accountSvc      accountdomain.Service
	ledgerSvc       ledgerdomain.Service
	conversationSvc conversationdomain.Service
	completer       completion.Completer
	obsMetrics      *obsmetrics.Metrics
}

func NewService(p Params) meteringdomain.Service {
	historyLimit := p.Cfg.Credits.HistoryLimit
	if historyLimit <= 0 {
		historyLimit = defaultHistoryLimit
	}
	cost := p.Cfg.Credits.PerMessage
	if cost < 0 {
		cost = 0
	}
	return &Service{
		db:              p.DB,
		log:             p.Log.Named("metering.service"),
		cost:            cost,
		historyLimit:    historyLimit,
		timeout:         p.Cfg.Completion.Timeout,
		locker:          p.Locker,
		accountSvc:      p.AccountSvc,
		ledgerSvc:       p.LedgerSvc,
		conversationSvc: p.ConversationSvc,
		completer:       p.Completer,
		obsMetrics:      p.ObsMetrics,
	}
}

// HandleTurn runs one metered turn under the user's lock. The completion call
// happens before any write; debit, usage record and history append commit together.
func (s *Service) HandleTurn(ctx context.Context, req meteringdomain.TurnRequest) (meteringdomain.TurnResult, error) {
	if req.UserID == 0 {
		return meteringdomain.TurnResult{}, meteringdomain.ErrInvalidUser
	}
	text := strings.TrimSpace(req.Text)
	if text == "" {
		return meteringdomain.TurnResult{}, meteringdomain.ErrEmptyMessage
	}

	unlock, err := s.locker.Lock(ctx, locks.UserKey(req.UserID))
	if err != nil {
		return meteringdomain.TurnResult{}, err
	}
	defer unlock()

	persona, err := s.accountSvc.Persona(ctx, req.UserID)
	if err != nil {
		return meteringdomain.TurnResult{}, err
	}

	balance, err := s.ledgerSvc.Balance(ctx, req.UserID)
	if err != nil {
		return meteringdomain.TurnResult{}, err
	}
	if balance < s.cost {
		s.obsMetrics.RecordTurn(ctx, persona.ID, outcomeInsufficientCredits)
		return meteringdomain.TurnResult{Persona: persona.ID, Remaining: balance}, meteringdomain.ErrInsufficientCredits
	}

	history, err := s.conversationSvc.GetContext(ctx, req.UserID)
	if err != nil {
		return meteringdomain.TurnResult{}, err
	}

	completionCtx := ctx
	if s.timeout > 0 {
		var cancel context.CancelFunc
		completionCtx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	reply, err := s.completer.Complete(completionCtx, completion.Request{
		SystemPrompt: persona.PromptStart,
		History:      conversationdomain.Recent(history, s.historyLimit),
		UserText:     text,
	})
	if err != nil {
		s.obsMetrics.RecordTurn(ctx, persona.ID, outcomeCompletionFailed)
		s.log.Warn("completion failed",
			zap.Int64("user_id", req.UserID),
			zap.String("persona", persona.ID),
			zap.Error(err),
		)
		return meteringdomain.TurnResult{}, fmt.Errorf("%w: %w", meteringdomain.ErrCompletionFailed, err)
	}

	// The reply exists now; an abandoned caller must not leave a half-written turn.
	persistCtx := context.WithoutCancel(ctx)
	var debit ledgerdomain.DebitResult
	err = s.db.WithContext(persistCtx).Transaction(func(tx *gorm.DB) error {
		var err error
		debit, err = s.ledgerSvc.Debit(persistCtx, tx, ledgerdomain.DebitRequest{
			UserID:  req.UserID,
			Amount:  s.cost,
			Excerpt: text,
			Tokens:  reply.Tokens,
		})
		if err != nil {
			return err
		}
		return s.conversationSvc.AppendTurn(persistCtx, tx, req.UserID, text, reply.Text)
	})
	if err != nil {
		s.obsMetrics.RecordTurn(ctx, persona.ID, outcomePersistenceFailed)
		s.log.Error("turn persistence failed",
			zap.Int64("user_id", req.UserID),
			zap.Error(err),
		)
		return meteringdomain.TurnResult{}, fmt.Errorf("%w: %w", meteringdomain.ErrPersistenceFailed, err)
	}

	s.obsMetrics.RecordTurn(ctx, persona.ID, outcomeOK)
	s.log.Debug("turn completed",
		zap.Int64("user_id", req.UserID),
		zap.Int64("charged", debit.Charged),
		zap.Int64("remaining", debit.Remaining),
		zap.Int64("tokens", reply.Tokens),
	)

	return meteringdomain.TurnResult{
		Reply:     reply.Text,
		ParseMode: persona.ParseMode,
		Persona:   persona.ID,
		Charged:   debit.Charged,
		Remaining: debit.Remaining,
		Tokens:    reply.Tokens,
	}, nil
}
