package service

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/badrx15/creavisionbot/internal/clock"
	ledgerdomain "github.com/badrx15/creavisionbot/internal/ledger/domain"
	obsmetrics "github.com/badrx15/creavisionbot/internal/observability/metrics"
	"github.com/badrx15/creavisionbot/pkg/db/pagination"
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const maxExcerptRunes = 200

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	Repo       ledgerdomain.Repository
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	repo       ledgerdomain.Repository
	obsMetrics *obsmetrics.Metrics
}

func NewService(p Params) ledgerdomain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("ledger.service"),
		genID:      p.GenID,
		clock:      p.Clock,
		repo:       p.Repo,
		obsMetrics: p.ObsMetrics,
	}
}

func (s *Service) Balance(ctx context.Context, userID int64) (int64, error) {
	if userID == 0 {
		return 0, ledgerdomain.ErrInvalidUser
	}
	balance, ok, err := s.repo.Balance(ctx, s.db, userID)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, ledgerdomain.ErrAccountNotFound
	}
	return balance, nil
}

// Debit charges at most the current balance. The stored balance never goes below zero.
func (s *Service) Debit(ctx context.Context, tx *gorm.DB, req ledgerdomain.DebitRequest) (ledgerdomain.DebitResult, error) {
	if req.UserID == 0 {
		return ledgerdomain.DebitResult{}, ledgerdomain.ErrInvalidUser
	}
	if req.Amount < 0 {
		return ledgerdomain.DebitResult{}, ledgerdomain.ErrInvalidAmount
	}

	var result ledgerdomain.DebitResult
	err := s.inTx(ctx, tx, func(tx *gorm.DB) error {
		before, ok, err := s.repo.Balance(ctx, tx, req.UserID)
		if err != nil {
			return err
		}
		if !ok {
			return ledgerdomain.ErrAccountNotFound
		}

		now := s.clock.Now()
		if _, err := s.repo.DecrementClamped(ctx, tx, req.UserID, req.Amount, now); err != nil {
			return err
		}

		charged := min(req.Amount, before)
		if _, err := s.repo.InsertRecord(ctx, tx, &ledgerdomain.UsageRecord{
			ID:             s.genID.Generate(),
			UserID:         req.UserID,
			SourceType:     ledgerdomain.SourceTypeTurn,
			MessageExcerpt: excerpt(req.Excerpt),
			Tokens:         req.Tokens,
			CreditsDelta:   -charged,
			CreatedAt:      now,
		}); err != nil {
			return err
		}

		after, _, err := s.repo.Balance(ctx, tx, req.UserID)
		if err != nil {
			return err
		}
		result = ledgerdomain.DebitResult{Charged: charged, Remaining: after}
		return nil
	})
	if err != nil {
		return ledgerdomain.DebitResult{}, err
	}

	s.obsMetrics.RecordCreditsDebited(ctx, result.Charged)
	return result, nil
}

// Credit adds credits and appends the matching usage record.
// With a payment id the record insert is the idempotency gate: a duplicate leaves the balance untouched.
func (s *Service) Credit(ctx context.Context, tx *gorm.DB, req ledgerdomain.CreditRequest) (ledgerdomain.CreditResult, error) {
	if req.UserID == 0 {
		return ledgerdomain.CreditResult{}, ledgerdomain.ErrInvalidUser
	}
	if req.Amount <= 0 {
		return ledgerdomain.CreditResult{}, ledgerdomain.ErrInvalidAmount
	}
	switch req.SourceType {
	case ledgerdomain.SourceTypePurchase, ledgerdomain.SourceTypeAdjustment:
	default:
		return ledgerdomain.CreditResult{}, ledgerdomain.ErrInvalidSourceType
	}

	var paymentID *string
	if id := strings.TrimSpace(req.PaymentID); id != "" {
		paymentID = &id
	}

	var result ledgerdomain.CreditResult
	err := s.inTx(ctx, tx, func(tx *gorm.DB) error {
		now := s.clock.Now()
		inserted, err := s.repo.InsertRecord(ctx, tx, &ledgerdomain.UsageRecord{
			ID:             s.genID.Generate(),
			UserID:         req.UserID,
			SourceType:     req.SourceType,
			MessageExcerpt: excerpt(req.Note),
			CreditsDelta:   req.Amount,
			PaymentID:      paymentID,
			CreatedAt:      now,
		})
		if err != nil {
			return err
		}

		if inserted {
			affected, err := s.repo.Increment(ctx, tx, req.UserID, req.Amount, now)
			if err != nil {
				return err
			}
			if affected == 0 {
				return ledgerdomain.ErrAccountNotFound
			}
		}

		balance, _, err := s.repo.Balance(ctx, tx, req.UserID)
		if err != nil {
			return err
		}
		result = ledgerdomain.CreditResult{Applied: inserted, Balance: balance}
		return nil
	})
	if err != nil {
		return ledgerdomain.CreditResult{}, err
	}

	if result.Applied {
		s.obsMetrics.RecordCreditsGranted(ctx, string(req.SourceType), req.Amount)
	} else {
		s.log.Info("credit already applied",
			zap.Int64("user_id", req.UserID),
			zap.String("payment_id", req.PaymentID),
		)
	}
	return result, nil
}

func (s *Service) Grant(ctx context.Context, userID, amount int64, note string) (ledgerdomain.CreditResult, error) {
	if strings.TrimSpace(note) == "" {
		note = "admin adjustment"
	}
	result, err := s.Credit(ctx, nil, ledgerdomain.CreditRequest{
		UserID:     userID,
		Amount:     amount,
		SourceType: ledgerdomain.SourceTypeAdjustment,
		Note:       note,
	})
	if err != nil {
		return ledgerdomain.CreditResult{}, err
	}
	s.log.Info("credits granted", zap.Int64("user_id", userID), zap.Int64("amount", amount))
	return result, nil
}

func (s *Service) History(ctx context.Context, req ledgerdomain.ListUsageRequest) (ledgerdomain.ListUsageResponse, error) {
	if req.UserID == 0 {
		return ledgerdomain.ListUsageResponse{}, ledgerdomain.ErrInvalidUser
	}
	page := pagination.Pagination{PageToken: req.PageToken, PageSize: req.PageSize}.Normalize()

	cursor, err := pagination.DecodeCursor(page.PageToken)
	if err != nil {
		return ledgerdomain.ListUsageResponse{}, err
	}
	var before snowflake.ID
	if cursor != nil {
		before, err = snowflake.ParseString(cursor.ID)
		if err != nil {
			return ledgerdomain.ListUsageResponse{}, pagination.ErrInvalidPageToken
		}
	}

	items, err := s.repo.ListRecords(ctx, s.db, req.UserID, before, page.PageSize+1)
	if err != nil {
		return ledgerdomain.ListUsageResponse{}, err
	}
	items, pageInfo := pagination.Trim(items, page.PageSize, func(r *ledgerdomain.UsageRecord) string {
		return r.ID.String()
	})

	records := make([]ledgerdomain.UsageRecord, 0, len(items))
	for _, item := range items {
		records = append(records, *item)
	}
	return ledgerdomain.ListUsageResponse{PageInfo: pageInfo, Records: records}, nil
}

func (s *Service) inTx(ctx context.Context, tx *gorm.DB, fn func(tx *gorm.DB) error) error {
	if tx != nil {
		return fn(tx)
	}
	return s.db.WithContext(ctx).Transaction(fn)
}

func excerpt(text string) string {
	text = strings.TrimSpace(text)
	if utf8.RuneCountInString(text) <= maxExcerptRunes {
		return text
	}
	runes := []rune(text)
	return string(runes[:maxExcerptRunes])
}
