package domain

import (
	"context"
	"errors"

	"github.com/badrx15/creavisionbot/pkg/db/pagination"
	"gorm.io/gorm"
)

type DebitRequest struct {
	UserID  int64
	Amount  int64
	Excerpt string
	Tokens  int64
}

type DebitResult struct {
	Charged   int64 `json:"charged"`
	Remaining int64 `json:"remaining"`
}

type CreditRequest struct {
	UserID     int64
	Amount     int64
	SourceType SourceType
	// PaymentID makes the credit idempotent. A second credit for the same id is ignored.
	PaymentID string
	Note      string
}

type CreditResult struct {
	Applied bool  `json:"applied"`
	Balance int64 `json:"balance"`
}

type ListUsageRequest struct {
	UserID    int64
	PageToken string
	PageSize  int
}

type ListUsageResponse struct {
	pagination.PageInfo
	Records []UsageRecord `json:"records"`
}

// Service owns every mutation of account balances.
// Debit and Credit join the caller's transaction when tx is non-nil.
type Service interface {
	Balance(ctx context.Context, userID int64) (int64, error)
	Debit(ctx context.Context, tx *gorm.DB, req DebitRequest) (DebitResult, error)
	Credit(ctx context.Context, tx *gorm.DB, req CreditRequest) (CreditResult, error)
	Grant(ctx context.Context, userID, amount int64, note string) (CreditResult, error)
	History(ctx context.Context, req ListUsageRequest) (ListUsageResponse, error)
}

var (
	ErrInvalidUser       = errors.New("invalid_user")
	ErrInvalidAmount     = errors.New("invalid_amount")
	ErrInvalidSourceType = errors.New("invalid_source_type")
	ErrAccountNotFound   = errors.New("account_not_found")
)
