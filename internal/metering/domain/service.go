package domain

import (
	"context"
	"errors"
)

type TurnRequest struct {
	UserID int64
	Text   string
}

type TurnResult struct {
	Reply     string `json:"reply"`
	ParseMode string `json:"parse_mode"`
	Persona   string `json:"persona"`
	Charged   int64  `json:"credits_charged"`
	Remaining int64  `json:"credits_remaining"`
	Tokens    int64  `json:"tokens"`
}

// Service spends credits to obtain one assistant reply.
type Service interface {
	HandleTurn(ctx context.Context, req TurnRequest) (TurnResult, error)
}

var (
	ErrInvalidUser         = errors.New("invalid_user")
	ErrEmptyMessage        = errors.New("empty_message")
	ErrInsufficientCredits = errors.New("insufficient_credits")
	ErrCompletionFailed    = errors.New("completion_failed")
	ErrPersistenceFailed   = errors.New("persistence_failed")
)
