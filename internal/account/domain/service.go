package domain

import (
	"context"
	"errors"

	"github.com/badrx15/creavisionbot/internal/config"
	"github.com/badrx15/creavisionbot/pkg/db/pagination"
)

type ListAccountRequest struct {
	PageToken string
	PageSize  int
}

type ListAccountResponse struct {
	pagination.PageInfo
	Accounts []Account `json:"accounts"`
}

type Service interface {
	// Ensure creates the account on first contact and refreshes display metadata afterwards.
	Ensure(ctx context.Context, profile Profile) (Account, bool, error)
	Get(ctx context.Context, userID int64) (Account, error)
	List(ctx context.Context, req ListAccountRequest) (ListAccountResponse, error)
	SetAdmin(ctx context.Context, userID int64, isAdmin bool) error
	Preference(ctx context.Context, userID int64, key string) (string, bool, error)
	SetPreference(ctx context.Context, userID int64, key, value string) error
	Persona(ctx context.Context, userID int64) (config.Persona, error)
	SetPersona(ctx context.Context, userID int64, personaID string) (config.Persona, error)
	// Delete removes the account and every dependent record.
	Delete(ctx context.Context, userID int64) error
}

var (
	ErrInvalidUser       = errors.New("invalid_user")
	ErrAccountNotFound   = errors.New("account_not_found")
	ErrInvalidPreference = errors.New("invalid_preference")
	ErrUnknownPersona    = errors.New("unknown_persona")
)
