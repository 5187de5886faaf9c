package authorization

import (
	"context"
	"errors"
)

// Roles an admin token can carry. Owners come from ADMIN_USER_IDS; admins are promoted accounts.
const (
	RoleOwner = "owner"
	RoleAdmin = "admin"
)

const (
	ObjectUser    = "user"
	ObjectCredits = "credits"
	ObjectUsage   = "usage"
)

const (
	ActionUserView    = "user.view"
	ActionUserPromote = "user.promote"
	ActionUserDelete  = "user.delete"
	ActionCreditGrant = "credits.grant"
	ActionUsageView   = "usage.view"
)

type Service interface {
	Authorize(ctx context.Context, actor string, role string, object string, action string) error
}

var (
	ErrForbidden     = errors.New("forbidden")
	ErrInvalidActor  = errors.New("invalid_actor")
	ErrInvalidRole   = errors.New("invalid_role")
	ErrInvalidObject = errors.New("invalid_object")
	ErrInvalidAction = errors.New("invalid_action")
)
