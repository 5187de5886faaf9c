package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// SourceType tags what caused a balance mutation.
type SourceType string

const (
	SourceTypeTurn       SourceType = "turn"       // one metered assistant reply
	SourceTypePurchase   SourceType = "purchase"   // completed credit package payment
	SourceTypeAdjustment SourceType = "adjustment" // manual admin grant
)

// UsageRecord is an append-only entry in the usage log.
// CreditsDelta is negative for debits and positive for credits.
type UsageRecord struct {
	ID             snowflake.ID `gorm:"primaryKey" json:"id"`
	UserID         int64        `gorm:"column:user_id;not null;index" json:"user_id"`
	SourceType     SourceType   `gorm:"column:source_type;type:varchar(32);not null" json:"source_type"`
	MessageExcerpt string       `gorm:"column:message_excerpt;type:text" json:"message_excerpt,omitempty"`
	Tokens         int64        `gorm:"column:tokens;not null;default:0" json:"tokens"`
	CreditsDelta   int64        `gorm:"column:credits_delta;not null" json:"credits_delta"`
	PaymentID      *string      `gorm:"column:payment_id;type:varchar(64);uniqueIndex:ux_usage_records_payment_id" json:"payment_id,omitempty"`
	CreatedAt      time.Time    `gorm:"column:created_at;not null" json:"created_at"`
}

// TableName sets the database table name.
func (UsageRecord) TableName() string { return "usage_records" }
