package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// Status is the lifecycle of a purchase attempt.
// pending -> order_created -> completed; completed is terminal.
type Status string

const (
	StatusPending      Status = "pending"
	StatusOrderCreated Status = "order_created"
	StatusCompleted    Status = "completed"
	StatusFailed       Status = "failed"
)

// Payment is one credit package purchase attempt. AmountMinor is in the currency's minor unit.
type Payment struct {
	PaymentID         string     `gorm:"column:payment_id;primaryKey;size:64" json:"payment_id"`
	UserID            int64      `gorm:"column:user_id;not null;index" json:"user_id"`
	PackageID         string     `gorm:"column:package_id;size:64;not null" json:"package_id"`
	AmountMinor       int64      `gorm:"column:amount_minor;not null" json:"amount_minor"`
	Currency          string     `gorm:"column:currency;size:8;not null" json:"currency"`
	Credits           int64      `gorm:"column:credits;not null" json:"credits"`
	Status            Status     `gorm:"column:status;size:32;not null;index" json:"status"`
	Provider          string     `gorm:"column:provider;size:32;not null" json:"provider"`
	ProviderOrderID   string     `gorm:"column:provider_order_id;size:128;index" json:"provider_order_id,omitempty"`
	ProviderCaptureID string     `gorm:"column:provider_capture_id;size:128" json:"provider_capture_id,omitempty"`
	CheckoutURL       string     `gorm:"column:checkout_url;type:text" json:"checkout_url,omitempty"`
	CreatedAt         time.Time  `gorm:"column:created_at;not null" json:"created_at"`
	UpdatedAt         time.Time  `gorm:"column:updated_at;not null" json:"updated_at"`
	CompletedAt       *time.Time `gorm:"column:completed_at" json:"completed_at,omitempty"`
}

func (Payment) TableName() string { return "payments" }

// EventRecord stores each provider webhook once for replay detection.
type EventRecord struct {
	ID              snowflake.ID   `json:"id" gorm:"primaryKey"`
	Provider        string         `json:"provider" gorm:"size:32;not null;uniqueIndex:ux_payment_events_provider_event,priority:1"`
	ProviderEventID string         `json:"provider_event_id" gorm:"size:128;not null;uniqueIndex:ux_payment_events_provider_event,priority:2"`
	EventType       string         `json:"event_type" gorm:"size:64;not null"`
	PaymentID       string         `json:"payment_id,omitempty" gorm:"size:64;index"`
	Payload         datatypes.JSON `json:"payload" gorm:"not null"`
	ReceivedAt      time.Time      `json:"received_at" gorm:"not null"`
	ProcessedAt     *time.Time     `json:"processed_at"`
}

func (EventRecord) TableName() string { return "payment_events" }

// Checkout is returned to the user after an order is created.
type Checkout struct {
	PaymentID   string `json:"payment_id"`
	CheckoutURL string `json:"checkout_url"`
	PackageID   string `json:"package_id"`
	Credits     int64  `json:"credits"`
	AmountMinor int64  `json:"amount_minor"`
	Currency    string `json:"currency"`
}
