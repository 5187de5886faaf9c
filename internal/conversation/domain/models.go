package domain

import (
	"time"

	"gorm.io/datatypes"
)

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Conversation is the stored history of one user. History is unbounded here;
// prompt builders take a window with Recent.
type Conversation struct {
	UserID       int64          `gorm:"column:user_id;primaryKey;autoIncrement:false" json:"user_id"`
	Messages     datatypes.JSON `gorm:"column:messages;not null" json:"messages"`
	LastActivity time.Time      `gorm:"column:last_activity;not null;index" json:"last_activity"`
	CreatedAt    time.Time      `gorm:"column:created_at;not null" json:"created_at"`
}

func (Conversation) TableName() string { return "conversations" }

// Recent returns at most the last n messages without copying the backing array.
func Recent(messages []Message, n int) []Message {
	if n <= 0 {
		return nil
	}
	if len(messages) <= n {
		return messages
	}
	return messages[len(messages)-n:]
}
