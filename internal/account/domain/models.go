package domain

import "time"

// Account is a chat user with a credit balance. UserID is the transport's numeric id.
type Account struct {
	UserID       int64     `gorm:"column:user_id;primaryKey;autoIncrement:false" json:"user_id"`
	Username     string    `gorm:"column:username" json:"username,omitempty"`
	FirstName    string    `gorm:"column:first_name" json:"first_name,omitempty"`
	LastName     string    `gorm:"column:last_name" json:"last_name,omitempty"`
	Credits      int64     `gorm:"column:credits;not null;default:0" json:"credits"`
	IsAdmin      bool      `gorm:"column:is_admin;not null;default:false" json:"is_admin"`
	RegisteredAt time.Time `gorm:"column:registered_at;not null" json:"registered_at"`
	UpdatedAt    time.Time `gorm:"column:updated_at;not null" json:"updated_at"`
}

func (Account) TableName() string { return "accounts" }

// Preference is a per-user key/value setting.
type Preference struct {
	UserID    int64     `gorm:"column:user_id;primaryKey;autoIncrement:false" json:"user_id"`
	Key       string    `gorm:"column:pref_key;primaryKey;size:64" json:"key"`
	Value     string    `gorm:"column:value;not null" json:"value"`
	UpdatedAt time.Time `gorm:"column:updated_at;not null" json:"updated_at"`
}

func (Preference) TableName() string { return "user_preferences" }

// PreferenceKeyPersona stores the selected persona id.
const PreferenceKeyPersona = "model"

// Profile carries the display metadata reported by the chat transport.
type Profile struct {
	UserID    int64  `json:"user_id"`
	Username  string `json:"username,omitempty"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
}

func (p Profile) DisplayName() string {
	if p.Username != "" {
		return "@" + p.Username
	}
	name := p.FirstName
	if p.LastName != "" {
		if name != "" {
			name += " "
		}
		name += p.LastName
	}
	return name
}
