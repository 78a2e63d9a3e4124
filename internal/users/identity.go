package users

import (
	"strings"
	"time"
)

// Account is a volunteer known to this service. Rows are created lazily the first
// time a session for the subject is seen.
type Account struct {
	ID          string    `gorm:"column:id;primaryKey;size:190;not null"`
	Provider    string    `gorm:"column:provider;size:32;not null;uniqueIndex:idx_accounts_provider_subject"`
	Subject     string    `gorm:"column:subject;size:190;not null;uniqueIndex:idx_accounts_provider_subject"`
	Email       string    `gorm:"column:email;size:320;uniqueIndex:idx_accounts_email,where:email <> ''"`
	DisplayName string    `gorm:"column:display_name;size:320"`
	AvatarURL   string    `gorm:"column:avatar_url;size:512"`
	LastSeenAt  time.Time `gorm:"column:last_seen_at"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName exposes the table backing accounts.
func (Account) TableName() string {
	return "accounts"
}

func normalize(value string) string {
	return strings.TrimSpace(value)
}

func normalizeEmail(value string) string {
	return strings.ToLower(normalize(value))
}
