package models

import (
	"time"
)

// PostedFile is the dedup ledger entry for a published source item.
// Entries are append-only: once a fingerprint is recorded the item is never
// selected again unless the ledger is explicitly reset.
type PostedFile struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	Account     string    `gorm:"not null;size:100;index" json:"account"`
	Fingerprint string    `gorm:"not null;size:255;uniqueIndex" json:"fingerprint"`
	Filename    string    `gorm:"not null;size:255" json:"filename"`
	PublishedAt time.Time `gorm:"not null" json:"published_at"`
}

// PostResult holds the outcome of the most recent publish attempt per
// account. It is overwritten on every attempt, success or failure.
type PostResult struct {
	ID       uint      `gorm:"primaryKey" json:"id"`
	Account  string    `gorm:"not null;size:100;uniqueIndex" json:"account"`
	RunID    string    `gorm:"size:64" json:"run_id"`
	Filename string    `gorm:"size:255" json:"filename"`
	Success  bool      `json:"success"`
	Error    string    `gorm:"type:text" json:"error"`
	PostedAt time.Time `gorm:"not null" json:"posted_at"`
}

// ScheduleSlot is one intended publish time (HH:MM) on one weekday for one
// account. A day's slots are evaluated ordered by Position.
type ScheduleSlot struct {
	ID       uint   `gorm:"primaryKey" json:"id"`
	Account  string `gorm:"not null;size:100;index:idx_schedule_day" json:"account"`
	Weekday  string `gorm:"not null;size:16;index:idx_schedule_day" json:"weekday"`
	Time     string `gorm:"not null;size:8" json:"time"`
	Position int    `gorm:"not null" json:"position"`
}

// AccountSettings carries the mutable per-account configuration the wizard
// maintains: caption override, pause flag and access-token expiry.
type AccountSettings struct {
	ID          uint       `gorm:"primaryKey" json:"id"`
	Account     string     `gorm:"not null;size:100;uniqueIndex" json:"account"`
	Caption     string     `gorm:"type:text" json:"caption"`
	Paused      bool       `gorm:"default:false" json:"paused"`
	TokenExpiry *time.Time `json:"token_expiry"`
	UpdatedAt   time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// BotUser tracks wizard end users. A failed password check sets Banned and
// the user is locked out of all future sessions.
type BotUser struct {
	ID           uint       `gorm:"primaryKey" json:"id"`
	TelegramID   int64      `gorm:"not null;uniqueIndex" json:"telegram_id"`
	Banned       bool       `gorm:"default:false" json:"banned"`
	AuthorizedAt *time.Time `json:"authorized_at"`
	CreatedAt    time.Time  `gorm:"autoCreateTime" json:"created_at"`
}
