package models

import (
	"time"
)

// Account represents a mailbox registered with the agent
type Account struct {
	ID                uint       `gorm:"primaryKey" json:"id"`
	Email             string     `gorm:"uniqueIndex;size:255;not null" json:"email"`
	PasswordEncrypted string     `gorm:"size:500;not null" json:"-"`
	APIKeyEncrypted   string     `gorm:"size:500;not null" json:"-"`
	Active            bool       `gorm:"default:true" json:"active"`
	IntervalMinutes   int        `gorm:"default:30" json:"interval_minutes"`
	LastRunAt         *time.Time `json:"last_run_at"` // nil until the first successful cycle
	IMAPHost          string     `gorm:"size:255;not null" json:"imap_host"`
	IMAPPort          int        `gorm:"not null" json:"imap_port"`
	SMTPHost          string     `gorm:"size:255;not null" json:"smtp_host"`
	SMTPPort          int        `gorm:"not null" json:"smtp_port"`
	UseSSL            bool       `gorm:"default:true" json:"use_ssl"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`

	// Relations
	ActionLogs []ActionLog `gorm:"foreignKey:AccountID" json:"action_logs,omitempty"`
}

// IsDue reports whether the account should be processed at the given time.
// An active account that has never run is due immediately.
func (a *Account) IsDue(now time.Time) bool {
	if !a.Active {
		return false
	}
	if a.LastRunAt == nil {
		return true
	}
	next := a.LastRunAt.Add(time.Duration(a.IntervalMinutes) * time.Minute)
	return !now.Before(next)
}

// NextRunAt returns the next scheduled run time, or the zero time if the
// account has never run (meaning it is due immediately).
func (a *Account) NextRunAt() time.Time {
	if a.LastRunAt == nil {
		return time.Time{}
	}
	return a.LastRunAt.Add(time.Duration(a.IntervalMinutes) * time.Minute)
}
