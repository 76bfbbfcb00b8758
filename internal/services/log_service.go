package services

import (
	"time"

	"github.com/mailpilot/agent/internal/agent"
	"github.com/mailpilot/agent/internal/database/models"
	"gorm.io/gorm"
)

// LogService persists the per-message action log produced by cycles
type LogService struct {
	db *gorm.DB
}

// NewLogService creates a new LogService instance
func NewLogService(db *gorm.DB) *LogService {
	return &LogService{db: db}
}

// SaveCycleEntries stores the ordered action log of one cycle
func (s *LogService) SaveCycleEntries(accountID uint, entries []agent.ActionEntry) error {
	if len(entries) == 0 {
		return nil
	}

	rows := make([]models.ActionLog, 0, len(entries))
	for _, entry := range entries {
		rows = append(rows, models.ActionLog{
			AccountID:    accountID,
			Subject:      entry.Subject,
			Sender:       entry.Sender,
			Intent:       string(entry.Intent),
			Confidence:   entry.Confidence,
			Action:       entry.Action,
			ReplyPreview: entry.ReplyPreview,
			Detail:       entry.Detail,
			CreatedAt:    entry.Timestamp,
		})
	}

	return s.db.Create(&rows).Error
}

// LogCycleError records a cycle-level failure as a single entry
func (s *LogService) LogCycleError(accountID uint, cycleErr error) error {
	return s.db.Create(&models.ActionLog{
		AccountID: accountID,
		Action:    models.ActionCycleError,
		Detail:    cycleErr.Error(),
		CreatedAt: time.Now(),
	}).Error
}

// ListByAccount returns the most recent action log entries for an account
func (s *LogService) ListByAccount(accountID uint, limit int) ([]models.ActionLog, error) {
	if limit <= 0 {
		limit = 50
	}
	var logs []models.ActionLog
	err := s.db.Where("account_id = ?", accountID).
		Order("created_at DESC").
		Limit(limit).
		Find(&logs).Error
	if err != nil {
		return nil, err
	}
	return logs, nil
}
