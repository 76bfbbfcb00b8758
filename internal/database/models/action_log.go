package models

import (
	"time"
)

// ActionOutcome describes what the agent did with one message
type ActionOutcome string

const (
	ActionSkipped            ActionOutcome = "skipped"
	ActionIgnoredNoReply     ActionOutcome = "ignored_noreply"
	ActionIgnoredPromotional ActionOutcome = "ignored_promotional"
	ActionReplied            ActionOutcome = "replied"
	ActionSendFailed         ActionOutcome = "send_failed"
	ActionCycleError         ActionOutcome = "cycle_error"
)

// IsValid checks whether the outcome is a known value
func (o ActionOutcome) IsValid() bool {
	switch o {
	case ActionSkipped, ActionIgnoredNoReply, ActionIgnoredPromotional,
		ActionReplied, ActionSendFailed, ActionCycleError:
		return true
	}
	return false
}

// ActionLog records one decision the agent made for one message during a cycle
type ActionLog struct {
	ID           uint          `gorm:"primaryKey" json:"id"`
	AccountID    uint          `gorm:"index;not null" json:"account_id"`
	Subject      string        `gorm:"size:500" json:"subject"`
	Sender       string        `gorm:"size:255" json:"sender"`
	Intent       string        `gorm:"size:50" json:"intent,omitempty"`
	Confidence   float64       `json:"confidence"`
	Action       ActionOutcome `gorm:"size:30;index" json:"action"`
	ReplyPreview string        `gorm:"size:100" json:"reply_preview,omitempty"`
	Detail       string        `gorm:"type:text" json:"detail,omitempty"` // error description for failures
	CreatedAt    time.Time     `gorm:"index" json:"created_at"`
}
