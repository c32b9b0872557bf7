package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

const (
	StatusPending = "pending"
	StatusSent    = "sent"
	StatusSkipped = "skipped"
)

const (
	ReasonWarrantyDue         = "warranty_due"
	ReasonManualDue           = "manual_28d_due"
	ReasonRedeemNoWarrantyDue = "redeem_no_warranty_due"
	ReasonPolicyDue           = "policy_due"
)

// PendingReminder is one queued expiry notice. DedupeKey makes the collect
// sweep idempotent: the same email, expiry date, and reason never queue twice.
type PendingReminder struct {
	ID              snowflake.ID `gorm:"primaryKey" json:"id"`
	LifecycleID     snowflake.ID `gorm:"column:lifecycle_id;not null" json:"lifecycle_id"`
	Email           string       `gorm:"column:email;not null" json:"email"`
	PolicyType      string       `gorm:"column:policy_type;not null" json:"policy_type"`
	TargetExpiresAt *time.Time   `gorm:"column:target_expires_at" json:"target_expires_at,omitempty"`
	DaysLeft        int          `gorm:"column:days_left;not null" json:"days_left"`
	Reason          string       `gorm:"column:reason;not null" json:"reason"`
	Status          string       `gorm:"column:status;not null;default:pending" json:"status"`
	DedupeKey       string       `gorm:"column:dedupe_key;uniqueIndex;not null" json:"dedupe_key"`
	LastSentAt      *time.Time   `gorm:"column:last_sent_at" json:"last_sent_at,omitempty"`
	LastSendResult  string       `gorm:"column:last_send_result" json:"last_send_result,omitempty"`
	CreatedAt       time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt       time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (PendingReminder) TableName() string {
	return "member_reminder_queue"
}
