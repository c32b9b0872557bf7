package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type CodeStatus string

const (
	CodeUnused         CodeStatus = "unused"
	CodeUsed           CodeStatus = "used"
	CodeWarrantyActive CodeStatus = "warranty_active"
	CodeExpired        CodeStatus = "expired"
)

// RedemptionCode is a single-use or warranty-backed token. WarrantyExpiresAt
// is set once, on the first successful warranty allocation, and never
// recomputed afterward.
type RedemptionCode struct {
	ID                snowflake.ID  `gorm:"primaryKey" json:"id"`
	Code              string        `gorm:"column:code;uniqueIndex;not null" json:"code"`
	Status            CodeStatus    `gorm:"column:status;not null;default:unused" json:"status"`
	CreatedAt         time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	ExpiresAt         *time.Time    `gorm:"column:expires_at" json:"expires_at,omitempty"`
	UsedByEmail       string        `gorm:"column:used_by_email" json:"used_by_email,omitempty"`
	UsedPoolID        *snowflake.ID `gorm:"column:used_pool_id" json:"used_pool_id,omitempty"`
	UsedAt            *time.Time    `gorm:"column:used_at" json:"used_at,omitempty"`
	HasWarranty       bool          `gorm:"column:has_warranty;not null;default:false" json:"has_warranty"`
	WarrantyDays      int           `gorm:"column:warranty_days;not null;default:30" json:"warranty_days"`
	WarrantyExpiresAt *time.Time    `gorm:"column:warranty_expires_at" json:"warranty_expires_at,omitempty"`
}

func (RedemptionCode) TableName() string {
	return "redemption_codes"
}

// RedemptionRecord is one confirmed seat allocation. Rows are append-only
// and created strictly after the remote invite succeeded.
type RedemptionRecord struct {
	ID              snowflake.ID `gorm:"primaryKey" json:"id"`
	Email           string       `gorm:"column:email;not null;index" json:"email"`
	Code            string       `gorm:"column:code;not null;index" json:"code"`
	PoolID          snowflake.ID `gorm:"column:pool_id;not null" json:"pool_id"`
	RemoteAccountID string       `gorm:"column:remote_account_id" json:"remote_account_id"`
	RedeemedAt      time.Time    `gorm:"column:redeemed_at;not null" json:"redeemed_at"`
	IsWarranty      bool         `gorm:"column:is_warranty;not null;default:false" json:"is_warranty"`
}

func (RedemptionRecord) TableName() string {
	return "redemption_records"
}
