package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

type PolicyType string

const (
	// PolicyWarranty covers members whose code carried a warranty, plus
	// legacy-seeded members with remaining warranty days.
	PolicyWarranty PolicyType = "warranty"
	// PolicyRedeemNoWarranty is 28 days from first join for warranty-less
	// redemptions.
	PolicyRedeemNoWarranty PolicyType = "redeem_no_warranty_28d"
	// PolicyManual is 28 days from first join for manually added members.
	PolicyManual PolicyType = "manual_28d"
)

const (
	SourceRedeem = "redeem"
	SourceManual = "manual"
)

const (
	EventJoin       = "join"
	EventRejoin     = "rejoin"
	EventReallocate = "reallocate"
)

const PolicyWindowDays = 28

// MemberLifecycle is the one-row-per-email policy tracker. PolicyType and
// PolicyExpiresAt are recomputed on every event; HasMigrationDowntime is
// sticky once set.
type MemberLifecycle struct {
	ID                   snowflake.ID  `gorm:"primaryKey" json:"id"`
	Email                string        `gorm:"column:email;uniqueIndex;not null" json:"email"`
	FirstJoinedAt        time.Time     `gorm:"column:first_joined_at;not null" json:"first_joined_at"`
	PolicyType           PolicyType    `gorm:"column:policy_type;not null" json:"policy_type"`
	PolicyExpiresAt      *time.Time    `gorm:"column:policy_expires_at" json:"policy_expires_at,omitempty"`
	HasMigrationDowntime bool          `gorm:"column:has_migration_downtime;not null;default:false" json:"has_migration_downtime"`
	IsLegacySeeded       bool          `gorm:"column:is_legacy_seeded;not null;default:false" json:"is_legacy_seeded"`
	EffectiveFrom        time.Time     `gorm:"column:effective_from;not null" json:"effective_from"`
	CurrentPoolID        *snowflake.ID `gorm:"column:current_pool_id" json:"current_pool_id,omitempty"`
	Status               string        `gorm:"column:status;not null;default:active" json:"status"`
	CreatedAt            time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt            time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (MemberLifecycle) TableName() string {
	return "member_lifecycles"
}

// MemberLifecycleEvent is the append-only audit trail behind each lifecycle.
type MemberLifecycleEvent struct {
	ID                snowflake.ID      `gorm:"primaryKey" json:"id"`
	LifecycleID       snowflake.ID      `gorm:"column:lifecycle_id;not null;index" json:"lifecycle_id"`
	EventType         string            `gorm:"column:event_type;not null" json:"event_type"`
	SourceType        string            `gorm:"column:source_type;not null" json:"source_type"`
	CodeOrManualTag   string            `gorm:"column:code_or_manual_tag" json:"code_or_manual_tag"`
	HasWarranty       bool              `gorm:"column:has_warranty;not null;default:false" json:"has_warranty"`
	WarrantyExpiresAt *time.Time        `gorm:"column:warranty_expires_at" json:"warranty_expires_at,omitempty"`
	FromPoolID        *snowflake.ID     `gorm:"column:from_pool_id" json:"from_pool_id,omitempty"`
	ToPoolID          *snowflake.ID     `gorm:"column:to_pool_id" json:"to_pool_id,omitempty"`
	EventAt           time.Time         `gorm:"column:event_at;not null" json:"event_at"`
	Metadata          datatypes.JSONMap `gorm:"column:metadata" json:"metadata"`
}

func (MemberLifecycleEvent) TableName() string {
	return "member_lifecycle_events"
}
