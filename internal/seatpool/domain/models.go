package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type Status string

const (
	StatusActive  Status = "active"
	StatusFull    Status = "full"
	StatusExpired Status = "expired"
	StatusError   Status = "error"
	StatusBanned  Status = "banned"
)

// SeatPool is an externally-hosted team account tracked as a local ledger row.
// SeatsUsed never exceeds SeatCapacity; the transition to StatusFull happens
// at increment time, not on read.
type SeatPool struct {
	ID               snowflake.ID `gorm:"primaryKey" json:"id"`
	AdminEmail       string       `gorm:"column:admin_email;not null" json:"admin_email"`
	AccessToken      string       `gorm:"column:access_token;not null" json:"-"`
	RefreshToken     string       `gorm:"column:refresh_token" json:"-"`
	SessionToken     string       `gorm:"column:session_token" json:"-"`
	ClientID         string       `gorm:"column:client_id" json:"-"`
	RemoteAccountID  string       `gorm:"column:remote_account_id" json:"remote_account_id"`
	TeamName         string       `gorm:"column:team_name" json:"team_name"`
	PlanType         string       `gorm:"column:plan_type" json:"plan_type"`
	SubscriptionPlan string       `gorm:"column:subscription_plan" json:"subscription_plan"`
	ExpiresAt        *time.Time   `gorm:"column:expires_at" json:"expires_at,omitempty"`
	SeatsUsed        int          `gorm:"column:seats_used;not null;default:0" json:"seats_used"`
	SeatCapacity     int          `gorm:"column:seat_capacity;not null;default:6" json:"seat_capacity"`
	Status           Status       `gorm:"column:status;not null;default:active" json:"status"`
	AccountRole      string       `gorm:"column:account_role" json:"account_role"`
	ErrorCount       int          `gorm:"column:error_count;not null;default:0" json:"error_count"`
	LastSync         *time.Time   `gorm:"column:last_sync" json:"last_sync,omitempty"`
	CreatedAt        time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt        time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (SeatPool) TableName() string {
	return "seat_pools"
}

// HasFreeSeat reports whether a reservation may still be placed on the pool.
func (p *SeatPool) HasFreeSeat() bool {
	return p.SeatsUsed < p.SeatCapacity
}
