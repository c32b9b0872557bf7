package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// UpsertEventRequest describes one membership event to fold into the
// per-email lifecycle. EventAt of zero means "now".
type UpsertEventRequest struct {
	Email               string
	PoolID              snowflake.ID
	SourceType          string
	EventType           string
	CodeOrManualTag     string
	HasWarranty         bool
	WarrantyExpiresAt   *time.Time
	IsLegacySeeded      bool
	LegacyRemainingDays *int
	EventAt             time.Time
}

type Service interface {
	// UpsertEvent creates or updates the lifecycle row for the email,
	// recomputes the policy, and appends an audit event. It takes a db
	// handle so callers can run it inside their own transaction.
	UpsertEvent(ctx context.Context, db *gorm.DB, req UpsertEventRequest) (*MemberLifecycle, error)
	Get(ctx context.Context, email string) (*MemberLifecycle, error)
}

var ErrLifecycleNotFound = errors.New("member_lifecycle_not_found")
