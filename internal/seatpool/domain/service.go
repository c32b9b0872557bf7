package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// InviteErrorKind mirrors the directory client's failure taxonomy as consumed
// by the error classifier.
type InviteErrorKind string

const (
	InviteErrConflict     InviteErrorKind = "conflict"
	InviteErrValidation   InviteErrorKind = "validation"
	InviteErrUnauthorized InviteErrorKind = "unauthorized"
	InviteErrPermission   InviteErrorKind = "permission"
	InviteErrNotFound     InviteErrorKind = "not_found"
	InviteErrServer       InviteErrorKind = "server"
	InviteErrNetwork      InviteErrorKind = "network"
)

type AddMemberRequest struct {
	PoolID        snowflake.ID
	Email         string
	LegacySeed    bool
	LegacyDays    *int
	ManualTag     string
}

// UpdatePoolRequest carries the admin-editable pool fields; nil means keep.
type UpdatePoolRequest struct {
	PoolID       snowflake.ID
	TeamName     *string
	SeatCapacity *int
	Status       *Status
	AccessToken  *string
	RefreshToken *string
	SessionToken *string
}

type Service interface {
	Get(ctx context.Context, id snowflake.ID) (SeatPool, error)
	List(ctx context.Context) ([]SeatPool, error)
	// HandleInviteError records a remote invite failure against the pool's
	// health counters and returns the resulting status.
	HandleInviteError(ctx context.Context, db *gorm.DB, poolID snowflake.ID, kind InviteErrorKind) (Status, error)
	// AddMember invites an email into a specific pool outside the redemption
	// flow (admin path), recording a manual lifecycle event.
	AddMember(ctx context.Context, req AddMemberRequest) error
	// Update edits the admin-controlled pool fields and re-derives the
	// full/active status from the new capacity.
	Update(ctx context.Context, req UpdatePoolRequest) (SeatPool, error)
}

var (
	ErrNotFound        = errors.New("seat_pool_not_found")
	ErrPoolUnavailable = errors.New("seat_pool_unavailable")
	ErrInvalidEmail    = errors.New("invalid_email")
	ErrInvalidLegacy   = errors.New("invalid_legacy_days")
	ErrInvalidCapacity = errors.New("invalid_seat_capacity")
)
