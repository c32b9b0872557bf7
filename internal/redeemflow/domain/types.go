package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	seatpooldomain "github.com/seatwise/seatwise/internal/seatpool/domain"
)

// FailureKind buckets why an allocation attempt could not complete. The
// saga's retry decision is a pure function of the kind plus attempt number
// and whether the caller pinned a pool.
type FailureKind string

const (
	// FailCodeInvalid covers missing, expired, or malformed codes.
	FailCodeInvalid FailureKind = "code_invalid"
	// FailCodeTaken means the code was consumed, by a racing attempt or
	// earlier; warranty reuse refusals land here too.
	FailCodeTaken FailureKind = "code_taken"
	// FailNoPool means auto-selection found no usable pool for the email.
	FailNoPool FailureKind = "no_pool_available"
	// FailPoolUnusable means the chosen pool vanished, filled up, or left
	// active status between selection and lock.
	FailPoolUnusable FailureKind = "pool_unusable"
	// FailCredentials means the pool's tokens could not produce a usable
	// access token.
	FailCredentials FailureKind = "credentials"
	// FailRemote is a classified remote directory failure.
	FailRemote FailureKind = "remote"
	// FailInternal is an unexpected local failure, already compensated.
	FailInternal FailureKind = "internal"
)

type RedeemRequest struct {
	Email  string
	Code   string
	PoolID *snowflake.ID // pinned pool; nil means auto-select
}

type PoolInfo struct {
	PoolID          snowflake.ID `json:"pool_id"`
	TeamName        string       `json:"team_name"`
	RemoteAccountID string       `json:"remote_account_id"`
	ExpiresAt       *time.Time   `json:"expires_at,omitempty"`
}

type RedeemResult struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Reason  string      `json:"reason,omitempty"`
	Kind    FailureKind `json:"-"`
	Pool    *PoolInfo   `json:"pool,omitempty"`
}

type VerifyResult struct {
	Valid  bool                      `json:"valid"`
	Reason string                    `json:"reason,omitempty"`
	Pools  []seatpooldomain.SeatPool `json:"pools"`
}

type Service interface {
	// Verify validates a code without consuming it and lists pools that
	// still have free seats.
	Verify(ctx context.Context, code string) (VerifyResult, error)
	// Redeem runs the full allocation: reserve locally, invite remotely,
	// finalize or compensate. Business failures come back inside the
	// result; a non-nil error means infrastructure trouble.
	Redeem(ctx context.Context, req RedeemRequest) (RedeemResult, error)
	// Compensate undoes a reservation for the code/pool pair. Safe to call
	// when no reservation exists.
	Compensate(ctx context.Context, code string, poolID snowflake.ID) error
}
