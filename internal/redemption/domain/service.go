package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// ValidateResult reports whether a code may enter an allocation attempt.
// Invalid is not an error: Reason carries the user-facing explanation.
type ValidateResult struct {
	Valid  bool
	Reason string
	Code   *RedemptionCode
}

type GenerateRequest struct {
	// Code pins the code value instead of generating one; single codes only.
	Code         string
	HasWarranty  bool
	WarrantyDays int
	ExpiresAt    *time.Time
}

type Service interface {
	// Validate checks the code against its status and expiry. A code past
	// its expiry is flipped to expired and persisted, so it takes a db
	// handle and should run inside the caller's transaction when the
	// caller needs atomicity with a follow-up lock.
	Validate(ctx context.Context, db *gorm.DB, code string) (ValidateResult, error)
	// CanReuseWarranty reports whether the email may re-redeem an already
	// used warranty code: the warranty window must be open and the email
	// must differ from the current holder.
	CanReuseWarranty(code *RedemptionCode, email string, now time.Time) (bool, string)
	GenerateSingle(ctx context.Context, req GenerateRequest) (RedemptionCode, error)
	GenerateBatch(ctx context.Context, req GenerateRequest, count int) ([]RedemptionCode, error)
	ListCodes(ctx context.Context) ([]*RedemptionCode, error)
	// WithdrawRecord removes an allocation record, releases its seat, and
	// recomputes the code's state from the surviving history.
	WithdrawRecord(ctx context.Context, id snowflake.ID) error
	// RestoreCodeFromHistory rewrites the code row from its surviving
	// allocation records; used by compensation and by withdraw.
	RestoreCodeFromHistory(ctx context.Context, tx *gorm.DB, code *RedemptionCode) error
}

var (
	ErrCodeNotFound   = errors.New("redemption_code_not_found")
	ErrRecordNotFound = errors.New("redemption_record_not_found")
	ErrInvalidCount   = errors.New("invalid_batch_count")
)
