package directory

import (
	"context"
	"errors"
	"fmt"

	seatpooldomain "github.com/seatwise/seatwise/internal/seatpool/domain"
	"gorm.io/gorm"
)

// ErrorKind classifies a remote directory failure for the saga and the seat
// pool error classifier.
type ErrorKind string

const (
	KindConflict     ErrorKind = "conflict"
	KindValidation   ErrorKind = "validation"
	KindUnauthorized ErrorKind = "unauthorized"
	KindPermission   ErrorKind = "permission"
	KindNotFound     ErrorKind = "not_found"
	KindServer       ErrorKind = "server"
	KindNetwork      ErrorKind = "network"
)

// Error is a classified remote failure. The directory holds no authoritative
// state, so callers only use Kind and Message to decide what to do locally.
type Error struct {
	Kind       ErrorKind
	StatusCode int
	Message    string
}

func (e *Error) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("directory: %s (%d): %s", e.Kind, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("directory: %s: %s", e.Kind, e.Message)
}

// KindOf extracts the error kind, defaulting to KindNetwork for plain errors.
func KindOf(err error) ErrorKind {
	var dirErr *Error
	if errors.As(err, &dirErr) {
		return dirErr.Kind
	}
	return KindNetwork
}

// Member is a remote team member entry.
type Member struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Role  string `json:"role"`
	Name  string `json:"name"`
}

// Invite is a remote pending invite entry.
type Invite struct {
	ID    string `json:"id"`
	Email string `json:"email_address"`
	Role  string `json:"role"`
}

// AccountInfo is the remote subscription snapshot for a team account.
type AccountInfo struct {
	AccountID        string `json:"account_id"`
	Name             string `json:"name"`
	PlanType         string `json:"plan_type"`
	AccountUserRole  string `json:"account_user_role"`
	SubscriptionPlan string `json:"subscription_plan"`
	ExpiresAt        string `json:"expires_at"`
	ActiveSub        bool   `json:"has_active_subscription"`
}

// TokenPair carries rotated credentials back from a refresh call.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	SessionToken string
}

// Client talks to the remote team directory. All calls are classified: a
// returned error is either a *Error or a transport failure.
type Client interface {
	InviteMember(ctx context.Context, accessToken, accountID, email string) error
	ListMembers(ctx context.Context, accessToken, accountID string) ([]Member, error)
	ListInvites(ctx context.Context, accessToken, accountID string) ([]Invite, error)
	RevokeInvite(ctx context.Context, accessToken, accountID, email string) error
	RemoveMember(ctx context.Context, accessToken, accountID, userID string) error
	ListAccounts(ctx context.Context, accessToken string) ([]AccountInfo, error)
	RefreshWithRefreshToken(ctx context.Context, refreshToken, clientID string) (TokenPair, error)
	RefreshWithSessionToken(ctx context.Context, sessionToken, accountID string) (TokenPair, error)
}

// Credentials yields a usable access token for a pool, refreshing when stale.
// An empty token with a nil error means the pool's credentials are
// irrecoverable; callers treat that as a pool-level failure, not a transport
// error.
type Credentials interface {
	EnsureAccessToken(ctx context.Context, db *gorm.DB, pool *seatpooldomain.SeatPool) (string, error)
}
