package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/seatwise/seatwise/internal/clock"
	"github.com/seatwise/seatwise/internal/directory"
	lifecycledomain "github.com/seatwise/seatwise/internal/lifecycle/domain"
	"github.com/seatwise/seatwise/internal/observability/metrics"
	"github.com/seatwise/seatwise/internal/redeemflow/domain"
	redemptiondomain "github.com/seatwise/seatwise/internal/redemption/domain"
	seatpooldomain "github.com/seatwise/seatwise/internal/seatpool/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const maxAttempts = 3

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	GenID     *snowflake.Node
	Clock     clock.Clock
	Codes     redemptiondomain.Service
	CodeRepo  redemptiondomain.Repository
	Pools     seatpooldomain.Service
	PoolRepo  seatpooldomain.Repository
	Lifecycle lifecycledomain.Service
	Directory directory.Client
	Creds     directory.Credentials
}

type Service struct {
	db        *gorm.DB
	log       *zap.Logger
	genID     *snowflake.Node
	clock     clock.Clock
	codes     redemptiondomain.Service
	codeRepo  redemptiondomain.Repository
	pools     seatpooldomain.Service
	poolRepo  seatpooldomain.Repository
	lifecycle lifecycledomain.Service
	directory directory.Client
	creds     directory.Credentials
}

func New(p Params) domain.Service {
	return &Service{
		db:        p.DB,
		log:       p.Log.Named("redeemflow.service"),
		genID:     p.GenID,
		clock:     p.Clock,
		codes:     p.Codes,
		codeRepo:  p.CodeRepo,
		pools:     p.Pools,
		poolRepo:  p.PoolRepo,
		lifecycle: p.Lifecycle,
		directory: p.Directory,
		creds:     p.Creds,
	}
}

func (s *Service) Verify(ctx context.Context, code string) (domain.VerifyResult, error) {
	var result redemptiondomain.ValidateResult
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var verr error
		result, verr = s.codes.Validate(ctx, tx, code)
		return verr
	})
	if err != nil {
		return domain.VerifyResult{}, err
	}
	if !result.Valid {
		return domain.VerifyResult{Valid: false, Reason: result.Reason, Pools: []seatpooldomain.SeatPool{}}, nil
	}

	pools, err := s.pools.List(ctx)
	if err != nil {
		return domain.VerifyResult{}, err
	}
	available := make([]seatpooldomain.SeatPool, 0, len(pools))
	for _, pool := range pools {
		if pool.Status == seatpooldomain.StatusActive && pool.HasFreeSeat() {
			available = append(available, pool)
		}
	}
	return domain.VerifyResult{Valid: true, Pools: available}, nil
}

// reservation is the snapshot carried from the reserve transaction into the
// remote invite and finalize phases.
type reservation struct {
	code              string
	poolID            snowflake.ID
	remoteAccountID   string
	teamName          string
	poolExpiresAt     *time.Time
	isWarranty        bool
	warrantyExpiresAt *time.Time
}

// reserveFailure is a business refusal inside the reserve transaction, as
// opposed to an infrastructure error.
type reserveFailure struct {
	kind   domain.FailureKind
	reason string
}

func (f *reserveFailure) Error() string {
	return f.reason
}

// decideRetry is the saga's entire retry policy: reselection only happens
// when the caller did not pin a pool, attempts remain, and the failure is
// one a different pool could fix.
func decideRetry(attempt int, pinned bool, kind domain.FailureKind) bool {
	if pinned || attempt >= maxAttempts {
		return false
	}
	switch kind {
	case domain.FailPoolUnusable, domain.FailCredentials, domain.FailRemote, domain.FailInternal:
		return true
	default:
		return false
	}
}

func (s *Service) Redeem(ctx context.Context, req domain.RedeemRequest) (domain.RedeemResult, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	code := strings.TrimSpace(req.Code)
	if email == "" || !strings.Contains(email, "@") {
		return domain.RedeemResult{Success: false, Kind: domain.FailCodeInvalid, Reason: "invalid email address"}, nil
	}
	if code == "" {
		return domain.RedeemResult{Success: false, Kind: domain.FailCodeInvalid, Reason: "code is required"}, nil
	}

	pinned := req.PoolID != nil
	target := req.PoolID
	started := s.clock.Now()
	defer func() {
		metrics.Redeem().ObserveDuration(s.clock.Now().Sub(started))
	}()

	lastReason := "redemption failed"
	lastKind := domain.FailInternal

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		s.log.Info("redeem attempt",
			zap.String("email", email),
			zap.String("code", code),
			zap.Int("attempt", attempt),
		)

		resv, err := s.reserve(ctx, email, code, target)
		if err != nil {
			if refusal, ok := err.(*reserveFailure); ok {
				lastReason, lastKind = refusal.reason, refusal.kind
				if decideRetry(attempt, pinned, refusal.kind) {
					target = nil
					continue
				}
				metrics.Redeem().IncAttempt("refused")
				return domain.RedeemResult{Success: false, Kind: refusal.kind, Reason: refusal.reason}, nil
			}
			s.log.Error("reserve transaction failed", zap.Error(err))
			lastReason, lastKind = "internal error during reservation", domain.FailInternal
			if decideRetry(attempt, pinned, domain.FailInternal) {
				continue
			}
			metrics.Redeem().IncAttempt("error")
			return domain.RedeemResult{Success: false, Kind: domain.FailInternal, Reason: lastReason}, nil
		}

		result, kind, reason := s.inviteAndFinalize(ctx, email, code, resv)
		if result != nil {
			metrics.Redeem().IncAttempt("success")
			return *result, nil
		}

		lastReason, lastKind = reason, kind
		if decideRetry(attempt, pinned, kind) {
			target = nil
			continue
		}
		break
	}

	metrics.Redeem().IncAttempt("failed")
	return domain.RedeemResult{Success: false, Kind: lastKind, Reason: lastReason}, nil
}

func (s *Service) reserve(ctx context.Context, email, code string, target *snowflake.ID) (reservation, error) {
	// Validation commits on its own: when it flips an expired code the flip
	// must survive the refusal of the reservation below.
	var validation redemptiondomain.ValidateResult
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var verr error
		validation, verr = s.codes.Validate(ctx, tx, code)
		return verr
	})
	if err != nil {
		return reservation{}, err
	}
	if !validation.Valid {
		return reservation{}, &reserveFailure{kind: domain.FailCodeInvalid, reason: validation.Reason}
	}

	var resv reservation
	err = s.db.Transaction(func(tx *gorm.DB) error {
		locked, err := s.codeRepo.LockByCode(ctx, tx, code)
		if err != nil {
			return err
		}
		if locked == nil {
			return &reserveFailure{kind: domain.FailCodeInvalid, reason: "code record is missing"}
		}

		// A racing attempt may have consumed the code between validation
		// and the lock.
		allowed := locked.Status == redemptiondomain.CodeUnused ||
			locked.Status == redemptiondomain.CodeWarrantyActive ||
			(locked.Status == redemptiondomain.CodeUsed && locked.HasWarranty)
		if !allowed {
			return &reserveFailure{kind: domain.FailCodeTaken, reason: "code has already been used"}
		}

		var pool *seatpooldomain.SeatPool
		if target == nil {
			exclude, err := s.codeRepo.PoolIDsByEmail(ctx, tx, email)
			if err != nil {
				return err
			}
			candidate, err := s.poolRepo.NextAvailable(ctx, tx, exclude)
			if err != nil {
				return err
			}
			if candidate == nil {
				reason := "no seat pool available"
				if len(exclude) > 0 {
					reason = "email has already joined every available pool"
				}
				return &reserveFailure{kind: domain.FailNoPool, reason: reason}
			}
			pool, err = s.poolRepo.LockByID(ctx, tx, candidate.ID)
			if err != nil {
				return err
			}
		} else {
			pool, err = s.poolRepo.LockByID(ctx, tx, *target)
			if err != nil {
				return err
			}
		}
		if pool == nil {
			return &reserveFailure{kind: domain.FailPoolUnusable, reason: "selected pool no longer exists"}
		}
		if !pool.HasFreeSeat() {
			return &reserveFailure{kind: domain.FailPoolUnusable, reason: "selected pool is full"}
		}
		if pool.Status != seatpooldomain.StatusActive {
			return &reserveFailure{kind: domain.FailPoolUnusable, reason: fmt.Sprintf("selected pool is %s", pool.Status)}
		}

		now := s.clock.Now()
		isFirstUse := locked.Status == redemptiondomain.CodeUnused
		if !isFirstUse {
			if locked.HasWarranty {
				ok, reason := s.codes.CanReuseWarranty(locked, email, now)
				if !ok {
					return &reserveFailure{kind: domain.FailCodeTaken, reason: reason}
				}
			} else {
				return &reserveFailure{kind: domain.FailCodeTaken, reason: "code has already been used"}
			}
		}

		if locked.HasWarranty {
			locked.Status = redemptiondomain.CodeWarrantyActive
			if isFirstUse {
				days := locked.WarrantyDays
				if days <= 0 {
					days = 30
				}
				expires := now.AddDate(0, 0, days)
				locked.WarrantyExpiresAt = &expires
			}
		} else {
			locked.Status = redemptiondomain.CodeUsed
		}
		poolID := pool.ID
		locked.UsedByEmail = email
		locked.UsedPoolID = &poolID
		locked.UsedAt = &now
		if err := s.codeRepo.UpdateCode(ctx, tx, locked); err != nil {
			return err
		}

		pool.SeatsUsed++
		if !pool.HasFreeSeat() {
			pool.Status = seatpooldomain.StatusFull
		}
		pool.UpdatedAt = now
		if err := s.poolRepo.Update(ctx, tx, pool); err != nil {
			return err
		}

		resv = reservation{
			code:              code,
			poolID:            pool.ID,
			remoteAccountID:   pool.RemoteAccountID,
			teamName:          pool.TeamName,
			poolExpiresAt:     pool.ExpiresAt,
			isWarranty:        locked.HasWarranty,
			warrantyExpiresAt: locked.WarrantyExpiresAt,
		}
		return nil
	})
	if err != nil {
		return reservation{}, err
	}
	return resv, nil
}

// inviteAndFinalize runs the remote invite and, on success, the finalize
// transaction. On any failure the reservation is compensated first, then a
// failure kind and user-facing reason are returned for the retry decision.
func (s *Service) inviteAndFinalize(ctx context.Context, email, code string, resv reservation) (*domain.RedeemResult, domain.FailureKind, string) {
	// Re-read the pool outside the lock: tokens may have been rotated by a
	// concurrent sync since the reserve transaction committed.
	pool, err := s.poolRepo.FindByID(ctx, s.db, resv.poolID)
	if err != nil || pool == nil {
		s.compensateLogged(ctx, code, resv.poolID)
		return nil, domain.FailPoolUnusable, "selected pool is no longer available"
	}

	token, err := s.creds.EnsureAccessToken(ctx, s.db, pool)
	if err != nil || token == "" {
		s.compensateLogged(ctx, code, resv.poolID)
		return nil, domain.FailCredentials, "pool credentials are invalid and could not be refreshed"
	}

	if err := s.directory.InviteMember(ctx, token, resv.remoteAccountID, email); err != nil {
		s.compensateLogged(ctx, code, resv.poolID)

		kind := directory.KindOf(err)
		metrics.Redeem().IncInviteError(string(kind))

		reason := err.Error()
		status, herr := s.pools.HandleInviteError(ctx, s.db, resv.poolID, seatpooldomain.InviteErrorKind(kind))
		if herr != nil {
			s.log.Error("failed to record invite error", zap.Error(herr))
		} else {
			switch status {
			case seatpooldomain.StatusBanned:
				reason = "team account has been banned"
			case seatpooldomain.StatusFull:
				reason = "team has no free seats"
			case seatpooldomain.StatusError:
				reason = "team account keeps failing and was marked unhealthy"
			}
		}

		s.log.Warn("remote invite failed",
			zap.String("email", email),
			zap.Int64("pool_id", int64(resv.poolID)),
			zap.String("kind", string(kind)),
			zap.String("reason", reason),
		)
		return nil, domain.FailRemote, reason
	}

	now := s.clock.Now()
	err = s.db.Transaction(func(tx *gorm.DB) error {
		record := &redemptiondomain.RedemptionRecord{
			ID:              s.genID.Generate(),
			Email:           email,
			Code:            code,
			PoolID:          resv.poolID,
			RemoteAccountID: resv.remoteAccountID,
			RedeemedAt:      now,
			IsWarranty:      resv.isWarranty,
		}
		if err := s.codeRepo.InsertRecord(ctx, tx, record); err != nil {
			return err
		}

		var warrantyExpires *time.Time
		if resv.isWarranty {
			warrantyExpires = resv.warrantyExpiresAt
		}
		_, err := s.lifecycle.UpsertEvent(ctx, tx, lifecycledomain.UpsertEventRequest{
			Email:             email,
			PoolID:            resv.poolID,
			SourceType:        lifecycledomain.SourceRedeem,
			EventType:         lifecycledomain.EventJoin,
			CodeOrManualTag:   code,
			HasWarranty:       resv.isWarranty,
			WarrantyExpiresAt: warrantyExpires,
			EventAt:           now,
		})
		return err
	})
	if err != nil {
		s.log.Error("finalize transaction failed", zap.Error(err))
		s.compensateLogged(ctx, code, resv.poolID)
		return nil, domain.FailInternal, "internal error recording the allocation"
	}

	s.log.Info("redemption succeeded",
		zap.String("email", email),
		zap.String("code", code),
		zap.Int64("pool_id", int64(resv.poolID)),
	)
	return &domain.RedeemResult{
		Success: true,
		Message: fmt.Sprintf("joined team %s", resv.teamName),
		Pool: &domain.PoolInfo{
			PoolID:          resv.poolID,
			TeamName:        resv.teamName,
			RemoteAccountID: resv.remoteAccountID,
			ExpiresAt:       resv.poolExpiresAt,
		},
	}, "", ""
}

// Compensate undoes a reservation: the code is rewritten from its surviving
// allocation history and the pool's seat count is released. Running it when
// nothing was reserved is harmless.
func (s *Service) Compensate(ctx context.Context, code string, poolID snowflake.ID) error {
	err := s.db.Transaction(func(tx *gorm.DB) error {
		locked, err := s.codeRepo.LockByCode(ctx, tx, code)
		if err != nil {
			return err
		}
		if locked != nil {
			if err := s.codes.RestoreCodeFromHistory(ctx, tx, locked); err != nil {
				return err
			}
		}

		pool, err := s.poolRepo.LockByID(ctx, tx, poolID)
		if err != nil {
			return err
		}
		if pool != nil {
			if pool.SeatsUsed > 0 {
				pool.SeatsUsed--
			}
			if pool.Status == seatpooldomain.StatusFull && pool.HasFreeSeat() {
				pool.Status = seatpooldomain.StatusActive
			}
			pool.UpdatedAt = s.clock.Now()
			if err := s.poolRepo.Update(ctx, tx, pool); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	metrics.Redeem().IncCompensation()
	return nil
}

func (s *Service) compensateLogged(ctx context.Context, code string, poolID snowflake.ID) {
	if err := s.Compensate(ctx, code, poolID); err != nil {
		s.log.Error("compensation failed",
			zap.String("code", code),
			zap.Int64("pool_id", int64(poolID)),
			zap.Error(err),
		)
	}
}
