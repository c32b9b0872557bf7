package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/seatwise/seatwise/internal/clock"
	"github.com/seatwise/seatwise/internal/directory"
	lifecycledomain "github.com/seatwise/seatwise/internal/lifecycle/domain"
	"github.com/seatwise/seatwise/internal/seatpool/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// errorStreakThreshold is how many consecutive server/network failures a
// pool absorbs before it is parked in StatusError.
const errorStreakThreshold = 3

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	GenID     *snowflake.Node
	Clock     clock.Clock
	Repo      domain.Repository
	Directory directory.Client
	Creds     directory.Credentials
	Lifecycle lifecycledomain.Service
}

type Service struct {
	db        *gorm.DB
	log       *zap.Logger
	genID     *snowflake.Node
	clock     clock.Clock
	repo      domain.Repository
	directory directory.Client
	creds     directory.Credentials
	lifecycle lifecycledomain.Service
}

func New(p Params) domain.Service {
	return &Service{
		db:        p.DB,
		log:       p.Log.Named("seatpool.service"),
		genID:     p.GenID,
		clock:     p.Clock,
		repo:      p.Repo,
		directory: p.Directory,
		creds:     p.Creds,
		lifecycle: p.Lifecycle,
	}
}

func (s *Service) Get(ctx context.Context, id snowflake.ID) (domain.SeatPool, error) {
	pool, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return domain.SeatPool{}, err
	}
	if pool == nil {
		return domain.SeatPool{}, domain.ErrNotFound
	}
	return *pool, nil
}

func (s *Service) List(ctx context.Context) ([]domain.SeatPool, error) {
	items, err := s.repo.List(ctx, s.db)
	if err != nil {
		return nil, err
	}
	pools := make([]domain.SeatPool, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		pools = append(pools, *item)
	}
	return pools, nil
}

// HandleInviteError folds a classified remote failure into the pool's health
// counters. Conflicts mean the remote side already has the member, so the
// pool itself is fine; permission failures mean the account is banned;
// validation failures mean the remote seat count disagrees with ours, so we
// trust the remote and park the pool as full. Server and network failures
// only count against the streak until it crosses the threshold.
func (s *Service) HandleInviteError(ctx context.Context, conn *gorm.DB, poolID snowflake.ID, kind domain.InviteErrorKind) (domain.Status, error) {
	var status domain.Status
	err := conn.Transaction(func(tx *gorm.DB) error {
		pool, err := s.repo.LockByID(ctx, tx, poolID)
		if err != nil {
			return err
		}
		if pool == nil {
			return domain.ErrNotFound
		}

		switch kind {
		case domain.InviteErrConflict:
			pool.ErrorCount = 0
		case domain.InviteErrValidation:
			pool.Status = domain.StatusFull
			pool.SeatsUsed = pool.SeatCapacity
		case domain.InviteErrPermission:
			pool.Status = domain.StatusBanned
		case domain.InviteErrNotFound:
			pool.Status = domain.StatusError
		case domain.InviteErrUnauthorized:
			pool.ErrorCount++
		case domain.InviteErrServer, domain.InviteErrNetwork:
			pool.ErrorCount++
			if pool.ErrorCount >= errorStreakThreshold {
				pool.Status = domain.StatusError
			}
		}

		pool.UpdatedAt = s.clock.Now()
		if err := s.repo.Update(ctx, tx, pool); err != nil {
			return err
		}
		status = pool.Status
		return nil
	})
	if err != nil {
		return "", err
	}

	s.log.Warn("recorded invite error against pool",
		zap.Int64("pool_id", int64(poolID)),
		zap.String("kind", string(kind)),
		zap.String("status", string(status)),
	)
	return status, nil
}

func (s *Service) Update(ctx context.Context, req domain.UpdatePoolRequest) (domain.SeatPool, error) {
	if req.SeatCapacity != nil && *req.SeatCapacity < 1 {
		return domain.SeatPool{}, domain.ErrInvalidCapacity
	}

	var updated domain.SeatPool
	err := s.db.Transaction(func(tx *gorm.DB) error {
		pool, err := s.repo.LockByID(ctx, tx, req.PoolID)
		if err != nil {
			return err
		}
		if pool == nil {
			return domain.ErrNotFound
		}

		if req.TeamName != nil {
			pool.TeamName = *req.TeamName
		}
		if req.SeatCapacity != nil {
			pool.SeatCapacity = *req.SeatCapacity
		}
		if req.Status != nil {
			pool.Status = *req.Status
			pool.ErrorCount = 0
		}
		if req.AccessToken != nil {
			pool.AccessToken = *req.AccessToken
		}
		if req.RefreshToken != nil {
			pool.RefreshToken = *req.RefreshToken
		}
		if req.SessionToken != nil {
			pool.SessionToken = *req.SessionToken
		}

		// Capacity changes can flip the pool either way.
		if !pool.HasFreeSeat() && pool.Status == domain.StatusActive {
			pool.Status = domain.StatusFull
		}
		if pool.HasFreeSeat() && pool.Status == domain.StatusFull {
			pool.Status = domain.StatusActive
		}

		pool.UpdatedAt = s.clock.Now()
		if err := s.repo.Update(ctx, tx, pool); err != nil {
			return err
		}
		updated = *pool
		return nil
	})
	if err != nil {
		return domain.SeatPool{}, err
	}
	return updated, nil
}

func (s *Service) AddMember(ctx context.Context, req domain.AddMemberRequest) error {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" || !strings.Contains(email, "@") {
		return domain.ErrInvalidEmail
	}
	if req.LegacySeed {
		if req.LegacyDays == nil || *req.LegacyDays < 0 || *req.LegacyDays > 365 {
			return domain.ErrInvalidLegacy
		}
	}

	pool, err := s.repo.FindByID(ctx, s.db, req.PoolID)
	if err != nil {
		return err
	}
	if pool == nil {
		return domain.ErrNotFound
	}
	if pool.Status != domain.StatusActive || !pool.HasFreeSeat() {
		return domain.ErrPoolUnavailable
	}

	token, err := s.creds.EnsureAccessToken(ctx, s.db, pool)
	if err != nil {
		return err
	}
	if token == "" {
		return domain.ErrPoolUnavailable
	}

	if err := s.directory.InviteMember(ctx, token, pool.RemoteAccountID, email); err != nil {
		if _, herr := s.HandleInviteError(ctx, s.db, pool.ID, domain.InviteErrorKind(directory.KindOf(err))); herr != nil {
			s.log.Error("failed to record invite error", zap.Error(herr))
		}
		return err
	}

	return s.db.Transaction(func(tx *gorm.DB) error {
		locked, err := s.repo.LockByID(ctx, tx, req.PoolID)
		if err != nil {
			return err
		}
		if locked == nil {
			return domain.ErrNotFound
		}

		// The invite already went through remotely. The member is counted
		// even when the pool filled between the pre-check and this lock.
		if !locked.HasFreeSeat() {
			s.log.Warn("pool filled during invite, seat count exceeds capacity",
				zap.Int64("pool_id", int64(locked.ID)),
				zap.Int("seats_used", locked.SeatsUsed+1),
				zap.Int("seat_capacity", locked.SeatCapacity),
			)
		}
		locked.SeatsUsed++
		if !locked.HasFreeSeat() && locked.Status == domain.StatusActive {
			locked.Status = domain.StatusFull
		}
		locked.UpdatedAt = s.clock.Now()
		if err := s.repo.Update(ctx, tx, locked); err != nil {
			return err
		}

		tag := req.ManualTag
		if tag == "" {
			tag = "manual_add"
		}
		_, err = s.lifecycle.UpsertEvent(ctx, tx, lifecycledomain.UpsertEventRequest{
			Email:               email,
			PoolID:              req.PoolID,
			SourceType:          lifecycledomain.SourceManual,
			EventType:           lifecycledomain.EventJoin,
			CodeOrManualTag:     tag,
			IsLegacySeeded:      req.LegacySeed,
			LegacyRemainingDays: req.LegacyDays,
		})
		return err
	})
}
