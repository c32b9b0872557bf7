package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/seatwise/seatwise/internal/clock"
	"github.com/seatwise/seatwise/internal/config"
	"github.com/seatwise/seatwise/internal/lifecycle/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB     *gorm.DB
	Log    *zap.Logger
	GenID  *snowflake.Node
	Clock  clock.Clock
	Repo   domain.Repository
	RemCfg *config.ReminderConfigHolder
}

type Service struct {
	db     *gorm.DB
	log    *zap.Logger
	genID  *snowflake.Node
	clock  clock.Clock
	repo   domain.Repository
	remCfg *config.ReminderConfigHolder
}

func New(p Params) domain.Service {
	return &Service{
		db:     p.DB,
		log:    p.Log.Named("lifecycle.service"),
		genID:  p.GenID,
		clock:  p.Clock,
		repo:   p.Repo,
		remCfg: p.RemCfg,
	}
}

func (s *Service) Get(ctx context.Context, email string) (*domain.MemberLifecycle, error) {
	lifecycle, err := s.repo.FindByEmail(ctx, s.db, normalizeEmail(email))
	if err != nil {
		return nil, err
	}
	if lifecycle == nil {
		return nil, domain.ErrLifecycleNotFound
	}
	return lifecycle, nil
}

// UpsertEvent folds one membership event into the email's lifecycle row.
// Policy precedence, highest first: legacy seed with remaining warranty days,
// warranty from the event, 28 days from first join for redeem, 28 days from
// first join for everything else.
func (s *Service) UpsertEvent(ctx context.Context, conn *gorm.DB, req domain.UpsertEventRequest) (*domain.MemberLifecycle, error) {
	now := req.EventAt
	if now.IsZero() {
		now = s.clock.Now()
	}
	email := normalizeEmail(req.Email)

	lifecycle, err := s.repo.FindByEmail(ctx, conn, email)
	if err != nil {
		return nil, err
	}

	if lifecycle == nil {
		poolID := req.PoolID
		expires := now.AddDate(0, 0, domain.PolicyWindowDays)
		lifecycle = &domain.MemberLifecycle{
			ID:              s.genID.Generate(),
			Email:           email,
			FirstJoinedAt:   now,
			PolicyType:      domain.PolicyManual,
			PolicyExpiresAt: &expires,
			EffectiveFrom:   s.remCfg.Get().CutoverTime(),
			CurrentPoolID:   &poolID,
			Status:          "active",
			IsLegacySeeded:  req.IsLegacySeeded,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		if err := s.repo.Insert(ctx, conn, lifecycle); err != nil {
			return nil, err
		}
	}

	prevPoolID := lifecycle.CurrentPoolID
	if prevPoolID != nil && *prevPoolID != req.PoolID {
		// Sticky: once a member has hopped pools, the flag never clears.
		lifecycle.HasMigrationDowntime = true
	}

	poolID := req.PoolID
	lifecycle.CurrentPoolID = &poolID
	lifecycle.UpdatedAt = now

	switch {
	case req.IsLegacySeeded && req.LegacyRemainingDays != nil:
		expires := now.AddDate(0, 0, *req.LegacyRemainingDays)
		lifecycle.PolicyType = domain.PolicyWarranty
		lifecycle.PolicyExpiresAt = &expires
		lifecycle.IsLegacySeeded = true
	case req.HasWarranty:
		lifecycle.PolicyType = domain.PolicyWarranty
		lifecycle.PolicyExpiresAt = req.WarrantyExpiresAt
	case req.SourceType == domain.SourceRedeem:
		expires := lifecycle.FirstJoinedAt.AddDate(0, 0, domain.PolicyWindowDays)
		lifecycle.PolicyType = domain.PolicyRedeemNoWarranty
		lifecycle.PolicyExpiresAt = &expires
	default:
		expires := lifecycle.FirstJoinedAt.AddDate(0, 0, domain.PolicyWindowDays)
		lifecycle.PolicyType = domain.PolicyManual
		lifecycle.PolicyExpiresAt = &expires
	}

	if err := s.repo.Update(ctx, conn, lifecycle); err != nil {
		return nil, err
	}

	event := &domain.MemberLifecycleEvent{
		ID:                s.genID.Generate(),
		LifecycleID:       lifecycle.ID,
		EventType:         req.EventType,
		SourceType:        req.SourceType,
		CodeOrManualTag:   req.CodeOrManualTag,
		HasWarranty:       req.HasWarranty,
		WarrantyExpiresAt: req.WarrantyExpiresAt,
		FromPoolID:        prevPoolID,
		ToPoolID:          &poolID,
		EventAt:           now,
		Metadata:          datatypes.JSONMap{"legacy": req.IsLegacySeeded},
	}
	if err := s.repo.AppendEvent(ctx, conn, event); err != nil {
		return nil, err
	}

	s.log.Info("lifecycle event recorded",
		zap.String("email", email),
		zap.String("event_type", req.EventType),
		zap.String("policy_type", string(lifecycle.PolicyType)),
	)
	return lifecycle, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
