package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/seatwise/seatwise/internal/clock"
	"github.com/seatwise/seatwise/internal/config"
	lifecycledomain "github.com/seatwise/seatwise/internal/lifecycle/domain"
	"github.com/seatwise/seatwise/internal/providers/notify"
	"github.com/seatwise/seatwise/internal/reminder/domain"
	"github.com/seatwise/seatwise/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB            *gorm.DB
	Log           *zap.Logger
	GenID         *snowflake.Node
	Clock         clock.Clock
	Repo          domain.Repository
	LifecycleRepo lifecycledomain.Repository
	Notifier      notify.Provider
	RemCfg        *config.ReminderConfigHolder
}

type Service struct {
	db            *gorm.DB
	log           *zap.Logger
	genID         *snowflake.Node
	clock         clock.Clock
	repo          domain.Repository
	lifecycleRepo lifecycledomain.Repository
	notifier      notify.Provider
	remCfg        *config.ReminderConfigHolder
}

func New(p Params) domain.Service {
	return &Service{
		db:            p.DB,
		log:           p.Log.Named("reminder.service"),
		genID:         p.GenID,
		clock:         p.Clock,
		repo:          p.Repo,
		lifecycleRepo: p.LifecycleRepo,
		notifier:      p.Notifier,
		remCfg:        p.RemCfg,
	}
}

func (s *Service) CollectDueReminders(ctx context.Context, dueDays int) (domain.CollectResult, error) {
	if dueDays <= 0 {
		dueDays = 3
	}
	now := s.clock.Now()
	threshold := now.AddDate(0, 0, dueDays)
	cutover := s.remCfg.Get().CutoverTime()

	lifecycles, err := s.lifecycleRepo.DueForReminder(ctx, s.db, cutover, threshold)
	if err != nil {
		return domain.CollectResult{}, err
	}

	var result domain.CollectResult
	for _, lifecycle := range lifecycles {
		if lifecycle.PolicyExpiresAt == nil {
			continue
		}
		// Grace rule: members forced through a pool reassignment on the
		// no-warranty redeem policy are never nagged about that expiry.
		if lifecycle.PolicyType == lifecycledomain.PolicyRedeemNoWarranty && lifecycle.HasMigrationDowntime {
			result.Skipped++
			continue
		}

		reason := reasonFor(lifecycle.PolicyType)
		daysLeft := daysUntil(now, *lifecycle.PolicyExpiresAt)
		dedupeKey := fmt.Sprintf("%s|%s|%s",
			lifecycle.Email,
			lifecycle.PolicyExpiresAt.Format("2006-01-02"),
			reason,
		)

		reminder := &domain.PendingReminder{
			ID:              s.genID.Generate(),
			LifecycleID:     lifecycle.ID,
			Email:           lifecycle.Email,
			PolicyType:      string(lifecycle.PolicyType),
			TargetExpiresAt: lifecycle.PolicyExpiresAt,
			DaysLeft:        daysLeft,
			Reason:          reason,
			Status:          domain.StatusPending,
			DedupeKey:       dedupeKey,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		if err := s.repo.Insert(ctx, s.db, reminder); err != nil {
			if db.IsDuplicateKeyErr(err) {
				result.Skipped++
				continue
			}
			return domain.CollectResult{}, err
		}
		result.Created++
	}

	s.log.Info("reminder sweep finished",
		zap.Int("created", result.Created),
		zap.Int("skipped", result.Skipped),
	)
	return result, nil
}

func (s *Service) SendReminder(ctx context.Context, id snowflake.ID) error {
	row, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return err
	}
	if row == nil {
		return domain.ErrReminderNotFound
	}

	cfg := s.remCfg.Get()
	subject, body := renderMessage(cfg, row)

	now := s.clock.Now()
	if sendErr := s.notifier.Send(ctx, row.Email, subject, body); sendErr != nil {
		row.LastSendResult = sendErr.Error()
		row.UpdatedAt = now
		if errors.Is(sendErr, notify.ErrNotConfigured) {
			// Parking the row stops the scheduler from re-failing it on
			// every sweep until the channel is configured.
			row.Status = domain.StatusSkipped
			if err := s.repo.Update(ctx, s.db, row); err != nil {
				return err
			}
			s.log.Warn("reminder skipped, no delivery channel",
				zap.Int64("reminder_id", int64(id)),
				zap.String("email", row.Email),
			)
			return fmt.Errorf("%w: %s", domain.ErrChannelNotConfigured, sendErr.Error())
		}
		if err := s.repo.Update(ctx, s.db, row); err != nil {
			return err
		}
		s.log.Warn("reminder send failed",
			zap.Int64("reminder_id", int64(id)),
			zap.String("email", row.Email),
			zap.Error(sendErr),
		)
		return fmt.Errorf("%w: %s", domain.ErrSendFailed, sendErr.Error())
	}

	row.Status = domain.StatusSent
	row.LastSentAt = &now
	row.LastSendResult = "sent"
	row.UpdatedAt = now
	return s.repo.Update(ctx, s.db, row)
}

func (s *Service) AutoSendPending(ctx context.Context, limit int) (domain.SendSummary, error) {
	if limit <= 0 {
		limit = 50
	}
	pending, err := s.repo.ListPending(ctx, s.db, limit)
	if err != nil {
		return domain.SendSummary{}, err
	}

	summary := domain.SendSummary{Total: len(pending)}
	for _, row := range pending {
		if err := s.SendReminder(ctx, row.ID); err != nil {
			if errors.Is(err, domain.ErrChannelNotConfigured) {
				summary.Skipped++
				continue
			}
			summary.Failed++
			continue
		}
		summary.Sent++
	}
	return summary, nil
}

func (s *Service) List(ctx context.Context) ([]*domain.PendingReminder, error) {
	return s.repo.List(ctx, s.db)
}

func reasonFor(policy lifecycledomain.PolicyType) string {
	switch policy {
	case lifecycledomain.PolicyWarranty:
		return domain.ReasonWarrantyDue
	case lifecycledomain.PolicyManual:
		return domain.ReasonManualDue
	case lifecycledomain.PolicyRedeemNoWarranty:
		return domain.ReasonRedeemNoWarrantyDue
	default:
		return domain.ReasonPolicyDue
	}
}

func daysUntil(now, expiry time.Time) int {
	days := int(expiry.Sub(now).Hours() / 24)
	if days < 0 {
		return 0
	}
	return days
}

func renderMessage(cfg config.ReminderConfig, row *domain.PendingReminder) (string, string) {
	body := cfg.BodyTemplate
	body = strings.ReplaceAll(body, "{email}", row.Email)
	if row.TargetExpiresAt != nil {
		body = strings.ReplaceAll(body, "{expire_at}", row.TargetExpiresAt.Format("2006-01-02 15:04"))
	}
	body = strings.ReplaceAll(body, "{days_left}", strconv.Itoa(row.DaysLeft))
	return cfg.Subject, body
}
