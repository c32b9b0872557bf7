package repository

import (
	"context"
	"errors"
	"time"

	"github.com/seatwise/seatwise/internal/lifecycle/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) FindByEmail(ctx context.Context, conn *gorm.DB, email string) (*domain.MemberLifecycle, error) {
	var lifecycle domain.MemberLifecycle
	err := conn.WithContext(ctx).
		Where("email = ?", email).
		First(&lifecycle).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &lifecycle, nil
}

func (r *repo) Insert(ctx context.Context, conn *gorm.DB, lifecycle *domain.MemberLifecycle) error {
	return conn.WithContext(ctx).Create(lifecycle).Error
}

func (r *repo) Update(ctx context.Context, conn *gorm.DB, lifecycle *domain.MemberLifecycle) error {
	return conn.WithContext(ctx).Save(lifecycle).Error
}

func (r *repo) AppendEvent(ctx context.Context, conn *gorm.DB, event *domain.MemberLifecycleEvent) error {
	return conn.WithContext(ctx).Create(event).Error
}

func (r *repo) DueForReminder(ctx context.Context, conn *gorm.DB, cutover, threshold time.Time) ([]*domain.MemberLifecycle, error) {
	var lifecycles []*domain.MemberLifecycle
	err := conn.WithContext(ctx).
		Model(&domain.MemberLifecycle{}).
		Where("status = ?", "active").
		Where("effective_from >= ?", cutover).
		Where("policy_expires_at IS NOT NULL").
		Where("policy_expires_at <= ?", threshold).
		Find(&lifecycles).Error
	if err != nil {
		return nil, err
	}
	return lifecycles, nil
}
