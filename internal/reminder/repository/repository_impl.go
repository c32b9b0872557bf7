package repository

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/seatwise/seatwise/internal/reminder/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, conn *gorm.DB, reminder *domain.PendingReminder) error {
	return conn.WithContext(ctx).Create(reminder).Error
}

func (r *repo) FindByID(ctx context.Context, conn *gorm.DB, id snowflake.ID) (*domain.PendingReminder, error) {
	var row domain.PendingReminder
	err := conn.WithContext(ctx).
		Where("id = ?", id).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *repo) Update(ctx context.Context, conn *gorm.DB, reminder *domain.PendingReminder) error {
	return conn.WithContext(ctx).Save(reminder).Error
}

func (r *repo) List(ctx context.Context, conn *gorm.DB) ([]*domain.PendingReminder, error) {
	var rows []*domain.PendingReminder
	err := conn.WithContext(ctx).
		Model(&domain.PendingReminder{}).
		Order("days_left asc, created_at desc").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repo) ListPending(ctx context.Context, conn *gorm.DB, limit int) ([]*domain.PendingReminder, error) {
	var rows []*domain.PendingReminder
	err := conn.WithContext(ctx).
		Model(&domain.PendingReminder{}).
		Where("status = ?", domain.StatusPending).
		Order("days_left asc, created_at asc").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}
