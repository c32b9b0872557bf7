package repository

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/seatwise/seatwise/internal/redemption/domain"
	"github.com/seatwise/seatwise/pkg/db"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) InsertCode(ctx context.Context, conn *gorm.DB, code *domain.RedemptionCode) error {
	return conn.WithContext(ctx).Create(code).Error
}

func (r *repo) FindByCode(ctx context.Context, conn *gorm.DB, code string) (*domain.RedemptionCode, error) {
	var row domain.RedemptionCode
	err := conn.WithContext(ctx).
		Where("code = ?", code).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *repo) LockByCode(ctx context.Context, tx *gorm.DB, code string) (*domain.RedemptionCode, error) {
	var row domain.RedemptionCode
	query := db.ForUpdate(tx, `SELECT * FROM redemption_codes WHERE code = ?`)
	err := tx.WithContext(ctx).Raw(query, code).Scan(&row).Error
	if err != nil {
		return nil, err
	}
	if row.ID == 0 {
		return nil, nil
	}
	return &row, nil
}

func (r *repo) UpdateCode(ctx context.Context, conn *gorm.DB, code *domain.RedemptionCode) error {
	return conn.WithContext(ctx).Save(code).Error
}

func (r *repo) ListCodes(ctx context.Context, conn *gorm.DB) ([]*domain.RedemptionCode, error) {
	var codes []*domain.RedemptionCode
	err := conn.WithContext(ctx).
		Model(&domain.RedemptionCode{}).
		Order("created_at desc, id desc").
		Find(&codes).Error
	if err != nil {
		return nil, err
	}
	return codes, nil
}

func (r *repo) InsertRecord(ctx context.Context, conn *gorm.DB, record *domain.RedemptionRecord) error {
	return conn.WithContext(ctx).Create(record).Error
}

func (r *repo) FindRecordByID(ctx context.Context, conn *gorm.DB, id snowflake.ID) (*domain.RedemptionRecord, error) {
	var row domain.RedemptionRecord
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

func (r *repo) DeleteRecord(ctx context.Context, conn *gorm.DB, id snowflake.ID) error {
	return conn.WithContext(ctx).
		Where("id = ?", id).
		Delete(&domain.RedemptionRecord{}).Error
}

func (r *repo) RecordsByCode(ctx context.Context, conn *gorm.DB, code string) ([]*domain.RedemptionRecord, error) {
	var records []*domain.RedemptionRecord
	err := conn.WithContext(ctx).
		Model(&domain.RedemptionRecord{}).
		Where("code = ?", code).
		Order("redeemed_at desc, id desc").
		Find(&records).Error
	if err != nil {
		return nil, err
	}
	return records, nil
}

func (r *repo) PoolIDsByEmail(ctx context.Context, conn *gorm.DB, email string) ([]snowflake.ID, error) {
	var ids []snowflake.ID
	err := conn.WithContext(ctx).
		Model(&domain.RedemptionRecord{}).
		Where("email = ?", email).
		Distinct().
		Pluck("pool_id", &ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}
