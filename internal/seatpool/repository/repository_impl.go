package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/seatwise/seatwise/internal/seatpool/domain"
	"github.com/seatwise/seatwise/pkg/db"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, conn *gorm.DB, pool *domain.SeatPool) error {
	return conn.WithContext(ctx).Create(pool).Error
}

func (r *repo) FindByID(ctx context.Context, conn *gorm.DB, id snowflake.ID) (*domain.SeatPool, error) {
	var pool domain.SeatPool
	err := conn.WithContext(ctx).Raw(
		`SELECT * FROM seat_pools WHERE id = ?`,
		id,
	).Scan(&pool).Error
	if err != nil {
		return nil, err
	}
	if pool.ID == 0 {
		return nil, nil
	}
	return &pool, nil
}

func (r *repo) LockByID(ctx context.Context, tx *gorm.DB, id snowflake.ID) (*domain.SeatPool, error) {
	var pool domain.SeatPool
	query := db.ForUpdate(tx, `SELECT * FROM seat_pools WHERE id = ?`)
	err := tx.WithContext(ctx).Raw(query, id).Scan(&pool).Error
	if err != nil {
		return nil, err
	}
	if pool.ID == 0 {
		return nil, nil
	}
	return &pool, nil
}

func (r *repo) NextAvailable(ctx context.Context, tx *gorm.DB, exclude []snowflake.ID) (*domain.SeatPool, error) {
	stmt := tx.WithContext(ctx).
		Model(&domain.SeatPool{}).
		Where("status = ?", domain.StatusActive).
		Where("seats_used < seat_capacity")
	if len(exclude) > 0 {
		stmt = stmt.Where("id NOT IN ?", exclude)
	}

	var pools []*domain.SeatPool
	err := stmt.
		Order("expires_at asc").
		Limit(1).
		Find(&pools).Error
	if err != nil {
		return nil, err
	}
	if len(pools) == 0 {
		return nil, nil
	}
	return pools[0], nil
}

func (r *repo) List(ctx context.Context, conn *gorm.DB) ([]*domain.SeatPool, error) {
	var pools []*domain.SeatPool
	err := conn.WithContext(ctx).
		Model(&domain.SeatPool{}).
		Order("expires_at asc, id asc").
		Find(&pools).Error
	if err != nil {
		return nil, err
	}
	return pools, nil
}

func (r *repo) Update(ctx context.Context, conn *gorm.DB, pool *domain.SeatPool) error {
	return conn.WithContext(ctx).Save(pool).Error
}
