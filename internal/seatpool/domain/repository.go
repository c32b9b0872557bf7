package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, pool *SeatPool) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*SeatPool, error)
	// LockByID reads the pool row under FOR UPDATE; call inside a transaction.
	LockByID(ctx context.Context, tx *gorm.DB, id snowflake.ID) (*SeatPool, error)
	// NextAvailable picks the active pool with free seats and the nearest
	// subscription expiry, skipping the given pool ids.
	NextAvailable(ctx context.Context, tx *gorm.DB, exclude []snowflake.ID) (*SeatPool, error)
	List(ctx context.Context, db *gorm.DB) ([]*SeatPool, error)
	Update(ctx context.Context, db *gorm.DB, pool *SeatPool) error
}
