package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	// Insert adds a queue row; a duplicate dedupe key surfaces as a
	// database duplicate-key error for the caller to swallow.
	Insert(ctx context.Context, db *gorm.DB, reminder *PendingReminder) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*PendingReminder, error)
	Update(ctx context.Context, db *gorm.DB, reminder *PendingReminder) error
	// List returns the whole queue, most urgent first.
	List(ctx context.Context, db *gorm.DB) ([]*PendingReminder, error)
	// ListPending returns pending rows oldest-and-most-urgent first, capped
	// at limit.
	ListPending(ctx context.Context, db *gorm.DB, limit int) ([]*PendingReminder, error)
}
