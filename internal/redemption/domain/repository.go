package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	InsertCode(ctx context.Context, db *gorm.DB, code *RedemptionCode) error
	FindByCode(ctx context.Context, db *gorm.DB, code string) (*RedemptionCode, error)
	// LockByCode reads the code row under FOR UPDATE; call inside a transaction.
	LockByCode(ctx context.Context, tx *gorm.DB, code string) (*RedemptionCode, error)
	UpdateCode(ctx context.Context, db *gorm.DB, code *RedemptionCode) error
	ListCodes(ctx context.Context, db *gorm.DB) ([]*RedemptionCode, error)

	InsertRecord(ctx context.Context, db *gorm.DB, record *RedemptionRecord) error
	FindRecordByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*RedemptionRecord, error)
	DeleteRecord(ctx context.Context, db *gorm.DB, id snowflake.ID) error
	// RecordsByCode returns allocation records newest first.
	RecordsByCode(ctx context.Context, db *gorm.DB, code string) ([]*RedemptionRecord, error)
	// PoolIDsByEmail lists every pool the email has ever been allocated into.
	PoolIDsByEmail(ctx context.Context, db *gorm.DB, email string) ([]snowflake.ID, error)
}
