package domain

import (
	"context"
	"time"

	"gorm.io/gorm"
)

type Repository interface {
	FindByEmail(ctx context.Context, db *gorm.DB, email string) (*MemberLifecycle, error)
	Insert(ctx context.Context, db *gorm.DB, lifecycle *MemberLifecycle) error
	Update(ctx context.Context, db *gorm.DB, lifecycle *MemberLifecycle) error
	AppendEvent(ctx context.Context, db *gorm.DB, event *MemberLifecycleEvent) error
	// DueForReminder lists active lifecycles whose policy expires on or
	// before the threshold, limited to those effective after the cutover.
	DueForReminder(ctx context.Context, db *gorm.DB, cutover, threshold time.Time) ([]*MemberLifecycle, error)
}
