package service

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/seatwise/seatwise/internal/clock"
	"github.com/seatwise/seatwise/internal/config"
	"github.com/seatwise/seatwise/internal/lifecycle/domain"
	"github.com/seatwise/seatwise/internal/lifecycle/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newLifecycleEnv(t *testing.T) (domain.Service, *gorm.DB, *clock.FakeClock, *snowflake.Node) {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(
		&domain.MemberLifecycle{},
		&domain.MemberLifecycleEvent{},
	))

	node, _ := snowflake.NewNode(1)
	clk := clock.NewFakeClock(time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC))
	holder := &config.ReminderConfigHolder{}
	holder.Store(config.DefaultReminderConfig())

	svc := New(Params{
		DB: conn, Log: zap.NewNop(), GenID: node, Clock: clk,
		Repo: repository.Provide(), RemCfg: holder,
	})
	return svc, conn, clk, node
}

func TestUpsertEvent_PolicyPrecedence(t *testing.T) {
	svc, conn, clk, node := newLifecycleEnv(t)
	ctx := context.Background()
	pool := node.Generate()
	warrantyExpiry := clk.Now().AddDate(0, 0, 30)
	legacyDays := 12

	tests := []struct {
		name        string
		email       string
		req         domain.UpsertEventRequest
		wantPolicy  domain.PolicyType
		wantExpires time.Time
	}{
		{
			name:  "legacy seed wins over everything",
			email: "legacy@x.test",
			req: domain.UpsertEventRequest{
				SourceType: domain.SourceManual, HasWarranty: true,
				WarrantyExpiresAt: &warrantyExpiry,
				IsLegacySeeded:    true, LegacyRemainingDays: &legacyDays,
			},
			wantPolicy:  domain.PolicyWarranty,
			wantExpires: clk.Now().AddDate(0, 0, legacyDays),
		},
		{
			name:  "warranty beats redeem",
			email: "warranty@x.test",
			req: domain.UpsertEventRequest{
				SourceType: domain.SourceRedeem, HasWarranty: true,
				WarrantyExpiresAt: &warrantyExpiry,
			},
			wantPolicy:  domain.PolicyWarranty,
			wantExpires: warrantyExpiry,
		},
		{
			name:        "redeem without warranty gets 28 days from first join",
			email:       "redeem@x.test",
			req:         domain.UpsertEventRequest{SourceType: domain.SourceRedeem},
			wantPolicy:  domain.PolicyRedeemNoWarranty,
			wantExpires: clk.Now().AddDate(0, 0, 28),
		},
		{
			name:        "manual gets 28 days from first join",
			email:       "manual@x.test",
			req:         domain.UpsertEventRequest{SourceType: domain.SourceManual},
			wantPolicy:  domain.PolicyManual,
			wantExpires: clk.Now().AddDate(0, 0, 28),
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := tc.req
			req.Email = tc.email
			req.PoolID = pool
			req.EventType = domain.EventJoin

			lifecycle, err := svc.UpsertEvent(ctx, conn, req)
			require.NoError(t, err)
			assert.Equal(t, tc.wantPolicy, lifecycle.PolicyType)
			require.NotNil(t, lifecycle.PolicyExpiresAt)
			assert.Equal(t, tc.wantExpires, *lifecycle.PolicyExpiresAt)
		})
	}
}

func TestUpsertEvent_RedeemExpiryAnchorsToFirstJoin(t *testing.T) {
	svc, conn, clk, node := newLifecycleEnv(t)
	ctx := context.Background()
	pool := node.Generate()

	first, err := svc.UpsertEvent(ctx, conn, domain.UpsertEventRequest{
		Email: "m@x.test", PoolID: pool,
		SourceType: domain.SourceRedeem, EventType: domain.EventJoin,
	})
	require.NoError(t, err)
	firstJoined := first.FirstJoinedAt

	// A later redeem event must not move the 28-day window.
	clk.Advance(10 * 24 * time.Hour)
	second, err := svc.UpsertEvent(ctx, conn, domain.UpsertEventRequest{
		Email: "m@x.test", PoolID: pool,
		SourceType: domain.SourceRedeem, EventType: domain.EventRejoin,
	})
	require.NoError(t, err)
	assert.Equal(t, firstJoined, second.FirstJoinedAt)
	require.NotNil(t, second.PolicyExpiresAt)
	assert.Equal(t, firstJoined.AddDate(0, 0, 28), *second.PolicyExpiresAt)
}

func TestUpsertEvent_MigrationDowntimeIsSticky(t *testing.T) {
	svc, conn, _, node := newLifecycleEnv(t)
	ctx := context.Background()
	pool1 := node.Generate()
	pool2 := node.Generate()

	first, err := svc.UpsertEvent(ctx, conn, domain.UpsertEventRequest{
		Email: "s@x.test", PoolID: pool1,
		SourceType: domain.SourceRedeem, EventType: domain.EventJoin,
	})
	require.NoError(t, err)
	assert.False(t, first.HasMigrationDowntime)

	moved, err := svc.UpsertEvent(ctx, conn, domain.UpsertEventRequest{
		Email: "s@x.test", PoolID: pool2,
		SourceType: domain.SourceRedeem, EventType: domain.EventReallocate,
	})
	require.NoError(t, err)
	assert.True(t, moved.HasMigrationDowntime)

	// Returning to the original pool does not clear the flag.
	back, err := svc.UpsertEvent(ctx, conn, domain.UpsertEventRequest{
		Email: "s@x.test", PoolID: pool1,
		SourceType: domain.SourceRedeem, EventType: domain.EventReallocate,
	})
	require.NoError(t, err)
	assert.True(t, back.HasMigrationDowntime)
}

func TestUpsertEvent_AppendsEventEveryCall(t *testing.T) {
	svc, conn, _, node := newLifecycleEnv(t)
	ctx := context.Background()
	pool := node.Generate()

	for i := 0; i < 3; i++ {
		_, err := svc.UpsertEvent(ctx, conn, domain.UpsertEventRequest{
			Email: "audit@x.test", PoolID: pool,
			SourceType: domain.SourceManual, EventType: domain.EventJoin,
			CodeOrManualTag: "manual_add",
		})
		require.NoError(t, err)
	}

	var count int64
	require.NoError(t, conn.Model(&domain.MemberLifecycleEvent{}).Count(&count).Error)
	assert.EqualValues(t, 3, count)

	var rows int64
	require.NoError(t, conn.Model(&domain.MemberLifecycle{}).Count(&rows).Error)
	assert.EqualValues(t, 1, rows)
}
