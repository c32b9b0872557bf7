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
	"github.com/seatwise/seatwise/internal/redemption/domain"
	"github.com/seatwise/seatwise/internal/redemption/repository"
	seatpooldomain "github.com/seatwise/seatwise/internal/seatpool/domain"
	seatpoolrepo "github.com/seatwise/seatwise/internal/seatpool/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type codeEnv struct {
	svc   domain.Service
	db    *gorm.DB
	clk   *clock.FakeClock
	genID *snowflake.Node
}

func newCodeEnv(t *testing.T) *codeEnv {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(
		&domain.RedemptionCode{},
		&domain.RedemptionRecord{},
		&seatpooldomain.SeatPool{},
	))

	node, _ := snowflake.NewNode(1)
	clk := clock.NewFakeClock(time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC))
	svc := New(Params{
		DB: conn, Log: zap.NewNop(), GenID: node, Clock: clk,
		Repo:     repository.Provide(),
		PoolRepo: seatpoolrepo.Provide(),
	})
	return &codeEnv{svc: svc, db: conn, clk: clk, genID: node}
}

func TestGenerateBatch(t *testing.T) {
	env := newCodeEnv(t)

	codes, err := env.svc.GenerateBatch(context.Background(), domain.GenerateRequest{HasWarranty: true}, 5)
	require.NoError(t, err)
	require.Len(t, codes, 5)

	seen := map[string]bool{}
	for _, code := range codes {
		assert.Len(t, code.Code, 32)
		assert.False(t, seen[code.Code])
		seen[code.Code] = true
		assert.Equal(t, domain.CodeUnused, code.Status)
		assert.True(t, code.HasWarranty)
		assert.Equal(t, 30, code.WarrantyDays)
		assert.Nil(t, code.WarrantyExpiresAt)
	}

	_, err = env.svc.GenerateBatch(context.Background(), domain.GenerateRequest{}, 0)
	assert.ErrorIs(t, err, domain.ErrInvalidCount)
	_, err = env.svc.GenerateBatch(context.Background(), domain.GenerateRequest{}, 1001)
	assert.ErrorIs(t, err, domain.ErrInvalidCount)
}

func TestGenerateSingle_CustomCode(t *testing.T) {
	env := newCodeEnv(t)

	code, err := env.svc.GenerateSingle(context.Background(), domain.GenerateRequest{Code: " VIP-2026 "})
	require.NoError(t, err)
	assert.Equal(t, "VIP-2026", code.Code)

	// Pinned code values cannot fan out into a batch.
	_, err = env.svc.GenerateBatch(context.Background(), domain.GenerateRequest{Code: "VIP-X"}, 3)
	assert.ErrorIs(t, err, domain.ErrInvalidCount)

	// The unique column rejects a second copy.
	_, err = env.svc.GenerateSingle(context.Background(), domain.GenerateRequest{Code: "VIP-2026"})
	require.Error(t, err)
}

func TestValidate_ExpiresUnusedCode(t *testing.T) {
	env := newCodeEnv(t)
	past := env.clk.Now().Add(-time.Hour)
	code := &domain.RedemptionCode{
		ID: env.genID.Generate(), Code: "deadbeef",
		Status: domain.CodeUnused, ExpiresAt: &past, CreatedAt: env.clk.Now().AddDate(0, 0, -7),
	}
	require.NoError(t, env.db.Create(code).Error)

	result, err := env.svc.Validate(context.Background(), env.db, " deadbeef ")
	require.NoError(t, err)
	assert.False(t, result.Valid)
	assert.Equal(t, "code has expired", result.Reason)

	// The flip is persisted, not just reported.
	var stored domain.RedemptionCode
	require.NoError(t, env.db.Where("code = ?", "deadbeef").First(&stored).Error)
	assert.Equal(t, domain.CodeExpired, stored.Status)
}

func TestValidate_StatusOutcomes(t *testing.T) {
	env := newCodeEnv(t)

	cases := []struct {
		name        string
		status      domain.CodeStatus
		hasWarranty bool
		wantValid   bool
	}{
		{"unused", domain.CodeUnused, false, true},
		{"warranty active", domain.CodeWarrantyActive, true, true},
		{"used with warranty", domain.CodeUsed, true, true},
		{"used without warranty", domain.CodeUsed, false, false},
		{"expired", domain.CodeExpired, false, false},
	}
	for i, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			value := fmt.Sprintf("code%d", i)
			require.NoError(t, env.db.Create(&domain.RedemptionCode{
				ID: env.genID.Generate(), Code: value,
				Status: tc.status, HasWarranty: tc.hasWarranty,
				CreatedAt: env.clk.Now(),
			}).Error)

			result, err := env.svc.Validate(context.Background(), env.db, value)
			require.NoError(t, err)
			assert.Equal(t, tc.wantValid, result.Valid)
		})
	}

	result, err := env.svc.Validate(context.Background(), env.db, "missing")
	require.NoError(t, err)
	assert.False(t, result.Valid)
	assert.Equal(t, "code does not exist", result.Reason)
}

func TestCanReuseWarranty(t *testing.T) {
	env := newCodeEnv(t)
	now := env.clk.Now()
	open := now.Add(48 * time.Hour)
	closed := now.Add(-time.Minute)

	cases := []struct {
		name    string
		code    domain.RedemptionCode
		email   string
		wantOK  bool
		wantMsg string
	}{
		{
			name:   "distinct email inside window",
			code:   domain.RedemptionCode{HasWarranty: true, WarrantyExpiresAt: &open, UsedByEmail: "a@x.test"},
			email:  "b@x.test",
			wantOK: true,
		},
		{
			name:    "same email case-insensitive",
			code:    domain.RedemptionCode{HasWarranty: true, WarrantyExpiresAt: &open, UsedByEmail: "a@x.test"},
			email:   "A@X.Test",
			wantMsg: "code is already held by this email",
		},
		{
			name:    "window closed",
			code:    domain.RedemptionCode{HasWarranty: true, WarrantyExpiresAt: &closed, UsedByEmail: "a@x.test"},
			email:   "b@x.test",
			wantMsg: "warranty window has closed",
		},
		{
			name:    "no warranty",
			code:    domain.RedemptionCode{HasWarranty: false},
			email:   "b@x.test",
			wantMsg: "code does not carry a warranty",
		},
		{
			name:    "warranty never activated",
			code:    domain.RedemptionCode{HasWarranty: true},
			email:   "b@x.test",
			wantMsg: "warranty window has closed",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ok, reason := env.svc.CanReuseWarranty(&tc.code, tc.email, now)
			assert.Equal(t, tc.wantOK, ok)
			assert.Equal(t, tc.wantMsg, reason)
		})
	}
}

func TestWithdrawRecord_ReleasesSeatAndResetsCode(t *testing.T) {
	env := newCodeEnv(t)
	pool := &seatpooldomain.SeatPool{
		ID: env.genID.Generate(), AdminEmail: "admin@x.test",
		SeatsUsed: 6, SeatCapacity: 6, Status: seatpooldomain.StatusFull,
	}
	require.NoError(t, env.db.Create(pool).Error)

	usedAt := env.clk.Now().Add(-time.Hour)
	code := &domain.RedemptionCode{
		ID: env.genID.Generate(), Code: "abc123",
		Status: domain.CodeUsed, UsedByEmail: "m@x.test",
		UsedPoolID: &pool.ID, UsedAt: &usedAt, CreatedAt: usedAt,
	}
	require.NoError(t, env.db.Create(code).Error)

	record := &domain.RedemptionRecord{
		ID: env.genID.Generate(), Email: "m@x.test", Code: "abc123",
		PoolID: pool.ID, RedeemedAt: usedAt,
	}
	require.NoError(t, env.db.Create(record).Error)

	require.NoError(t, env.svc.WithdrawRecord(context.Background(), record.ID))

	var gone int64
	require.NoError(t, env.db.Model(&domain.RedemptionRecord{}).Where("id = ?", record.ID).Count(&gone).Error)
	assert.Zero(t, gone)

	var freed seatpooldomain.SeatPool
	require.NoError(t, env.db.First(&freed, "id = ?", pool.ID).Error)
	assert.Equal(t, 5, freed.SeatsUsed)
	assert.Equal(t, seatpooldomain.StatusActive, freed.Status)

	var reset domain.RedemptionCode
	require.NoError(t, env.db.First(&reset, "code = ?", "abc123").Error)
	assert.Equal(t, domain.CodeUnused, reset.Status)
	assert.Empty(t, reset.UsedByEmail)
	assert.Nil(t, reset.UsedPoolID)
	assert.Nil(t, reset.UsedAt)

	err := env.svc.WithdrawRecord(context.Background(), record.ID)
	assert.ErrorIs(t, err, domain.ErrRecordNotFound)
}

func TestWithdrawRecord_WarrantyCodeKeepsSurvivingHolder(t *testing.T) {
	env := newCodeEnv(t)
	pool := &seatpooldomain.SeatPool{
		ID: env.genID.Generate(), AdminEmail: "admin@x.test",
		SeatsUsed: 2, SeatCapacity: 6, Status: seatpooldomain.StatusActive,
	}
	require.NoError(t, env.db.Create(pool).Error)

	warrantyEnd := env.clk.Now().AddDate(0, 0, 20)
	firstAt := env.clk.Now().AddDate(0, 0, -10)
	secondAt := env.clk.Now().Add(-time.Hour)
	code := &domain.RedemptionCode{
		ID: env.genID.Generate(), Code: "wcode",
		Status: domain.CodeWarrantyActive, HasWarranty: true, WarrantyDays: 30,
		WarrantyExpiresAt: &warrantyEnd,
		UsedByEmail:       "second@x.test", UsedPoolID: &pool.ID, UsedAt: &secondAt,
		CreatedAt: firstAt,
	}
	require.NoError(t, env.db.Create(code).Error)

	first := &domain.RedemptionRecord{
		ID: env.genID.Generate(), Email: "first@x.test", Code: "wcode",
		PoolID: pool.ID, RedeemedAt: firstAt, IsWarranty: true,
	}
	second := &domain.RedemptionRecord{
		ID: env.genID.Generate(), Email: "second@x.test", Code: "wcode",
		PoolID: pool.ID, RedeemedAt: secondAt, IsWarranty: true,
	}
	require.NoError(t, env.db.Create(first).Error)
	require.NoError(t, env.db.Create(second).Error)

	// Withdrawing the latest allocation hands the code back to the
	// previous surviving holder.
	require.NoError(t, env.svc.WithdrawRecord(context.Background(), second.ID))

	var restored domain.RedemptionCode
	require.NoError(t, env.db.First(&restored, "code = ?", "wcode").Error)
	assert.Equal(t, domain.CodeWarrantyActive, restored.Status)
	assert.Equal(t, "first@x.test", restored.UsedByEmail)
	require.NotNil(t, restored.WarrantyExpiresAt)
	assert.True(t, restored.WarrantyExpiresAt.Equal(warrantyEnd))

	// Withdrawing the last record fully resets the code.
	require.NoError(t, env.svc.WithdrawRecord(context.Background(), first.ID))
	restored = domain.RedemptionCode{}
	require.NoError(t, env.db.First(&restored, "code = ?", "wcode").Error)
	assert.Equal(t, domain.CodeUnused, restored.Status)
	assert.Nil(t, restored.WarrantyExpiresAt)
	assert.Empty(t, restored.UsedByEmail)

	var freed seatpooldomain.SeatPool
	require.NoError(t, env.db.First(&freed, "id = ?", pool.ID).Error)
	assert.Equal(t, 0, freed.SeatsUsed)
}
