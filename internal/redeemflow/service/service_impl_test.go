package service

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/seatwise/seatwise/internal/clock"
	"github.com/seatwise/seatwise/internal/config"
	"github.com/seatwise/seatwise/internal/directory"
	lifecycledomain "github.com/seatwise/seatwise/internal/lifecycle/domain"
	lifecyclerepo "github.com/seatwise/seatwise/internal/lifecycle/repository"
	lifecycleservice "github.com/seatwise/seatwise/internal/lifecycle/service"
	"github.com/seatwise/seatwise/internal/redeemflow/domain"
	redemptiondomain "github.com/seatwise/seatwise/internal/redemption/domain"
	redemptionrepo "github.com/seatwise/seatwise/internal/redemption/repository"
	redemptionservice "github.com/seatwise/seatwise/internal/redemption/service"
	seatpooldomain "github.com/seatwise/seatwise/internal/seatpool/domain"
	seatpoolrepo "github.com/seatwise/seatwise/internal/seatpool/repository"
	seatpoolservice "github.com/seatwise/seatwise/internal/seatpool/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// -- Mocks --

type directoryMock struct {
	mock.Mock
}

func (m *directoryMock) InviteMember(ctx context.Context, accessToken, accountID, email string) error {
	args := m.Called(ctx, accessToken, accountID, email)
	return args.Error(0)
}

func (m *directoryMock) ListMembers(context.Context, string, string) ([]directory.Member, error) {
	return nil, nil
}
func (m *directoryMock) ListInvites(context.Context, string, string) ([]directory.Invite, error) {
	return nil, nil
}
func (m *directoryMock) RevokeInvite(context.Context, string, string, string) error  { return nil }
func (m *directoryMock) RemoveMember(context.Context, string, string, string) error { return nil }
func (m *directoryMock) ListAccounts(context.Context, string) ([]directory.AccountInfo, error) {
	return nil, nil
}
func (m *directoryMock) RefreshWithRefreshToken(context.Context, string, string) (directory.TokenPair, error) {
	return directory.TokenPair{}, nil
}
func (m *directoryMock) RefreshWithSessionToken(context.Context, string, string) (directory.TokenPair, error) {
	return directory.TokenPair{}, nil
}

type credsMock struct {
	token string
}

func (c *credsMock) EnsureAccessToken(ctx context.Context, db *gorm.DB, pool *seatpooldomain.SeatPool) (string, error) {
	return c.token, nil
}

// -- Harness --

type testEnv struct {
	db       *gorm.DB
	clk      *clock.FakeClock
	dir      *directoryMock
	svc      domain.Service
	codeRepo redemptiondomain.Repository
	poolRepo seatpooldomain.Repository
	genID    *snowflake.Node
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(
		&seatpooldomain.SeatPool{},
		&redemptiondomain.RedemptionCode{},
		&redemptiondomain.RedemptionRecord{},
		&lifecycledomain.MemberLifecycle{},
		&lifecycledomain.MemberLifecycleEvent{},
	))

	node, _ := snowflake.NewNode(1)
	log := zap.NewNop()
	clk := clock.NewFakeClock(time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC))

	holder := &config.ReminderConfigHolder{}
	holder.Store(config.DefaultReminderConfig())

	dir := &directoryMock{}
	creds := &credsMock{token: "test-token"}

	codeRepo := redemptionrepo.Provide()
	poolRepo := seatpoolrepo.Provide()
	lcRepo := lifecyclerepo.Provide()

	lcSvc := lifecycleservice.New(lifecycleservice.Params{
		DB: conn, Log: log, GenID: node, Clock: clk, Repo: lcRepo, RemCfg: holder,
	})
	codeSvc := redemptionservice.New(redemptionservice.Params{
		DB: conn, Log: log, GenID: node, Clock: clk, Repo: codeRepo, PoolRepo: poolRepo,
	})
	poolSvc := seatpoolservice.New(seatpoolservice.Params{
		DB: conn, Log: log, GenID: node, Clock: clk, Repo: poolRepo,
		Directory: dir, Creds: creds, Lifecycle: lcSvc,
	})
	svc := New(Params{
		DB: conn, Log: log, GenID: node, Clock: clk,
		Codes: codeSvc, CodeRepo: codeRepo,
		Pools: poolSvc, PoolRepo: poolRepo,
		Lifecycle: lcSvc, Directory: dir, Creds: creds,
	})

	return &testEnv{
		db:       conn,
		clk:      clk,
		dir:      dir,
		svc:      svc,
		codeRepo: codeRepo,
		poolRepo: poolRepo,
		genID:    node,
	}
}

func (e *testEnv) addPool(t *testing.T, account string, capacity int, expiresIn time.Duration) *seatpooldomain.SeatPool {
	t.Helper()
	expires := e.clk.Now().Add(expiresIn)
	pool := &seatpooldomain.SeatPool{
		ID:              e.genID.Generate(),
		AdminEmail:      account + "@admin.test",
		AccessToken:     "token-" + account,
		RemoteAccountID: account,
		TeamName:        "team-" + account,
		SeatCapacity:    capacity,
		Status:          seatpooldomain.StatusActive,
		ExpiresAt:       &expires,
		CreatedAt:       e.clk.Now(),
		UpdatedAt:       e.clk.Now(),
	}
	require.NoError(t, e.db.Create(pool).Error)
	return pool
}

func (e *testEnv) addCode(t *testing.T, value string, warranty bool, warrantyDays int) *redemptiondomain.RedemptionCode {
	t.Helper()
	code := &redemptiondomain.RedemptionCode{
		ID:           e.genID.Generate(),
		Code:         value,
		Status:       redemptiondomain.CodeUnused,
		HasWarranty:  warranty,
		WarrantyDays: warrantyDays,
		CreatedAt:    e.clk.Now(),
	}
	require.NoError(t, e.db.Create(code).Error)
	return code
}

func (e *testEnv) reloadCode(t *testing.T, value string) *redemptiondomain.RedemptionCode {
	t.Helper()
	code, err := e.codeRepo.FindByCode(context.Background(), e.db, value)
	require.NoError(t, err)
	require.NotNil(t, code)
	return code
}

func (e *testEnv) reloadPool(t *testing.T, id snowflake.ID) *seatpooldomain.SeatPool {
	t.Helper()
	pool, err := e.poolRepo.FindByID(context.Background(), e.db, id)
	require.NoError(t, err)
	require.NotNil(t, pool)
	return pool
}

// -- Tests --

func TestRedeem_NonWarrantyCode_IsSingleUse(t *testing.T) {
	env := newTestEnv(t)
	env.addPool(t, "acct-1", 6, 24*time.Hour)
	env.addCode(t, "CODE-A", false, 0)
	env.dir.On("InviteMember", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)

	first, err := env.svc.Redeem(context.Background(), domain.RedeemRequest{Email: "a@x.test", Code: "CODE-A"})
	require.NoError(t, err)
	require.True(t, first.Success)

	second, err := env.svc.Redeem(context.Background(), domain.RedeemRequest{Email: "b@x.test", Code: "CODE-A"})
	require.NoError(t, err)
	assert.False(t, second.Success)
	assert.Equal(t, domain.FailCodeTaken, second.Kind)

	records, err := env.codeRepo.RecordsByCode(context.Background(), env.db, "CODE-A")
	require.NoError(t, err)
	assert.Len(t, records, 1)
	assert.Equal(t, "a@x.test", records[0].Email)

	code := env.reloadCode(t, "CODE-A")
	assert.Equal(t, redemptiondomain.CodeUsed, code.Status)
	assert.Equal(t, "a@x.test", code.UsedByEmail)
}

func TestRedeem_WarrantyCode_ReusableByDistinctEmail(t *testing.T) {
	env := newTestEnv(t)
	env.addPool(t, "acct-1", 6, 24*time.Hour)
	env.addCode(t, "CODE-W", true, 30)
	env.dir.On("InviteMember", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)

	first, err := env.svc.Redeem(context.Background(), domain.RedeemRequest{Email: "a@x.test", Code: "CODE-W"})
	require.NoError(t, err)
	require.True(t, first.Success)

	code := env.reloadCode(t, "CODE-W")
	assert.Equal(t, redemptiondomain.CodeWarrantyActive, code.Status)
	require.NotNil(t, code.WarrantyExpiresAt)
	firstExpiry := *code.WarrantyExpiresAt
	assert.Equal(t, env.clk.Now().AddDate(0, 0, 30), firstExpiry)

	// Same email may not reuse its own code.
	env.addPool(t, "acct-2", 6, 48*time.Hour)
	same, err := env.svc.Redeem(context.Background(), domain.RedeemRequest{Email: "a@x.test", Code: "CODE-W"})
	require.NoError(t, err)
	assert.False(t, same.Success)
	assert.Equal(t, domain.FailCodeTaken, same.Kind)

	env.clk.Advance(10 * 24 * time.Hour)
	second, err := env.svc.Redeem(context.Background(), domain.RedeemRequest{Email: "b@x.test", Code: "CODE-W"})
	require.NoError(t, err)
	require.True(t, second.Success)

	records, err := env.codeRepo.RecordsByCode(context.Background(), env.db, "CODE-W")
	require.NoError(t, err)
	assert.Len(t, records, 2)

	code = env.reloadCode(t, "CODE-W")
	assert.Equal(t, redemptiondomain.CodeWarrantyActive, code.Status)
	assert.Equal(t, "b@x.test", code.UsedByEmail)
	require.NotNil(t, code.WarrantyExpiresAt)
	assert.Equal(t, firstExpiry, *code.WarrantyExpiresAt, "warranty expiry is set once, on first use")
}

func TestRedeem_AutoReallocatesAfterRemoteFailure(t *testing.T) {
	env := newTestEnv(t)
	pool1 := env.addPool(t, "acct-1", 6, 24*time.Hour)
	pool2 := env.addPool(t, "acct-2", 6, 48*time.Hour)
	env.addCode(t, "CODE-R", false, 0)

	env.dir.On("InviteMember", mock.Anything, mock.Anything, "acct-1", mock.Anything).
		Return(&directory.Error{Kind: directory.KindPermission, StatusCode: 403, Message: "account deactivated"})
	env.dir.On("InviteMember", mock.Anything, mock.Anything, "acct-2", mock.Anything).Return(nil)

	result, err := env.svc.Redeem(context.Background(), domain.RedeemRequest{Email: "a@x.test", Code: "CODE-R"})
	require.NoError(t, err)
	require.True(t, result.Success)
	require.NotNil(t, result.Pool)
	assert.Equal(t, pool2.ID, result.Pool.PoolID)

	// The failed pool's seat was released and the ban recorded, which is
	// what kept it out of the retry's selection.
	p1 := env.reloadPool(t, pool1.ID)
	assert.Equal(t, 0, p1.SeatsUsed)
	assert.Equal(t, seatpooldomain.StatusBanned, p1.Status)

	p2 := env.reloadPool(t, pool2.ID)
	assert.Equal(t, 1, p2.SeatsUsed)
}

func TestRedeem_PinnedPoolFailsWithoutReallocation(t *testing.T) {
	env := newTestEnv(t)
	pool1 := env.addPool(t, "acct-1", 6, 24*time.Hour)
	env.addPool(t, "acct-2", 6, 48*time.Hour)
	env.addCode(t, "CODE-P", false, 0)

	env.dir.On("InviteMember", mock.Anything, mock.Anything, "acct-1", mock.Anything).
		Return(&directory.Error{Kind: directory.KindServer, StatusCode: 500, Message: "boom"})

	result, err := env.svc.Redeem(context.Background(), domain.RedeemRequest{
		Email: "a@x.test", Code: "CODE-P", PoolID: &pool1.ID,
	})
	require.NoError(t, err)
	assert.False(t, result.Success)

	env.dir.AssertNumberOfCalls(t, "InviteMember", 1)

	// Compensation left no trace of the reservation.
	code := env.reloadCode(t, "CODE-P")
	assert.Equal(t, redemptiondomain.CodeUnused, code.Status)
	assert.Empty(t, code.UsedByEmail)
	assert.Nil(t, code.UsedAt)

	p1 := env.reloadPool(t, pool1.ID)
	assert.Equal(t, 0, p1.SeatsUsed)
	assert.Equal(t, seatpooldomain.StatusActive, p1.Status)
}

func TestRedeem_ExhaustsAttemptsAndParksPool(t *testing.T) {
	env := newTestEnv(t)
	pool := env.addPool(t, "acct-1", 6, 24*time.Hour)
	env.addCode(t, "CODE-E", false, 0)

	env.dir.On("InviteMember", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(&directory.Error{Kind: directory.KindServer, StatusCode: 500, Message: "boom"})

	result, err := env.svc.Redeem(context.Background(), domain.RedeemRequest{Email: "a@x.test", Code: "CODE-E"})
	require.NoError(t, err)
	assert.False(t, result.Success)

	p := env.reloadPool(t, pool.ID)
	assert.Equal(t, 0, p.SeatsUsed)
	assert.Equal(t, 3, p.ErrorCount)
	assert.Equal(t, seatpooldomain.StatusError, p.Status)

	code := env.reloadCode(t, "CODE-E")
	assert.Equal(t, redemptiondomain.CodeUnused, code.Status)
}

func TestRedeem_WarrantyCompensationRestoresSurvivingHolder(t *testing.T) {
	env := newTestEnv(t)
	pool1 := env.addPool(t, "acct-1", 1, 24*time.Hour)
	env.addPool(t, "acct-2", 6, 48*time.Hour)
	env.addCode(t, "CODE-WC", true, 30)

	env.dir.On("InviteMember", mock.Anything, mock.Anything, "acct-1", "a@x.test").Return(nil)
	env.dir.On("InviteMember", mock.Anything, mock.Anything, "acct-2", "b@x.test").
		Return(&directory.Error{Kind: directory.KindPermission, StatusCode: 403, Message: "forbidden"})

	first, err := env.svc.Redeem(context.Background(), domain.RedeemRequest{Email: "a@x.test", Code: "CODE-WC"})
	require.NoError(t, err)
	require.True(t, first.Success)
	firstAt := env.reloadCode(t, "CODE-WC").UsedAt

	env.clk.Advance(24 * time.Hour)
	second, err := env.svc.Redeem(context.Background(), domain.RedeemRequest{Email: "b@x.test", Code: "CODE-WC"})
	require.NoError(t, err)
	assert.False(t, second.Success)

	// The failed reuse was compensated back to a's allocation.
	code := env.reloadCode(t, "CODE-WC")
	assert.Equal(t, redemptiondomain.CodeWarrantyActive, code.Status)
	assert.Equal(t, "a@x.test", code.UsedByEmail)
	require.NotNil(t, code.UsedPoolID)
	assert.Equal(t, pool1.ID, *code.UsedPoolID)
	require.NotNil(t, code.UsedAt)
	assert.Equal(t, firstAt.Unix(), code.UsedAt.Unix())
}

func TestRedeem_NoPoolAvailable(t *testing.T) {
	env := newTestEnv(t)
	pool := env.addPool(t, "acct-1", 1, 24*time.Hour)
	env.addCode(t, "CODE-F1", false, 0)
	env.addCode(t, "CODE-F2", false, 0)
	env.dir.On("InviteMember", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)

	first, err := env.svc.Redeem(context.Background(), domain.RedeemRequest{Email: "a@x.test", Code: "CODE-F1"})
	require.NoError(t, err)
	require.True(t, first.Success)

	p := env.reloadPool(t, pool.ID)
	assert.Equal(t, 1, p.SeatsUsed)
	assert.Equal(t, seatpooldomain.StatusFull, p.Status)

	second, err := env.svc.Redeem(context.Background(), domain.RedeemRequest{Email: "b@x.test", Code: "CODE-F2"})
	require.NoError(t, err)
	assert.False(t, second.Success)
	assert.Equal(t, domain.FailNoPool, second.Kind)
}

func TestRedeem_ExcludesPoolsEmailAlreadyJoined(t *testing.T) {
	env := newTestEnv(t)
	env.addPool(t, "acct-1", 6, 24*time.Hour)
	pool2 := env.addPool(t, "acct-2", 6, 48*time.Hour)
	env.addCode(t, "CODE-X1", false, 0)
	env.addCode(t, "CODE-X2", false, 0)
	env.dir.On("InviteMember", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)

	first, err := env.svc.Redeem(context.Background(), domain.RedeemRequest{Email: "a@x.test", Code: "CODE-X1"})
	require.NoError(t, err)
	require.True(t, first.Success)

	// Second redemption by the same email must land on a pool it has not
	// joined, even though pool1 expires sooner.
	second, err := env.svc.Redeem(context.Background(), domain.RedeemRequest{Email: "a@x.test", Code: "CODE-X2"})
	require.NoError(t, err)
	require.True(t, second.Success)
	require.NotNil(t, second.Pool)
	assert.Equal(t, pool2.ID, second.Pool.PoolID)
}

func TestRedeem_RecordsLifecycleOnSuccess(t *testing.T) {
	env := newTestEnv(t)
	pool := env.addPool(t, "acct-1", 6, 24*time.Hour)
	env.addCode(t, "CODE-L", false, 0)
	env.dir.On("InviteMember", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)

	_, err := env.svc.Redeem(context.Background(), domain.RedeemRequest{Email: "A@X.Test", Code: "CODE-L"})
	require.NoError(t, err)

	var lifecycle lifecycledomain.MemberLifecycle
	require.NoError(t, env.db.Where("email = ?", "a@x.test").First(&lifecycle).Error)
	assert.Equal(t, lifecycledomain.PolicyRedeemNoWarranty, lifecycle.PolicyType)
	require.NotNil(t, lifecycle.PolicyExpiresAt)
	assert.Equal(t, lifecycle.FirstJoinedAt.AddDate(0, 0, 28), *lifecycle.PolicyExpiresAt)
	require.NotNil(t, lifecycle.CurrentPoolID)
	assert.Equal(t, pool.ID, *lifecycle.CurrentPoolID)

	var events []lifecycledomain.MemberLifecycleEvent
	require.NoError(t, env.db.Where("lifecycle_id = ?", lifecycle.ID).Find(&events).Error)
	assert.Len(t, events, 1)
}

func TestRedeem_ExpiredCodeFlipOutlivesRefusal(t *testing.T) {
	env := newTestEnv(t)
	env.addPool(t, "acct-1", 6, 24*time.Hour)

	expired := env.clk.Now().Add(-time.Hour)
	code := &redemptiondomain.RedemptionCode{
		ID:        env.genID.Generate(),
		Code:      "CODE-OLD",
		Status:    redemptiondomain.CodeUnused,
		ExpiresAt: &expired,
		CreatedAt: env.clk.Now().AddDate(0, 0, -7),
	}
	require.NoError(t, env.db.Create(code).Error)

	result, err := env.svc.Redeem(context.Background(), domain.RedeemRequest{Email: "a@x.test", Code: "CODE-OLD"})
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, domain.FailCodeInvalid, result.Kind)
	assert.Equal(t, "code has expired", result.Reason)

	// The refused reservation must not roll the status flip back.
	row := env.reloadCode(t, "CODE-OLD")
	assert.Equal(t, redemptiondomain.CodeExpired, row.Status)
}

func redeemDurationSum(t *testing.T) float64 {
	t.Helper()
	families, err := prometheus.DefaultGatherer.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() == "seatwise_redeem_duration_seconds" {
			return mf.GetMetric()[0].GetHistogram().GetSampleSum()
		}
	}
	return 0
}

func TestRedeem_DurationObservedOnServiceClock(t *testing.T) {
	env := newTestEnv(t)
	env.addPool(t, "acct-1", 6, 24*time.Hour)
	env.addCode(t, "CODE-D", false, 0)
	env.dir.On("InviteMember", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Run(func(mock.Arguments) { env.clk.Advance(90 * time.Second) }).
		Return(nil)

	before := redeemDurationSum(t)
	result, err := env.svc.Redeem(context.Background(), domain.RedeemRequest{Email: "a@x.test", Code: "CODE-D"})
	require.NoError(t, err)
	require.True(t, result.Success)

	assert.InDelta(t, 90.0, redeemDurationSum(t)-before, 0.001)
}

func TestDecideRetry(t *testing.T) {
	tests := []struct {
		name    string
		attempt int
		pinned  bool
		kind    domain.FailureKind
		want    bool
	}{
		{"remote failure retries when auto-selected", 1, false, domain.FailRemote, true},
		{"pool contention retries when auto-selected", 2, false, domain.FailPoolUnusable, true},
		{"credentials failure retries when auto-selected", 1, false, domain.FailCredentials, true},
		{"internal failure retries when auto-selected", 1, false, domain.FailInternal, true},
		{"pinned pool never retries", 1, true, domain.FailRemote, false},
		{"final attempt never retries", 3, false, domain.FailRemote, false},
		{"invalid code never retries", 1, false, domain.FailCodeInvalid, false},
		{"consumed code never retries", 1, false, domain.FailCodeTaken, false},
		{"no pool never retries", 1, false, domain.FailNoPool, false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, decideRetry(tc.attempt, tc.pinned, tc.kind))
		})
	}
}

func TestVerify_ListsOnlyUsablePools(t *testing.T) {
	env := newTestEnv(t)
	env.addPool(t, "acct-1", 6, 24*time.Hour)
	full := env.addPool(t, "acct-2", 1, 48*time.Hour)
	full.SeatsUsed = 1
	full.Status = seatpooldomain.StatusFull
	require.NoError(t, env.db.Save(full).Error)
	env.addCode(t, "CODE-V", false, 0)

	result, err := env.svc.Verify(context.Background(), "CODE-V")
	require.NoError(t, err)
	assert.True(t, result.Valid)
	assert.Len(t, result.Pools, 1)

	missing, err := env.svc.Verify(context.Background(), "NOPE")
	require.NoError(t, err)
	assert.False(t, missing.Valid)
	assert.NotEmpty(t, missing.Reason)
}
