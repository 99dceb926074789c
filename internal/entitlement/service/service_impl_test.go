package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/htmlpdf/internal/clock"
	"github.com/smallbiznis/htmlpdf/internal/config"
	entitlementdomain "github.com/smallbiznis/htmlpdf/internal/entitlement/domain"
	"github.com/smallbiznis/htmlpdf/internal/migration"
	subscriptiondomain "github.com/smallbiznis/htmlpdf/internal/subscription/domain"
	usagedomain "github.com/smallbiznis/htmlpdf/internal/usage/domain"
	usagerepo "github.com/smallbiznis/htmlpdf/internal/usage/repository"
	usagesvc "github.com/smallbiznis/htmlpdf/internal/usage/service"
	"github.com/smallbiznis/htmlpdf/pkg/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type subscriptionMock struct {
	mock.Mock
}

func (m *subscriptionMock) HasActiveSubscription(ctx context.Context, userID string) (bool, error) {
	args := m.Called(ctx, userID)
	return args.Bool(0), args.Error(1)
}

func (m *subscriptionMock) GetByUserID(context.Context, string) (*subscriptiondomain.Subscription, error) {
	return nil, nil
}
func (m *subscriptionMock) EnsureCustomer(context.Context, string, string) (*subscriptiondomain.Subscription, error) {
	return nil, nil
}
func (m *subscriptionMock) ApplyProviderUpdate(context.Context, subscriptiondomain.ProviderUpdate) (bool, error) {
	return false, nil
}
func (m *subscriptionMock) SetStatusByCustomer(context.Context, string, subscriptiondomain.SubscriptionStatus) (bool, error) {
	return false, nil
}

type fixture struct {
	resolver entitlementdomain.Resolver
	ledger   usagedomain.Ledger
	subs     *subscriptionMock
	clock    *clock.FakeClock
}

func newFixture(t *testing.T, cfg config.MeteringConfig) fixture {
	t.Helper()

	conn, err := db.NewTest()
	require.NoError(t, err)
	require.NoError(t, migration.AutoMigrate(conn))
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	clk := clock.NewFakeClock(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	holder := config.NewStaticMeteringConfig(cfg)
	ledger := usagesvc.NewService(usagesvc.Params{
		DB:       conn,
		Log:      zap.NewNop(),
		GenID:    node,
		Repo:     usagerepo.Provide(),
		Clock:    clk,
		Metering: holder,
	})
	subs := &subscriptionMock{}

	resolver := New(Params{
		Log:             zap.NewNop(),
		Ledger:          ledger,
		SubscriptionSvc: subs,
		Clock:           clk,
		Metering:        holder,
	})
	return fixture{resolver: resolver, ledger: ledger, subs: subs, clock: clk}
}

// admit runs a full decide + record cycle the way a request would.
func (f fixture) admit(t *testing.T, userID string, n int) *usagedomain.RecordResult {
	t.Helper()
	ctx := context.Background()

	decision, err := f.resolver.Decide(ctx, userID)
	require.NoError(t, err)
	require.True(t, decision.Admitted)

	renderID := fmt.Sprintf("%s-%d-%d", userID, n, f.clock.Now().UnixNano())
	require.NoError(t, f.ledger.BeginRender(ctx, usagedomain.OutboxEntry{
		RenderID:    renderID,
		UserID:      userID,
		Entitlement: decision.Entitlement,
		CostCents:   decision.CostCents,
	}))
	result, err := f.ledger.RecordEvent(ctx, usagedomain.RecordRequest{
		RenderID:    renderID,
		UserID:      userID,
		Entitlement: decision.Entitlement,
		CostCents:   decision.CostCents,
	})
	require.NoError(t, err)
	return result
}

func TestDecideNewUserIsFree(t *testing.T) {
	f := newFixture(t, config.DefaultMeteringConfig())

	decision, err := f.resolver.Decide(context.Background(), "user-1")
	require.NoError(t, err)
	assert.True(t, decision.Admitted)
	assert.Equal(t, usagedomain.EntitlementFree, decision.Entitlement)
	assert.Equal(t, entitlementdomain.ReasonNewUser, decision.Reason)
	assert.False(t, decision.Billable())
	assert.Equal(t, 0, decision.State.FreeTierUsed)
	f.subs.AssertNotCalled(t, "HasActiveSubscription", mock.Anything, mock.Anything)
}

func TestElevenRequestsForNewUser(t *testing.T) {
	f := newFixture(t, config.DefaultMeteringConfig())
	f.subs.On("HasActiveSubscription", mock.Anything, "user-1").Return(false, nil)

	for i := 1; i <= 10; i++ {
		result := f.admit(t, "user-1", i)
		assert.Equal(t, usagedomain.EntitlementFree, result.Entitlement, "request %d", i)
		assert.Equal(t, 0, result.CostCents)

		state, err := f.ledger.GetMeteringState(context.Background(), "user-1")
		require.NoError(t, err)
		assert.Equal(t, i, state.FreeTierUsed)
	}

	decision, err := f.resolver.Decide(context.Background(), "user-1")
	require.NoError(t, err)
	assert.True(t, decision.Admitted)
	assert.Equal(t, usagedomain.EntitlementPayPerUse, decision.Entitlement)
	assert.Equal(t, 1, decision.CostCents)
	assert.Equal(t, entitlementdomain.ReasonFreeTierSpent, decision.Reason)

	result := f.admit(t, "user-1", 11)
	assert.Equal(t, usagedomain.EntitlementPayPerUse, result.Entitlement)
	assert.Equal(t, 1, result.CostCents)

	state, err := f.ledger.GetMeteringState(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, 10, state.FreeTierUsed)
}

func TestDecideExpiredWindowRollsOver(t *testing.T) {
	f := newFixture(t, config.DefaultMeteringConfig())
	f.subs.On("HasActiveSubscription", mock.Anything, "user-1").Return(false, nil)

	for i := 0; i < 10; i++ {
		f.admit(t, "user-1", i)
	}

	f.clock.Advance(45 * 24 * time.Hour)
	now := f.clock.Now()

	decision, err := f.resolver.Decide(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, usagedomain.EntitlementFree, decision.Entitlement)
	assert.Equal(t, entitlementdomain.ReasonWindowRollover, decision.Reason)
	assert.Equal(t, 0, decision.State.FreeTierUsed)
	assert.True(t, decision.State.FreeTierResetAt.Equal(now.Add(30*24*time.Hour)))

	f.admit(t, "user-1", 100)
	state, err := f.ledger.GetMeteringState(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, 1, state.FreeTierUsed)
}

func TestDecideActiveSubscription(t *testing.T) {
	f := newFixture(t, config.DefaultMeteringConfig())
	_, err := f.ledger.InitMeteringState(context.Background(), "user-1")
	require.NoError(t, err)
	f.subs.On("HasActiveSubscription", mock.Anything, "user-1").Return(true, nil)

	decision, err := f.resolver.Decide(context.Background(), "user-1")
	require.NoError(t, err)
	assert.True(t, decision.Admitted)
	assert.Equal(t, usagedomain.EntitlementSubscription, decision.Entitlement)
	assert.Equal(t, 1, decision.CostCents)
	assert.True(t, decision.Billable())

	result := f.admit(t, "user-1", 1)
	assert.Equal(t, usagedomain.EntitlementSubscription, result.Entitlement)

	state, err := f.ledger.GetMeteringState(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, 0, state.FreeTierUsed, "subscription renders leave the free counter alone")
}

func TestDecideHardCapRefuses(t *testing.T) {
	cfg := config.DefaultMeteringConfig()
	cfg.FreeTierLimit = 1
	cfg.HardCap = true
	f := newFixture(t, cfg)
	f.subs.On("HasActiveSubscription", mock.Anything, "user-1").Return(false, nil)

	f.admit(t, "user-1", 1)

	decision, err := f.resolver.Decide(context.Background(), "user-1")
	require.NoError(t, err)
	assert.False(t, decision.Admitted)
	assert.Equal(t, usagedomain.EntitlementPayPerUse, decision.Entitlement)
}

func TestDecideRequiresUser(t *testing.T) {
	f := newFixture(t, config.DefaultMeteringConfig())

	_, err := f.resolver.Decide(context.Background(), " ")
	assert.ErrorIs(t, err, entitlementdomain.ErrInvalidUser)
}
