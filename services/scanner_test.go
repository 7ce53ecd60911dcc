package services_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"

	"github.com/cppla/marketcore/events"
	"github.com/cppla/marketcore/models"
	"github.com/cppla/marketcore/services"
	"github.com/cppla/marketcore/store"
	"github.com/cppla/marketcore/utils"
)

func TestScanUnlocksEveryReachedTier(t *testing.T) {
	f := newFixture(t, services.Options{})
	ctx := context.Background()
	f.achievement(t, "buyer-copper", models.TierCopper, models.MetricCompletedOrderCount, 1, "1")
	f.achievement(t, "buyer-bronze", models.TierBronze, models.MetricCompletedOrderCount, 3, "2")
	f.achievement(t, "buyer-silver", models.TierSilver, models.MetricCompletedOrderCount, 10, "5")
	f.completeOrders(4, "10")

	scanner := services.NewScanner(f.engine, nil)
	res, err := scanner.ScanUser(ctx, f.buyer.ID, []models.MetricKind{models.MetricCompletedOrderCount})
	require.NoError(t, err)
	assert.Empty(t, res.Failures)
	require.Len(t, res.Unlocked, 2)
	assert.Equal(t, "buyer-copper", slugOf(t, f, res.Unlocked[0].Record.AchievementID))
	assert.Equal(t, "buyer-bronze", slugOf(t, f, res.Unlocked[1].Record.AchievementID))
	assert.True(t, f.balance(t, f.buyer.ID).Equal(decimal.NewFromInt(3)))

	again, err := scanner.ScanUser(ctx, f.buyer.ID, []models.MetricKind{models.MetricCompletedOrderCount})
	require.NoError(t, err)
	assert.Empty(t, again.Unlocked)
	assert.Equal(t, 1, again.Evaluated)
}

func slugOf(t *testing.T, f *fixture, id uint) string {
	t.Helper()
	a, err := f.engine.Achievement(context.Background(), id)
	require.NoError(t, err)
	return a.Slug
}

func TestScanIsolatesBrokenAchievements(t *testing.T) {
	f := newFixture(t, services.Options{})
	ctx := context.Background()
	f.achievement(t, "buyer-copper", models.TierCopper, models.MetricCompletedOrderCount, 1, "1")
	require.NoError(t, f.store.SaveAchievement(ctx, &models.Achievement{
		Slug: "buyer-broken", Group: "total-buyer", Tier: models.TierBronze, IsActive: true,
		Requirements: datatypes.NewJSONType(models.Requirement{
			Metric:    models.MetricCompletedOrderCount,
			Operator:  "<>",
			Threshold: decimal.NewFromInt(1),
		}),
	}))
	f.completeOrders(1, "10")

	res, err := services.NewScanner(f.engine, nil).ScanUser(ctx, f.buyer.ID, []models.MetricKind{models.MetricCompletedOrderCount})
	require.NoError(t, err)
	require.Len(t, res.Failures, 1)
	assert.Equal(t, "buyer-broken", res.Failures[0].Slug)
	assert.ErrorIs(t, res.Failures[0].Err(), services.ErrInvalidRequirement)
	assert.Len(t, res.Unlocked, 1)
}

func TestScanSkipsInactiveAndOtherMetrics(t *testing.T) {
	f := newFixture(t, services.Options{})
	ctx := context.Background()
	inactive := f.achievement(t, "buyer-copper", models.TierCopper, models.MetricCompletedOrderCount, 1, "1")
	inactive.IsActive = false
	_, err := f.engine.SaveAchievement(ctx, inactive)
	require.NoError(t, err)
	f.achievement(t, "loyal", models.TierCopper, models.MetricLoginDays, 0, "1")
	f.completeOrders(1, "10")

	res, err := services.NewScanner(f.engine, nil).ScanUser(ctx, f.buyer.ID, []models.MetricKind{models.MetricCompletedOrderCount})
	require.NoError(t, err)
	assert.Zero(t, res.Evaluated)
	assert.Empty(t, res.Unlocked)
}

func TestScannerHandlesOrderEventForBothSides(t *testing.T) {
	f := newFixture(t, services.Options{})
	ctx := context.Background()
	f.achievement(t, "buyer-copper", models.TierCopper, models.MetricCompletedOrderCount, 1, "1")
	seller := &models.Achievement{
		Slug: "seller-copper", Name: "seller", Category: "seller", Group: "total-seller", Tier: models.TierCopper,
		Requirements: datatypes.NewJSONType(models.Requirement{
			Metric:    models.MetricCompletedSaleCount,
			Threshold: decimal.NewFromInt(1),
		}),
		WalletReward: decimal.NewFromInt(2),
		IsActive:     true,
	}
	_, err := f.engine.SaveAchievement(ctx, seller)
	require.NoError(t, err)
	f.completeOrders(1, "10")

	services.NewScanner(f.engine, nil).Register(f.bus)
	require.NoError(t, f.bus.Publish(ctx, events.New(events.OrderCompleted, f.buyer.ID, f.seller.ID)))

	assert.True(t, f.balance(t, f.buyer.ID).Equal(decimal.NewFromInt(1)))
	assert.True(t, f.balance(t, f.seller.ID).Equal(decimal.NewFromInt(2)))

	// the same event delivered twice changes nothing
	require.NoError(t, f.bus.Publish(ctx, events.New(events.OrderCompleted, f.buyer.ID, f.seller.ID)))
	assert.Len(t, f.store.WalletTransactions(f.buyer.ID), 1)
	assert.Len(t, f.store.WalletTransactions(f.seller.ID), 1)
}

func TestConcurrentOrderEventsCreditOnce(t *testing.T) {
	st := store.NewMemoryStore()
	bus := events.NewBus(nil, 4, 64)
	locker := utils.NewPairLocker(nil, time.Second, 5*time.Second)
	engine := services.NewEngine(st, locker, bus, services.Options{PublishTimeout: time.Second})
	services.NewScanner(engine, nil).Register(bus)

	buyer := st.AddUser("buyer", decimal.Zero)
	seller := st.AddUser("seller", decimal.Zero)
	_, err := engine.SaveAchievement(context.Background(), &models.Achievement{
		Slug: "buyer-copper", Name: "buyer", Category: "buyer", Group: "total-buyer", Tier: models.TierCopper,
		Requirements: datatypes.NewJSONType(models.Requirement{
			Metric:    models.MetricCompletedOrderCount,
			Threshold: decimal.NewFromInt(1),
		}),
		WalletReward: decimal.NewFromInt(4),
		IsActive:     true,
	})
	require.NoError(t, err)
	st.AddOrder(models.Order{BuyerID: buyer.ID, SellerID: seller.ID, Amount: decimal.NewFromInt(10)})
	st.AddOrder(models.Order{BuyerID: buyer.ID, SellerID: seller.ID, Amount: decimal.NewFromInt(20)})

	const publishers = 8
	var wg sync.WaitGroup
	for i := 0; i < publishers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, bus.Publish(context.Background(), events.New(events.OrderCompleted, buyer.ID, seller.ID)))
		}()
	}
	wg.Wait()
	bus.Close()

	assert.Len(t, st.WalletTransactions(buyer.ID), 1)
	u, ok := st.User(buyer.ID)
	require.True(t, ok)
	assert.True(t, u.WalletBalance.Equal(decimal.NewFromInt(4)))

	unlocks, err := engine.Unlocks(context.Background(), buyer.ID)
	require.NoError(t, err)
	require.Len(t, unlocks, 1)
	assert.True(t, unlocks[0].RewardCredited)
}

func TestScannerWithAsyncBus(t *testing.T) {
	st := store.NewMemoryStore()
	bus := events.NewBus(nil, 2, 16)
	engine := services.NewEngine(st, nil, bus, services.Options{PublishTimeout: time.Second})
	services.NewScanner(engine, nil).Register(bus)

	user := st.AddUser("alice", decimal.Zero)
	peer := st.AddUser("bob", decimal.Zero)
	_, err := engine.SaveAchievement(context.Background(), &models.Achievement{
		Slug: "social-copper", Name: "social", Category: "social", Group: "social", Tier: models.TierCopper,
		Requirements: datatypes.NewJSONType(models.Requirement{
			Metric:    models.MetricDistinctCounterparties,
			Threshold: decimal.NewFromInt(1),
		}),
		WalletReward: decimal.RequireFromString("0.75"),
		IsActive:     true,
	})
	require.NoError(t, err)
	st.AddMessage(user.ID, peer.ID, "hi")

	require.NoError(t, bus.Publish(context.Background(), events.New(events.MessageSent, user.ID, peer.ID)))
	bus.Close()

	u, ok := st.User(user.ID)
	require.True(t, ok)
	assert.True(t, u.WalletBalance.Equal(decimal.RequireFromString("0.75")))
}

func TestScannerRescanCoversAllMetrics(t *testing.T) {
	f := newFixture(t, services.Options{})
	ctx := context.Background()
	f.achievement(t, "buyer-copper", models.TierCopper, models.MetricCompletedOrderCount, 1, "1")
	f.achievement(t, "deposit-bronze", models.TierBronze, models.MetricTotalWalletDeposits, 50, "1")
	f.completeOrders(1, "10")
	_, err := f.store.Deposit(ctx, f.buyer.ID, decimal.NewFromInt(60))
	require.NoError(t, err)

	require.NoError(t, services.NewScanner(f.engine, nil).Handle(ctx, events.New(events.UserRescan, f.buyer.ID, 0)))

	unlocks, err := f.engine.Unlocks(ctx, f.buyer.ID)
	require.NoError(t, err)
	assert.Len(t, unlocks, 2)
	assert.True(t, f.balance(t, f.buyer.ID).Equal(decimal.NewFromInt(62)))
}
