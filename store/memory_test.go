package store

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cppla/marketcore/models"
	"github.com/cppla/marketcore/services"
)

func TestMemoryTransactionRollsBack(t *testing.T) {
	st := NewMemoryStore()
	ctx := context.Background()
	u := st.AddUser("alice", decimal.NewFromInt(5))

	boom := errors.New("boom")
	err := st.Transaction(ctx, func(tx services.Store) error {
		_, err := tx.InsertUnlock(ctx, &models.UnlockRecord{UserID: u.ID, AchievementID: 1, UnlockedAt: time.Now()})
		require.NoError(t, err)
		require.NoError(t, tx.CreditWallet(ctx, &models.WalletTransaction{UserID: u.ID, Amount: decimal.NewFromInt(1)}))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	_, err = st.FindUnlock(ctx, u.ID, 1)
	assert.ErrorIs(t, err, services.ErrNotFound)
	got, _ := st.User(u.ID)
	assert.True(t, got.WalletBalance.Equal(decimal.NewFromInt(5)))
	assert.Empty(t, st.WalletTransactions(u.ID))
}

func TestMemoryInsertUnlockUnique(t *testing.T) {
	st := NewMemoryStore()
	ctx := context.Background()

	ok, err := st.InsertUnlock(ctx, &models.UnlockRecord{UserID: 1, AchievementID: 1, UnlockedAt: time.Now()})
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = st.InsertUnlock(ctx, &models.UnlockRecord{UserID: 1, AchievementID: 1, UnlockedAt: time.Now()})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestUnlockRecordCarriesAchievementOnlyWhenListed(t *testing.T) {
	st := NewMemoryStore()
	ctx := context.Background()
	a := &models.Achievement{Slug: "buyer-copper", Group: "total-buyer", Tier: models.TierCopper, IsActive: true}
	require.NoError(t, st.SaveAchievement(ctx, a))
	_, err := st.InsertUnlock(ctx, &models.UnlockRecord{UserID: 1, AchievementID: a.ID, UnlockedAt: time.Now()})
	require.NoError(t, err)

	rec, err := st.FindUnlock(ctx, 1, a.ID)
	require.NoError(t, err)
	assert.Nil(t, rec.Achievement)
	raw, err := json.Marshal(rec)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), `"achievement":`)

	list, err := st.ListUnlocks(ctx, 1)
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.NotNil(t, list[0].Achievement)
	assert.Equal(t, "buyer-copper", list[0].Achievement.Slug)
}

func TestMemoryMetrics(t *testing.T) {
	st := NewMemoryStore()
	ctx := context.Background()
	a := st.AddUser("alice", decimal.Zero)
	b := st.AddUser("bob", decimal.Zero)
	c := st.AddUser("carol", decimal.Zero)

	st.AddOrder(models.Order{BuyerID: a.ID, SellerID: b.ID, Amount: decimal.NewFromInt(10), Category: "item"})
	st.AddOrder(models.Order{BuyerID: a.ID, SellerID: b.ID, Amount: decimal.NewFromInt(5), Category: "currency"})
	st.AddOrder(models.Order{BuyerID: a.ID, SellerID: c.ID, Amount: decimal.NewFromInt(99), Status: models.OrderStatusCancelled})

	n, err := st.CountOrders(ctx, services.OrderQuery{BuyerID: a.ID, Status: models.OrderStatusCompleted})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	sum, err := st.SumOrders(ctx, services.OrderQuery{SellerID: b.ID, Status: models.OrderStatusCompleted, Category: "item"})
	require.NoError(t, err)
	assert.True(t, sum.Equal(decimal.NewFromInt(10)))

	st.AddMessage(a.ID, b.ID, "hi")
	st.AddMessage(a.ID, b.ID, "again")
	st.AddMessage(a.ID, c.ID, "hello")
	partners, err := st.CountMessagedCounterparties(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), partners)

	st.AddReview(models.Review{AuthorID: a.ID, SellerID: b.ID, Rating: 5})
	st.AddReview(models.Review{AuthorID: c.ID, SellerID: b.ID, Rating: 2})
	received, err := st.CountReviews(ctx, services.ReviewQuery{SellerID: b.ID, MinRating: 4})
	require.NoError(t, err)
	assert.Equal(t, int64(1), received)

	day := time.Date(2024, 5, 1, 9, 0, 0, 0, time.Local)
	st.AddLogin(a.ID, day)
	st.AddLogin(a.ID, day.Add(2*time.Hour))
	st.AddLogin(a.ID, day.AddDate(0, 0, 1))
	days, err := st.CountLoginDays(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), days)

	_, err = st.Deposit(ctx, a.ID, decimal.RequireFromString("20.25"))
	require.NoError(t, err)
	deposits, err := st.SumWalletTransactions(ctx, a.ID, models.WalletTxDeposit)
	require.NoError(t, err)
	assert.True(t, deposits.Equal(decimal.RequireFromString("20.25")))
}

func TestMemoryRejectsDuplicateRewardEntry(t *testing.T) {
	st := NewMemoryStore()
	ctx := context.Background()
	u := st.AddUser("alice", decimal.Zero)
	unlockID := uint(7)

	require.NoError(t, st.CreditWallet(ctx, &models.WalletTransaction{UserID: u.ID, Amount: decimal.NewFromInt(1), UnlockRecordID: &unlockID}))
	assert.Error(t, st.CreditWallet(ctx, &models.WalletTransaction{UserID: u.ID, Amount: decimal.NewFromInt(1), UnlockRecordID: &unlockID}))
}

func TestSeedAchievementsIsIdempotent(t *testing.T) {
	st := NewMemoryStore()
	ctx := context.Background()

	n, err := SeedAchievements(ctx, st)
	require.NoError(t, err)
	assert.Equal(t, len(DefaultAchievements()), n)

	again, err := SeedAchievements(ctx, st)
	require.NoError(t, err)
	assert.Zero(t, again)

	list, err := st.ListAchievements(ctx, services.AchievementQuery{Group: "total-buyer"})
	require.NoError(t, err)
	assert.Len(t, list, 5)
	assert.Empty(t, services.CheckTierOrdering(list))
}

func TestDefaultAchievementsAreValid(t *testing.T) {
	seen := map[string]bool{}
	for _, a := range DefaultAchievements() {
		assert.NoError(t, services.ValidateRequirement(a.Requirement()), a.Slug)
		assert.True(t, a.Tier.Valid(), a.Slug)
		assert.False(t, seen[a.Slug], "duplicate slug %s", a.Slug)
		seen[a.Slug] = true
	}
	assert.Empty(t, services.CheckTierOrdering(DefaultAchievements()))
}
