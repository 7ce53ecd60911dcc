package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/cppla/marketcore/models"
	"github.com/cppla/marketcore/services"
)

func newMockStore(t *testing.T) (*GormStore, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	db, err := gorm.Open(mysql.New(mysql.Config{Conn: sqlDB, SkipInitializeWithVersion: true}), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	return NewGormStore(db), mock
}

func TestInsertUnlockCreated(t *testing.T) {
	st, mock := newMockStore(t)
	mock.ExpectExec("INSERT INTO `unlock_records`.*ON DUPLICATE KEY UPDATE").
		WillReturnResult(sqlmock.NewResult(5, 1))

	rec := &models.UnlockRecord{UserID: 1, AchievementID: 2, UnlockedAt: time.Now()}
	created, err := st.InsertUnlock(context.Background(), rec)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, uint(5), rec.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertUnlockConflict(t *testing.T) {
	st, mock := newMockStore(t)
	mock.ExpectExec("INSERT INTO `unlock_records`.*ON DUPLICATE KEY UPDATE").
		WillReturnResult(sqlmock.NewResult(0, 0))

	created, err := st.InsertUnlock(context.Background(), &models.UnlockRecord{UserID: 1, AchievementID: 2, UnlockedAt: time.Now()})
	require.NoError(t, err)
	assert.False(t, created)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkUnlockCreditedIsConditional(t *testing.T) {
	st, mock := newMockStore(t)
	mock.ExpectExec("UPDATE `unlock_records` SET .*WHERE id = \\? AND reward_credited = \\?").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE `unlock_records` SET .*WHERE id = \\? AND reward_credited = \\?").
		WillReturnResult(sqlmock.NewResult(0, 0))

	flipped, err := st.MarkUnlockCredited(context.Background(), 3, time.Now())
	require.NoError(t, err)
	assert.True(t, flipped)

	flipped, err = st.MarkUnlockCredited(context.Background(), 3, time.Now())
	require.NoError(t, err)
	assert.False(t, flipped)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFindUnlockNotFound(t *testing.T) {
	st, mock := newMockStore(t)
	mock.ExpectQuery("SELECT \\* FROM `unlock_records` WHERE user_id = \\? AND achievement_id = \\?").
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "achievement_id"}))

	_, err := st.FindUnlock(context.Background(), 1, 2)
	assert.ErrorIs(t, err, services.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFindUnlockLockedReadsForShare(t *testing.T) {
	st, mock := newMockStore(t)
	mock.ExpectQuery("SELECT \\* FROM `unlock_records` WHERE user_id = \\? AND achievement_id = \\? .*FOR SHARE").
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "achievement_id", "reward_credited"}).AddRow(9, 1, 2, true))

	rec, err := st.FindUnlockLocked(context.Background(), 1, 2)
	require.NoError(t, err)
	assert.Equal(t, uint(9), rec.ID)
	assert.True(t, rec.RewardCredited)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetAchievementNotFound(t *testing.T) {
	st, mock := newMockStore(t)
	mock.ExpectQuery("SELECT \\* FROM `achievements`").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := st.GetAchievement(context.Background(), 42)
	assert.ErrorIs(t, err, services.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreditWalletLocksAndIncrements(t *testing.T) {
	st, mock := newMockStore(t)
	mock.ExpectQuery("SELECT `id`,`wallet_balance` FROM `users` .*FOR UPDATE").
		WillReturnRows(sqlmock.NewRows([]string{"id", "wallet_balance"}).AddRow(7, "10.00"))
	mock.ExpectExec("UPDATE `users` SET `wallet_balance`=wallet_balance \\+ \\?").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO `wallet_transactions`").
		WillReturnResult(sqlmock.NewResult(9, 1))

	entry := &models.WalletTransaction{
		Reference: "ref-1",
		UserID:    7,
		Type:      models.WalletTxAchievementReward,
		Amount:    decimal.RequireFromString("2.50"),
	}
	require.NoError(t, st.CreditWallet(context.Background(), entry))
	assert.True(t, entry.BalanceBefore.Equal(decimal.RequireFromString("10")))
	assert.True(t, entry.BalanceAfter.Equal(decimal.RequireFromString("12.5")))
	assert.Equal(t, uint(9), entry.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreditWalletMissingUser(t *testing.T) {
	st, mock := newMockStore(t)
	mock.ExpectQuery("SELECT `id`,`wallet_balance` FROM `users`").
		WillReturnRows(sqlmock.NewRows([]string{"id", "wallet_balance"}))

	err := st.CreditWallet(context.Background(), &models.WalletTransaction{UserID: 7, Amount: decimal.NewFromInt(1)})
	assert.ErrorIs(t, err, services.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactionRollsBackOnError(t *testing.T) {
	st, mock := newMockStore(t)
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO `unlock_records`").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectRollback()

	boom := errors.New("credit failed")
	err := st.Transaction(context.Background(), func(tx services.Store) error {
		if _, err := tx.InsertUnlock(context.Background(), &models.UnlockRecord{UserID: 1, AchievementID: 1, UnlockedAt: time.Now()}); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactionCommits(t *testing.T) {
	st, mock := newMockStore(t)
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO `unlock_records`").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	err := st.Transaction(context.Background(), func(tx services.Store) error {
		_, err := tx.InsertUnlock(context.Background(), &models.UnlockRecord{UserID: 1, AchievementID: 1, UnlockedAt: time.Now()})
		return err
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSumOrdersDefaultsToZero(t *testing.T) {
	st, mock := newMockStore(t)
	mock.ExpectQuery("SELECT COALESCE\\(SUM\\(amount\\), 0\\) FROM `orders` WHERE buyer_id = \\? AND status = \\?").
		WithArgs(int64(7), models.OrderStatusCompleted).
		WillReturnRows(sqlmock.NewRows([]string{"sum"}).AddRow("125.50"))

	sum, err := st.SumOrders(context.Background(), services.OrderQuery{BuyerID: 7, Status: models.OrderStatusCompleted})
	require.NoError(t, err)
	assert.True(t, sum.Equal(decimal.RequireFromString("125.5")))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCountOrdersFilters(t *testing.T) {
	st, mock := newMockStore(t)
	mock.ExpectQuery("SELECT count\\(\\*\\) FROM `orders` WHERE seller_id = \\? AND status = \\? AND category = \\?").
		WithArgs(int64(3), models.OrderStatusCompleted, "currency").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(12))

	n, err := st.CountOrders(context.Background(), services.OrderQuery{SellerID: 3, Status: models.OrderStatusCompleted, Category: "currency"})
	require.NoError(t, err)
	assert.Equal(t, int64(12), n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDistinctAggregates(t *testing.T) {
	st, mock := newMockStore(t)
	mock.ExpectQuery("SELECT COUNT\\(DISTINCT recipient_id\\) FROM `messages` WHERE sender_id = \\?").
		WillReturnRows(sqlmock.NewRows([]string{"n"}).AddRow(6))
	mock.ExpectQuery("SELECT COUNT\\(DISTINCT DATE\\(logged_in_at\\)\\) FROM `logins` WHERE user_id = \\?").
		WillReturnRows(sqlmock.NewRows([]string{"n"}).AddRow(4))

	partners, err := st.CountMessagedCounterparties(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, int64(6), partners)

	days, err := st.CountLoginDays(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, int64(4), days)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListAchievementsByMetric(t *testing.T) {
	st, mock := newMockStore(t)
	rows := sqlmock.NewRows([]string{"id", "slug", "name", "category", "achievement_group", "tier", "requirements", "wallet_reward", "is_active"}).
		AddRow(1, "total-buyer-copper", "Buyer", "buyer", "total-buyer", "copper", `{"metric":"completed_order_count","operator":">=","threshold":"1"}`, "0.50", true)
	mock.ExpectQuery("SELECT \\* FROM `achievements` WHERE is_active = \\? AND .*JSON_EXTRACT.*ORDER BY achievement_group ASC, id ASC").
		WillReturnRows(rows)

	list, err := st.ListAchievements(context.Background(), services.AchievementQuery{
		ActiveOnly: true,
		Metrics:    []models.MetricKind{models.MetricCompletedOrderCount},
	})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, models.MetricCompletedOrderCount, list[0].Requirement().Metric)
	assert.True(t, list[0].Requirement().Threshold.Equal(decimal.NewFromInt(1)))
	assert.Equal(t, models.TierCopper, list[0].Tier)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTopUnlockers(t *testing.T) {
	st, mock := newMockStore(t)
	mock.ExpectQuery("SELECT ur.user_id AS user_id, users.username AS username, COUNT\\(\\*\\) AS unlocked FROM unlock_records AS ur LEFT JOIN users").
		WillReturnRows(sqlmock.NewRows([]string{"user_id", "username", "unlocked"}).
			AddRow(2, "bob", 5).
			AddRow(1, "alice", 3))

	board, err := st.TopUnlockers(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, board, 2)
	assert.Equal(t, "bob", board[0].Username)
	assert.Equal(t, int64(5), board[0].Unlocked)
	require.NoError(t, mock.ExpectationsWereMet())
}
