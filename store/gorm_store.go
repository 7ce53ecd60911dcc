package store

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/cppla/marketcore/models"
	"github.com/cppla/marketcore/services"
)

// GormStore implements services.Store on MySQL through gorm.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore wraps db.
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// Models lists every table this store reads or writes, for AutoMigrate.
func Models() []interface{} {
	return []interface{}{
		&models.User{},
		&models.Achievement{},
		&models.UnlockRecord{},
		&models.WalletTransaction{},
		&models.Order{},
		&models.Message{},
		&models.Review{},
		&models.Login{},
	}
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return services.ErrNotFound
	}
	return err
}

// Transaction runs fn inside one database transaction.
func (s *GormStore) Transaction(ctx context.Context, fn func(tx services.Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&GormStore{db: tx})
	})
}

func (s *GormStore) orders(ctx context.Context, q services.OrderQuery) *gorm.DB {
	tx := s.db.WithContext(ctx).Model(&models.Order{})
	if q.BuyerID != 0 {
		tx = tx.Where("buyer_id = ?", q.BuyerID)
	}
	if q.SellerID != 0 {
		tx = tx.Where("seller_id = ?", q.SellerID)
	}
	if q.Status != "" {
		tx = tx.Where("status = ?", q.Status)
	}
	if q.PaymentStatus != "" {
		tx = tx.Where("payment_status = ?", q.PaymentStatus)
	}
	if q.Category != "" {
		tx = tx.Where("category = ?", q.Category)
	}
	return tx
}

// CountOrders counts orders matching q.
func (s *GormStore) CountOrders(ctx context.Context, q services.OrderQuery) (int64, error) {
	var n int64
	err := s.orders(ctx, q).Count(&n).Error
	return n, err
}

// SumOrders sums order amounts matching q.
func (s *GormStore) SumOrders(ctx context.Context, q services.OrderQuery) (decimal.Decimal, error) {
	var sum decimal.NullDecimal
	if err := s.orders(ctx, q).Select("COALESCE(SUM(amount), 0)").Row().Scan(&sum); err != nil {
		return decimal.Zero, err
	}
	return sum.Decimal, nil
}

// SumWalletTransactions sums the user's wallet entries of txType.
func (s *GormStore) SumWalletTransactions(ctx context.Context, userID uint, txType string) (decimal.Decimal, error) {
	var sum decimal.NullDecimal
	err := s.db.WithContext(ctx).Model(&models.WalletTransaction{}).
		Select("COALESCE(SUM(amount), 0)").
		Where("user_id = ? AND type = ?", userID, txType).
		Row().Scan(&sum)
	if err != nil {
		return decimal.Zero, err
	}
	return sum.Decimal, nil
}

// CountMessagedCounterparties counts distinct users the sender has written to.
func (s *GormStore) CountMessagedCounterparties(ctx context.Context, userID uint) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&models.Message{}).
		Select("COUNT(DISTINCT recipient_id)").
		Where("sender_id = ?", userID).
		Row().Scan(&n)
	return n, err
}

// CountReviews counts reviews matching q.
func (s *GormStore) CountReviews(ctx context.Context, q services.ReviewQuery) (int64, error) {
	tx := s.db.WithContext(ctx).Model(&models.Review{})
	if q.AuthorID != 0 {
		tx = tx.Where("author_id = ?", q.AuthorID)
	}
	if q.SellerID != 0 {
		tx = tx.Where("seller_id = ?", q.SellerID)
	}
	if q.MinRating > 0 {
		tx = tx.Where("rating >= ?", q.MinRating)
	}
	var n int64
	err := tx.Count(&n).Error
	return n, err
}

// CountLoginDays counts calendar days with at least one login.
func (s *GormStore) CountLoginDays(ctx context.Context, userID uint) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&models.Login{}).
		Select("COUNT(DISTINCT DATE(logged_in_at))").
		Where("user_id = ?", userID).
		Row().Scan(&n)
	return n, err
}

// GetAchievement loads one definition.
func (s *GormStore) GetAchievement(ctx context.Context, id uint) (*models.Achievement, error) {
	var a models.Achievement
	if err := s.db.WithContext(ctx).First(&a, id).Error; err != nil {
		return nil, notFound(err)
	}
	return &a, nil
}

// ListAchievements lists definitions matching q, ordered by group and id.
func (s *GormStore) ListAchievements(ctx context.Context, q services.AchievementQuery) ([]models.Achievement, error) {
	tx := s.db.WithContext(ctx).Model(&models.Achievement{})
	if q.ActiveOnly {
		tx = tx.Where("is_active = ?", true)
	}
	if q.Group != "" {
		tx = tx.Where("achievement_group = ?", q.Group)
	}
	if q.Category != "" {
		tx = tx.Where("category = ?", q.Category)
	}
	if len(q.Metrics) > 0 {
		exprs := make([]clause.Expression, 0, len(q.Metrics))
		for _, m := range q.Metrics {
			exprs = append(exprs, datatypes.JSONQuery("requirements").Equals(string(m), "metric"))
		}
		tx = tx.Where(clause.Or(exprs...))
	}
	var list []models.Achievement
	if err := tx.Order("achievement_group ASC, id ASC").Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

// SaveAchievement creates a or overwrites the row with a.ID.
func (s *GormStore) SaveAchievement(ctx context.Context, a *models.Achievement) error {
	if a.ID == 0 {
		return s.db.WithContext(ctx).Create(a).Error
	}
	return s.db.WithContext(ctx).Save(a).Error
}

// FindUnlock loads the unlock record for the pair.
func (s *GormStore) FindUnlock(ctx context.Context, userID, achievementID uint) (*models.UnlockRecord, error) {
	var rec models.UnlockRecord
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND achievement_id = ?", userID, achievementID).
		First(&rec).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &rec, nil
}

// FindUnlockLocked loads the pair with SELECT ... FOR SHARE, which reads the
// latest committed row instead of the transaction snapshot.
func (s *GormStore) FindUnlockLocked(ctx context.Context, userID, achievementID uint) (*models.UnlockRecord, error) {
	var rec models.UnlockRecord
	err := s.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "SHARE"}).
		Where("user_id = ? AND achievement_id = ?", userID, achievementID).
		First(&rec).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &rec, nil
}

// InsertUnlock writes rec unless the unique pair index already holds a row.
func (s *GormStore) InsertUnlock(ctx context.Context, rec *models.UnlockRecord) (bool, error) {
	res := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Omit(clause.Associations).
		Create(rec)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// ListUnlocks lists the user's unlocks with their achievements, newest first.
func (s *GormStore) ListUnlocks(ctx context.Context, userID uint) ([]models.UnlockRecord, error) {
	var list []models.UnlockRecord
	err := s.db.WithContext(ctx).
		Preload("Achievement").
		Where("user_id = ?", userID).
		Order("unlocked_at DESC, id DESC").
		Find(&list).Error
	return list, err
}

// MarkUnlockCredited flips reward_credited only while it is still false.
func (s *GormStore) MarkUnlockCredited(ctx context.Context, unlockID uint, at time.Time) (bool, error) {
	res := s.db.WithContext(ctx).Model(&models.UnlockRecord{}).
		Where("id = ? AND reward_credited = ?", unlockID, false).
		Updates(map[string]interface{}{"reward_credited": true, "credited_at": at})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// CreditWallet locks the user row, increments the balance and appends entry.
func (s *GormStore) CreditWallet(ctx context.Context, entry *models.WalletTransaction) error {
	db := s.db.WithContext(ctx)

	var user models.User
	if err := db.Clauses(clause.Locking{Strength: "UPDATE"}).
		Select("id", "wallet_balance").
		First(&user, entry.UserID).Error; err != nil {
		return notFound(err)
	}

	if err := db.Model(&models.User{}).
		Where("id = ?", user.ID).
		UpdateColumn("wallet_balance", gorm.Expr("wallet_balance + ?", entry.Amount)).Error; err != nil {
		return err
	}

	entry.BalanceBefore = user.WalletBalance
	entry.BalanceAfter = user.WalletBalance.Add(entry.Amount)
	return db.Create(entry).Error
}

// TopUnlockers ranks users by unlock count.
func (s *GormStore) TopUnlockers(ctx context.Context, limit int) ([]services.LeaderboardEntry, error) {
	var out []services.LeaderboardEntry
	err := s.db.WithContext(ctx).
		Table("unlock_records AS ur").
		Select("ur.user_id AS user_id, users.username AS username, COUNT(*) AS unlocked").
		Joins("LEFT JOIN users ON users.id = ur.user_id").
		Group("ur.user_id, users.username").
		Order("unlocked DESC, ur.user_id ASC").
		Limit(limit).
		Scan(&out).Error
	return out, err
}

var _ services.Store = (*GormStore)(nil)
