package services

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/cppla/marketcore/models"
)

// OrderQuery selects orders for aggregate metrics. Zero fields are not filtered on.
type OrderQuery struct {
	BuyerID       uint
	SellerID      uint
	Status        string
	PaymentStatus string
	Category      string
}

// ReviewQuery selects reviews for aggregate metrics.
type ReviewQuery struct {
	AuthorID  uint
	SellerID  uint
	MinRating int
}

// AchievementQuery filters the achievement catalog.
type AchievementQuery struct {
	Group      string
	Category   string
	Metrics    []models.MetricKind
	ActiveOnly bool
}

// Matches reports whether a satisfies every set field of q.
func (q AchievementQuery) Matches(a *models.Achievement) bool {
	if q.ActiveOnly && !a.IsActive {
		return false
	}
	if q.Group != "" && a.Group != q.Group {
		return false
	}
	if q.Category != "" && a.Category != q.Category {
		return false
	}
	if len(q.Metrics) == 0 {
		return true
	}
	metric := a.Requirement().Metric
	for _, m := range q.Metrics {
		if m == metric {
			return true
		}
	}
	return false
}

// LeaderboardEntry is one row of the unlock-count leaderboard.
type LeaderboardEntry struct {
	UserID   uint   `json:"user_id"`
	Username string `json:"username"`
	Unlocked int64  `json:"unlocked"`
}

// MetricSource exposes the read-only aggregates the evaluator measures.
type MetricSource interface {
	CountOrders(ctx context.Context, q OrderQuery) (int64, error)
	SumOrders(ctx context.Context, q OrderQuery) (decimal.Decimal, error)
	SumWalletTransactions(ctx context.Context, userID uint, txType string) (decimal.Decimal, error)
	CountMessagedCounterparties(ctx context.Context, userID uint) (int64, error)
	CountReviews(ctx context.Context, q ReviewQuery) (int64, error)
	CountLoginDays(ctx context.Context, userID uint) (int64, error)
}

// Store is the storage handle the engine depends on. Implementations return
// ErrNotFound for missing rows.
type Store interface {
	MetricSource

	// Transaction runs fn against a store bound to one transaction; a non-nil
	// error from fn rolls everything back.
	Transaction(ctx context.Context, fn func(tx Store) error) error

	GetAchievement(ctx context.Context, id uint) (*models.Achievement, error)
	ListAchievements(ctx context.Context, q AchievementQuery) ([]models.Achievement, error)
	SaveAchievement(ctx context.Context, a *models.Achievement) error

	FindUnlock(ctx context.Context, userID, achievementID uint) (*models.UnlockRecord, error)
	// FindUnlockLocked is a locking read of the pair. Inside a transaction it
	// sees rows committed after the transaction's snapshot was taken.
	FindUnlockLocked(ctx context.Context, userID, achievementID uint) (*models.UnlockRecord, error)
	// InsertUnlock creates rec unless the (user, achievement) pair exists; it
	// reports whether a row was written.
	InsertUnlock(ctx context.Context, rec *models.UnlockRecord) (bool, error)
	ListUnlocks(ctx context.Context, userID uint) ([]models.UnlockRecord, error)
	// MarkUnlockCredited flips reward_credited from false to true and reports
	// whether this call did the flip.
	MarkUnlockCredited(ctx context.Context, unlockID uint, at time.Time) (bool, error)

	// CreditWallet locks the user's balance, adds entry.Amount, fills the
	// before/after balances and appends entry.
	CreditWallet(ctx context.Context, entry *models.WalletTransaction) error

	TopUnlockers(ctx context.Context, limit int) ([]LeaderboardEntry, error)
}

// Locker serialises work on a key across processes.
type Locker interface {
	Acquire(ctx context.Context, key string) (release func(), err error)
}

type noopLocker struct{}

func (noopLocker) Acquire(context.Context, string) (func(), error) { return func() {}, nil }
