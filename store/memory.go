package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/cppla/marketcore/models"
	"github.com/cppla/marketcore/services"
)

// MemoryStore is an in-process services.Store. Transactions hold the store
// lock for their whole duration and commit a private copy of the state.
type MemoryStore struct {
	mu sync.Mutex
	st *memState
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{st: newMemState()}
}

type memState struct {
	nextID       uint
	users        map[uint]models.User
	achievements map[uint]models.Achievement
	unlocks      []models.UnlockRecord
	walletTxs    []models.WalletTransaction
	orders       []models.Order
	messages     []models.Message
	reviews      []models.Review
	logins       []models.Login
}

func newMemState() *memState {
	return &memState{
		users:        map[uint]models.User{},
		achievements: map[uint]models.Achievement{},
	}
}

func (st *memState) clone() *memState {
	c := &memState{
		nextID:       st.nextID,
		users:        make(map[uint]models.User, len(st.users)),
		achievements: make(map[uint]models.Achievement, len(st.achievements)),
		unlocks:      append([]models.UnlockRecord(nil), st.unlocks...),
		walletTxs:    append([]models.WalletTransaction(nil), st.walletTxs...),
		orders:       append([]models.Order(nil), st.orders...),
		messages:     append([]models.Message(nil), st.messages...),
		reviews:      append([]models.Review(nil), st.reviews...),
		logins:       append([]models.Login(nil), st.logins...),
	}
	for k, v := range st.users {
		c.users[k] = v
	}
	for k, v := range st.achievements {
		c.achievements[k] = v
	}
	return c
}

func (st *memState) id() uint {
	st.nextID++
	return st.nextID
}

// with runs fn against the live state under the store lock.
func (s *MemoryStore) with(fn func(v *memView) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(&memView{st: s.st})
}

// Transaction runs fn on a copy of the state and keeps the copy only when fn succeeds.
func (s *MemoryStore) Transaction(ctx context.Context, fn func(tx services.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	draft := s.st.clone()
	if err := fn(&memView{st: draft}); err != nil {
		return err
	}
	s.st = draft
	return nil
}

func (s *MemoryStore) CountOrders(ctx context.Context, q services.OrderQuery) (n int64, err error) {
	err = s.with(func(v *memView) error { n, err = v.CountOrders(ctx, q); return err })
	return
}

func (s *MemoryStore) SumOrders(ctx context.Context, q services.OrderQuery) (d decimal.Decimal, err error) {
	err = s.with(func(v *memView) error { d, err = v.SumOrders(ctx, q); return err })
	return
}

func (s *MemoryStore) SumWalletTransactions(ctx context.Context, userID uint, txType string) (d decimal.Decimal, err error) {
	err = s.with(func(v *memView) error { d, err = v.SumWalletTransactions(ctx, userID, txType); return err })
	return
}

func (s *MemoryStore) CountMessagedCounterparties(ctx context.Context, userID uint) (n int64, err error) {
	err = s.with(func(v *memView) error { n, err = v.CountMessagedCounterparties(ctx, userID); return err })
	return
}

func (s *MemoryStore) CountReviews(ctx context.Context, q services.ReviewQuery) (n int64, err error) {
	err = s.with(func(v *memView) error { n, err = v.CountReviews(ctx, q); return err })
	return
}

func (s *MemoryStore) CountLoginDays(ctx context.Context, userID uint) (n int64, err error) {
	err = s.with(func(v *memView) error { n, err = v.CountLoginDays(ctx, userID); return err })
	return
}

func (s *MemoryStore) GetAchievement(ctx context.Context, id uint) (a *models.Achievement, err error) {
	err = s.with(func(v *memView) error { a, err = v.GetAchievement(ctx, id); return err })
	return
}

func (s *MemoryStore) ListAchievements(ctx context.Context, q services.AchievementQuery) (list []models.Achievement, err error) {
	err = s.with(func(v *memView) error { list, err = v.ListAchievements(ctx, q); return err })
	return
}

func (s *MemoryStore) SaveAchievement(ctx context.Context, a *models.Achievement) error {
	return s.with(func(v *memView) error { return v.SaveAchievement(ctx, a) })
}

func (s *MemoryStore) FindUnlock(ctx context.Context, userID, achievementID uint) (rec *models.UnlockRecord, err error) {
	err = s.with(func(v *memView) error { rec, err = v.FindUnlock(ctx, userID, achievementID); return err })
	return
}

// FindUnlockLocked is FindUnlock; the store mutex already orders every read after committed writes.
func (s *MemoryStore) FindUnlockLocked(ctx context.Context, userID, achievementID uint) (*models.UnlockRecord, error) {
	return s.FindUnlock(ctx, userID, achievementID)
}

func (s *MemoryStore) InsertUnlock(ctx context.Context, rec *models.UnlockRecord) (ok bool, err error) {
	err = s.with(func(v *memView) error { ok, err = v.InsertUnlock(ctx, rec); return err })
	return
}

func (s *MemoryStore) ListUnlocks(ctx context.Context, userID uint) (list []models.UnlockRecord, err error) {
	err = s.with(func(v *memView) error { list, err = v.ListUnlocks(ctx, userID); return err })
	return
}

func (s *MemoryStore) MarkUnlockCredited(ctx context.Context, unlockID uint, at time.Time) (ok bool, err error) {
	err = s.with(func(v *memView) error { ok, err = v.MarkUnlockCredited(ctx, unlockID, at); return err })
	return
}

func (s *MemoryStore) CreditWallet(ctx context.Context, entry *models.WalletTransaction) error {
	return s.with(func(v *memView) error { return v.CreditWallet(ctx, entry) })
}

func (s *MemoryStore) TopUnlockers(ctx context.Context, limit int) (list []services.LeaderboardEntry, err error) {
	err = s.with(func(v *memView) error { list, err = v.TopUnlockers(ctx, limit); return err })
	return
}

// AddUser creates a user with the given starting balance.
func (s *MemoryStore) AddUser(username string, balance decimal.Decimal) models.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	u := models.User{ID: s.st.id(), Username: username, WalletBalance: balance, CreatedAt: now, UpdatedAt: now}
	s.st.users[u.ID] = u
	return u
}

// User returns a copy of the user row.
func (s *MemoryStore) User(id uint) (models.User, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.st.users[id]
	return u, ok
}

// AddOrder records an order; an empty status means completed.
func (s *MemoryStore) AddOrder(o models.Order) models.Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	o.ID = s.st.id()
	if o.Status == "" {
		o.Status = models.OrderStatusCompleted
	}
	if o.CreatedAt.IsZero() {
		o.CreatedAt = time.Now()
	}
	s.st.orders = append(s.st.orders, o)
	return o
}

// AddMessage records a message from sender to recipient.
func (s *MemoryStore) AddMessage(senderID, recipientID uint, body string) models.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := models.Message{ID: s.st.id(), SenderID: senderID, RecipientID: recipientID, Body: body, CreatedAt: time.Now()}
	s.st.messages = append(s.st.messages, m)
	return m
}

// AddReview records a review.
func (s *MemoryStore) AddReview(r models.Review) models.Review {
	s.mu.Lock()
	defer s.mu.Unlock()
	r.ID = s.st.id()
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}
	s.st.reviews = append(s.st.reviews, r)
	return r
}

// AddLogin records a login at the given time.
func (s *MemoryStore) AddLogin(userID uint, at time.Time) models.Login {
	s.mu.Lock()
	defer s.mu.Unlock()
	l := models.Login{ID: s.st.id(), UserID: userID, LoggedInAt: at}
	s.st.logins = append(s.st.logins, l)
	return l
}

// Deposit tops up a wallet the way the payment subsystem would.
func (s *MemoryStore) Deposit(ctx context.Context, userID uint, amount decimal.Decimal) (*models.WalletTransaction, error) {
	entry := &models.WalletTransaction{
		Reference: uuid.NewString(),
		UserID:    userID,
		Type:      models.WalletTxDeposit,
		Amount:    amount,
		Note:      "deposit",
	}
	if err := s.CreditWallet(ctx, entry); err != nil {
		return nil, err
	}
	return entry, nil
}

// WalletTransactions lists the user's wallet entries in insertion order.
func (s *MemoryStore) WalletTransactions(userID uint) []models.WalletTransaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.WalletTransaction
	for _, t := range s.st.walletTxs {
		if t.UserID == userID {
			out = append(out, t)
		}
	}
	return out
}

// memView implements services.Store over one state without locking.
type memView struct {
	st *memState
}

func (v *memView) Transaction(ctx context.Context, fn func(tx services.Store) error) error {
	return fn(v)
}

func (v *memView) matchOrders(q services.OrderQuery) []models.Order {
	var out []models.Order
	for _, o := range v.st.orders {
		if q.BuyerID != 0 && o.BuyerID != q.BuyerID {
			continue
		}
		if q.SellerID != 0 && o.SellerID != q.SellerID {
			continue
		}
		if q.Status != "" && o.Status != q.Status {
			continue
		}
		if q.PaymentStatus != "" && o.PaymentStatus != q.PaymentStatus {
			continue
		}
		if q.Category != "" && o.Category != q.Category {
			continue
		}
		out = append(out, o)
	}
	return out
}

func (v *memView) CountOrders(_ context.Context, q services.OrderQuery) (int64, error) {
	return int64(len(v.matchOrders(q))), nil
}

func (v *memView) SumOrders(_ context.Context, q services.OrderQuery) (decimal.Decimal, error) {
	sum := decimal.Zero
	for _, o := range v.matchOrders(q) {
		sum = sum.Add(o.Amount)
	}
	return sum, nil
}

func (v *memView) SumWalletTransactions(_ context.Context, userID uint, txType string) (decimal.Decimal, error) {
	sum := decimal.Zero
	for _, t := range v.st.walletTxs {
		if t.UserID == userID && t.Type == txType {
			sum = sum.Add(t.Amount)
		}
	}
	return sum, nil
}

func (v *memView) CountMessagedCounterparties(_ context.Context, userID uint) (int64, error) {
	seen := map[uint]struct{}{}
	for _, m := range v.st.messages {
		if m.SenderID == userID {
			seen[m.RecipientID] = struct{}{}
		}
	}
	return int64(len(seen)), nil
}

func (v *memView) CountReviews(_ context.Context, q services.ReviewQuery) (int64, error) {
	var n int64
	for _, r := range v.st.reviews {
		if q.AuthorID != 0 && r.AuthorID != q.AuthorID {
			continue
		}
		if q.SellerID != 0 && r.SellerID != q.SellerID {
			continue
		}
		if q.MinRating > 0 && r.Rating < q.MinRating {
			continue
		}
		n++
	}
	return n, nil
}

func (v *memView) CountLoginDays(_ context.Context, userID uint) (int64, error) {
	days := map[string]struct{}{}
	for _, l := range v.st.logins {
		if l.UserID == userID {
			days[l.LoggedInAt.Local().Format("2006-01-02")] = struct{}{}
		}
	}
	return int64(len(days)), nil
}

func (v *memView) GetAchievement(_ context.Context, id uint) (*models.Achievement, error) {
	a, ok := v.st.achievements[id]
	if !ok {
		return nil, services.ErrNotFound
	}
	return &a, nil
}

func (v *memView) ListAchievements(_ context.Context, q services.AchievementQuery) ([]models.Achievement, error) {
	list := make([]models.Achievement, 0, len(v.st.achievements))
	for _, a := range v.st.achievements {
		if q.Matches(&a) {
			list = append(list, a)
		}
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].Group != list[j].Group {
			return list[i].Group < list[j].Group
		}
		return list[i].ID < list[j].ID
	})
	return list, nil
}

func (v *memView) SaveAchievement(_ context.Context, a *models.Achievement) error {
	for id, other := range v.st.achievements {
		if other.Slug == a.Slug && id != a.ID {
			return fmt.Errorf("duplicate achievement slug %q", a.Slug)
		}
	}
	now := time.Now()
	if a.ID == 0 {
		a.ID = v.st.id()
		a.CreatedAt = now
	} else if prev, ok := v.st.achievements[a.ID]; ok && a.CreatedAt.IsZero() {
		a.CreatedAt = prev.CreatedAt
	}
	a.UpdatedAt = now
	v.st.achievements[a.ID] = *a
	return nil
}

func (v *memView) FindUnlock(_ context.Context, userID, achievementID uint) (*models.UnlockRecord, error) {
	for _, r := range v.st.unlocks {
		if r.UserID == userID && r.AchievementID == achievementID {
			return &r, nil
		}
	}
	return nil, services.ErrNotFound
}

func (v *memView) FindUnlockLocked(ctx context.Context, userID, achievementID uint) (*models.UnlockRecord, error) {
	return v.FindUnlock(ctx, userID, achievementID)
}

func (v *memView) InsertUnlock(ctx context.Context, rec *models.UnlockRecord) (bool, error) {
	if _, err := v.FindUnlock(ctx, rec.UserID, rec.AchievementID); err == nil {
		return false, nil
	}
	rec.ID = v.st.id()
	stored := *rec
	stored.Achievement = nil
	v.st.unlocks = append(v.st.unlocks, stored)
	return true, nil
}

func (v *memView) ListUnlocks(_ context.Context, userID uint) ([]models.UnlockRecord, error) {
	var out []models.UnlockRecord
	for _, r := range v.st.unlocks {
		if r.UserID == userID {
			a := v.st.achievements[r.AchievementID]
			r.Achievement = &a
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].UnlockedAt.Equal(out[j].UnlockedAt) {
			return out[i].UnlockedAt.After(out[j].UnlockedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (v *memView) MarkUnlockCredited(_ context.Context, unlockID uint, at time.Time) (bool, error) {
	for i := range v.st.unlocks {
		r := &v.st.unlocks[i]
		if r.ID != unlockID {
			continue
		}
		if r.RewardCredited {
			return false, nil
		}
		r.RewardCredited = true
		r.CreditedAt = &at
		return true, nil
	}
	return false, nil
}

func (v *memView) CreditWallet(_ context.Context, entry *models.WalletTransaction) error {
	u, ok := v.st.users[entry.UserID]
	if !ok {
		return services.ErrNotFound
	}
	if entry.UnlockRecordID != nil {
		for _, t := range v.st.walletTxs {
			if t.UnlockRecordID != nil && *t.UnlockRecordID == *entry.UnlockRecordID {
				return fmt.Errorf("duplicate wallet entry for unlock %d", *entry.UnlockRecordID)
			}
		}
	}
	entry.ID = v.st.id()
	entry.CreatedAt = time.Now()
	entry.BalanceBefore = u.WalletBalance
	entry.BalanceAfter = u.WalletBalance.Add(entry.Amount)
	u.WalletBalance = entry.BalanceAfter
	u.UpdatedAt = entry.CreatedAt
	v.st.users[u.ID] = u
	v.st.walletTxs = append(v.st.walletTxs, *entry)
	return nil
}

func (v *memView) TopUnlockers(_ context.Context, limit int) ([]services.LeaderboardEntry, error) {
	counts := map[uint]int64{}
	for _, r := range v.st.unlocks {
		counts[r.UserID]++
	}
	out := make([]services.LeaderboardEntry, 0, len(counts))
	for id, n := range counts {
		out = append(out, services.LeaderboardEntry{UserID: id, Username: v.st.users[id].Username, Unlocked: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Unlocked != out[j].Unlocked {
			return out[i].Unlocked > out[j].Unlocked
		}
		return out[i].UserID < out[j].UserID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

var (
	_ services.Store = (*MemoryStore)(nil)
	_ services.Store = (*memView)(nil)
)
