package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/cppla/marketcore/events"
	"github.com/cppla/marketcore/models"
	"github.com/cppla/marketcore/utils"
)

// Options tunes engine behaviour.
type Options struct {
	// ManualClaim defers reward payout until the user calls Claim.
	ManualClaim bool
	// PublishTimeout bounds how long emitting achievement events may block.
	PublishTimeout time.Duration
	Logger         *zap.Logger
}

// UnlockOutcome describes the result of one Unlock call.
type UnlockOutcome struct {
	Record  *models.UnlockRecord      `json:"record"`
	Created bool                      `json:"created"`
	Credit  *models.WalletTransaction `json:"credit,omitempty"`
}

// AchievementProgress pairs a definition with the user's live progress.
type AchievementProgress struct {
	Achievement models.Achievement `json:"achievement"`
	Progress    *ProgressSnapshot  `json:"progress,omitempty"`
	Unlocked    bool               `json:"unlocked"`
	UnlockedAt  *time.Time         `json:"unlocked_at,omitempty"`
	Credited    bool               `json:"reward_credited"`
	Error       string             `json:"error,omitempty"`
}

// Engine ties the evaluator, ledger and dispenser together behind one storage handle.
type Engine struct {
	store     Store
	evaluator *Evaluator
	locker    Locker
	publisher events.Publisher
	opts      Options
	log       *zap.Logger
}

// NewEngine wires the engine. locker and publisher may be nil.
func NewEngine(store Store, locker Locker, publisher events.Publisher, opts Options) *Engine {
	if locker == nil {
		locker = noopLocker{}
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.PublishTimeout <= 0 {
		opts.PublishTimeout = 2 * time.Second
	}
	return &Engine{
		store:     store,
		evaluator: NewEvaluator(store),
		locker:    locker,
		publisher: publisher,
		opts:      opts,
		log:       opts.Logger,
	}
}

// Evaluate computes the user's progress on a.
func (e *Engine) Evaluate(ctx context.Context, userID uint, a *models.Achievement) (ProgressSnapshot, error) {
	return e.evaluator.Evaluate(ctx, userID, a)
}

// IsUnlockedBy reports whether the user unlocked the achievement.
func (e *Engine) IsUnlockedBy(ctx context.Context, userID, achievementID uint) (bool, error) {
	return NewLedger(e.store).IsUnlockedBy(ctx, userID, achievementID)
}

// Unlock records the unlock and, unless manual claim is configured, pays the
// reward in the same transaction. Repeated or concurrent calls for the same
// pair produce one record and one credit.
func (e *Engine) Unlock(ctx context.Context, userID uint, a *models.Achievement, snap ProgressSnapshot) (*UnlockOutcome, error) {
	release, err := e.locker.Acquire(ctx, pairKey(userID, a.ID))
	if err != nil {
		return nil, fmt.Errorf("acquire unlock lock: %w", err)
	}
	defer release()

	var out UnlockOutcome
	err = e.store.Transaction(ctx, func(tx Store) error {
		rec, created, err := NewLedger(tx).UnlockFor(ctx, userID, a, snap)
		if err != nil {
			return err
		}
		out = UnlockOutcome{Record: rec, Created: created}
		if !created || e.opts.ManualClaim {
			return nil
		}
		credit, err := NewDispenser(tx).Credit(ctx, userID, a)
		if err != nil {
			return err
		}
		out.Credit = credit
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrCreditFailure) {
			utils.ObserveCreditFailure(a.Group)
		}
		return nil, err
	}

	if out.Created {
		utils.ObserveUnlock(a.Group, string(a.Tier))
		e.log.Info("achievement unlocked",
			zap.Uint("user_id", userID),
			zap.Uint("achievement_id", a.ID),
			zap.String("slug", a.Slug),
			zap.String("current", snap.Current.String()))
		e.emit(events.AchievementUnlocked, userID, a)
	}
	if out.Credit != nil {
		e.creditObserved(userID, a, out.Credit)
	}
	return &out, nil
}

// Claim pays the reward of an unlocked achievement in manual claim mode.
func (e *Engine) Claim(ctx context.Context, userID, achievementID uint) (*models.WalletTransaction, error) {
	a, err := e.store.GetAchievement(ctx, achievementID)
	if err != nil {
		return nil, err
	}

	release, err := e.locker.Acquire(ctx, pairKey(userID, a.ID))
	if err != nil {
		return nil, fmt.Errorf("acquire claim lock: %w", err)
	}
	defer release()

	var credit *models.WalletTransaction
	err = e.store.Transaction(ctx, func(tx Store) error {
		rec, err := tx.FindUnlock(ctx, userID, a.ID)
		if errors.Is(err, ErrNotFound) {
			return ErrNotUnlocked
		}
		if err != nil {
			return err
		}
		if rec.RewardCredited {
			return ErrAlreadyClaimed
		}
		credit, err = NewDispenser(tx).Credit(ctx, userID, a)
		return err
	})
	if err != nil {
		if errors.Is(err, ErrCreditFailure) {
			utils.ObserveCreditFailure(a.Group)
		}
		return nil, err
	}
	if credit != nil {
		e.creditObserved(userID, a, credit)
	}
	return credit, nil
}

// Progress evaluates one achievement for the user.
func (e *Engine) Progress(ctx context.Context, userID, achievementID uint) (*AchievementProgress, error) {
	a, err := e.store.GetAchievement(ctx, achievementID)
	if err != nil {
		return nil, err
	}
	p := &AchievementProgress{Achievement: *a}
	if err := e.fillUnlock(ctx, userID, p); err != nil {
		return nil, err
	}
	snap, err := e.evaluator.Evaluate(ctx, userID, a)
	if err != nil {
		return nil, err
	}
	p.Progress = &snap
	return p, nil
}

// ProgressAll evaluates every matching active achievement. Evaluation errors
// are reported per entry and do not fail the listing.
func (e *Engine) ProgressAll(ctx context.Context, userID uint, q AchievementQuery) ([]AchievementProgress, error) {
	q.ActiveOnly = true
	list, err := e.store.ListAchievements(ctx, q)
	if err != nil {
		return nil, err
	}
	unlocks, err := e.store.ListUnlocks(ctx, userID)
	if err != nil {
		return nil, err
	}
	byAchievement := make(map[uint]models.UnlockRecord, len(unlocks))
	for _, u := range unlocks {
		byAchievement[u.AchievementID] = u
	}

	out := make([]AchievementProgress, 0, len(list))
	for i := range list {
		p := AchievementProgress{Achievement: list[i]}
		if u, ok := byAchievement[list[i].ID]; ok {
			p.Unlocked, p.Credited = true, u.RewardCredited
			at := u.UnlockedAt
			p.UnlockedAt = &at
		}
		snap, err := e.evaluator.Evaluate(ctx, userID, &list[i])
		if err != nil {
			p.Error = err.Error()
		} else {
			p.Progress = &snap
		}
		out = append(out, p)
	}
	return out, nil
}

// Unlocks lists what the user has unlocked.
func (e *Engine) Unlocks(ctx context.Context, userID uint) ([]models.UnlockRecord, error) {
	return NewLedger(e.store).UnlocksFor(ctx, userID)
}

// Catalog lists achievement definitions.
func (e *Engine) Catalog(ctx context.Context, q AchievementQuery) ([]models.Achievement, error) {
	return e.store.ListAchievements(ctx, q)
}

// Achievement loads one definition.
func (e *Engine) Achievement(ctx context.Context, id uint) (*models.Achievement, error) {
	return e.store.GetAchievement(ctx, id)
}

// Leaderboard lists users with the most unlocks.
func (e *Engine) Leaderboard(ctx context.Context, limit int) ([]LeaderboardEntry, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return e.store.TopUnlockers(ctx, limit)
}

// SaveAchievement validates and stores a definition. Returned warnings describe
// tier ordering problems in the achievement's group; they do not block the write.
func (e *Engine) SaveAchievement(ctx context.Context, a *models.Achievement) ([]string, error) {
	if err := ValidateRequirement(a.Requirement()); err != nil {
		return nil, err
	}
	if !a.Tier.Valid() {
		return nil, fmt.Errorf("%w: tier %q", ErrInvalidRequirement, a.Tier)
	}
	if err := e.store.SaveAchievement(ctx, a); err != nil {
		return nil, err
	}
	group, err := e.store.ListAchievements(ctx, AchievementQuery{Group: a.Group})
	if err != nil {
		return nil, err
	}
	warnings := CheckTierOrdering(group)
	for _, w := range warnings {
		e.log.Warn("achievement tier ordering", zap.String("group", a.Group), zap.String("detail", w))
	}
	return warnings, nil
}

func (e *Engine) fillUnlock(ctx context.Context, userID uint, p *AchievementProgress) error {
	rec, err := e.store.FindUnlock(ctx, userID, p.Achievement.ID)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	p.Unlocked, p.Credited = true, rec.RewardCredited
	at := rec.UnlockedAt
	p.UnlockedAt = &at
	return nil
}

func (e *Engine) creditObserved(userID uint, a *models.Achievement, credit *models.WalletTransaction) {
	utils.ObserveCredit(a.Group, credit.Amount.InexactFloat64())
	e.log.Info("achievement reward credited",
		zap.Uint("user_id", userID),
		zap.Uint("achievement_id", a.ID),
		zap.String("amount", credit.Amount.String()),
		zap.String("balance_after", credit.BalanceAfter.String()),
		zap.String("reference", credit.Reference))
	e.emit(events.AchievementCredited, userID, a)
}

func (e *Engine) emit(kind events.Kind, userID uint, a *models.Achievement) {
	if e.publisher == nil {
		return
	}
	ev := events.New(kind, userID, 0)
	ev.Payload = map[string]string{
		"achievement_id": fmt.Sprint(a.ID),
		"slug":           a.Slug,
		"group":          a.Group,
		"tier":           string(a.Tier),
	}
	ctx, cancel := context.WithTimeout(context.Background(), e.opts.PublishTimeout)
	defer cancel()
	if err := e.publisher.Publish(ctx, ev); err != nil {
		e.log.Warn("publish achievement event failed", zap.String("kind", string(kind)), zap.Error(err))
	}
}

func pairKey(userID, achievementID uint) string {
	return fmt.Sprintf("achievement:unlock:%d:%d", userID, achievementID)
}
