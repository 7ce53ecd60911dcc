package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/cppla/marketcore/models"
)

// Dispenser pays achievement rewards into user wallets exactly once per unlock.
type Dispenser struct {
	store Store
	now   func() time.Time
}

// NewDispenser creates a dispenser over store. It must share the ledger's transaction.
func NewDispenser(store Store) *Dispenser {
	return &Dispenser{store: store, now: time.Now}
}

// Credit pays a.WalletReward to userID. It returns the wallet transaction, or
// nil when the reward was already paid or is zero.
func (d *Dispenser) Credit(ctx context.Context, userID uint, a *models.Achievement) (*models.WalletTransaction, error) {
	rec, err := d.store.FindUnlock(ctx, userID, a.ID)
	if errors.Is(err, ErrNotFound) {
		return nil, ErrNotUnlocked
	}
	if err != nil {
		return nil, fmt.Errorf("%w: load unlock: %w", ErrCreditFailure, err)
	}
	if rec.RewardCredited {
		return nil, nil
	}

	flipped, err := d.store.MarkUnlockCredited(ctx, rec.ID, d.now())
	if err != nil {
		return nil, fmt.Errorf("%w: mark credited: %w", ErrCreditFailure, err)
	}
	if !flipped {
		return nil, nil
	}
	if !a.WalletReward.IsPositive() {
		return nil, nil
	}

	achievementID, unlockID := a.ID, rec.ID
	entry := &models.WalletTransaction{
		Reference:      uuid.NewString(),
		UserID:         userID,
		Type:           models.WalletTxAchievementReward,
		Amount:         a.WalletReward,
		AchievementID:  &achievementID,
		UnlockRecordID: &unlockID,
		Note:           "achievement:" + a.Slug,
	}
	if err := d.store.CreditWallet(ctx, entry); err != nil {
		return nil, fmt.Errorf("%w: wallet: %w", ErrCreditFailure, err)
	}
	return entry, nil
}
