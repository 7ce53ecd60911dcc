package services

import (
	"context"
	"errors"
	"time"

	"github.com/cppla/marketcore/models"
)

// Ledger records unlocks and enforces at most one record per (user, achievement).
type Ledger struct {
	store Store
	now   func() time.Time
}

// NewLedger creates a ledger over store. Pass a transaction-bound store to
// combine the unlock with other writes.
func NewLedger(store Store) *Ledger {
	return &Ledger{store: store, now: time.Now}
}

// IsUnlockedBy reports whether userID holds an unlock record for achievementID.
func (l *Ledger) IsUnlockedBy(ctx context.Context, userID, achievementID uint) (bool, error) {
	_, err := l.store.FindUnlock(ctx, userID, achievementID)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// UnlockFor records the unlock. The caller must pass the snapshot it evaluated;
// an unmet snapshot is rejected. When the pair already exists the existing
// record is returned with created == false.
func (l *Ledger) UnlockFor(ctx context.Context, userID uint, a *models.Achievement, snap ProgressSnapshot) (*models.UnlockRecord, bool, error) {
	if !snap.Met {
		return nil, false, ErrRequirementsNotMet
	}

	existing, err := l.store.FindUnlock(ctx, userID, a.ID)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, false, err
	}

	rec := &models.UnlockRecord{
		UserID:        userID,
		AchievementID: a.ID,
		UnlockedAt:    l.now(),
	}
	created, err := l.store.InsertUnlock(ctx, rec)
	if err != nil {
		return nil, false, err
	}
	if !created {
		// lost the race on the unique index; a plain read may still be served
		// from a snapshot taken before the winner committed
		existing, err := l.store.FindUnlockLocked(ctx, userID, a.ID)
		if err != nil {
			return nil, false, err
		}
		return existing, false, nil
	}
	return rec, true, nil
}

// UnlocksFor lists the user's unlock records, newest first.
func (l *Ledger) UnlocksFor(ctx context.Context, userID uint) ([]models.UnlockRecord, error) {
	return l.store.ListUnlocks(ctx, userID)
}
