package events

import (
	"time"

	"github.com/google/uuid"
)

// Kind identifies what happened.
type Kind string

// Marketplace domain events consumed by the achievement scanner.
const (
	OrderCompleted Kind = "order.completed"
	MessageSent    Kind = "message.sent"
	ReviewPosted   Kind = "review.posted"
	UserLogin      Kind = "user.login"
	WalletDeposit  Kind = "wallet.deposit"
	UserRescan     Kind = "user.rescan"
)

// Events emitted by the achievement engine itself.
const (
	AchievementUnlocked Kind = "achievement.unlocked"
	AchievementCredited Kind = "achievement.credited"
)

// Event is a typed domain event. UserID is the acting user; CounterpartyID is the
// other side when there is one (seller of an order, recipient of a message).
type Event struct {
	ID             string            `json:"id"`
	Kind           Kind              `json:"kind"`
	UserID         uint              `json:"user_id"`
	CounterpartyID uint              `json:"counterparty_id,omitempty"`
	OccurredAt     time.Time         `json:"occurred_at"`
	Payload        map[string]string `json:"payload,omitempty"`
}

// New builds an event with a fresh id and timestamp.
func New(kind Kind, userID, counterpartyID uint) Event {
	return Event{
		ID:             uuid.NewString(),
		Kind:           kind,
		UserID:         userID,
		CounterpartyID: counterpartyID,
		OccurredAt:     time.Now(),
	}
}

// Known reports whether k is one of the marketplace event kinds accepted from other subsystems.
func (k Kind) Known() bool {
	switch k {
	case OrderCompleted, MessageSent, ReviewPosted, UserLogin, WalletDeposit, UserRescan:
		return true
	}
	return false
}
