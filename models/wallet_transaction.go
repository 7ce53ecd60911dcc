package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Wallet transaction types.
const (
	WalletTxDeposit           = "deposit"
	WalletTxAchievementReward = "achievement_reward"
	WalletTxPurchase          = "purchase"
	WalletTxRefund            = "refund"
)

// WalletTransaction is an append-only audit entry for a wallet balance change.
type WalletTransaction struct {
	ID             uint            `gorm:"primaryKey" json:"id"`
	Reference      string          `gorm:"size:36;uniqueIndex;not null" json:"reference"`
	UserID         uint            `gorm:"index:idx_wallet_tx_user_type;not null" json:"user_id"`
	Type           string          `gorm:"size:32;index:idx_wallet_tx_user_type;not null" json:"type"`
	Amount         decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"amount"`
	BalanceBefore  decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"balance_before"`
	BalanceAfter   decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"balance_after"`
	AchievementID  *uint           `gorm:"index" json:"achievement_id,omitempty"`
	UnlockRecordID *uint           `gorm:"uniqueIndex" json:"unlock_record_id,omitempty"`
	Note           string          `gorm:"size:255" json:"note"`
	CreatedAt      time.Time       `json:"created_at"`
}
