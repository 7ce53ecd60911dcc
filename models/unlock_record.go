package models

import "time"

// UnlockRecord marks that a user unlocked an achievement. One row per (user, achievement), never removed.
type UnlockRecord struct {
	ID             uint         `gorm:"primaryKey" json:"id"`
	UserID         uint         `gorm:"uniqueIndex:idx_unlock_user_achievement;not null" json:"user_id"`
	AchievementID  uint         `gorm:"uniqueIndex:idx_unlock_user_achievement;index;not null" json:"achievement_id"`
	UnlockedAt     time.Time    `gorm:"not null" json:"unlocked_at"`
	RewardCredited bool         `gorm:"not null;default:false" json:"reward_credited"`
	CreditedAt     *time.Time   `json:"credited_at,omitempty"`
	Achievement    *Achievement `gorm:"constraint:OnUpdate:CASCADE,OnDelete:RESTRICT;" json:"achievement,omitempty"` // set by list queries only
}
