package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// Tier is the ordered rank of an achievement inside its group.
type Tier string

const (
	TierCopper  Tier = "copper"
	TierBronze  Tier = "bronze"
	TierSilver  Tier = "silver"
	TierGold    Tier = "gold"
	TierEmerald Tier = "emerald"
)

var tierRanks = map[Tier]int{
	TierCopper:  1,
	TierBronze:  2,
	TierSilver:  3,
	TierGold:    4,
	TierEmerald: 5,
}

// Rank returns the position of the tier in copper < bronze < silver < gold < emerald, 0 when unknown.
func (t Tier) Rank() int {
	return tierRanks[t]
}

// Valid reports whether t is one of the known tiers.
func (t Tier) Valid() bool {
	_, ok := tierRanks[t]
	return ok
}

// Achievement is a static, admin-managed goal definition.
type Achievement struct {
	ID           uint                            `gorm:"primaryKey" json:"id"`
	Slug         string                          `gorm:"size:96;uniqueIndex;not null" json:"slug"`
	Name         string                          `gorm:"size:128;not null" json:"name"`
	Description  string                          `gorm:"type:text" json:"description"`
	Icon         string                          `gorm:"size:255" json:"icon"`
	Category     string                          `gorm:"size:32;index;not null" json:"category"`
	Group        string                          `gorm:"column:achievement_group;size:64;index;not null" json:"achievement_group"`
	Tier         Tier                            `gorm:"size:16;not null" json:"tier"`
	Requirements datatypes.JSONType[Requirement] `gorm:"not null" json:"requirements"`
	WalletReward decimal.Decimal                 `gorm:"type:decimal(20,2);not null;default:0" json:"wallet_reward"`
	IsActive     bool                            `gorm:"not null;index" json:"is_active"`
	CreatedAt    time.Time                       `json:"created_at"`
	UpdatedAt    time.Time                       `json:"updated_at"`
}

// Requirement returns the decoded requirement descriptor.
func (a *Achievement) Requirement() Requirement {
	return a.Requirements.Data()
}
