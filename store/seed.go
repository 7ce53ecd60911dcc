package store

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"

	"github.com/cppla/marketcore/models"
	"github.com/cppla/marketcore/services"
)

type tierStep struct {
	tier      models.Tier
	threshold int64
	reward    string
}

type family struct {
	group       string
	category    string
	title       string
	description string
	metric      models.MetricKind
	filters     map[string]string
	steps       []tierStep
}

var defaultFamilies = []family{
	{
		group: "total-buyer", category: "buyer", title: "Buyer",
		description: "Complete %s purchases.",
		metric:      models.MetricCompletedOrderCount,
		steps: []tierStep{
			{models.TierCopper, 1, "0.50"},
			{models.TierBronze, 10, "1.00"},
			{models.TierSilver, 50, "5.00"},
			{models.TierGold, 250, "20.00"},
			{models.TierEmerald, 1000, "100.00"},
		},
	},
	{
		group: "big-spender", category: "buyer", title: "Big Spender",
		description: "Spend %s in completed orders.",
		metric:      models.MetricTotalSpent,
		steps: []tierStep{
			{models.TierCopper, 100, "1.00"},
			{models.TierSilver, 1000, "10.00"},
			{models.TierEmerald, 10000, "100.00"},
		},
	},
	{
		group: "total-seller", category: "seller", title: "Seller",
		description: "Complete %s sales.",
		metric:      models.MetricCompletedSaleCount,
		steps: []tierStep{
			{models.TierCopper, 1, "0.50"},
			{models.TierBronze, 10, "1.00"},
			{models.TierSilver, 50, "5.00"},
			{models.TierGold, 250, "20.00"},
			{models.TierEmerald, 1000, "100.00"},
		},
	},
	{
		group: "trusted-seller", category: "seller", title: "Trusted Seller",
		description: "Receive %s reviews rated 4 or higher.",
		metric:      models.MetricReviewsReceived,
		filters:     map[string]string{services.FilterMinRating: "4"},
		steps: []tierStep{
			{models.TierBronze, 5, "1.00"},
			{models.TierGold, 100, "25.00"},
		},
	},
	{
		group: "social", category: "social", title: "Networker",
		description: "Message %s different users.",
		metric:      models.MetricDistinctCounterparties,
		steps: []tierStep{
			{models.TierCopper, 1, "0"},
			{models.TierSilver, 25, "2.00"},
			{models.TierGold, 100, "5.00"},
		},
	},
	{
		group: "critic", category: "social", title: "Critic",
		description: "Write %s reviews.",
		metric:      models.MetricReviewsWritten,
		steps: []tierStep{
			{models.TierCopper, 1, "0.10"},
			{models.TierSilver, 25, "2.00"},
		},
	},
	{
		group: "loyalty", category: "loyalty", title: "Regular",
		description: "Log in on %s different days.",
		metric:      models.MetricLoginDays,
		steps: []tierStep{
			{models.TierCopper, 7, "0.50"},
			{models.TierSilver, 30, "2.00"},
			{models.TierGold, 180, "10.00"},
			{models.TierEmerald, 365, "25.00"},
		},
	},
	{
		group: "depositor", category: "loyalty", title: "Depositor",
		description: "Deposit %s into your wallet.",
		metric:      models.MetricTotalWalletDeposits,
		steps: []tierStep{
			{models.TierBronze, 50, "0.50"},
			{models.TierGold, 1000, "10.00"},
		},
	},
}

// DefaultAchievements builds the built-in catalog.
func DefaultAchievements() []models.Achievement {
	var out []models.Achievement
	for _, f := range defaultFamilies {
		for _, s := range f.steps {
			out = append(out, models.Achievement{
				Slug:        fmt.Sprintf("%s-%s", f.group, s.tier),
				Name:        fmt.Sprintf("%s (%s)", f.title, s.tier),
				Description: fmt.Sprintf(f.description, decimal.NewFromInt(s.threshold).String()),
				Icon:        fmt.Sprintf("/static/achievements/%s-%s.svg", f.group, s.tier),
				Category:    f.category,
				Group:       f.group,
				Tier:        s.tier,
				Requirements: datatypes.NewJSONType(models.Requirement{
					Metric:    f.metric,
					Operator:  models.OpGTE,
					Threshold: decimal.NewFromInt(s.threshold),
					Filters:   f.filters,
				}),
				WalletReward: decimal.RequireFromString(s.reward),
				IsActive:     true,
			})
		}
	}
	return out
}

// SeedAchievements inserts every default achievement whose slug is missing and
// returns how many were created. Existing rows are left as the admins edited them.
func SeedAchievements(ctx context.Context, st services.Store) (int, error) {
	existing, err := st.ListAchievements(ctx, services.AchievementQuery{})
	if err != nil {
		return 0, err
	}
	slugs := make(map[string]struct{}, len(existing))
	for _, a := range existing {
		slugs[a.Slug] = struct{}{}
	}

	created := 0
	for _, a := range DefaultAchievements() {
		if _, ok := slugs[a.Slug]; ok {
			continue
		}
		a := a
		if err := st.SaveAchievement(ctx, &a); err != nil {
			return created, fmt.Errorf("seed %s: %w", a.Slug, err)
		}
		created++
	}
	return created, nil
}
