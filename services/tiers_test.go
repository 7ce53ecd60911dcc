package services

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"gorm.io/datatypes"

	"github.com/cppla/marketcore/models"
)

func tiered(group string, tier models.Tier, metric models.MetricKind, threshold int64) models.Achievement {
	return models.Achievement{
		Group: group,
		Tier:  tier,
		Requirements: datatypes.NewJSONType(models.Requirement{
			Metric:    metric,
			Threshold: decimal.NewFromInt(threshold),
		}),
	}
}

func TestCheckTierOrderingMonotonic(t *testing.T) {
	list := []models.Achievement{
		tiered("total-buyer", models.TierSilver, models.MetricCompletedOrderCount, 50),
		tiered("total-buyer", models.TierCopper, models.MetricCompletedOrderCount, 1),
		tiered("total-buyer", models.TierBronze, models.MetricCompletedOrderCount, 10),
	}
	assert.Empty(t, CheckTierOrdering(list))
}

func TestCheckTierOrderingFlagsInversion(t *testing.T) {
	list := []models.Achievement{
		tiered("total-seller", models.TierCopper, models.MetricCompletedSaleCount, 10),
		tiered("total-seller", models.TierGold, models.MetricCompletedSaleCount, 5),
	}
	warnings := CheckTierOrdering(list)
	if assert.Len(t, warnings, 1) {
		assert.Contains(t, warnings[0], "total-seller")
		assert.Contains(t, warnings[0], "gold")
	}
}

func TestCheckTierOrderingFlagsMixedMetrics(t *testing.T) {
	list := []models.Achievement{
		tiered("social", models.TierCopper, models.MetricDistinctCounterparties, 1),
		tiered("social", models.TierSilver, models.MetricReviewsWritten, 10),
	}
	assert.Len(t, CheckTierOrdering(list), 1)
}
