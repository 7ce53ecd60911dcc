package services

import (
	"fmt"
	"sort"

	"github.com/cppla/marketcore/models"
)

// CheckTierOrdering returns one message per adjacent tier pair whose threshold
// decreases as the tier rises, or whose metric differs from the rest of the group.
func CheckTierOrdering(group []models.Achievement) []string {
	byGroup := map[string][]models.Achievement{}
	for _, a := range group {
		byGroup[a.Group] = append(byGroup[a.Group], a)
	}
	names := make([]string, 0, len(byGroup))
	for g := range byGroup {
		names = append(names, g)
	}
	sort.Strings(names)

	var warnings []string
	for _, g := range names {
		list := byGroup[g]
		sort.SliceStable(list, func(i, j int) bool { return list[i].Tier.Rank() < list[j].Tier.Rank() })
		for i := 1; i < len(list); i++ {
			prev, cur := list[i-1].Requirement(), list[i].Requirement()
			if prev.Metric != cur.Metric {
				warnings = append(warnings, fmt.Sprintf("%s: %s measures %s but %s measures %s",
					g, list[i-1].Tier, prev.Metric, list[i].Tier, cur.Metric))
				continue
			}
			if cur.Threshold.LessThan(prev.Threshold) {
				warnings = append(warnings, fmt.Sprintf("%s: %s threshold %s is below %s threshold %s",
					g, list[i].Tier, cur.Threshold, list[i-1].Tier, prev.Threshold))
			}
		}
	}
	return warnings
}
