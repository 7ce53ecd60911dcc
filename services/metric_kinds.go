package services

import (
	"context"
	"fmt"
	"sort"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/cppla/marketcore/models"
)

// Filter keys accepted in requirement descriptors.
const (
	FilterStatus        = "status"
	FilterPaymentStatus = "payment_status"
	FilterCategory      = "category"
	FilterMinRating     = "min_rating"
)

type metricFunc func(ctx context.Context, src MetricSource, userID uint, filters map[string]string) (decimal.Decimal, error)

type metricDef struct {
	filters []string
	eval    metricFunc
}

var orderFilters = []string{FilterStatus, FilterPaymentStatus, FilterCategory}

// metricTable resolves each MetricKind to its aggregate. Adding a metric means adding a row here.
var metricTable = map[models.MetricKind]metricDef{
	models.MetricCompletedOrderCount: {
		filters: orderFilters,
		eval: func(ctx context.Context, src MetricSource, userID uint, f map[string]string) (decimal.Decimal, error) {
			q := orderQuery(f)
			q.BuyerID = userID
			n, err := src.CountOrders(ctx, q)
			return decimal.NewFromInt(n), err
		},
	},
	models.MetricTotalSpent: {
		filters: orderFilters,
		eval: func(ctx context.Context, src MetricSource, userID uint, f map[string]string) (decimal.Decimal, error) {
			q := orderQuery(f)
			q.BuyerID = userID
			return src.SumOrders(ctx, q)
		},
	},
	models.MetricCompletedSaleCount: {
		filters: orderFilters,
		eval: func(ctx context.Context, src MetricSource, userID uint, f map[string]string) (decimal.Decimal, error) {
			q := orderQuery(f)
			q.SellerID = userID
			n, err := src.CountOrders(ctx, q)
			return decimal.NewFromInt(n), err
		},
	},
	models.MetricTotalSalesVolume: {
		filters: orderFilters,
		eval: func(ctx context.Context, src MetricSource, userID uint, f map[string]string) (decimal.Decimal, error) {
			q := orderQuery(f)
			q.SellerID = userID
			return src.SumOrders(ctx, q)
		},
	},
	models.MetricTotalWalletDeposits: {
		eval: func(ctx context.Context, src MetricSource, userID uint, _ map[string]string) (decimal.Decimal, error) {
			return src.SumWalletTransactions(ctx, userID, models.WalletTxDeposit)
		},
	},
	models.MetricDistinctCounterparties: {
		eval: func(ctx context.Context, src MetricSource, userID uint, _ map[string]string) (decimal.Decimal, error) {
			n, err := src.CountMessagedCounterparties(ctx, userID)
			return decimal.NewFromInt(n), err
		},
	},
	models.MetricReviewsWritten: {
		filters: []string{FilterMinRating},
		eval: func(ctx context.Context, src MetricSource, userID uint, f map[string]string) (decimal.Decimal, error) {
			n, err := src.CountReviews(ctx, ReviewQuery{AuthorID: userID, MinRating: minRating(f)})
			return decimal.NewFromInt(n), err
		},
	},
	models.MetricReviewsReceived: {
		filters: []string{FilterMinRating},
		eval: func(ctx context.Context, src MetricSource, userID uint, f map[string]string) (decimal.Decimal, error) {
			n, err := src.CountReviews(ctx, ReviewQuery{SellerID: userID, MinRating: minRating(f)})
			return decimal.NewFromInt(n), err
		},
	},
	models.MetricLoginDays: {
		eval: func(ctx context.Context, src MetricSource, userID uint, _ map[string]string) (decimal.Decimal, error) {
			n, err := src.CountLoginDays(ctx, userID)
			return decimal.NewFromInt(n), err
		},
	},
}

// AllMetricKinds lists every metric the evaluator understands, sorted.
func AllMetricKinds() []models.MetricKind {
	kinds := make([]models.MetricKind, 0, len(metricTable))
	for k := range metricTable {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

// ValidateRequirement checks a descriptor without touching storage.
func ValidateRequirement(r models.Requirement) error {
	def, ok := metricTable[r.Metric]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownMetric, r.Metric)
	}
	switch r.Op() {
	case models.OpGTE, models.OpGT, models.OpEQ:
	default:
		return fmt.Errorf("%w: operator %q", ErrInvalidRequirement, r.Operator)
	}
	for key, val := range r.Filters {
		if !contains(def.filters, key) {
			return fmt.Errorf("%w: filter %q not supported by %s", ErrInvalidRequirement, key, r.Metric)
		}
		if key == FilterMinRating {
			if n, err := strconv.Atoi(val); err != nil || n < 1 || n > 5 {
				return fmt.Errorf("%w: min_rating %q", ErrInvalidRequirement, val)
			}
		}
	}
	return nil
}

func orderQuery(f map[string]string) OrderQuery {
	q := OrderQuery{Status: models.OrderStatusCompleted}
	if v := f[FilterStatus]; v != "" {
		q.Status = v
	}
	q.PaymentStatus = f[FilterPaymentStatus]
	q.Category = f[FilterCategory]
	return q
}

func minRating(f map[string]string) int {
	n, _ := strconv.Atoi(f[FilterMinRating])
	return n
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
