package models

import "github.com/shopspring/decimal"

// MetricKind names a per-user aggregate an achievement can be measured against.
type MetricKind string

const (
	MetricCompletedOrderCount    MetricKind = "completed_order_count"
	MetricTotalSpent             MetricKind = "total_spent"
	MetricCompletedSaleCount     MetricKind = "completed_sale_count"
	MetricTotalSalesVolume       MetricKind = "total_sales_volume"
	MetricTotalWalletDeposits    MetricKind = "total_wallet_deposits"
	MetricDistinctCounterparties MetricKind = "distinct_counterparties_messaged"
	MetricReviewsWritten         MetricKind = "reviews_written"
	MetricReviewsReceived        MetricKind = "reviews_received"
	MetricLoginDays              MetricKind = "login_days"
)

// Comparison operators accepted in a requirement descriptor.
const (
	OpGTE = ">="
	OpGT  = ">"
	OpEQ  = "=="
)

// Requirement is the declarative unlock criterion stored as JSON on an achievement.
type Requirement struct {
	Metric    MetricKind        `json:"metric"`
	Operator  string            `json:"operator,omitempty"`
	Threshold decimal.Decimal   `json:"threshold"`
	Filters   map[string]string `json:"filters,omitempty"`
}

// Op returns the comparison operator, defaulting to >=.
func (r Requirement) Op() string {
	if r.Operator == "" {
		return OpGTE
	}
	return r.Operator
}
