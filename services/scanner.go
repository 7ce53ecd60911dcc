package services

import (
	"context"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/cppla/marketcore/events"
	"github.com/cppla/marketcore/models"
	"github.com/cppla/marketcore/utils"
)

var (
	buyerMetrics  = []models.MetricKind{models.MetricCompletedOrderCount, models.MetricTotalSpent}
	sellerMetrics = []models.MetricKind{models.MetricCompletedSaleCount, models.MetricTotalSalesVolume}
)

// subject is one user whose achievements an event may affect.
type subject struct {
	userID  uint
	metrics []models.MetricKind
}

func subjectsOf(ev events.Event) []subject {
	var out []subject
	add := func(userID uint, metrics ...models.MetricKind) {
		if userID != 0 {
			out = append(out, subject{userID: userID, metrics: metrics})
		}
	}
	switch ev.Kind {
	case events.OrderCompleted:
		add(ev.UserID, buyerMetrics...)
		add(ev.CounterpartyID, sellerMetrics...)
	case events.MessageSent:
		add(ev.UserID, models.MetricDistinctCounterparties)
	case events.ReviewPosted:
		add(ev.UserID, models.MetricReviewsWritten)
		add(ev.CounterpartyID, models.MetricReviewsReceived)
	case events.UserLogin:
		add(ev.UserID, models.MetricLoginDays)
	case events.WalletDeposit:
		add(ev.UserID, models.MetricTotalWalletDeposits)
	case events.UserRescan:
		add(ev.UserID, AllMetricKinds()...)
	}
	return out
}

// ScanFailure records why one candidate achievement was not processed.
type ScanFailure struct {
	AchievementID uint   `json:"achievement_id"`
	Slug          string `json:"slug"`
	Error         string `json:"error"`
	err           error
}

// Err returns the underlying error.
func (f ScanFailure) Err() error { return f.err }

// ScanResult summarises one user scan.
type ScanResult struct {
	UserID    uint            `json:"user_id"`
	Evaluated int             `json:"evaluated"`
	Unlocked  []UnlockOutcome `json:"unlocked"`
	Failures  []ScanFailure   `json:"failures,omitempty"`
}

// Scanner turns domain events into evaluate -> unlock -> credit runs.
type Scanner struct {
	engine *Engine
	log    *zap.Logger
}

// NewScanner creates a scanner driving engine.
func NewScanner(engine *Engine, log *zap.Logger) *Scanner {
	if log == nil {
		log = zap.NewNop()
	}
	return &Scanner{engine: engine, log: log}
}

// Register subscribes the scanner to every marketplace event kind.
func (s *Scanner) Register(bus *events.Bus) {
	for _, k := range []events.Kind{
		events.OrderCompleted,
		events.MessageSent,
		events.ReviewPosted,
		events.UserLogin,
		events.WalletDeposit,
		events.UserRescan,
	} {
		bus.Subscribe(k, s.Handle)
	}
}

// Handle scans every user the event touches. Per-achievement failures are
// logged and left for the next qualifying event.
func (s *Scanner) Handle(ctx context.Context, ev events.Event) error {
	start := time.Now()
	defer func() { utils.ObserveScan(string(ev.Kind), time.Since(start)) }()

	for _, subj := range subjectsOf(ev) {
		res, err := s.ScanUser(ctx, subj.userID, subj.metrics)
		if err != nil {
			return err
		}
		for _, f := range res.Failures {
			s.log.Warn("achievement scan failure",
				zap.String("event_id", ev.ID),
				zap.Uint("user_id", subj.userID),
				zap.Uint("achievement_id", f.AchievementID),
				zap.String("slug", f.Slug),
				zap.Error(f.err))
		}
	}
	return nil
}

// ScanUser evaluates every active achievement measured by one of metrics and
// unlocks those newly met. Lower tiers are re-evaluated as well so a backfill
// can unlock several tiers at once.
func (s *Scanner) ScanUser(ctx context.Context, userID uint, metrics []models.MetricKind) (*ScanResult, error) {
	list, err := s.engine.store.ListAchievements(ctx, AchievementQuery{Metrics: metrics, ActiveOnly: true})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(list, func(i, j int) bool {
		if list[i].Group != list[j].Group {
			return list[i].Group < list[j].Group
		}
		return list[i].Tier.Rank() < list[j].Tier.Rank()
	})

	res := &ScanResult{UserID: userID, Unlocked: []UnlockOutcome{}}
	fail := func(a *models.Achievement, err error) {
		res.Failures = append(res.Failures, ScanFailure{AchievementID: a.ID, Slug: a.Slug, Error: err.Error(), err: err})
	}
	for i := range list {
		a := &list[i]
		unlocked, err := s.engine.IsUnlockedBy(ctx, userID, a.ID)
		if err != nil {
			fail(a, err)
			continue
		}
		if unlocked {
			continue
		}
		snap, err := s.engine.Evaluate(ctx, userID, a)
		res.Evaluated++
		if err != nil {
			utils.ObserveEvalError(a.Requirement().Metric)
			fail(a, err)
			continue
		}
		if !snap.Met {
			continue
		}
		out, err := s.engine.Unlock(ctx, userID, a, snap)
		if err != nil {
			fail(a, err)
			continue
		}
		if out.Created {
			res.Unlocked = append(res.Unlocked, *out)
		}
	}
	return res, nil
}
