package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"golang.org/x/sync/errgroup"

	"expirywatch/internal/compose"
	"expirywatch/internal/expiry"
	"expirywatch/internal/ledger"
	"expirywatch/internal/tracker"
	"expirywatch/internal/urgency"
	logx "expirywatch/pkg/logx"
)

// ErrNoStatistics is returned by MonthlyReport when the store cannot
// summarize itself.
var ErrNoStatistics = errors.New("dispatch: tracker store has no statistics")

// Config tunes a Runner.
type Config struct {
	WindowDays           int
	IncludeOverdue       bool
	ItemConcurrency      int
	RespectItemThreshold bool
	PredictorTimeout     time.Duration
	Location             *time.Location
	Policy               urgency.Policy
}

func DefaultConfig() Config {
	return Config{
		WindowDays:           expiry.PlannedWithinDays,
		IncludeOverdue:       true,
		ItemConcurrency:      4,
		RespectItemThreshold: true,
		PredictorTimeout:     2 * time.Second,
		Location:             time.UTC,
		Policy:               urgency.DefaultPolicy(),
	}
}

// Deps are the collaborators of a Runner. Predictor and Metrics are optional.
type Deps struct {
	Store     tracker.Store
	Router    *Router
	Predictor urgency.Predictor
	Metrics   *Metrics
	Log       logx.Logger
}

// Runner executes dispatch cycles. A Runner is safe for concurrent use;
// overlapping cycles are serialized per ledger key by the Router.
type Runner struct {
	cfg  Config
	deps Deps
	log  logx.Logger
	now  func() time.Time
}

func NewRunner(cfg Config, d Deps) *Runner {
	if cfg.ItemConcurrency <= 0 {
		cfg.ItemConcurrency = 1
	}
	if cfg.WindowDays <= 0 {
		cfg.WindowDays = expiry.PlannedWithinDays
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.Policy == (urgency.Policy{}) {
		cfg.Policy = urgency.DefaultPolicy()
	}
	log := d.Log
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Runner{cfg: cfg, deps: d, log: log, now: time.Now}
}

// Channels returns the router's channel names, or nil without a router.
func (r *Runner) Channels() []string {
	if r.deps.Router == nil {
		return nil
	}
	return r.deps.Router.Channels()
}

// RunCycle processes every active item due for alerting. Only a tracker
// read failure fails the cycle; per-item problems are reported in the
// BatchReport.
func (r *Runner) RunCycle(ctx context.Context) (BatchReport, error) {
	start := r.now()
	rep := BatchReport{
		CycleID:   ulid.Make().String(),
		StartedAt: start,
		Day:       expiry.DayString(start, r.cfg.Location),
		Items:     []ItemResult{},
	}
	log := r.log.With(logx.String("cycle_id", rep.CycleID))

	items, err := r.fetch(ctx)
	if err != nil {
		r.deps.Metrics.cycle("error", time.Since(start).Seconds())
		log.Error("cycle aborted", logx.Err(err))
		return rep, err
	}
	log.Debug("cycle started", logx.Int("items", len(items)), logx.String("day", rep.Day))

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	g.SetLimit(r.cfg.ItemConcurrency)
	for _, it := range items {
		g.Go(func() error {
			res := r.process(ctx, it, start, rep.Day)
			mu.Lock()
			rep.add(res)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	rep.FinishedAt = r.now()
	result := "ok"
	if rep.Counts.Failed > 0 || rep.Counts.DataErrors > 0 || rep.Counts.LedgerErrors > 0 {
		result = "partial"
	}
	r.deps.Metrics.cycle(result, time.Since(start).Seconds())
	log.Info("cycle finished",
		logx.Int("items", rep.Counts.Items),
		logx.Int("dispatched", rep.Counts.Dispatched),
		logx.Int("suppressed", rep.Counts.Suppressed),
		logx.Int("delivered", rep.Counts.Delivered),
		logx.Int("failed", rep.Counts.Failed),
		logx.Int("data_errors", rep.Counts.DataErrors),
		logx.Int("ledger_errors", rep.Counts.LedgerErrors),
	)
	return rep, nil
}

func (r *Runner) fetch(ctx context.Context) ([]expiry.Item, error) {
	if r.deps.Store == nil {
		return nil, errors.New("dispatch: no tracker store")
	}
	up, err := r.deps.Store.GetUpcoming(ctx, r.cfg.WindowDays)
	if err != nil {
		return nil, fmt.Errorf("tracker upcoming: %w", err)
	}
	lists := [][]expiry.Item{up}
	if r.cfg.IncludeOverdue {
		over, err := r.deps.Store.GetOverdue(ctx)
		if err != nil {
			return nil, fmt.Errorf("tracker overdue: %w", err)
		}
		lists = append(lists, over)
	}

	var out []expiry.Item
	for _, it := range tracker.Merge(lists...) {
		if it.Active() {
			out = append(out, it)
		}
	}
	return out, nil
}

func (r *Runner) process(ctx context.Context, it expiry.Item, now time.Time, day string) ItemResult {
	res := ItemResult{ItemID: it.ID, Title: it.Title}
	log := r.log.With(logx.Int64("item_id", it.ID))

	a, err := r.classify(ctx, it, now)
	if err != nil {
		log.Warn("item skipped", logx.Err(err))
		r.deps.Metrics.itemError(ErrorKindData)
		res.Status, res.ErrorKind, res.Error = StatusError, ErrorKindData, err.Error()
		return res
	}
	days := a.DaysLeft
	res.Tier, res.Score, res.DaysLeft = a.Tier.String(), a.Score, &days
	r.deps.Metrics.item(res.Tier)

	if r.cfg.RespectItemThreshold && a.DaysLeft > it.AlertThreshold() {
		res.Status = StatusSuppressed
		return res
	}
	if r.deps.Router == nil {
		res.Status = StatusUpToDate
		return res
	}

	key := ledger.Key{ItemID: it.ID, Tier: a.Tier, Day: day}
	out, err := r.deps.Router.Dispatch(ctx, key, compose.Compose(it, a))
	res.Outcomes, res.Skipped = out.Outcomes, out.Skipped
	if err != nil {
		log.Error("ledger failure", logx.Err(err))
		r.deps.Metrics.itemError(ErrorKindLedger)
		res.Status, res.ErrorKind, res.Error = StatusError, ErrorKindLedger, err.Error()
		return res
	}
	res.Status = StatusDispatched
	if len(out.Outcomes) == 0 {
		res.Status = StatusUpToDate
	}
	return res
}

// classify scores it by rule first and consults the predictor only when
// its estimate can change the score.
func (r *Runner) classify(ctx context.Context, it expiry.Item, now time.Time) (urgency.Assessment, error) {
	a, err := r.cfg.Policy.Classify(it, now, r.cfg.Location, urgency.Absent)
	if err != nil {
		return a, err
	}
	if r.deps.Predictor == nil || a.Tier == expiry.TierCritical || r.cfg.Policy.PredictiveWeight <= 0 {
		return a, nil
	}
	pred, perr := urgency.Consult(ctx, r.deps.Predictor, it, r.cfg.PredictorTimeout)
	if perr != nil {
		r.log.Debug("predictor unavailable, using rule score", logx.Int64("item_id", it.ID), logx.Err(perr))
		r.deps.Metrics.fallback()
		return a, nil
	}
	return r.cfg.Policy.Classify(it, now, r.cfg.Location, pred)
}

// WeeklySummary broadcasts the weekly summary of upcoming items.
func (r *Runner) WeeklySummary(ctx context.Context) (Result, error) {
	items, err := r.fetch(ctx)
	if err != nil {
		return Result{}, err
	}
	return r.broadcast(ctx, compose.WeeklySummary(items, r.now(), r.cfg.Location))
}

// MonthlyReport broadcasts per-category counts.
func (r *Runner) MonthlyReport(ctx context.Context) (Result, error) {
	src, ok := r.deps.Store.(tracker.StatsSource)
	if !ok {
		return Result{}, ErrNoStatistics
	}
	st, err := src.Statistics(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("tracker statistics: %w", err)
	}
	return r.broadcast(ctx, compose.MonthlyReport(st.ByCategory, r.now(), r.cfg.Location))
}

func (r *Runner) broadcast(ctx context.Context, a compose.Alert) (Result, error) {
	if r.deps.Router == nil {
		return Result{}, errors.New("dispatch: no router")
	}
	return r.deps.Router.Broadcast(ctx, a), nil
}
