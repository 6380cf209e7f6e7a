package dispatch

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"expirywatch/internal/channel"
	"expirywatch/internal/compose"
	"expirywatch/internal/ledger"
	logx "expirywatch/pkg/logx"
)

// DefaultChannelTimeout bounds one delivery attempt when a target has none.
const DefaultChannelTimeout = 15 * time.Second

// commitTimeout bounds the ledger write after delivery. The write is
// detached from the caller's context so that deliveries that already
// happened are recorded even when the cycle is canceled.
const commitTimeout = 5 * time.Second

// Target is one enabled channel with its recipient.
type Target struct {
	Channel    channel.Channel
	Recipient  string
	Timeout    time.Duration
	RatePerSec float64 // 0 disables limiting
}

type target struct {
	Target
	limiter *rate.Limiter
}

// LedgerError reports a ledger read or commit failure for one key.
type LedgerError struct {
	Key ledger.Key
	Op  string
	Err error
}

func (e *LedgerError) Error() string {
	return fmt.Sprintf("ledger %s %s: %v", e.Op, e.Key, e.Err)
}

func (e *LedgerError) Unwrap() error { return e.Err }

// Result is the outcome of routing one alert.
type Result struct {
	// Outcomes of the channels attempted in this call, sorted by channel.
	Outcomes []channel.Outcome
	// Skipped channels already succeeded for the key.
	Skipped []string
	// Excluded channels were not attempted because of a configuration error.
	Excluded []string
}

// Router delivers alerts to a fixed set of targets.
type Router struct {
	targets []*target
	ledger  ledger.Ledger
	locks   *ledger.Locks
	metrics *Metrics
	log     logx.Logger
	now     func() time.Time
}

type RouterOption func(*Router)

func WithMetrics(m *Metrics) RouterOption    { return func(r *Router) { r.metrics = m } }
func WithLogger(l logx.Logger) RouterOption  { return func(r *Router) { r.log = l } }
func WithLocks(l *ledger.Locks) RouterOption { return func(r *Router) { r.locks = l } }

// NewRouter builds a router. Targets with duplicate channel names keep the
// first occurrence.
func NewRouter(targets []Target, l ledger.Ledger, opts ...RouterOption) *Router {
	r := &Router{ledger: l, log: logx.Nop(), now: time.Now}
	for _, o := range opts {
		o(r)
	}
	if r.locks == nil {
		r.locks = ledger.NewLocks()
	}
	if r.log.IsZero() {
		r.log = logx.Nop()
	}

	seen := map[string]bool{}
	for _, t := range targets {
		if t.Channel == nil {
			continue
		}
		name := t.Channel.Name()
		if seen[name] {
			r.log.Warn("duplicate channel ignored", logx.String("channel", name))
			continue
		}
		seen[name] = true
		if t.Timeout <= 0 {
			t.Timeout = DefaultChannelTimeout
		}
		tt := &target{Target: t}
		if t.RatePerSec > 0 {
			burst := int(t.RatePerSec)
			if burst < 1 {
				burst = 1
			}
			tt.limiter = rate.NewLimiter(rate.Limit(t.RatePerSec), burst)
		}
		r.targets = append(r.targets, tt)
	}
	return r
}

// Channels returns the configured channel names in configuration order.
func (r *Router) Channels() []string {
	out := make([]string, 0, len(r.targets))
	for _, t := range r.targets {
		out = append(out, t.Channel.Name())
	}
	return out
}

// Dispatch routes a to every target not yet delivered for key and appends
// the outcomes to the ledger. Reads and writes of one key are serialized.
//
// A ledger read failure returns a *LedgerError before any attempt. A commit
// failure returns the outcomes together with a *LedgerError. Canceling ctx
// ends pending attempts (kind "canceled") but not the commit.
func (r *Router) Dispatch(ctx context.Context, key ledger.Key, a compose.Alert) (Result, error) {
	unlock := r.locks.Lock(key)
	defer unlock()

	attempt, skip, err := ledger.Filter(ctx, r.ledger, key, r.Channels())
	if err != nil {
		return Result{}, &LedgerError{Key: key, Op: "read", Err: err}
	}
	for _, name := range skip {
		r.metrics.delivery(name, "skipped", -1)
	}

	res := r.deliver(ctx, r.pick(attempt), a)
	res.Skipped = skip
	if len(res.Outcomes) == 0 {
		return res, nil
	}
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), commitTimeout)
	defer cancel()
	if err := r.ledger.Commit(cctx, key, res.Outcomes); err != nil {
		return res, &LedgerError{Key: key, Op: "commit", Err: err}
	}
	return res, nil
}

// Broadcast delivers a to every target without consulting the ledger.
// It is used for summaries, which are not keyed by item.
func (r *Router) Broadcast(ctx context.Context, a compose.Alert) Result {
	return r.deliver(ctx, r.targets, a)
}

func (r *Router) pick(names []string) []*target {
	want := make(map[string]bool, len(names))
	for _, n := range names {
		want[n] = true
	}
	var out []*target
	for _, t := range r.targets {
		if want[t.Channel.Name()] {
			out = append(out, t)
		}
	}
	return out
}

type attemptResult struct {
	outcome  channel.Outcome
	excluded bool
}

// deliver attempts all targets concurrently and returns once each attempt
// has concluded.
func (r *Router) deliver(ctx context.Context, targets []*target, a compose.Alert) Result {
	results := make(chan attemptResult, len(targets))
	for _, t := range targets {
		go func(t *target) {
			results <- r.attempt(ctx, t, a)
		}(t)
	}

	var res Result
	for range targets {
		ar := <-results
		if ar.excluded {
			res.Excluded = append(res.Excluded, ar.outcome.Channel)
			continue
		}
		res.Outcomes = append(res.Outcomes, ar.outcome)
	}
	sort.Slice(res.Outcomes, func(i, j int) bool { return res.Outcomes[i].Channel < res.Outcomes[j].Channel })
	sort.Strings(res.Excluded)
	return res
}

func (r *Router) attempt(ctx context.Context, t *target, a compose.Alert) attemptResult {
	name := t.Channel.Name()
	log := r.log.With(logx.String("channel", name), logx.Int64("item_id", a.ItemID()))

	if err := r.check(t); err != nil {
		log.Warn("channel skipped", logx.Err(err))
		r.metrics.delivery(name, "excluded", -1)
		return attemptResult{outcome: channel.Outcome{Channel: name}, excluded: true}
	}

	actx, cancel := context.WithTimeout(ctx, t.Timeout)
	defer cancel()

	start := time.Now()
	err := r.call(actx, t, a)
	elapsed := time.Since(start)

	if channel.IsConfig(err) {
		log.Warn("channel skipped", logx.Err(err))
		r.metrics.delivery(name, "excluded", -1)
		return attemptResult{outcome: channel.Outcome{Channel: name}, excluded: true}
	}
	if err != nil {
		log.Warn("delivery failed", logx.Err(err), logx.Duration("elapsed", elapsed))
		r.metrics.delivery(name, "failed", elapsed.Seconds())
		return attemptResult{outcome: channel.Failed(name, r.now(), err)}
	}
	log.Debug("delivered", logx.Duration("elapsed", elapsed))
	r.metrics.delivery(name, "succeeded", elapsed.Seconds())
	return attemptResult{outcome: channel.Succeeded(name, r.now())}
}

func (r *Router) check(t *target) error {
	name := t.Channel.Name()
	if strings.TrimSpace(t.Recipient) == "" {
		return channel.NewConfigError(name, channel.ErrMissingRecipient)
	}
	if c, ok := t.Channel.(channel.Checker); ok {
		if err := c.Check(); err != nil {
			if !channel.IsConfig(err) {
				err = channel.NewConfigError(name, err)
			}
			return err
		}
	}
	return nil
}

// call runs Deliver in its own goroutine so an adapter that ignores ctx
// cannot hold the attempt past its deadline.
func (r *Router) call(ctx context.Context, t *target, a compose.Alert) error {
	name := t.Channel.Name()
	if t.limiter != nil {
		if err := t.limiter.Wait(ctx); err != nil {
			return channel.NewTransportError(name, channel.KindTimeout, fmt.Errorf("rate limit: %w", err))
		}
	}

	done := make(chan error, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				done <- &channel.TransportError{Channel: name, Kind: channel.KindUnknown, Err: fmt.Errorf("panic: %v", p)}
			}
		}()
		done <- t.Channel.Deliver(ctx, t.Recipient, a)
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return channel.NewTransportError(name, channel.KindTimeout, ctx.Err())
	}
}
