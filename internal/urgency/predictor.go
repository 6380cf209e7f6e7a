package urgency

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"expirywatch/internal/expiry"
)

// Predictor supplies a 0..100 urgency estimate for an item. It may fail.
type Predictor interface {
	Predict(ctx context.Context, it expiry.Item) (float64, error)
}

// PredictorFunc adapts a function to Predictor.
type PredictorFunc func(ctx context.Context, it expiry.Item) (float64, error)

func (f PredictorFunc) Predict(ctx context.Context, it expiry.Item) (float64, error) {
	return f(ctx, it)
}

var (
	ErrPredictionOutOfRange = errors.New("urgency: prediction out of range")
	ErrNoPredictor          = errors.New("urgency: no predictor configured")
)

// PredictorError describes why a predictive estimate was discarded.
// It never leaves the scoring path; callers only log and count it.
type PredictorError struct {
	ItemID int64
	Err    error
}

func (e *PredictorError) Error() string {
	return fmt.Sprintf("predictor (item %d): %v", e.ItemID, e.Err)
}

func (e *PredictorError) Unwrap() error { return e.Err }

// Consult asks p for an estimate bounded by timeout. Failures, timeouts and
// invalid values all yield Absent together with a *PredictorError describing why.
func Consult(ctx context.Context, p Predictor, it expiry.Item, timeout time.Duration) (Prediction, error) {
	if p == nil {
		return Absent, nil
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	type result struct {
		v   float64
		err error
	}
	ch := make(chan result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- result{err: fmt.Errorf("panic: %v", r)}
			}
		}()
		v, err := p.Predict(ctx, it)
		ch <- result{v: v, err: err}
	}()

	var r result
	select {
	case r = <-ch:
	case <-ctx.Done():
		r = result{err: ctx.Err()}
	}
	if r.err != nil {
		return Absent, &PredictorError{ItemID: it.ID, Err: r.err}
	}
	if math.IsNaN(r.v) || math.IsInf(r.v, 0) || r.v < MinScore || r.v > MaxScore {
		return Absent, &PredictorError{ItemID: it.ID, Err: fmt.Errorf("%w: %v", ErrPredictionOutOfRange, r.v)}
	}
	return Predicted(r.v), nil
}
