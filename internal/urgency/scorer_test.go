package urgency

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"expirywatch/internal/expiry"
)

var now = time.Date(2026, 10, 18, 14, 0, 0, 0, time.UTC)

func itemIn(days int) expiry.Item {
	return expiry.Item{
		ID:         1,
		Title:      "Passport",
		ExpiryDate: now.AddDate(0, 0, days).Format(expiry.DateLayout),
		Priority:   expiry.PriorityHigh,
	}
}

func TestClassifyBoundaries(t *testing.T) {
	cases := []struct {
		days  int
		tier  expiry.Tier
		score float64
	}{
		{-3, expiry.TierCritical, 100},
		{0, expiry.TierCritical, 100},
		{7, expiry.TierUrgent, 93},
		{8, expiry.TierPlanned, 92},
		{30, expiry.TierPlanned, 70},
		{31, expiry.TierMonitor, 69},
		{150, expiry.TierMonitor, 0},
	}
	for _, tc := range cases {
		a, err := Classify(itemIn(tc.days), now, time.UTC, Absent)
		if err != nil {
			t.Fatalf("days=%d: %v", tc.days, err)
		}
		if a.Tier != tc.tier || a.Score != tc.score || a.DaysLeft != tc.days {
			t.Fatalf("days=%d: got %+v want tier=%s score=%v", tc.days, a, tc.tier, tc.score)
		}
		if a.Blended {
			t.Fatalf("days=%d: absent prediction must not blend", tc.days)
		}
	}
}

func TestClassifyUrgentExample(t *testing.T) {
	a, err := Classify(itemIn(5), now, time.UTC, Absent)
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if a.Tier != expiry.TierUrgent || a.Score != 95 {
		t.Fatalf("got %+v", a)
	}
}

func TestClassifyBlends(t *testing.T) {
	a, err := Classify(itemIn(10), now, time.UTC, Predicted(50))
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	// 0.5*90 + 0.5*50
	if a.Score != 70 || !a.Blended || a.Tier != expiry.TierPlanned {
		t.Fatalf("got %+v", a)
	}
}

func TestClassifyExpiredIgnoresPrediction(t *testing.T) {
	for _, p := range []Prediction{Predicted(0), Predicted(40), Predicted(100), Absent} {
		a, err := Classify(itemIn(-3), now, time.UTC, p)
		if err != nil {
			t.Fatalf("Classify: %v", err)
		}
		if a.Tier != expiry.TierCritical || a.Score != 100 {
			t.Fatalf("pred=%+v: got %+v", p, a)
		}
	}
}

func TestClassifyInvalidPredictionFallsBack(t *testing.T) {
	for _, p := range []Prediction{
		{Value: math.NaN(), OK: true},
		{Value: math.Inf(1), OK: true},
		{Value: -1, OK: true},
		{Value: 100.5, OK: true},
		{Value: 80, OK: false},
	} {
		a, err := Classify(itemIn(20), now, time.UTC, p)
		if err != nil {
			t.Fatalf("Classify: %v", err)
		}
		if a.Score != RuleScore(20) || a.Blended {
			t.Fatalf("pred=%+v: got %+v", p, a)
		}
	}
}

func TestClassifyIsDeterministic(t *testing.T) {
	it := itemIn(12)
	a1, _ := Classify(it, now, time.UTC, Predicted(33))
	a2, _ := Classify(it, now, time.UTC, Predicted(33))
	if a1 != a2 {
		t.Fatalf("%+v != %+v", a1, a2)
	}
}

func TestClassifyInvalidDate(t *testing.T) {
	_, err := Classify(expiry.Item{ID: 4, ExpiryDate: "next week"}, now, time.UTC, Absent)
	var de *expiry.DataError
	if !errors.As(err, &de) {
		t.Fatalf("expected DataError, got %v", err)
	}
}

func TestRuleScoreMonotonic(t *testing.T) {
	prev := RuleScore(-200)
	for d := -199; d <= 200; d++ {
		s := RuleScore(d)
		if s > prev {
			t.Fatalf("score increased at %d: %v > %v", d, s, prev)
		}
		if s < 0 || s > 100 {
			t.Fatalf("score out of range at %d: %v", d, s)
		}
		prev = s
	}
}

func TestPolicyValidate(t *testing.T) {
	if err := DefaultPolicy().Validate(); err != nil {
		t.Fatalf("default policy: %v", err)
	}
	if err := (Policy{RuleWeight: 0.7, PredictiveWeight: 0.7}).Validate(); err == nil {
		t.Fatalf("expected sum error")
	}
	if err := (Policy{RuleWeight: 1.5, PredictiveWeight: -0.5}).Validate(); err == nil {
		t.Fatalf("expected negative weight error")
	}
	a, _ := Policy{RuleWeight: 1}.Classify(itemIn(10), now, time.UTC, Predicted(0))
	if a.Score != 90 || a.Blended {
		t.Fatalf("zero predictive weight must ignore prediction: %+v", a)
	}
}

func TestConsult(t *testing.T) {
	ctx := context.Background()
	it := itemIn(10)

	p, err := Consult(ctx, PredictorFunc(func(context.Context, expiry.Item) (float64, error) { return 42, nil }), it, time.Second)
	if err != nil || !p.Usable() || p.Value != 42 {
		t.Fatalf("ok: %+v %v", p, err)
	}

	p, err = Consult(ctx, PredictorFunc(func(context.Context, expiry.Item) (float64, error) {
		return 0, errors.New("model offline")
	}), it, time.Second)
	var pe *PredictorError
	if p.OK || !errors.As(err, &pe) {
		t.Fatalf("failure: %+v %v", p, err)
	}

	p, err = Consult(ctx, PredictorFunc(func(context.Context, expiry.Item) (float64, error) { return 140, nil }), it, time.Second)
	if p.OK || !errors.Is(err, ErrPredictionOutOfRange) {
		t.Fatalf("out of range: %+v %v", p, err)
	}

	p, err = Consult(ctx, PredictorFunc(func(context.Context, expiry.Item) (float64, error) { panic("bad model") }), it, time.Second)
	if p.OK || err == nil {
		t.Fatalf("panic: %+v %v", p, err)
	}

	p, err = Consult(ctx, nil, it, time.Second)
	if p.OK || err != nil {
		t.Fatalf("nil predictor: %+v %v", p, err)
	}
}

func TestConsultTimeout(t *testing.T) {
	block := make(chan struct{})
	defer close(block)
	slow := PredictorFunc(func(ctx context.Context, _ expiry.Item) (float64, error) {
		<-block
		return 90, nil
	})

	start := time.Now()
	p, err := Consult(context.Background(), slow, itemIn(3), 20*time.Millisecond)
	if p.OK || !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline, got %+v %v", p, err)
	}
	if time.Since(start) > time.Second {
		t.Fatalf("Consult blocked on a stuck predictor")
	}
}
