// Package urgency turns an item and the current time into a tier and score.
//
// Classification is pure: it performs no I/O, and the same inputs always
// produce the same Assessment. Predictive input is consulted separately
// (see Consult) and passed in as an optional value.
package urgency

import (
	"errors"
	"fmt"
	"math"
	"time"

	"expirywatch/internal/expiry"
)

const (
	MinScore = 0.0
	MaxScore = 100.0

	DefaultRuleWeight       = 0.5
	DefaultPredictiveWeight = 0.5
)

// Policy holds the tunable blend weights.
type Policy struct {
	RuleWeight       float64
	PredictiveWeight float64
}

func DefaultPolicy() Policy {
	return Policy{RuleWeight: DefaultRuleWeight, PredictiveWeight: DefaultPredictiveWeight}
}

// Validate checks that the weights are non-negative and sum to 1.
func (p Policy) Validate() error {
	if p.RuleWeight < 0 || p.PredictiveWeight < 0 {
		return errors.New("urgency: weights must be >= 0")
	}
	if math.Abs(p.RuleWeight+p.PredictiveWeight-1) > 1e-9 {
		return fmt.Errorf("urgency: weights must sum to 1 (got %.3f)", p.RuleWeight+p.PredictiveWeight)
	}
	return nil
}

// Assessment is the outcome of classifying one item.
type Assessment struct {
	Tier     expiry.Tier `json:"tier"`
	Score    float64     `json:"score"`
	DaysLeft int         `json:"days_left"`
	// Blended reports whether a predictive estimate contributed to Score.
	Blended bool `json:"blended"`
}

// Prediction is an optional predictive estimate. The zero value is absent.
type Prediction struct {
	Value float64
	OK    bool
}

func Predicted(v float64) Prediction { return Prediction{Value: v, OK: true} }

// Absent is the empty prediction.
var Absent = Prediction{}

// Usable reports whether the prediction is present, finite and within [0,100].
func (p Prediction) Usable() bool {
	return p.OK && !math.IsNaN(p.Value) && !math.IsInf(p.Value, 0) && p.Value >= MinScore && p.Value <= MaxScore
}

// RuleScore is max(0, min(100, 100 - days_left)).
func RuleScore(daysLeft int) float64 {
	return clamp(MaxScore - float64(daysLeft))
}

// Classify computes the tier and score for it as seen from now in loc.
//
// The tier depends on days left only. Expired items keep the rule score so
// that the predictive signal cannot pull them below 100.
func (p Policy) Classify(it expiry.Item, now time.Time, loc *time.Location, pred Prediction) (Assessment, error) {
	days, err := expiry.DaysLeft(it, now, loc)
	if err != nil {
		return Assessment{}, err
	}
	a := Assessment{
		Tier:     expiry.TierFor(days),
		Score:    RuleScore(days),
		DaysLeft: days,
	}
	if days > 0 && pred.Usable() && p.PredictiveWeight > 0 {
		a.Score = clamp(p.RuleWeight*a.Score + p.PredictiveWeight*pred.Value)
		a.Blended = true
	}
	return a, nil
}

// Classify uses the default policy.
func Classify(it expiry.Item, now time.Time, loc *time.Location, pred Prediction) (Assessment, error) {
	return DefaultPolicy().Classify(it, now, loc, pred)
}

func clamp(v float64) float64 {
	return math.Max(MinScore, math.Min(MaxScore, v))
}
