package config

import (
	"strings"
	"time"
)

const (
	DefaultWindowDays      = 30
	DefaultItemConcurrency = 4
	DefaultChannelTimeout  = 15 * time.Second
	DefaultPredictTimeout  = 2 * time.Second
	DefaultScheduleSpec    = "0 8 * * *"
	DefaultWeeklySpec      = "0 9 * * 1"
	DefaultMonthlySpec     = "0 9 1 * *"
	DefaultHTTPAddr        = ":9464"
	DefaultWeight          = 0.5
)

func (t TrackerConfig) Window() int {
	if t.WindowDays > 0 {
		return t.WindowDays
	}
	return DefaultWindowDays
}

func (t TrackerConfig) Overdue() bool { return t.IncludeOverdue == nil || *t.IncludeOverdue }

// Weights returns the effective rule and predictive weights.
func (s ScoringConfig) Weights() (rule, predictive float64) {
	switch {
	case s.RuleWeight != nil && s.PredictiveWeight != nil:
		return *s.RuleWeight, *s.PredictiveWeight
	case s.RuleWeight != nil:
		return *s.RuleWeight, 1 - *s.RuleWeight
	case s.PredictiveWeight != nil:
		return 1 - *s.PredictiveWeight, *s.PredictiveWeight
	default:
		return DefaultWeight, DefaultWeight
	}
}

func (d DispatchConfig) Concurrency() int {
	if d.ItemConcurrency > 0 {
		return d.ItemConcurrency
	}
	return DefaultItemConcurrency
}

func (d DispatchConfig) RespectThreshold() bool {
	return d.RespectItemThreshold == nil || *d.RespectItemThreshold
}

func (s ScheduleConfig) DailyOrDefault() string  { return orDefault(s.Spec, DefaultScheduleSpec) }
func (s ScheduleConfig) WeeklyOrDefault() string { return orDefault(s.WeeklySpec, DefaultWeeklySpec) }
func (s ScheduleConfig) MonthlyOrDefault() string {
	return orDefault(s.MonthlySpec, DefaultMonthlySpec)
}

// Zone returns the schedule timezone, falling back to fallback.
func (s ScheduleConfig) Zone(fallback string) string { return orDefault(s.Timezone, fallback) }

func (h HTTPConfig) ListenAddr() string { return orDefault(h.Addr, DefaultHTTPAddr) }

func (e EmailConfig) UseHTML() bool { return e.HTML == nil || *e.HTML }

func orDefault(v, def string) string {
	if s := strings.TrimSpace(v); s != "" {
		return s
	}
	return def
}
