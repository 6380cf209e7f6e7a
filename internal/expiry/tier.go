package expiry

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Tier is an urgency bucket derived from days left. Lower values are more urgent.
type Tier int

const (
	TierCritical Tier = iota // days_left <= 0
	TierUrgent               // 0 < days_left <= 7
	TierPlanned              // 7 < days_left <= 30
	TierMonitor              // days_left > 30
)

const (
	UrgentWithinDays  = 7
	PlannedWithinDays = 30
)

// TierFor maps days left to a tier. It is the only place the boundaries live.
func TierFor(daysLeft int) Tier {
	switch {
	case daysLeft <= 0:
		return TierCritical
	case daysLeft <= UrgentWithinDays:
		return TierUrgent
	case daysLeft <= PlannedWithinDays:
		return TierPlanned
	default:
		return TierMonitor
	}
}

var tierNames = [...]string{"critical", "urgent", "planned", "monitor"}

func (t Tier) String() string {
	if t < TierCritical || t > TierMonitor {
		return fmt.Sprintf("tier(%d)", int(t))
	}
	return tierNames[t]
}

// Title returns the capitalized tier name used in rendered messages.
func (t Tier) Title() string {
	s := t.String()
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func (t Tier) Valid() bool { return t >= TierCritical && t <= TierMonitor }

// ParseTier is the inverse of String.
func ParseTier(s string) (Tier, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for i, n := range tierNames {
		if n == s {
			return Tier(i), nil
		}
	}
	return 0, fmt.Errorf("expiry: unknown tier %q", s)
}

func (t Tier) MarshalJSON() ([]byte, error) { return json.Marshal(t.String()) }

func (t *Tier) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	v, err := ParseTier(s)
	if err != nil {
		return err
	}
	*t = v
	return nil
}
