package compose

import (
	"fmt"
	"math"
	"strconv"

	"expirywatch/internal/expiry"
	"expirywatch/internal/urgency"
)

type tierTemplate struct {
	emoji  string
	action string
}

var tierTemplates = map[expiry.Tier]tierTemplate{
	expiry.TierCritical: {emoji: "🔴", action: "Renew immediately"},
	expiry.TierUrgent:   {emoji: "🟠", action: "Renew within a week"},
	expiry.TierPlanned:  {emoji: "🟡", action: "Prepare renewal within a month"},
	expiry.TierMonitor:  {emoji: "🟢", action: "Keep monitoring"},
}

const footer = "Sent by expirywatch"

// Action returns the recommended action for a tier.
func Action(t expiry.Tier) string { return tierTemplates[t].action }

// Marker returns the subject marker for a tier, e.g. "[Urgent]".
func Marker(t expiry.Tier) string { return "[" + t.Title() + "]" }

// Compose renders the alert for one item. The assessment supplies tier,
// score and days left; nothing else about the current time is consulted.
func Compose(it expiry.Item, a urgency.Assessment) Alert {
	tpl, ok := tierTemplates[a.Tier]
	if !ok {
		tpl = tierTemplates[expiry.TierMonitor]
	}
	title := clean(it.Title)

	subject := fmt.Sprintf("%s %s %s", Marker(a.Tier), title, When(a.DaysLeft))
	headline := fmt.Sprintf("%s %s: expiry alert", tpl.emoji, a.Tier.Title())
	fields := []Field{
		{Label: "Title", Value: title},
		{Label: "Category", Value: clean(it.Category)},
		{Label: "Expiry date", Value: clean(it.ExpiryDate)},
		{Label: "Days left", Value: strconv.Itoa(a.DaysLeft)},
		{Label: "Priority", Value: clean(string(it.Priority))},
		{Label: "Urgency score", Value: FormatScore(a.Score)},
		{Label: "Source", Value: clean(it.Source)},
		{Label: "Action", Value: tpl.action},
	}

	al := newAlert(KindExpiry, subject, headline, fields, footer)
	al.itemID = it.ID
	al.tier = a.Tier
	al.score = a.Score
	al.daysLeft = a.DaysLeft
	return al
}

// When phrases days left for a subject line.
func When(daysLeft int) string {
	switch {
	case daysLeft == 0:
		return "expires today"
	case daysLeft == 1:
		return "expires in 1 day"
	case daysLeft > 1:
		return fmt.Sprintf("expires in %d days", daysLeft)
	case daysLeft == -1:
		return "expired 1 day ago"
	default:
		return fmt.Sprintf("expired %d days ago", -daysLeft)
	}
}

// FormatScore renders a score with at most one decimal.
func FormatScore(v float64) string {
	return strconv.FormatFloat(math.Round(v*10)/10, 'f', -1, 64)
}
