package compose

import (
	"strings"

	"expirywatch/internal/expiry"
)

type Kind string

const (
	KindExpiry        Kind = "expiry"
	KindWeeklySummary Kind = "weekly_summary"
	KindMonthlyReport Kind = "monthly_report"
)

type Field struct {
	Label string
	Value string
}

// Alert is an immutable rendered message.
type Alert struct {
	kind     Kind
	itemID   int64
	tier     expiry.Tier
	score    float64
	daysLeft int

	subject  string
	headline string
	fields   []Field
	footer   string
	body     string
}

func (a Alert) Kind() Kind        { return a.kind }
func (a Alert) ItemID() int64     { return a.itemID }
func (a Alert) Tier() expiry.Tier { return a.tier }
func (a Alert) Score() float64    { return a.score }
func (a Alert) DaysLeft() int     { return a.daysLeft }
func (a Alert) Subject() string   { return a.subject }
func (a Alert) Headline() string  { return a.headline }
func (a Alert) Footer() string    { return a.footer }
func (a Alert) Body() string      { return a.body }
func (a Alert) IsZero() bool      { return a.kind == "" }
func (a Alert) FieldCount() int   { return len(a.fields) }
func (a Alert) Field(i int) Field { return a.fields[i] }

// Fields returns a copy of the labelled fields.
func (a Alert) Fields() []Field {
	return append([]Field(nil), a.fields...)
}

func newAlert(kind Kind, subject, headline string, fields []Field, footer string) Alert {
	a := Alert{
		kind:     kind,
		subject:  subject,
		headline: headline,
		fields:   fields,
		footer:   footer,
	}
	a.body = renderPlain(a)
	return a
}

func renderPlain(a Alert) string {
	var b strings.Builder
	b.WriteString(a.headline)
	for _, f := range a.fields {
		b.WriteString("\n")
		if f.Label != "" {
			b.WriteString(f.Label)
			b.WriteString(": ")
		}
		b.WriteString(f.Value)
	}
	if a.footer != "" {
		b.WriteString("\n\n")
		b.WriteString(a.footer)
	}
	return b.String()
}
