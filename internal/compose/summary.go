package compose

import (
	"fmt"
	"sort"
	"strconv"
	"time"

	"expirywatch/internal/expiry"
)

const topItems = 5

// WeeklySummary renders an overview of the given items as seen from now:
// totals per urgency band and the soonest few items.
func WeeklySummary(items []expiry.Item, now time.Time, loc *time.Location) Alert {
	type row struct {
		it   expiry.Item
		days int
	}
	rows := make([]row, 0, len(items))
	for _, it := range items {
		if !it.Active() {
			continue
		}
		d, err := expiry.DaysLeft(it, now, loc)
		if err != nil {
			continue
		}
		rows = append(rows, row{it: it, days: d})
	}
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].days != rows[j].days {
			return rows[i].days < rows[j].days
		}
		return rows[i].it.ID < rows[j].it.ID
	})

	urgent, warning := 0, 0
	for _, r := range rows {
		switch {
		case r.days <= expiry.UrgentWithinDays:
			urgent++
		case r.days <= expiry.PlannedWithinDays:
			warning++
		}
	}

	fields := []Field{
		{Label: "Tracked items", Value: strconv.Itoa(len(rows))},
		{Label: "Urgent (7 days or less)", Value: strconv.Itoa(urgent)},
		{Label: "Warning (8 to 30 days)", Value: strconv.Itoa(warning)},
	}
	for i, r := range rows {
		if i == topItems {
			break
		}
		fields = append(fields, Field{
			Label: fmt.Sprintf("%d. %s", i+1, clean(r.it.Title)),
			Value: fmt.Sprintf("%s (%s)", clean(r.it.ExpiryDate), When(r.days)),
		})
	}

	day := expiry.DayString(now, loc)
	return newAlert(KindWeeklySummary,
		"Weekly expiry summary "+day,
		"📊 Weekly expiry summary",
		fields, footer)
}

// MonthlyReport renders per-category counts. Categories are listed by name.
func MonthlyReport(byCategory map[string]int, now time.Time, loc *time.Location) Alert {
	cats := make([]string, 0, len(byCategory))
	total := 0
	for c, n := range byCategory {
		cats = append(cats, c)
		total += n
	}
	sort.Strings(cats)

	fields := make([]Field, 0, len(cats)+1)
	fields = append(fields, Field{Label: "Total", Value: strconv.Itoa(total)})
	for _, c := range cats {
		fields = append(fields, Field{Label: clean(c), Value: strconv.Itoa(byCategory[c])})
	}

	month := expiry.Day(now, loc).Format("2006-01")
	return newAlert(KindMonthlyReport,
		"Monthly expiry report "+month,
		"📈 Monthly expiry report",
		fields, footer)
}
