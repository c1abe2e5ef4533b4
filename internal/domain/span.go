package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// SpanKind enumerates the supported recurrence granularities. The set
// is closed: adding a kind means updating every switch over it.
type SpanKind int

const (
	SpanDaily SpanKind = iota
	SpanWeekly
	SpanMonthly
	SpanCron
)

const cronSpanPrefix = "cron:"

// cronParser accepts standard five-field expressions
// (minute hour dom month dow), no seconds field.
var cronParser = cron.NewParser(
	cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow,
)

// Span is the recurrence granularity of a timer. Preset kinds derive
// their period from the calendar (UTC); cron spans derive it from the
// expression's own fire instants.
type Span struct {
	Kind SpanKind

	expr  string
	sched cron.Schedule
}

// ParseSpan parses the wire form of a span: "daily", "weekly",
// "monthly", or "cron:<five-field expression>". Anything else is a
// validation error, never a silent skip.
func ParseSpan(s string) (Span, error) {
	switch s {
	case "daily":
		return Span{Kind: SpanDaily}, nil
	case "weekly":
		return Span{Kind: SpanWeekly}, nil
	case "monthly":
		return Span{Kind: SpanMonthly}, nil
	}
	if strings.HasPrefix(s, cronSpanPrefix) {
		expr := strings.TrimPrefix(s, cronSpanPrefix)
		sched, err := cronParser.Parse(expr)
		if err != nil {
			return Span{}, fmt.Errorf("invalid cron span %q: %w", expr, err)
		}
		return Span{Kind: SpanCron, expr: expr, sched: sched}, nil
	}
	return Span{}, fmt.Errorf("unrecognized span %q", s)
}

// String returns the wire form, suitable for round-tripping through
// ParseSpan.
func (sp Span) String() string {
	switch sp.Kind {
	case SpanDaily:
		return "daily"
	case SpanWeekly:
		return "weekly"
	case SpanMonthly:
		return "monthly"
	case SpanCron:
		return cronSpanPrefix + sp.expr
	}
	panic(fmt.Sprintf("domain: unhandled span kind %d", sp.Kind))
}

// PeriodStart returns the start of the recurrence period containing
// now. For cron spans this is the most recent fire instant at or
// before now; the zero time means the expression has not fired within
// the lookback window.
func (sp Span) PeriodStart(now time.Time) time.Time {
	now = now.UTC()
	switch sp.Kind {
	case SpanDaily:
		return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	case SpanWeekly:
		// ISO-8601 week: Monday 00:00 UTC.
		day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
		back := (int(day.Weekday()) + 6) % 7
		return day.AddDate(0, 0, -back)
	case SpanMonthly:
		return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	case SpanCron:
		return sp.prevFire(now)
	}
	panic(fmt.Sprintf("domain: unhandled span kind %d", sp.Kind))
}

// boundary returns the instant within now's period at which a timer
// with this span becomes eligible. Cron spans carry their own
// wall-clock time, so hour and minute are ignored for them.
func (sp Span) boundary(now time.Time, hour, minute int) time.Time {
	start := sp.PeriodStart(now)
	if sp.Kind == SpanCron || start.IsZero() {
		return start
	}
	return start.Add(time.Duration(hour)*time.Hour + time.Duration(minute)*time.Minute)
}

// maxCronSteps bounds the forward walk used to locate the previous
// fire instant. The lookback ladder keeps the walk short for dense
// schedules, so the cap only matters for pathological expressions.
const maxCronSteps = 1000

func (sp Span) prevFire(now time.Time) time.Time {
	lookbacks := []time.Duration{
		time.Hour,
		24 * time.Hour,
		31 * 24 * time.Hour,
		366 * 24 * time.Hour,
	}
	for _, lookback := range lookbacks {
		next := sp.sched.Next(now.Add(-lookback))
		if next.IsZero() || next.After(now) {
			continue
		}
		prev := next
		for i := 0; i < maxCronSteps; i++ {
			n := sp.sched.Next(prev)
			if n.IsZero() || n.After(now) {
				break
			}
			prev = n
		}
		return prev
	}
	return time.Time{}
}
