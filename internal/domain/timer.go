package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	// DefaultBackupName names both the seeded default timer and the
	// job it targets.
	DefaultBackupName = "default_backup"

	// TimerJobName is the reserved coordinator entry under which the
	// daemon's periodic check loop runs, so shutdown waits for it
	// like any job.
	TimerJobName = "timer"

	// WildcardCommand in a timer's command list expands to every job
	// known to the job registry.
	WildcardCommand = "*"
)

// RanFormat is the wire format for a timer's last-run marker: UTC,
// second precision.
const RanFormat = "2006-01-02 15:04:05"

// Timer is a named recurrence rule plus a last-run marker. It carries
// no behavior beyond (de)serialization and the readiness predicate.
type Timer struct {
	Name      string
	TimeOfDay string
	Span      Span
	Commands  []string
	Enabled   bool

	// Ran is the last instant this timer was marked as having fired,
	// always UTC; nil means never fired.
	Ran *time.Time

	hour, minute int
}

// NewTimer validates the wall-clock time and normalizes ran to UTC.
func NewTimer(name, timeOfDay string, span Span, commands []string, enabled bool, ran *time.Time) (*Timer, error) {
	hour, minute, err := ParseTimeOfDay(timeOfDay)
	if err != nil {
		return nil, fmt.Errorf("timer %q: %w", name, err)
	}
	t := &Timer{
		Name:      name,
		TimeOfDay: timeOfDay,
		Span:      span,
		Commands:  commands,
		Enabled:   enabled,
		hour:      hour,
		minute:    minute,
	}
	if ran != nil {
		utc := ran.UTC()
		t.Ran = &utc
	}
	return t, nil
}

// ParseTimeOfDay parses a strict "HH:MM" wall-clock string.
func ParseTimeOfDay(s string) (hour, minute int, err error) {
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid time of day %q (want HH:MM)", s)
	}
	hour, err = strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, fmt.Errorf("invalid hour in time of day %q", s)
	}
	minute, err = strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("invalid minute in time of day %q", s)
	}
	return hour, minute, nil
}

// Boundary returns the instant within now's period at which this
// timer becomes eligible.
func (t *Timer) Boundary(now time.Time) time.Time {
	return t.Span.boundary(now.UTC(), t.hour, t.minute)
}

// Ready reports whether the timer is due at now: enabled, past its
// boundary for the current period, and not already fired within that
// period. Pure; never mutates Ran.
func (t *Timer) Ready(now time.Time) bool {
	if !t.Enabled {
		return false
	}
	now = now.UTC()
	boundary := t.Boundary(now)
	if boundary.IsZero() || now.Before(boundary) {
		return false
	}
	if t.Ran == nil {
		return true
	}
	return t.Ran.Before(t.Span.PeriodStart(now))
}

// SetRan records a fire instant, normalized to UTC and truncated to
// the second to match the wire precision.
func (t *Timer) SetRan(instant time.Time) {
	utc := instant.UTC().Truncate(time.Second)
	t.Ran = &utc
}

// ToMap serializes every persisted field. The name is the registry
// key, not part of the map.
func (t *Timer) ToMap() map[string]any {
	m := map[string]any{
		"time":     t.TimeOfDay,
		"span":     t.Span.String(),
		"commands": append([]string(nil), t.Commands...),
		"enabled":  t.Enabled,
	}
	if t.Ran != nil {
		m["ran"] = t.Ran.UTC().Format(RanFormat)
	}
	return m
}

// TimerFromMap deserializes one timer from its settings-document form.
// Field errors are validation errors; the caller accumulates them.
func TimerFromMap(name string, m map[string]any) (*Timer, error) {
	timeOfDay, ok := m["time"].(string)
	if !ok {
		return nil, fmt.Errorf("timer %q: missing or non-string 'time'", name)
	}
	spanRaw, ok := m["span"].(string)
	if !ok {
		return nil, fmt.Errorf("timer %q: missing or non-string 'span'", name)
	}
	span, err := ParseSpan(spanRaw)
	if err != nil {
		return nil, fmt.Errorf("timer %q: %w", name, err)
	}
	commands, err := stringSlice(m["commands"])
	if err != nil {
		return nil, fmt.Errorf("timer %q: 'commands' %w", name, err)
	}
	enabled := true
	if v, present := m["enabled"]; present {
		b, ok := v.(bool)
		if !ok {
			return nil, fmt.Errorf("timer %q: non-boolean 'enabled'", name)
		}
		enabled = b
	}
	var ran *time.Time
	if v, present := m["ran"]; present && v != nil {
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("timer %q: non-string 'ran'", name)
		}
		parsed, err := time.ParseInLocation(RanFormat, s, time.UTC)
		if err != nil {
			return nil, fmt.Errorf("timer %q: invalid 'ran' %q: %w", name, s, err)
		}
		ran = &parsed
	}
	return NewTimer(name, timeOfDay, span, commands, enabled, ran)
}

func stringSlice(v any) ([]string, error) {
	switch vv := v.(type) {
	case nil:
		return nil, fmt.Errorf("is missing")
	case []string:
		return append([]string(nil), vv...), nil
	case []any:
		out := make([]string, 0, len(vv))
		for _, item := range vv {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("contains a non-string entry")
			}
			out = append(out, s)
		}
		return out, nil
	}
	return nil, fmt.Errorf("is not a list")
}
