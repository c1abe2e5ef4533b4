package domain

import (
	"testing"
	"time"
)

func TestParseSpan_Presets(t *testing.T) {
	tests := []struct {
		in   string
		want SpanKind
	}{
		{"daily", SpanDaily},
		{"weekly", SpanWeekly},
		{"monthly", SpanMonthly},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			sp, err := ParseSpan(tt.in)
			if err != nil {
				t.Fatalf("ParseSpan(%q) error: %v", tt.in, err)
			}
			if sp.Kind != tt.want {
				t.Errorf("Kind = %d, want %d", sp.Kind, tt.want)
			}
			if got := sp.String(); got != tt.in {
				t.Errorf("String() = %q, want %q", got, tt.in)
			}
		})
	}
}

func TestParseSpan_Cron(t *testing.T) {
	sp, err := ParseSpan("cron:0 */4 * * *")
	if err != nil {
		t.Fatalf("ParseSpan error: %v", err)
	}
	if sp.Kind != SpanCron {
		t.Fatalf("Kind = %d, want SpanCron", sp.Kind)
	}
	if got := sp.String(); got != "cron:0 */4 * * *" {
		t.Errorf("String() = %q, want original expression", got)
	}
}

func TestParseSpan_Unrecognized_Error(t *testing.T) {
	for _, in := range []string{"hourly", "Daily", "", "every day", "cron:not an expr"} {
		if _, err := ParseSpan(in); err == nil {
			t.Errorf("ParseSpan(%q) = nil error, want validation error", in)
		}
	}
}

func TestPeriodStart_Daily(t *testing.T) {
	sp, _ := ParseSpan("daily")
	now := time.Date(2024, 1, 1, 13, 0, 0, 0, time.UTC)
	want := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	if got := sp.PeriodStart(now); !got.Equal(want) {
		t.Errorf("PeriodStart = %v, want %v", got, want)
	}
}

func TestPeriodStart_Weekly_StartsMonday(t *testing.T) {
	sp, _ := ParseSpan("weekly")
	tests := []struct {
		name string
		now  time.Time
		want time.Time
	}{
		{
			"wednesday maps back to monday",
			time.Date(2024, 1, 3, 10, 0, 0, 0, time.UTC),
			time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		},
		{
			"monday is its own period start",
			time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
			time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		},
		{
			"sunday belongs to the prior monday",
			time.Date(2024, 1, 7, 23, 59, 0, 0, time.UTC),
			time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := sp.PeriodStart(tt.now); !got.Equal(tt.want) {
				t.Errorf("PeriodStart(%v) = %v, want %v", tt.now, got, tt.want)
			}
		})
	}
}

func TestPeriodStart_Monthly(t *testing.T) {
	sp, _ := ParseSpan("monthly")
	now := time.Date(2024, 2, 29, 18, 30, 0, 0, time.UTC)
	want := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	if got := sp.PeriodStart(now); !got.Equal(want) {
		t.Errorf("PeriodStart = %v, want %v", got, want)
	}
}

func TestPeriodStart_Cron_PreviousFire(t *testing.T) {
	sp, err := ParseSpan("cron:0 */4 * * *")
	if err != nil {
		t.Fatalf("ParseSpan error: %v", err)
	}

	now := time.Date(2024, 1, 1, 13, 0, 0, 0, time.UTC)
	want := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	if got := sp.PeriodStart(now); !got.Equal(want) {
		t.Errorf("PeriodStart = %v, want %v", got, want)
	}

	// Exactly on a fire instant the period is that instant.
	onFire := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	if got := sp.PeriodStart(onFire); !got.Equal(want) {
		t.Errorf("PeriodStart(on fire) = %v, want %v", got, want)
	}
}

func TestPeriodStart_Cron_SparseSchedule(t *testing.T) {
	// Monthly cron needs the wide lookback windows.
	sp, err := ParseSpan("cron:30 6 1 * *")
	if err != nil {
		t.Fatalf("ParseSpan error: %v", err)
	}
	now := time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)
	want := time.Date(2024, 3, 1, 6, 30, 0, 0, time.UTC)
	if got := sp.PeriodStart(now); !got.Equal(want) {
		t.Errorf("PeriodStart = %v, want %v", got, want)
	}
}
