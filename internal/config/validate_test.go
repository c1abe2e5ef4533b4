package config

import (
	"strings"
	"testing"
)

func TestValidate_ValidConfig(t *testing.T) {
	cfg := Config{
		CheckIntervalStr:    "1m",
		HistoryEnabled:      true,
		HistoryPath:         "/var/lib/backupnow/history.db",
		HistoryRetentionStr: "2160h",
		StopMaxWaitStr:      "20s",
		MetricsPath:         "/metrics",
	}

	if err := Validate(cfg); err != nil {
		t.Errorf("valid config should not return error, got: %v", err)
	}
}

func TestValidate_InvalidDurations(t *testing.T) {
	tests := []struct {
		name    string
		value   string
		wantErr string
	}{
		{"non-parseable", "invalid", "invalid duration"},
		{"negative", "-1s", "must be positive"},
		{"zero", "0s", "must be positive"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Config{
				CheckIntervalStr: tt.value,
				HistoryEnabled:   false,
			}

			err := Validate(cfg)
			if err == nil {
				t.Fatalf("expected error for check_interval=%q", tt.value)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q should contain %q", err.Error(), tt.wantErr)
			}
			if !strings.Contains(err.Error(), "BACKUPNOW_CHECK_INTERVAL") {
				t.Errorf("error should name the variable: %q", err.Error())
			}
		})
	}
}

func TestValidate_HistoryPathRequiredWhenEnabled(t *testing.T) {
	cfg := Config{
		HistoryEnabled: true,
		HistoryPath:    "",
	}

	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected error for missing history path")
	}
	if !strings.Contains(err.Error(), "BACKUPNOW_HISTORY_PATH") {
		t.Errorf("error should mention BACKUPNOW_HISTORY_PATH: %q", err.Error())
	}

	cfg.HistoryEnabled = false
	if err := Validate(cfg); err != nil {
		t.Errorf("disabled history should not require a path, got: %v", err)
	}
}

func TestValidate_MetricsPathShape(t *testing.T) {
	cfg := Config{
		MetricsEnabled: true,
		MetricsPath:    "metrics",
	}

	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected error for relative metrics path")
	}
	if !strings.Contains(err.Error(), "METRICS_PATH") {
		t.Errorf("error should mention METRICS_PATH: %q", err.Error())
	}

	cfg.MetricsEnabled = false
	if err := Validate(cfg); err != nil {
		t.Errorf("metrics path is not validated when metrics are off, got: %v", err)
	}
}

func TestValidate_MultipleErrors(t *testing.T) {
	cfg := Config{
		CheckIntervalStr: "invalid",
		StopMaxWaitStr:   "-5s",
		HistoryEnabled:   true,
	}

	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected errors")
	}

	errs, ok := err.(ValidationErrors)
	if !ok {
		t.Fatalf("expected ValidationErrors, got %T", err)
	}

	if len(errs) != 3 {
		t.Errorf("expected 3 validation errors, got %d: %v", len(errs), errs)
	}
}

func TestValidationError_Format(t *testing.T) {
	err := ValidationError{Field: "BACKUPNOW_CHECK_INTERVAL", Message: "must be positive"}
	got := err.Error()
	want := "BACKUPNOW_CHECK_INTERVAL: must be positive"
	if got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestValidationErrors_Format(t *testing.T) {
	single := ValidationErrors{{Field: "F1", Message: "M1"}}
	if single.Error() != "F1: M1" {
		t.Errorf("single error = %q, want 'F1: M1'", single.Error())
	}

	multi := ValidationErrors{
		{Field: "F1", Message: "M1"},
		{Field: "F2", Message: "M2"},
	}
	got := multi.Error()
	if !strings.Contains(got, "2 validation errors") {
		t.Errorf("multi error should contain '2 validation errors': %q", got)
	}
	if !strings.Contains(got, "F1: M1") || !strings.Contains(got, "F2: M2") {
		t.Errorf("multi error should contain both errors: %q", got)
	}

	empty := ValidationErrors{}
	if empty.Error() != "" {
		t.Errorf("empty errors should return empty string, got %q", empty.Error())
	}
}
