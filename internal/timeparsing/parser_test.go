package timeparsing

import (
	"testing"
	"time"
)

func TestParse(t *testing.T) {
	// Wednesday, January 15, 2025, 10:00
	now := time.Date(2025, 1, 15, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		input string
		want  time.Time
	}{
		{"+1d", now.AddDate(0, 0, 1)},
		{"+6h", now.Add(6 * time.Hour)},
		{"2w", now.AddDate(0, 0, 14)},
		{"-1m", now.AddDate(0, -1, 0)},
		{"1y", now.AddDate(1, 0, 0)},
		{"2025-02-01", time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)},
		{" 2025-02-01 ", time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)},
		{"2025-03-15T14:30:00Z", time.Date(2025, 3, 15, 14, 30, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := Parse(tt.input, now)
			if err != nil {
				t.Fatalf("Parse(%q) error: %v", tt.input, err)
			}
			if !got.Equal(tt.want) {
				t.Errorf("Parse(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestParseNaturalLanguage(t *testing.T) {
	now := time.Date(2025, 1, 15, 10, 0, 0, 0, time.UTC)

	got, err := Parse("tomorrow", now)
	if err != nil {
		t.Fatalf("Parse(tomorrow) error: %v", err)
	}
	if got.Year() != 2025 || got.Month() != time.January || got.Day() != 16 {
		t.Errorf("Parse(tomorrow) = %v, want Jan 16 2025", got)
	}
}

func TestParseRejects(t *testing.T) {
	now := time.Now()
	for _, input := range []string{"", "   ", "not-a-date"} {
		if _, err := Parse(input, now); err == nil {
			t.Errorf("Parse(%q) succeeded, want error", input)
		}
	}
}

func TestParseCompactIgnoresOtherForms(t *testing.T) {
	now := time.Now()
	for _, input := range []string{"2025-01-20", "+1x", "d", "tomorrow"} {
		if _, ok := ParseCompact(input, now); ok {
			t.Errorf("ParseCompact(%q) matched", input)
		}
	}
}
