package main

import (
	"testing"
	"time"
)

func TestParseTime(t *testing.T) {
	tests := []struct {
		in      string
		want    int64
		wantErr bool
	}{
		{"1700000000000", 1_700_000_000_000, false},
		{"-5", -5, false},
		{"2026-04-15T00:00:00Z", time.Date(2026, 4, 15, 0, 0, 0, 0, time.UTC).UnixMilli(), false},
		{"tomorrow", 0, true},
	}
	for _, tt := range tests {
		got, err := parseTime(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("parseTime(%q) error = %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("parseTime(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestParsePoints(t *testing.T) {
	times, utils, err := parsePoints([]string{"1000=5", "2026-04-15T00:00:00Z=-2.5"})
	if err != nil {
		t.Fatalf("parsePoints failed: %v", err)
	}
	if len(times) != 2 || times[0] != 1000 || utils[1] != -2.5 {
		t.Errorf("Unexpected series %v %v", times, utils)
	}

	for _, bad := range []string{"1000", "=5", "1000=x", "soon=1"} {
		if _, _, err := parsePoints([]string{bad}); err == nil {
			t.Errorf("Expected error for %q", bad)
		}
	}
}
