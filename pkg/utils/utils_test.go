package utils

import (
	"log/slog"
	"testing"
)

func TestFormatTime(t *testing.T) {
	tests := []struct {
		seconds  int
		expected string
	}{
		{-5, "0s"},
		{0, "0s"},
		{59, "59s"},
		{60, "1m"},
		{61, "1m 1s"},
		{3600, "1h"},
		{3930, "1h 5m 30s"},
		{7205, "2h 5s"},
	}

	for _, tc := range tests {
		if got := FormatTime(tc.seconds); got != tc.expected {
			t.Errorf("FormatTime(%d) = %q, expected %q", tc.seconds, got, tc.expected)
		}
	}
}

func TestParseLogLevel(t *testing.T) {
	level, err := ParseLogLevel("DEBUG")
	if err != nil || level != slog.LevelDebug {
		t.Errorf("expected debug level, got %v (%v)", level, err)
	}

	_, err = ParseLogLevel("loud")
	if err == nil {
		t.Errorf("expected an error for an unknown level")
	}
}
