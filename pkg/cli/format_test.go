package cli

import (
	"testing"
	"time"
)

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{0, "0ms"},
		{16 * time.Millisecond, "16ms"},
		{1500 * time.Millisecond, "1.5s"},
		{59 * time.Second, "59.0s"},
		{90 * time.Second, "1m30.0s"},
	}
	for _, tt := range tests {
		if got := FormatDuration(tt.in); got != tt.want {
			t.Errorf("FormatDuration(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFormatScore(t *testing.T) {
	if got := FormatScore(0.5449); got != "0.54" {
		t.Errorf("FormatScore = %q", got)
	}
}

func TestFormatTime(t *testing.T) {
	if got := FormatTime(time.Time{}); got != "-" {
		t.Errorf("FormatTime(zero) = %q", got)
	}
	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.Local)
	if got := FormatTime(ts); got != "2026-03-01 12:00:00" {
		t.Errorf("FormatTime = %q", got)
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		in    string
		width int
		want  string
	}{
		{"short", 10, "short"},
		{"abcdefgh", 5, "abcd…"},
		{"日本語テキスト", 5, "日本…"},
	}
	for _, tt := range tests {
		if got := truncate(tt.in, tt.width); got != tt.want {
			t.Errorf("truncate(%q, %d) = %q, want %q", tt.in, tt.width, got, tt.want)
		}
	}
}

func TestRenderTableTruncatesCells(t *testing.T) {
	long := make([]byte, MaxCellWidth*2)
	for i := range long {
		long[i] = 'x'
	}
	out := RenderTable(DefaultStyles(), Table{Columns: []string{"ID"}, Data: [][]string{{string(long)}}})
	if !containsRune(out, '…') {
		t.Errorf("expected truncated cell:\n%s", out)
	}
}

func containsRune(s string, r rune) bool {
	for _, c := range s {
		if c == r {
			return true
		}
	}
	return false
}
