package news

import (
	"testing"
	"time"
)

func TestNormalizePublishTime(t *testing.T) {
	shanghai, err := time.LoadLocation("Asia/Shanghai")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}
	// Fixed reference instant: 2025-06-04 12:00 UTC.
	now := time.Date(2025, 6, 4, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"morning utc clock", "3:16 AM UTC", "2025-06-04 11:16"},
		{"afternoon utc clock", "4:30 PM UTC", "2025-06-05 00:30"},
		{"midnight utc clock", "12:05 AM UTC", "2025-06-04 08:05"},
		{"english date", "June 4, 2025", "2025-06-04 00:00"},
		{"iso zulu", "2025-06-04T10:30:00Z", "2025-06-04 18:30"},
		{"iso with offset", "2025-06-04T10:30:00+08:00", "2025-06-04 10:30"},
		{"iso space separator", "2025-06-04 02:30:00Z", "2025-06-04 10:30"},
		{"minutes ago", "30 minutes ago", "2025-06-04 19:30"},
		{"hours ago", "2 hours ago", "2025-06-04 18:00"},
		{"days ago", "1 day ago", "2025-06-03 20:00"},
		{"plain datetime", "2025-06-04 10:30:00", "2025-06-04 10:30"},
		{"short datetime", "2025-06-04 10:30", "2025-06-04 10:30"},
		{"abbreviated month date", "Jun 4, 2025", "2025-06-04 00:00"},
		{"unparseable passes through", "last Tuesday-ish", "last Tuesday-ish"},
		{"empty", "", "N/A"},
		{"whitespace", "  ", "N/A"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := normalizePublishTimeAt(tt.in, shanghai, now)
			if got != tt.want {
				t.Errorf("normalizePublishTimeAt(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestNormalizePublishTimeNilLocation(t *testing.T) {
	now := time.Date(2025, 6, 4, 12, 0, 0, 0, time.UTC)
	got := normalizePublishTimeAt("2025-06-04T10:30:00Z", nil, now)
	if got != "2025-06-04 10:30" {
		t.Errorf("nil location should fall back to UTC, got %q", got)
	}
}
