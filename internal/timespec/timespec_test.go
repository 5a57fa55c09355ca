package timespec

import (
	"testing"
	"time"
)

// at builds a local instant; weekday follows from the date.
func at(year int, month time.Month, day, hour int) time.Time {
	return time.Date(year, month, day, hour, 30, 0, 0, time.Local)
}

func TestParseFieldCount(t *testing.T) {
	t.Parallel()
	if _, err := Parse("6,8 * * *"); err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	for _, raw := range []string{"", "6", "6 *", "6 * *", "6 * * * *", "   "} {
		if _, err := Parse(raw); err == nil {
			t.Fatalf("Parse(%q): expected error", raw)
		}
	}
}

func TestParseKeepsFieldOrder(t *testing.T) {
	t.Parallel()
	s, err := Parse("14  1-15 6 0")
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	if s.Hour != "14" || s.Day != "1-15" || s.Month != "6" || s.Weekday != "0" {
		t.Fatalf("unexpected spec: %+v", s)
	}
}

func TestMatchField(t *testing.T) {
	t.Parallel()
	tests := []struct {
		field string
		value int
		want  bool
	}{
		{"*", 0, true},
		{"*", 23, true},
		{"6", 6, true},
		{"6", 7, false},
		{"6,8", 6, true},
		{"6,8", 8, true},
		{"6,8", 7, false},
		{"6, 8", 8, true},
		{"1-5", 1, true},
		{"1-5", 3, true},
		{"1-5", 5, true},
		{"1-5", 0, false},
		{"1-5", 6, false},
		// malformed content degrades to non-match, never panics
		{"abc", 1, false},
		{"1-x", 2, false},
		{"a,b", 0, false},
		// mixed comma+range: comma branch wins, range element is inert
		{"1-3,5", 5, true},
		{"1-3,5", 2, false},
	}
	for _, tt := range tests {
		if got := matchField(tt.field, tt.value); got != tt.want {
			t.Errorf("matchField(%q, %d) = %v, want %v", tt.field, tt.value, got, tt.want)
		}
	}
}

func TestMatchesHourSet(t *testing.T) {
	t.Parallel()
	s, err := Parse("6,8 * * *")
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	for hour := 0; hour < 24; hour++ {
		want := hour == 6 || hour == 8
		if got := s.Matches(at(2024, time.March, 14, hour)); got != want {
			t.Errorf("hour %d: got %v, want %v", hour, got, want)
		}
	}
}

func TestMatchesSundayOnly(t *testing.T) {
	t.Parallel()
	s, err := Parse("20 * * 0")
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}

	sunday := at(2024, time.January, 7, 20) // 2024-01-07 is a Sunday
	if !s.Matches(sunday) {
		t.Error("expected match on Sunday 20:00")
	}
	if s.Matches(at(2024, time.January, 7, 19)) {
		t.Error("unexpected match on Sunday 19:00")
	}
	monday := at(2024, time.January, 8, 20)
	if s.Matches(monday) {
		t.Error("unexpected match on Monday 20:00")
	}
}

func TestMatchesWeekdayRange(t *testing.T) {
	t.Parallel()
	s, err := Parse("14 * * 1-5")
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}

	// 2024-01-07 Sunday .. 2024-01-13 Saturday
	for day := 7; day <= 13; day++ {
		d := at(2024, time.January, day, 14)
		wd := int(d.Weekday())
		want := wd >= 1 && wd <= 5
		if got := s.Matches(d); got != want {
			t.Errorf("weekday %d: got %v, want %v", wd, got, want)
		}
	}
}

func TestMatchesDayAndMonth(t *testing.T) {
	t.Parallel()
	s, err := Parse("9 1 * *")
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	if !s.Matches(at(2024, time.May, 1, 9)) {
		t.Error("expected match on the 1st at 09:00")
	}
	if s.Matches(at(2024, time.May, 2, 9)) {
		t.Error("unexpected match on the 2nd")
	}

	june, err := Parse("0 * 6 *")
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	if !june.Matches(at(2024, time.June, 15, 0)) {
		t.Error("expected match in June")
	}
	if june.Matches(at(2024, time.July, 15, 0)) {
		t.Error("unexpected match in July")
	}
}

func TestWeekdayNumberingIsSundayZero(t *testing.T) {
	t.Parallel()
	// Pin the convention: 2024-01-07 is Sunday.
	for offset := 0; offset < 7; offset++ {
		d := at(2024, time.January, 7+offset, 12)
		if got := int(d.Weekday()); got != offset {
			t.Fatalf("day %d: weekday = %d, want %d", 7+offset, got, offset)
		}
	}
}

func TestWindowKey(t *testing.T) {
	t.Parallel()
	k := WindowKey(time.Date(2024, time.January, 1, 6, 59, 59, 0, time.Local))
	if k != "2024-01-01-06" {
		t.Fatalf("WindowKey = %q, want %q", k, "2024-01-01-06")
	}
	next := WindowKey(time.Date(2024, time.January, 1, 7, 0, 0, 0, time.Local))
	if next != "2024-01-01-07" {
		t.Fatalf("WindowKey = %q, want %q", next, "2024-01-01-07")
	}
	if k == next {
		t.Fatal("adjacent hours must produce distinct window keys")
	}
}

func TestMatchesWildcardEverything(t *testing.T) {
	t.Parallel()
	s, err := Parse("* * * *")
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	for _, instant := range []time.Time{
		at(2024, time.January, 1, 0),
		at(2024, time.June, 30, 23),
		at(2025, time.December, 31, 12),
	} {
		if !s.Matches(instant) {
			t.Errorf("wildcard spec should match %v", instant)
		}
	}
}
