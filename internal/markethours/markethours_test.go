package markethours

import (
	"strings"
	"testing"
	"time"
)

func et(y int, m time.Month, d, hh, mm int) time.Time {
	return time.Date(y, m, d, hh, mm, 0, 0, Eastern)
}

func TestIsMarketOpen(t *testing.T) {
	tests := []struct {
		name string
		t    time.Time
		want bool
	}{
		{"friday mid-session", et(2024, time.March, 1, 10, 0), true},
		{"one minute before open", et(2024, time.March, 1, 9, 29), false},
		{"at open", et(2024, time.March, 1, 9, 30), true},
		{"at close", et(2024, time.March, 1, 16, 0), false},
		{"saturday", et(2024, time.March, 2, 11, 0), false},
		{"independence day", et(2024, time.July, 4, 11, 0), false},
		{"good friday", et(2024, time.March, 29, 11, 0), false},
		{"utc input", time.Date(2024, time.March, 1, 15, 0, 0, 0, time.UTC), true},
		{"summer time utc input", time.Date(2024, time.July, 1, 13, 45, 0, 0, time.UTC), true},
	}
	for _, tt := range tests {
		if got := IsMarketOpen(tt.t); got != tt.want {
			t.Errorf("%s: IsMarketOpen(%v) = %v, want %v", tt.name, tt.t, got, tt.want)
		}
	}
}

func TestHolidays(t *testing.T) {
	tests := []struct {
		year int
		want []string
	}{
		{2024, []string{"2024-01-01", "2024-01-15", "2024-02-19", "2024-03-29", "2024-05-27",
			"2024-06-19", "2024-07-04", "2024-09-02", "2024-11-28", "2024-12-25"}},
		// Jan 1 on a Saturday is not observed; Juneteenth and Christmas fall on Sundays.
		{2022, []string{"2022-01-17", "2022-02-21", "2022-04-15", "2022-05-30",
			"2022-06-20", "2022-07-04", "2022-09-05", "2022-11-24", "2022-12-26"}},
	}
	for _, tt := range tests {
		got := Holidays(tt.year)
		if len(got) != len(tt.want) {
			t.Fatalf("%d: got %d holidays, want %d: %v", tt.year, len(got), len(tt.want), got)
		}
		for i, d := range got {
			if s := d.Format("2006-01-02"); s != tt.want[i] {
				t.Errorf("%d: holiday[%d] = %s, want %s", tt.year, i, s, tt.want[i])
			}
		}
	}
}

func TestNextOpen(t *testing.T) {
	tests := []struct {
		name string
		t    time.Time
		want time.Time
	}{
		{"before open same day", et(2024, time.March, 1, 8, 0), et(2024, time.March, 1, 9, 30)},
		{"after close friday", et(2024, time.March, 1, 17, 0), et(2024, time.March, 4, 9, 30)},
		{"good friday", et(2024, time.March, 29, 10, 0), et(2024, time.April, 1, 9, 30)},
	}
	for _, tt := range tests {
		if got := NextOpen(tt.t); !got.Equal(tt.want) {
			t.Errorf("%s: NextOpen = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestStatusAt(t *testing.T) {
	open := StatusAt(et(2024, time.March, 1, 15, 0))
	if !open.Open || !strings.HasPrefix(open.Label, "Market Open, closes in 1h0m") {
		t.Errorf("open status = %+v", open)
	}
	closed := StatusAt(et(2024, time.March, 2, 12, 0))
	if closed.Open || !strings.HasPrefix(closed.Label, "Market Closed, opens Mon 09:30 ET") {
		t.Errorf("closed status = %+v", closed)
	}
	if TimeUntilClose(et(2024, time.March, 1, 17, 0)) != 0 {
		t.Error("TimeUntilClose after close should be 0")
	}
}
