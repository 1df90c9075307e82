package markethours

import (
	"sync"
	"time"
)

// holidayCache maps year -> set of "2006-01-02" dates.
var holidayCache sync.Map

// IsHoliday reports whether the Eastern date of t is a full-day exchange
// holiday.
func IsHoliday(t time.Time) bool {
	et := t.In(Eastern)
	return holidays(et.Year())[dateKey(et.Year(), et.Month(), et.Day())]
}

// Holidays returns the observed full-day holidays of year, in date order.
func Holidays(year int) []time.Time {
	return holidayDates(year)
}

func holidays(year int) map[string]bool {
	if v, ok := holidayCache.Load(year); ok {
		return v.(map[string]bool)
	}
	set := make(map[string]bool, 10)
	for _, d := range holidayDates(year) {
		set[dateKey(d.Year(), d.Month(), d.Day())] = true
	}
	holidayCache.Store(year, set)
	return set
}

func holidayDates(year int) []time.Time {
	var out []time.Time
	// New Year's Day falling on Saturday is not observed on the prior Friday.
	if ny := date(year, time.January, 1); ny.Weekday() != time.Saturday {
		out = append(out, observed(ny))
	}
	out = append(out,
		nthWeekday(year, time.January, time.Monday, 3),  // Martin Luther King Jr. Day
		nthWeekday(year, time.February, time.Monday, 3), // Washington's Birthday
		easter(year).AddDate(0, 0, -2),                  // Good Friday
		lastWeekday(year, time.May, time.Monday),        // Memorial Day
	)
	if year >= 2022 {
		out = append(out, observed(date(year, time.June, 19))) // Juneteenth
	}
	out = append(out,
		observed(date(year, time.July, 4)),                // Independence Day
		nthWeekday(year, time.September, time.Monday, 1),  // Labor Day
		nthWeekday(year, time.November, time.Thursday, 4), // Thanksgiving
		observed(date(year, time.December, 25)),           // Christmas
	)
	return out
}

func date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, Eastern)
}

// observed moves Saturday holidays to Friday and Sunday holidays to Monday.
func observed(d time.Time) time.Time {
	switch d.Weekday() {
	case time.Saturday:
		return d.AddDate(0, 0, -1)
	case time.Sunday:
		return d.AddDate(0, 0, 1)
	}
	return d
}

func nthWeekday(year int, month time.Month, wd time.Weekday, n int) time.Time {
	d := date(year, month, 1)
	offset := (int(wd) - int(d.Weekday()) + 7) % 7
	return d.AddDate(0, 0, offset+7*(n-1))
}

func lastWeekday(year int, month time.Month, wd time.Weekday) time.Time {
	d := date(year, month+1, 0)
	offset := (int(d.Weekday()) - int(wd) + 7) % 7
	return d.AddDate(0, 0, -offset)
}

// easter returns Easter Sunday (Gregorian, anonymous algorithm).
func easter(year int) time.Time {
	a := year % 19
	b := year / 100
	c := year % 100
	d := b / 4
	e := b % 4
	f := (b + 8) / 25
	g := (b - f + 1) / 3
	h := (19*a + b - d - g + 15) % 30
	i := c / 4
	k := c % 4
	l := (32 + 2*e + 2*i - h - k) % 7
	m := (a + 11*h + 22*l) / 451
	month := (h + l - 7*m + 114) / 31
	day := (h+l-7*m+114)%31 + 1
	return date(year, time.Month(month), day)
}

func dateKey(year int, month time.Month, day int) string {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC).Format("2006-01-02")
}
