// Package markethours answers whether the US equity market (NYSE/Nasdaq
// regular session) is open.
package markethours

import (
	"fmt"
	"time"
	_ "time/tzdata"
)

// Eastern is US Eastern time, the exchange's local zone.
var Eastern = mustLoad("America/New_York")

func mustLoad(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		panic(err)
	}
	return loc
}

// Regular session hours, Eastern time.
const (
	OpenHour    = 9
	OpenMinute  = 30
	CloseHour   = 16
	CloseMinute = 0
)

// IsMarketOpen reports whether t falls within the regular session
// (9:30 AM to 4:00 PM ET, Mon to Fri, excluding holidays).
func IsMarketOpen(t time.Time) bool {
	et := t.In(Eastern)
	if !IsTradingDay(et) {
		return false
	}
	hm := et.Hour()*60 + et.Minute()
	return hm >= OpenHour*60+OpenMinute && hm < CloseHour*60+CloseMinute
}

// IsWeekday returns true if t is Mon to Fri in Eastern time.
func IsWeekday(t time.Time) bool {
	wd := t.In(Eastern).Weekday()
	return wd >= time.Monday && wd <= time.Friday
}

// IsTradingDay returns true if t is a weekday and not a holiday.
func IsTradingDay(t time.Time) bool {
	return IsWeekday(t) && !IsHoliday(t)
}

// NextOpen returns the next session open. If t is before today's open on a
// trading day, that is today's open.
func NextOpen(t time.Time) time.Time {
	et := t.In(Eastern)
	todayOpen := time.Date(et.Year(), et.Month(), et.Day(), OpenHour, OpenMinute, 0, 0, Eastern)
	if et.Before(todayOpen) && IsTradingDay(et) {
		return todayOpen
	}
	d := et
	for i := 0; i < 10; i++ { // weekends plus at most one holiday
		d = d.AddDate(0, 0, 1)
		if IsTradingDay(d) {
			return time.Date(d.Year(), d.Month(), d.Day(), OpenHour, OpenMinute, 0, 0, Eastern)
		}
	}
	return time.Date(et.Year(), et.Month(), et.Day()+1, OpenHour, OpenMinute, 0, 0, Eastern)
}

// TodayClose returns today's 4:00 PM ET close.
func TodayClose(t time.Time) time.Time {
	et := t.In(Eastern)
	return time.Date(et.Year(), et.Month(), et.Day(), CloseHour, CloseMinute, 0, 0, Eastern)
}

// TimeUntilClose returns the duration until today's close, or 0 once closed.
func TimeUntilClose(t time.Time) time.Duration {
	d := TodayClose(t).Sub(t)
	if d < 0 {
		return 0
	}
	return d
}

// TimeUntilOpen returns the duration until the next open.
func TimeUntilOpen(t time.Time) time.Duration {
	return NextOpen(t).Sub(t)
}

// Status is the market state attached to price pushes.
type Status struct {
	Open     bool      `json:"open"`
	Label    string    `json:"label"`
	NextOpen time.Time `json:"nextOpen,omitempty"`
	Closes   time.Time `json:"closes,omitempty"`
}

// StatusAt returns the market status at t.
func StatusAt(t time.Time) Status {
	if IsMarketOpen(t) {
		return Status{Open: true, Label: StatusString(t), Closes: TodayClose(t)}
	}
	return Status{Label: StatusString(t), NextOpen: NextOpen(t)}
}

// StatusString returns a human-readable market status.
func StatusString(t time.Time) string {
	if IsMarketOpen(t) {
		return fmt.Sprintf("Market Open, closes in %s", fmtDur(TimeUntilClose(t)))
	}
	next := NextOpen(t)
	et := next.In(Eastern)
	return fmt.Sprintf("Market Closed, opens %s %s ET (%s)",
		et.Weekday().String()[:3], et.Format("15:04"), fmtDur(next.Sub(t)))
}

func fmtDur(d time.Duration) string {
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	if h > 0 {
		return fmt.Sprintf("%dh%dm", h, m)
	}
	return fmt.Sprintf("%dm", m)
}
