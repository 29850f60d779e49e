// Package quota implements the rolling hour/day/month counters shared by spend and rate tracking.
//
// A Window is a plain value. Callers load it under a lock (row lock, mutex or script), run Apply and
// persist the returned value in the same atomic unit, so a reset is never observable without the
// increment that caused it.
package quota

import (
	"fmt"
	"time"
)

type Period string

const (
	Hourly  Period = "hourly"
	Daily   Period = "daily"
	Monthly Period = "monthly"
)

const (
	hourLength = time.Hour
	dayLength  = 24 * time.Hour
)

// Window holds the counters of one tracked subject.
type Window struct {
	Hourly         int64     `json:"hourly"`
	Daily          int64     `json:"daily"`
	Monthly        int64     `json:"monthly"`
	LastHourReset  time.Time `json:"last_hour_reset"`
	LastDayReset   time.Time `json:"last_day_reset"`
	LastMonthReset time.Time `json:"last_month_reset"`
}

// Ceilings bound a Window. A ceiling <= 0 leaves that period unchecked.
type Ceilings struct {
	Hourly  int64
	Daily   int64
	Monthly int64
}

// Rolled reports which periods were reset by Roll.
type Rolled struct {
	Hour  bool
	Day   bool
	Month bool
}

// Any reports whether any period was reset.
func (r Rolled) Any() bool {
	return r.Hour || r.Day || r.Month
}

// Exceeded is returned by Apply when an active ceiling would be crossed.
type Exceeded struct {
	Period  Period
	Ceiling int64
	Current int64
	ResetAt time.Time
}

func (e *Exceeded) Error() string {
	return fmt.Sprintf("%s ceiling %d exceeded (current %d)", e.Period, e.Ceiling, e.Current)
}

// MonthStart returns the first instant of t's calendar month in UTC.
func MonthStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// Roll returns a copy of w with every lapsed period zeroed and its reset stamp moved to now.
// A zero Window counts as lapsed in every period.
func (w Window) Roll(now time.Time) (Window, Rolled) {
	var r Rolled
	if !now.Before(w.LastHourReset.Add(hourLength)) {
		w.Hourly = 0
		w.LastHourReset = now
		r.Hour = true
	}
	if !now.Before(w.LastDayReset.Add(dayLength)) {
		w.Daily = 0
		w.LastDayReset = now
		r.Day = true
	}
	if w.LastMonthReset.Before(MonthStart(now)) {
		w.Monthly = 0
		w.LastMonthReset = now
		r.Month = true
	}
	return w, r
}

// ResetAt returns the instant period p of w lapses.
func (w Window) ResetAt(p Period) time.Time {
	switch p {
	case Hourly:
		return w.LastHourReset.Add(hourLength)
	case Daily:
		return w.LastDayReset.Add(dayLength)
	default:
		return MonthStart(w.LastMonthReset).AddDate(0, 1, 0)
	}
}

// Check reports the first period, hourly first, whose ceiling amount would cross.
func (w Window) Check(amount int64, c Ceilings) *Exceeded {
	checks := []struct {
		period  Period
		current int64
		ceiling int64
	}{
		{Hourly, w.Hourly, c.Hourly},
		{Daily, w.Daily, c.Daily},
		{Monthly, w.Monthly, c.Monthly},
	}
	for _, ch := range checks {
		if ch.ceiling > 0 && ch.current+amount > ch.ceiling {
			return &Exceeded{Period: ch.period, Ceiling: ch.ceiling, Current: ch.current, ResetAt: w.ResetAt(ch.period)}
		}
	}
	return nil
}

// Add increments every counter by amount.
func (w *Window) Add(amount int64) {
	w.Hourly += amount
	w.Daily += amount
	w.Monthly += amount
}

// Apply rolls w to now, checks amount against c and returns the incremented window.
// On rejection the original w is returned untouched together with an *Exceeded error.
func Apply(w Window, now time.Time, amount int64, c Ceilings) (Window, Rolled, error) {
	next, rolled := w.Roll(now)
	if ex := next.Check(amount, c); ex != nil {
		return w, Rolled{}, ex
	}
	next.Add(amount)
	return next, rolled, nil
}
