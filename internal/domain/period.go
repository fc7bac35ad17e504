package domain

import "time"

// InterestInterval is the granularity at which interest periods are cut.
type InterestInterval string

const (
	IntervalEndOfDay   InterestInterval = "end_of_day"
	IntervalEndOfMonth InterestInterval = "end_of_month"
)

// PeriodFrom returns the period containing start, ending at the interval
// boundary.
func (i InterestInterval) PeriodFrom(start time.Time) Period {
	return Period{Interval: i, Start: start, End: i.endDate(start)}
}

func (i InterestInterval) endDate(ts time.Time) time.Time {
	ts = ts.UTC()
	switch i {
	case IntervalEndOfMonth:
		firstOfMonth := time.Date(ts.Year(), ts.Month(), 1, 0, 0, 0, 0, time.UTC)
		return firstOfMonth.AddDate(0, 1, 0).Add(-time.Second)
	default:
		return time.Date(ts.Year(), ts.Month(), ts.Day(), 23, 59, 59, 0, time.UTC)
	}
}

// Period is one bounded interest window, inclusive of both ends.
type Period struct {
	Interval InterestInterval `json:"interval"`
	Start    time.Time        `json:"start"`
	End      time.Time        `json:"end"`
}

// Next returns the period starting one second after this one ends.
func (p Period) Next() Period {
	return p.Interval.PeriodFrom(p.End.Add(time.Second))
}

// Truncate clips the period's end to latestEnd. Returns nil when the period
// starts after latestEnd, i.e. nothing of it remains.
func (p Period) Truncate(latestEnd time.Time) *Period {
	if p.Start.After(latestEnd) {
		return nil
	}
	if p.End.After(latestEnd) {
		p.End = latestEnd
	}
	return &p
}

// Days counts the calendar days the period touches, inclusive. An end-of-day
// period always counts one day.
func (p Period) Days() int {
	start := p.Start.UTC()
	end := p.End.UTC()
	startDay := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, time.UTC)
	endDay := time.Date(end.Year(), end.Month(), end.Day(), 0, 0, 0, 0, time.UTC)
	return int(endDay.Sub(startDay).Hours()/24) + 1
}
