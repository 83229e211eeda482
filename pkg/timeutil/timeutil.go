// Package timeutil holds the day arithmetic shared by the segment and
// targeting packages. Calendar questions (which date, which hour, which
// month) are answered in the business timezone; elapsed-day questions are
// answered on instants and are timezone independent.
package timeutil

import "time"

const DefaultTimezone = "Asia/Seoul"

// kstOffset is used when the tz database is missing from the host image.
const kstOffset = 9 * 60 * 60

func LoadLocation(name string) *time.Location {
	if name == "" {
		name = DefaultTimezone
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		if name == DefaultTimezone {
			return time.FixedZone("KST", kstOffset)
		}
		return time.UTC
	}
	return loc
}

func BeginningOfDay(t time.Time, loc *time.Location) time.Time {
	year, month, day := t.In(loc).Date()
	return time.Date(year, month, day, 0, 0, 0, 0, loc)
}

// ElapsedDays floors the elapsed time between two instants to whole days:
// 23h59m is 0 days. Negative spans floor towards minus infinity.
func ElapsedDays(from, to time.Time) int {
	d := to.Sub(from)
	days := int(d / (24 * time.Hour))
	if d < 0 && d%(24*time.Hour) != 0 {
		days--
	}
	return days
}

// CalendarDaysBetween counts date boundaries crossed between two instants
// in loc, ignoring the time of day.
func CalendarDaysBetween(start, end time.Time, loc *time.Location) int {
	s := BeginningOfDay(start, loc)
	e := BeginningOfDay(end, loc)
	return int(e.Sub(s).Round(time.Hour).Hours() / 24)
}

// InclusiveMonthSpan counts calendar months touched from start to end,
// e.g. Jan 31 -> Feb 1 is 2.
func InclusiveMonthSpan(start, end time.Time, loc *time.Location) int {
	s := start.In(loc)
	e := end.In(loc)
	months := (e.Year()-s.Year())*12 + int(e.Month()) - int(s.Month()) + 1
	if months < 1 {
		return 1
	}
	return months
}
