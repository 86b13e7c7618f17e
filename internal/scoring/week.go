package scoring

import "time"

// WeekBounds returns the ISO Monday 00:00 opening the week containing t and
// the following Monday 00:00 (exclusive), in t's location.
func WeekBounds(t time.Time) (time.Time, time.Time) {
	y, m, d := t.Date()
	day := time.Date(y, m, d, 0, 0, 0, 0, t.Location())

	wd := int(day.Weekday())
	if wd == 0 { // Sunday closes the ISO week
		wd = 7
	}
	start := day.AddDate(0, 0, 1-wd)
	return start, start.AddDate(0, 0, 7)
}

// MonthOf returns the 1-12 calendar month of t as club records key on it.
func MonthOf(t time.Time) int {
	return int(t.Month())
}
