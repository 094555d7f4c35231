package calendar

import "time"

// GenerateAllDays returns one Day per date of `year`, Jan 1 through Dec 31, typed `defaultType`.
// An unrecognized default falls back to NonSchoolDay.
func GenerateAllDays(year int, defaultType string) []Day {
	dt, err := ParseDayType(defaultType)
	if err != nil {
		dt = NonSchoolDay
	}

	first := NewDate(year, time.January, 1)
	n := daysIn(year)
	days := make([]Day, 0, n)
	for i := 0; i < n; i++ {
		days = append(days, Day{Date: first.AddDays(i), Type: dt, Labels: []string{}})
	}
	return days
}

func daysIn(year int) int {
	if isLeap(year) {
		return 366
	}
	return 365
}

func isLeap(year int) bool {
	return year%4 == 0 && (year%100 != 0 || year%400 == 0)
}
