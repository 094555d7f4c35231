package calendar

// ComputeMonthlyMeta counts the school days of each month present in `days`.
func ComputeMonthlyMeta(days []Day) []MonthlyMeta {
	var counts [12]int
	var seen [12]bool
	for _, d := range days {
		idx := int(d.Date.Month) - 1
		if idx < 0 || idx > 11 {
			continue
		}
		seen[idx] = true
		if d.Type.IsSchoolDay() {
			counts[idx]++
		}
	}

	meta := make([]MonthlyMeta, 0, 12)
	for i := range counts {
		if seen[i] {
			meta = append(meta, MonthlyMeta{Month: i + 1, SchoolDays: counts[i]})
		}
	}
	return meta
}
