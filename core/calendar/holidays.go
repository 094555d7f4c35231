package calendar

import (
	"sort"
	"time"
)

type holiday struct {
	date Date
	typ  DayType
	name string
}

// NationalHolidays returns the Brazilian national holidays of `year` and the
// optional days (ponto facultativo) tied to Easter, as fixture days sorted by date.
func NationalHolidays(year int) []FixtureDay {
	fixed := func(m time.Month, d int, name string) holiday {
		return holiday{date: NewDate(year, m, d), typ: NationalHoliday, name: name}
	}
	hs := []holiday{
		fixed(time.January, 1, "Confraternização Universal"),
		fixed(time.April, 21, "Tiradentes"),
		fixed(time.May, 1, "Dia do Trabalho"),
		fixed(time.September, 7, "Independência do Brasil"),
		fixed(time.October, 12, "Nossa Senhora Aparecida"),
		fixed(time.November, 2, "Finados"),
		fixed(time.November, 15, "Proclamação da República"),
		fixed(time.December, 25, "Natal"),
	}
	// national holiday since law 14.759/2023
	if year >= 2024 {
		hs = append(hs, fixed(time.November, 20, "Dia Nacional de Zumbi e da Consciência Negra"))
	}

	easter := calculateEaster(year)
	hs = append(hs,
		holiday{date: easter.AddDays(-48), typ: OptionalDay, name: "Carnaval"},
		holiday{date: easter.AddDays(-47), typ: OptionalDay, name: "Carnaval"},
		holiday{date: easter.AddDays(-46), typ: OptionalDay, name: "Quarta-feira de Cinzas"},
		holiday{date: easter.AddDays(-2), typ: NationalHoliday, name: "Paixão de Cristo"},
		holiday{date: easter.AddDays(60), typ: OptionalDay, name: "Corpus Christi"},
	)

	sort.Slice(hs, func(i, j int) bool { return hs[i].date.Before(hs[j].date) })

	days := make([]FixtureDay, 0, len(hs))
	for _, h := range hs {
		days = append(days, FixtureDay{Date: h.date, Year: year, Type: string(h.typ), Labels: []string{h.name}})
	}
	return days
}

// calculateEaster calculates Easter Sunday using the Meeus/Jones/Butcher algorithm
func calculateEaster(year int) Date {
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
	day := ((h + l - 7*m + 114) % 31) + 1

	return NewDate(year, time.Month(month), day)
}
