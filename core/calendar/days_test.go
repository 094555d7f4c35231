package calendar

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateAllDays(t *testing.T) {
	tests := []struct {
		name        string
		year        int
		defaultType string
		wantLen     int
		wantType    DayType
	}{
		{name: "common year", year: 2025, defaultType: "letivo", wantLen: 365, wantType: SchoolDay},
		{name: "leap year", year: 2024, defaultType: "nao_letivo", wantLen: 366, wantType: NonSchoolDay},
		{name: "century, not leap", year: 1900, defaultType: "ferias", wantLen: 365, wantType: Vacation},
		{name: "400 years, leap", year: 2000, defaultType: "evento", wantLen: 366, wantType: Event},
		{name: "unknown default", year: 2025, defaultType: "whatever", wantLen: 365, wantType: NonSchoolDay},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			days := GenerateAllDays(tt.year, tt.defaultType)
			require.Len(t, days, tt.wantLen)
			assert.Equal(t, NewDate(tt.year, time.January, 1), days[0].Date)
			assert.Equal(t, NewDate(tt.year, time.December, 31), days[len(days)-1].Date)
			for i, d := range days {
				assert.Equal(t, tt.wantType, d.Type)
				assert.NotNil(t, d.Labels)
				assert.Nil(t, d.Stage)
				if i > 0 {
					assert.Equal(t, days[i-1].Date.AddDays(1), d.Date)
				}
			}
		})
	}
}

func TestComputeMonthlyMeta(t *testing.T) {
	days := GenerateAllDays(2025, "nao_letivo")
	// February: 3 school days, 1 event, 1 planning, 1 holiday
	days[31].Type = SchoolDay
	days[32].Type = SchoolDay
	days[33].Type = SchoolDay
	days[34].Type = Event
	days[35].Type = Planning
	days[36].Type = NationalHoliday

	meta := ComputeMonthlyMeta(days)
	require.Len(t, meta, 12)
	assert.Equal(t, MonthlyMeta{Month: 1, SchoolDays: 0}, meta[0])
	assert.Equal(t, MonthlyMeta{Month: 2, SchoolDays: 5}, meta[1])

	t.Run("only months present", func(t *testing.T) {
		meta := ComputeMonthlyMeta([]Day{
			{Date: NewDate(2025, time.March, 3), Type: SchoolDay},
			{Date: NewDate(2025, time.March, 4), Type: RecoveryEvaluation},
			{Date: NewDate(2025, time.May, 1), Type: NationalHoliday},
		})
		assert.Equal(t, []MonthlyMeta{{Month: 3, SchoolDays: 2}, {Month: 5, SchoolDays: 0}}, meta)
	})

	t.Run("no days", func(t *testing.T) {
		assert.Empty(t, ComputeMonthlyMeta(nil))
	})
}

func TestNationalHolidays(t *testing.T) {
	tests := []struct {
		year   int
		easter Date
		count  int
	}{
		{year: 2023, easter: NewDate(2023, time.April, 9), count: 13},
		{year: 2024, easter: NewDate(2024, time.March, 31), count: 14},
		{year: 2025, easter: NewDate(2025, time.April, 20), count: 14},
		{year: 2026, easter: NewDate(2026, time.April, 5), count: 14},
	}
	for _, tt := range tests {
		t.Run(tt.easter.String(), func(t *testing.T) {
			assert.Equal(t, tt.easter, calculateEaster(tt.year))

			days := NationalHolidays(tt.year)
			require.Len(t, days, tt.count)
			byDate := make(map[Date]FixtureDay, len(days))
			for i, d := range days {
				assert.Equal(t, tt.year, d.Year)
				assert.Len(t, d.Labels, 1)
				if i > 0 {
					assert.True(t, days[i-1].Date.Before(d.Date))
				}
				byDate[d.Date] = d
			}
			assert.Equal(t, string(NationalHoliday), byDate[tt.easter.AddDays(-2)].Type)
			assert.Equal(t, string(OptionalDay), byDate[tt.easter.AddDays(-47)].Type)
			assert.Equal(t, []string{"Natal"}, byDate[NewDate(tt.year, time.December, 25)].Labels)
		})
	}
}

func TestNationalHolidays_matchBundledFixtures(t *testing.T) {
	want := map[string]string{
		"2025-03-04": "ponto_facultativo",
		"2025-04-18": "feriado_nacional",
		"2025-06-19": "ponto_facultativo",
		"2025-11-20": "feriado_nacional",
	}
	got := make(map[string]string)
	for _, d := range NationalHolidays(2025) {
		got[d.Date.String()] = d.Type
	}
	for date, typ := range want {
		assert.Equal(t, typ, got[date], date)
	}
}
