package inmemdb

import (
	"context"
	"sort"

	"github.com/esmeraldinha/backend/core"
	"github.com/esmeraldinha/backend/core/calendar"
)

type calendarRepository struct {
	db *DB
}

var _ calendar.Repository = (*calendarRepository)(nil) // interface compliance check

func NewCalendarRepository(db *DB) *calendarRepository {
	return &calendarRepository{db: db}
}

func cloneData(data calendar.CalendarData) calendar.CalendarData {
	out := data
	out.Stages = append([]calendar.Stage{}, data.Stages...)
	out.Legend = append([]calendar.LegendItem{}, data.Legend...)
	if data.MonthlyMeta != nil {
		out.MonthlyMeta = append([]calendar.MonthlyMeta{}, data.MonthlyMeta...)
	}
	out.Days = make([]calendar.Day, len(data.Days))
	for i, d := range data.Days {
		d.Labels = append([]string{}, d.Labels...)
		out.Days[i] = d
	}
	return out
}

func (repo *calendarRepository) UpsertLegends(_ context.Context, legends []calendar.LegendItem, _ ...core.DBExecutor) error {
	t := repo.db.legend
	t.Lock()
	defer t.Unlock()
	for _, l := range legends {
		t.table[l.Type] = l
	}
	return nil
}

func (repo *calendarRepository) InsertMissingLegends(_ context.Context, legends []calendar.LegendItem, _ ...core.DBExecutor) (int, error) {
	t := repo.db.legend
	t.Lock()
	defer t.Unlock()

	var inserted int
	for _, l := range legends {
		if _, ok := t.table[l.Type]; ok {
			continue
		}
		t.table[l.Type] = l
		inserted++
	}
	return inserted, nil
}

func (repo *calendarRepository) QueryLegends(_ context.Context, types []calendar.DayType, _ ...core.DBExecutor) ([]calendar.LegendItem, error) {
	t := repo.db.legend
	t.RLock()
	defer t.RUnlock()

	legends := make([]calendar.LegendItem, 0, len(types))
	for _, dt := range types {
		if l, ok := t.table[dt]; ok {
			legends = append(legends, l)
		}
	}
	sort.Slice(legends, func(i, j int) bool { return legends[i].Type < legends[j].Type })
	return legends, nil
}

func (repo *calendarRepository) QueryAllLegends(_ context.Context, _ ...core.DBExecutor) ([]calendar.LegendItem, error) {
	t := repo.db.legend
	t.RLock()
	defer t.RUnlock()

	legends := make([]calendar.LegendItem, 0, len(t.table))
	for _, l := range t.table {
		legends = append(legends, l)
	}
	sort.Slice(legends, func(i, j int) bool { return legends[i].Type < legends[j].Type })
	return legends, nil
}

func (repo *calendarRepository) InsertMissingFixtureDays(_ context.Context, days []calendar.FixtureDay, _ ...core.DBExecutor) (int, error) {
	t := repo.db.day
	t.Lock()
	defer t.Unlock()

	var inserted int
	for _, d := range days {
		key := dayKey{date: d.Date, year: d.Year}
		if _, ok := t.table[key]; ok {
			continue
		}
		d.Labels = append([]string{}, d.Labels...)
		t.table[key] = d
		inserted++
	}
	return inserted, nil
}

func (repo *calendarRepository) QueryFixtureDays(_ context.Context, year int, _ ...core.DBExecutor) ([]calendar.FixtureDay, error) {
	t := repo.db.day
	t.RLock()
	defer t.RUnlock()

	days := make([]calendar.FixtureDay, 0)
	for key, d := range t.table {
		if key.year == year {
			d.Labels = append([]string{}, d.Labels...)
			days = append(days, d)
		}
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Date.Before(days[j].Date) })
	return days, nil
}

// SetFixtureDay stores `day`, replacing any stored fixture of the same (date, year).
func (repo *calendarRepository) SetFixtureDay(day calendar.FixtureDay) {
	t := repo.db.day
	t.Lock()
	defer t.Unlock()
	t.table[dayKey{date: day.Date, year: day.Year}] = day
}

func (repo *calendarRepository) UpsertCalendar(_ context.Context, cal calendar.AcademicCalendar, _ ...core.DBExecutor) (calendar.AcademicCalendar, error) {
	t := repo.db.calendar
	t.Lock()
	defer t.Unlock()

	if stored, ok := t.table[cal.Year]; ok {
		cal.ID = stored.ID
	} else {
		t.pkCount++
		cal.ID = t.pkCount
	}
	cal.Data = cloneData(cal.Data)
	t.table[cal.Year] = cal
	return cal, nil
}

func (repo *calendarRepository) GetCalendar(_ context.Context, year int, _ ...core.DBExecutor) (calendar.AcademicCalendar, error) {
	t := repo.db.calendar
	t.RLock()
	defer t.RUnlock()

	cal, ok := t.table[year]
	if !ok {
		return calendar.AcademicCalendar{}, calendar.ErrNotFound
	}
	cal.Data = cloneData(cal.Data)
	return cal, nil
}

func (repo *calendarRepository) QueryCalendars(_ context.Context, ordering []core.DBOrdering, _ ...core.DBExecutor) ([]calendar.AcademicCalendar, error) {
	t := repo.db.calendar
	t.RLock()
	defer t.RUnlock()

	cals := make([]calendar.AcademicCalendar, 0, len(t.table))
	for _, c := range t.table {
		c.Data = cloneData(c.Data)
		cals = append(cals, c)
	}
	sort.SliceStable(cals, func(i, j int) bool { return less(cals[i], cals[j], ordering) })
	return cals, nil
}

// less compares by each ordering in turn, falling back to year descending.
func less(a, b calendar.AcademicCalendar, ordering []core.DBOrdering) bool {
	for _, ord := range ordering {
		var cmp int
		switch ord.Field {
		case "year":
			cmp = a.Year - b.Year
		case "processed_at":
			switch {
			case a.ProcessedAt.Before(b.ProcessedAt):
				cmp = -1
			case a.ProcessedAt.After(b.ProcessedAt):
				cmp = 1
			}
		}
		if cmp != 0 {
			return (cmp < 0) == ord.Ascending
		}
	}
	return a.Year > b.Year
}

func (repo *calendarRepository) DeleteCalendar(_ context.Context, year int, _ ...core.DBExecutor) error {
	t := repo.db.calendar
	t.Lock()
	defer t.Unlock()

	if _, ok := t.table[year]; !ok {
		return calendar.ErrNotFound
	}
	delete(t.table, year)
	return nil
}

func (repo *calendarRepository) SaveSourceDocument(_ context.Context, doc calendar.SourceDocument, _ ...core.DBExecutor) (calendar.SourceDocument, error) {
	t := repo.db.source
	t.Lock()
	defer t.Unlock()

	doc.Content = append([]byte(nil), doc.Content...)
	t.table[doc.ID] = doc
	return doc, nil
}

// RunInYearTx serializes `fn` per year. Writes made by `fn` are not rolled back on error.
func (repo *calendarRepository) RunInYearTx(_ context.Context, year int, fn func(exec core.DBExecutor) error) error {
	mu := repo.db.yearLock(year)
	mu.Lock()
	defer mu.Unlock()
	return fn(nil)
}
