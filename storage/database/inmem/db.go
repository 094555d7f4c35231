package inmemdb

import (
	"sync"

	"github.com/esmeraldinha/backend/core/calendar"
)

type (
	DB struct {
		legend   *legendTable
		day      *dayTable
		calendar *calendarTable
		source   *sourceTable

		yearLocksMu sync.Mutex
		yearLocks   map[int]*sync.Mutex
	}

	legendTable struct {
		sync.RWMutex
		table map[calendar.DayType]calendar.LegendItem
	}

	dayKey struct {
		date calendar.Date
		year int
	}

	dayTable struct {
		sync.RWMutex
		table map[dayKey]calendar.FixtureDay
	}

	calendarTable struct {
		sync.RWMutex
		pkCount int
		table   map[int]calendar.AcademicCalendar // {year: calendar}
	}

	sourceTable struct {
		sync.RWMutex
		table map[string]calendar.SourceDocument
	}
)

func Open() *DB {
	return &DB{
		legend:    &legendTable{table: make(map[calendar.DayType]calendar.LegendItem)},
		day:       &dayTable{table: make(map[dayKey]calendar.FixtureDay)},
		calendar:  &calendarTable{table: make(map[int]calendar.AcademicCalendar)},
		source:    &sourceTable{table: make(map[string]calendar.SourceDocument)},
		yearLocks: make(map[int]*sync.Mutex),
	}
}

func (db *DB) yearLock(year int) *sync.Mutex {
	db.yearLocksMu.Lock()
	defer db.yearLocksMu.Unlock()
	mu, ok := db.yearLocks[year]
	if !ok {
		mu = new(sync.Mutex)
		db.yearLocks[year] = mu
	}
	return mu
}
