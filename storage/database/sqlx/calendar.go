package sqlxrepos

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/esmeraldinha/backend/core"
	"github.com/esmeraldinha/backend/core/calendar"
	"github.com/esmeraldinha/backend/storage/database"
)

// advisory lock namespace of the per-year calendar builds
const yearLockNamespace = 2025

var calendarOrderingColumns = map[string]string{
	"year":         "year",
	"processed_at": "processed_at",
}

type (
	legendRow struct {
		Type        string      `db:"type"`
		Description string      `db:"description"`
		ColorHex    null.String `db:"color_hex"`
	}

	dayRow struct {
		Date   calendar.Date  `db:"date"`
		Year   int            `db:"year"`
		Type   string         `db:"type"`
		Labels types.JSONText `db:"labels"`
	}

	calendarRow struct {
		ID               int            `db:"id"`
		Year             int            `db:"year"`
		Data             types.JSONText `db:"calendar_data"`
		ProcessedAt      time.Time      `db:"processed_at"`
		SourceDocumentID null.String    `db:"source_document_id"`
	}
)

type calendarRepository struct {
	db *sqlx.DB
}

var _ calendar.Repository = (*calendarRepository)(nil) // interface compliance check

func NewCalendarRepository(db *sqlx.DB) *calendarRepository {
	return &calendarRepository{db: db}
}

// getExec returns the caller's executor (a transaction) when it supports sqlx, the DB otherwise.
func (repo calendarRepository) getExec(svcExec []core.DBExecutor) sqlx.ExtContext {
	if len(svcExec) > 0 && svcExec[0] != nil {
		if ext, ok := svcExec[0].(sqlx.ExtContext); ok {
			return ext
		}
	}
	return repo.db
}

// trapNoRowsErr maps psql "no rows" err to calendar.ErrNotFound
func (repo calendarRepository) trapNoRowsErr(err error, msg string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return calendar.ErrNotFound
	}
	return errors.Wrap(err, msg)
}

func (repo calendarRepository) UpsertLegends(ctx context.Context, legends []calendar.LegendItem, exec ...core.DBExecutor) error {
	exe := repo.getExec(exec)
	for _, l := range legends {
		_, err := exe.ExecContext(ctx, `
			INSERT INTO legend (type, description, color_hex) VALUES ($1, $2, $3)
			ON CONFLICT (type) DO UPDATE SET description = EXCLUDED.description, color_hex = EXCLUDED.color_hex`,
			string(l.Type), l.Description, l.ColorHex,
		)
		if err != nil {
			return errors.Wrapf(err, "upserting legend %s", l.Type)
		}
	}
	return nil
}

func (repo calendarRepository) InsertMissingLegends(ctx context.Context, legends []calendar.LegendItem, exec ...core.DBExecutor) (int, error) {
	exe := repo.getExec(exec)
	var inserted int64
	for _, l := range legends {
		res, err := exe.ExecContext(ctx, `
			INSERT INTO legend (type, description, color_hex) VALUES ($1, $2, $3)
			ON CONFLICT (type) DO NOTHING`,
			string(l.Type), l.Description, l.ColorHex,
		)
		if err != nil {
			return 0, errors.Wrapf(err, "inserting legend %s", l.Type)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, errors.Wrap(err, "counting inserted legends")
		}
		inserted += n
	}
	return int(inserted), nil
}

func (repo calendarRepository) unmarshalLegends(rows []legendRow) []calendar.LegendItem {
	legends := make([]calendar.LegendItem, 0, len(rows))
	for _, r := range rows {
		legends = append(legends, calendar.LegendItem{
			Type:        calendar.DayType(r.Type),
			Description: r.Description,
			ColorHex:    r.ColorHex,
		})
	}
	return legends
}

func (repo calendarRepository) QueryLegends(ctx context.Context, dayTypes []calendar.DayType, exec ...core.DBExecutor) ([]calendar.LegendItem, error) {
	if len(dayTypes) == 0 {
		return []calendar.LegendItem{}, nil
	}
	names := make([]string, 0, len(dayTypes))
	for _, dt := range dayTypes {
		names = append(names, string(dt))
	}

	q, args, err := sqlx.In("SELECT type, description, color_hex FROM legend WHERE type IN (?) ORDER BY type", names)
	if err != nil {
		return nil, errors.Wrap(err, "building legends query")
	}
	var rows []legendRow
	if err = sqlx.SelectContext(ctx, repo.getExec(exec), &rows, sqlx.Rebind(sqlx.DOLLAR, q), args...); err != nil {
		return nil, errors.Wrap(err, "querying legends")
	}
	return repo.unmarshalLegends(rows), nil
}

func (repo calendarRepository) QueryAllLegends(ctx context.Context, exec ...core.DBExecutor) ([]calendar.LegendItem, error) {
	var rows []legendRow
	if err := sqlx.SelectContext(ctx, repo.getExec(exec), &rows, "SELECT type, description, color_hex FROM legend ORDER BY type"); err != nil {
		return nil, errors.Wrap(err, "querying legends")
	}
	return repo.unmarshalLegends(rows), nil
}

func (repo calendarRepository) InsertMissingFixtureDays(ctx context.Context, days []calendar.FixtureDay, exec ...core.DBExecutor) (int, error) {
	exe := repo.getExec(exec)
	var inserted int64
	for _, d := range days {
		labels := d.Labels
		if labels == nil {
			labels = []string{}
		}
		b, err := json.Marshal(labels)
		if err != nil {
			return 0, errors.Wrap(err, "encoding labels")
		}
		res, err := exe.ExecContext(ctx, `
			INSERT INTO calendar_day (date, year, type, labels) VALUES ($1, $2, $3, $4)
			ON CONFLICT (date, year) DO NOTHING`,
			d.Date, d.Year, d.Type, types.JSONText(b),
		)
		if err != nil {
			return 0, errors.Wrapf(err, "inserting fixture day %s", d.Date)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, errors.Wrap(err, "counting inserted fixture days")
		}
		inserted += n
	}
	return int(inserted), nil
}

func (repo calendarRepository) QueryFixtureDays(ctx context.Context, year int, exec ...core.DBExecutor) ([]calendar.FixtureDay, error) {
	var rows []dayRow
	err := sqlx.SelectContext(ctx, repo.getExec(exec), &rows,
		"SELECT date, year, type, labels FROM calendar_day WHERE year = $1 ORDER BY date", year)
	if err != nil {
		return nil, errors.Wrap(err, "querying fixture days")
	}

	days := make([]calendar.FixtureDay, 0, len(rows))
	for _, r := range rows {
		labels := []string{}
		if len(r.Labels) > 0 {
			if err = r.Labels.Unmarshal(&labels); err != nil {
				return nil, errors.Wrapf(err, "decoding labels of %s", r.Date)
			}
		}
		days = append(days, calendar.FixtureDay{Date: r.Date, Year: r.Year, Type: r.Type, Labels: labels})
	}
	return days, nil
}

func (repo calendarRepository) unmarshalCalendar(r calendarRow) (calendar.AcademicCalendar, error) {
	cal := calendar.AcademicCalendar{
		ID:               r.ID,
		Year:             r.Year,
		ProcessedAt:      r.ProcessedAt.UTC(),
		SourceDocumentID: r.SourceDocumentID,
	}
	if err := r.Data.Unmarshal(&cal.Data); err != nil {
		return calendar.AcademicCalendar{}, errors.Wrapf(err, "decoding calendar %d", r.Year)
	}
	return cal, nil
}

func (repo calendarRepository) UpsertCalendar(ctx context.Context, cal calendar.AcademicCalendar, exec ...core.DBExecutor) (calendar.AcademicCalendar, error) {
	b, err := json.Marshal(cal.Data)
	if err != nil {
		return calendar.AcademicCalendar{}, errors.Wrap(err, "encoding calendar data")
	}
	err = sqlx.GetContext(ctx, repo.getExec(exec), &cal.ID, `
		INSERT INTO academic_calendar (year, calendar_data, processed_at, source_document_id)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (year) DO UPDATE SET
			calendar_data = EXCLUDED.calendar_data,
			processed_at = EXCLUDED.processed_at,
			source_document_id = EXCLUDED.source_document_id
		RETURNING id`,
		cal.Year, types.JSONText(b), cal.ProcessedAt.UTC(), cal.SourceDocumentID,
	)
	if err != nil {
		return calendar.AcademicCalendar{}, errors.Wrapf(err, "upserting calendar %d", cal.Year)
	}
	return cal, nil
}

func (repo calendarRepository) GetCalendar(ctx context.Context, year int, exec ...core.DBExecutor) (calendar.AcademicCalendar, error) {
	var row calendarRow
	err := sqlx.GetContext(ctx, repo.getExec(exec), &row, `
		SELECT id, year, calendar_data, processed_at, source_document_id
		FROM academic_calendar WHERE year = $1`, year)
	if err != nil {
		return calendar.AcademicCalendar{}, repo.trapNoRowsErr(err, "getting calendar")
	}
	return repo.unmarshalCalendar(row)
}

func (repo calendarRepository) QueryCalendars(ctx context.Context, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]calendar.AcademicCalendar, error) {
	q := "SELECT id, year, calendar_data, processed_at, source_document_id FROM academic_calendar"

	orderList := make([]string, 0, len(ordering)+1)
	for _, ord := range ordering {
		col, ok := calendarOrderingColumns[ord.Field]
		if !ok {
			return nil, errors.Errorf("unknown ordering field %q", ord.Field)
		}
		orderList = append(orderList, core.DBOrdering{Field: col, Ascending: ord.Ascending}.String())
	}
	orderList = append(orderList, "year DESC")
	q += " ORDER BY " + strings.Join(orderList, ", ")

	var rows []calendarRow
	if err := sqlx.SelectContext(ctx, repo.getExec(exec), &rows, q); err != nil {
		return nil, errors.Wrap(err, "querying calendars")
	}
	cals := make([]calendar.AcademicCalendar, 0, len(rows))
	for _, r := range rows {
		cal, err := repo.unmarshalCalendar(r)
		if err != nil {
			return nil, err
		}
		cals = append(cals, cal)
	}
	return cals, nil
}

func (repo calendarRepository) DeleteCalendar(ctx context.Context, year int, exec ...core.DBExecutor) error {
	res, err := repo.getExec(exec).ExecContext(ctx, "DELETE FROM academic_calendar WHERE year = $1", year)
	if err != nil {
		return errors.Wrapf(err, "deleting calendar %d", year)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "counting deleted calendars")
	}
	if n == 0 {
		return calendar.ErrNotFound
	}
	return nil
}

func (repo calendarRepository) SaveSourceDocument(ctx context.Context, doc calendar.SourceDocument, exec ...core.DBExecutor) (calendar.SourceDocument, error) {
	_, err := repo.getExec(exec).ExecContext(ctx, `
		INSERT INTO source_document (id, year, format, content, uploaded_at) VALUES ($1, $2, $3, $4, $5)`,
		doc.ID, doc.Year, doc.Format, doc.Content, doc.UploadedAt.UTC(),
	)
	if err != nil {
		return calendar.SourceDocument{}, errors.Wrap(err, "inserting source document")
	}
	return doc, nil
}

// RunInYearTx runs `fn` in a transaction holding the advisory lock of `year` until commit or rollback.
func (repo calendarRepository) RunInYearTx(ctx context.Context, year int, fn func(exec core.DBExecutor) error) error {
	return database.Transact(ctx, repo.db, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, "SELECT pg_advisory_xact_lock($1, $2)", yearLockNamespace, year); err != nil {
			return errors.Wrapf(err, "locking year %d", year)
		}
		return fn(tx)
	})
}
