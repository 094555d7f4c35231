package calendar

import (
	"bytes"
	"context"
	"fmt"
	"net/mail"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/esmeraldinha/backend/core"
)

type (
	Repository interface {
		UpsertLegends(ctx context.Context, legends []LegendItem, exec ...core.DBExecutor) error
		// InsertMissingLegends inserts the legends whose type is not stored yet.
		InsertMissingLegends(ctx context.Context, legends []LegendItem, exec ...core.DBExecutor) (int, error)
		// QueryLegends returns the stored legends of `types`, ordered by type.
		QueryLegends(ctx context.Context, types []DayType, exec ...core.DBExecutor) ([]LegendItem, error)
		QueryAllLegends(ctx context.Context, exec ...core.DBExecutor) ([]LegendItem, error)

		// InsertMissingFixtureDays inserts the days whose (date, year) is not stored yet and
		// returns how many were inserted.
		InsertMissingFixtureDays(ctx context.Context, days []FixtureDay, exec ...core.DBExecutor) (int, error)
		QueryFixtureDays(ctx context.Context, year int, exec ...core.DBExecutor) ([]FixtureDay, error)

		UpsertCalendar(ctx context.Context, cal AcademicCalendar, exec ...core.DBExecutor) (AcademicCalendar, error)
		GetCalendar(ctx context.Context, year int, exec ...core.DBExecutor) (AcademicCalendar, error)
		QueryCalendars(ctx context.Context, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]AcademicCalendar, error)
		DeleteCalendar(ctx context.Context, year int, exec ...core.DBExecutor) error

		SaveSourceDocument(ctx context.Context, doc SourceDocument, exec ...core.DBExecutor) (SourceDocument, error)

		// RunInYearTx runs `fn` in a single transaction, holding an exclusive lock on `year`.
		RunInYearTx(ctx context.Context, year int, fn func(exec core.DBExecutor) error) error
	}

	Service struct {
		repo      Repository
		processor *Processor
		fixtures  FixtureSource
		mailSvc   core.EmailService
		logger    core.Logger
		appName   string
		notify    []mail.Address
		now       func() time.Time
	}
)

func NewService(
	repo Repository,
	processor *Processor,
	fixtures FixtureSource,
	mailSvc core.EmailService,
	logger core.Logger,
	conf *core.Config,
) *Service {
	notify := make([]mail.Address, 0, len(conf.Calendar.NotifyEmails))
	for _, e := range conf.Calendar.NotifyEmails {
		addr, err := mail.ParseAddress(e)
		if err != nil {
			logger.Warn(fmt.Sprintf("ignoring calendar notify email %q: %v", e, err))
			continue
		}
		notify = append(notify, *addr)
	}
	return &Service{
		repo:      repo,
		processor: processor,
		fixtures:  fixtures,
		mailSvc:   mailSvc,
		logger:    logger,
		appName:   conf.AppName,
		notify:    notify,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// build loads the fixtures of `year`, merges and stores the snapshot, all under the year lock.
func (svc *Service) build(
	ctx context.Context,
	year int,
	defaultType string,
	partial CalendarData,
	source *SourceDocument,
) (AcademicCalendar, error) {
	var cal AcademicCalendar
	err := svc.repo.RunInYearTx(ctx, year, func(exec core.DBExecutor) error {
		if err := svc.EnsureFixturesLoaded(ctx, year, exec); err != nil {
			return err
		}
		data, err := svc.BuildResult(ctx, year, defaultType, partial.Days, partial.Stages, partial.MonthlyMeta, exec)
		if err != nil {
			return err
		}

		cal = AcademicCalendar{Year: year, Data: data, ProcessedAt: svc.now()}
		if source != nil {
			doc, err := svc.repo.SaveSourceDocument(ctx, *source, exec)
			if err != nil {
				return errors.Wrap(err, "saving source document")
			}
			cal.SourceDocumentID = null.StringFrom(doc.ID)
		}

		cal, err = svc.repo.UpsertCalendar(ctx, cal, exec)
		return errors.Wrap(err, "upserting calendar")
	})
	if err != nil {
		return AcademicCalendar{}, err
	}
	return cal, nil
}

// Create merges the provided days and stages with the fixtures and stores the result.
func (svc *Service) Create(ctx context.Context, nc NewCalendar) (AcademicCalendar, error) {
	var fields []core.FieldError
	for i, d := range nc.Days {
		if d.Date.Year != nc.Year {
			fields = append(fields, core.FieldError{
				Field: fmt.Sprintf("days[%d].date", i),
				Error: fmt.Sprintf("date %s is not in %d", d.Date, nc.Year),
			})
		}
	}
	if len(fields) > 0 {
		return AcademicCalendar{}, core.NewValidationError(errors.New("days outside of the calendar year"), fields...)
	}

	return svc.build(ctx, nc.Year, nc.DefaultLegendType, CalendarData{
		Stages:      nc.Stages,
		Days:        nc.Days,
		MonthlyMeta: nc.MonthlyMeta,
	}, nil)
}

// Initialize stores a calendar made only of fixture and default days.
func (svc *Service) Initialize(ctx context.Context, ic InitializeCalendar) (AcademicCalendar, error) {
	return svc.build(ctx, ic.Year, ic.DefaultLegendType, CalendarData{}, nil)
}

// ProcessPDF extracts the calendar document, merges it with the fixtures of its year and stores
// the result along with the document.
func (svc *Service) ProcessPDF(ctx context.Context, req ProcessRequest) (AcademicCalendar, error) {
	partial, err := svc.processor.Process(ctx, req.Content)
	if err != nil {
		return AcademicCalendar{}, err
	}

	source := &SourceDocument{
		ID:         uuid.New().String(),
		Year:       partial.Year,
		Format:     strings.TrimPrefix(strings.ToLower(filepath.Ext(req.Filename)), "."),
		Content:    req.Content,
		UploadedAt: svc.now(),
	}
	if source.Format == "" {
		source.Format = "pdf"
	}

	cal, err := svc.build(ctx, partial.Year, req.DefaultLegendType, partial, source)
	if err != nil {
		return AcademicCalendar{}, err
	}

	svc.notifyProcessed(cal)
	return cal, nil
}

func (svc *Service) notifyProcessed(cal AcademicCalendar) {
	if len(svc.notify) == 0 {
		return
	}

	summary := cal.Summary()
	msg := &core.EmailMessage{
		To:           svc.notify,
		Subject:      fmt.Sprintf("Calendário letivo %d processado", cal.Year),
		Categories:   []string{"calendar_processed", strconv.Itoa(cal.Year)},
		TemplateName: "calendar_processed",
		TemplateData: map[string]interface{}{
			"Year":        cal.Year,
			"Stages":      cal.Data.Stages,
			"SchoolDays":  summary.SchoolDays,
			"ProcessedAt": cal.ProcessedAt.Format(time.RFC1123),
		},
	}

	var ics bytes.Buffer
	if err := WriteICS(&ics, cal.Data, svc.appName, svc.now()); err != nil {
		svc.logger.Error(fmt.Sprintf("exporting calendar %d: %v", cal.Year, err), err)
	} else if err = msg.Attach(&ics, fmt.Sprintf("calendario_%d.ics", cal.Year), "text/calendar"); err != nil {
		svc.logger.Error(fmt.Sprintf("attaching calendar %d: %v", cal.Year, err), err)
	}
	svc.mailSvc.SendMessages(msg)
}

func (svc *Service) Get(ctx context.Context, year int) (AcademicCalendar, error) {
	return svc.repo.GetCalendar(ctx, year)
}

func (svc *Service) Query(ctx context.Context, ordering ...core.DBOrdering) ([]Summary, error) {
	if len(ordering) == 0 {
		ordering = []core.DBOrdering{{Field: "year", Ascending: false}} // latest first
	}
	cals, err := svc.repo.QueryCalendars(ctx, ordering)
	if err != nil {
		return nil, errors.Wrap(err, "querying calendars")
	}
	summaries := make([]Summary, 0, len(cals))
	for _, c := range cals {
		summaries = append(summaries, c.Summary())
	}
	return summaries, nil
}

func (svc *Service) Delete(ctx context.Context, year int) error {
	return svc.repo.DeleteCalendar(ctx, year)
}

// Legends returns the current legends of the day types used by the stored calendar of `year`.
func (svc *Service) Legends(ctx context.Context, year int) ([]LegendItem, error) {
	cal, err := svc.repo.GetCalendar(ctx, year)
	if err != nil {
		return nil, err
	}
	used := make(map[DayType]bool)
	for _, d := range cal.Data.Days {
		used[d.Type] = true
	}
	types := make([]DayType, 0, len(used))
	for _, dt := range DayTypes {
		if used[dt] {
			types = append(types, dt)
		}
	}
	legends, err := svc.repo.QueryLegends(ctx, types)
	if err != nil {
		return nil, errors.Wrap(err, "querying legends")
	}
	if legends == nil {
		legends = []LegendItem{}
	}
	return legends, nil
}

// AllLegends returns every stored legend of a known day type.
func (svc *Service) AllLegends(ctx context.Context) ([]LegendItem, error) {
	stored, err := svc.repo.QueryAllLegends(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "querying legends")
	}
	legends := make([]LegendItem, 0, len(stored))
	for _, l := range stored {
		if _, err = ParseDayType(string(l.Type)); err != nil {
			svc.logger.Warn(fmt.Sprintf("skipping legend: %v", err))
			continue
		}
		legends = append(legends, l)
	}
	return legends, nil
}

// UpdateLegend creates or replaces the legend of `dt`.
func (svc *Service) UpdateLegend(ctx context.Context, dt DayType, ul UpdateLegend) (LegendItem, error) {
	item := LegendItem{Type: dt, Description: core.CollapseSpaces(ul.Description), ColorHex: ul.ColorHex}
	if item.ColorHex.Valid {
		item.ColorHex.String = strings.ToUpper(item.ColorHex.String)
	}
	if err := svc.repo.UpsertLegends(ctx, []LegendItem{item}); err != nil {
		return LegendItem{}, errors.Wrap(err, "upserting legend")
	}
	return item, nil
}

// SeedHolidays stores the national holidays of `year` as fixture days, keeping stored ones.
func (svc *Service) SeedHolidays(ctx context.Context, year int) (int, error) {
	inserted, err := svc.repo.InsertMissingFixtureDays(ctx, NationalHolidays(year))
	if err != nil {
		return 0, errors.Wrap(err, "inserting holidays")
	}
	return inserted, nil
}

// SeedFixtures runs the fixture loader for `year` on its own.
func (svc *Service) SeedFixtures(ctx context.Context, year int) error {
	return svc.repo.RunInYearTx(ctx, year, func(exec core.DBExecutor) error {
		return svc.EnsureFixturesLoaded(ctx, year, exec)
	})
}
