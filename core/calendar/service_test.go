package calendar_test

import (
	"context"
	"image"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/volatiletech/null/v8"

	"github.com/esmeraldinha/backend/core"
	"github.com/esmeraldinha/backend/core/calendar"
	appfs "github.com/esmeraldinha/backend/fs"
	emailsvc "github.com/esmeraldinha/backend/services/email"
	inmemdb "github.com/esmeraldinha/backend/storage/database/inmem"
	testutil "github.com/esmeraldinha/backend/tests"
)

var processedAt = time.Date(2025, time.January, 15, 10, 0, 0, 0, time.UTC)

type noFixtures struct{}

func (noFixtures) LegendFixtures() ([]calendar.LegendFixture, error) { return nil, nil }
func (noFixtures) DayFixtures(int) ([]calendar.DayFixture, error)     { return nil, nil }

type staticFixtures struct {
	legends []calendar.LegendFixture
	days    []calendar.DayFixture
}

func (f staticFixtures) LegendFixtures() ([]calendar.LegendFixture, error) { return f.legends, nil }
func (f staticFixtures) DayFixtures(year int) ([]calendar.DayFixture, error) {
	days := make([]calendar.DayFixture, 0)
	for _, d := range f.days {
		if d.Year == year {
			days = append(days, d)
		}
	}
	return days, nil
}

// fake calendar document

type fakePage struct {
	text    string
	missing string // month label absent from the page
}

func (p *fakePage) Text() (string, error) { return p.text, nil }

func (p *fakePage) Search(needle string) ([]calendar.Rect, error) {
	if needle == p.missing || !strings.Contains(strings.ToUpper(p.text), needle) {
		return nil, nil
	}
	return []calendar.Rect{{X0: 100, Y0: 100, X1: 150, Y1: 110}}, nil
}

func (p *fakePage) RenderRegion(clip calendar.Rect, scale float64) (image.Image, error) {
	return image.NewGray(image.Rect(0, 0, int(clip.Width()*scale), int(clip.Height()*scale))), nil
}

type fakeDoc struct {
	pages int
	page  *fakePage
}

func (d *fakeDoc) NumPages() int { return d.pages }
func (d *fakeDoc) Page(n int) (calendar.Page, error) {
	if n >= d.pages {
		return nil, errors.New("no such page")
	}
	return d.page, nil
}
func (d *fakeDoc) Close() error { return nil }

func fakeOpener(docs map[string]*fakeDoc) calendar.Opener {
	return func(content []byte) (calendar.Document, error) {
		doc, ok := docs[string(content)]
		if !ok {
			return nil, errors.Wrap(calendar.ErrInvalidDocument, "unknown document")
		}
		return doc, nil
	}
}

const calendarText = "SECRETARIA MUNICIPAL DE EDUCAÇÃO\nCALENDÁRIO LETIVO 2025\n" +
	"I ETAPA: 03/02 a 30/04/2025\nII ETAPA: 05/05 a 11/07/2025\n" +
	"JANEIRO FEVEREIRO MARÇO ABRIL MAIO JUNHO JULHO AGOSTO SETEMBRO OUTUBRO NOVEMBRO DEZEMBRO"

var documents = map[string]*fakeDoc{
	"calendar":      {pages: 1, page: &fakePage{text: calendarText}},
	"empty":         {pages: 0},
	"huge":          {pages: 21, page: &fakePage{text: calendarText}},
	"no year":       {pages: 1, page: &fakePage{text: "CALENDÁRIO ESCOLAR\nJANEIRO"}},
	"missing month": {pages: 1, page: &fakePage{text: calendarText, missing: "MARÇO"}},
	"bad stage":     {pages: 1, page: &fakePage{text: "CALENDÁRIO LETIVO 2025\nI ETAPA: 31/02 a 30/04/2025"}},
}

type env struct {
	svc   *calendar.Service
	repo  calendarRepo
	store *testutil.ArtifactStore
	mail  *emailsvc.ConsoleServiceMock
	hook  *test.Hook
}

type calendarRepo interface {
	calendar.Repository
	SetFixtureDay(day calendar.FixtureDay)
}

var parseTemplatesOnce sync.Once

func newEnv(t *testing.T, fixtures calendar.FixtureSource, notify ...string) env {
	t.Helper()
	conf := testutil.NewConfig()
	conf.Calendar.NotifyEmails = notify
	logger, hook := testutil.NewLogger(conf)
	parseTemplatesOnce.Do(func() {
		core.ParseEmailTemplates(appfs.FS, appfs.EmailTemplatesDir, true, logger)
	})

	repo := inmemdb.NewCalendarRepository(inmemdb.Open())
	store := testutil.NewArtifactStore()
	mail := emailsvc.NewConsoleServiceMock(conf, logger)
	processor := calendar.NewProcessor(fakeOpener(documents), store, conf.Calendar.MaxPages, logger)

	svc := calendar.NewService(repo, processor, fixtures, mail, logger, conf)
	svc.SetNow(func() time.Time { return processedAt })
	return env{svc: svc, repo: repo, store: store, mail: mail, hook: hook}
}

func bundledFixtures() calendar.FixtureSource {
	return calendar.NewJSONFixtureSource(appfs.FS, appfs.LegendFixtures, appfs.DayFixtures)
}

func dayOf(data calendar.CalendarData, date string) calendar.Day {
	for _, d := range data.Days {
		if d.Date.String() == date {
			return d
		}
	}
	return calendar.Day{}
}

func legendTypes(data calendar.CalendarData) []calendar.DayType {
	types := make([]calendar.DayType, 0, len(data.Legend))
	for _, l := range data.Legend {
		types = append(types, l.Type)
	}
	return types
}

func usedTypes(data calendar.CalendarData) []calendar.DayType {
	seen := make(map[calendar.DayType]bool)
	types := make([]calendar.DayType, 0)
	for _, d := range data.Days {
		if !seen[d.Type] {
			seen[d.Type] = true
			types = append(types, d.Type)
		}
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}

func TestService_Initialize(t *testing.T) {
	ctx := context.Background()

	t.Run("no fixtures", func(t *testing.T) {
		e := newEnv(t, noFixtures{})
		cal, err := e.svc.Initialize(ctx, calendar.InitializeCalendar{Year: 2025, DefaultLegendType: "nao_letivo"})
		require.Nil(t, err)

		assert.Equal(t, 2025, cal.Year)
		assert.Equal(t, 2025, cal.Data.Year)
		assert.Equal(t, processedAt, cal.ProcessedAt)
		assert.False(t, cal.SourceDocumentID.Valid)
		require.Len(t, cal.Data.Days, 365)
		for _, d := range cal.Data.Days {
			assert.Equal(t, calendar.NonSchoolDay, d.Type)
		}
		assert.Equal(t, []calendar.Stage{}, cal.Data.Stages)
		assert.Equal(t, []calendar.LegendItem{}, cal.Data.Legend)

		stored, err := e.svc.Get(ctx, 2025)
		require.Nil(t, err)
		assert.Equal(t, cal, stored)
	})

	t.Run("bundled fixtures", func(t *testing.T) {
		e := newEnv(t, bundledFixtures())
		cal, err := e.svc.Initialize(ctx, calendar.InitializeCalendar{Year: 2025, DefaultLegendType: "letivo"})
		require.Nil(t, err)

		require.Len(t, cal.Data.Days, 365)
		assert.Equal(t, calendar.NationalHoliday, dayOf(cal.Data, "2025-04-21").Type)
		assert.Equal(t, []string{"Tiradentes"}, dayOf(cal.Data, "2025-04-21").Labels)
		assert.Equal(t, calendar.OptionalDay, dayOf(cal.Data, "2025-03-04").Type)
		assert.Equal(t, calendar.SchoolDay, dayOf(cal.Data, "2025-04-22").Type)

		// legend covers exactly the used types
		assert.Equal(t, usedTypes(cal.Data), legendTypes(cal.Data))
		assert.Equal(t,
			[]calendar.DayType{calendar.NationalHoliday, calendar.SchoolDay, calendar.OptionalDay},
			legendTypes(cal.Data))

		// 2026 fixtures are not applied to 2025
		cal26, err := e.svc.Initialize(ctx, calendar.InitializeCalendar{Year: 2026, DefaultLegendType: "letivo"})
		require.Nil(t, err)
		assert.Equal(t, calendar.OptionalDay, dayOf(cal26.Data, "2026-02-17").Type)
		assert.Equal(t, calendar.SchoolDay, dayOf(cal.Data, "2025-02-17").Type)
	})

	t.Run("rebuild overwrites the snapshot", func(t *testing.T) {
		e := newEnv(t, noFixtures{})
		first, err := e.svc.Initialize(ctx, calendar.InitializeCalendar{Year: 2024, DefaultLegendType: "nao_letivo"})
		require.Nil(t, err)
		second, err := e.svc.Initialize(ctx, calendar.InitializeCalendar{Year: 2024, DefaultLegendType: "letivo"})
		require.Nil(t, err)

		assert.Equal(t, first.ID, second.ID)
		assert.Len(t, second.Data.Days, 366)
		summaries, err := e.svc.Query(ctx)
		require.Nil(t, err)
		require.Len(t, summaries, 1)
		assert.Equal(t, 366, summaries[0].SchoolDays)
	})
}

func TestService_BuildResult_precedence(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, noFixtures{})

	require.Nil(t, e.repo.UpsertLegends(ctx, []calendar.LegendItem{
		{Type: calendar.SchoolDay, Description: "Dia Letivo", ColorHex: null.StringFrom("#00FF88")},
		{Type: calendar.NationalHoliday, Description: "Feriado Nacional"},
		{Type: calendar.Vacation, Description: "Férias"},
		{Type: calendar.Recess, Description: "Recesso"},
	}))
	for _, f := range []calendar.FixtureDay{
		{Date: calendar.NewDate(2025, time.January, 1), Year: 2025, Type: "feriado_nacional", Labels: []string{"Ano Novo"}},
		{Date: calendar.NewDate(2025, time.January, 2), Year: 2025, Type: "ferias"},
		{Date: calendar.NewDate(2025, time.January, 3), Year: 2025, Type: "bogus"},
	} {
		e.repo.SetFixtureDay(f)
	}

	stage := calendar.StageI
	processed := []calendar.Day{
		{Date: calendar.NewDate(2025, time.January, 2), Type: calendar.Recess, Labels: []string{"Recesso escolar"}},
		{Date: calendar.NewDate(2025, time.February, 3), Type: calendar.Planning, Stage: &stage},
	}
	stages := []calendar.Stage{
		{ID: calendar.StageI, StartDate: calendar.NewDate(2025, time.February, 3), EndDate: calendar.NewDate(2025, time.April, 30)},
	}

	data, err := e.svc.BuildResult(ctx, 2025, "letivo", processed, stages, nil)
	require.Nil(t, err)

	require.Len(t, data.Days, 365)
	for i := 1; i < len(data.Days); i++ {
		require.True(t, data.Days[i-1].Date.Before(data.Days[i].Date))
	}

	// fixture over default
	assert.Equal(t, calendar.Day{
		Date:   calendar.NewDate(2025, time.January, 1),
		Type:   calendar.NationalHoliday,
		Labels: []string{"Ano Novo"},
	}, dayOf(data, "2025-01-01"))
	// document over fixture
	assert.Equal(t, calendar.Recess, dayOf(data, "2025-01-02").Type)
	assert.Equal(t, []string{"Recesso escolar"}, dayOf(data, "2025-01-02").Labels)
	// unknown fixture type falls back to the default
	assert.Equal(t, calendar.SchoolDay, dayOf(data, "2025-01-03").Type)
	assert.Equal(t, []string{}, dayOf(data, "2025-01-03").Labels)
	assert.Equal(t, &stage, dayOf(data, "2025-02-03").Stage)

	// planejamento has no stored legend; ferias is stored but not used
	assert.Equal(t, []calendar.DayType{calendar.NationalHoliday, calendar.SchoolDay, calendar.Recess}, legendTypes(data))
	assert.Equal(t, stages, data.Stages)
	assert.Nil(t, data.MonthlyMeta)

	var warned bool
	for _, entry := range e.hook.AllEntries() {
		if entry.Level == logrus.WarnLevel && strings.Contains(entry.Message, "2025-01-03") {
			warned = true
		}
	}
	assert.True(t, warned, "unknown fixture type is logged")
}

func TestService_EnsureFixturesLoaded(t *testing.T) {
	ctx := context.Background()
	fixtures := staticFixtures{
		legends: []calendar.LegendFixture{
			{Type: "letivo", Description: "Dia Letivo", ColorHex: null.StringFrom("#00FF88")},
			{Type: "feriado_nacional", Description: "Feriado Nacional"},
			{Type: "unknown", Description: "?"},
		},
		days: []calendar.DayFixture{
			{Date: "2025-01-01", Year: 2025, Type: "feriado_nacional", Labels: []string{"Ano Novo"}},
			{Date: "2025-02-30", Year: 2025, Type: "feriado_nacional"},
			{Date: "2025-03-10", Year: 2025, Type: "unknown"},
			{Date: "2025-04-21", Year: 2025, Type: "feriado_nacional"},
		},
	}
	e := newEnv(t, fixtures)

	require.Nil(t, e.svc.EnsureFixturesLoaded(ctx, 2025))
	days, err := e.repo.QueryFixtureDays(ctx, 2025)
	require.Nil(t, err)
	require.Len(t, days, 2)
	assert.Equal(t, "2025-01-01", days[0].Date.String())
	assert.Equal(t, []string{}, days[1].Labels)

	legends, err := e.svc.AllLegends(ctx)
	require.Nil(t, err)
	assert.Len(t, legends, 2)

	// administrative edits survive a reload
	e.repo.SetFixtureDay(calendar.FixtureDay{Date: calendar.NewDate(2025, time.January, 1), Year: 2025, Type: "ponto_facultativo"})
	_, err = e.svc.UpdateLegend(ctx, calendar.SchoolDay, calendar.UpdateLegend{Description: "Aula", ColorHex: null.StringFrom("#abcdef")})
	require.Nil(t, err)

	require.Nil(t, e.svc.EnsureFixturesLoaded(ctx, 2025))
	require.Nil(t, e.svc.SeedFixtures(ctx, 2025))

	days, err = e.repo.QueryFixtureDays(ctx, 2025)
	require.Nil(t, err)
	require.Len(t, days, 2)
	assert.Equal(t, "ponto_facultativo", days[0].Type)

	legends, err = e.repo.QueryLegends(ctx, []calendar.DayType{calendar.SchoolDay})
	require.Nil(t, err)
	require.Len(t, legends, 1)
	assert.Equal(t, "Aula", legends[0].Description)
	assert.Equal(t, null.StringFrom("#ABCDEF"), legends[0].ColorHex)
}

func TestService_Create(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, bundledFixtures())

	nc := calendar.NewCalendar{
		Year:              2025,
		DefaultLegendType: "nao_letivo",
		Stages: []calendar.Stage{
			{ID: calendar.StageI, StartDate: calendar.NewDate(2025, time.February, 3), EndDate: calendar.NewDate(2025, time.April, 30)},
		},
		Days: append(
			testutil.Days(calendar.NewDate(2025, time.February, 3), 5, calendar.SchoolDay),
			calendar.Day{Date: calendar.NewDate(2025, time.April, 21), Type: calendar.Event, Labels: []string{"Desfile"}},
		),
		MonthlyMeta: []calendar.MonthlyMeta{{Month: 2, SchoolDays: 5}},
	}
	cal, err := e.svc.Create(ctx, nc)
	require.Nil(t, err)

	assert.Equal(t, calendar.SchoolDay, dayOf(cal.Data, "2025-02-07").Type)
	assert.Equal(t, calendar.NonSchoolDay, dayOf(cal.Data, "2025-02-08").Type)
	assert.Equal(t, calendar.Event, dayOf(cal.Data, "2025-04-21").Type)
	assert.Equal(t, calendar.NationalHoliday, dayOf(cal.Data, "2025-05-01").Type)
	assert.Equal(t, nc.MonthlyMeta, cal.Data.MonthlyMeta)
	assert.Equal(t, nc.Stages, cal.Data.Stages)

	legends, err := e.svc.Legends(ctx, 2025)
	require.Nil(t, err)
	assert.Equal(t, usedTypes(cal.Data), func() []calendar.DayType {
		types := make([]calendar.DayType, 0, len(legends))
		for _, l := range legends {
			types = append(types, l.Type)
		}
		return types
	}())

	t.Run("days outside of the year", func(t *testing.T) {
		nc := calendar.NewCalendar{
			Year:              2025,
			DefaultLegendType: "nao_letivo",
			Days:              testutil.Days(calendar.NewDate(2024, time.December, 31), 2, calendar.SchoolDay),
		}
		_, err := e.svc.Create(ctx, nc)
		var vErr *core.ValidationError
		require.True(t, errors.As(err, &vErr))
		assert.Equal(t, map[string]string{"days[0].date": "date 2024-12-31 is not in 2025"}, vErr.FieldsMap())

		_, err = e.svc.Get(ctx, 2024)
		assert.Equal(t, calendar.ErrNotFound, err)
	})
}

func TestService_ProcessPDF(t *testing.T) {
	ctx := context.Background()

	t.Run("success", func(t *testing.T) {
		e := newEnv(t, bundledFixtures(), "Secretaria <secretaria@example.com>")
		cal, err := e.svc.ProcessPDF(ctx, calendar.ProcessRequest{
			DefaultLegendType: "letivo",
			Filename:          "Calendario-2025.PDF",
			Content:           []byte("calendar"),
		})
		require.Nil(t, err)

		assert.Equal(t, 2025, cal.Year)
		require.Len(t, cal.Data.Stages, 2)
		assert.Equal(t, calendar.StageII, cal.Data.Stages[1].ID)
		assert.Len(t, cal.Data.Days, 365)
		assert.Equal(t, calendar.NationalHoliday, dayOf(cal.Data, "2025-12-25").Type)
		assert.True(t, cal.SourceDocumentID.Valid)
		assert.Len(t, cal.SourceDocumentID.String, 36)

		names := e.store.Names()
		sort.Strings(names)
		assert.Len(t, names, 12)
		assert.Contains(t, names, "2025_MARÇO")
		assert.Equal(t, image.Rect(0, 0, 380, 260), e.store.Images["2025_JANEIRO"].Bounds())

		sent := e.mail.Sent()
		require.Len(t, sent, 1)
		msg := sent[0]
		assert.Equal(t, "secretaria@example.com", msg.To[0].Address)
		assert.Contains(t, msg.Subject, "2025")
		assert.Contains(t, msg.TextContent, "I Etapa: 2025-02-03 a 2025-04-30")
		assert.Contains(t, msg.HTMLContent, "2025")
		require.Len(t, msg.Attachments, 1)
		assert.Equal(t, "calendario_2025.ics", msg.Attachments[0].Filename)
		assert.Equal(t, "text/calendar", msg.Attachments[0].ContentType)
		assert.Equal(t, []string{"calendar_processed", "2025"}, msg.Categories)
	})

	t.Run("no recipients", func(t *testing.T) {
		e := newEnv(t, noFixtures{})
		_, err := e.svc.ProcessPDF(ctx, calendar.ProcessRequest{DefaultLegendType: "letivo", Content: []byte("calendar")})
		require.Nil(t, err)
		assert.Empty(t, e.mail.Sent())
	})

	tests := []struct {
		document  string
		wantLabel string
	}{
		{document: "not registered", wantLabel: calendar.LabelInvalidDocument},
		{document: "empty", wantLabel: calendar.LabelEmptyDocument},
		{document: "huge", wantLabel: calendar.LabelTooManyPages},
		{document: "no year", wantLabel: calendar.LabelYearNotFound},
		{document: "missing month", wantLabel: calendar.LabelMonthTableNotFound},
		{document: "bad stage", wantLabel: calendar.LabelInvalidStage},
	}
	for _, tt := range tests {
		t.Run(tt.document, func(t *testing.T) {
			e := newEnv(t, noFixtures{})
			_, err := e.svc.ProcessPDF(ctx, calendar.ProcessRequest{DefaultLegendType: "letivo", Content: []byte(tt.document)})
			pErr, ok := calendar.AsProcessingError(err)
			require.True(t, ok, "got %v", err)
			assert.Equal(t, tt.wantLabel, pErr.Label)

			// nothing persisted
			summaries, err := e.svc.Query(ctx)
			require.Nil(t, err)
			assert.Empty(t, summaries)
		})
	}

	t.Run("canceled", func(t *testing.T) {
		e := newEnv(t, noFixtures{})
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		_, err := e.svc.ProcessPDF(cctx, calendar.ProcessRequest{DefaultLegendType: "letivo", Content: []byte("calendar")})
		assert.True(t, errors.Is(err, context.Canceled))
		assert.Empty(t, e.store.Names())
	})
}

func TestService_QueryAndDelete(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, noFixtures{})

	testutil.CreateCalendar(t, e.repo, 2023, nil, processedAt.Add(2*time.Hour))
	testutil.CreateCalendar(t, e.repo, 2025, testutil.Days(calendar.NewDate(2025, time.March, 3), 5, calendar.SchoolDay), processedAt)
	testutil.CreateCalendar(t, e.repo, 2024, nil, processedAt.Add(time.Hour))

	years := func(summaries []calendar.Summary) []int {
		out := make([]int, 0, len(summaries))
		for _, s := range summaries {
			out = append(out, s.Year)
		}
		return out
	}

	summaries, err := e.svc.Query(ctx)
	require.Nil(t, err)
	assert.Equal(t, []int{2025, 2024, 2023}, years(summaries))
	assert.Equal(t, 5, summaries[0].SchoolDays)

	summaries, err = e.svc.Query(ctx, core.DBOrdering{Field: "processed_at", Ascending: true})
	require.Nil(t, err)
	assert.Equal(t, []int{2025, 2024, 2023}, years(summaries))

	summaries, err = e.svc.Query(ctx, core.DBOrdering{Field: "year", Ascending: true})
	require.Nil(t, err)
	assert.Equal(t, []int{2023, 2024, 2025}, years(summaries))

	require.Nil(t, e.svc.Delete(ctx, 2024))
	assert.Equal(t, calendar.ErrNotFound, e.svc.Delete(ctx, 2024))
	_, err = e.svc.Get(ctx, 2024)
	assert.Equal(t, calendar.ErrNotFound, err)

	_, err = e.svc.Legends(ctx, 2024)
	assert.Equal(t, calendar.ErrNotFound, err)
	legends, err := e.svc.Legends(ctx, 2023)
	require.Nil(t, err)
	assert.NotNil(t, legends)
	assert.Empty(t, legends)
}

func TestService_SeedHolidays(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, noFixtures{})

	n, err := e.svc.SeedHolidays(ctx, 2027)
	require.Nil(t, err)
	assert.Equal(t, 14, n)

	n, err = e.svc.SeedHolidays(ctx, 2027)
	require.Nil(t, err)
	assert.Equal(t, 0, n)

	days, err := e.repo.QueryFixtureDays(ctx, 2027)
	require.Nil(t, err)
	assert.Len(t, days, 14)
}
