package testutil

import (
	"context"
	"image"
	"sync"
	"testing"
	"time"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"

	"github.com/esmeraldinha/backend/core"
	"github.com/esmeraldinha/backend/core/calendar"
	logsvc "github.com/esmeraldinha/backend/services/logger"
)

// NewConfig returns the configuration used by the tests, independent of the environment.
func NewConfig() *core.Config {
	conf := &core.Config{
		AppName:  "Esmeraldinha",
		Env:      "TEST",
		Build:    "test",
		TestMode: true,
	}
	conf.SetDefaultFromEmail("Esmeraldinha <noreply@localhost>")
	conf.Server.Host = "localhost"
	conf.Calendar.MaxUploadSize = 5 * 1024 * 1024
	conf.Calendar.MaxPages = 20
	return conf
}

// NewLogger returns a logger writing nowhere; the hook records the entries.
func NewLogger(conf *core.Config) (core.Logger, *test.Hook) {
	std, hook := test.NewNullLogger()
	std.SetLevel(logrus.DebugLevel)
	return logsvc.NewRollbarLogger(std, conf), hook
}

// NewValidator returns a validator with the core and calendar tags registered.
func NewValidator() (*validator.Validate, ut.Translator) {
	locale := en.New()
	translator, _ := ut.New(locale, locale).GetTranslator("en")
	validate := validator.New()
	core.InitValidators(validate, translator)
	calendar.InitValidators(validate, translator)
	return validate, translator
}

// Days returns `n` consecutive days of type `dt` starting at `from`.
func Days(from calendar.Date, n int, dt calendar.DayType, labels ...string) []calendar.Day {
	days := make([]calendar.Day, 0, n)
	for i := 0; i < n; i++ {
		days = append(days, calendar.Day{Date: from.AddDays(i), Type: dt, Labels: append([]string{}, labels...)})
	}
	return days
}

// CreateCalendar stores a calendar of `year` made of `days`.
func CreateCalendar(
	t *testing.T,
	repo calendar.Repository,
	year int,
	days []calendar.Day,
	processedAt ...time.Time,
) calendar.AcademicCalendar {
	tstamp := time.Now().UTC()
	if len(processedAt) > 0 {
		tstamp = processedAt[0].UTC()
	}
	if days == nil {
		days = []calendar.Day{}
	}
	cal := calendar.AcademicCalendar{
		Year: year,
		Data: calendar.CalendarData{
			Year:        year,
			Stages:      []calendar.Stage{},
			Days:        days,
			Legend:      []calendar.LegendItem{},
			MonthlyMeta: calendar.ComputeMonthlyMeta(days),
		},
		ProcessedAt: tstamp,
	}
	cal, err := repo.UpsertCalendar(context.Background(), cal)
	if err != nil {
		t.Fatalf("createCalendar() failed: %v", err)
	}
	return cal
}

// ArtifactStore keeps the saved images in memory.
type ArtifactStore struct {
	mu     sync.Mutex
	Images map[string]image.Image
}

var _ calendar.ArtifactStore = (*ArtifactStore)(nil)

func NewArtifactStore() *ArtifactStore {
	return &ArtifactStore{Images: make(map[string]image.Image)}
}

func (s *ArtifactStore) Save(_ context.Context, name string, img image.Image) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Images[name] = img
	return nil
}

func (s *ArtifactStore) Names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.Images))
	for n := range s.Images {
		names = append(names, n)
	}
	return names
}
