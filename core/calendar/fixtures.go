package calendar

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"

	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/esmeraldinha/backend/core"
)

type (
	LegendFixture struct {
		Type        string      `json:"type"`
		Description string      `json:"description"`
		ColorHex    null.String `json:"color_hex"`
	}

	DayFixture struct {
		Date   string   `json:"date"`
		Year   int      `json:"year"`
		Type   string   `json:"type"`
		Labels []string `json:"labels"`
	}

	// FixtureSource provides the bundled legend definitions and fixture days.
	FixtureSource interface {
		LegendFixtures() ([]LegendFixture, error)
		DayFixtures(year int) ([]DayFixture, error)
	}
)

type jsonFixtureSource struct {
	fsys        fs.FS
	legendsPath string
	daysPath    string
}

var _ FixtureSource = (*jsonFixtureSource)(nil)

// NewJSONFixtureSource reads fixtures from two JSON arrays in `fsys`.
func NewJSONFixtureSource(fsys fs.FS, legendsPath, daysPath string) FixtureSource {
	return &jsonFixtureSource{fsys: fsys, legendsPath: legendsPath, daysPath: daysPath}
}

func (src jsonFixtureSource) decode(path string, v interface{}) error {
	b, err := fs.ReadFile(src.fsys, path)
	if err != nil {
		return errors.Wrapf(err, "reading %s", path)
	}
	if err = json.Unmarshal(b, v); err != nil {
		return errors.Wrapf(err, "decoding %s", path)
	}
	return nil
}

func (src jsonFixtureSource) LegendFixtures() ([]LegendFixture, error) {
	var legends []LegendFixture
	if err := src.decode(src.legendsPath, &legends); err != nil {
		return nil, err
	}
	return legends, nil
}

func (src jsonFixtureSource) DayFixtures(year int) ([]DayFixture, error) {
	var all []DayFixture
	if err := src.decode(src.daysPath, &all); err != nil {
		return nil, err
	}
	days := make([]DayFixture, 0, len(all))
	for _, d := range all {
		if d.Year == year {
			days = append(days, d)
		}
	}
	return days, nil
}

// EnsureFixturesLoaded inserts the bundled legends and fixture days of `year` that are not
// stored yet. Stored legends and fixture days are never overwritten.
func (svc *Service) EnsureFixturesLoaded(ctx context.Context, year int, exec ...core.DBExecutor) error {
	legendFixtures, err := svc.fixtures.LegendFixtures()
	if err != nil {
		return errors.Wrap(err, "loading legend fixtures")
	}
	legends := make([]LegendItem, 0, len(legendFixtures))
	for _, lf := range legendFixtures {
		dt, err := ParseDayType(lf.Type)
		if err != nil {
			svc.logger.Warn(fmt.Sprintf("skipping legend fixture: %v", err))
			continue
		}
		legends = append(legends, LegendItem{Type: dt, Description: lf.Description, ColorHex: lf.ColorHex})
	}
	insertedLegends, err := svc.repo.InsertMissingLegends(ctx, legends, exec...)
	if err != nil {
		return errors.Wrap(err, "inserting legends")
	}

	dayFixtures, err := svc.fixtures.DayFixtures(year)
	if err != nil {
		return errors.Wrap(err, "loading day fixtures")
	}
	days := make([]FixtureDay, 0, len(dayFixtures))
	for _, df := range dayFixtures {
		date, err := ParseDate(df.Date)
		if err != nil {
			svc.logger.Warn(fmt.Sprintf("skipping day fixture: %v", err))
			continue
		}
		if _, err = ParseDayType(df.Type); err != nil {
			svc.logger.Warn(fmt.Sprintf("skipping day fixture %s: %v", df.Date, err))
			continue
		}
		labels := df.Labels
		if labels == nil {
			labels = []string{}
		}
		days = append(days, FixtureDay{Date: date, Year: year, Type: df.Type, Labels: labels})
	}

	inserted, err := svc.repo.InsertMissingFixtureDays(ctx, days, exec...)
	if err != nil {
		return errors.Wrap(err, "inserting fixture days")
	}
	svc.logger.Debug(fmt.Sprintf("fixtures loaded for %d", year), map[string]interface{}{
		"legends":          len(legends),
		"days":             len(days),
		"inserted_legends": insertedLegends,
		"inserted_days":    inserted,
	})
	return nil
}
