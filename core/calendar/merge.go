package calendar

import (
	"context"
	"fmt"

	"github.com/pkg/errors"

	"github.com/esmeraldinha/backend/core"
)

// BuildResult resolves one Day per date of `year` with the precedence
// processed (document) day > stored fixture day > generated default day,
// and attaches the stored legends of the day types in use.
func (svc *Service) BuildResult(
	ctx context.Context,
	year int,
	defaultType string,
	processed []Day,
	stages []Stage,
	monthlyMeta []MonthlyMeta,
	exec ...core.DBExecutor,
) (CalendarData, error) {
	skeleton := GenerateAllDays(year, defaultType)

	stored, err := svc.repo.QueryFixtureDays(ctx, year, exec...)
	if err != nil {
		return CalendarData{}, errors.Wrap(err, "querying fixture days")
	}
	fixtures := make(map[Date]Day, len(stored))
	for _, f := range stored {
		dt, err := ParseDayType(f.Type)
		if err != nil {
			svc.logger.Warn(fmt.Sprintf("skipping fixture day %s: %v", f.Date, err))
			continue
		}
		fixtures[f.Date] = Day{Date: f.Date, Type: dt, Labels: cloneLabels(f.Labels)}
	}

	extracted := make(map[Date]Day, len(processed))
	for _, d := range processed {
		extracted[d.Date] = d
	}

	days := make([]Day, 0, len(skeleton))
	used := make(map[DayType]bool)
	for _, day := range skeleton {
		if d, ok := extracted[day.Date]; ok {
			day = d
			day.Labels = cloneLabels(d.Labels)
		} else if d, ok := fixtures[day.Date]; ok {
			day = d
		}
		days = append(days, day)
		used[day.Type] = true
	}

	types := make([]DayType, 0, len(used))
	for _, dt := range DayTypes {
		if used[dt] {
			types = append(types, dt)
		}
	}
	legend, err := svc.repo.QueryLegends(ctx, types, exec...)
	if err != nil {
		return CalendarData{}, errors.Wrap(err, "querying legends")
	}

	data := CalendarData{
		Year:        year,
		Stages:      stages,
		Days:        days,
		Legend:      legend,
		MonthlyMeta: monthlyMeta,
	}
	data.normalize()
	return data, nil
}

func cloneLabels(labels []string) []string {
	out := make([]string, len(labels))
	copy(out, labels)
	return out
}
