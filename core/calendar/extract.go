package calendar

import (
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/pkg/errors"
)

var (
	yearRegex  = regexp.MustCompile(`CALEND[ÁA]RIO\s+LETIVO\s+(\d{4})`)
	stageRegex = regexp.MustCompile(
		`([IVX]+)\s+ETAPA:\s*` +
			`(\d{1,2})//?(\d{1,2})\s*` +
			`\S\s*` +
			`(\d{1,2})/(\d{1,2})/(\d{4})`,
	)
)

// normalize upper-cases `text` and turns every Unicode space (NBSP included) into an ASCII space.
func normalize(text string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return ' '
		}
		return r
	}, strings.ToUpper(text))
}

// ExtractYear finds the year following the "CALENDÁRIO LETIVO" marker.
func ExtractYear(text string) (int, error) {
	m := yearRegex.FindStringSubmatch(normalize(text))
	if m == nil {
		return 0, ErrYearNotFound
	}
	year, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, errors.Wrap(ErrYearNotFound, err.Error())
	}
	return year, nil
}

// ExtractStages returns every "<roman> ETAPA: dd/mm <sep> dd/mm/yyyy" range in document order.
// Both dates take the year written after the end date.
func ExtractStages(text string) ([]Stage, error) {
	matches := stageRegex.FindAllStringSubmatch(normalize(text), -1)
	stages := make([]Stage, 0, len(matches))
	for _, m := range matches {
		id, err := ParseStageID(m[1])
		if err != nil {
			return nil, err
		}

		nums := make([]int, 0, 5)
		for _, g := range m[2:] {
			n, _ := strconv.Atoi(g) // \d only
			nums = append(nums, n)
		}
		startDay, startMonth, endDay, endMonth, year := nums[0], nums[1], nums[2], nums[3], nums[4]

		if !validDate(year, time.Month(startMonth), startDay) || !validDate(year, time.Month(endMonth), endDay) {
			return nil, errors.Wrapf(ErrInvalidStage, "stage %s has an invalid date: %q", id, strings.TrimSpace(m[0]))
		}
		stages = append(stages, Stage{
			ID:        id,
			StartDate: NewDate(year, time.Month(startMonth), startDay),
			EndDate:   NewDate(year, time.Month(endMonth), endDay),
		})
	}
	return stages, nil
}
