package calendar

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/pkg/errors"
)

const (
	icsProductID = "-//Esmeraldinha//Calendario Letivo//PT"
	icsDateFmt   = "20060102"
)

var icsEscaper = strings.NewReplacer(`\`, `\\`, ";", `\;`, ",", `\,`, "\n", `\n`)

// ExportedDay reports whether a day becomes an event in exports: every day that is
// not a plain school or non-school day, and any day carrying labels.
func ExportedDay(d Day) bool {
	return len(d.Labels) > 0 || (d.Type != SchoolDay && d.Type != NonSchoolDay)
}

func describe(data CalendarData, dt DayType) string {
	for _, l := range data.Legend {
		if l.Type == dt && l.Description != "" {
			return l.Description
		}
	}
	return dt.Description()
}

type icsWriter struct {
	w   io.Writer
	err error
}

func (iw *icsWriter) line(format string, args ...interface{}) {
	if iw.err != nil {
		return
	}
	_, iw.err = fmt.Fprintf(iw.w, format+"\r\n", args...)
}

// WriteICS writes the stages and the exported days of `data` as all-day iCalendar events.
func WriteICS(w io.Writer, data CalendarData, calName string, now time.Time) error {
	iw := &icsWriter{w: w}
	stamp := now.UTC().Format("20060102T150405Z")

	iw.line("BEGIN:VCALENDAR")
	iw.line("VERSION:2.0")
	iw.line("PRODID:%s", icsProductID)
	iw.line("X-WR-CALNAME:%s", icsEscaper.Replace(fmt.Sprintf("%s %d", calName, data.Year)))
	iw.line("CALSCALE:GREGORIAN")

	for _, s := range data.Stages {
		iw.line("BEGIN:VEVENT")
		iw.line("UID:%d-etapa-%s@esmeraldinha", data.Year, s.ID)
		iw.line("DTSTAMP:%s", stamp)
		iw.line("DTSTART;VALUE=DATE:%s", s.StartDate.Time().Format(icsDateFmt))
		iw.line("DTEND;VALUE=DATE:%s", s.EndDate.AddDays(1).Time().Format(icsDateFmt))
		iw.line("SUMMARY:%s Etapa", s.ID)
		iw.line("END:VEVENT")
	}

	for _, d := range data.Days {
		if !ExportedDay(d) {
			continue
		}
		summary := describe(data, d.Type)
		if len(d.Labels) > 0 {
			summary = strings.Join(d.Labels, ", ")
		}
		iw.line("BEGIN:VEVENT")
		iw.line("UID:%s-%s@esmeraldinha", d.Date.Time().Format(icsDateFmt), d.Type)
		iw.line("DTSTAMP:%s", stamp)
		iw.line("DTSTART;VALUE=DATE:%s", d.Date.Time().Format(icsDateFmt))
		iw.line("DTEND;VALUE=DATE:%s", d.Date.AddDays(1).Time().Format(icsDateFmt))
		iw.line("SUMMARY:%s", icsEscaper.Replace(summary))
		iw.line("CATEGORIES:%s", d.Type)
		iw.line("END:VEVENT")
	}

	iw.line("END:VCALENDAR")
	return errors.Wrap(iw.err, "writing ics")
}

// WriteCSV writes one row per day: date, type, description, stage, labels.
func WriteCSV(w io.Writer, data CalendarData) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"date", "type", "description", "stage", "labels"}); err != nil {
		return errors.Wrap(err, "writing csv header")
	}
	for _, d := range data.Days {
		var stage string
		if d.Stage != nil {
			stage = string(*d.Stage)
		}
		row := []string{d.Date.String(), string(d.Type), describe(data, d.Type), stage, strings.Join(d.Labels, "; ")}
		if err := cw.Write(row); err != nil {
			return errors.Wrapf(err, "writing csv row %s", d.Date)
		}
	}
	cw.Flush()
	return errors.Wrap(cw.Error(), "flushing csv")
}
