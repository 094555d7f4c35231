package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/esmeraldinha/backend/core"
	"github.com/esmeraldinha/backend/core/calendar"
)

func yearFlag(cmd *cobra.Command, year *int) {
	cmd.Flags().IntVar(year, "year", 0, "The academic year, e.g. 2025")
	_ = cmd.MarkFlagRequired("year")
}

func defaultTypeFlag(cmd *cobra.Command, dt *string) {
	cmd.Flags().StringVar(dt, "default", "", "The day type of the days set by neither the document nor the fixtures, e.g. letivo")
	_ = cmd.MarkFlagRequired("default")
}

func parseDefaultType(s string) (string, error) {
	dt, err := calendar.ParseDayType(core.CleanString(s, true))
	if err != nil {
		return "", errors.Wrap(err, "--default")
	}
	return dt.String(), nil
}

func (cli *commandLine) newSeedCommand() *cobra.Command {
	var year int
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load the bundled legends and fixture days of a year",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := cli.calSvc.SeedFixtures(cmd.Context(), year); err != nil {
				return err
			}
			cli.success("fixtures loaded for %s", bold("%d", year))
			return nil
		},
	}
	yearFlag(cmd, &year)
	return cmd
}

func (cli *commandLine) newHolidaysCommand() *cobra.Command {
	var year int
	cmd := &cobra.Command{
		Use:   "holidays",
		Short: "Add the national holidays of a year to the fixture days, keeping existing ones",
		RunE: func(cmd *cobra.Command, _ []string) error {
			n, err := cli.calSvc.SeedHolidays(cmd.Context(), year)
			if err != nil {
				return err
			}
			cli.success("%s holidays added for %d", bold("%d", n), year)
			return nil
		},
	}
	yearFlag(cmd, &year)
	return cmd
}

func (cli *commandLine) newInitCommand() *cobra.Command {
	var (
		year        int
		defaultType string
	)
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Build the calendar of a year from the fixtures only",
		RunE: func(cmd *cobra.Command, _ []string) error {
			dt, err := parseDefaultType(defaultType)
			if err != nil {
				return err
			}
			cal, err := cli.calSvc.Initialize(cmd.Context(), calendar.InitializeCalendar{Year: year, DefaultLegendType: dt})
			if err != nil {
				return err
			}
			cli.printCalendar("initialized", cal)
			return nil
		},
	}
	yearFlag(cmd, &year)
	defaultTypeFlag(cmd, &defaultType)
	return cmd
}

func (cli *commandLine) newProcessCommand() *cobra.Command {
	var (
		file        string
		defaultType string
		yes         bool
	)
	cmd := &cobra.Command{
		Use:   "process",
		Short: "Process a calendar document and store the calendar of its year",
		RunE: func(cmd *cobra.Command, _ []string) error {
			dt, err := parseDefaultType(defaultType)
			if err != nil {
				return err
			}
			content, err := os.ReadFile(file)
			if err != nil {
				return errors.Wrap(err, "reading document")
			}

			if !yes {
				if err = cli.confirmOverwrite(cmd.Context(), content); err != nil {
					return err
				}
			}

			cal, err := cli.calSvc.ProcessPDF(cmd.Context(), calendar.ProcessRequest{
				DefaultLegendType: dt,
				Filename:          filepath.Base(file),
				Content:           content,
			})
			if err != nil {
				return err
			}
			cli.printCalendar("processed", cal)
			return nil
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "Path to the calendar PDF")
	_ = cmd.MarkFlagRequired("file")
	defaultTypeFlag(cmd, &defaultType)
	cmd.Flags().BoolVar(&yes, "yes", false, "Overwrite an existing calendar without asking")
	return cmd
}

// confirmOverwrite asks before replacing the stored calendar of the document's year.
// A document whose year cannot be read is left for the processor to reject.
func (cli *commandLine) confirmOverwrite(ctx context.Context, content []byte) error {
	year, ok := cli.peekYear(content)
	if !ok {
		return nil
	}
	if _, err := cli.calSvc.Get(ctx, year); err != nil {
		if errors.Is(err, calendar.ErrNotFound) {
			return nil
		}
		return err
	}

	ok, err := cli.confirm(fmt.Sprintf("The %d calendar already exists. Overwrite it?", year))
	if err != nil {
		return err
	}
	if !ok {
		return errAborted
	}
	return nil
}

func (cli *commandLine) peekYear(content []byte) (int, bool) {
	doc, err := cli.open(content)
	if err != nil {
		return 0, false
	}
	defer func() { _ = doc.Close() }()

	if doc.NumPages() == 0 {
		return 0, false
	}
	page, err := doc.Page(0)
	if err != nil {
		return 0, false
	}
	text, err := page.Text()
	if err != nil {
		return 0, false
	}
	year, err := calendar.ExtractYear(text)
	return year, err == nil
}

func (cli *commandLine) printCalendar(action string, cal calendar.AcademicCalendar) {
	summary := cal.Summary()
	cli.success("calendar %s %s: %d school days", bold("%d", cal.Year), action, summary.SchoolDays)

	stages := make([]string, 0, len(cal.Data.Stages))
	for _, s := range cal.Data.Stages {
		stages = append(stages, fmt.Sprintf("  %s: %s - %s", s.ID, s.StartDate, s.EndDate))
	}
	if len(stages) > 0 {
		fmt.Fprintln(cli.out, strings.Join(stages, "\n"))
	}
}
