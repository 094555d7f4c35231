package calendar

import (
	"context"
	"fmt"
	"image"

	"github.com/pkg/errors"

	"github.com/esmeraldinha/backend/core"
)

// Months are the month labels printed above each table of the calendar page.
var Months = []string{
	"JANEIRO", "FEVEREIRO", "MARÇO", "ABRIL", "MAIO", "JUNHO",
	"JULHO", "AGOSTO", "SETEMBRO", "OUTUBRO", "NOVEMBRO", "DEZEMBRO",
}

// month table region around the month label, in page units
const (
	tableMarginX = 70
	tableHeight  = 120
	tableScale   = 2
)

type (
	// Rect is a page region in page units, origin at the top-left corner.
	Rect struct {
		X0, Y0, X1, Y1 float64
	}

	Page interface {
		// Text returns the page text in reading order, one line per text line.
		Text() (string, error)
		// Search returns the bounding boxes of every case-insensitive occurrence of `needle`.
		Search(needle string) ([]Rect, error)
		// RenderRegion rasterizes `clip` at `scale` pixels per page unit.
		RenderRegion(clip Rect, scale float64) (image.Image, error)
	}

	Document interface {
		NumPages() int
		// Page returns the n-th page, starting at 0.
		Page(n int) (Page, error)
		Close() error
	}

	// Opener opens raw document bytes.
	Opener func(content []byte) (Document, error)

	// ArtifactStore keeps the rendered month tables.
	ArtifactStore interface {
		Save(ctx context.Context, name string, img image.Image) error
	}
)

func (r Rect) Width() float64  { return r.X1 - r.X0 }
func (r Rect) Height() float64 { return r.Y1 - r.Y0 }

// Processor extracts the year and stages of a calendar document and renders its month tables.
type Processor struct {
	open     Opener
	store    ArtifactStore
	maxPages int
	logger   core.Logger
}

func NewProcessor(open Opener, store ArtifactStore, maxPages int, logger core.Logger) *Processor {
	return &Processor{open: open, store: store, maxPages: maxPages, logger: logger}
}

// Process returns the year and stages of the document. Days, legend and monthly meta are left empty.
func (p *Processor) Process(ctx context.Context, content []byte) (CalendarData, error) {
	doc, err := p.open(content)
	if err != nil {
		return CalendarData{}, newProcessingError(LabelInvalidDocument, err, "could not read document: %v", err)
	}
	defer func() {
		if cErr := doc.Close(); cErr != nil {
			p.logger.Warn(fmt.Sprintf("closing document: %v", cErr), cErr)
		}
	}()

	numPages := doc.NumPages()
	if numPages == 0 {
		return CalendarData{}, newProcessingError(LabelEmptyDocument, ErrEmptyDocument, "document has no pages")
	}
	if p.maxPages > 0 && numPages > p.maxPages {
		return CalendarData{}, newProcessingError(LabelTooManyPages, ErrTooManyPages,
			"document has %d pages, at most %d are accepted", numPages, p.maxPages)
	}

	page, err := doc.Page(0)
	if err != nil {
		return CalendarData{}, newProcessingError(LabelInvalidDocument, err, "could not read first page: %v", err)
	}
	text, err := page.Text()
	if err != nil {
		return CalendarData{}, newProcessingError(LabelInvalidDocument, err, "could not read first page text: %v", err)
	}

	year, err := ExtractYear(text)
	if err != nil {
		return CalendarData{}, newProcessingError(LabelYearNotFound, err, "academic year not found in document")
	}
	stages, err := ExtractStages(text)
	if err != nil {
		return CalendarData{}, newProcessingError(LabelInvalidStage, err, "%v", err)
	}

	if err = p.renderMonthTables(ctx, page, year); err != nil {
		return CalendarData{}, err
	}

	p.logger.Debug(fmt.Sprintf("processed calendar document for %d", year), map[string]interface{}{
		"year":   year,
		"stages": len(stages),
		"pages":  numPages,
	})

	return CalendarData{
		Year:        year,
		Stages:      stages,
		Days:        []Day{},
		Legend:      []LegendItem{},
		MonthlyMeta: []MonthlyMeta{},
	}, nil
}

// renderMonthTables saves a 2x image of every month table, named "<year>_<MONTH>".
func (p *Processor) renderMonthTables(ctx context.Context, page Page, year int) error {
	for _, month := range Months {
		if err := ctx.Err(); err != nil {
			return errors.Wrap(err, "rendering month tables")
		}

		rects, err := page.Search(month)
		if err != nil {
			return errors.Wrapf(err, "searching %s", month)
		}
		if len(rects) == 0 {
			return newProcessingError(LabelMonthTableNotFound, ErrMonthTableNotFound, "table for month %s not found", month)
		}

		label := rects[0]
		clip := Rect{
			X0: label.X0 - tableMarginX,
			Y0: label.Y0,
			X1: label.X1 + tableMarginX,
			Y1: label.Y1 + tableHeight,
		}
		img, err := page.RenderRegion(clip, tableScale)
		if err != nil {
			return errors.Wrapf(err, "rendering %s table", month)
		}
		if err = p.store.Save(ctx, fmt.Sprintf("%d_%s", year, month), img); err != nil {
			return errors.Wrapf(err, "saving %s table", month)
		}
	}
	return nil
}
