// Package pdfdoc reads calendar documents with github.com/ledongthuc/pdf.
package pdfdoc

import (
	"bytes"
	"math"
	"sort"
	"strings"
	"sync"
	"unicode"

	"github.com/ledongthuc/pdf"
	"github.com/pkg/errors"

	"github.com/esmeraldinha/backend/core/calendar"
)

// A4 portrait, used when a page has no usable MediaBox
var defaultMediaBox = box{x0: 0, y0: 0, x1: 595, y1: 842}

const (
	ascent  = 0.8 // share of the font size above the baseline
	descent = 0.2
)

type box struct{ x0, y0, x1, y1 float64 }

type document struct {
	r *pdf.Reader
}

var _ calendar.Opener = Open

// Open reads `content` as a PDF document. The PDF parser panics on malformed input;
// those panics are returned as errors wrapping calendar.ErrInvalidDocument.
func Open(content []byte) (doc calendar.Document, err error) {
	if !bytes.HasPrefix(bytes.TrimLeft(content, "\x00\t\n\r "), []byte("%PDF-")) {
		return nil, errors.Wrap(calendar.ErrInvalidDocument, "not a PDF file")
	}
	defer func() {
		if r := recover(); r != nil {
			doc, err = nil, errors.Wrapf(calendar.ErrInvalidDocument, "%v", r)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil, errors.Wrapf(calendar.ErrInvalidDocument, "%v", err)
	}
	return &document{r: r}, nil
}

func (d *document) NumPages() (n int) {
	defer func() {
		if recover() != nil {
			n = 0
		}
	}()
	return d.r.NumPage()
}

func (d *document) Page(n int) (p calendar.Page, err error) {
	defer func() {
		if r := recover(); r != nil {
			p, err = nil, errors.Wrapf(calendar.ErrInvalidDocument, "page %d: %v", n+1, r)
		}
	}()

	pg := d.r.Page(n + 1)
	if pg.V.IsNull() {
		return nil, errors.Wrapf(calendar.ErrInvalidDocument, "page %d not found", n+1)
	}
	return &page{p: pg, media: mediaBox(pg)}, nil
}

// Close is a no-op: the document is read from memory.
func (d *document) Close() error { return nil }

// mediaBox reads the page MediaBox, inherited from the page tree when the page has none.
func mediaBox(p pdf.Page) box {
	var mb pdf.Value
	for v := p.V; mb.IsNull() && !v.IsNull(); v = v.Key("Parent") {
		mb = v.Key("MediaBox")
	}
	if mb.Len() != 4 {
		return defaultMediaBox
	}
	b := box{x0: mb.Index(0).Float64(), y0: mb.Index(1).Float64(), x1: mb.Index(2).Float64(), y1: mb.Index(3).Float64()}
	if b.x1-b.x0 <= 0 || b.y1-b.y0 <= 0 {
		return defaultMediaBox
	}
	return b
}

type (
	// glyph is one character of a text line, in top-left page coordinates.
	glyph struct {
		r        rune
		x0, x1   float64
		baseline float64
		size     float64
	}

	line struct {
		glyphs []glyph
	}
)

func (l line) String() string {
	var sb strings.Builder
	for _, g := range l.glyphs {
		sb.WriteRune(g.r)
	}
	return sb.String()
}

type page struct {
	p     pdf.Page
	media box

	once    sync.Once
	loadErr error
	lines   []line
	texts   []pdf.Text
	rects   []pdf.Rect
}

func (pg *page) load() error {
	pg.once.Do(func() {
		defer func() {
			if r := recover(); r != nil {
				pg.loadErr = errors.Wrapf(calendar.ErrInvalidDocument, "reading page content: %v", r)
			}
		}()
		content := pg.p.Content()
		pg.rects = content.Rect
		pg.texts = make([]pdf.Text, 0, len(content.Text))
		for _, t := range content.Text {
			if t.S == "\n" || t.S == "" {
				continue
			}
			pg.texts = append(pg.texts, t)
		}
		pg.lines = groupLines(pg.texts, pg.media)
	})
	return pg.loadErr
}

// toTop converts a PDF y coordinate (origin bottom-left) to the top-left origin.
func (pg *page) toTop(y float64) float64 { return pg.media.y1 - y }

// groupLines sorts glyphs into text lines, top to bottom then left to right, inserting a
// space wherever two glyphs of a line are visibly apart.
func groupLines(texts []pdf.Text, media box) []line {
	sorted := make([]pdf.Text, len(texts))
	copy(sorted, texts)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Y > sorted[j].Y })

	var lines []line
	var cur []pdf.Text
	flush := func() {
		if len(cur) == 0 {
			return
		}
		sort.SliceStable(cur, func(i, j int) bool { return cur[i].X < cur[j].X })
		lines = append(lines, buildLine(cur, media))
		cur = nil
	}
	for _, t := range sorted {
		if len(cur) > 0 && math.Abs(cur[0].Y-t.Y) > lineTolerance(cur[0], t) {
			flush()
		}
		cur = append(cur, t)
	}
	flush()
	return lines
}

func lineTolerance(a, b pdf.Text) float64 {
	size := math.Max(a.FontSize, b.FontSize)
	if size <= 0 {
		size = 10
	}
	return size * 0.4
}

func buildLine(texts []pdf.Text, media box) line {
	l := line{glyphs: make([]glyph, 0, len(texts))}
	for i, t := range texts {
		size := t.FontSize
		if size <= 0 {
			size = 10
		}
		x0 := t.X - media.x0
		w := t.W
		if w <= 0 {
			w = size * 0.5
		}
		baseline := media.y1 - t.Y

		if i > 0 {
			prev := l.glyphs[len(l.glyphs)-1]
			if gap := x0 - prev.x1; gap > size*0.25 && prev.r != ' ' && !strings.HasPrefix(t.S, " ") {
				l.glyphs = append(l.glyphs, glyph{r: ' ', x0: prev.x1, x1: x0, baseline: baseline, size: size})
			}
		}
		runes := []rune(t.S)
		step := w / float64(len(runes))
		for k, r := range runes {
			l.glyphs = append(l.glyphs, glyph{
				r:        r,
				x0:       x0 + float64(k)*step,
				x1:       x0 + float64(k+1)*step,
				baseline: baseline,
				size:     size,
			})
		}
	}
	return l
}

func (pg *page) Text() (string, error) {
	if err := pg.load(); err != nil {
		return "", err
	}
	out := make([]string, 0, len(pg.lines))
	for _, l := range pg.lines {
		out = append(out, l.String())
	}
	return strings.Join(out, "\n"), nil
}

func fold(r rune) rune { return unicode.ToUpper(r) }

func (pg *page) Search(needle string) ([]calendar.Rect, error) {
	if err := pg.load(); err != nil {
		return nil, err
	}
	want := []rune(needle)
	if len(want) == 0 {
		return nil, nil
	}
	for i := range want {
		want[i] = fold(want[i])
	}

	var found []calendar.Rect
	for _, l := range pg.lines {
		for start := 0; start+len(want) <= len(l.glyphs); start++ {
			match := true
			for k, r := range want {
				if fold(l.glyphs[start+k].r) != r {
					match = false
					break
				}
			}
			if !match {
				continue
			}
			found = append(found, glyphsRect(l.glyphs[start:start+len(want)]))
			start += len(want) - 1
		}
	}
	return found, nil
}

func glyphsRect(gs []glyph) calendar.Rect {
	r := calendar.Rect{X0: math.Inf(1), Y0: math.Inf(1), X1: math.Inf(-1), Y1: math.Inf(-1)}
	for _, g := range gs {
		r.X0 = math.Min(r.X0, g.x0)
		r.X1 = math.Max(r.X1, g.x1)
		r.Y0 = math.Min(r.Y0, g.baseline-g.size*ascent)
		r.Y1 = math.Max(r.Y1, g.baseline+g.size*descent)
	}
	return r
}
