package pdfdoc

import (
	"image"
	"image/color"
	"math"
	"sync"

	"github.com/pkg/errors"
	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"

	"github.com/esmeraldinha/backend/core/calendar"
)

// rendered images are capped to this many pixels per side
const maxRenderSide = 8192

var (
	regularFont     *opentype.Font
	regularFontErr  error
	regularFontOnce sync.Once

	facesMu sync.Mutex
	faces   = make(map[int]font.Face) // {size in 1/4 px: face}

	ruleColor = color.Gray{Y: 0x80}
)

func parseRegularFont() (*opentype.Font, error) {
	regularFontOnce.Do(func() {
		regularFont, regularFontErr = opentype.Parse(goregular.TTF)
	})
	return regularFont, errors.Wrap(regularFontErr, "parsing font")
}

func faceOf(size float64) (font.Face, error) {
	key := int(math.Round(size * 4))
	if key < 4 {
		key = 4
	}

	facesMu.Lock()
	defer facesMu.Unlock()
	if f, ok := faces[key]; ok {
		return f, nil
	}
	fnt, err := parseRegularFont()
	if err != nil {
		return nil, err
	}
	face, err := opentype.NewFace(fnt, &opentype.FaceOptions{Size: float64(key) / 4, DPI: 72, Hinting: font.HintingFull})
	if err != nil {
		return nil, errors.Wrap(err, "creating font face")
	}
	faces[key] = face
	return face, nil
}

// RenderRegion redraws the rectangles and the text of `clip` on a white canvas.
// Page images and vector paths other than rectangles are not drawn.
func (pg *page) RenderRegion(clip calendar.Rect, scale float64) (image.Image, error) {
	if err := pg.load(); err != nil {
		return nil, err
	}
	if scale <= 0 {
		return nil, errors.Errorf("invalid scale %v", scale)
	}

	w := int(math.Ceil(clip.Width() * scale))
	h := int(math.Ceil(clip.Height() * scale))
	if w <= 0 || h <= 0 {
		return nil, errors.Errorf("empty region %+v", clip)
	}
	if w > maxRenderSide || h > maxRenderSide {
		return nil, errors.Errorf("region %+v too large at scale %v", clip, scale)
	}

	img := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), image.White, image.Point{}, draw.Src)

	// page units -> region pixels
	px := func(x float64) int { return int(math.Round((x - clip.X0) * scale)) }
	py := func(y float64) int { return int(math.Round((y - clip.Y0) * scale)) }

	for _, r := range pg.rects {
		x0, x1 := r.Min.X-pg.media.x0, r.Max.X-pg.media.x0
		top, bottom := pg.toTop(math.Max(r.Min.Y, r.Max.Y)), pg.toTop(math.Min(r.Min.Y, r.Max.Y))
		strokeRect(img, image.Rect(px(math.Min(x0, x1)), py(top), px(math.Max(x0, x1)), py(bottom)))
	}

	for _, l := range pg.lines {
		for _, g := range l.glyphs {
			if g.r == ' ' || g.x1 < clip.X0 || g.x0 > clip.X1 {
				continue
			}
			if g.baseline+g.size*descent < clip.Y0 || g.baseline-g.size*ascent > clip.Y1 {
				continue
			}
			face, err := faceOf(g.size * scale)
			if err != nil {
				return nil, err
			}
			d := font.Drawer{
				Dst:  img,
				Src:  image.Black,
				Face: face,
				Dot:  fixed.P(px(g.x0), py(g.baseline)),
			}
			d.DrawString(string(g.r))
		}
	}
	return img, nil
}

// strokeRect draws the 1px outline of `r`, clipped to `img`.
func strokeRect(img *image.RGBA, r image.Rectangle) {
	r = r.Canon()
	b := img.Bounds()
	if !r.Overlaps(b) && !(r.Dx() == 0 || r.Dy() == 0) {
		return
	}
	for x := r.Min.X; x <= r.Max.X; x++ {
		setIn(img, b, x, r.Min.Y)
		setIn(img, b, x, r.Max.Y)
	}
	for y := r.Min.Y; y <= r.Max.Y; y++ {
		setIn(img, b, r.Min.X, y)
		setIn(img, b, r.Max.X, y)
	}
}

func setIn(img *image.RGBA, b image.Rectangle, x, y int) {
	if (image.Point{X: x, Y: y}).In(b) {
		img.Set(x, y, ruleColor)
	}
}
