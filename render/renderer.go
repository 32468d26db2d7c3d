package render

import (
	"context"
	"errors"
	"image"
	"image/jpeg"
	"os"
	"strings"

	"incident-report-bot/models"

	"github.com/apex/log"
	"github.com/fogleman/gg"
	"golang.org/x/image/font"
)

const (
	DefaultSize    = 1080
	DefaultQuality = 90

	titleText      = "Daily Violence Report"
	noIncidentText = "No incidents reported today"

	titleY          = 90
	dateY           = 150
	contentTopY     = 230
	margin          = 60
	indent          = 80
	headingAdvance  = 40
	casualtyAdvance = 45
	summaryLeading  = 34
	countrySpacing  = 30
	messageLeading  = 50
	messageMargin   = 100
)

// Options controls the canvas and the readability transform.
type Options struct {
	Width        int
	Height       int
	FontPath     string
	TempDir      string
	Quality      int
	Brightness   float64
	Contrast     float64
	OverlayAlpha float64
}

// Renderer draws incident reports over a background photo.
type Renderer struct {
	opts Options
	log  log.Interface
}

// NewRenderer creates a renderer, filling unset options with defaults.
func NewRenderer(opts Options, logger log.Interface) *Renderer {
	if opts.Width <= 0 {
		opts.Width = DefaultSize
	}
	if opts.Height <= 0 {
		opts.Height = DefaultSize
	}
	if opts.Quality <= 0 || opts.Quality > 100 {
		opts.Quality = DefaultQuality
	}
	if opts.Brightness == 0 {
		opts.Brightness = -0.3
	}
	if opts.Contrast == 0 {
		opts.Contrast = 0.1
	}
	if opts.OverlayAlpha <= 0 || opts.OverlayAlpha >= 1 {
		opts.OverlayAlpha = 0.4
	}
	return &Renderer{opts: opts, log: logger}
}

type faces struct {
	title, date, heading, body, summary font.Face
}

func (f *faces) Close() {
	for _, ff := range []font.Face{f.title, f.date, f.heading, f.body, f.summary} {
		if ff != nil {
			ff.Close()
		}
	}
}

func (r *Renderer) loadFaces() (*faces, error) {
	set, err := loadFonts(r.opts.FontPath)
	if err != nil {
		return nil, err
	}

	fs := &faces{}
	specs := []struct {
		dst  *font.Face
		size float64
		bold bool
	}{
		{&fs.title, 56, true},
		{&fs.date, 36, false},
		{&fs.heading, 40, true},
		{&fs.body, 30, false},
		{&fs.summary, 26, false},
	}
	for _, s := range specs {
		src := set.regular
		if s.bold {
			src = set.bold
		}
		ff, err := face(src, s.size)
		if err != nil {
			fs.Close()
			return nil, err
		}
		*s.dst = ff
	}
	return fs, nil
}

// Render draws the report layout over background, which may be nil.
func (r *Renderer) Render(ctx context.Context, report *models.IncidentReport, background image.Image) (*Asset, error) {
	if err := ctx.Err(); err != nil {
		return nil, fail("render", err)
	}
	if report == nil {
		return nil, fail("validate", errors.New("report is nil"))
	}
	if err := report.Validate(); err != nil {
		return nil, fail("validate", err)
	}

	fs, err := r.loadFaces()
	if err != nil {
		return nil, fail("font", err)
	}
	defer fs.Close()

	dc := r.canvas(background)
	w, h := float64(r.opts.Width), float64(r.opts.Height)
	dc.SetRGB(1, 1, 1)

	dc.SetFontFace(fs.title)
	dc.DrawStringAnchored(titleText, w/2, titleY, 0.5, 0.5)
	dc.SetFontFace(fs.date)
	dc.DrawStringAnchored(report.Date, w/2, dateY, 0.5, 0.5)

	if len(report.Countries) == 0 {
		dc.SetFontFace(fs.body)
		dc.DrawStringAnchored(noIncidentText, w/2, h/2, 0.5, 0.5)
		return r.save(dc.Image())
	}

	if len(report.Countries) > 5 {
		r.log.WithField("countries", len(report.Countries)).Warn("Report exceeds five countries, layout may overflow the canvas")
	}

	y := float64(contentTopY)
	for _, c := range report.Countries {
		dc.SetFontFace(fs.heading)
		dc.DrawString(printable(fs.heading, c.Country), margin, y)
		y += headingAdvance

		dc.SetFontFace(fs.body)
		dc.DrawString("Casualties: "+c.DeathToll.String(), indent, y)
		y += casualtyAdvance

		dc.SetFontFace(fs.summary)
		for _, line := range Wrap(printable(fs.summary, c.Summary), w-2*margin, measurer(dc)) {
			dc.DrawString(line, indent, y)
			y += summaryLeading
		}
		y += countrySpacing
	}

	return r.save(dc.Image())
}

// RenderMessage draws a pre-formatted message, each wrapped line centered, the block centered vertically.
func (r *Renderer) RenderMessage(ctx context.Context, message string, background image.Image) (*Asset, error) {
	if err := ctx.Err(); err != nil {
		return nil, fail("render", err)
	}

	set, err := loadFonts(r.opts.FontPath)
	if err != nil {
		return nil, fail("font", err)
	}
	body, err := face(set.regular, 32)
	if err != nil {
		return nil, fail("font", err)
	}
	defer body.Close()

	dc := r.canvas(background)
	w, h := float64(r.opts.Width), float64(r.opts.Height)
	dc.SetRGB(1, 1, 1)
	dc.SetFontFace(body)

	lines := wrapParagraphs(printable(body, message), w-messageMargin, measurer(dc))
	y := (h - float64(len(lines)*messageLeading)) / 2
	for _, line := range lines {
		dc.DrawStringAnchored(line, w/2, y+messageLeading/2, 0.5, 0.5)
		y += messageLeading
	}

	return r.save(dc.Image())
}

// canvas prepares the darkened, overlaid background.
func (r *Renderer) canvas(background image.Image) *gg.Context {
	img := Cover(background, r.opts.Width, r.opts.Height)
	Darken(img, r.opts.Brightness, r.opts.Contrast)

	dc := gg.NewContextForRGBA(img)
	dc.SetRGBA(0, 0, 0, r.opts.OverlayAlpha)
	dc.DrawRectangle(0, 0, float64(r.opts.Width), float64(r.opts.Height))
	dc.Fill()
	return dc
}

func (r *Renderer) save(img image.Image) (*Asset, error) {
	if r.opts.TempDir != "" {
		if err := os.MkdirAll(r.opts.TempDir, 0o755); err != nil {
			return nil, fail("write", err)
		}
	}

	f, err := os.CreateTemp(r.opts.TempDir, "report-*.jpg")
	if err != nil {
		return nil, fail("write", err)
	}
	if err := jpeg.Encode(f, img, &jpeg.Options{Quality: r.opts.Quality}); err != nil {
		f.Close()
		os.Remove(f.Name())
		return nil, fail("encode", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return nil, fail("write", err)
	}

	r.log.WithField("path", f.Name()).Debug("Rendered report image")
	return &Asset{Path: f.Name(), Width: r.opts.Width, Height: r.opts.Height}, nil
}

func measurer(dc *gg.Context) func(string) float64 {
	return func(s string) float64 {
		w, _ := dc.MeasureString(s)
		return w
	}
}

// printable drops runes the face has no glyph for, such as flag emoji.
func printable(ff font.Face, s string) string {
	return strings.Map(func(r rune) rune {
		if r == '\n' || r == ' ' {
			return r
		}
		if _, ok := ff.GlyphAdvance(r); !ok {
			return -1
		}
		return r
	}, s)
}
