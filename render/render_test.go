package render

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"incident-report-bot/models"

	"github.com/apex/log"
	"github.com/apex/log/handlers/discard"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() log.Interface {
	return &log.Logger{Handler: discard.New(), Level: log.DebugLevel}
}

func charWidth(s string) float64 {
	return float64(len(s)) * 10
}

func TestWrap(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		maxWidth float64
		want     []string
	}{
		{name: "empty", text: "", maxWidth: 100, want: nil},
		{name: "whitespace only", text: "   ", maxWidth: 100, want: nil},
		{name: "short text is one trimmed line", text: "  hello world  ", maxWidth: 200, want: []string{"hello world"}},
		{name: "single long word is not split", text: "supercalifragilistic", maxWidth: 50, want: []string{"supercalifragilistic"}},
		{name: "greedy packing", text: "aa bb cc dd", maxWidth: 50, want: []string{"aa bb", "cc dd"}},
		{name: "exact fit stays on line", text: "aaaa bbbb", maxWidth: 90, want: []string{"aaaa bbbb"}},
		{name: "long word between short ones", text: "a verylongword b", maxWidth: 50, want: []string{"a", "verylongword", "b"}},
		{name: "fitting text keeps inner whitespace", text: "  Clashes  in\tIdlib.  ", maxWidth: 10000, want: []string{"Clashes  in\tIdlib."}},
		{name: "wrapped text collapses inner whitespace", text: "aa   bb\tcc", maxWidth: 50, want: []string{"aa bb", "cc"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Wrap(tt.text, tt.maxWidth, charWidth))
		})
	}
}

func TestWrapParagraphs(t *testing.T) {
	got := wrapParagraphs("title\n\naa bb cc\n", 50, charWidth)
	assert.Equal(t, []string{"title", "", "aa bb", "cc"}, got)
}

func solid(w, h int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func TestCoverCropsCenter(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 300, 100))
	for y := 0; y < 100; y++ {
		for x := 0; x < 300; x++ {
			switch {
			case x < 100:
				src.Set(x, y, color.RGBA{255, 0, 0, 255})
			case x < 200:
				src.Set(x, y, color.RGBA{0, 255, 0, 255})
			default:
				src.Set(x, y, color.RGBA{0, 0, 255, 255})
			}
		}
	}

	dst := Cover(src, 50, 50)
	assert.Equal(t, image.Rect(0, 0, 50, 50), dst.Bounds())

	center := dst.RGBAAt(25, 25)
	assert.InDelta(t, 0, int(center.R), 2)
	assert.InDelta(t, 255, int(center.G), 2)
	assert.InDelta(t, 0, int(center.B), 2)
}

func TestCoverNilBackground(t *testing.T) {
	dst := Cover(nil, 10, 20)
	assert.Equal(t, image.Rect(0, 0, 10, 20), dst.Bounds())
	assert.Equal(t, color.RGBA{0, 0, 0, 255}, dst.RGBAAt(5, 5))
}

func TestOrient(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 2, 1))
	red := color.RGBA{255, 0, 0, 255}
	blue := color.RGBA{0, 0, 255, 255}
	src.Set(0, 0, red)
	src.Set(1, 0, blue)

	rotated := Orient(src, 6)
	assert.Equal(t, image.Rect(0, 0, 1, 2), rotated.Bounds())
	assert.Equal(t, red, color.RGBAModel.Convert(rotated.At(0, 0)))
	assert.Equal(t, blue, color.RGBAModel.Convert(rotated.At(0, 1)))

	mirrored := Orient(src, 2)
	assert.Equal(t, blue, color.RGBAModel.Convert(mirrored.At(0, 0)))

	assert.Same(t, src, Orient(src, 1))
	assert.Same(t, src, Orient(src, 9))
}

func TestDarken(t *testing.T) {
	img := solid(2, 2, color.RGBA{200, 200, 200, 255})
	Darken(img, -0.3, 0.1)

	px := img.RGBAAt(0, 0)
	// 200 * 0.7 = 140, then (140-127)*1.1/0.9 + 127 = 142.9
	assert.Equal(t, uint8(142), px.R)
	assert.Equal(t, uint8(142), px.G)
	assert.Equal(t, uint8(142), px.B)
	assert.Equal(t, uint8(255), px.A)
}

func TestDecodeBackground(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, solid(4, 3, color.White)))

	img, err := DecodeBackground(buf.Bytes())
	require.NoError(t, err)
	assert.Equal(t, 4, img.Bounds().Dx())
	assert.Equal(t, 1, Orientation(buf.Bytes()))

	_, err = DecodeBackground([]byte("not an image"))
	var rerr *Error
	require.True(t, errors.As(err, &rerr))
	assert.Equal(t, "decode", rerr.Op)
}

func newTestRenderer(t *testing.T) *Renderer {
	return NewRenderer(Options{TempDir: t.TempDir()}, testLogger())
}

func decodeAsset(t *testing.T, a *Asset) image.Image {
	data, err := a.Bytes()
	require.NoError(t, err)
	img, err := jpeg.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	return img
}

func TestRenderNoIncidents(t *testing.T) {
	r := newTestRenderer(t)
	asset, err := r.Render(context.Background(), models.NewIncidentReport("2024-01-01", nil), nil)
	require.NoError(t, err)

	img := decodeAsset(t, asset)
	assert.Equal(t, image.Rect(0, 0, 1080, 1080), img.Bounds())
	assert.Equal(t, 1080, asset.Width)

	require.NoError(t, asset.Cleanup())
	_, err = os.Stat(asset.Path)
	assert.True(t, os.IsNotExist(err))
	assert.NoError(t, asset.Cleanup())
}

func TestRenderManyCountriesDoesNotFail(t *testing.T) {
	var countries []models.CountryIncident
	for i := 0; i < 8; i++ {
		countries = append(countries, models.CountryIncident{
			Country:   fmt.Sprintf("Country %d", i),
			DeathToll: models.KnownToll(i),
			Summary:   strings.Repeat("Long summary text that wraps across lines. ", 6),
		})
	}
	countries = append(countries, models.CountryIncident{Country: "Syria", DeathToll: models.UnknownDeathToll()})

	r := newTestRenderer(t)
	bg := solid(640, 480, color.RGBA{120, 130, 140, 255})
	asset, err := r.Render(context.Background(), models.NewIncidentReport("2024-01-01", countries), bg)
	require.NoError(t, err)
	defer asset.Cleanup()

	img := decodeAsset(t, asset)
	assert.Equal(t, 1080, img.Bounds().Dx())
	assert.Equal(t, 1080, img.Bounds().Dy())
}

func TestRenderDoesNotMutateReport(t *testing.T) {
	report := models.NewIncidentReport("2024-01-01", []models.CountryIncident{
		{Country: "Syria", DeathToll: models.KnownToll(5), Summary: "Clashes in Idlib."},
	})
	before := *report
	before.Countries = append([]models.CountryIncident(nil), report.Countries...)

	asset, err := newTestRenderer(t).Render(context.Background(), report, nil)
	require.NoError(t, err)
	defer asset.Cleanup()
	assert.Equal(t, before, *report)
}

func TestRenderErrors(t *testing.T) {
	dir := t.TempDir()
	var rerr *Error

	r := NewRenderer(Options{TempDir: dir, FontPath: filepath.Join(dir, "missing.ttf")}, testLogger())
	_, err := r.Render(context.Background(), models.NewIncidentReport("2024-01-01", nil), nil)
	require.True(t, errors.As(err, &rerr))
	assert.Equal(t, "font", rerr.Op)

	_, err = newTestRenderer(t).Render(context.Background(), models.NewIncidentReport("", nil), nil)
	require.True(t, errors.As(err, &rerr))
	assert.ErrorIs(t, err, models.ErrMissingDate)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = newTestRenderer(t).Render(ctx, models.NewIncidentReport("2024-01-01", nil), nil)
	assert.ErrorIs(t, err, context.Canceled)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestRenderMessage(t *testing.T) {
	r := newTestRenderer(t)
	msg := "📊 Violence Report for 2024-01-01\n\nNo incidents of violence reported today."
	asset, err := r.RenderMessage(context.Background(), msg, solid(100, 300, color.White))
	require.NoError(t, err)
	defer asset.Cleanup()

	img := decodeAsset(t, asset)
	assert.Equal(t, 1080, img.Bounds().Dx())
}

func TestAssetCopyTo(t *testing.T) {
	asset, err := newTestRenderer(t).Render(context.Background(), models.NewIncidentReport("2024-01-01", nil), nil)
	require.NoError(t, err)
	defer asset.Cleanup()

	out := filepath.Join(t.TempDir(), "output")
	path, err := asset.CopyTo(out, "violence_report_20240101.jpg")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(out, "violence_report_20240101.jpg"), path)

	want, err := asset.Bytes()
	require.NoError(t, err)
	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestAssetCopyToRemovesPartialTarget(t *testing.T) {
	asset := &Asset{Path: t.TempDir()}
	out := t.TempDir()

	_, err := asset.CopyTo(out, "violence_report_20240101.jpg")
	require.Error(t, err)
	assert.NoFileExists(t, filepath.Join(out, "violence_report_20240101.jpg"))
}
