package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"incident-report-bot/formatter"
	"incident-report-bot/models"
	"incident-report-bot/render"
	"incident-report-bot/social"
	"incident-report-bot/uploader"

	"github.com/apex/log"
	"github.com/apex/log/handlers/discard"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCollector struct{ report *models.IncidentReport }

func (f *fakeCollector) Collect(ctx context.Context) *models.IncidentReport { return f.report }

type fakeImages struct {
	data []byte
	err  error
}

func (f *fakeImages) BackgroundURL(ctx context.Context, query string) string {
	return "https://images.example.com/bg.jpg"
}

func (f *fakeImages) Download(ctx context.Context, url string) ([]byte, error) {
	return f.data, f.err
}

func pngBytes(t *testing.T) []byte {
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 4, 4))))
	return buf.Bytes()
}

type fakeRenderer struct {
	dir   string
	calls int
	err   error
}

func (f *fakeRenderer) Render(ctx context.Context, report *models.IncidentReport, bg image.Image) (*render.Asset, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	file, err := os.CreateTemp(f.dir, "report-*.jpg")
	if err != nil {
		return nil, err
	}
	file.WriteString("jpeg")
	file.Close()
	return &render.Asset{Path: file.Name(), Width: 1080, Height: 1080}, nil
}

type fakeUploader struct {
	err   error
	paths []string
}

func (f *fakeUploader) Name() string { return "fake" }

func (f *fakeUploader) UploadFile(ctx context.Context, path string, meta uploader.Meta) (string, error) {
	f.paths = append(f.paths, path)
	if f.err != nil {
		return "", f.err
	}
	return "https://i.example.com/report.jpg", nil
}

type fakePublisher struct {
	name     string
	err      error
	texts    []string
	replies  []string
	images   []string
	captions []string
}

func (f *fakePublisher) Name() string { return f.name }

func (f *fakePublisher) PostText(ctx context.Context, text, replyTo string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.texts = append(f.texts, text)
	f.replies = append(f.replies, replyTo)
	return fmt.Sprintf("%s-%d", f.name, len(f.texts)), nil
}

func (f *fakePublisher) PostImage(ctx context.Context, imageURL, caption string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.images = append(f.images, imageURL)
	f.captions = append(f.captions, caption)
	return f.name + "-media", nil
}

type fakeArchive struct{ saved []*models.IncidentReport }

func (f *fakeArchive) Save(ctx context.Context, r *models.IncidentReport) error {
	f.saved = append(f.saved, r)
	return nil
}

type fakeRecorder struct{ runs, events []models.RunEvent }

func (f *fakeRecorder) SaveRun(ctx context.Context, ev models.RunEvent) error {
	f.runs = append(f.runs, ev)
	return nil
}

func (f *fakeRecorder) PublishRunEvent(ctx context.Context, ev models.RunEvent) error {
	f.events = append(f.events, ev)
	return nil
}

type fakeNotifier struct{ failures []models.RunEvent }

func (f *fakeNotifier) NotifyFailure(ctx context.Context, ev models.RunEvent) error {
	f.failures = append(f.failures, ev)
	return nil
}

type harness struct {
	collector *fakeCollector
	images    *fakeImages
	renderer  *fakeRenderer
	uploader  *fakeUploader
	twitter   *fakePublisher
	instagram *fakePublisher
	archive   *fakeArchive
	recorder  *fakeRecorder
	notifier  *fakeNotifier
	opts      Options
}

func newHarness(t *testing.T, report *models.IncidentReport) *harness {
	return &harness{
		collector: &fakeCollector{report: report},
		images:    &fakeImages{data: pngBytes(t)},
		renderer:  &fakeRenderer{dir: t.TempDir()},
		uploader:  &fakeUploader{},
		twitter:   &fakePublisher{name: "twitter"},
		instagram: &fakePublisher{name: "instagram"},
		archive:   &fakeArchive{},
		recorder:  &fakeRecorder{},
		notifier:  &fakeNotifier{},
		opts: Options{
			Targets:             []string{TargetTwitter, TargetInstagram},
			SkipEmptyImagePosts: true,
			HashtagCount:        2,
			OutputDir:           t.TempDir(),
		},
	}
}

func (h *harness) pipeline() *Pipeline {
	return New(Deps{
		Collector: h.collector,
		Formatter: formatter.DefaultFormatter(),
		Images:    h.images,
		Renderer:  h.renderer,
		Uploader:  h.uploader,
		Publishers: map[string]social.Publisher{
			TargetTwitter:   h.twitter,
			TargetInstagram: h.instagram,
		},
		Archive:  h.archive,
		Runs:     h.recorder,
		Events:   h.recorder,
		Notifier: h.notifier,
		Hashtags: formatter.NewHashtags([]string{"#A", "#B"}, rand.New(rand.NewSource(1))),
	}, h.opts, &log.Logger{Handler: discard.New(), Level: log.DebugLevel})
}

func sampleReport() *models.IncidentReport {
	return models.NewIncidentReport("2025-03-14", []models.CountryIncident{
		{Country: "Syria", DeathToll: models.KnownToll(12), Summary: "Clashes reported."},
	})
}

func TestRunPublishesToAllTargets(t *testing.T) {
	h := newHarness(t, sampleReport())
	p := h.pipeline()

	res := p.Run(context.Background())

	require.NoError(t, res.Err)
	assert.Equal(t, Done, res.State)
	assert.Equal(t, "2025-03-14", res.Date)
	assert.Equal(t, map[string]string{"twitter": "twitter-1", "instagram": "instagram-media"}, res.PostIDs)
	assert.Equal(t, "https://i.example.com/report.jpg", res.ImageURL)

	require.Len(t, h.twitter.texts, 1)
	assert.Equal(t, res.Message, h.twitter.texts[0])
	assert.Contains(t, h.twitter.texts[0], "Syria")

	require.Len(t, h.instagram.captions, 1)
	assert.Equal(t, []string{"https://i.example.com/report.jpg"}, h.instagram.images)
	assert.Contains(t, h.instagram.captions[0], "🔴 Violence Report for 2025-03-14")
	assert.Contains(t, h.instagram.captions[0], "#A")
	assert.Contains(t, h.instagram.captions[0], "#B")

	require.Len(t, h.uploader.paths, 1)
	assert.NoFileExists(t, h.uploader.paths[0])

	assert.Len(t, h.archive.saved, 1)
	require.Len(t, h.recorder.runs, 1)
	assert.Equal(t, "done", h.recorder.runs[0].State)
	assert.Len(t, h.recorder.events, 1)
	assert.Empty(t, h.notifier.failures)
	assert.Same(t, res, p.LastResult())
}

func TestRunFailsFastOnDegradedReport(t *testing.T) {
	h := newHarness(t, models.Degraded("2025-03-14", "quota exceeded"))

	res := h.pipeline().Run(context.Background())

	assert.Equal(t, Failed, res.State)
	assert.ErrorIs(t, res.Err, ErrDegradedReport)
	assert.Contains(t, res.Err.Error(), "quota exceeded")
	assert.Empty(t, h.twitter.texts)
	assert.Zero(t, h.renderer.calls)
	assert.Len(t, h.archive.saved, 1)
	require.Len(t, h.notifier.failures, 1)
	assert.Equal(t, "failed", h.notifier.failures[0].State)
}

func TestRunSkipsImageWhenNoIncidents(t *testing.T) {
	h := newHarness(t, models.NewIncidentReport("2025-03-14", nil))

	res := h.pipeline().Run(context.Background())

	require.NoError(t, res.Err)
	assert.Equal(t, Done, res.State)
	assert.Zero(t, h.renderer.calls)
	assert.Empty(t, h.instagram.images)
	require.Len(t, h.twitter.texts, 1)
	assert.Contains(t, h.twitter.texts[0], "No incidents of violence reported today.")
}

func TestRunRendersEmptyReportWhenConfigured(t *testing.T) {
	h := newHarness(t, models.NewIncidentReport("2025-03-14", nil))
	h.opts.SkipEmptyImagePosts = false

	res := h.pipeline().Run(context.Background())

	require.NoError(t, res.Err)
	assert.Equal(t, 1, h.renderer.calls)
	require.Len(t, h.instagram.captions, 1)
	assert.Contains(t, h.instagram.captions[0], "No incidents reported today.")
}

func TestRunKeepsAssetWhenUploadFails(t *testing.T) {
	h := newHarness(t, sampleReport())
	h.uploader.err = &uploader.UploadError{Provider: "fake", Attempts: 4, Err: errors.New("503")}

	res := h.pipeline().Run(context.Background())

	assert.Equal(t, Failed, res.State)
	var uerr *uploader.UploadError
	assert.True(t, errors.As(res.Err, &uerr))
	assert.Empty(t, h.twitter.texts)
	require.Len(t, h.uploader.paths, 1)
	assert.FileExists(t, h.uploader.paths[0])
	assert.Len(t, h.notifier.failures, 1)
}

func TestRunFailsOnUndecodableBackground(t *testing.T) {
	h := newHarness(t, sampleReport())
	h.images.data = []byte("<html>not an image</html>")

	res := h.pipeline().Run(context.Background())

	assert.Equal(t, Failed, res.State)
	var rerr *render.Error
	require.True(t, errors.As(res.Err, &rerr))
	assert.Equal(t, "decode", rerr.Op)
	assert.Zero(t, h.renderer.calls)
	assert.Empty(t, h.uploader.paths)
	assert.Empty(t, h.twitter.texts)
	assert.Empty(t, h.instagram.images)
	assert.Empty(t, res.ImageURL)
	require.Len(t, h.notifier.failures, 1)
	assert.Equal(t, "failed", h.notifier.failures[0].State)
}

func TestRunFailsOnBackgroundDownloadError(t *testing.T) {
	h := newHarness(t, sampleReport())
	h.images.err = errors.New("connection reset")

	res := h.pipeline().Run(context.Background())

	assert.Equal(t, Failed, res.State)
	var rerr *render.Error
	require.True(t, errors.As(res.Err, &rerr))
	assert.Equal(t, "download", rerr.Op)
	assert.Contains(t, res.Err.Error(), "connection reset")
	assert.Zero(t, h.renderer.calls)
	assert.Empty(t, h.uploader.paths)
	assert.Empty(t, h.instagram.images)
}

func TestRunWithRealRendererRejectsUndecodableBackground(t *testing.T) {
	h := newHarness(t, sampleReport())
	h.opts.Targets = []string{TargetInstagram}
	h.images.data = []byte("<html>not an image</html>")
	p := h.pipeline()
	p.deps.Renderer = render.NewRenderer(render.Options{TempDir: t.TempDir()}, &log.Logger{Handler: discard.New()})

	res := p.Run(context.Background())

	assert.Equal(t, Failed, res.State)
	var rerr *render.Error
	assert.True(t, errors.As(res.Err, &rerr))
	assert.Empty(t, h.uploader.paths)
	assert.Empty(t, h.instagram.images)
}

func TestRunStopsOnFirstPublishError(t *testing.T) {
	h := newHarness(t, sampleReport())
	h.instagram.err = errors.New("invalid token")

	res := h.pipeline().Run(context.Background())

	assert.Equal(t, Failed, res.State)
	assert.Contains(t, res.Err.Error(), "failed to publish to instagram")
	assert.Equal(t, "twitter-1", res.PostIDs["twitter"])
	require.Len(t, h.recorder.runs, 1)
	assert.Equal(t, "twitter-1", h.recorder.runs[0].PostIDs["twitter"])
	assert.FileExists(t, h.uploader.paths[0])
}

func TestRunPostsThreadForLongReports(t *testing.T) {
	summary := strings.Repeat("Reported clashes continued overnight. ", 3)
	report := models.NewIncidentReport("2025-03-14", []models.CountryIncident{
		{Country: "Syria", DeathToll: models.KnownToll(12), Summary: summary},
		{Country: "Iraq", DeathToll: models.KnownToll(3), Summary: summary},
		{Country: "Yemen", DeathToll: models.UnknownDeathToll(), Summary: summary},
	})
	h := newHarness(t, report)
	h.opts.Targets = []string{TargetTwitter}
	h.opts.TwitterThread = true

	res := h.pipeline().Run(context.Background())

	require.NoError(t, res.Err)
	require.Greater(t, len(h.twitter.texts), 1)
	assert.Equal(t, "twitter-1", res.PostIDs["twitter"])
	assert.Equal(t, "", h.twitter.replies[0])
	for i := 1; i < len(h.twitter.replies); i++ {
		assert.Equal(t, fmt.Sprintf("twitter-%d", i), h.twitter.replies[i])
	}
	for _, part := range h.twitter.texts {
		assert.LessOrEqual(t, formatter.Length(part), formatter.MaxMessageLength)
	}
	assert.Zero(t, h.renderer.calls)
}

func TestRunPostsSummaryWithoutThread(t *testing.T) {
	summary := strings.Repeat("Reported clashes continued overnight. ", 3)
	report := models.NewIncidentReport("2025-03-14", []models.CountryIncident{
		{Country: "Syria", DeathToll: models.KnownToll(12), Summary: summary},
		{Country: "Iraq", DeathToll: models.KnownToll(3), Summary: summary},
	})
	h := newHarness(t, report)
	h.opts.Targets = []string{TargetTwitter}

	res := h.pipeline().Run(context.Background())

	require.NoError(t, res.Err)
	require.Len(t, h.twitter.texts, 1)
	assert.Contains(t, h.twitter.texts[0], "2 countries affected")
}

func TestRenderOnly(t *testing.T) {
	h := newHarness(t, sampleReport())

	path, err := h.pipeline().RenderOnly(context.Background())

	require.NoError(t, err)
	assert.Equal(t, filepath.Join(h.opts.OutputDir, "violence_report_20250314.jpg"), path)
	assert.FileExists(t, path)
	entries, err := os.ReadDir(h.renderer.dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
	assert.Empty(t, h.twitter.texts)
}

func TestRenderOnlyDegraded(t *testing.T) {
	h := newHarness(t, models.Degraded("2025-03-14", "timeout"))

	_, err := h.pipeline().RenderOnly(context.Background())
	assert.ErrorIs(t, err, ErrDegradedReport)
	assert.Zero(t, h.renderer.calls)
}

func TestRenderOnlyUndecodableBackground(t *testing.T) {
	h := newHarness(t, sampleReport())
	h.images.data = []byte("<html>not an image</html>")

	_, err := h.pipeline().RenderOnly(context.Background())

	var rerr *render.Error
	require.True(t, errors.As(err, &rerr))
	assert.Equal(t, "decode", rerr.Op)
	assert.Zero(t, h.renderer.calls)
	entries, err := os.ReadDir(h.opts.OutputDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestLastRun(t *testing.T) {
	h := newHarness(t, sampleReport())
	p := h.pipeline()

	ev, err := p.LastRun(context.Background())
	require.NoError(t, err)
	assert.Nil(t, ev)

	p.Run(context.Background())
	ev, err = p.LastRun(context.Background())
	require.NoError(t, err)
	require.NotNil(t, ev)
	assert.Equal(t, "done", ev.State)
	assert.Equal(t, 1, ev.Countries)
}
