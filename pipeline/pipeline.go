package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"
	"strings"
	"sync"
	"time"

	"incident-report-bot/archive"
	"incident-report-bot/formatter"
	"incident-report-bot/metrics"
	"incident-report-bot/models"
	"incident-report-bot/notify"
	"incident-report-bot/render"
	"incident-report-bot/social"
	"incident-report-bot/twitter"
	"incident-report-bot/uploader"

	"github.com/apex/log"
)

const (
	TargetTwitter   = "twitter"
	TargetInstagram = "instagram"
)

// ErrDegradedReport is returned for runs whose report carries a collection error.
var ErrDegradedReport = errors.New("report collection failed")

type Collector interface {
	Collect(ctx context.Context) *models.IncidentReport
}

type Backgrounds interface {
	BackgroundURL(ctx context.Context, query string) string
	Download(ctx context.Context, url string) ([]byte, error)
}

type Renderer interface {
	Render(ctx context.Context, report *models.IncidentReport, background image.Image) (*render.Asset, error)
}

type Uploader interface {
	UploadFile(ctx context.Context, path string, meta uploader.Meta) (string, error)
	Name() string
}

type RunRecorder interface {
	SaveRun(ctx context.Context, ev models.RunEvent) error
}

type EventPublisher interface {
	PublishRunEvent(ctx context.Context, ev models.RunEvent) error
}

// Deps are the collaborators of a pipeline. Runs, Events and Notifier are optional.
type Deps struct {
	Collector  Collector
	Formatter  *formatter.Formatter
	Images     Backgrounds
	Renderer   Renderer
	Uploader   Uploader
	Publishers map[string]social.Publisher
	Archive    archive.Archiver
	Runs       RunRecorder
	Events     EventPublisher
	Notifier   notify.Notifier
	Hashtags   *formatter.Hashtags
}

type Options struct {
	Targets             []string
	TwitterThread       bool
	ThreadDelay         time.Duration
	SkipEmptyImagePosts bool
	HashtagCount        int
	ImageQuery          string
	OutputDir           string
}

// RunResult is the outcome of one run.
type RunResult struct {
	State     State
	Date      string
	Countries int
	Message   string
	ImageURL  string
	PostIDs   map[string]string
	Err       error
	Started   time.Time
	Finished  time.Time
}

// Event converts the result into the message published after a run.
func (r *RunResult) Event() models.RunEvent {
	ev := models.RunEvent{
		Date:      r.Date,
		State:     string(r.State),
		Countries: r.Countries,
		ImageURL:  r.ImageURL,
		StartedAt: r.Started,
		EndedAt:   r.Finished,
	}
	if len(r.PostIDs) > 0 {
		ev.PostIDs = r.PostIDs
	}
	if r.Err != nil {
		ev.Error = r.Err.Error()
	}
	return ev
}

// Pipeline fetches, formats, renders and publishes one report per run.
type Pipeline struct {
	deps Deps
	opts Options
	now  func() time.Time
	log  log.Interface

	mu   sync.Mutex
	last *RunResult
}

func New(deps Deps, opts Options, logger log.Interface) *Pipeline {
	if deps.Formatter == nil {
		deps.Formatter = formatter.DefaultFormatter()
	}
	if deps.Notifier == nil {
		deps.Notifier = notify.Nop{}
	}
	if deps.Hashtags == nil {
		deps.Hashtags = formatter.NewHashtags(nil, nil)
	}
	return &Pipeline{deps: deps, opts: opts, now: time.Now, log: logger}
}

// LastResult returns the most recent finished run, or nil.
func (p *Pipeline) LastResult() *RunResult {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.last
}

// LastRun returns the last finished run as an event. It serves status
// requests when no database is configured.
func (p *Pipeline) LastRun(ctx context.Context) (*models.RunEvent, error) {
	res := p.LastResult()
	if res == nil {
		return nil, nil
	}
	ev := res.Event()
	return &ev, nil
}

func (p *Pipeline) hasTarget(name string) bool {
	for _, t := range p.opts.Targets {
		if t == name {
			return true
		}
	}
	return false
}

// Run executes one full run. It never panics on collaborator errors; the
// returned result carries the final state and error.
func (p *Pipeline) Run(ctx context.Context) *RunResult {
	run := NewRun()
	res := &RunResult{State: Fetching, PostIDs: map[string]string{}, Started: p.now()}
	var asset *render.Asset

	fail := func(err error) *RunResult {
		_ = run.Transition(Failed)
		res.Err = err
		if asset != nil {
			p.log.WithField("path", asset.Path).Warn("Keeping rendered image for inspection")
		}
		return p.finish(ctx, run, res)
	}

	report := p.fetch(ctx)
	res.Date = report.Date
	res.Countries = len(report.Countries)
	logger := p.log.WithField("date", report.Date)
	if report.HasError() {
		return fail(fmt.Errorf("%w: %s", ErrDegradedReport, report.Error))
	}

	if err := run.Transition(Formatting); err != nil {
		return fail(err)
	}
	start := time.Now()
	msg, err := p.deps.Formatter.Format(report)
	metrics.ObserveStage(string(Formatting), start)
	if err != nil {
		return fail(err)
	}
	res.Message = msg.Text()

	if p.needsImage(report) {
		if err := run.Transition(Rendering); err != nil {
			return fail(err)
		}
		asset, res.ImageURL, err = p.renderAndUpload(ctx, report)
		if err != nil {
			return fail(err)
		}
	}

	if err := run.Transition(Publishing); err != nil {
		return fail(err)
	}
	start = time.Now()
	for _, target := range p.opts.Targets {
		if err := p.publish(ctx, target, report, msg, res); err != nil {
			metrics.PostsTotal.WithLabelValues(target, "failure").Inc()
			return fail(fmt.Errorf("failed to publish to %s: %w", target, err))
		}
	}
	metrics.ObserveStage(string(Publishing), start)

	if err := asset.Cleanup(); err != nil {
		logger.WithError(err).Warn("Failed to remove rendered image")
	}
	if err := run.Transition(Done); err != nil {
		return fail(err)
	}
	logger.WithField("posts", len(res.PostIDs)).Info("Run completed")
	return p.finish(ctx, run, res)
}

// RenderOnly renders the report to OutputDir without publishing and returns the file path.
func (p *Pipeline) RenderOnly(ctx context.Context) (string, error) {
	report := p.fetch(ctx)
	if report.HasError() {
		return "", fmt.Errorf("%w: %s", ErrDegradedReport, report.Error)
	}

	bg, err := p.background(ctx)
	if err != nil {
		return "", err
	}
	asset, err := p.deps.Renderer.Render(ctx, report, bg)
	if err != nil {
		return "", err
	}
	defer asset.Cleanup()

	name := fmt.Sprintf("violence_report_%s.jpg", strings.ReplaceAll(report.Date, "-", ""))
	path, err := asset.CopyTo(p.opts.OutputDir, name)
	if err != nil {
		return "", err
	}
	p.log.WithField("path", path).Info("Report image saved")
	return path, nil
}

func (p *Pipeline) fetch(ctx context.Context) *models.IncidentReport {
	start := time.Now()
	report := p.deps.Collector.Collect(ctx)
	metrics.ObserveStage(string(Fetching), start)

	if p.deps.Archive != nil {
		if err := p.deps.Archive.Save(ctx, report); err != nil {
			p.log.WithError(err).WithField("date", report.Date).Warn("Failed to archive report")
		}
	}
	return report
}

func (p *Pipeline) needsImage(report *models.IncidentReport) bool {
	if !p.hasTarget(TargetInstagram) {
		return false
	}
	return len(report.Countries) > 0 || !p.opts.SkipEmptyImagePosts
}

// background downloads and decodes the background photo. Without an image
// source the report is drawn on black.
func (p *Pipeline) background(ctx context.Context) (image.Image, error) {
	if p.deps.Images == nil {
		return nil, nil
	}
	url := p.deps.Images.BackgroundURL(ctx, p.opts.ImageQuery)
	data, err := p.deps.Images.Download(ctx, url)
	if err != nil {
		return nil, &render.Error{Op: "download", Err: err}
	}
	img, err := render.DecodeBackground(data)
	if err != nil {
		p.log.WithError(err).WithField("url", url).Error("Failed to decode background image")
		return nil, err
	}
	return img, nil
}

func (p *Pipeline) renderAndUpload(ctx context.Context, report *models.IncidentReport) (*render.Asset, string, error) {
	start := time.Now()
	bg, err := p.background(ctx)
	if err != nil {
		return nil, "", err
	}
	asset, err := p.deps.Renderer.Render(ctx, report, bg)
	metrics.ObserveStage(string(Rendering), start)
	if err != nil {
		return nil, "", err
	}

	start = time.Now()
	url, err := p.deps.Uploader.UploadFile(ctx, asset.Path, uploader.Meta{
		Title:       "Violence Report " + report.Date,
		Description: fmt.Sprintf("Daily report for %s, %d countries", report.Date, len(report.Countries)),
	})
	metrics.ObserveStage("upload", start)
	if err != nil {
		return asset, "", err
	}
	p.log.WithFields(log.Fields{"provider": p.deps.Uploader.Name(), "url": url}).Info("Report image uploaded")
	return asset, url, nil
}

func (p *Pipeline) publish(ctx context.Context, target string, report *models.IncidentReport, msg formatter.Message, res *RunResult) error {
	pub, ok := p.deps.Publishers[target]
	if !ok {
		return fmt.Errorf("no publisher configured for %q", target)
	}

	switch target {
	case TargetTwitter:
		if p.opts.TwitterThread && msg.Summary != nil {
			parts := twitter.SplitThread(msg.Full, formatter.MaxMessageLength)
			ids, err := twitter.PostThread(ctx, pub, parts, p.opts.ThreadDelay)
			if len(ids) > 0 {
				res.PostIDs[target] = ids[0]
			}
			if err != nil {
				return err
			}
			metrics.PostsTotal.WithLabelValues(target, "success").Add(float64(len(ids)))
			return nil
		}
		id, err := pub.PostText(ctx, msg.Text(), "")
		if err != nil {
			return err
		}
		res.PostIDs[target] = id

	case TargetInstagram:
		if res.ImageURL == "" {
			p.log.WithField("date", report.Date).Info("No incidents reported, skipping Instagram post")
			return nil
		}
		caption := formatter.Caption(report, p.deps.Hashtags.Pick(p.opts.HashtagCount))
		id, err := pub.PostImage(ctx, res.ImageURL, caption)
		if err != nil {
			return err
		}
		res.PostIDs[target] = id

	default:
		return fmt.Errorf("unknown publish target %q", target)
	}

	metrics.PostsTotal.WithLabelValues(target, "success").Inc()
	return nil
}

func (p *Pipeline) finish(ctx context.Context, run *Run, res *RunResult) *RunResult {
	res.State = run.State()
	res.Finished = p.now()

	logger := p.log.WithFields(log.Fields{"date": res.Date, "state": res.State})
	metrics.RunsTotal.WithLabelValues(string(res.State)).Inc()
	if res.State == Done {
		metrics.LastSuccessSeconds.Set(metrics.NowUnixSeconds())
	} else {
		logger.WithError(res.Err).Error("Run failed")
	}

	ev := res.Event()
	if p.deps.Runs != nil {
		if err := p.deps.Runs.SaveRun(ctx, ev); err != nil {
			logger.WithError(err).Warn("Failed to record run")
		}
	}
	if p.deps.Events != nil {
		if err := p.deps.Events.PublishRunEvent(ctx, ev); err != nil {
			logger.WithError(err).Warn("Failed to publish run event")
		}
	}
	if res.State == Failed {
		if err := p.deps.Notifier.NotifyFailure(ctx, ev); err != nil {
			logger.WithError(err).Warn("Failed to send failure alert")
		}
	}

	p.mu.Lock()
	p.last = res
	p.mu.Unlock()
	return res
}
