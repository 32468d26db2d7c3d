package main

import (
	"context"
	"errors"
	"flag"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"incident-report-bot/archive"
	"incident-report-bot/collector"
	"incident-report-bot/config"
	"incident-report-bot/database"
	"incident-report-bot/formatter"
	"incident-report-bot/handlers"
	"incident-report-bot/imagesearch"
	"incident-report-bot/instagram"
	"incident-report-bot/logging"
	"incident-report-bot/metrics"
	"incident-report-bot/notify"
	"incident-report-bot/pipeline"
	"incident-report-bot/rabbitmq"
	"incident-report-bot/render"
	"incident-report-bot/scheduler"
	"incident-report-bot/social"
	"incident-report-bot/tokens"
	"incident-report-bot/twitter"
	"incident-report-bot/uploader"

	"github.com/apex/log"
)

var (
	once                 = flag.Bool("once", false, "Run the bot once and exit.")
	renderOnly           = flag.Bool("render_only", false, "Render the report image to OUTPUT_DIR without publishing.")
	refreshFacebookToken = flag.Bool("refresh_facebook_token", false, "Exchange FACEBOOK_ACCESS_TOKEN for a long-lived token and exit.")
	refreshImgurToken    = flag.Bool("refresh_imgur_token", false, "Refresh IMGUR_ACCESS_TOKEN with IMGUR_REFRESH_TOKEN and exit.")
	envFile              = flag.String("env_file", "", "Env file to load and update; defaults to ENV_FILE or .env.")
)

func main() {
	flag.Parse()

	path := *envFile
	if path == "" {
		path = os.Getenv("ENV_FILE")
	}
	envErr := config.LoadEnvFile(path)

	cfg := config.Load()
	if *envFile != "" {
		cfg.EnvFile = *envFile
	}

	logger, closer, err := logging.New(cfg)
	if err != nil {
		log.WithError(err).Fatal("Failed to set up logging")
	}
	if envErr != nil {
		logger.WithError(envErr).Warn("No env file loaded, using process environment")
	}

	os.Exit(run(cfg, logger, closer))
}

func run(cfg *config.Config, logger *log.Logger, closer io.Closer) int {
	defer closer.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch {
	case *refreshFacebookToken:
		if err := tokens.NewFacebook(cfg, logger).Refresh(ctx); err != nil {
			logger.WithError(err).Error("Failed to refresh Facebook token")
			return 1
		}
		return 0
	case *refreshImgurToken:
		if err := tokens.RefreshImgur(ctx, cfg, logger); err != nil {
			logger.WithError(err).Error("Failed to refresh Imgur token")
			return 1
		}
		return 0
	}

	if err := cfg.Validate(); err != nil {
		logger.WithError(err).Error("Invalid configuration")
		return 1
	}
	metrics.Register()

	app, err := newApp(ctx, cfg, logger)
	if err != nil {
		logger.WithError(err).Error("Failed to initialize bot")
		return 1
	}
	defer app.Close()

	switch {
	case *renderOnly:
		if _, err := app.pipeline.RenderOnly(ctx); err != nil {
			logger.WithError(err).Error("Failed to render report")
			return 1
		}
		return 0
	case *once:
		if res := app.pipeline.Run(ctx); res.State != pipeline.Done {
			return 1
		}
		return 0
	}

	return serve(ctx, cfg, app, logger)
}

type app struct {
	pipeline  *pipeline.Pipeline
	instagram *instagram.Client
	store     *database.ReportStore
	events    *rabbitmq.Publisher
}

func newApp(ctx context.Context, cfg *config.Config, logger *log.Logger) (*app, error) {
	a := &app{}

	template, err := collector.LoadTemplate(cfg)
	if err != nil {
		return nil, err
	}
	client, err := collector.NewClient(ctx, cfg)
	if err != nil {
		return nil, err
	}
	coll, err := collector.New(client, collector.Options{
		Template:     template,
		DateLayout:   cfg.DateLayout,
		MaxCountries: cfg.MaxCountries,
	}, logger)
	if err != nil {
		return nil, err
	}
	logger.WithField("provider", client.SourceName()).Info("Text generation client ready")

	deps := pipeline.Deps{
		Collector:  coll,
		Formatter:  &formatter.Formatter{WebsiteURL: cfg.WebsiteURL, MaxLength: formatter.MaxMessageLength},
		Images:     imagesearch.NewSearcher(cfg.UnsplashBaseURL, cfg.UnsplashAccessKey, cfg.UnsplashQuery, logger),
		Renderer:   render.NewRenderer(render.Options{FontPath: cfg.FontPath, TempDir: cfg.TempDir, Quality: cfg.ImageQuality}, logger),
		Publishers: map[string]social.Publisher{},
		Notifier:   notify.New(cfg.SendGridAPIKey, cfg.SendGridFromName, cfg.SendGridFromEmail, cfg.AlertEmail, logger),
		Hashtags:   formatter.NewHashtags(cfg.Hashtags, nil),
	}

	if cfg.HasTarget(pipeline.TargetTwitter) {
		deps.Publishers[pipeline.TargetTwitter] = twitter.NewClient(twitter.Credentials{
			APIKey:       cfg.TwitterAPIKey,
			APISecret:    cfg.TwitterAPISecret,
			AccessToken:  cfg.TwitterAccessToken,
			AccessSecret: cfg.TwitterAccessSecret,
		}, logger)
	}
	if cfg.HasTarget(pipeline.TargetInstagram) {
		up, err := uploader.New(cfg, logger)
		if err != nil {
			return nil, err
		}
		deps.Uploader = up
		a.instagram = instagram.NewClient(cfg.InstagramAccountID, cfg.FacebookAccessToken, logger)
		deps.Publishers[pipeline.TargetInstagram] = a.instagram
	}

	var archives archive.Multi
	if cfg.HasArchive("file") {
		archives = append(archives, archive.NewFileArchive(cfg.ReportsDir))
	}
	if cfg.HasArchive("mysql") {
		store, err := database.Open(ctx, cfg, logger)
		if err != nil {
			return nil, err
		}
		if err := store.CreateTables(ctx); err != nil {
			store.Close()
			return nil, err
		}
		a.store = store
		archives = append(archives, store)
		deps.Runs = store
	}
	if len(archives) > 0 {
		deps.Archive = archives
	}

	if cfg.AMQPURL != "" {
		events, err := rabbitmq.NewPublisher(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPRoutingKey, logger)
		if err != nil {
			logger.WithError(err).Warn("Failed to create RabbitMQ publisher, continuing without run events")
		} else {
			a.events = events
			deps.Events = events
		}
	}

	a.pipeline = pipeline.New(deps, pipeline.Options{
		Targets:             cfg.PublishTargets,
		TwitterThread:       cfg.TwitterThread,
		ThreadDelay:         cfg.ThreadDelay,
		SkipEmptyImagePosts: cfg.SkipEmptyImagePosts,
		HashtagCount:        cfg.HashtagCount,
		ImageQuery:          cfg.UnsplashQuery,
		OutputDir:           cfg.OutputDir,
	}, logger)
	return a, nil
}

func (a *app) Close() {
	if a.events != nil {
		a.events.Close()
	}
	if a.store != nil {
		a.store.Close()
	}
}

func serve(ctx context.Context, cfg *config.Config, a *app, logger *log.Logger) int {
	s := scheduler.New(logger)
	if err := s.Add("bot", cfg.BotSchedule, func(ctx context.Context) { a.pipeline.Run(ctx) }); err != nil {
		logger.WithError(err).Error("Failed to schedule bot")
		return 1
	}

	if a.instagram != nil {
		fb := tokens.NewFacebook(cfg, logger)
		check := func(ctx context.Context) {
			refreshed, err := fb.Check(ctx)
			if err != nil {
				logger.WithError(err).Error("Error checking token expiration")
				return
			}
			if refreshed {
				a.instagram.SetAccessToken(fb.Token())
			}
		}
		refresh := func(ctx context.Context) {
			if err := fb.Refresh(ctx); err != nil {
				logger.WithError(err).Error("Error refreshing Facebook token")
				return
			}
			a.instagram.SetAccessToken(fb.Token())
		}
		if err := s.Add("facebook-token-check", cfg.TokenCheckSchedule, check); err != nil {
			logger.WithError(err).Error("Failed to schedule token check")
			return 1
		}
		if err := s.Add("facebook-token-refresh", cfg.TokenRefreshSchedule, refresh); err != nil {
			logger.WithError(err).Error("Failed to schedule token refresh")
			return 1
		}
		check(ctx)
	}

	var srv *http.Server
	if cfg.StatusPort != "" {
		var runs handlers.RunSource = a.pipeline
		if a.store != nil {
			runs = a.store
		}
		srv = &http.Server{
			Addr:    ":" + cfg.StatusPort,
			Handler: handlers.NewRouter(handlers.NewHandlers(runs, logger)),
		}
		go func() {
			logger.Infof("Starting status server on port %s", cfg.StatusPort)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.WithError(err).Error("Status server failed")
			}
		}()
	}

	s.Start()
	logger.Info("Scheduler started")
	if cfg.RunOnStart {
		go func() {
			if err := s.Trigger("bot"); err != nil {
				logger.WithError(err).Error("Failed to run bot on start")
			}
		}()
	}

	<-ctx.Done()
	logger.Info("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.Stop(shutdownCtx); err != nil {
		logger.WithError(err).Warn("Scheduler stopped with jobs still running")
	}
	if srv != nil {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.WithError(err).Warn("Status server forced to shutdown")
		}
	}
	logger.Info("Scheduler stopped")
	return 0
}
