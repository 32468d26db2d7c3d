package collector

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"text/template"
	"time"

	"incident-report-bot/config"
	"incident-report-bot/gemini"
	"incident-report-bot/llm"
	"incident-report-bot/models"
	"incident-report-bot/openai"
	"incident-report-bot/parser"
	"incident-report-bot/stubllm"

	"github.com/apex/log"
)

// DefaultPrompt asks only for incidents that were actually published by news outlets.
const DefaultPrompt = `You are compiling a factual daily news digest for {{.Date}}.

List incidents of deadly violence that reputable news organisations reported as having happened on {{.Date}}.
Only include incidents that were actually reported; do not invent, estimate or embellish events.
If you cannot confirm any incident for that date, return an empty "countries" list.
List at most {{.MaxCountries}} countries, one entry per country.
Keep each summary to one neutral sentence naming the reporting outlet{{if gt .MaxCountries 3}}, and keep summaries especially brief when more than three countries are listed{{end}}.
Use the number of deaths given in the reports, or "unknown" when no figure was published.

Respond with a single JSON object and nothing else:
{"date": "{{.Date}}", "countries": [{"country": "<country name in English>", "death_toll": <number or "unknown">, "summary": "<one sentence>"}]}`

// Options configures a Collector.
type Options struct {
	Template     string
	DateLayout   string
	MaxCountries int
	// Now is the clock used to compute the report date; time.Now when nil.
	Now func() time.Time
}

// Collector asks the text generation provider for yesterday's report.
type Collector struct {
	client       llm.Client
	prompt       *template.Template
	layout       string
	maxCountries int
	now          func() time.Time
	log          log.Interface
}

// New creates a collector. It fails only when the prompt template does not parse.
func New(client llm.Client, opts Options, logger log.Interface) (*Collector, error) {
	if opts.Template == "" {
		opts.Template = DefaultPrompt
	}
	if opts.DateLayout == "" {
		opts.DateLayout = "2006-01-02"
	}
	if opts.MaxCountries <= 0 {
		opts.MaxCountries = 5
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	tmpl, err := template.New("prompt").Option("missingkey=error").Parse(opts.Template)
	if err != nil {
		return nil, fmt.Errorf("failed to parse prompt template: %w", err)
	}

	return &Collector{
		client:       client,
		prompt:       tmpl,
		layout:       opts.DateLayout,
		maxCountries: opts.MaxCountries,
		now:          opts.Now,
		log:          logger,
	}, nil
}

// Yesterday returns the report date for the current clock.
func (c *Collector) Yesterday() string {
	return c.now().AddDate(0, 0, -1).Format(c.layout)
}

// Prompt renders the prompt template for a date.
func (c *Collector) Prompt(date string) (string, error) {
	var buf bytes.Buffer
	data := struct {
		Date         string
		MaxCountries int
	}{date, c.maxCountries}
	if err := c.prompt.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to render prompt: %w", err)
	}
	return buf.String(), nil
}

// Collect fetches and parses yesterday's report. Failures yield a degraded report, never an error.
func (c *Collector) Collect(ctx context.Context) *models.IncidentReport {
	date := c.Yesterday()
	logger := c.log.WithFields(log.Fields{"date": date, "source": c.client.SourceName()})

	prompt, err := c.Prompt(date)
	if err != nil {
		logger.WithError(err).Error("Failed to build prompt")
		return models.Degraded(date, err.Error())
	}

	logger.Info("Requesting incident report")
	raw, err := c.client.Generate(ctx, prompt)
	if err != nil {
		logger.WithError(err).Error("Text generation failed")
		return models.Degraded(date, fmt.Sprintf("%s request failed: %v", c.client.SourceName(), err))
	}

	report, err := parser.ParseReport(raw)
	if err != nil {
		logger.WithError(err).Error("Failed to parse generated report")
		return models.Degraded(date, err.Error())
	}

	if report.Date == "" {
		report.Date = date
	}
	if len(report.Countries) > c.maxCountries {
		logger.Warnf("Report lists %d countries, more than the requested %d", len(report.Countries), c.maxCountries)
	}

	logger.WithField("countries", len(report.Countries)).Info("Incident report collected")
	return report
}

// LoadTemplate returns the prompt template from PROMPT_FILE, PROMPT_TEMPLATE, or the default.
func LoadTemplate(cfg *config.Config) (string, error) {
	if cfg.PromptFile != "" {
		b, err := os.ReadFile(cfg.PromptFile)
		if err != nil {
			return "", fmt.Errorf("failed to read prompt file: %w", err)
		}
		return string(b), nil
	}
	if cfg.PromptTemplate != "" {
		return cfg.PromptTemplate, nil
	}
	return DefaultPrompt, nil
}

// NewClient selects the text generation provider named by cfg.LLMProvider.
func NewClient(ctx context.Context, cfg *config.Config) (llm.Client, error) {
	switch cfg.LLMProvider {
	case "gemini":
		client, err := gemini.NewClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
		if err != nil {
			return nil, err
		}
		return client, nil
	case "openai":
		client, err := openai.NewClient(cfg.OpenAIAPIKey, cfg.OpenAIModel, cfg.OpenAIBaseURL)
		if err != nil {
			return nil, err
		}
		return client, nil
	case "stub":
		return stubllm.NewClient(), nil
	default:
		return nil, fmt.Errorf("unknown LLM provider %q", cfg.LLMProvider)
	}
}
