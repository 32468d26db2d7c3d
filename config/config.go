package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the incident report bot
type Config struct {
	// Environment file the configuration was read from, rewritten on token refresh
	EnvFile string

	// Report configuration
	DateLayout   string
	WebsiteURL   string
	MaxCountries int

	// Logging
	LogLevel      string
	LogFormat     string
	LogFile       string
	LogMaxSizeMB  int
	LogMaxBackups int

	// Text generation
	LLMProvider    string
	GeminiAPIKey   string
	GeminiModel    string
	OpenAIAPIKey   string
	OpenAIModel    string
	OpenAIBaseURL  string
	PromptTemplate string
	PromptFile     string

	// Background images
	UnsplashAccessKey string
	UnsplashQuery     string
	UnsplashBaseURL   string

	// Rendering
	FontPath     string
	TempDir      string
	OutputDir    string
	ImageQuality int

	// Image hosting
	Uploader            string
	ImgurClientID       string
	ImgurClientSecret   string
	ImgurAccessToken    string
	ImgurRefreshToken   string
	ImgBBAPIKey         string
	CloudinaryCloudName string
	CloudinaryAPIKey    string
	CloudinaryAPISecret string
	CloudinaryFolder    string
	UploadMaxRetries    int
	UploadRetryDelay    time.Duration

	// Publishing
	PublishTargets      []string
	TwitterAPIKey       string
	TwitterAPISecret    string
	TwitterAccessToken  string
	TwitterAccessSecret string
	TwitterThread       bool
	ThreadDelay         time.Duration
	InstagramAccountID  string
	FacebookAccessToken string
	FacebookAppID       string
	FacebookAppSecret   string
	SkipEmptyImagePosts bool
	Hashtags            []string
	HashtagCount        int

	// Archive
	Archive    []string
	ReportsDir string
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string

	// Token maintenance
	TokenFile             string
	TokenRefreshThreshold int

	// Scheduling
	BotSchedule          string
	TokenCheckSchedule   string
	TokenRefreshSchedule string
	RunOnStart           bool

	// Status server, disabled when empty
	StatusPort string

	// RabbitMQ, disabled when AMQPURL is empty
	AMQPURL        string
	AMQPExchange   string
	AMQPRoutingKey string

	// Failure alerts, disabled when SendGridAPIKey or AlertEmail is empty
	SendGridAPIKey    string
	SendGridFromName  string
	SendGridFromEmail string
	AlertEmail        string
}

// LoadEnvFile loads variables from an env file into the process environment.
// Variables that are already set are not overridden.
func LoadEnvFile(path string) error {
	if path == "" {
		path = ".env"
	}
	return godotenv.Load(path)
}

// Load loads configuration from environment variables
func Load() *Config {
	config := &Config{
		EnvFile: getEnv("ENV_FILE", ".env"),

		DateLayout:   getEnv("DATE_LAYOUT", "2006-01-02"),
		WebsiteURL:   getEnv("WEBSITE_URL", "website.com"),
		MaxCountries: getIntEnv("MAX_COUNTRIES", 5),

		LogLevel:      getEnv("LOG_LEVEL", "info"),
		LogFormat:     getEnv("LOG_FORMAT", "text"),
		LogFile:       getEnv("LOG_FILE", "bot.log"),
		LogMaxSizeMB:  getIntEnv("LOG_MAX_SIZE_MB", 10),
		LogMaxBackups: getIntEnv("LOG_MAX_BACKUPS", 5),

		LLMProvider:    strings.ToLower(getEnv("LLM_PROVIDER", "gemini")),
		GeminiAPIKey:   getEnv("GEMINI_API_KEY", ""),
		GeminiModel:    getEnv("GEMINI_MODEL", "gemini-2.0-flash"),
		OpenAIAPIKey:   getEnv("OPENAI_API_KEY", ""),
		OpenAIModel:    getEnv("OPENAI_MODEL", "gpt-4-turbo"),
		OpenAIBaseURL:  getEnv("OPENAI_BASE_URL", ""),
		PromptTemplate: getEnv("PROMPT_TEMPLATE", ""),
		PromptFile:     getEnv("PROMPT_FILE", ""),

		UnsplashAccessKey: getEnv("UNSPLASH_ACCESS_KEY", ""),
		UnsplashQuery:     getEnv("UNSPLASH_QUERY", "breaking news journalism"),
		UnsplashBaseURL:   getEnv("UNSPLASH_BASE_URL", "https://api.unsplash.com"),

		FontPath:     getEnv("FONT_PATH", ""),
		TempDir:      getEnv("TEMP_DIR", ""),
		OutputDir:    getEnv("OUTPUT_DIR", "output"),
		ImageQuality: getIntEnv("IMAGE_QUALITY", 90),

		Uploader:            strings.ToLower(getEnv("UPLOADER", "imgur")),
		ImgurClientID:       getEnv("IMGUR_CLIENT_ID", ""),
		ImgurClientSecret:   getEnv("IMGUR_CLIENT_SECRET", ""),
		ImgurAccessToken:    getEnv("IMGUR_ACCESS_TOKEN", ""),
		ImgurRefreshToken:   getEnv("IMGUR_REFRESH_TOKEN", ""),
		ImgBBAPIKey:         getEnv("IMGBB_API_KEY", ""),
		CloudinaryCloudName: getEnv("CLOUDINARY_CLOUD_NAME", ""),
		CloudinaryAPIKey:    getEnv("CLOUDINARY_API_KEY", ""),
		CloudinaryAPISecret: getEnv("CLOUDINARY_API_SECRET", ""),
		CloudinaryFolder:    getEnv("CLOUDINARY_FOLDER", "violence-reports"),
		UploadMaxRetries:    getIntEnv("UPLOAD_MAX_RETRIES", 3),
		UploadRetryDelay:    getDurationEnv("UPLOAD_RETRY_DELAY", 2*time.Second),

		PublishTargets:      getLowerSliceEnv("PUBLISH_TARGETS", "twitter,instagram"),
		TwitterAPIKey:       getEnv("TWITTER_API_KEY", ""),
		TwitterAPISecret:    getEnv("TWITTER_API_SECRET", ""),
		TwitterAccessToken:  getEnv("TWITTER_ACCESS_TOKEN", ""),
		TwitterAccessSecret: getEnv("TWITTER_ACCESS_SECRET", ""),
		TwitterThread:       getBoolEnv("TWITTER_THREAD", false),
		ThreadDelay:         getDurationEnv("THREAD_DELAY", 5*time.Second),
		InstagramAccountID:  getEnv("INSTAGRAM_ACCOUNT_ID", ""),
		FacebookAccessToken: getEnv("FACEBOOK_ACCESS_TOKEN", ""),
		FacebookAppID:       getEnv("FACEBOOK_APP_ID", ""),
		FacebookAppSecret:   getEnv("FACEBOOK_APP_SECRET", ""),
		SkipEmptyImagePosts: getBoolEnv("SKIP_EMPTY_IMAGE_POSTS", true),
		Hashtags:            getStringSliceEnv("HASHTAGS", ""),
		HashtagCount:        getIntEnv("HASHTAG_COUNT", 5),

		Archive:    getLowerSliceEnv("ARCHIVE", "file"),
		ReportsDir: getEnv("REPORTS_DIR", "reports"),
		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnv("DB_PORT", "3306"),
		DBUser:     getEnv("DB_USER", "server"),
		DBPassword: getEnv("DB_PASSWORD", "secret"),
		DBName:     getEnv("DB_NAME", "incident_bot"),

		TokenFile:             getEnv("TOKEN_FILE", "facebook_token.json"),
		TokenRefreshThreshold: getIntEnv("TOKEN_REFRESH_THRESHOLD_DAYS", 10),

		BotSchedule:          getEnv("BOT_SCHEDULE", "0 8 * * *"),
		TokenCheckSchedule:   getEnv("TOKEN_CHECK_SCHEDULE", "0 9 * * *"),
		TokenRefreshSchedule: getEnv("TOKEN_REFRESH_SCHEDULE", "0 7 1 1,3,5,7,9,11 *"),
		RunOnStart:           getBoolEnv("RUN_ON_START", true),

		StatusPort: getEnv("STATUS_PORT", ""),

		AMQPURL:        getEnv("AMQP_URL", ""),
		AMQPExchange:   getEnv("AMQP_EXCHANGE", "incident-bot"),
		AMQPRoutingKey: getEnv("AMQP_ROUTING_KEY", "run.finished"),

		SendGridAPIKey:    getEnv("SENDGRID_API_KEY", ""),
		SendGridFromName:  getEnv("SENDGRID_FROM_NAME", "Incident Report Bot"),
		SendGridFromEmail: getEnv("SENDGRID_FROM_EMAIL", ""),
		AlertEmail:        getEnv("ALERT_EMAIL", ""),
	}

	return config
}

// HasTarget reports whether name is one of the configured publish targets.
func (c *Config) HasTarget(name string) bool {
	for _, t := range c.PublishTargets {
		if t == name {
			return true
		}
	}
	return false
}

// HasArchive reports whether kind is one of the configured archives.
func (c *Config) HasArchive(kind string) bool {
	for _, a := range c.Archive {
		if a == kind {
			return true
		}
	}
	return false
}

// Validate checks that the selected providers have the keys they need.
func (c *Config) Validate() error {
	var missing []string
	require := func(key, value string) {
		if value == "" {
			missing = append(missing, key)
		}
	}

	switch c.LLMProvider {
	case "gemini":
		require("GEMINI_API_KEY", c.GeminiAPIKey)
	case "openai":
		require("OPENAI_API_KEY", c.OpenAIAPIKey)
	case "stub":
	default:
		return fmt.Errorf("unknown LLM_PROVIDER %q", c.LLMProvider)
	}

	for _, t := range c.PublishTargets {
		switch t {
		case "twitter":
			// Missing Twitter credentials switch the client to dry-run.
		case "instagram":
			require("INSTAGRAM_ACCOUNT_ID", c.InstagramAccountID)
			require("FACEBOOK_ACCESS_TOKEN", c.FacebookAccessToken)
			switch c.Uploader {
			case "imgur":
				require("IMGUR_CLIENT_ID", c.ImgurClientID)
			case "imgbb":
				require("IMGBB_API_KEY", c.ImgBBAPIKey)
			case "cloudinary":
				require("CLOUDINARY_CLOUD_NAME", c.CloudinaryCloudName)
				require("CLOUDINARY_API_KEY", c.CloudinaryAPIKey)
				require("CLOUDINARY_API_SECRET", c.CloudinaryAPISecret)
			default:
				return fmt.Errorf("unknown UPLOADER %q", c.Uploader)
			}
		default:
			return fmt.Errorf("unknown publish target %q", t)
		}
	}

	for _, a := range c.Archive {
		if a != "file" && a != "mysql" {
			return fmt.Errorf("unknown ARCHIVE %q", a)
		}
	}

	if c.UploadMaxRetries < 0 {
		return fmt.Errorf("UPLOAD_MAX_RETRIES must not be negative")
	}

	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}
	return nil
}

// getStringSliceEnv gets a comma-separated environment variable as a trimmed slice
func getStringSliceEnv(key, defaultValue string) []string {
	value := getEnv(key, defaultValue)
	if value == "" {
		return []string{}
	}

	var items []string
	for _, item := range strings.Split(value, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		items = append(items, item)
	}
	return items
}

// getLowerSliceEnv is getStringSliceEnv with every item lower-cased
func getLowerSliceEnv(key, defaultValue string) []string {
	items := getStringSliceEnv(key, defaultValue)
	for i := range items {
		items[i] = strings.ToLower(items[i])
	}
	return items
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getDurationEnv gets a duration environment variable or returns a default value
func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// getIntEnv gets an integer environment variable or returns a default value
func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getBoolEnv gets a boolean environment variable or returns a default value
func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

// UpdateEnvFile sets keys in an env file, keeping its other entries, and mirrors them into the process environment.
func UpdateEnvFile(path string, updates map[string]string) error {
	env := map[string]string{}
	if _, err := os.Stat(path); err == nil {
		existing, err := godotenv.Read(path)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", path, err)
		}
		env = existing
	}

	for k, v := range updates {
		env[k] = v
		if err := os.Setenv(k, v); err != nil {
			return fmt.Errorf("failed to set %s: %w", k, err)
		}
	}

	if err := godotenv.Write(env, path); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
