package config

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/joho/godotenv"
	"go-simpler.org/env"

	"github.com/iokaravas/ksDiscordBot/internal/models"
	"github.com/iokaravas/ksDiscordBot/internal/validator"
)

// Defaults. The env tags on Config repeat these values.
const (
	DefaultPollIntervalMinutes = 30
	DefaultTimezone            = "UTC"
	DefaultFetchTimeout        = 30 * time.Second
	DefaultKickstarterBaseURL  = "https://www.kickstarter.com"
	DefaultDiscordAPIURL       = "https://discord.com/api/v10"
	DefaultPort                = "8080"
	DefaultLogLevel            = "info"
	DefaultLogFormat           = "text"
)

// Config is built once at startup and never mutated afterwards.
type Config struct {
	BotToken  string `env:"DISCORD_BOT_TOKEN" validate:"required"`
	ChannelID string `env:"DISCORD_CHANNEL_ID" validate:"required"`
	Campaign  string `env:"KICKSTARTER_CAMPAIGN" validate:"required"`

	// Goal enables the percentage-funded label when positive.
	Goal                float64 `env:"FUNDING_GOAL" validate:"gte=0"`
	PollIntervalMinutes int     `env:"POLL_INTERVAL_MINUTES" default:"30" validate:"gt=0"`

	NotifyOnChange  bool `env:"NOTIFY_ON_CHANGE"`
	ForceNewMessage bool `env:"FORCE_NEW_MESSAGE"`
	ResetDaily      bool `env:"RESET_DAILY"`
	ShowLink        bool `env:"SHOW_LINK"`
	ShowTotalChange bool `env:"SHOW_TOTAL_CHANGE"`

	InitialPledged  int64 `env:"INITIAL_PLEDGED" validate:"gte=0"`
	InitialBackers  int   `env:"INITIAL_BACKERS" validate:"gte=0"`
	InitialComments int   `env:"INITIAL_COMMENTS" validate:"gte=0"`

	InitialTotalPledged  int64 `env:"INITIAL_TOTAL_PLEDGED"`
	InitialTotalBackers  int   `env:"INITIAL_TOTAL_BACKERS"`
	InitialTotalComments int   `env:"INITIAL_TOTAL_COMMENTS"`

	Timezone        string        `env:"TIMEZONE" default:"UTC" validate:"required,timezone"`
	FetchTimeout    time.Duration `env:"FETCH_TIMEOUT" default:"30s" validate:"gt=0"`
	BrowserFallback bool          `env:"BROWSER_FALLBACK"`

	KickstarterBaseURL string `env:"KICKSTARTER_BASE_URL" default:"https://www.kickstarter.com" validate:"required,url"`
	DiscordAPIURL      string `env:"DISCORD_API_URL" default:"https://discord.com/api/v10" validate:"required,url"`

	Port      string `env:"PORT" default:"8080"`
	LogLevel  string `env:"LOG_LEVEL" default:"info"`
	LogFormat string `env:"LOG_FORMAT" default:"text"`
}

// Default returns a Config carrying every default value. Callers that
// build a Config in code start from it and fill in the required fields.
func Default() Config {
	return Config{
		PollIntervalMinutes: DefaultPollIntervalMinutes,
		Timezone:            DefaultTimezone,
		FetchTimeout:        DefaultFetchTimeout,
		KickstarterBaseURL:  DefaultKickstarterBaseURL,
		DiscordAPIURL:       DefaultDiscordAPIURL,
		Port:                DefaultPort,
		LogLevel:            DefaultLogLevel,
		LogFormat:           DefaultLogFormat,
	}
}

// Load reads the configuration from the environment, honouring a .env
// file in the working directory when one exists.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	var cfg Config
	if err := env.Load(&cfg, nil); err != nil {
		return nil, &models.ConfigurationError{Err: fmt.Errorf("failed to load environment variables: %w", err)}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports missing or out-of-range options as a ConfigurationError.
func (c *Config) Validate() error {
	if err := validator.New().ValidateStruct(c); err != nil {
		return &models.ConfigurationError{Err: err}
	}
	return nil
}

func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMinutes) * time.Minute
}

// Location falls back to UTC if Timezone cannot be loaded; Validate
// rejects such values up front.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// InitialSnapshot seeds the cache before the first fetch.
func (c *Config) InitialSnapshot() models.Snapshot {
	return models.Snapshot{
		Pledged:       c.InitialPledged,
		BackersCount:  c.InitialBackers,
		CommentsCount: c.InitialComments,
	}
}

// InitialTotals seeds the tally at construction, nil when no preset was
// configured.
func (c *Config) InitialTotals() *models.Snapshot {
	s := models.Snapshot{
		Pledged:       c.InitialTotalPledged,
		BackersCount:  c.InitialTotalBackers,
		CommentsCount: c.InitialTotalComments,
	}
	if s.IsZero() {
		return nil
	}
	return &s
}
