package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"gopkg.in/yaml.v3"

	"NewsDigest/internal/domain"
)

const (
	defaultTimezone = "Europe/Copenhagen"
	configPathEnv   = "NEWS_DIGEST_CONFIG"
)

// Config holds high-level settings required across the application.
type Config struct {
	Database      DatabaseConfig     `yaml:"database"`
	Scheduler     SchedulerConfig    `yaml:"scheduler"`
	Pipeline      PipelineConfig     `yaml:"pipeline"`
	Gemini        GeminiConfig       `yaml:"gemini"`
	Extractor     ExtractorConfig    `yaml:"extractor"`
	HTTP          HTTPConfig         `yaml:"http"`
	Notifications NotificationConfig `yaml:"notifications"`
	Logging       LoggingConfig      `yaml:"logging"`
	Sources       []SourceConfig     `yaml:"sources"`
}

// DatabaseConfig describes Postgres connection details.
type DatabaseConfig struct {
	DSN           string `yaml:"dsn"`
	MigrateOnBoot bool   `yaml:"migrateOnBoot"`
}

// SchedulerConfig defines how often a pass fires and when it may run.
type SchedulerConfig struct {
	Interval    time.Duration `yaml:"interval"`
	WindowStart string        `yaml:"windowStart"`
	WindowEnd   string        `yaml:"windowEnd"`
	Timezone    string        `yaml:"timezone"`

	location    *time.Location
	startOffset time.Duration
	endOffset   time.Duration
}

// Location resolves the scheduler timezone string to a time.Location.
func (s SchedulerConfig) Location() *time.Location {
	if s.location != nil {
		return s.location
	}
	loc, err := time.LoadLocation(defaultTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// WindowBounds returns the active window as offsets from local midnight.
func (s SchedulerConfig) WindowBounds() (start, end time.Duration) {
	return s.startOffset, s.endOffset
}

// PipelineConfig tunes a single ingestion pass.
type PipelineConfig struct {
	FeedLimit int           `yaml:"feedLimit"`
	Workers   int           `yaml:"workers"`
	JitterMin time.Duration `yaml:"jitterMin"`
	JitterMax time.Duration `yaml:"jitterMax"`
}

// GeminiConfig defines how to contact the summarisation provider.
type GeminiConfig struct {
	Endpoint      string        `yaml:"endpoint"`
	Model         string        `yaml:"model"`
	APIKeys       []string      `yaml:"apiKeys"`
	MaxRPM        int           `yaml:"maxRpm"`
	CallTimeout   time.Duration `yaml:"callTimeout"`
	FailoverPause time.Duration `yaml:"failoverPause"`
}

// ExtractorConfig controls article page downloads.
type ExtractorConfig struct {
	Timeout           time.Duration `yaml:"timeout"`
	RequestsPerSecond float64       `yaml:"requestsPerSecond"`
	MaxBodyBytes      int64         `yaml:"maxBodyBytes"`
	UserAgent         string        `yaml:"userAgent"`

	// AllowPrivateNetworks disables the SSRF guard on article downloads.
	AllowPrivateNetworks bool `yaml:"allowPrivateNetworks"`
}

// HTTPConfig configures the read API.
type HTTPConfig struct {
	Addr              string `yaml:"addr"`
	CORSAllowedOrigin string `yaml:"corsAllowedOrigin"`
	DefaultLimit      int    `yaml:"defaultLimit"`
	MaxLimit          int    `yaml:"maxLimit"`
}

// NotificationConfig encapsulates outbound channels (Telegram, etc.).
type NotificationConfig struct {
	Telegram TelegramConfig `yaml:"telegram"`
}

// TelegramConfig wires all data required to send messages.
type TelegramConfig struct {
	BotToken string `yaml:"botToken"`
	ChatID   string `yaml:"chatId"`
}

// Enabled reports whether both token and chat are present.
func (t TelegramConfig) Enabled() bool {
	return t.BotToken != "" && t.ChatID != ""
}

// LoggingConfig selects slog level and handler.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// SourceConfig is one entry of the ordered feed registry.
type SourceConfig struct {
	Name string `yaml:"name"`
	URL  string `yaml:"url"`
}

// DomainSources converts the registry into domain values, keeping order.
func (c Config) DomainSources() []domain.Source {
	out := make([]domain.Source, 0, len(c.Sources))
	for _, s := range c.Sources {
		out = append(out, domain.Source{Name: s.Name, URL: s.URL})
	}
	return out
}

// Load reads the YAML file named by NEWS_DIGEST_CONFIG (if set), applies environment
// overrides and validates the result.
func Load() (Config, error) {
	return LoadFile(os.Getenv(configPathEnv))
}

// LoadFile is Load with an explicit YAML path. An empty path means defaults only.
func LoadFile(path string) (Config, error) {
	cfg := defaultConfig()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	if err := cfg.applyEnvOverrides(); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks required values and binds derived scheduler fields.
func (c *Config) Validate() error {
	var errs []error

	if strings.TrimSpace(c.Database.DSN) == "" {
		errs = append(errs, errors.New("DATABASE_DSN is required"))
	}

	c.Gemini.APIKeys = compact(c.Gemini.APIKeys)
	if len(c.Gemini.APIKeys) == 0 {
		errs = append(errs, errors.New("at least one Gemini API key is required (GEMINI_API_KEYS)"))
	}
	if c.Gemini.MaxRPM <= 0 {
		errs = append(errs, errors.New("MAX_RPM must be positive"))
	}
	if c.Gemini.Model == "" || c.Gemini.Endpoint == "" {
		errs = append(errs, errors.New("gemini endpoint and model must be set"))
	}

	if len(c.Sources) == 0 {
		errs = append(errs, errors.New("at least one feed source is required"))
	}
	for i, s := range c.Sources {
		if strings.TrimSpace(s.Name) == "" || strings.TrimSpace(s.URL) == "" {
			errs = append(errs, fmt.Errorf("source #%d needs both name and url", i+1))
		}
	}

	if c.Pipeline.FeedLimit <= 0 {
		errs = append(errs, errors.New("FEED_LIMIT must be positive"))
	}
	if c.Pipeline.Workers <= 0 {
		errs = append(errs, errors.New("PIPELINE_WORKERS must be positive"))
	}
	if c.Pipeline.JitterMax < c.Pipeline.JitterMin {
		errs = append(errs, errors.New("pipeline jitterMax cannot be below jitterMin"))
	}

	if c.Scheduler.Interval <= 0 {
		errs = append(errs, errors.New("SCHEDULER_INTERVAL must be positive"))
	}
	if err := c.bindWindow(); err != nil {
		errs = append(errs, err)
	}
	if err := c.bindTimezone(); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

func (c *Config) applyEnvOverrides() error {
	if v := os.Getenv("DATABASE_DSN"); v != "" {
		c.Database.DSN = v
	}

	if v := os.Getenv("GEMINI_API_KEYS"); v != "" {
		c.Gemini.APIKeys = strings.Split(v, ",")
	} else {
		var keys []string
		for _, name := range []string{"GEMINI_API_KEY_MAIN", "GEMINI_API_KEY_BACKUP"} {
			if v := os.Getenv(name); v != "" {
				keys = append(keys, v)
			}
		}
		if len(keys) > 0 {
			c.Gemini.APIKeys = keys
		}
	}
	if v := os.Getenv("GEMINI_MODEL"); v != "" {
		c.Gemini.Model = v
	}

	if v := os.Getenv("SCHEDULER_TIMEZONE"); v != "" {
		c.Scheduler.Timezone = v
	}
	if v := os.Getenv("ACTIVE_WINDOW_START"); v != "" {
		c.Scheduler.WindowStart = v
	}
	if v := os.Getenv("ACTIVE_WINDOW_END"); v != "" {
		c.Scheduler.WindowEnd = v
	}

	if v := os.Getenv("PORT"); v != "" {
		c.HTTP.Addr = ":" + v
	}
	if v := os.Getenv("HTTP_ADDR"); v != "" {
		c.HTTP.Addr = v
	}
	if v := os.Getenv("CORS_ALLOWED_ORIGIN"); v != "" {
		c.HTTP.CORSAllowedOrigin = v
	}

	if v := os.Getenv("TELEGRAM_BOT_TOKEN"); v != "" {
		c.Notifications.Telegram.BotToken = v
	}
	if v := os.Getenv("TELEGRAM_CHAT_ID"); v != "" {
		c.Notifications.Telegram.ChatID = v
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		c.Logging.Format = v
	}

	var errs []error
	errs = append(errs,
		envInt("MAX_RPM", &c.Gemini.MaxRPM),
		envInt("FEED_LIMIT", &c.Pipeline.FeedLimit),
		envInt("PIPELINE_WORKERS", &c.Pipeline.Workers),
		envDuration("SCHEDULER_INTERVAL", &c.Scheduler.Interval),
	)
	return errors.Join(errs...)
}

func (c *Config) bindWindow() error {
	start, err := parseClock(c.Scheduler.WindowStart)
	if err != nil {
		return fmt.Errorf("ACTIVE_WINDOW_START: %w", err)
	}
	end, err := parseClock(c.Scheduler.WindowEnd)
	if err != nil {
		return fmt.Errorf("ACTIVE_WINDOW_END: %w", err)
	}
	c.Scheduler.startOffset = start
	c.Scheduler.endOffset = end
	return nil
}

func (c *Config) bindTimezone() error {
	tz := c.Scheduler.Timezone
	if tz == "" {
		tz = defaultTimezone
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return fmt.Errorf("SCHEDULER_TIMEZONE: unknown timezone %q", tz)
	}
	c.Scheduler.location = loc
	return nil
}

// parseClock turns "HH:MM" into an offset from midnight.
func parseClock(value string) (time.Duration, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(value))
	if err != nil {
		return 0, fmt.Errorf("expected HH:MM, got %q", value)
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute, nil
}

func envInt(key string, dst *int) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = n
	return nil
}

func envDuration(key string, dst *time.Duration) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(strings.TrimSpace(v))
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = d
	return nil
}

func compact(values []string) []string {
	out := values[:0]
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func defaultConfig() Config {
	return Config{
		Database: DatabaseConfig{MigrateOnBoot: true},
		Scheduler: SchedulerConfig{
			Interval:    30 * time.Minute,
			WindowStart: "07:00",
			WindowEnd:   "20:00",
			Timezone:    defaultTimezone,
		},
		Pipeline: PipelineConfig{
			FeedLimit: 3,
			Workers:   2,
			JitterMin: 800 * time.Millisecond,
			JitterMax: 1600 * time.Millisecond,
		},
		Gemini: GeminiConfig{
			Endpoint:      "https://generativelanguage.googleapis.com/v1beta",
			Model:         "gemini-2.5-flash",
			MaxRPM:        10,
			CallTimeout:   30 * time.Second,
			FailoverPause: time.Second,
		},
		Extractor: ExtractorConfig{
			Timeout:           20 * time.Second,
			RequestsPerSecond: 2,
			MaxBodyBytes:      5 << 20,
			UserAgent:         "NewsDigest/1.0",
		},
		HTTP: HTTPConfig{
			Addr:              ":8000",
			CORSAllowedOrigin: "http://localhost:3000",
			DefaultLimit:      50,
			MaxLimit:          200,
		},
		Logging: LoggingConfig{Level: "info", Format: "text"},
		Sources: []SourceConfig{
			{Name: "DR", URL: "https://www.dr.dk/nyheder/service/feeds/senestenyt"},
			{Name: "TV 2", URL: "https://feeds.tv2.dk/nyheder/rss"},
			{Name: "Politiken", URL: "https://politiken.dk/rss/senestenyt.rss"},
		},
	}
}
