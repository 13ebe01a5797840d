package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Defaults applied when a value is not configured.
const (
	DefaultTicketRange      = "0-10"
	DefaultGLPITimeout      = 30 * time.Second
	DefaultPollInterval     = 10 * time.Second
	DefaultJournalRetention = 30 * 24 * time.Hour
	DefaultDataDir          = "data"
)

// Config is the top-level glpibot configuration.
type Config struct {
	Telegram   TelegramConfig   `json:"telegram"`
	GLPI       GLPIConfig       `json:"glpi"`
	Poll       PollConfig       `json:"poll"`
	Embeddings EmbeddingsConfig `json:"embeddings"`
	Slack      *SlackConfig     `json:"slack,omitempty"`
	Webhook    *WebhookConfig   `json:"webhook,omitempty"`
	DataDir    string           `json:"data_dir"`
	API        APIConfig        `json:"api"`
}

// TelegramConfig holds Telegram bot settings.
type TelegramConfig struct {
	Token     string  `json:"token"`
	AllowFrom []int64 `json:"allow_from,omitempty"`
}

// GLPIConfig holds helpdesk backend settings.
type GLPIConfig struct {
	URL         string   `json:"url"`
	AppToken    string   `json:"app_token"`
	TicketRange string   `json:"ticket_range,omitempty"`
	Timeout     Duration `json:"timeout,omitempty"`
}

// PollConfig controls the background change poll.
type PollConfig struct {
	Interval         Duration `json:"interval,omitempty"`
	JournalRetention Duration `json:"journal_retention,omitempty"`
}

// EmbeddingsConfig configures the ticket category classifier. An empty
// APIKey disables classification.
type EmbeddingsConfig struct {
	APIKey  string `json:"api_key,omitempty"`
	BaseURL string `json:"base_url,omitempty"`
	Model   string `json:"model,omitempty"`
}

// SlackConfig enables mirroring delivered notifications to a Slack channel.
type SlackConfig struct {
	Token   string `json:"token"`
	Channel string `json:"channel"`
}

// WebhookConfig enables the GLPI push endpoint, which triggers an immediate
// poll cycle. One of Secret (HMAC) or BearerToken is required.
type WebhookConfig struct {
	Secret      string `json:"secret,omitempty"`
	BearerToken string `json:"bearer_token,omitempty"`
}

// APIConfig holds admin API server settings.
type APIConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`
	Key  string `json:"api_key"`
}

// Duration is a time.Duration that reads Go duration strings ("10s") or a
// number of seconds from JSON.
type Duration time.Duration

func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		v, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("invalid duration %q", s)
		}
		*d = Duration(v)
		return nil
	}
	var secs float64
	if err := json.Unmarshal(b, &secs); err != nil {
		return fmt.Errorf("invalid duration %s", b)
	}
	*d = Duration(secs * float64(time.Second))
	return nil
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Load reads configuration from a JSON file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadFromEnv builds the config from environment variables with the GLPIBOT_
// prefix. The given env files (default ".env") are loaded first without
// overriding variables already set; a missing file is not an error.
func LoadFromEnv(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("config: load %s: %w", f, err)
		}
	}

	cfg := &Config{
		Telegram: TelegramConfig{
			Token: getenv("GLPIBOT_TELEGRAM_TOKEN", os.Getenv("TOKEN")),
		},
		GLPI: GLPIConfig{
			URL:         getenv("GLPIBOT_GLPI_URL", os.Getenv("glpi_url")),
			AppToken:    getenv("GLPIBOT_GLPI_APP_TOKEN", os.Getenv("glpi_api_key")),
			TicketRange: os.Getenv("GLPIBOT_GLPI_TICKET_RANGE"),
		},
		Embeddings: EmbeddingsConfig{
			APIKey:  os.Getenv("GLPIBOT_EMBEDDINGS_API_KEY"),
			BaseURL: os.Getenv("GLPIBOT_EMBEDDINGS_BASE_URL"),
			Model:   os.Getenv("GLPIBOT_EMBEDDINGS_MODEL"),
		},
		DataDir: os.Getenv("GLPIBOT_DATA_DIR"),
		API: APIConfig{
			Host: getenv("GLPIBOT_API_HOST", "127.0.0.1"),
			Port: getenvInt("GLPIBOT_API_PORT", 8080),
			Key:  os.Getenv("GLPIBOT_API_KEY"),
		},
	}

	if ids := os.Getenv("GLPIBOT_TELEGRAM_ALLOW_FROM"); ids != "" {
		parsed, err := parseInt64List(ids)
		if err != nil {
			return nil, fmt.Errorf("config: GLPIBOT_TELEGRAM_ALLOW_FROM: %w", err)
		}
		cfg.Telegram.AllowFrom = parsed
	}

	durations := []struct {
		key string
		dst *Duration
	}{
		{"GLPIBOT_GLPI_TIMEOUT", &cfg.GLPI.Timeout},
		{"GLPIBOT_POLL_INTERVAL", &cfg.Poll.Interval},
		{"GLPIBOT_JOURNAL_RETENTION", &cfg.Poll.JournalRetention},
	}
	for _, d := range durations {
		v := os.Getenv(d.key)
		if v == "" {
			continue
		}
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("config: %s: invalid duration %q", d.key, v)
		}
		*d.dst = Duration(parsed)
	}

	if token := os.Getenv("GLPIBOT_SLACK_TOKEN"); token != "" {
		cfg.Slack = &SlackConfig{
			Token:   token,
			Channel: os.Getenv("GLPIBOT_SLACK_CHANNEL"),
		}
	}

	secret, bearer := os.Getenv("GLPIBOT_WEBHOOK_SECRET"), os.Getenv("GLPIBOT_WEBHOOK_TOKEN")
	if secret != "" || bearer != "" {
		cfg.Webhook = &WebhookConfig{Secret: secret, BearerToken: bearer}
	}

	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.GLPI.TicketRange == "" {
		c.GLPI.TicketRange = DefaultTicketRange
	}
	if c.GLPI.Timeout == 0 {
		c.GLPI.Timeout = Duration(DefaultGLPITimeout)
	}
	if c.Poll.Interval == 0 {
		c.Poll.Interval = Duration(DefaultPollInterval)
	}
	if c.Poll.JournalRetention == 0 {
		c.Poll.JournalRetention = Duration(DefaultJournalRetention)
	}
	if c.DataDir == "" {
		c.DataDir = DefaultDataDir
	}
}

var reTicketRange = regexp.MustCompile(`^\d+-\d+$`)

// Validate checks for required fields and reports every problem at once.
func (c *Config) Validate() error {
	var errs []string

	if c.Telegram.Token == "" {
		errs = append(errs, "telegram.token is required")
	}

	if c.GLPI.URL == "" {
		errs = append(errs, "glpi.url is required")
	} else if u, err := url.Parse(c.GLPI.URL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Sprintf("glpi.url %q is not an absolute URL", c.GLPI.URL))
	}
	if c.GLPI.AppToken == "" {
		errs = append(errs, "glpi.app_token is required")
	}
	if c.GLPI.TicketRange != "" && !reTicketRange.MatchString(c.GLPI.TicketRange) {
		errs = append(errs, fmt.Sprintf("glpi.ticket_range %q must look like 0-10", c.GLPI.TicketRange))
	}
	if c.GLPI.Timeout < 0 {
		errs = append(errs, "glpi.timeout must not be negative")
	}

	if c.Poll.Interval < 0 || (c.Poll.Interval > 0 && c.Poll.Interval.Std() < time.Second) {
		errs = append(errs, "poll.interval must be at least 1s")
	}
	if c.Poll.JournalRetention < 0 {
		errs = append(errs, "poll.journal_retention must not be negative")
	}

	if c.Slack != nil {
		if c.Slack.Token == "" {
			errs = append(errs, "slack.token is required")
		}
		if c.Slack.Channel == "" {
			errs = append(errs, "slack.channel is required")
		}
	}

	if c.Webhook != nil && c.Webhook.Secret == "" && c.Webhook.BearerToken == "" {
		errs = append(errs, "webhook.secret or webhook.bearer_token is required")
	}

	if c.API.Port < 0 || c.API.Port > 65535 {
		errs = append(errs, fmt.Sprintf("api.port %d is out of range", c.API.Port))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getenvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func parseInt64List(s string) ([]int64, error) {
	parts := strings.Split(s, ",")
	result := make([]int64, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		n, err := strconv.ParseInt(p, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid integer %q", p)
		}
		result = append(result, n)
	}
	return result, nil
}
