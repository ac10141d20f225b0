package telegram

import (
	"fmt"
	"net/url"
	"regexp"
	"slices"
	"time"
)

// tokenPattern matches <bot id>:<secret>.
var tokenPattern = regexp.MustCompile(`^\d+:[A-Za-z0-9_-]+$`)

const (
	defaultAPIServer        = "https://api.telegram.org"
	defaultLongPollTimeout  = 20
	defaultErrorPause       = 5 * time.Second
	defaultMediaTTL         = 10 * time.Minute
	maxLongPollTimeout      = 50
	parseModeNone           = ""
	parseModeMarkdown       = "markdown"
	defaultConsecutiveLimit = 5
)

// Config holds the adapter.telegram configuration.
type Config struct {
	BotToken         string `yaml:"bot_token"`
	WebhookAddr      string `yaml:"webhook_addr"`
	WebhookSecret    string `yaml:"webhook_secret"`
	BotAPIServerAddr string `yaml:"bot_api_server_addr"`
	// BotAPIProxy is an http://, https:// or socks5:// proxy URL.
	BotAPIProxy string `yaml:"bot_api_proxy"`

	// Exactly one of PollingInterval and LongPollingTimeout must be
	// non-zero. Both are in seconds. Pointers tell unset from zero.
	PollingInterval    *int `yaml:"polling_interval"`
	LongPollingTimeout *int `yaml:"long_polling_timeout"`

	APITimeout     time.Duration `yaml:"api_timeout"`
	ErrorPause     time.Duration `yaml:"error_pause"`
	AllowedUpdates []string      `yaml:"allowed_updates"`

	// MountMedia publishes local files through the gateway instead of
	// uploading them. MediaPublicAddr is the gateway's public base URL.
	MountMedia      bool          `yaml:"mount_media"`
	MediaPublicAddr string        `yaml:"media_public_addr"`
	MediaTTL        time.Duration `yaml:"media_ttl"`

	// RedisAddr selects the Redis username store; the SQLite file in the
	// data directory is used otherwise.
	RedisAddr     string `yaml:"redis_addr"`
	RedisDB       int    `yaml:"redis_db"`
	RedisPassword string `yaml:"redis_password"`
	UsernameDB    string `yaml:"username_db"`

	// ParseMode "markdown" renders outgoing text as Telegram HTML.
	ParseMode string `yaml:"parse_mode"`
}

func (c *Config) defaults() {
	if c.BotAPIServerAddr == "" {
		c.BotAPIServerAddr = defaultAPIServer
	}
	if c.PollingInterval == nil && c.LongPollingTimeout == nil {
		lp := defaultLongPollTimeout
		c.LongPollingTimeout = &lp
	}
	if c.PollingInterval == nil {
		zero := 0
		c.PollingInterval = &zero
	}
	if c.LongPollingTimeout == nil {
		zero := 0
		c.LongPollingTimeout = &zero
	}
	if c.APITimeout <= 0 {
		c.APITimeout = defaultAPITimeout
	}
	if c.ErrorPause <= 0 {
		c.ErrorPause = defaultErrorPause
	}
	if c.AllowedUpdates == nil {
		c.AllowedUpdates = []string{"message", "callback_query"}
	}
	if c.MediaTTL <= 0 {
		c.MediaTTL = defaultMediaTTL
	}
	if c.UsernameDB == "" {
		c.UsernameDB = "telegram_users.db"
	}
}

// validate returns a *ConfigError for the first invalid setting.
func (c *Config) validate(serverDriver bool) error {
	if c.BotToken == "" {
		return &ConfigError{Msg: "bot_token is required"}
	}
	if !tokenPattern.MatchString(c.BotToken) {
		return &ConfigError{Msg: "bot_token format invalid (expected <bot_id>:<secret>)"}
	}

	interval, timeout := c.pollingInterval(), c.longPollingTimeout()
	if interval < 0 || timeout < 0 {
		return &ConfigError{Msg: "polling_interval and long_polling_timeout must not be negative"}
	}
	if (interval == 0) == (timeout == 0) {
		return &ConfigError{Msg: "exactly one of polling_interval and long_polling_timeout must be non-zero"}
	}
	if timeout > maxLongPollTimeout {
		return &ConfigError{Msg: fmt.Sprintf("long_polling_timeout must be at most %d, got %d", maxLongPollTimeout, timeout)}
	}

	if err := checkURL("bot_api_server_addr", c.BotAPIServerAddr, "http", "https"); err != nil {
		return err
	}
	if c.BotAPIProxy != "" {
		if err := checkURL("bot_api_proxy", c.BotAPIProxy, "http", "https", "socks5", "socks5h"); err != nil {
			return err
		}
	}

	if serverDriver {
		if c.WebhookAddr == "" {
			return &ConfigError{Msg: "webhook_addr is required with the server driver"}
		}
		if err := checkURL("webhook_addr", c.WebhookAddr, "https", "http"); err != nil {
			return err
		}
	}

	if c.MountMedia {
		if c.MediaPublicAddr == "" {
			return &ConfigError{Msg: "media_public_addr is required when mount_media is set"}
		}
		if err := checkURL("media_public_addr", c.MediaPublicAddr, "http", "https"); err != nil {
			return err
		}
	}

	if c.ParseMode != parseModeNone && c.ParseMode != parseModeMarkdown {
		return &ConfigError{Msg: fmt.Sprintf("parse_mode must be empty or %q, got %q", parseModeMarkdown, c.ParseMode)}
	}
	if c.RedisDB < 0 {
		return &ConfigError{Msg: "redis_db must not be negative"}
	}
	return nil
}

func (c *Config) pollingInterval() int {
	if c.PollingInterval == nil {
		return 0
	}
	return *c.PollingInterval
}

func (c *Config) longPollingTimeout() int {
	if c.LongPollingTimeout == nil {
		return 0
	}
	return *c.LongPollingTimeout
}

func checkURL(key, raw string, schemes ...string) error {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" || !slices.Contains(schemes, u.Scheme) {
		return &ConfigError{Msg: fmt.Sprintf("%s must be a %v URL, got %q", key, schemes, raw)}
	}
	return nil
}
