// Package config loads the YAML configuration of the bot and overlays it
// with environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/kelseyhightower/envconfig"
	"github.com/zalando/go-keyring"
	"gopkg.in/yaml.v3"
)

// KeyringService is the OS keychain service that holds bot tokens.
const KeyringService = "chatloop"

// TelegramConfig holds the Bot API settings.
type TelegramConfig struct {
	Token string `yaml:"token" envconfig:"BOT_TOKEN"`
	// TokenKeyring names the keychain account to read the token from when
	// Token is empty.
	TokenKeyring string `yaml:"token_keyring" envconfig:"BOT_TOKEN_KEYRING"`
	RunMode      string `yaml:"run_mode" envconfig:"TELEGRAM_RUN_MODE"`
	// LongPollTimeoutSeconds defines long polling timeout; 0 -> default
	LongPollTimeoutSeconds int      `yaml:"longpoll_timeout_seconds" envconfig:"TELEGRAM_LONGPOLL_TIMEOUT_SECONDS"`
	AllowedUpdates         []string `yaml:"allowed_updates" envconfig:"TELEGRAM_ALLOWED_UPDATES"`
	// DropPending discards updates queued on the Telegram side before startup.
	DropPending bool `yaml:"drop_pending" envconfig:"TELEGRAM_DROP_PENDING"`
}

// WebhookConfig specifies webhook settings.
type WebhookConfig struct {
	URL         string `yaml:"url" envconfig:"WEBHOOK_URL"`
	Listen      string `yaml:"listen" envconfig:"WEBHOOK_LISTEN"`
	Port        int    `yaml:"port" envconfig:"WEBHOOK_PORT"`
	SecretToken string `yaml:"secret_token" envconfig:"WEBHOOK_SECRET_TOKEN"`
}

// LoggingConfig defines logging related configuration.
type LoggingConfig struct {
	Level       string `yaml:"level" envconfig:"LOG_LEVEL"`
	Format      string `yaml:"format" envconfig:"LOG_FORMAT"`
	KeysOrder   string `yaml:"keys_order"`
	DebugSample string `yaml:"debug_sample" envconfig:"LOG_DEBUG_SAMPLE"`
	Dir         string `yaml:"dir"`
	BotFile     string `yaml:"bot_file"`
	// Profile indicates environment profile such as "debug" or "prod".
	Profile string `yaml:"profile" envconfig:"LOG_PROFILE"`
}

// SenderConfig tunes the outbound queue.
type SenderConfig struct {
	QueueSize      int `yaml:"queue_size" envconfig:"SENDER_QUEUE_SIZE"`
	Workers        int `yaml:"workers" envconfig:"SENDER_WORKERS"`
	MaxRetries     int `yaml:"max_retries" envconfig:"SENDER_MAX_RETRIES"`
	RetryBackoffMS int `yaml:"retry_backoff_ms" envconfig:"SENDER_RETRY_BACKOFF_MS"`
}

// DatabaseConfig holds the optional postgres connection.
type DatabaseConfig struct {
	Enabled        bool   `yaml:"enabled" envconfig:"DB_ENABLED"`
	Host           string `yaml:"host" envconfig:"DB_HOST"`
	Port           string `yaml:"port" envconfig:"DB_PORT"`
	User           string `yaml:"user" envconfig:"DB_USER"`
	Password       string `yaml:"password" envconfig:"DB_PASSWORD"`
	Name           string `yaml:"name" envconfig:"DB_NAME"`
	SSLMode        string `yaml:"sslmode" envconfig:"DB_SSLMODE"`
	MaxConnections int    `yaml:"max_connections" envconfig:"DB_MAX_CONNECTIONS"`
	MigrationsDir  string `yaml:"migrations_dir" envconfig:"DB_MIGRATIONS_DIR"`
}

const (
	// RunModeWebhook selects webhook mode for Telegram updates.
	RunModeWebhook = "webhook"
	// RunModeLongpoll selects long-polling mode for Telegram updates.
	RunModeLongpoll = "longpoll"
)

// Update types accepted in telegram.allowed_updates.
var knownUpdates = map[string]struct{}{
	"message":              {},
	"edited_message":       {},
	"channel_post":         {},
	"edited_channel_post":  {},
	"callback_query":       {},
	"inline_query":         {},
	"chosen_inline_result": {},
	"my_chat_member":       {},
	"chat_member":          {},
	"chat_join_request":    {},
	"poll":                 {},
	"poll_answer":          {},
	"shipping_query":       {},
	"pre_checkout_query":   {},
}

// Config aggregates the configuration that belongs to the reusable core.
type Config struct {
	Telegram TelegramConfig `yaml:"telegram"`
	Webhook  WebhookConfig  `yaml:"webhook"`
	Logging  LoggingConfig  `yaml:"logging"`
	Sender   SenderConfig   `yaml:"sender"`
	Database DatabaseConfig `yaml:"database"`
}

// ErrNoToken is returned when neither the config nor the keychain hold a token.
var ErrNoToken = errors.New("telegram token is required")

// Load reads configuration from a YAML file and environment variables.
func Load(path string) (*Config, error) {
	var cfg Config

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML config: %w", err)
	}
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process env: %w", err)
	}
	if err := ResolveToken(&cfg); err != nil {
		return nil, err
	}
	if err := Normalize(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ResolveToken fills an empty telegram.token from the OS keychain account
// named by telegram.token_keyring.
func ResolveToken(cfg *Config) error {
	if cfg == nil || strings.TrimSpace(cfg.Telegram.Token) != "" {
		return nil
	}
	account := strings.TrimSpace(cfg.Telegram.TokenKeyring)
	if account == "" {
		return nil
	}
	token, err := keyring.Get(KeyringService, account)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return fmt.Errorf("%w: keychain account %q is empty", ErrNoToken, account)
		}
		return fmt.Errorf("read token from keychain: %w", err)
	}
	cfg.Telegram.Token = strings.TrimSpace(token)
	return nil
}

// StoreToken saves token in the OS keychain under account.
func StoreToken(account, token string) error {
	account = strings.TrimSpace(account)
	if account == "" {
		return errors.New("keychain account is required")
	}
	if strings.TrimSpace(token) == "" {
		return ErrNoToken
	}
	if err := keyring.Set(KeyringService, account, strings.TrimSpace(token)); err != nil {
		return fmt.Errorf("store token in keychain: %w", err)
	}
	return nil
}

// Normalize performs basic validation of required configuration fields and adjusts defaults.
func Normalize(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("nil config")
	}
	if strings.TrimSpace(cfg.Telegram.Token) == "" {
		return ErrNoToken
	}

	rm := strings.ToLower(strings.TrimSpace(cfg.Telegram.RunMode))
	switch rm {
	case "", "polling":
		rm = RunModeLongpoll
	}
	switch rm {
	case RunModeWebhook:
		if strings.TrimSpace(cfg.Webhook.URL) == "" {
			return fmt.Errorf("webhook.url is required when telegram.run_mode is 'webhook'")
		}
		if strings.TrimSpace(cfg.Webhook.Listen) == "" {
			return fmt.Errorf("webhook.listen is required when telegram.run_mode is 'webhook'")
		}
		if cfg.Webhook.Port <= 0 {
			return fmt.Errorf("webhook.port must be > 0 when telegram.run_mode is 'webhook'")
		}
	case RunModeLongpoll:
		if cfg.Telegram.LongPollTimeoutSeconds < 0 {
			return fmt.Errorf("telegram.longpoll_timeout_seconds must be >= 0")
		}
	default:
		return fmt.Errorf("invalid telegram.run_mode %q; allowed: webhook, longpoll", cfg.Telegram.RunMode)
	}
	cfg.Telegram.RunMode = rm

	updates := cfg.Telegram.AllowedUpdates[:0]
	for _, v := range cfg.Telegram.AllowedUpdates {
		key := strings.ToLower(strings.TrimSpace(v))
		if key == "" {
			continue
		}
		if _, ok := knownUpdates[key]; !ok {
			return fmt.Errorf("invalid telegram.allowed_updates value %q", v)
		}
		updates = append(updates, key)
	}
	cfg.Telegram.AllowedUpdates = updates

	if err := normalizeSender(&cfg.Sender); err != nil {
		return err
	}
	return normalizeDatabase(&cfg.Database)
}

func normalizeSender(s *SenderConfig) error {
	if s.QueueSize < 0 || s.Workers < 0 || s.MaxRetries < 0 || s.RetryBackoffMS < 0 {
		return fmt.Errorf("sender settings must be >= 0")
	}
	return nil
}

func normalizeDatabase(db *DatabaseConfig) error {
	if !db.Enabled {
		return nil
	}
	if strings.TrimSpace(db.Host) == "" || strings.TrimSpace(db.Name) == "" {
		return fmt.Errorf("database.host and database.name are required when database.enabled is true")
	}
	if db.Port == "" {
		db.Port = "5432"
	}
	if db.SSLMode == "" {
		db.SSLMode = "disable"
	}
	if db.MaxConnections <= 0 {
		db.MaxConnections = 5
	}
	if db.MigrationsDir == "" {
		db.MigrationsDir = "migrations"
	}
	return nil
}
