package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/zalando/go-keyring"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadDefaultsToLongpoll(t *testing.T) {
	path := writeConfig(t, `
telegram:
  token: "123:abc"
  run_mode: polling
  allowed_updates: [" Message ", callback_query, ""]
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Telegram.RunMode != RunModeLongpoll {
		t.Fatalf("run mode = %q", cfg.Telegram.RunMode)
	}
	got := cfg.Telegram.AllowedUpdates
	if len(got) != 2 || got[0] != "message" || got[1] != "callback_query" {
		t.Fatalf("allowed updates = %v", got)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	t.Setenv("BOT_TOKEN", "999:env")
	t.Setenv("SENDER_WORKERS", "3")
	path := writeConfig(t, `
telegram:
  token: "123:file"
sender:
  workers: 8
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Telegram.Token != "999:env" || cfg.Sender.Workers != 3 {
		t.Fatalf("token=%q workers=%d", cfg.Telegram.Token, cfg.Sender.Workers)
	}
}

func TestNormalizeRejectsInvalid(t *testing.T) {
	cases := map[string]Config{
		"no token":       {},
		"bad mode":       {Telegram: TelegramConfig{Token: "t", RunMode: "carrier-pigeon"}},
		"webhook no url": {Telegram: TelegramConfig{Token: "t", RunMode: "webhook"}},
		"bad update":     {Telegram: TelegramConfig{Token: "t", AllowedUpdates: []string{"telepathy"}}},
		"neg timeout":    {Telegram: TelegramConfig{Token: "t", LongPollTimeoutSeconds: -1}},
		"neg workers":    {Telegram: TelegramConfig{Token: "t"}, Sender: SenderConfig{Workers: -1}},
		"db no host":     {Telegram: TelegramConfig{Token: "t"}, Database: DatabaseConfig{Enabled: true}},
	}
	for name, cfg := range cases {
		cfg := cfg
		if err := Normalize(&cfg); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func TestNormalizeDatabaseDefaults(t *testing.T) {
	cfg := Config{
		Telegram: TelegramConfig{Token: "t"},
		Database: DatabaseConfig{Enabled: true, Host: "db", Name: "chatloop"},
	}
	if err := Normalize(&cfg); err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	db := cfg.Database
	if db.Port != "5432" || db.SSLMode != "disable" || db.MaxConnections != 5 || db.MigrationsDir != "migrations" {
		t.Fatalf("database defaults = %+v", db)
	}
}

func TestResolveTokenFromKeychain(t *testing.T) {
	keyring.MockInit()
	if err := StoreToken("main", " 42:secret "); err != nil {
		t.Fatalf("StoreToken: %v", err)
	}

	cfg := Config{Telegram: TelegramConfig{TokenKeyring: "main"}}
	if err := ResolveToken(&cfg); err != nil {
		t.Fatalf("ResolveToken: %v", err)
	}
	if cfg.Telegram.Token != "42:secret" {
		t.Fatalf("token = %q", cfg.Telegram.Token)
	}

	explicit := Config{Telegram: TelegramConfig{Token: "1:explicit", TokenKeyring: "main"}}
	if err := ResolveToken(&explicit); err != nil || explicit.Telegram.Token != "1:explicit" {
		t.Fatalf("explicit token overridden: %q, %v", explicit.Telegram.Token, err)
	}

	missing := Config{Telegram: TelegramConfig{TokenKeyring: "absent"}}
	if err := ResolveToken(&missing); !errors.Is(err, ErrNoToken) {
		t.Fatalf("missing account error = %v", err)
	}
}
