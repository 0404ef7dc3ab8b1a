package cmd

import (
	"context"
	"errors"
	"os"
	"syscall"
	"testing"

	"github.com/m3rciful/chatloop/core/bootstrap"
	coreconfig "github.com/m3rciful/chatloop/core/config"
	coretelegram "github.com/m3rciful/chatloop/core/telegram"
)

func TestResolveConfigPath(t *testing.T) {
	t.Setenv("CHATLOOP_CONFIG", "/etc/chatloop.yaml")

	p, err := Options{ConfigEnvVar: "CHATLOOP_CONFIG", DefaultConfigPath: "config.yaml"}.ResolveConfigPath()
	if err != nil || p != "/etc/chatloop.yaml" {
		t.Fatalf("env path = %q, %v", p, err)
	}
	p, _ = Options{ConfigEnvVar: "CHATLOOP_CONFIG", ConfigPath: "flag.yaml"}.ResolveConfigPath()
	if p != "flag.yaml" {
		t.Fatalf("flag path = %q", p)
	}
	p, _ = Options{ConfigEnvVar: "CHATLOOP_UNSET", DefaultConfigPath: "config.yaml"}.ResolveConfigPath()
	if p != "config.yaml" {
		t.Fatalf("default path = %q", p)
	}
	if _, err := (Options{ConfigEnvVar: "CHATLOOP_UNSET"}).ResolveConfigPath(); err == nil {
		t.Fatal("expected error without any path")
	}
}

func TestRunWrapsLifecycleHooks(t *testing.T) {
	cfg := &coreconfig.Config{}
	var (
		userStarted, loggerClosed bool
		hooks                     coretelegram.RunOptions
	)
	err := Run(Options{
		ConfigPath: "config.yaml",
		Signals:    []os.Signal{syscall.SIGUSR1},
		LoadConfig: func(path string) (*coreconfig.Config, error) {
			if path != "config.yaml" {
				t.Fatalf("path = %q", path)
			}
			return cfg, nil
		},
		Bootstrap: func(context.Context, bootstrap.Options) (*bootstrap.Result, error) {
			return &bootstrap.Result{}, nil
		},
		ShutdownLogger: func() error { loggerClosed = true; return nil },
		App: func(got *coreconfig.Config, _ *bootstrap.Result) (coretelegram.RunOptions, error) {
			return coretelegram.RunOptions{
				OnStart: func(context.Context, coretelegram.Runtime) error { userStarted = true; return nil },
			}, nil
		},
		RunTelegram: func(ctx context.Context, opts coretelegram.RunOptions) error {
			hooks = opts
			if err := opts.OnStart(ctx, coretelegram.Runtime{}); err != nil {
				return err
			}
			return opts.OnStop(ctx, coretelegram.Runtime{})
		},
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !userStarted || !loggerClosed || hooks.Config != cfg {
		t.Fatalf("started=%v loggerClosed=%v config=%p", userStarted, loggerClosed, hooks.Config)
	}
}

func TestRunStopsOnBootstrapError(t *testing.T) {
	err := Run(Options{
		ConfigPath: "config.yaml",
		LoadConfig: func(string) (*coreconfig.Config, error) { return &coreconfig.Config{}, nil },
		Bootstrap: func(context.Context, bootstrap.Options) (*bootstrap.Result, error) {
			return nil, errors.New("db down")
		},
		App: func(*coreconfig.Config, *bootstrap.Result) (coretelegram.RunOptions, error) {
			t.Fatal("App called after bootstrap failure")
			return coretelegram.RunOptions{}, nil
		},
	})
	if err == nil {
		t.Fatal("expected bootstrap error")
	}
	if err := Run(Options{}); err == nil {
		t.Fatal("expected error without App")
	}
}
