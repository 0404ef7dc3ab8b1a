// Package cmd runs a bot process: config, bootstrap, signals and the
// Telegram runtime.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/m3rciful/chatloop/core/bootstrap"
	coreconfig "github.com/m3rciful/chatloop/core/config"
	"github.com/m3rciful/chatloop/core/logger"
	coretelegram "github.com/m3rciful/chatloop/core/telegram"
)

// AppFactory turns loaded config and infrastructure into runtime options.
type AppFactory func(cfg *coreconfig.Config, infra *bootstrap.Result) (coretelegram.RunOptions, error)

// Options describe how to load configuration, bootstrap the app, and run the bot.
type Options struct {
	ConfigEnvVar      string
	DefaultConfigPath string
	// ConfigPath overrides both the environment and the default.
	ConfigPath string

	App AppFactory

	LoadConfig     func(path string) (*coreconfig.Config, error)
	Bootstrap      func(ctx context.Context, opts bootstrap.Options) (*bootstrap.Result, error)
	ShutdownLogger func() error
	RunTelegram    func(ctx context.Context, opts coretelegram.RunOptions) error
	// Signals default to SIGINT and SIGTERM.
	Signals []os.Signal
}

// ResolveConfigPath picks ConfigPath, then the environment, then the default.
func (o Options) ResolveConfigPath() (string, error) {
	if o.ConfigPath != "" {
		return o.ConfigPath, nil
	}
	env := o.ConfigEnvVar
	if env == "" {
		env = "CONFIG_PATH"
	}
	if p := os.Getenv(env); p != "" {
		return p, nil
	}
	if o.DefaultConfigPath != "" {
		return o.DefaultConfigPath, nil
	}
	return "", fmt.Errorf("cmd: config path not provided via %s or DefaultConfigPath", env)
}

// Run loads configuration, bootstraps infrastructure and runs the bot until
// a shutdown signal arrives.
func Run(opts Options) (err error) {
	if opts.App == nil {
		return fmt.Errorf("cmd: App is required")
	}
	cfgPath, err := opts.ResolveConfigPath()
	if err != nil {
		return err
	}

	loadConfig := opts.LoadConfig
	if loadConfig == nil {
		loadConfig = coreconfig.Load
	}
	log.Printf("loading config: %s", cfgPath)
	cfg, err := loadConfig(cfgPath)
	if err != nil {
		return fmt.Errorf("cmd: failed to load config: %w", err)
	}

	signals := opts.Signals
	if len(signals) == 0 {
		signals = []os.Signal{os.Interrupt, syscall.SIGTERM}
	}
	ctx, cancel := signal.NotifyContext(context.Background(), signals...)
	defer cancel()

	startedAt := time.Now()
	boot := opts.Bootstrap
	if boot == nil {
		boot = bootstrap.Run
	}
	infra, err := boot(ctx, bootstrap.Options{Config: cfg})
	if err != nil {
		return fmt.Errorf("cmd: bootstrap failed: %w", err)
	}

	shutdownLogger := opts.ShutdownLogger
	if shutdownLogger == nil {
		shutdownLogger = logger.Shutdown
	}
	defer func() {
		if closeErr := infra.Close(); closeErr != nil {
			err = errors.Join(err, fmt.Errorf("cmd: close infrastructure: %w", closeErr))
		}
		if logErr := shutdownLogger(); logErr != nil {
			log.Printf("logger shutdown error: %v", logErr)
		}
	}()

	runOpts, err := opts.App(cfg, infra)
	if err != nil {
		return fmt.Errorf("cmd: telegram options build failed: %w", err)
	}
	if runOpts.Config == nil {
		runOpts.Config = cfg
	}

	prevStart := runOpts.OnStart
	runOpts.OnStart = func(ctx context.Context, rt coretelegram.Runtime) error {
		if prevStart != nil {
			if err := prevStart(ctx, rt); err != nil {
				return err
			}
		}
		logger.Info(ctx, logger.CompApp, "app.ready",
			slog.String("status", "ok"),
			slog.String("username", rt.Username()),
			slog.Duration("duration", logger.RoundMS(time.Since(startedAt))),
		)
		return nil
	}

	prevStop := runOpts.OnStop
	runOpts.OnStop = func(ctx context.Context, rt coretelegram.Runtime) error {
		logger.Info(ctx, logger.CompApp, "app.shutdown", slog.String("status", "ok"))
		if prevStop != nil {
			return prevStop(ctx, rt)
		}
		return nil
	}

	run := opts.RunTelegram
	if run == nil {
		run = coretelegram.RunTelegram
	}
	return run(ctx, runOpts)
}
