package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/celarye/discord-bot/internal/channels"
	"github.com/celarye/discord-bot/internal/config"
	"github.com/celarye/discord-bot/internal/cron"
	"github.com/celarye/discord-bot/internal/discordclient"
	"github.com/celarye/discord-bot/internal/envfile"
	"github.com/celarye/discord-bot/internal/httpclient"
	"github.com/celarye/discord-bot/internal/logging"
	"github.com/celarye/discord-bot/internal/plugin"
	"github.com/celarye/discord-bot/internal/registry"
	"github.com/celarye/discord-bot/internal/sandbox"
	"github.com/celarye/discord-bot/internal/shutdown"
)

type runFlags struct {
	configPath string
	envPath    string

	pluginDirectory string
	cache           bool
	httpTimeout     int

	stdoutLevel string
	stdoutANSI  bool
	fileLevel   string
	fileANSI    bool
	logDir      string
	rotation    string
	maxRetained int
	prefix      string
	suffix      string
}

func runCmd() *cobra.Command {
	var flags runFlags

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start the bot and load its configured plugins",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHost(cmd, flags)
		},
	}

	f := cmd.Flags()
	f.StringVar(&flags.configPath, "config", "./config.yaml", "path to config.yaml")
	f.StringVar(&flags.envPath, "env-file", ".env", "path to an optional .env file")
	f.StringVar(&flags.pluginDirectory, "plugin-directory", "", "override the configured plugin directory")
	f.BoolVar(&flags.cache, "cache", true, "override the configured plugin cache default")
	f.IntVar(&flags.httpTimeout, "http-client-timeout-seconds", 0, "override the configured registry HTTP timeout")
	f.StringVar(&flags.stdoutLevel, "stdout-level", "", "override the configured stdout log level")
	f.BoolVar(&flags.stdoutANSI, "stdout-ansi", false, "override the configured stdout ANSI color toggle")
	f.StringVar(&flags.fileLevel, "file-level", "", "override the configured file log level")
	f.BoolVar(&flags.fileANSI, "file-ansi", false, "override the configured file ANSI color toggle")
	f.StringVar(&flags.logDir, "log-directory", "", "override the configured log file directory")
	f.StringVar(&flags.rotation, "rotation", "", "override the configured log rotation (MINUTELY|HOURLY|DAILY|NEVER)")
	f.IntVar(&flags.maxRetained, "max-retained-files", 0, "override the configured number of retained log files")
	f.StringVar(&flags.prefix, "filename-prefix", "", "override the configured log filename prefix")
	f.StringVar(&flags.suffix, "filename-suffix", "", "override the configured log filename suffix")

	return cmd
}

// applyOverrides layers flags the caller explicitly set on top of the
// values loaded from config.yaml, so the CLI can override without
// requiring every field to be re-specified.
func applyOverrides(cmd *cobra.Command, flags runFlags, cfg *config.Config) {
	changed := cmd.Flags().Changed

	if changed("plugin-directory") {
		cfg.PluginDirectory = flags.pluginDirectory
	}
	if changed("cache") {
		cfg.Cache = flags.cache
	}
	if changed("http-client-timeout-seconds") {
		cfg.HTTPClientTimeoutSeconds = flags.httpTimeout
	}
	if changed("stdout-level") {
		cfg.Logging.StdoutLevel = flags.stdoutLevel
	}
	if changed("stdout-ansi") {
		cfg.Logging.StdoutANSI = flags.stdoutANSI
	}
	if changed("file-level") {
		cfg.Logging.FileLevel = flags.fileLevel
	}
	if changed("file-ansi") {
		cfg.Logging.FileANSI = flags.fileANSI
	}
	if changed("log-directory") {
		cfg.Logging.Directory = flags.logDir
	}
	if changed("rotation") {
		cfg.Logging.Rotation = flags.rotation
	}
	if changed("max-retained-files") {
		cfg.Logging.MaxRetainedFiles = flags.maxRetained
	}
	if changed("filename-prefix") {
		cfg.Logging.FilenamePrefix = flags.prefix
	}
	if changed("filename-suffix") {
		cfg.Logging.FilenameSuffix = flags.suffix
	}
}

func runHost(cmd *cobra.Command, flags runFlags) error {
	cfg, err := config.Load(flags.configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	applyOverrides(cmd, flags, cfg)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("validate config: %w", err)
	}

	logger, closeLog, err := logging.New(cfg.Logging)
	if err != nil {
		return fmt.Errorf("init logging: %w", err)
	}
	defer closeLog()

	if err := envfile.Load(logger, flags.envPath); err != nil {
		return fmt.Errorf("load env file: %w", err)
	}
	token, err := envfile.ValidateToken(logger)
	if err != nil {
		return fmt.Errorf("validate environment: %w", err)
	}

	permissionsByID := make(map[string]config.Permissions, len(cfg.Plugins))
	for id, opts := range cfg.Plugins {
		perms, err := config.ParsePermissions(opts.Permissions)
		if err != nil {
			return fmt.Errorf("plugin %q: %w", id, err)
		}
		permissionsByID[id] = perms
	}

	ctx, cancelRoot := context.WithCancel(context.Background())
	defer cancelRoot()

	client := httpclient.New(logger, time.Duration(cfg.HTTPClientTimeoutSeconds)*time.Second)
	resolver := registry.New(client, logger)
	available := resolver.Resolve(ctx, cfg, cfg.PluginDirectory)

	sb, err := sandbox.New(ctx)
	if err != nil {
		return fmt.Errorf("init sandbox: %w", err)
	}
	if err := plugin.RegisterHostModule(ctx, sb); err != nil {
		return fmt.Errorf("register host module: %w", err)
	}

	chans := channels.New()
	runtime := plugin.New(sb, logger, chans)

	outcome, err := runtime.InitializePlugins(ctx, cfg.PluginDirectory, available, permissionsByID)
	if err != nil {
		return fmt.Errorf("initialize plugins: %w", err)
	}
	logger.Info("plugins initialized",
		"count", len(available),
		"application_commands", len(outcome.ApplicationCommands),
		"scheduled_jobs", len(outcome.ScheduledJobs),
	)

	scheduler := cron.New(logger, chans)
	scheduler.RegisterScheduledJobs(outcome.ScheduledJobs)

	discord, err := discordclient.New(token, runtime.Registrations(), chans, logger)
	if err != nil {
		return fmt.Errorf("init discord client: %w", err)
	}

	coordinator := shutdown.New(logger, scheduler, discord, runtime)
	runtime.SetCoordinator(coordinator)

	runtime.Start(ctx)
	scheduler.Start()
	go discord.Run(ctx)

	if err := discord.Start(ctx); err != nil {
		return fmt.Errorf("start discord client: %w", err)
	}

	if len(outcome.ApplicationCommands) > 0 {
		chans.DiscordClient <- channels.DiscordClientMessage{RegisterApplicationCommands: outcome.ApplicationCommands}
	}

	logger.Info("discord-bot started", "id", cfg.ID)

	waitForShutdown(ctx, cancelRoot, logger, coordinator)

	reason := coordinator.Wait()
	os.Exit(reason.ExitCode())
	return nil
}

// waitForShutdown blocks until the shutdown coordinator finishes, or
// drives it itself on SIGINT/SIGTERM. A second SIGINT while already
// stopping forces an immediate exit rather than waiting on stoppers
// that may be stuck.
func waitForShutdown(ctx context.Context, cancel context.CancelFunc, logger *slog.Logger, coordinator *shutdown.Coordinator) {
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	done := make(chan struct{})
	go func() {
		coordinator.Wait()
		close(done)
	}()

	select {
	case <-sigCh:
		logger.Info("shutdown signal received")
		go coordinator.Request(ctx, shutdown.ReasonSigInt)
	case <-done:
		cancel()
		return
	}

	select {
	case <-sigCh:
		os.Exit(shutdown.ReasonSigInt.ExitCode())
	case <-done:
	}

	cancel()
}
