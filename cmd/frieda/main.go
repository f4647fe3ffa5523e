// Package main is the frieda CLI: a local-first personal assistant daemon
// speaking WebSocket and Discord, backed by a local Ollama instance.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/fhaenel/frieda/internal/agents"
	"github.com/fhaenel/frieda/internal/automation"
	"github.com/fhaenel/frieda/internal/channels"
	"github.com/fhaenel/frieda/internal/channels/discord"
	"github.com/fhaenel/frieda/internal/chat"
	"github.com/fhaenel/frieda/internal/config"
	"github.com/fhaenel/frieda/internal/events"
	"github.com/fhaenel/frieda/internal/llm"
	"github.com/fhaenel/frieda/internal/memory"
	"github.com/fhaenel/frieda/internal/notify"
	"github.com/fhaenel/frieda/internal/observability"
	"github.com/fhaenel/frieda/internal/scheduler"
	"github.com/fhaenel/frieda/internal/scripts"
	"github.com/fhaenel/frieda/internal/skills"
	"github.com/fhaenel/frieda/internal/skills/calc"
	"github.com/fhaenel/frieda/internal/skills/files"
	"github.com/fhaenel/frieda/internal/skills/imagegen"
	"github.com/fhaenel/frieda/internal/skills/pdfread"
	"github.com/fhaenel/frieda/internal/skills/projects"
	"github.com/fhaenel/frieda/internal/skills/shell"
	webskills "github.com/fhaenel/frieda/internal/skills/web"
	"github.com/fhaenel/frieda/internal/storage"
	"github.com/fhaenel/frieda/internal/tts"
	"github.com/fhaenel/frieda/internal/web"
	"github.com/fhaenel/frieda/internal/webhook"
	"github.com/fhaenel/frieda/internal/workspace"
)

// Populated via ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := buildRootCmd().Execute(); err != nil {
		slog.Error("command failed", "error", err)
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "frieda",
		Short:        "Frieda - local personal assistant",
		Long:         "Frieda is a local-first conversational assistant: Ollama for the brain,\nSQLite for the memory, WebSocket and Discord for the voice.",
		Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage: true,
	}
	root.AddCommand(buildServeCmd())
	root.AddCommand(buildVersionCmd())
	return root
}

func buildVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "frieda %s (commit: %s, built: %s)\n", version, commit, date)
		},
	}
}

func buildServeCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the assistant daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			setupLogging(cfg.Logging)
			return runServe(cmd.Context(), cfg)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "frieda.yaml", "Path to the configuration file")
	return cmd
}

func setupLogging(cfg config.LoggingConfig) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if strings.EqualFold(cfg.Format, "text") {
		handler = slog.NewTextHandler(os.Stderr, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))
}

func runServe(ctx context.Context, cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger := slog.Default()
	metrics := observability.NewMetrics()
	tracer, shutdownTracer := observability.NewTracer(observability.TraceConfig{
		ServiceName:    "frieda",
		ServiceVersion: version,
		Endpoint:       cfg.Observability.OTLPEndpoint,
		Insecure:       cfg.Observability.Insecure,
	})
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracer(shutdownCtx); err != nil {
			logger.Debug("tracer shutdown failed", "error", err)
		}
	}()

	store, err := storage.Open(cfg.Database.Path, storage.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer store.Close()

	client := llm.New(cfg.LLM.BaseURL,
		llm.WithTimeout(cfg.LLM.Timeout()),
		llm.WithLogger(logger),
		llm.WithMetrics(metrics),
		llm.WithTracer(tracer),
	)
	if !client.Available(ctx) {
		logger.Warn("ollama not reachable, starting anyway", "base_url", cfg.LLM.BaseURL)
	}

	bus := events.NewBus(events.WithLogger(logger), events.WithMetrics(metrics))
	registry := skills.NewRegistry(
		skills.WithLogger(logger),
		skills.WithMetrics(metrics),
		skills.WithTracer(tracer),
	)
	executor, err := skills.NewExecutor(registry, cfg.Skills.MaxConcurrency, logger)
	if err != nil {
		return fmt.Errorf("skill executor: %w", err)
	}
	defer executor.Release()

	loop := chat.NewLoop(client, registry, executor,
		chat.WithLoopLogger(logger),
		chat.WithScrubFiller(cfg.Chat.ScrubFillerLines),
		chat.WithImagePlaceholder(cfg.Chat.ImagePlaceholder),
	)

	workspaceBlock := workspace.Load(cfg.Persona.WorkspaceDir, logger)

	loader := agents.NewLoader(cfg.Agents.Dir, logger)
	if err := loader.Load(); err != nil {
		logger.Warn("agent templates unavailable", "error", err)
	}
	if cfg.Agents.Watch {
		if err := loader.Watch(ctx); err != nil {
			logger.Warn("agent template watcher unavailable", "error", err)
		}
	}
	router := agents.NewRouter(loader, loop, registry, cfg.LLM.Model(),
		agents.WithRouterLogger(logger),
		agents.WithRouterMetrics(metrics),
		agents.WithRouterWorkspace(workspaceBlock),
	)

	memoryCtx := memory.NewContextBuilder(store, cfg.Persona.Owner, cfg.Memory.ContextFacts, logger)
	extractor := memory.NewExtractor(client, store, cfg.LLM.Model(),
		cfg.Memory.ExtractionPrompt, cfg.Persona.Owner, cfg.Memory.MinMessageLen, logger)

	engineOpts := []chat.EngineOption{
		chat.WithDelegator(router),
		chat.WithMemory(memoryCtx),
		chat.WithExtractor(extractor),
		chat.WithBus(bus),
		chat.WithWorkspace(workspaceBlock),
		chat.WithEngineLogger(logger),
		chat.WithEngineMetrics(metrics),
		chat.WithEngineTracer(tracer),
	}
	if cfg.TTS.Enabled {
		if speech := tts.New(cfg.TTS.Command, cfg.TTS.Voice, cfg.Server.GeneratedDir, logger); speech != nil {
			engineOpts = append(engineOpts, chat.WithSynthesizer(speech))
		}
	}
	engine := chat.NewEngine(cfg, client, store, loop, registry, engineOpts...)

	notifyOpts := []notify.Option{
		notify.WithLogger(logger),
		notify.WithMetrics(metrics),
		notify.WithResponder(engine),
	}

	var bridge *discord.Bridge
	if cfg.Channels.Discord.Enabled {
		bridge, err = discord.New(cfg.Channels.Discord.BotToken, cfg.Channels.Discord.OwnerID,
			func(ctx context.Context, sessionID, text string, adapter channels.Adapter) error {
				_, err := engine.HandleMessage(ctx, sessionID, text, adapter, chat.Options{})
				return err
			}, logger)
		if err != nil {
			return fmt.Errorf("discord bridge: %w", err)
		}
		notifyOpts = append(notifyOpts, notify.WithDiscord(bridge))
	}
	notifier := notify.New(store, notifyOpts...)

	scriptEngine := scripts.New(cfg.Scripts.Dir, registry, logger)
	autoEngine := automation.New(store, registry,
		automation.WithScripts(scriptEngine),
		automation.WithNotifier(notifier),
		automation.WithLogger(logger),
		automation.WithMetrics(metrics),
	)
	autoEngine.Start(bus)

	cron := scheduler.New(store, bus, registry,
		scheduler.WithNotifier(notifier),
		scheduler.WithLogger(logger),
	)
	heartbeat := scheduler.NewHeartbeat(
		time.Duration(cfg.Scheduler.HeartbeatMinutes)*time.Minute, bus, logger)

	hooks := webhook.New(store, bus, logger)
	baseURL := "http://" + cfg.Server.Addr()

	registerSkills(cfg, registry, store, cron, scriptEngine, autoEngine, loader, hooks, baseURL, logger)

	if err := cron.Start(ctx); err != nil {
		return fmt.Errorf("scheduler: %w", err)
	}
	defer cron.Stop()
	heartbeat.Start(ctx)
	defer heartbeat.Stop()

	if bridge != nil {
		if err := bridge.Start(); err != nil {
			return fmt.Errorf("discord: %w", err)
		}
		defer bridge.Stop()
	}

	if err := os.MkdirAll(cfg.Server.GeneratedDir, 0o755); err != nil {
		return fmt.Errorf("generated dir: %w", err)
	}
	server := web.New(cfg.Server.Addr(), engine, hooks, notifier, cfg.Server.GeneratedDir,
		web.WithLogger(logger),
		web.WithMetrics(metrics),
	)

	logger.Info("frieda is up",
		"version", version,
		"model", cfg.LLM.Model(),
		"addr", cfg.Server.Addr(),
		"discord", cfg.Channels.Discord.Enabled,
	)
	err = server.Run(ctx)

	// Let in-flight fact extraction and speech finish before exiting.
	engine.Wait()
	return err
}

// registerSkills installs every builtin skill that is not disabled in the
// configuration.
func registerSkills(cfg *config.Config, registry *skills.Registry, store *storage.Store,
	cron *scheduler.Engine, scriptEngine *scripts.Engine, autoEngine *automation.Engine,
	loader *agents.Loader, hooks *webhook.Manager, baseURL string, logger *slog.Logger) {

	disabled := map[string]bool{}
	for _, name := range cfg.Skills.Disabled {
		disabled[name] = true
	}

	all := []skills.Skill{
		calc.New(),
		files.New(cfg.Skills.SandboxDir),
		shell.New(time.Duration(cfg.Skills.ShellTimeoutSeconds)*time.Second, cfg.Skills.SandboxDir),
		webskills.NewFetch(),
		webskills.NewBrowse(),
		imagegen.New(cfg.Skills.SDURL, cfg.Server.GeneratedDir),
		pdfread.New(cfg.Skills.SandboxDir),
		projects.New(store),
		memory.NewManagerSkill(store),
		scheduler.NewSkill(cron),
		scripts.NewManagerSkill(scriptEngine),
		automation.NewManagerSkill(autoEngine),
		agents.NewManagerSkill(loader),
		webhook.NewManagerSkill(hooks, baseURL),
	}
	for _, s := range all {
		if disabled[s.Name()] {
			logger.Info("skill disabled", "skill", s.Name())
			continue
		}
		if err := registry.Register(s); err != nil {
			logger.Error("skill registration failed", "skill", s.Name(), "error", err)
		}
	}
}
