// Package config loads and validates the frieda configuration file.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// Config is the top-level configuration tree.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Database      DatabaseConfig      `yaml:"database"`
	LLM           LLMConfig           `yaml:"llm"`
	Chat          ChatConfig          `yaml:"chat"`
	Persona       PersonaConfig       `yaml:"persona"`
	Memory        MemoryConfig        `yaml:"memory"`
	Agents        AgentsConfig        `yaml:"agents"`
	Skills        SkillsConfig        `yaml:"skills"`
	Scripts       ScriptsConfig       `yaml:"scripts"`
	Scheduler     SchedulerConfig     `yaml:"scheduler"`
	Channels      ChannelsConfig      `yaml:"channels"`
	TTS           TTSConfig           `yaml:"tts"`
	Logging       LoggingConfig       `yaml:"logging"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServerConfig covers the HTTP listener and the generated-media directory.
type ServerConfig struct {
	Host         string `yaml:"host"`
	Port         int    `yaml:"port"`
	GeneratedDir string `yaml:"generated_dir"`
}

// Addr returns the listen address in host:port form.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// LLMConfig points at the local Ollama instance.
type LLMConfig struct {
	BaseURL        string  `yaml:"base_url"`
	ChatModel      string  `yaml:"chat_model"`
	ChatModelEnv   string  `yaml:"chat_model_env"`
	EmbedModel     string  `yaml:"embed_model"`
	Temperature    float64 `yaml:"temperature"`
	TimeoutSeconds int     `yaml:"timeout_seconds"`
}

// Timeout returns the request timeout as a duration.
func (l LLMConfig) Timeout() time.Duration {
	return time.Duration(l.TimeoutSeconds) * time.Second
}

// Model resolves the chat model, preferring the env indirection when set.
func (l LLMConfig) Model() string {
	if l.ChatModelEnv != "" {
		if v := os.Getenv(l.ChatModelEnv); v != "" {
			return v
		}
	}
	return l.ChatModel
}

// ChatConfig tunes the orchestrator loop and its user-visible strings. The
// string defaults are German because the assistant ships with a German
// persona; they are plain configuration.
type ChatConfig struct {
	MaxHistory       int    `yaml:"max_history"`
	MaxRounds        int    `yaml:"max_rounds"`
	ScrubFillerLines bool   `yaml:"scrub_filler_lines"`
	ImageQuestion    string `yaml:"image_question"`
	ImageMarker      string `yaml:"image_marker"`
	ImagePlaceholder string `yaml:"image_placeholder"`
	FallbackReply    string `yaml:"fallback_reply"`
	SummarizePrompt  string `yaml:"summarize_prompt"`
}

// PersonaConfig describes who the assistant is and who it talks to.
type PersonaConfig struct {
	Name         string `yaml:"name"`
	Owner        string `yaml:"owner"`
	SystemPrompt string `yaml:"system_prompt"`
	WorkspaceDir string `yaml:"workspace_dir"`
}

type MemoryConfig struct {
	ExtractionPrompt string `yaml:"extraction_prompt"`
	MinMessageLen    int    `yaml:"min_message_len"`
	ContextFacts     int    `yaml:"context_facts"`
}

type AgentsConfig struct {
	Dir   string `yaml:"dir"`
	Watch bool   `yaml:"watch"`
}

// SkillsConfig tunes the skill layer: executor width and per-skill knobs.
type SkillsConfig struct {
	MaxConcurrency      int      `yaml:"max_concurrency"`
	SandboxDir          string   `yaml:"sandbox_dir"`
	ShellTimeoutSeconds int      `yaml:"shell_timeout_seconds"`
	SDURL               string   `yaml:"sd_url"`
	Disabled            []string `yaml:"disabled"`
}

type ScriptsConfig struct {
	Dir string `yaml:"dir"`
}

type SchedulerConfig struct {
	HeartbeatMinutes int `yaml:"heartbeat_minutes"`
}

type ChannelsConfig struct {
	Discord DiscordConfig `yaml:"discord"`
}

// DiscordConfig enables the DM bridge. OwnerID is the Discord user that
// receives notifications and may talk to the assistant.
type DiscordConfig struct {
	Enabled  bool   `yaml:"enabled"`
	BotToken string `yaml:"bot_token"`
	OwnerID  string `yaml:"owner_id"`
}

type TTSConfig struct {
	Enabled bool   `yaml:"enabled"`
	Voice   string `yaml:"voice"`
	Command string `yaml:"command"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type ObservabilityConfig struct {
	OTLPEndpoint string `yaml:"otlp_endpoint"`
	Insecure     bool   `yaml:"insecure"`
}

// Default returns the configuration used when no file overrides it.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "127.0.0.1",
			Port:         8080,
			GeneratedDir: "generated",
		},
		Database: DatabaseConfig{Path: "frieda.db"},
		LLM: LLMConfig{
			BaseURL:        "http://localhost:11434",
			ChatModel:      "qwen3:14b",
			ChatModelEnv:   "FRIEDA_CHAT_MODEL",
			EmbedModel:     "nomic-embed-text",
			Temperature:    0.7,
			TimeoutSeconds: 120,
		},
		Chat: ChatConfig{
			MaxHistory:       20,
			MaxRounds:        5,
			ScrubFillerLines: true,
			ImageQuestion:    "Was siehst du auf diesem Bild?",
			ImageMarker:      "[Bild angehängt]",
			ImagePlaceholder: "[Bild wurde angezeigt]",
			FallbackReply:    "Ich konnte leider keine Antwort generieren.",
			SummarizePrompt:  "Fasse die Ergebnisse der Tool-Aufrufe zusammen und beantworte die ursprüngliche Frage.",
		},
		Persona: PersonaConfig{
			Name:         "Frieda",
			Owner:        "du",
			SystemPrompt: "Du bist Frieda, eine hilfsbereite persönliche Assistentin. Antworte knapp und auf Deutsch, außer der Nutzer schreibt in einer anderen Sprache.",
			WorkspaceDir: "workspace",
		},
		Memory: MemoryConfig{
			MinMessageLen: 10,
			ContextFacts:  30,
		},
		Agents: AgentsConfig{Dir: "agents", Watch: true},
		Skills: SkillsConfig{
			MaxConcurrency:      5,
			SandboxDir:          "files",
			ShellTimeoutSeconds: 60,
			SDURL:               "http://localhost:7860",
		},
		Scripts:   ScriptsConfig{Dir: "scripts"},
		Scheduler: SchedulerConfig{HeartbeatMinutes: 5},
		TTS: TTSConfig{
			Voice:   "de-DE-KatjaNeural",
			Command: "edge-tts",
		},
		Logging:       LoggingConfig{Level: "info", Format: "json"},
		Observability: ObservabilityConfig{Insecure: true},
	}
}

// Validate checks the parts of the tree that would otherwise fail at runtime.
func (c *Config) Validate() error {
	if c.LLM.BaseURL == "" {
		return fmt.Errorf("llm.base_url is required")
	}
	if c.LLM.Model() == "" {
		return fmt.Errorf("llm.chat_model is required")
	}
	if c.Chat.MaxRounds < 1 {
		return fmt.Errorf("chat.max_rounds must be at least 1")
	}
	if c.Chat.MaxHistory < 0 {
		return fmt.Errorf("chat.max_history must not be negative")
	}
	if c.Skills.MaxConcurrency < 1 {
		return fmt.Errorf("skills.max_concurrency must be at least 1")
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	switch strings.ToLower(c.Logging.Format) {
	case "", "json", "text":
	default:
		return fmt.Errorf("logging.format must be json or text, got %q", c.Logging.Format)
	}
	if c.Channels.Discord.Enabled && c.Channels.Discord.BotToken == "" {
		return fmt.Errorf("channels.discord.bot_token is required when the bridge is enabled")
	}
	return nil
}
