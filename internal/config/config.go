package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	Transcribe TranscribeConfig `yaml:"transcribe"`
	Audio      AudioConfig      `yaml:"audio"`
	Listen     ListenConfig     `yaml:"listen"`
	LogLevel   string           `yaml:"log_level"`
}

// TranscribeConfig selects and configures the speech-to-text backend.
type TranscribeConfig struct {
	Backend   string       `yaml:"backend"` // "whisper" or "openai"
	ModelPath string       `yaml:"model_path"`
	Language  string       `yaml:"language"` // "auto" enables detection on multilingual models
	Threads   uint         `yaml:"threads"`  // 0 = whisper default
	Translate bool         `yaml:"translate"`
	OpenAI    OpenAIConfig `yaml:"openai"`
}

// OpenAIConfig holds settings for the hosted transcription backend.
type OpenAIConfig struct {
	APIKey  string `yaml:"api_key"` // falls back to OPENAI_API_KEY
	Model   string `yaml:"model"`
	BaseURL string `yaml:"base_url"`
}

// AudioConfig holds audio capture settings.
type AudioConfig struct {
	SampleRate uint32 `yaml:"sample_rate"`
	Channels   uint32 `yaml:"channels"`
}

// ListenConfig holds settings for continuous listen mode.
type ListenConfig struct {
	MaxSegment      time.Duration `yaml:"max_segment"`
	PauseThreshold  time.Duration `yaml:"pause_threshold"`
	EnergyThreshold float64       `yaml:"energy_threshold"` // RMS on the [-1, 1] sample scale
	DynamicEnergy   bool          `yaml:"dynamic_energy"`
	OnError         string        `yaml:"on_error"` // "skip" or "abort"
	Newlines        string        `yaml:"newlines"` // "collapse" or "keep"
	TempDir         string        `yaml:"temp_dir"`
}

// DefaultConfigDir returns the default config directory path.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "gostt-scribe")
}

// DefaultConfigPath returns the default config file path.
func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.yaml")
}

// DefaultModelsDir returns the directory models are downloaded into.
func DefaultModelsDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "models")
	}
	return filepath.Join(home, ".local", "share", "gostt-scribe", "models")
}

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Transcribe: TranscribeConfig{
			Backend:   "whisper",
			ModelPath: filepath.Join(DefaultModelsDir(), "ggml-base.en.bin"),
			Language:  "en",
			OpenAI: OpenAIConfig{
				Model: "whisper-1",
			},
		},
		Audio: AudioConfig{
			SampleRate: 16000,
			Channels:   1,
		},
		Listen: ListenConfig{
			MaxSegment:      30 * time.Second,
			PauseThreshold:  800 * time.Millisecond,
			EnergyThreshold: 300.0 / 32768.0,
			DynamicEnergy:   true,
			OnError:         "skip",
			Newlines:        "collapse",
		},
		LogLevel: "info",
	}
}

// Load reads and parses a YAML config file. Missing fields are filled
// with defaults. Tilde (~) in paths is expanded to the user's home directory.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg.Transcribe.ModelPath = expandTilde(cfg.Transcribe.ModelPath)
	cfg.Listen.TempDir = expandTilde(cfg.Listen.TempDir)

	return cfg, nil
}

// Validate checks the config for invalid values.
func (c *Config) Validate() error {
	switch c.Transcribe.Backend {
	case "whisper", "":
		if c.Transcribe.ModelPath == "" {
			return fmt.Errorf("transcribe.model_path must not be empty")
		}
	case "openai":
		if c.Transcribe.OpenAI.APIKey == "" && os.Getenv("OPENAI_API_KEY") == "" {
			return fmt.Errorf("transcribe.openai.api_key must be set (or OPENAI_API_KEY)")
		}
	default:
		return fmt.Errorf("transcribe.backend must be \"whisper\" or \"openai\", got %q", c.Transcribe.Backend)
	}

	if c.Audio.SampleRate == 0 {
		return fmt.Errorf("audio.sample_rate must be > 0")
	}

	if c.Audio.Channels == 0 {
		return fmt.Errorf("audio.channels must be > 0")
	}

	if c.Listen.MaxSegment <= 0 {
		return fmt.Errorf("listen.max_segment must be > 0")
	}

	if c.Listen.PauseThreshold <= 0 {
		return fmt.Errorf("listen.pause_threshold must be > 0")
	}

	if c.Listen.EnergyThreshold <= 0 || c.Listen.EnergyThreshold >= 1 {
		return fmt.Errorf("listen.energy_threshold must be in (0, 1), got %g", c.Listen.EnergyThreshold)
	}

	switch c.Listen.OnError {
	case "skip", "abort":
	default:
		return fmt.Errorf("listen.on_error must be \"skip\" or \"abort\", got %q", c.Listen.OnError)
	}

	switch c.Listen.Newlines {
	case "collapse", "keep":
	default:
		return fmt.Errorf("listen.newlines must be \"collapse\" or \"keep\", got %q", c.Listen.Newlines)
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level must be debug, info, warn, or error, got %q", c.LogLevel)
	}

	return nil
}

// ParseLogLevel maps a config log level to a slog.Level. Unknown values map to info.
func ParseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

const defaultHeader = `# gostt-scribe configuration
# Generated with defaults. Edit as needed; missing keys fall back to defaults.
#
# transcribe.backend: whisper (local whisper.cpp model) or openai (hosted API)
# listen.on_error:    skip (log and keep listening) or abort (stop the session)
# listen.newlines:    collapse (one line per segment) or keep (verbatim engine output)

`

// WriteDefault writes the default config to DefaultConfigPath if no file exists there.
// It returns the written path, or "" if a config file was already present.
func WriteDefault() (string, error) {
	path := DefaultConfigPath()
	if _, err := os.Stat(path); err == nil {
		return "", nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", fmt.Errorf("creating config dir: %w", err)
	}

	data, err := yaml.Marshal(Default())
	if err != nil {
		return "", fmt.Errorf("encoding default config: %w", err)
	}

	if err := os.WriteFile(path, append([]byte(defaultHeader), data...), 0644); err != nil {
		return "", fmt.Errorf("writing config file: %w", err)
	}

	return path, nil
}

// expandTilde replaces a leading ~ with the user's home directory.
func expandTilde(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}
