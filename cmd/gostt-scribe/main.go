// Command gostt-scribe transcribes speech to text with a local whisper.cpp
// model or the OpenAI audio API.
//
//	gostt-scribe convert <input_audio_path> <output_text_path>
//	gostt-scribe listen <output_text_path>
package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"

	"github.com/chaz8081/gostt-scribe/internal/config"
	"github.com/chaz8081/gostt-scribe/internal/logging"
)

var version = "dev"

// CLI is the kong command tree.
type CLI struct {
	Globals

	Listen     ListenCmd     `cmd:"" help:"Capture microphone speech continuously, appending one line per pause."`
	Convert    ConvertCmd    `cmd:"" help:"Transcribe an audio file, overwriting the output file."`
	Models     ModelsCmd     `cmd:"" help:"List or download whisper models."`
	InitConfig InitConfigCmd `cmd:"" name:"init-config" help:"Write a default config file if none exists."`
	Version    VersionCmd    `cmd:"" help:"Print the version."`
}

func main() {
	slog.SetDefault(logging.New(os.Stderr, slog.LevelInfo))

	// .env is optional; it is where OPENAI_API_KEY usually lives.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("could not load .env", "error", err)
	}

	var cli CLI
	kctx := kong.Parse(&cli,
		kong.Name("gostt-scribe"),
		kong.Description("Speech-to-text from a file or the microphone."),
		kong.UsageOnError(),
	)

	if err := kctx.Run(&cli.Globals); err != nil {
		slog.Error(err.Error())
		os.Exit(1)
	}
}

// Globals are flags shared by every command.
type Globals struct {
	Config   string `help:"Path to config file (default: ~/.config/gostt-scribe/config.yaml)." type:"path" placeholder:"PATH"`
	LogLevel string `help:"Log level: debug, info, warn, error (overrides config)." placeholder:"LEVEL"`
}

// load reads the config, applies command-line overrides, validates it and
// installs the configured logger as the slog default.
func (g *Globals) load(overrides ...func(*config.Config)) (*config.Config, *slog.Logger, error) {
	cfg, err := loadConfig(g.Config)
	if err != nil {
		return nil, nil, fmt.Errorf("config: %w", err)
	}
	if g.LogLevel != "" {
		cfg.LogLevel = g.LogLevel
	}
	for _, o := range overrides {
		o(cfg)
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("config validation: %w", err)
	}

	logger := logging.New(os.Stderr, config.ParseLogLevel(cfg.LogLevel))
	slog.SetDefault(logger)
	return cfg, logger, nil
}

// loadConfig loads the config from the specified path, or falls back to
// the default config path, or uses built-in defaults.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.Load(path)
	}

	defaultPath := config.DefaultConfigPath()
	if _, err := os.Stat(defaultPath); err == nil {
		cfg, err := config.Load(defaultPath)
		if err != nil {
			return nil, fmt.Errorf("loading %s: %w", defaultPath, err)
		}
		slog.Debug("config loaded", "path", defaultPath)
		return cfg, nil
	}

	slog.Debug("no config file found, using defaults")
	return config.Default(), nil
}
