package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/google/uuid"

	"github.com/chaz8081/gostt-scribe/internal/audio"
	"github.com/chaz8081/gostt-scribe/internal/config"
	"github.com/chaz8081/gostt-scribe/internal/models"
	"github.com/chaz8081/gostt-scribe/internal/session"
	"github.com/chaz8081/gostt-scribe/internal/transcribe"
)

// EngineFlags override the transcription settings from the config file.
type EngineFlags struct {
	Model    string `help:"Model file path, or a catalog name such as base.en." placeholder:"PATH"`
	Backend  string `help:"Transcription backend: whisper or openai." placeholder:"NAME"`
	Language string `help:"Spoken language code, or auto." placeholder:"LANG"`
}

func (f EngineFlags) apply(cfg *config.Config) {
	if f.Backend != "" {
		cfg.Transcribe.Backend = f.Backend
	}
	if f.Language != "" {
		cfg.Transcribe.Language = f.Language
	}
	if f.Model != "" {
		cfg.Transcribe.ModelPath = resolveModel(f.Model)
	}
}

// resolveModel maps a catalog name to its path in the models directory unless
// a file by that name exists.
func resolveModel(name string) string {
	if _, err := os.Stat(name); err == nil {
		return name
	}
	if m, ok := models.Lookup(name); ok {
		return filepath.Join(config.DefaultModelsDir(), m.Name)
	}
	return name
}

// loadProvider loads the transcription backend once for the whole run.
func loadProvider(cfg *config.Config, logger *slog.Logger) (transcribe.Provider, error) {
	logger.Info("loading transcription backend", "backend", cfg.Transcribe.Backend, "model", cfg.Transcribe.ModelPath)
	start := time.Now()
	p, err := transcribe.New(&cfg.Transcribe, logger)
	if err != nil {
		return nil, fmt.Errorf("%w (run 'gostt-scribe models download %s' to fetch the model)",
			err, filepath.Base(cfg.Transcribe.ModelPath))
	}
	logger.Info("backend ready", "backend", p.Name(), "elapsed", time.Since(start).Round(time.Millisecond))
	return p, nil
}

// ConvertCmd transcribes one audio file.
type ConvertCmd struct {
	EngineFlags `embed:""`

	Input  string `arg:"" name:"input_audio_path" help:"Audio file to transcribe." type:"path"`
	Output string `arg:"" name:"output_text_path" help:"Text file to write (overwritten)." type:"path"`
}

func (c *ConvertCmd) Run(g *Globals) error {
	cfg, logger, err := g.load(c.EngineFlags.apply)
	if err != nil {
		return err
	}

	// Fail on a missing input before paying for the model load.
	if _, err := os.Stat(c.Input); err != nil {
		return fmt.Errorf("input: %w", err)
	}

	p, err := loadProvider(cfg, logger)
	if err != nil {
		return err
	}
	defer p.Close()

	return session.Convert(p, c.Input, c.Output, logger)
}

// ListenCmd captures and transcribes microphone speech until interrupted.
type ListenCmd struct {
	EngineFlags `embed:""`

	Output     string        `arg:"" name:"output_text_path" help:"Text file to append lines to." type:"path"`
	MaxSegment time.Duration `help:"Longest segment before it is cut (default from config, 30s)." placeholder:"DUR"`
	OnError    string        `help:"On a failed segment: skip or abort." placeholder:"POLICY"`
	Newlines   string        `help:"Line breaks in engine text: collapse or keep." placeholder:"POLICY"`
	TempDir    string        `help:"Directory for temporary segment files." type:"path" placeholder:"DIR"`
}

func (c *ListenCmd) apply(cfg *config.Config) {
	c.EngineFlags.apply(cfg)
	if c.MaxSegment != 0 {
		cfg.Listen.MaxSegment = c.MaxSegment
	}
	if c.OnError != "" {
		cfg.Listen.OnError = c.OnError
	}
	if c.Newlines != "" {
		cfg.Listen.Newlines = c.Newlines
	}
	if c.TempDir != "" {
		cfg.Listen.TempDir = c.TempDir
	}
}

func (c *ListenCmd) Run(g *Globals) error {
	cfg, logger, err := g.load(c.apply)
	if err != nil {
		return err
	}
	logger = logger.With("session", uuid.NewString()[:8])

	p, err := loadProvider(cfg, logger)
	if err != nil {
		return err
	}
	defer p.Close()

	ep := audio.DefaultEndpointConfig(int(cfg.Audio.SampleRate), int(cfg.Audio.Channels))
	ep.EnergyThreshold = cfg.Listen.EnergyThreshold
	ep.DynamicEnergy = cfg.Listen.DynamicEnergy
	ep.PauseThreshold = cfg.Listen.PauseThreshold
	ep.MaxDuration = cfg.Listen.MaxSegment

	rec, err := audio.NewRecorder(cfg.Audio.SampleRate, cfg.Audio.Channels, ep)
	if err != nil {
		return fmt.Errorf("%w (check that a microphone is connected and access is granted)", err)
	}
	defer rec.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	printBanner(cfg, c.Output)

	l := session.NewListener(session.ListenConfig{
		MaxSegment: cfg.Listen.MaxSegment,
		OnError:    cfg.Listen.OnError,
		Newlines:   cfg.Listen.Newlines,
		TempDir:    cfg.Listen.TempDir,
	}, logger)

	err = l.Run(ctx, rec, p, c.Output)

	if dropped := rec.Dropped(); dropped > 0 {
		logger.Warn("audio chunks dropped while transcribing", "count", dropped)
	}
	stats := l.Stats()
	logger.Info("session summary", "segments", stats.Segments, "lines", stats.Lines, "failed", stats.Failed)
	if err != nil {
		return err
	}
	if ctx.Err() != nil {
		logger.Info("interrupted, goodbye")
	}
	return nil
}

// ModelsCmd groups model catalog commands.
type ModelsCmd struct {
	List     ModelsListCmd     `cmd:"" help:"Show the whisper model catalog and what is installed."`
	Download ModelsDownloadCmd `cmd:"" help:"Download a whisper model into the models directory."`
}

// ModelsListCmd prints the catalog.
type ModelsListCmd struct {
	Dir string `help:"Models directory." type:"path" placeholder:"DIR"`
}

func (c *ModelsListCmd) Run() error {
	dir := c.Dir
	if dir == "" {
		dir = config.DefaultModelsDir()
	}

	installed := lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("MODEL", "SIZE", "LANGUAGES", "INSTALLED")
	for _, s := range models.List(dir) {
		langs := "english"
		if s.Multilingual {
			langs = "multilingual"
		}
		mark := ""
		if s.Installed {
			mark = installed.Render("yes")
		}
		t.Row(s.Name, strconv.Itoa(s.SizeMB)+" MB", langs, mark)
	}

	fmt.Println(t.Render())
	fmt.Printf("Models directory: %s\n", dir)
	return nil
}

// ModelsDownloadCmd fetches one model.
type ModelsDownloadCmd struct {
	Name string `arg:"" help:"Model name, e.g. base.en or ggml-small.bin."`
	Dir  string `help:"Models directory." type:"path" placeholder:"DIR"`
}

func (c *ModelsDownloadCmd) Run() error {
	dir := c.Dir
	if dir == "" {
		dir = config.DefaultModelsDir()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	d := &models.Downloader{Dir: dir, Out: os.Stdout}
	path, err := d.Download(ctx, c.Name)
	if err != nil {
		return err
	}
	fmt.Printf("  Model ready: %s\n", path)
	return nil
}

// InitConfigCmd writes the default config file.
type InitConfigCmd struct{}

func (c *InitConfigCmd) Run() error {
	path, err := config.WriteDefault()
	if err != nil {
		return err
	}
	if path == "" {
		fmt.Printf("Config already exists at %s\n", config.DefaultConfigPath())
		return nil
	}
	fmt.Printf("Wrote default config to %s\n", path)
	return nil
}

// VersionCmd prints the build version.
type VersionCmd struct{}

func (c *VersionCmd) Run() error {
	fmt.Printf("gostt-scribe %s\n", version)
	return nil
}

// printBanner displays the listen configuration summary.
func printBanner(cfg *config.Config, output string) {
	title := lipgloss.NewStyle().Bold(true)
	fmt.Fprintln(os.Stderr, title.Render("=== gostt-scribe listen ==="))
	fmt.Fprintf(os.Stderr, "  Backend: %s\n", cfg.Transcribe.Backend)
	if cfg.Transcribe.Backend != "openai" {
		fmt.Fprintf(os.Stderr, "  Model:   %s\n", cfg.Transcribe.ModelPath)
	}
	fmt.Fprintf(os.Stderr, "  Audio:   %dHz, %dch\n", cfg.Audio.SampleRate, cfg.Audio.Channels)
	fmt.Fprintf(os.Stderr, "  Segment: up to %s, pause %s\n", cfg.Listen.MaxSegment, cfg.Listen.PauseThreshold)
	fmt.Fprintf(os.Stderr, "  Output:  %s\n", output)
	fmt.Fprintln(os.Stderr, "  Speak; each pause ends a line. Ctrl+C to stop.")
}
