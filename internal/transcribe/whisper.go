package transcribe

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	whisper "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"

	"github.com/chaz8081/gostt-scribe/internal/audio"
	"github.com/chaz8081/gostt-scribe/internal/config"
)

// WhisperProvider wraps a whisper.cpp model for speech-to-text.
type WhisperProvider struct {
	model     whisper.Model
	language  string
	threads   uint
	translate bool
	logger    *slog.Logger
}

// NewWhisperProvider loads the whisper model at cfg.ModelPath.
// The caller must call Close() when done.
func NewWhisperProvider(cfg config.TranscribeConfig, logger *slog.Logger) (*WhisperProvider, error) {
	if cfg.ModelPath == "" {
		return nil, fmt.Errorf("transcribe: whisper model path not configured")
	}
	if logger == nil {
		logger = slog.Default()
	}

	model, err := whisper.New(cfg.ModelPath)
	if err != nil {
		return nil, fmt.Errorf("transcribe: load whisper model %q: %w", cfg.ModelPath, err)
	}
	logger.Debug("whisper model loaded", "path", cfg.ModelPath, "multilingual", model.IsMultilingual())

	return &WhisperProvider{
		model:     model,
		language:  cfg.Language,
		threads:   cfg.Threads,
		translate: cfg.Translate,
		logger:    logger,
	}, nil
}

// Name returns the provider name.
func (t *WhisperProvider) Name() string {
	return "whisper"
}

// Close releases the whisper model resources.
func (t *WhisperProvider) Close() error {
	if t.model != nil {
		return t.model.Close()
	}
	return nil
}

// Transcribe decodes the audio file to 16kHz mono and runs it through the model.
func (t *WhisperProvider) Transcribe(filePath string) (string, error) {
	samples, err := audio.DecodeFile(filePath)
	if err != nil {
		return "", fmt.Errorf("transcribe: %w", err)
	}
	t.logger.Debug("audio decoded", "file", filePath, "samples", len(samples),
		"duration_sec", float64(len(samples))/audio.TargetSampleRate)

	return t.Process(samples)
}

// Process transcribes mono 16kHz float32 audio samples to text.
func (t *WhisperProvider) Process(samples []float32) (string, error) {
	ctx, err := t.model.NewContext()
	if err != nil {
		return "", fmt.Errorf("transcribe: create context: %w", err)
	}

	if t.language != "" {
		if !t.model.IsMultilingual() {
			t.logger.Debug("model is English-only, ignoring language setting", "language", t.language)
		} else if err := ctx.SetLanguage(t.language); err != nil {
			t.logger.Warn("failed to set language", "language", t.language, "error", err)
		}
	}
	if t.threads > 0 {
		ctx.SetThreads(t.threads)
	}
	ctx.SetTranslate(t.translate)

	if err := ctx.Process(samples, nil, nil, nil); err != nil {
		return "", fmt.Errorf("transcribe: process: %w", err)
	}

	var text strings.Builder
	for {
		seg, err := ctx.NextSegment()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("transcribe: next segment: %w", err)
		}
		text.WriteString(seg.Text)
	}

	return strings.TrimSpace(text.String()), nil
}
