// Package transcribe provides speech-to-text backends that turn an audio file into text.
//
// Supported backends:
//   - whisper: whisper.cpp via Go bindings (default, local model)
//   - openai: OpenAI audio transcription API
package transcribe

import (
	"fmt"
	"log/slog"

	"github.com/chaz8081/gostt-scribe/internal/config"
)

// Provider converts an audio file to text. Implementations are loaded once
// and used sequentially.
type Provider interface {
	// Transcribe returns the recognized text for the audio file at filePath.
	// Silence yields an empty string, not an error.
	Transcribe(filePath string) (string, error)
	// Name returns the backend name (e.g., "whisper", "openai").
	Name() string
	// Close releases backend resources.
	Close() error
}

// New creates a Provider based on the config backend setting.
func New(cfg *config.TranscribeConfig, logger *slog.Logger) (Provider, error) {
	if logger == nil {
		logger = slog.Default()
	}
	switch cfg.Backend {
	case "openai":
		p, err := NewOpenAIProvider(*cfg, logger)
		if err != nil {
			return nil, err
		}
		return p, nil
	case "whisper", "":
		p, err := NewWhisperProvider(*cfg, logger)
		if err != nil {
			return nil, err
		}
		return p, nil
	default:
		return nil, fmt.Errorf("transcribe: unknown backend %q (supported: whisper, openai)", cfg.Backend)
	}
}
