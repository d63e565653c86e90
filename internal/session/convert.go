package session

import (
	"fmt"
	"log/slog"
	"os"
)

// Convert transcribes the audio file at inPath and overwrites outPath with the
// full text. Nothing is written when the input or the transcription fails.
func Convert(p Transcriber, inPath, outPath string, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}

	if _, err := os.Stat(inPath); err != nil {
		return fmt.Errorf("session: input %q: %w", inPath, err)
	}

	logger.Info("transcribing", "input", inPath)
	text, err := p.Transcribe(inPath)
	if err != nil {
		return fmt.Errorf("session: transcribe %q: %w", inPath, err)
	}

	if err := Overwrite(outPath, text); err != nil {
		return err
	}
	logger.Info("transcript written", "output", outPath, "chars", len(text))
	return nil
}
