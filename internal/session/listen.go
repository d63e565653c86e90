// Package session runs the two transcription modes: a one-shot file
// conversion and a continuous capture loop that appends one line per
// spoken segment.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"time"

	"github.com/chaz8081/gostt-scribe/internal/audio"
)

// Failure policies for a segment that cannot be persisted, transcribed or appended.
const (
	OnErrorSkip  = "skip"
	OnErrorAbort = "abort"
)

// Newline policies for engine text containing line breaks.
const (
	NewlinesCollapse = "collapse"
	NewlinesKeep     = "keep"
)

// Transcriber turns an audio file into text.
type Transcriber interface {
	Transcribe(filePath string) (string, error)
}

// SegmentSource yields bounded speech segments, blocking until one is ready.
type SegmentSource interface {
	Next(ctx context.Context, maxDuration time.Duration) (audio.Segment, error)
}

// ListenConfig controls a Listener.
type ListenConfig struct {
	MaxSegment time.Duration
	OnError    string // OnErrorSkip or OnErrorAbort
	Newlines   string // NewlinesCollapse or NewlinesKeep
	TempDir    string // "" = os.TempDir()
}

// Stats counts what happened during a listen session.
type Stats struct {
	Segments int
	Lines    int
	Failed   int
}

// Listener runs the continuous capture loop.
type Listener struct {
	cfg    ListenConfig
	logger *slog.Logger
	stats  Stats
}

// NewListener creates a Listener. Zero-valued fields fall back to a 30s
// segment cap, skip-on-error and collapsed newlines.
func NewListener(cfg ListenConfig, logger *slog.Logger) *Listener {
	if cfg.MaxSegment <= 0 {
		cfg.MaxSegment = 30 * time.Second
	}
	if cfg.OnError == "" {
		cfg.OnError = OnErrorSkip
	}
	if cfg.Newlines == "" {
		cfg.Newlines = NewlinesCollapse
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Listener{cfg: cfg, logger: logger}
}

// Stats returns the counters for the current or last run.
func (l *Listener) Stats() Stats {
	return l.stats
}

// Run captures segments from source until ctx is cancelled, appending one
// line of text per segment to outPath. Cancellation is observed between
// segments and while waiting for audio; an in-flight transcription always
// completes and its line is written. A cancelled run returns nil.
func (l *Listener) Run(ctx context.Context, source SegmentSource, p Transcriber, outPath string) error {
	l.stats = Stats{}
	l.logger.Info("listening", "output", outPath, "max_segment", l.cfg.MaxSegment)

	for {
		if ctx.Err() != nil {
			l.logger.Info("listen stopped", "lines", l.stats.Lines, "failed", l.stats.Failed)
			return nil
		}

		seg, err := source.Next(ctx, l.cfg.MaxSegment)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				l.logger.Info("listen stopped", "lines", l.stats.Lines, "failed", l.stats.Failed)
				return nil
			}
			return fmt.Errorf("session: capture: %w", err)
		}
		l.stats.Segments++
		l.logger.Debug("segment captured", "n", l.stats.Segments, "duration", seg.Duration())

		if err := l.handle(seg, p, outPath); err != nil {
			l.stats.Failed++
			if l.cfg.OnError == OnErrorAbort {
				return err
			}
			l.logger.Warn("segment skipped", "n", l.stats.Segments, "error", err)
			continue
		}
		l.stats.Lines++
	}
}

// handle runs one segment through persist, transcribe and append. The temp
// file never outlives the call.
func (l *Listener) handle(seg audio.Segment, p Transcriber, outPath string) error {
	tmp, err := os.CreateTemp(l.cfg.TempDir, "gostt-segment-*.wav")
	if err != nil {
		return fmt.Errorf("session: create temp audio: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if err := audio.WriteWAV(tmp, seg); err != nil {
		tmp.Close()
		return fmt.Errorf("session: persist segment: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("session: close temp audio: %w", err)
	}

	start := time.Now()
	text, err := p.Transcribe(tmpPath)
	if err != nil {
		return fmt.Errorf("session: transcribe segment: %w", err)
	}
	l.logger.Debug("segment transcribed", "elapsed", time.Since(start), "chars", len(text))

	if l.cfg.Newlines == NewlinesCollapse {
		text = collapseNewlines(text)
	}
	if err := AppendLine(outPath, text); err != nil {
		return err
	}
	l.logger.Info("line appended", "text", text)
	return nil
}

var (
	edgeBreaks = regexp.MustCompile(`^\s*[\r\n]\s*|\s*[\r\n]\s*$`)
	lineBreaks = regexp.MustCompile(`[ \t]*[\r\n]\s*`)
)

// collapseNewlines folds every run of line breaks into one space so a segment
// always occupies exactly one output line. Leading and trailing whitespace is
// dropped only where it contains a line break.
func collapseNewlines(text string) string {
	text = edgeBreaks.ReplaceAllString(text, "")
	return lineBreaks.ReplaceAllString(text, " ")
}
