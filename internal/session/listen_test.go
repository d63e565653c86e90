package session

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/chaz8081/gostt-scribe/internal/audio"
	"github.com/chaz8081/gostt-scribe/internal/logging"
)

// fakeSource hands out n segments, then cancels the session and reports the
// cancellation the way the recorder does.
type fakeSource struct {
	n      int
	served int
	cancel context.CancelFunc
	err    error // returned instead of a segment once set
}

func (s *fakeSource) Next(ctx context.Context, _ time.Duration) (audio.Segment, error) {
	if err := ctx.Err(); err != nil {
		return audio.Segment{}, err
	}
	if s.err != nil {
		return audio.Segment{}, s.err
	}
	if s.served >= s.n {
		s.cancel()
		return audio.Segment{}, ctx.Err()
	}
	s.served++
	return audio.Segment{Samples: make([]float32, 1600), SampleRate: 16000, Channels: 1}, nil
}

// fakeTranscriber returns texts in order and records the files it was given.
type fakeTranscriber struct {
	texts   []string
	fail    map[int]error // call index -> error
	calls   int
	paths   []string
	present []bool
	onCall  func(i int)
}

func (f *fakeTranscriber) Transcribe(path string) (string, error) {
	i := f.calls
	f.calls++
	f.paths = append(f.paths, path)
	_, statErr := os.Stat(path)
	f.present = append(f.present, statErr == nil)
	if f.onCall != nil {
		f.onCall(i)
	}
	if err := f.fail[i]; err != nil {
		return "", err
	}
	if i < len(f.texts) {
		return f.texts[i], nil
	}
	return "", nil
}

func runListener(t *testing.T, cfg ListenConfig, n int, tr *fakeTranscriber) (string, *Listener, error) {
	t.Helper()
	if cfg.TempDir == "" {
		cfg.TempDir = t.TempDir()
	}
	out := filepath.Join(t.TempDir(), "out.txt")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	src := &fakeSource{n: n, cancel: cancel}

	l := NewListener(cfg, logging.Discard())
	err := l.Run(ctx, src, tr, out)
	return out, l, err
}

func readOutput(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading output: %v", err)
	}
	return string(data)
}

func TestListenAppendsLinesInOrder(t *testing.T) {
	tr := &fakeTranscriber{texts: []string{"hello", "world"}}
	out, l, err := runListener(t, ListenConfig{}, 2, tr)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if got := readOutput(t, out); got != "hello\nworld\n" {
		t.Errorf("output = %q, want %q", got, "hello\nworld\n")
	}
	if s := l.Stats(); s.Segments != 2 || s.Lines != 2 || s.Failed != 0 {
		t.Errorf("Stats() = %+v, want 2 segments, 2 lines, 0 failed", s)
	}
}

func TestListenOneLinePerSegment(t *testing.T) {
	for _, n := range []int{0, 1, 5, 12} {
		tr := &fakeTranscriber{}
		for i := 0; i < n; i++ {
			tr.texts = append(tr.texts, "segment")
		}
		out, _, err := runListener(t, ListenConfig{}, n, tr)
		if err != nil {
			t.Fatalf("n=%d: Run() error = %v", n, err)
		}

		if n == 0 {
			if _, err := os.Stat(out); !os.IsNotExist(err) {
				t.Errorf("n=0: output file should not be created, stat err = %v", err)
			}
			continue
		}
		lines := strings.Split(strings.TrimSuffix(readOutput(t, out), "\n"), "\n")
		if len(lines) != n {
			t.Errorf("n=%d: got %d lines", n, len(lines))
		}
	}
}

func TestListenAppendsToExistingFile(t *testing.T) {
	out := filepath.Join(t.TempDir(), "out.txt")
	if err := os.WriteFile(out, []byte("earlier\n"), 0644); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	l := NewListener(ListenConfig{TempDir: t.TempDir()}, logging.Discard())
	tr := &fakeTranscriber{texts: []string{"later"}}
	if err := l.Run(ctx, &fakeSource{n: 1, cancel: cancel}, tr, out); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if got := readOutput(t, out); got != "earlier\nlater\n" {
		t.Errorf("output = %q, want %q", got, "earlier\nlater\n")
	}
}

func TestListenRemovesTempFiles(t *testing.T) {
	tmpDir := t.TempDir()
	tr := &fakeTranscriber{
		texts: []string{"a", "b", "c"},
		fail:  map[int]error{1: errors.New("engine hiccup")},
	}
	_, _, err := runListener(t, ListenConfig{TempDir: tmpDir}, 3, tr)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	for i, ok := range tr.present {
		if !ok {
			t.Errorf("call %d: temp file %s did not exist during transcription", i, tr.paths[i])
		}
		if filepath.Dir(tr.paths[i]) != tmpDir {
			t.Errorf("call %d: temp file %s not in %s", i, tr.paths[i], tmpDir)
		}
	}

	entries, err := os.ReadDir(tmpDir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("temp dir has %d leftover files, want 0", len(entries))
	}
}

func TestListenTempFileIsWAV(t *testing.T) {
	tr := &fakeTranscriber{}
	tr.onCall = func(i int) {
		samples, err := audio.DecodeFile(tr.paths[i])
		if err != nil {
			t.Errorf("DecodeFile(temp segment): %v", err)
			return
		}
		if len(samples) != 1600 {
			t.Errorf("decoded %d samples, want 1600", len(samples))
		}
	}
	if _, _, err := runListener(t, ListenConfig{}, 1, tr); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
}

func TestListenCancelledBeforeStart(t *testing.T) {
	out := filepath.Join(t.TempDir(), "out.txt")
	if err := os.WriteFile(out, []byte("keep me\n"), 0644); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	tr := &fakeTranscriber{}
	l := NewListener(ListenConfig{TempDir: t.TempDir()}, logging.Discard())
	if err := l.Run(ctx, &fakeSource{n: 3, cancel: cancel}, tr, out); err != nil {
		t.Fatalf("Run() error = %v, want nil on cancellation", err)
	}
	if tr.calls != 0 {
		t.Errorf("transcriber called %d times after cancellation", tr.calls)
	}
	if got := readOutput(t, out); got != "keep me\n" {
		t.Errorf("output = %q, want it untouched", got)
	}
}

func TestListenCancelDuringTranscriptionFinishesLine(t *testing.T) {
	out := filepath.Join(t.TempDir(), "out.txt")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// The interrupt arrives while the first segment is being transcribed.
	tr := &fakeTranscriber{texts: []string{"first", "second"}}
	tr.onCall = func(int) { cancel() }

	l := NewListener(ListenConfig{TempDir: t.TempDir()}, logging.Discard())
	if err := l.Run(ctx, &fakeSource{n: 2, cancel: cancel}, tr, out); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if got := readOutput(t, out); got != "first\n" {
		t.Errorf("output = %q, want %q", got, "first\n")
	}
	if tr.calls != 1 {
		t.Errorf("transcriber called %d times, want 1", tr.calls)
	}
}

func TestListenFailurePolicy(t *testing.T) {
	boom := errors.New("engine failed")

	t.Run("skip", func(t *testing.T) {
		tr := &fakeTranscriber{texts: []string{"one", "", "three"}, fail: map[int]error{1: boom}}
		out, l, err := runListener(t, ListenConfig{OnError: OnErrorSkip}, 3, tr)
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
		if got := readOutput(t, out); got != "one\nthree\n" {
			t.Errorf("output = %q, want %q", got, "one\nthree\n")
		}
		if s := l.Stats(); s.Lines != 2 || s.Failed != 1 {
			t.Errorf("Stats() = %+v, want 2 lines, 1 failed", s)
		}
	})

	t.Run("abort", func(t *testing.T) {
		tr := &fakeTranscriber{texts: []string{"one", "", "three"}, fail: map[int]error{1: boom}}
		out, _, err := runListener(t, ListenConfig{OnError: OnErrorAbort}, 3, tr)
		if !errors.Is(err, boom) {
			t.Fatalf("Run() error = %v, want %v", err, boom)
		}
		if got := readOutput(t, out); got != "one\n" {
			t.Errorf("output = %q, want %q", got, "one\n")
		}
		if tr.calls != 2 {
			t.Errorf("transcriber called %d times, want 2", tr.calls)
		}
	})
}

func TestListenCaptureError(t *testing.T) {
	captureErr := errors.New("device unplugged")
	l := NewListener(ListenConfig{TempDir: t.TempDir()}, logging.Discard())
	src := &fakeSource{err: captureErr, cancel: func() {}}

	err := l.Run(context.Background(), src, &fakeTranscriber{}, filepath.Join(t.TempDir(), "out.txt"))
	if !errors.Is(err, captureErr) {
		t.Fatalf("Run() error = %v, want %v", err, captureErr)
	}
}

func TestListenUnwritableTempDir(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "does-not-exist")
	tr := &fakeTranscriber{texts: []string{"never"}}
	_, _, err := runListener(t, ListenConfig{TempDir: missing, OnError: OnErrorAbort}, 1, tr)
	if err == nil {
		t.Fatal("Run() should fail when the temp file cannot be created")
	}
	if tr.calls != 0 {
		t.Errorf("transcriber called %d times, want 0", tr.calls)
	}
}

func TestListenNewlinePolicy(t *testing.T) {
	tests := []struct {
		policy string
		text   string
		want   string
	}{
		{NewlinesCollapse, "hello\nworld", "hello world\n"},
		{NewlinesCollapse, "a\r\n\r\nb \n c", "a b c\n"},
		{NewlinesCollapse, "\ntrailing\n", "trailing\n"},
		{NewlinesCollapse, "  hello\tthere  ", "  hello\tthere  \n"},
		{NewlinesKeep, "hello\nworld", "hello\nworld\n"},
	}

	for _, tt := range tests {
		t.Run(tt.policy+"/"+strings.ReplaceAll(tt.text, "\n", `\n`), func(t *testing.T) {
			tr := &fakeTranscriber{texts: []string{tt.text}}
			out, _, err := runListener(t, ListenConfig{Newlines: tt.policy}, 1, tr)
			if err != nil {
				t.Fatalf("Run() error = %v", err)
			}
			if got := readOutput(t, out); got != tt.want {
				t.Errorf("output = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCollapseNewlines(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"", ""},
		{"plain", "plain"},
		{"  spaced\tout  ", "  spaced\tout  "},
		{"one\ntwo", "one two"},
		{"one \r\n\t two", "one two"},
		{"  \n leading", "leading"},
		{"trailing \n\n", "trailing"},
		{"\r\n", ""},
	}

	for _, tt := range tests {
		if got := collapseNewlines(tt.input); got != tt.want {
			t.Errorf("collapseNewlines(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestListenSilenceAppendsEmptyLine(t *testing.T) {
	tr := &fakeTranscriber{texts: []string{"", "after"}}
	out, _, err := runListener(t, ListenConfig{}, 2, tr)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if got := readOutput(t, out); got != "\nafter\n" {
		t.Errorf("output = %q, want %q", got, "\nafter\n")
	}
}

func TestNewListenerDefaults(t *testing.T) {
	l := NewListener(ListenConfig{}, nil)
	if l.cfg.MaxSegment != 30*time.Second {
		t.Errorf("MaxSegment = %s, want 30s", l.cfg.MaxSegment)
	}
	if l.cfg.OnError != OnErrorSkip {
		t.Errorf("OnError = %q, want %q", l.cfg.OnError, OnErrorSkip)
	}
	if l.cfg.Newlines != NewlinesCollapse {
		t.Errorf("Newlines = %q, want %q", l.cfg.Newlines, NewlinesCollapse)
	}
}
