// Command test-mic is a manual test for microphone capture and pause detection.
// Run it, say something, then pause; the segment is written to a WAV file.
// Press Ctrl+C to exit early.
//
// Usage:
//
//	go run ./cmd/test-mic [--out segment.wav] [--max 10s] [--count 1]
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/chaz8081/gostt-scribe/internal/audio"
)

func main() {
	out := flag.String("out", "segment.wav", "output WAV path (segment number appended when --count > 1)")
	maxDur := flag.Duration("max", 10*time.Second, "longest segment to record")
	count := flag.Int("count", 1, "number of segments to capture")
	rate := flag.Uint("rate", 16000, "sample rate")
	flag.Parse()

	if err := run(*out, *maxDur, *count, uint32(*rate)); err != nil { // #nosec G115 - flag value is a sample rate
		fmt.Fprintf(os.Stderr, "test-mic: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("Done.")
}

// run owns the recorder so it is closed on every return path.
func run(out string, maxDur time.Duration, count int, rate uint32) error {
	rec, err := audio.NewRecorder(rate, 1, audio.DefaultEndpointConfig(int(rate), 1))
	if err != nil {
		return fmt.Errorf("recorder: %w", err)
	}
	defer rec.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	for i := 1; i <= count; i++ {
		fmt.Printf("[%d/%d] Listening (threshold %.4f)... speak, then pause.\n", i, count, rec.Threshold())
		seg, err := rec.Next(ctx, maxDur)
		if err != nil {
			fmt.Printf("\nStopped: %v\n", err)
			break
		}

		path := out
		if count > 1 {
			path = fmt.Sprintf("%s.%d.wav", out, i)
		}
		if err := audio.WriteWAVFile(path, seg); err != nil {
			return fmt.Errorf("write: %w", err)
		}
		fmt.Printf(">>> %.1fs captured -> %s\n", seg.Duration().Seconds(), path)
	}

	if n := rec.Dropped(); n > 0 {
		fmt.Printf("Dropped %d chunks.\n", n)
	}
	return nil
}
