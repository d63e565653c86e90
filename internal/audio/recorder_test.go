package audio

import (
	"context"
	"errors"
	"testing"
	"time"
)

// newTestRecorder opens the default capture device or skips when the host has none.
func newTestRecorder(t *testing.T) *Recorder {
	t.Helper()
	r, err := NewRecorder(16000, 1, DefaultEndpointConfig(16000, 1))
	if err != nil {
		t.Skipf("no capture device available: %v", err)
	}
	return r
}

func TestNewRecorderAndClose(t *testing.T) {
	r := newTestRecorder(t)

	if r.sampleRate != 16000 {
		t.Errorf("sampleRate = %d, want 16000", r.sampleRate)
	}
	if r.channels != 1 {
		t.Errorf("channels = %d, want 1", r.channels)
	}

	if err := r.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if err := r.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
}

func TestNextAfterClose(t *testing.T) {
	r := newTestRecorder(t)
	_ = r.Close()

	_, err := r.Next(context.Background(), time.Second)
	if !errors.Is(err, ErrClosed) {
		t.Errorf("Next() after Close error = %v, want ErrClosed", err)
	}
}

func TestNextCancelled(t *testing.T) {
	r := newTestRecorder(t)
	defer r.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := r.Next(ctx, time.Second)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Next() with cancelled context error = %v, want context.Canceled", err)
	}
}

func TestOnDataDropsWhenFull(t *testing.T) {
	r := &Recorder{channels: 1, chunks: make(chan []float32, 1)}
	data := []byte{0x00, 0x00, 0x80, 0x3F}

	r.onData(nil, data, 1)
	r.onData(nil, data, 1)

	if got := r.Dropped(); got != 1 {
		t.Errorf("Dropped() = %d, want 1", got)
	}
	r.drain()
	if len(r.chunks) != 0 {
		t.Errorf("drain() left %d chunks", len(r.chunks))
	}
}

func TestBytesToFloat32(t *testing.T) {
	// Test with known float32 value: 1.0 = 0x3F800000
	data := []byte{0x00, 0x00, 0x80, 0x3F} // 1.0 in little-endian float32
	samples := bytesToFloat32(data, 1)

	if len(samples) != 1 {
		t.Fatalf("bytesToFloat32() returned %d samples, want 1", len(samples))
	}
	if samples[0] != 1.0 {
		t.Errorf("bytesToFloat32() = %f, want 1.0", samples[0])
	}
}

func TestBytesToFloat32Truncated(t *testing.T) {
	// Two samples requested but only one and a half present.
	data := []byte{0x00, 0x00, 0x80, 0xBF, 0x00, 0x00}
	samples := bytesToFloat32(data, 2)

	if len(samples) != 1 {
		t.Fatalf("bytesToFloat32() returned %d samples, want 1", len(samples))
	}
	if samples[0] != -1.0 {
		t.Errorf("samples[0] = %f, want -1.0", samples[0])
	}
}
