package audio

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gen2brain/malgo"
)

// ErrClosed is returned by Next after the recorder has been closed.
var ErrClosed = errors.New("audio: recorder closed")

// chunkBacklog bounds how many device callbacks may queue up before chunks are dropped.
const chunkBacklog = 512

// Recorder captures speech segments from the default microphone.
// The capture device is held from NewRecorder until Close; it only runs
// while Next is waiting for a segment.
type Recorder struct {
	ctx        *malgo.AllocatedContext
	device     *malgo.Device
	sampleRate uint32
	channels   uint32

	endpointer *Endpointer
	chunks     chan []float32
	dropped    atomic.Uint64

	mu     sync.Mutex
	closed bool
}

// NewRecorder acquires the default capture device. Call Close() when done.
func NewRecorder(sampleRate, channels uint32, ep EndpointConfig) (*Recorder, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("initializing audio context: %w", err)
	}

	ep.SampleRate = int(sampleRate)
	ep.Channels = int(channels)

	r := &Recorder{
		ctx:        ctx,
		sampleRate: sampleRate,
		channels:   channels,
		endpointer: NewEndpointer(ep),
		chunks:     make(chan []float32, chunkBacklog),
	}

	deviceCfg := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceCfg.Capture.Format = malgo.FormatF32
	deviceCfg.Capture.Channels = channels
	deviceCfg.SampleRate = sampleRate

	callbacks := malgo.DeviceCallbacks{
		Data: r.onData,
	}

	device, err := malgo.InitDevice(ctx.Context, deviceCfg, callbacks)
	if err != nil {
		_ = ctx.Uninit()
		ctx.Free()
		return nil, fmt.Errorf("initializing capture device: %w", err)
	}
	r.device = device

	return r, nil
}

// Next blocks until the next speech segment is captured: speech followed by
// a pause, or maxDuration of audio. Cancelling ctx abandons the partial
// segment and returns ctx.Err().
func (r *Recorder) Next(ctx context.Context, maxDuration time.Duration) (Segment, error) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return Segment{}, ErrClosed
	}
	r.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return Segment{}, err
	}

	r.drain()
	r.endpointer.Reset()
	r.endpointer.SetMaxDuration(maxDuration)

	if err := r.device.Start(); err != nil {
		return Segment{}, fmt.Errorf("starting capture device: %w", err)
	}
	defer func() { _ = r.device.Stop() }()

	for {
		select {
		case <-ctx.Done():
			return Segment{}, ctx.Err()
		case chunk := <-r.chunks:
			if seg, ok := r.endpointer.Feed(chunk); ok {
				return seg, nil
			}
		}
	}
}

// Dropped returns how many device chunks were discarded because Next was not
// consuming fast enough.
func (r *Recorder) Dropped() uint64 {
	return r.dropped.Load()
}

// Threshold returns the endpointer's current energy threshold.
func (r *Recorder) Threshold() float64 {
	return r.endpointer.Threshold()
}

// Close releases the capture device and audio context. It is safe to call
// more than once.
func (r *Recorder) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	if r.device != nil {
		r.device.Uninit()
		r.device = nil
	}
	r.mu.Unlock()

	if r.ctx != nil {
		if err := r.ctx.Uninit(); err != nil {
			return fmt.Errorf("uninitializing audio context: %w", err)
		}
		r.ctx.Free()
		r.ctx = nil
	}

	return nil
}

// drain discards chunks left over from a previous capture.
func (r *Recorder) drain() {
	for {
		select {
		case <-r.chunks:
		default:
			return
		}
	}
}

// onData is the malgo callback invoked on the audio thread when captured
// frames are available. It never blocks.
func (r *Recorder) onData(_, pSample []byte, frameCount uint32) {
	sampleCount := frameCount * r.channels
	samples := bytesToFloat32(pSample, sampleCount)

	select {
	case r.chunks <- samples:
	default:
		r.dropped.Add(1)
	}
}

// bytesToFloat32 converts raw bytes (little-endian float32) to a float32 slice.
func bytesToFloat32(data []byte, sampleCount uint32) []float32 {
	samples := make([]float32, 0, sampleCount)
	for i := uint32(0); i < sampleCount; i++ {
		offset := i * 4
		if offset+4 > uint32(len(data)) {
			break
		}
		bits := binary.LittleEndian.Uint32(data[offset : offset+4])
		samples = append(samples, math.Float32frombits(bits))
	}
	return samples
}
