package audio

import (
	"math"
	"time"
)

// Segment is one bounded unit of captured audio: interleaved float32 PCM in [-1, 1].
type Segment struct {
	Samples    []float32
	SampleRate int
	Channels   int
}

// Frames returns the number of sample frames (samples per channel).
func (s Segment) Frames() int {
	if s.Channels <= 0 {
		return 0
	}
	return len(s.Samples) / s.Channels
}

// Duration returns the playback length of the segment.
func (s Segment) Duration() time.Duration {
	if s.SampleRate <= 0 {
		return 0
	}
	return time.Duration(s.Frames()) * time.Second / time.Duration(s.SampleRate)
}

// EndpointConfig tunes pause detection. The defaults mirror the classic
// speech_recognition listener: 300/32768 energy threshold, 0.8s pause,
// 0.5s of non-speaking padding, 0.3s minimum phrase.
type EndpointConfig struct {
	SampleRate      int
	Channels        int
	EnergyThreshold float64 // RMS on the [-1, 1] scale
	DynamicEnergy   bool
	DynamicDamping  float64 // per second
	DynamicRatio    float64
	PauseThreshold  time.Duration
	NonSpeaking     time.Duration
	MinPhrase       time.Duration
	MaxDuration     time.Duration
}

// DefaultEndpointConfig returns EndpointConfig defaults for the given format.
func DefaultEndpointConfig(sampleRate, channels int) EndpointConfig {
	return EndpointConfig{
		SampleRate:      sampleRate,
		Channels:        channels,
		EnergyThreshold: 300.0 / 32768.0,
		DynamicEnergy:   true,
		DynamicDamping:  0.15,
		DynamicRatio:    1.5,
		PauseThreshold:  800 * time.Millisecond,
		NonSpeaking:     500 * time.Millisecond,
		MinPhrase:       300 * time.Millisecond,
		MaxDuration:     30 * time.Second,
	}
}

// Endpointer splits a stream of audio chunks into speech segments using
// an RMS energy threshold. It is not safe for concurrent use.
type Endpointer struct {
	cfg       EndpointConfig
	threshold float64

	preroll  []float32
	phrase   []float32
	inPhrase bool
	carried  bool // phrase continues audio cut off at MaxDuration

	speechFrames int
	pauseFrames  int
}

// NewEndpointer creates an Endpointer. Zero-valued durations in cfg fall back
// to DefaultEndpointConfig values.
func NewEndpointer(cfg EndpointConfig) *Endpointer {
	def := DefaultEndpointConfig(cfg.SampleRate, cfg.Channels)
	if cfg.Channels <= 0 {
		cfg.Channels = 1
	}
	if cfg.EnergyThreshold <= 0 {
		cfg.EnergyThreshold = def.EnergyThreshold
	}
	if cfg.DynamicDamping <= 0 {
		cfg.DynamicDamping = def.DynamicDamping
	}
	if cfg.DynamicRatio <= 0 {
		cfg.DynamicRatio = def.DynamicRatio
	}
	if cfg.PauseThreshold <= 0 {
		cfg.PauseThreshold = def.PauseThreshold
	}
	if cfg.NonSpeaking <= 0 {
		cfg.NonSpeaking = def.NonSpeaking
	}
	if cfg.MinPhrase <= 0 {
		cfg.MinPhrase = def.MinPhrase
	}
	if cfg.MaxDuration <= 0 {
		cfg.MaxDuration = def.MaxDuration
	}
	return &Endpointer{cfg: cfg, threshold: cfg.EnergyThreshold}
}

// Threshold returns the current energy threshold, which drifts toward the
// ambient noise floor when dynamic adjustment is enabled.
func (e *Endpointer) Threshold() float64 {
	return e.threshold
}

// SetMaxDuration changes the phrase length cap for subsequent segments.
func (e *Endpointer) SetMaxDuration(d time.Duration) {
	if d > 0 {
		e.cfg.MaxDuration = d
	}
}

// Reset drops buffered audio, except the remainder of a chunk that crossed
// MaxDuration: that audio opens the next segment. The adapted threshold is kept.
func (e *Endpointer) Reset() {
	if e.carried {
		e.preroll = e.preroll[:0]
		return
	}
	e.clear()
}

func (e *Endpointer) clear() {
	e.preroll = e.preroll[:0]
	e.phrase = nil
	e.inPhrase = false
	e.carried = false
	e.speechFrames = 0
	e.pauseFrames = 0
}

// Feed consumes one chunk of interleaved samples. It returns a segment and
// true once a pause follows enough speech, or once MaxDuration is reached.
func (e *Endpointer) Feed(chunk []float32) (Segment, bool) {
	frames := len(chunk) / e.cfg.Channels
	if frames == 0 {
		return Segment{}, false
	}
	energy := rms(chunk)
	loud := energy > e.threshold

	if !e.inPhrase {
		if !loud {
			e.adjust(energy, frames)
			e.preroll = append(e.preroll, chunk...)
			if excess := len(e.preroll) - e.samples(e.cfg.NonSpeaking); excess > 0 {
				e.preroll = append(e.preroll[:0], e.preroll[excess:]...)
			}
			return Segment{}, false
		}
		e.inPhrase = true
		e.phrase = make([]float32, 0, e.samples(e.cfg.MaxDuration))
		e.phrase = append(e.phrase, e.preroll...)
		e.preroll = e.preroll[:0]
		e.speechFrames = 0
		e.pauseFrames = 0
	}

	e.phrase = append(e.phrase, chunk...)
	if loud {
		e.speechFrames += frames
		e.pauseFrames = 0
	} else {
		e.pauseFrames += frames
	}

	if limit := e.samples(e.cfg.MaxDuration); len(e.phrase) >= limit {
		tail := append([]float32(nil), e.phrase[limit:]...)
		e.phrase = e.phrase[:limit]
		seg := e.finish(false)
		if len(tail) > 0 {
			e.carry(tail, loud)
		}
		return seg, true
	}

	if e.pauseFrames >= e.frames(e.cfg.PauseThreshold) {
		if e.speechFrames < e.frames(e.cfg.MinPhrase) {
			// Too short to be speech: a click or a bump.
			e.clear()
			return Segment{}, false
		}
		return e.finish(true), true
	}

	return Segment{}, false
}

// finish packages the current phrase, trimming trailing silence down to the
// non-speaking padding when the phrase ended on a pause.
func (e *Endpointer) finish(trim bool) Segment {
	samples := e.phrase
	if trim {
		if extra := e.pauseFrames - e.frames(e.cfg.NonSpeaking); extra > 0 {
			cut := extra * e.cfg.Channels
			if cut > len(samples) {
				cut = len(samples)
			}
			samples = samples[:len(samples)-cut]
		}
	}
	seg := Segment{
		Samples:    samples,
		SampleRate: e.cfg.SampleRate,
		Channels:   e.cfg.Channels,
	}
	e.phrase = nil
	e.inPhrase = false
	e.carried = false
	e.speechFrames = 0
	e.pauseFrames = 0
	return seg
}

// carry starts the next phrase with the samples past the duration cap.
func (e *Endpointer) carry(tail []float32, loud bool) {
	e.inPhrase = true
	e.carried = true
	e.phrase = make([]float32, 0, e.samples(e.cfg.MaxDuration))
	e.phrase = append(e.phrase, tail...)
	if frames := len(tail) / e.cfg.Channels; loud {
		e.speechFrames = frames
	} else {
		e.pauseFrames = frames
	}
}

// adjust moves the threshold toward DynamicRatio times the ambient energy.
func (e *Endpointer) adjust(energy float64, frames int) {
	if !e.cfg.DynamicEnergy || e.cfg.SampleRate <= 0 {
		return
	}
	seconds := float64(frames) / float64(e.cfg.SampleRate)
	damping := math.Pow(e.cfg.DynamicDamping, seconds)
	target := energy * e.cfg.DynamicRatio
	e.threshold = e.threshold*damping + target*(1-damping)
}

func (e *Endpointer) frames(d time.Duration) int {
	return int(d * time.Duration(e.cfg.SampleRate) / time.Second)
}

func (e *Endpointer) samples(d time.Duration) int {
	return e.frames(d) * e.cfg.Channels
}

// rms returns the root-mean-square amplitude of the samples.
func rms(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += float64(s) * float64(s)
	}
	return math.Sqrt(sum / float64(len(samples)))
}
