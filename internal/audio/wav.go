package audio

import (
	"fmt"
	"io"
	"os"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// wavBitDepth is the PCM resolution of segment files.
const wavBitDepth = 16

// WriteWAV encodes seg as an uncompressed 16-bit PCM WAV stream.
func WriteWAV(w io.WriteSeeker, seg Segment) error {
	if seg.SampleRate <= 0 || seg.Channels <= 0 {
		return fmt.Errorf("audio: invalid segment format %dHz/%dch", seg.SampleRate, seg.Channels)
	}

	enc := wav.NewEncoder(w, seg.SampleRate, wavBitDepth, seg.Channels, 1)
	buf := &goaudio.IntBuffer{
		Format: &goaudio.Format{
			NumChannels: seg.Channels,
			SampleRate:  seg.SampleRate,
		},
		Data:           float32ToPCM16(seg.Samples),
		SourceBitDepth: wavBitDepth,
	}

	if err := enc.Write(buf); err != nil {
		return fmt.Errorf("audio: encode wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("audio: finalize wav: %w", err)
	}
	return nil
}

// WriteWAVFile writes seg to path, replacing any existing file.
func WriteWAVFile(path string, seg Segment) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("audio: create %q: %w", path, err)
	}
	if err := WriteWAV(f, seg); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// float32ToPCM16 scales [-1, 1] float samples to 16-bit integer range, clipping overs.
func float32ToPCM16(samples []float32) []int {
	out := make([]int, len(samples))
	for i, s := range samples {
		if s > 1 {
			s = 1
		} else if s < -1 {
			s = -1
		}
		out[i] = int(s * 32767)
	}
	return out
}
