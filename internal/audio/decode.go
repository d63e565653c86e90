package audio

import (
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strconv"

	"github.com/gabriel-vasile/mimetype"
	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/pion/opus"
	"github.com/pion/opus/pkg/oggreader"
	"github.com/zeozeozeo/gomplerate"
)

const (
	// TargetSampleRate is the rate whisper.cpp expects.
	TargetSampleRate = 16000
	maxOpusFrameSize = 5760 // 120ms at 48kHz
)

// DecodeFile reads an audio file and returns 16kHz mono float32 samples
// normalized to [-1.0, 1.0]. WAV is decoded natively; OGG/Opus prefers
// ffmpeg and falls back to a pure Go decoder; anything else needs ffmpeg.
func DecodeFile(path string) ([]float32, error) {
	mtype, err := mimetype.DetectFile(path)
	if err != nil {
		return nil, fmt.Errorf("audio: open %q: %w", path, err)
	}
	slog.Debug("audio: decoding", "file", path, "mime", mtype.String())

	var pcm []int16
	switch {
	case mtype.Is("audio/wav"):
		samples, rate, channels, err := decodeWAV(path)
		if err != nil {
			return nil, err
		}
		pcm = normalizePCM(samples, rate, channels)

	case mtype.Is("audio/ogg") || mtype.Is("application/ogg"):
		if ffmpegAvailable() {
			pcm, err = convertWithFFmpeg(path)
			if err != nil {
				return nil, err
			}
			break
		}
		samples, rate, channels, err := decodeOggOpusSafe(path)
		if err != nil {
			return nil, fmt.Errorf("audio: OGG decoding failed (%v); install ffmpeg for reliable conversion", err)
		}
		pcm = normalizePCM(samples, rate, channels)

	default:
		if !ffmpegAvailable() {
			return nil, fmt.Errorf("audio: unsupported format %s for %q (install ffmpeg for non-WAV input)", mtype.String(), path)
		}
		pcm, err = convertWithFFmpeg(path)
		if err != nil {
			return nil, err
		}
	}

	if len(pcm) == 0 {
		return nil, fmt.Errorf("audio: no samples decoded from %q", path)
	}
	return int16ToFloat32(pcm), nil
}

// decodeWAV returns interleaved 16-bit samples plus the stream's rate and channel count.
func decodeWAV(path string) ([]int16, int, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("audio: open %q: %w", path, err)
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return nil, 0, 0, fmt.Errorf("audio: %q is not a valid PCM WAV file", path)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, 0, 0, fmt.Errorf("audio: rewind %q: %w", path, err)
	}

	dec = wav.NewDecoder(f)
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, 0, 0, fmt.Errorf("audio: decode wav %q: %w", path, err)
	}

	return intBufferToPCM16(buf), buf.Format.SampleRate, buf.Format.NumChannels, nil
}

// intBufferToPCM16 rescales go-audio integer samples of any source depth to 16 bits.
func intBufferToPCM16(buf *goaudio.IntBuffer) []int16 {
	out := make([]int16, len(buf.Data))
	depth := buf.SourceBitDepth
	for i, v := range buf.Data {
		switch {
		case depth == 8:
			// 8-bit WAV is unsigned.
			v = (v - 128) << 8
		case depth > 16:
			v >>= depth - 16
		}
		out[i] = int16(v) // #nosec G115 - rescaled into int16 range above
	}
	return out
}

// normalizePCM downmixes to mono and resamples to TargetSampleRate.
func normalizePCM(samples []int16, rate, channels int) []int16 {
	if channels > 1 {
		samples = toMono(samples, channels)
	}
	if rate != TargetSampleRate {
		samples = resampleInt16(samples, rate, TargetSampleRate)
	}
	return samples
}

// decodeOggOpusSafe wraps decodeOggOpus with panic recovery; the pure Go
// decoder panics on some inputs.
func decodeOggOpusSafe(path string) (samples []int16, rate, channels int, err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.Warn("audio: pure Go opus decoder panicked, recovered", "panic", r)
			samples, rate, channels = nil, 0, 0
			err = fmt.Errorf("decoder panic: %v", r)
		}
	}()
	return decodeOggOpus(path)
}

// decodeOggOpus decodes an OGG/Opus file to interleaved 16-bit PCM.
func decodeOggOpus(path string) ([]int16, int, int, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("open audio file: %w", err)
	}
	defer file.Close()

	ogg, header, err := oggreader.NewWith(file)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("parse OGG container: %w", err)
	}

	rate := int(header.SampleRate)
	channels := int(header.Channels)
	if channels < 1 {
		channels = 1
	}

	decoder := opus.NewDecoder()
	outBuf := make([]byte, maxOpusFrameSize*channels*2)

	var all []int16
	for {
		segments, _, err := ogg.ParseNextPage()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, 0, 0, fmt.Errorf("parse OGG page: %w", err)
		}

		for _, packet := range segments {
			if len(packet) == 0 {
				continue
			}
			clear(outBuf)
			if _, _, err := decoder.Decode(packet, outBuf); err != nil {
				// Header and comment packets do not decode; skip them.
				continue
			}
			all = append(all, trimmedPCM16(outBuf)...)
		}
	}

	if len(all) == 0 {
		return nil, 0, 0, fmt.Errorf("no audio samples decoded from %s", path)
	}
	return all, rate, channels, nil
}

// trimmedPCM16 reads little-endian 16-bit samples, stopping at the all-zero
// tail the decoder leaves unused.
func trimmedPCM16(buf []byte) []int16 {
	end := len(buf) &^ 1
	for end >= 2 && buf[end-1] == 0 && buf[end-2] == 0 {
		end -= 2
	}
	samples := make([]int16, end/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(buf[i*2:])) // #nosec G115 - reinterpret PCM bits
	}
	return samples
}

// toMono converts multi-channel audio to mono by averaging channels.
func toMono(samples []int16, channels int) []int16 {
	if channels <= 1 {
		return samples
	}

	mono := make([]int16, len(samples)/channels)
	for i := range mono {
		var sum int32
		for ch := 0; ch < channels; ch++ {
			sum += int32(samples[i*channels+ch])
		}
		mono[i] = int16(sum / int32(channels)) // #nosec G115 - average stays in range
	}
	return mono
}

// resampleInt16 converts mono audio between sample rates using gomplerate.
func resampleInt16(samples []int16, fromRate, toRate int) []int16 {
	if fromRate == toRate || fromRate <= 0 {
		return samples
	}

	resampler, err := gomplerate.NewResampler(1, fromRate, toRate)
	if err != nil {
		slog.Warn("audio: resampler creation failed, skipping resample", "from", fromRate, "to", toRate, "error", err)
		return samples
	}
	return resampler.ResampleInt16(samples)
}

// int16ToFloat32 converts int16 samples to float32 normalized to [-1, 1].
func int16ToFloat32(samples []int16) []float32 {
	result := make([]float32, len(samples))
	for i, s := range samples {
		result[i] = float32(s) / 32768.0
	}
	return result
}

// ffmpegAvailable reports whether ffmpeg is on PATH.
func ffmpegAvailable() bool {
	_, err := exec.LookPath("ffmpeg")
	return err == nil
}

// convertWithFFmpeg decodes any ffmpeg-readable file to 16kHz mono 16-bit PCM.
func convertWithFFmpeg(inputPath string) ([]int16, error) {
	tmpFile, err := os.CreateTemp("", "gostt-decode-*.raw")
	if err != nil {
		return nil, fmt.Errorf("audio: create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()
	tmpFile.Close()
	defer os.Remove(tmpPath)

	// #nosec G204 - arguments are fixed apart from the file paths
	cmd := exec.Command("ffmpeg",
		"-i", inputPath,
		"-ar", strconv.Itoa(TargetSampleRate),
		"-ac", "1",
		"-f", "s16le",
		"-acodec", "pcm_s16le",
		"-y",
		tmpPath,
	)
	if output, err := cmd.CombinedOutput(); err != nil {
		slog.Debug("audio: ffmpeg output", "output", string(output))
		return nil, fmt.Errorf("audio: ffmpeg conversion of %q failed: %w", inputPath, err)
	}

	raw, err := os.ReadFile(tmpPath)
	if err != nil {
		return nil, fmt.Errorf("audio: read converted audio: %w", err)
	}

	samples := make([]int16, len(raw)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(raw[i*2:])) // #nosec G115 - reinterpret PCM bits
	}
	return samples, nil
}
