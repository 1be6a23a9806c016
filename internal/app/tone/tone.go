// Package tone generates the synthetic fallback tone played when no real
// track can be loaded.
package tone

import (
	"io"
	"math"
	"os"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

const (
	bitDepth       = 16
	numChannels    = 1
	wavFormatPCM   = 1
	maxSampleValue = math.MaxInt16
	filePattern    = "bgtunes-tone-*.wav"
)

// Params describes the fallback waveform.
type Params struct {
	SampleRate int
	Duration   time.Duration
	Frequency  float64
	Amplitude  float64
}

// DefaultParams returns a 10 second 220 Hz sine at very low amplitude.
func DefaultParams() Params {
	return Params{
		SampleRate: 44100,
		Duration:   10 * time.Second,
		Frequency:  220,
		Amplitude:  0.05,
	}
}

// NumSamples returns the buffer length for p (sampleRate * duration).
func (p Params) NumSamples() int {
	return int(int64(p.SampleRate) * int64(p.Duration) / int64(time.Second))
}

// Validate checks that p can produce a waveform.
func (p Params) Validate() error {
	if p.SampleRate <= 0 {
		return errors.Newf("sample rate must be positive: %d", p.SampleRate)
	}
	if p.Duration <= 0 {
		return errors.Newf("duration must be positive: %v", p.Duration)
	}
	if p.Amplitude < 0 || p.Amplitude > 1 {
		return errors.Newf("amplitude out of range [0,1]: %v", p.Amplitude)
	}
	return nil
}

// Generate returns mono samples amplitude*sin(2π·f·i/sampleRate).
// The output depends only on p.
func Generate(p Params) []float64 {
	n := p.NumSamples()
	if n <= 0 {
		return nil
	}
	samples := make([]float64, n)
	step := 2 * math.Pi * p.Frequency / float64(p.SampleRate)
	for i := range samples {
		samples[i] = p.Amplitude * math.Sin(step*float64(i))
	}
	return samples
}

// PCM16 quantises samples in [-1,1] to signed 16-bit values.
func PCM16(samples []float64) []int {
	out := make([]int, len(samples))
	for i, s := range samples {
		s = math.Max(-1, math.Min(1, s))
		out[i] = int(math.Round(s * maxSampleValue))
	}
	return out
}

// WriteWAV encodes the tone as a 16-bit mono PCM WAV stream.
func WriteWAV(w io.WriteSeeker, p Params) error {
	if err := p.Validate(); err != nil {
		return err
	}

	enc := wav.NewEncoder(w, p.SampleRate, bitDepth, numChannels, wavFormatPCM)
	buf := &audio.IntBuffer{
		Format: &audio.Format{
			NumChannels: numChannels,
			SampleRate:  p.SampleRate,
		},
		Data:           PCM16(Generate(p)),
		SourceBitDepth: bitDepth,
	}
	if err := enc.Write(buf); err != nil {
		return errors.Wrap(err, "failed to write tone samples")
	}
	if err := enc.Close(); err != nil {
		return errors.Wrap(err, "failed to finalize tone file")
	}
	return nil
}

// Materialize writes the tone to a new temporary WAV file in dir (the
// system temp directory when empty) and returns its path. The caller owns
// the file and must remove it.
func Materialize(dir string, p Params) (string, error) {
	f, err := os.CreateTemp(dir, filePattern)
	if err != nil {
		return "", errors.Wrap(err, "failed to create tone file")
	}
	path := f.Name()

	if err := WriteWAV(f, p); err != nil {
		f.Close()
		os.Remove(path)
		return "", err
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return "", errors.Wrap(err, "failed to close tone file")
	}
	return path, nil
}
