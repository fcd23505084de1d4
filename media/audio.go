package media

import (
	"fmt"
	"time"
)

// Format describes canonical PCM: signed 16-bit little-endian samples.
type Format struct {
	SampleRate int `yaml:"sample_rate" mapstructure:"sample_rate"`
	Channels   int `yaml:"channels" mapstructure:"channels"`
}

// BytesPerSample is fixed by the s16le encoding.
const BytesPerSample = 2

// DefaultFormat is 16 kHz mono, what whisper-family engines expect.
func DefaultFormat() Format {
	return Format{SampleRate: 16000, Channels: 1}
}

// FrameSize is the byte size of one sample across all channels.
func (f Format) FrameSize() int { return f.Channels * BytesPerSample }

// ByteRate is the number of bytes per second of audio.
func (f Format) ByteRate() int { return f.SampleRate * f.FrameSize() }

// BytesFor returns the frame-aligned byte length of d.
func (f Format) BytesFor(d time.Duration) int64 {
	frames := int64(d.Seconds() * float64(f.SampleRate))
	return frames * int64(f.FrameSize())
}

// DurationOf converts a byte length of PCM into a duration.
func (f Format) DurationOf(n int64) time.Duration {
	if f.ByteRate() == 0 {
		return 0
	}
	return time.Duration(float64(n) / float64(f.ByteRate()) * float64(time.Second))
}

func (f Format) Validate() error {
	if f.SampleRate < 8000 || f.SampleRate > 48000 {
		return fmt.Errorf("sample_rate must be between 8000 and 48000 (got: %d)", f.SampleRate)
	}
	if f.Channels != 1 {
		return fmt.Errorf("channels must be 1 (got: %d)", f.Channels)
	}
	return nil
}

func (f Format) String() string {
	return fmt.Sprintf("s16le/%dHz/%dch", f.SampleRate, f.Channels)
}

// CanonicalAudio is the normalizer's output: raw PCM in Format plus its fingerprint.
type CanonicalAudio struct {
	Path        string
	Format      Format
	Bytes       int64
	Fingerprint Fingerprint
}

// Duration returns the length of the audio.
func (a CanonicalAudio) Duration() time.Duration {
	return a.Format.DurationOf(a.Bytes)
}
