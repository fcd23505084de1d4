package normalize

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/kbukum/mediascribe/errors"
	"github.com/kbukum/mediascribe/logger"
	"github.com/kbukum/mediascribe/media"
)

const canonicalFile = "canonical.pcm"

// Config configures the Normalizer.
type Config struct {
	Format       media.Format `mapstructure:"format"`
	FFmpegBinary string       `mapstructure:"ffmpeg_binary"`
	Threads      int          `mapstructure:"threads"`
	// KeepSource leaves the fetched file in scratch after conversion.
	KeepSource bool `mapstructure:"keep_source"`
}

// ApplyDefaults fills in zero-valued fields.
func (c *Config) ApplyDefaults() {
	if c.Format.SampleRate == 0 && c.Format.Channels == 0 {
		c.Format = media.DefaultFormat()
	}
	if c.FFmpegBinary == "" {
		c.FFmpegBinary = "ffmpeg"
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	return c.Format.Validate()
}

// Normalizer produces CanonicalAudio from LocalMedia.
type Normalizer struct {
	cfg Config
	tc  Transcoder
	log *logger.Logger
}

// New creates a Normalizer. A nil transcoder uses ffmpeg.
func New(cfg Config, tc Transcoder, log *logger.Logger) *Normalizer {
	cfg.ApplyDefaults()
	if tc == nil {
		tc = NewFFmpegTranscoder(cfg.FFmpegBinary, cfg.Threads, nil)
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Normalizer{cfg: cfg, tc: tc, log: log.WithComponent("normalizer")}
}

// Format returns the canonical audio format.
func (n *Normalizer) Format() media.Format { return n.cfg.Format }

// Normalize converts in to canonical PCM inside scratch and fingerprints it.
// Failures are UNSUPPORTED_CODEC, CORRUPT_MEDIA or EMPTY_AUDIO; none of them
// is worth retrying. A done ctx is returned as ctx.Err().
func (n *Normalizer) Normalize(ctx context.Context, in *media.LocalMedia, scratch *media.Scratch) (*media.CanonicalAudio, error) {
	if in == nil || in.Size == 0 {
		return nil, errors.EmptyAudio()
	}
	start := time.Now()
	out := scratch.Path(canonicalFile)

	if err := n.tc.Transcode(ctx, in.Path, out, n.cfg.Format); err != nil {
		_ = os.Remove(out)
		return nil, err
	}

	fp, size, err := media.FingerprintFile(out, n.cfg.Format)
	if err != nil {
		_ = os.Remove(out)
		return nil, errors.Internal(fmt.Errorf("fingerprint canonical audio: %w", err))
	}
	if size < int64(n.cfg.Format.FrameSize()) {
		_ = os.Remove(out)
		return nil, errors.EmptyAudio()
	}
	if !n.cfg.KeepSource {
		_ = os.Remove(in.Path)
	}

	audio := &media.CanonicalAudio{Path: out, Format: n.cfg.Format, Bytes: size, Fingerprint: fp}
	n.log.WithContext(ctx).Info("normalized media", logger.Fields(
		logger.FieldFingerprint, fp.Short(),
		logger.FieldBytes, size,
		"audio_ms", audio.Duration().Milliseconds(),
		logger.FieldDuration, time.Since(start).Milliseconds(),
	))
	return audio, nil
}
