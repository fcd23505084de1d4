package normalize

import (
	"context"
	stderrors "errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/kbukum/mediascribe/errors"
	"github.com/kbukum/mediascribe/media"
	"github.com/kbukum/mediascribe/process"
)

// Transcoder converts the media file at in to raw PCM at out.
type Transcoder interface {
	Transcode(ctx context.Context, in, out string, format media.Format) error
}

// TranscoderFunc adapts a function to Transcoder.
type TranscoderFunc func(ctx context.Context, in, out string, format media.Format) error

func (f TranscoderFunc) Transcode(ctx context.Context, in, out string, format media.Format) error {
	return f(ctx, in, out, format)
}

// FFmpegTranscoder runs ffmpeg with bit-exact flags and metadata stripped.
type FFmpegTranscoder struct {
	binary  string
	threads int
	runner  process.Runner
}

// NewFFmpegTranscoder creates an ffmpeg transcoder. A nil runner runs real
// processes.
func NewFFmpegTranscoder(binary string, threads int, runner process.Runner) *FFmpegTranscoder {
	if binary == "" {
		binary = "ffmpeg"
	}
	if runner == nil {
		runner = process.ExecRunner{}
	}
	return &FFmpegTranscoder{binary: binary, threads: threads, runner: runner}
}

// Args returns the ffmpeg arguments for one conversion.
func (t *FFmpegTranscoder) Args(in, out string, format media.Format) []string {
	args := []string{
		"-hide_banner", "-nostdin", "-y",
		"-loglevel", "error",
	}
	if t.threads > 0 {
		args = append(args, "-threads", strconv.Itoa(t.threads))
	}
	return append(args,
		"-i", in,
		"-vn", "-sn", "-dn",
		"-map_metadata", "-1",
		"-fflags", "+bitexact",
		"-flags:a", "+bitexact",
		"-ac", strconv.Itoa(format.Channels),
		"-ar", strconv.Itoa(format.SampleRate),
		"-f", "s16le",
		"-c:a", "pcm_s16le",
		out,
	)
}

func (t *FFmpegTranscoder) Transcode(ctx context.Context, in, out string, format media.Format) error {
	res, err := t.runner.Run(ctx, process.Command{Binary: t.binary, Args: t.Args(in, out, format)})
	if err == nil {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if stderrors.Is(err, process.ErrBinaryNotFound) {
		return errors.Internal(err)
	}
	var stderr string
	if res != nil {
		stderr = string(res.Stderr)
	}
	return classify(stderr, err)
}

// classify maps ffmpeg diagnostics onto the normalizer's error kinds.
func classify(stderr string, err error) error {
	lower := strings.ToLower(stderr)
	detail := lastLine(stderr)
	if detail == "" {
		detail = err.Error()
	}
	switch {
	case containsAny(lower,
		"does not contain any stream",
		"matches no streams",
		"output file is empty",
		"no audio streams"):
		return errors.EmptyAudio()
	case containsAny(lower,
		"decoder (codec",
		"unknown decoder",
		"unsupported codec",
		"could not find codec parameters",
		"error while opening decoder",
		"no decoder for"):
		return errors.UnsupportedCodec(detail)
	default:
		// "Invalid data found when processing input", "moov atom not found",
		// truncated streams and everything unrecognized.
		return errors.CorruptMedia(detail)
	}
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return strings.TrimSpace(s[i+1:])
	}
	return s
}

var _ Transcoder = (*FFmpegTranscoder)(nil)

// String is used in logs.
func (t *FFmpegTranscoder) String() string { return fmt.Sprintf("ffmpeg(%s)", t.binary) }
