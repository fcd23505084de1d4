package normalize

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"testing"

	apperrors "github.com/kbukum/mediascribe/errors"
	"github.com/kbukum/mediascribe/media"
	"github.com/kbukum/mediascribe/process"
)

// fakeTranscoder writes a fixed transform of the input, like a decoder would.
func fakeTranscoder(pcm func(in []byte) []byte) Transcoder {
	return TranscoderFunc(func(ctx context.Context, in, out string, format media.Format) error {
		data, err := os.ReadFile(in)
		if err != nil {
			return err
		}
		return os.WriteFile(out, pcm(data), 0o600)
	})
}

func writeInput(t *testing.T, dir string, data []byte) *media.LocalMedia {
	t.Helper()
	p := filepath.Join(dir, "source.bin")
	if err := os.WriteFile(p, data, 0o600); err != nil {
		t.Fatal(err)
	}
	return &media.LocalMedia{Path: p, Size: int64(len(data))}
}

func TestNormalize_FingerprintsOutput(t *testing.T) {
	scratch, _ := media.NewScratch(t.TempDir(), "job")
	n := New(Config{KeepSource: true}, fakeTranscoder(func(in []byte) []byte { return bytes.Repeat(in, 4) }), nil)

	in := writeInput(t, scratch.Dir, []byte{1, 2, 3, 4})
	a, err := n.Normalize(context.Background(), in, scratch)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if a.Bytes != 16 || a.Format != media.DefaultFormat() {
		t.Errorf("unexpected audio %+v", a)
	}
	want, _, _ := media.FingerprintFile(a.Path, media.DefaultFormat())
	if a.Fingerprint != want {
		t.Errorf("fingerprint mismatch: %s vs %s", a.Fingerprint, want)
	}
}

func TestNormalize_SameInputSameFingerprint(t *testing.T) {
	n := New(Config{}, fakeTranscoder(func(in []byte) []byte { return in }), nil)
	input := bytes.Repeat([]byte{7, 0}, 800)

	var prints []media.Fingerprint
	for i := 0; i < 2; i++ {
		scratch, _ := media.NewScratch(t.TempDir(), "")
		a, err := n.Normalize(context.Background(), writeInput(t, scratch.Dir, input), scratch)
		if err != nil {
			t.Fatalf("Normalize: %v", err)
		}
		prints = append(prints, a.Fingerprint)
	}
	if prints[0] != prints[1] {
		t.Errorf("expected identical fingerprints, got %v", prints)
	}
}

func TestNormalize_EmptyOutputIsEmptyAudio(t *testing.T) {
	scratch, _ := media.NewScratch(t.TempDir(), "job")
	n := New(Config{}, fakeTranscoder(func([]byte) []byte { return nil }), nil)

	_, err := n.Normalize(context.Background(), writeInput(t, scratch.Dir, []byte("x")), scratch)
	if !apperrors.HasCode(err, apperrors.ErrCodeEmptyAudio) {
		t.Fatalf("expected EMPTY_AUDIO, got %v", err)
	}
	if _, err := os.Stat(scratch.Path(canonicalFile)); !os.IsNotExist(err) {
		t.Error("expected canonical output to be removed")
	}
}

func TestNormalize_EmptyInput(t *testing.T) {
	n := New(Config{}, fakeTranscoder(func(in []byte) []byte { return in }), nil)
	_, err := n.Normalize(context.Background(), &media.LocalMedia{}, nil)
	if !apperrors.HasCode(err, apperrors.ErrCodeEmptyAudio) {
		t.Errorf("expected EMPTY_AUDIO, got %v", err)
	}
}

func TestFFmpegTranscoder_Args(t *testing.T) {
	tc := NewFFmpegTranscoder("", 2, nil)
	args := tc.Args("in.mp4", "out.pcm", media.Format{SampleRate: 16000, Channels: 1})
	for _, want := range []string{"+bitexact", "-map_metadata", "pcm_s16le", "s16le", "16000", "in.mp4", "out.pcm"} {
		if !slices.Contains(args, want) {
			t.Errorf("expected %q in args %v", want, args)
		}
	}
	if args[len(args)-1] != "out.pcm" {
		t.Errorf("output must be last, got %v", args)
	}
}

func TestFFmpegTranscoder_Classification(t *testing.T) {
	tests := []struct {
		stderr string
		code   apperrors.ErrorCode
	}{
		{"in.mp4: Invalid data found when processing input", apperrors.ErrCodeCorruptMedia},
		{"[mov,mp4] moov atom not found", apperrors.ErrCodeCorruptMedia},
		{"Decoder (codec none) not found for input stream #0:0", apperrors.ErrCodeUnsupportedCodec},
		{"Output file #0 does not contain any stream", apperrors.ErrCodeEmptyAudio},
		{"Stream map '0:a' matches no streams.", apperrors.ErrCodeEmptyAudio},
	}
	for _, tc := range tests {
		runner := process.RunnerFunc(func(ctx context.Context, cmd process.Command) (*process.Result, error) {
			return &process.Result{ExitCode: 1, Stderr: []byte(tc.stderr)}, errors.New("exit 1")
		})
		err := NewFFmpegTranscoder("ffmpeg", 0, runner).Transcode(context.Background(), "in", "out", media.DefaultFormat())
		if !apperrors.HasCode(err, tc.code) {
			t.Errorf("%q: expected %s, got %v", tc.stderr, tc.code, err)
		}
	}
}

func TestFFmpegTranscoder_Deterministic(t *testing.T) {
	if !process.Available("ffmpeg") {
		t.Skip("ffmpeg not installed")
	}
	dir := t.TempDir()
	src := filepath.Join(dir, "tone.wav")
	_, err := process.Run(context.Background(), process.Command{
		Binary: "ffmpeg",
		Args:   []string{"-hide_banner", "-nostdin", "-y", "-f", "lavfi", "-i", "sine=frequency=440:duration=1", "-ac", "2", "-ar", "44100", src},
	})
	if err != nil {
		t.Fatalf("generate tone: %v", err)
	}

	n := New(Config{KeepSource: true}, nil, nil)
	info, _ := os.Stat(src)
	in := &media.LocalMedia{Path: src, Size: info.Size()}

	var outputs [][]byte
	for i := 0; i < 2; i++ {
		scratch, _ := media.NewScratch(dir, "")
		a, err := n.Normalize(context.Background(), in, scratch)
		if err != nil {
			t.Fatalf("Normalize: %v", err)
		}
		data, _ := os.ReadFile(a.Path)
		outputs = append(outputs, data)
	}
	if !bytes.Equal(outputs[0], outputs[1]) {
		t.Error("expected byte-identical canonical output")
	}
}
