package media

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/kbukum/mediascribe/errors"
)

func TestParseSource(t *testing.T) {
	tests := []struct {
		raw     string
		kind    SourceKind
		wantErr bool
	}{
		{"https://cdn.example.com/a.mp3", SourceURL, false},
		{"  http://example.com/x ", SourceURL, false},
		{"upload://2024/abc.wav", SourceUpload, false},
		{"", "", true},
		{"ftp://example.com/a.mp3", "", true},
		{"https:///nohost", "", true},
		{"https://user:pw@example.com/a.mp3", "", true},
		{"upload://", "", true},
		{"upload://../secret", "", true},
		{"/local/file.mp3", "", true},
	}
	for _, tc := range tests {
		t.Run(tc.raw, func(t *testing.T) {
			src, err := ParseSource(tc.raw)
			if tc.wantErr {
				if !errors.HasCode(err, errors.ErrCodeUnsupportedSource) {
					t.Fatalf("expected UNSUPPORTED_SOURCE, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if src.Kind != tc.kind {
				t.Errorf("expected kind %s, got %s", tc.kind, src.Kind)
			}
		})
	}

	src, _ := ParseSource("https://CDN.Example.com:8443/a.mp3")
	if src.Host() != "cdn.example.com" {
		t.Errorf("unexpected host %q", src.Host())
	}
	up, _ := ParseSource(UploadRef("k/1.mp3"))
	if up.UploadKey != "k/1.mp3" {
		t.Errorf("unexpected upload key %q", up.UploadKey)
	}
}

func TestScratch(t *testing.T) {
	root := t.TempDir()
	s, err := NewScratch(root, "job-1")
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(s.Path("x"), []byte("data"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := s.Remove(); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(s.Dir); !os.IsNotExist(err) {
		t.Errorf("expected scratch dir removed, stat err=%v", err)
	}
	var nilScratch *Scratch
	if err := nilScratch.Remove(); err != nil {
		t.Errorf("nil scratch remove should be a no-op: %v", err)
	}
}

func TestFormat(t *testing.T) {
	f := DefaultFormat()
	if f.ByteRate() != 32000 {
		t.Errorf("expected 32000 B/s, got %d", f.ByteRate())
	}
	if got := f.BytesFor(10 * time.Second); got != 320000 {
		t.Errorf("expected 320000 bytes for 10s, got %d", got)
	}
	if got := f.DurationOf(320000); got != 10*time.Second {
		t.Errorf("expected 10s, got %v", got)
	}
	if err := (Format{SampleRate: 16000, Channels: 2}).Validate(); err == nil {
		t.Error("stereo must be rejected")
	}
	a := CanonicalAudio{Format: f, Bytes: 16000}
	if a.Duration() != 500*time.Millisecond {
		t.Errorf("unexpected duration %v", a.Duration())
	}
}

func TestFingerprint(t *testing.T) {
	pcm := bytes.Repeat([]byte{1, 2, 3, 4}, 1000)
	a, n, err := FingerprintReader(bytes.NewReader(pcm), DefaultFormat())
	if err != nil {
		t.Fatal(err)
	}
	if n != int64(len(pcm)) || len(a) != 64 {
		t.Fatalf("unexpected digest %q (%d bytes)", a, n)
	}
	b, _, _ := FingerprintReader(bytes.NewReader(pcm), DefaultFormat())
	if a != b {
		t.Error("fingerprint must be stable")
	}
	c, _, _ := FingerprintReader(bytes.NewReader(pcm), Format{SampleRate: 8000, Channels: 1})
	if a == c {
		t.Error("format must be part of the fingerprint")
	}

	path := filepath.Join(t.TempDir(), "a.pcm")
	_ = os.WriteFile(path, pcm, 0o600)
	d, _, err := FingerprintFile(path, DefaultFormat())
	if err != nil || d != a {
		t.Errorf("file fingerprint mismatch: %v", err)
	}
	if a.Short() != string(a[:12]) {
		t.Error("unexpected short form")
	}
}

func TestExtractWAV(t *testing.T) {
	dir := t.TempDir()
	pcm := make([]byte, 400)
	for i := range pcm {
		pcm[i] = byte(i)
	}
	src := filepath.Join(dir, "a.pcm")
	_ = os.WriteFile(src, pcm, 0o600)

	audio := CanonicalAudio{Path: src, Format: DefaultFormat(), Bytes: int64(len(pcm))}
	dst := filepath.Join(dir, "w.wav")
	if err := ExtractWAV(audio, 100, 200, dst); err != nil {
		t.Fatal(err)
	}
	out, _ := os.ReadFile(dst)
	if len(out) != 44+200 {
		t.Fatalf("expected 244 bytes, got %d", len(out))
	}
	if string(out[0:4]) != "RIFF" || string(out[8:12]) != "WAVE" || string(out[36:40]) != "data" {
		t.Fatal("bad wav header")
	}
	if rate := binary.LittleEndian.Uint32(out[24:28]); rate != 16000 {
		t.Errorf("expected 16000 Hz, got %d", rate)
	}
	if size := binary.LittleEndian.Uint32(out[40:44]); size != 200 {
		t.Errorf("expected data size 200, got %d", size)
	}
	if !bytes.Equal(out[44:], pcm[100:300]) {
		t.Error("wav payload does not match requested range")
	}
}

func TestSafeFilename(t *testing.T) {
	tests := map[string]string{
		"My Talk (final).mp3": "My_Talk_final_.mp3",
		"../../etc/passwd":    "passwd",
		"..\\win\\a b.wav":    "a_b.wav",
		"...":                 "media",
		"":                    "media",
	}
	for in, want := range tests {
		if got := SafeFilename(in); got != want {
			t.Errorf("SafeFilename(%q) = %q, want %q", in, got, want)
		}
	}
	long := strings.Repeat("a", 300) + ".flac"
	if got := SafeFilename(long); len(got) != 128 || !strings.HasSuffix(got, ".flac") {
		t.Errorf("expected truncated name keeping extension, got %d chars", len(got))
	}
}

func TestHasAllowedExtension(t *testing.T) {
	if !HasAllowedExtension("talk.MP3") || HasAllowedExtension("script.sh") {
		t.Error("unexpected extension check")
	}
}
