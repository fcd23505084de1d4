package media

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"

	"golang.org/x/crypto/blake2b"
)

// Fingerprint is the hex BLAKE2b-256 digest of canonical audio.
type Fingerprint string

func (f Fingerprint) String() string { return string(f) }

// Short returns a prefix suitable for logs.
func (f Fingerprint) Short() string {
	if len(f) > 12 {
		return string(f[:12])
	}
	return string(f)
}

// FingerprintReader hashes PCM from r. The format is mixed into the digest so
// identical bytes at different sample rates never collide.
func FingerprintReader(r io.Reader, format Format) (Fingerprint, int64, error) {
	h, err := blake2b.New256(nil)
	if err != nil {
		return "", 0, err
	}
	fmt.Fprintf(h, "%s\n", format)
	n, err := io.Copy(h, r)
	if err != nil {
		return "", n, fmt.Errorf("hash audio: %w", err)
	}
	return Fingerprint(hex.EncodeToString(h.Sum(nil))), n, nil
}

// FingerprintFile hashes the PCM file at path.
func FingerprintFile(path string, format Format) (Fingerprint, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", 0, err
	}
	defer f.Close()
	return FingerprintReader(f, format)
}
