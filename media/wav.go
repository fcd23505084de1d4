package media

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
)

// WriteWAV writes n bytes of PCM from r as a RIFF/WAVE file.
func WriteWAV(w io.Writer, r io.Reader, n int64, f Format) error {
	header := struct {
		RIFF          [4]byte
		ChunkSize     uint32
		WAVE          [4]byte
		Fmt           [4]byte
		FmtSize       uint32
		AudioFormat   uint16
		NumChannels   uint16
		SampleRate    uint32
		ByteRate      uint32
		BlockAlign    uint16
		BitsPerSample uint16
		Data          [4]byte
		DataSize      uint32
	}{
		RIFF:          [4]byte{'R', 'I', 'F', 'F'},
		ChunkSize:     uint32(36 + n),
		WAVE:          [4]byte{'W', 'A', 'V', 'E'},
		Fmt:           [4]byte{'f', 'm', 't', ' '},
		FmtSize:       16,
		AudioFormat:   1,
		NumChannels:   uint16(f.Channels),
		SampleRate:    uint32(f.SampleRate),
		ByteRate:      uint32(f.ByteRate()),
		BlockAlign:    uint16(f.FrameSize()),
		BitsPerSample: BytesPerSample * 8,
		Data:          [4]byte{'d', 'a', 't', 'a'},
		DataSize:      uint32(n),
	}
	if err := binary.Write(w, binary.LittleEndian, header); err != nil {
		return fmt.Errorf("write wav header: %w", err)
	}
	copied, err := io.CopyN(w, r, n)
	if err != nil {
		return fmt.Errorf("write wav data: %w", err)
	}
	if copied != n {
		return fmt.Errorf("write wav data: short copy %d of %d", copied, n)
	}
	return nil
}

// ExtractWAV writes the PCM range [offset, offset+n) of a canonical file to dst as WAV.
func ExtractWAV(audio CanonicalAudio, offset, n int64, dst string) error {
	src, err := os.Open(audio.Path)
	if err != nil {
		return err
	}
	defer src.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if err := WriteWAV(out, io.NewSectionReader(src, offset, n), n, audio.Format); err != nil {
		out.Close()
		os.Remove(dst)
		return err
	}
	return out.Close()
}
