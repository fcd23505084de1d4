package transcription

import (
	"fmt"
	"math"
	"strings"
)

// Output formats served by the transcript endpoint.
const (
	FormatJSON       = "json"
	FormatText       = "text"
	FormatTimestamps = "timestamps"
	FormatSRT        = "srt"
	FormatVTT        = "vtt"
)

// Formats lists the renderable formats.
var Formats = []string{FormatJSON, FormatText, FormatTimestamps, FormatSRT, FormatVTT}

// FormatTimestamp renders seconds as MM:SS, or HH:MM:SS from one hour on.
func FormatTimestamp(seconds float64) string {
	total := int(math.Max(0, seconds))
	h, m, s := total/3600, (total%3600)/60, total%60
	if h > 0 {
		return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%02d:%02d", m, s)
}

// clock renders seconds as HH:MM:SS<sep>mmm for subtitle formats.
func clock(seconds float64, sep string) string {
	ms := int64(math.Round(math.Max(0, seconds) * 1000))
	h := ms / 3_600_000
	m := (ms % 3_600_000) / 60_000
	s := (ms % 60_000) / 1000
	return fmt.Sprintf("%02d:%02d:%02d%s%03d", h, m, s, sep, ms%1000)
}

// Render writes t in the requested text format and returns its MIME type.
// JSON is handled by the caller.
func Render(t *Transcript, format string) (string, string, error) {
	var b strings.Builder
	switch format {
	case FormatText:
		b.WriteString(t.Text)
		b.WriteByte('\n')
		return b.String(), "text/plain; charset=utf-8", nil
	case FormatTimestamps:
		for _, s := range t.Segments {
			fmt.Fprintf(&b, "[%s - %s] %s\n", FormatTimestamp(s.Start), FormatTimestamp(s.End), strings.TrimSpace(s.Text))
		}
		return b.String(), "text/plain; charset=utf-8", nil
	case FormatSRT:
		for i, s := range t.Segments {
			fmt.Fprintf(&b, "%d\n%s --> %s\n%s\n\n", i+1, clock(s.Start, ","), clock(s.End, ","), strings.TrimSpace(s.Text))
		}
		return b.String(), "application/x-subrip", nil
	case FormatVTT:
		b.WriteString("WEBVTT\n\n")
		for _, s := range t.Segments {
			fmt.Fprintf(&b, "%s --> %s\n%s\n\n", clock(s.Start, "."), clock(s.End, "."), strings.TrimSpace(s.Text))
		}
		return b.String(), "text/vtt; charset=utf-8", nil
	default:
		return "", "", fmt.Errorf("unsupported transcript format %q", format)
	}
}
