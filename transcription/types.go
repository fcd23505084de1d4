package transcription

import "strings"

// Segment is a time-aligned piece of transcript. Times are seconds from the
// start of the audio.
type Segment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// Request is one engine invocation over a WAV file.
type Request struct {
	// AudioPath is a mono PCM WAV file.
	AudioPath string `json:"audio_path"`
	// Duration of the audio in seconds.
	Duration float64 `json:"duration"`
	// Model selects the engine model (tiny, base, small, medium, large).
	Model string `json:"model,omitempty"`
	// Language is an ISO code; empty means auto-detect.
	Language string `json:"language,omitempty"`
}

// Response is what an engine returns for one request. Segment times are
// relative to the start of the request audio.
type Response struct {
	Segments            []Segment `json:"segments"`
	Language            string    `json:"language,omitempty"`
	LanguageProbability float64   `json:"language_probability,omitempty"`
}

// Transcript is the final result attached to a job and stored in the cache.
type Transcript struct {
	Segments            []Segment `json:"segments"`
	Text                string    `json:"text"`
	Language            string    `json:"language,omitempty"`
	LanguageProbability float64   `json:"language_probability,omitempty"`
	Duration            float64   `json:"duration"`
	Model               string    `json:"model,omitempty"`
}

// JoinText concatenates segment texts with single spaces.
func JoinText(segments []Segment) string {
	parts := make([]string, 0, len(segments))
	for _, s := range segments {
		if t := strings.TrimSpace(s.Text); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, " ")
}
