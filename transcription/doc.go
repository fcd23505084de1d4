// Package transcription defines the transcript model, the Engine capability
// that turns a WAV file into timed segments, and renderers for the
// transcript output formats.
//
// # Backends
//
//   - transcription/whisper: faster-whisper HTTP sidecar
//   - transcription/whispercpp: whisper.cpp command line
package transcription
