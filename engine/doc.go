// Package engine adapts a transcription.Engine to canonical audio: it cuts
// long audio into windows the engine accepts, runs them in order and stitches
// the per-window segments into one ordered, non-overlapping transcript.
package engine
