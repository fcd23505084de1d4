package engine

import (
	"time"

	"github.com/kbukum/mediascribe/media"
)

// Window is a byte range of canonical audio.
type Window struct {
	Index  int
	Offset int64 // bytes
	Length int64 // bytes
	// Keep bounds, in seconds of absolute time, the segment starts this
	// window is responsible for.
	KeepFrom, KeepUntil float64
}

// Start returns the absolute start time in seconds.
func (w Window) Start(f media.Format) float64 { return f.DurationOf(w.Offset).Seconds() }

// Plan splits total bytes of audio into windows of at most size, each
// overlapping the previous by overlap. A zero size yields one window.
// Ownership of the overlap is split at its midpoint.
func Plan(f media.Format, total int64, size, overlap time.Duration) []Window {
	winBytes := f.BytesFor(size)
	if size <= 0 || winBytes <= 0 || total <= winBytes {
		return []Window{{Index: 0, Offset: 0, Length: total, KeepFrom: 0, KeepUntil: inf}}
	}
	overlapBytes := f.BytesFor(overlap)
	step := winBytes - overlapBytes
	half := overlap.Seconds() / 2
	if step <= 0 {
		step, half = winBytes, 0
	}

	var windows []Window
	for off := int64(0); ; off += step {
		length := min(winBytes, total-off)
		w := Window{Index: len(windows), Offset: off, Length: length, KeepFrom: 0, KeepUntil: inf}
		if off > 0 {
			w.KeepFrom = f.DurationOf(off).Seconds() + half
		}
		last := off+length >= total
		if !last {
			w.KeepUntil = f.DurationOf(off+step).Seconds() + half
		}
		windows = append(windows, w)
		if last {
			return windows
		}
	}
}
