package transcription

import (
	"fmt"
	"math"
)

// Validate checks the ordering invariants of a segment sequence: times are
// finite and non-negative, start <= end, starts never decrease and no
// segment begins before the previous one ends.
func Validate(segments []Segment) error {
	prevEnd := 0.0
	for i, s := range segments {
		if math.IsNaN(s.Start) || math.IsNaN(s.End) || math.IsInf(s.Start, 0) || math.IsInf(s.End, 0) {
			return fmt.Errorf("segment %d: non-finite time", i)
		}
		if s.Start < 0 || s.End < 0 {
			return fmt.Errorf("segment %d: negative time", i)
		}
		if s.Start > s.End {
			return fmt.Errorf("segment %d: start %.3f after end %.3f", i, s.Start, s.End)
		}
		if i > 0 && s.Start < prevEnd {
			return fmt.Errorf("segment %d: starts at %.3f before previous end %.3f", i, s.Start, prevEnd)
		}
		prevEnd = s.End
	}
	return nil
}
