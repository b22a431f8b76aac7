// Package dedup implements burst prevention and old-repeat prevention.
//
// State is owned by the pipeline's dispatch goroutine and is not safe for
// concurrent use.
package dedup

import "time"

// FutureTolerance bounds how far ahead of the wall clock a source timestamp
// may be and still be recorded for repeat prevention.
const FutureTolerance = 30 * time.Second

type Reason int

const (
	Accepted Reason = iota
	OldRepeat
	Burst
)

func (r Reason) String() string {
	switch r {
	case OldRepeat:
		return "old_repeat"
	case Burst:
		return "burst"
	default:
		return "accepted"
	}
}

// Input is one candidate event.
type Input struct {
	Source  string
	When    int64 // source-reported timestamp, ms since epoch
	NowNano int64 // monotonic-ish acceptance clock
	WallMS  int64 // wall clock, ms since epoch
	// Exempt skips old-repeat prevention (fitness trackers re-post the same when).
	Exempt bool
}

type State struct {
	timeout time.Duration

	burstPrevention     map[string]int64
	oldRepeatPrevention map[string]int64
}

func New(timeout time.Duration) *State {
	s := &State{}
	s.Reset()
	s.SetTimeout(timeout)
	return s
}

func (s *State) SetTimeout(timeout time.Duration) {
	if timeout < 0 {
		timeout = 0
	}
	s.timeout = timeout
}

func (s *State) Timeout() time.Duration { return s.timeout }

// Check evaluates both stages. Both must pass; state is only updated when they do.
func (s *State) Check(in Input) Reason {
	if !in.Exempt {
		if last, ok := s.oldRepeatPrevention[in.Source]; ok && last != 0 && in.When != 0 && in.When <= last {
			return OldRepeat
		}
	}
	if prev, ok := s.burstPrevention[in.Source]; ok && in.NowNano-prev < s.timeout.Nanoseconds() {
		return Burst
	}

	s.burstPrevention[in.Source] = in.NowNano
	if in.When != 0 && in.When <= in.WallMS+FutureTolerance.Milliseconds() {
		s.oldRepeatPrevention[in.Source] = in.When
	}
	return Accepted
}

// LastWhen returns the recorded repeat-prevention timestamp for source.
func (s *State) LastWhen(source string) (int64, bool) {
	v, ok := s.oldRepeatPrevention[source]
	return v, ok
}

// Prune drops burst entries that can no longer suppress anything.
func (s *State) Prune(nowNano int64) int {
	n := 0
	for src, prev := range s.burstPrevention {
		if nowNano-prev >= s.timeout.Nanoseconds() {
			delete(s.burstPrevention, src)
			n++
		}
	}
	return n
}

func (s *State) Len() (burst, repeat int) {
	return len(s.burstPrevention), len(s.oldRepeatPrevention)
}

func (s *State) Reset() {
	s.burstPrevention = map[string]int64{}
	s.oldRepeatPrevention = map[string]int64{}
}
