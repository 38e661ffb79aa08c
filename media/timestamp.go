// Package media holds the value types shared across the playback core:
// timestamps, packets, and decoded frames. None of these types own a
// goroutine or a lock; they are passed between the components that do.
package media

import "time"

// NoPTS is the sentinel used by [Timestamp] when a stream has not yet
// produced a value, or when a decoder reports a frame without PTS
// information. [Timestamp.Millis] reports 0 for it, so the sentinel
// does not survive conversion to milliseconds.
const NoPTS int64 = -1 << 63

// Timestamp is a rational presentation (and optionally decode) time,
// expressed in the producing stream's timebase.
//
// Conversion to milliseconds is (PTS * Num / Den) * 1000; callers
// needing wall-clock-comparable durations should use [Timestamp.Millis]
// rather than reimplementing the conversion, since Den is frequently
// large enough that naive intermediate multiplication overflows int64
// for long streams.
type Timestamp struct {
	Num int64 // timebase numerator, seconds per unit = Num/Den
	Den int64
	PTS int64
	DTS int64 // optional; NoPTS when absent
}

// NoTimestamp is the zero-value-safe "no value" sentinel.
var NoTimestamp = Timestamp{Num: 1, Den: 1, PTS: NoPTS, DTS: NoPTS}

// Valid reports whether the timestamp carries a real PTS.
func (t Timestamp) Valid() bool { return t.PTS != NoPTS }

// Millis converts PTS to milliseconds using the stream timebase. It
// returns 0 for an invalid timestamp; callers should check [Valid]
// first if the distinction matters.
func (t Timestamp) Millis() float64 {
	if !t.Valid() || t.Den == 0 {
		return 0
	}
	return float64(t.PTS) * float64(t.Num) / float64(t.Den) * 1000
}

// FromDuration builds a [Timestamp] from a [time.Duration] using a
// nanosecond timebase. reisen resolves presentation offsets to
// [time.Duration] internally, so this is the bridge the demux/decode
// packages use to populate a [Timestamp] from reisen's API without
// reimplementing its internal timebase math.
func FromDuration(d time.Duration) Timestamp {
	return Timestamp{Num: 1, Den: int64(time.Second), PTS: int64(d)}
}

// Duration is the inverse of [FromDuration] for timestamps that were
// built with a nanosecond timebase (Den == time.Second). For
// timestamps with an arbitrary timebase, convert via [Millis] instead.
func (t Timestamp) Duration() time.Duration {
	if !t.Valid() {
		return 0
	}
	if t.Den == int64(time.Second) && t.Num == 1 {
		return time.Duration(t.PTS)
	}
	return time.Duration(t.Millis() * float64(time.Millisecond))
}
