package avsync

import (
	"math"
	"testing"
	"time"
)

func approxEqual(t *testing.T, got, want, tol float64, msg string) {
	t.Helper()
	if math.Abs(got-want) > tol {
		t.Fatalf("%s: got %v, want %v (tol %v)", msg, got, want, tol)
	}
}

func TestClockFreezeDuringPause(t *testing.T) {
	t0 := time.Now()
	c := New(t0)
	c.SetMode(ExternalMaster)

	c.Pause(t0.Add(100 * time.Millisecond))
	frozen := c.GetMasterClock(t0.Add(100 * time.Millisecond))

	later := c.GetMasterClock(t0.Add(5 * time.Second))
	approxEqual(t, later, frozen, 0.001, "clock advanced while paused")
}

func TestClockContinuityAcrossPauseResume(t *testing.T) {
	t0 := time.Now()
	c := New(t0)
	c.SetMode(ExternalMaster)

	beforePause := c.GetMasterClock(t0.Add(200 * time.Millisecond))

	c.Pause(t0.Add(200 * time.Millisecond))
	// Wall-clock time passes while paused; master clock must not move.
	c.Resume(t0.Add(3200 * time.Millisecond)) // paused for 3s

	afterResume := c.GetMasterClock(t0.Add(3200 * time.Millisecond))
	approxEqual(t, afterResume, beforePause, 1, "clock not continuous across pause/resume")

	// 500ms after resume, the clock should have advanced by 500ms from
	// the point it was frozen at, not from play_start_time naively.
	later := c.GetMasterClock(t0.Add(3700 * time.Millisecond))
	approxEqual(t, later, beforePause+500, 1, "clock did not resume ticking correctly")
}

func TestPTSNormalizationStableAcrossSeek(t *testing.T) {
	t0 := time.Now()
	c := New(t0)
	c.SetMode(AudioMaster)

	// First audio packet observed carries a large raw PTS (e.g. stream
	// started mid-file); this establishes the normalization base.
	c.UpdateAudioClock(10_000, t0)
	base := c.normalize(streamAudio, 10_000)
	if base != 0 {
		t.Fatalf("first observed pts should normalize to 0, got %v", base)
	}

	// Seek forward; reset_for_seek must not touch the normalization
	// base established above.
	c.ResetForSeek(5000, t0.Add(time.Second))

	// A subsequent packet at raw pts 15_000 (5000ms after the base)
	// should normalize using the SAME base, i.e. to 5000, regardless of
	// the seek.
	got := c.normalize(streamAudio, 15_000)
	approxEqual(t, got, 5000, 0.001, "normalization base disturbed by reset_for_seek")
}

func TestSeekTargetAlignment(t *testing.T) {
	t0 := time.Now()
	c := New(t0)
	c.SetMode(ExternalMaster)

	seekNow := t0.Add(10 * time.Second)
	c.ResetForSeek(42_000, seekNow)

	got := c.GetMasterClock(seekNow)
	approxEqual(t, got, 42_000, 0.5, "master clock not aligned to seek target")

	// And it should keep advancing normally afterwards.
	later := c.GetMasterClock(seekNow.Add(250 * time.Millisecond))
	approxEqual(t, later, 42_250, 1, "master clock did not resume advancing after seek")
}

func TestFrameDropThreshold(t *testing.T) {
	t0 := time.Now()
	c := New(t0)
	c.SetMode(ExternalMaster)

	// Master clock reads ~0 at t0; a video frame stamped far in the
	// past relative to master should be dropped.
	veryLate := -200.0 // raw pts equivalent after normalization base of 0
	c.UpdateVideoClock(0, t0) // establish base at 0
	if !c.ShouldDropVideo(veryLate, t0) {
		t.Fatal("expected frame far behind master clock to be dropped")
	}

	// A frame essentially on time should not be dropped.
	if c.ShouldDropVideo(0, t0) {
		t.Fatal("on-time frame should not be dropped")
	}
}

func TestCalculateVideoDelayClamped(t *testing.T) {
	t0 := time.Now()
	c := New(t0)
	c.SetMode(ExternalMaster)
	c.UpdateVideoClock(0, t0)

	// Master is ~0; a frame way ahead should clamp to +MaxDelayMs.
	delay := c.CalculateVideoDelay(10_000, t0)
	approxEqual(t, delay, DefaultMaxDelayMs, 0.001, "delay not clamped to max delay")

	// A frame way behind should clamp to -MaxSpeedupMs.
	delay = c.CalculateVideoDelay(-10_000, t0)
	approxEqual(t, delay, -DefaultMaxSpeedupMs, 0.001, "delay not clamped to max speedup")
}

func TestPauseResumeIdempotent(t *testing.T) {
	t0 := time.Now()
	c := New(t0)

	c.Pause(t0)
	c.Pause(t0.Add(time.Second)) // second Pause should be a no-op

	c.Resume(t0.Add(2 * time.Second))
	c.Resume(t0.Add(3 * time.Second)) // second Resume should be a no-op

	// No panics, and the clock should read a sane continuous value.
	_ = c.GetMasterClock(t0.Add(3 * time.Second))
}

func TestResetClearsNormalizationBase(t *testing.T) {
	t0 := time.Now()
	c := New(t0)
	c.UpdateAudioClock(50_000, t0)

	c.Reset(t0.Add(time.Second))

	// After a full Reset, a new first observation establishes a fresh
	// base, unlike ResetForSeek.
	c.UpdateAudioClock(1_000, t0.Add(time.Second))
	got := c.normalize(streamAudio, 1_000)
	if got != 0 {
		t.Fatalf("expected fresh normalization base after Reset, got %v", got)
	}
}
