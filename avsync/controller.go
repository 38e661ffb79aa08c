// Package avsync implements the AV sync controller (§4.3): clock
// normalization per stream, drift-corrected extrapolation, pause
// freeze/resume shift, seek reset, and the video delay/drop/repeat
// decisions the video player consults every frame.
//
// The teacher (erparts/go-avebi) has no standalone sync controller:
// controller_yes_audio.go's noLockPosition treats the audio player's
// own position as the master clock directly, a degenerate single-mode
// version of what this package generalizes to three selectable modes.
package avsync

import (
	"math"
	"sync"
	"time"
)

// Mode selects which clock drives presentation scheduling.
type Mode int

const (
	// AudioMaster is selected whenever an audio stream was opened
	// (§4.3) — video is scheduled to match the audio clock.
	AudioMaster Mode = iota
	// VideoMaster is exposed for completeness but never selected
	// automatically; the source's audio-resample-to-video-clock path
	// was never fully implemented either (§9) and this rewrite keeps
	// that limitation rather than silently completing it.
	VideoMaster
	// ExternalMaster drives from wall-clock/play_start_time alone —
	// used when there is no audio stream.
	ExternalMaster
)

// stream identifies which per-stream clock/normalization state a call
// addresses.
type stream int

const (
	streamAudio stream = iota
	streamVideo
	streamCount
)

// Defaults for the frame-policy thresholds (§4.3).
const (
	DefaultMaxSpeedupMs = 80.0
	DefaultMaxDelayMs   = 100.0
	DefaultDropMs       = -80.0
	DefaultRepeatMs     = 20.0
)

// Stats mirrors §6's sync.stats() surface.
type Stats struct {
	AvgSyncErrorMs     float64
	Corrections        int64
	Drops              int64
	AccumulatedPauseMs float64
}

const syncErrorWindow = 64

// Controller is a thread-safe AV sync controller. The zero value is
// not usable; construct with [New].
type Controller struct {
	// clockMu guards the per-stream clocks and is never held across
	// any other lock or across a blocking call (§5 locking discipline).
	clockMu sync.Mutex
	clocks  [streamCount]clockInfo
	hasBase [streamCount]bool
	baseMS  [streamCount]float64

	// pauseMu is separate from clockMu to avoid contending with the
	// high-frequency read path (§5); correctness relies on §4.14's
	// component ordering, not on lock nesting.
	pauseMu            sync.Mutex
	isPaused           bool
	pauseStartTime     time.Time
	playStartTime      time.Time
	accumulatedPauseMs float64 // exposed stat only, never a correctness input (§9)

	modeMu sync.Mutex
	mode   Mode

	statsMu     sync.Mutex
	errWindow   [syncErrorWindow]float64
	errWindowN  int
	errWindowAt int
	corrections int64
	drops       int64

	maxSpeedupMs float64
	maxDelayMs   float64
	dropMs       float64
	repeatMs     float64
}

// New creates a controller in [ExternalMaster] mode with a play start
// time of now.
func New(now time.Time) *Controller {
	c := &Controller{
		mode:          ExternalMaster,
		playStartTime: now,
		maxSpeedupMs:  DefaultMaxSpeedupMs,
		maxDelayMs:    DefaultMaxDelayMs,
		dropMs:        DefaultDropMs,
		repeatMs:      DefaultRepeatMs,
	}
	for i := range c.clocks {
		c.clocks[i] = clockInfo{systemTime: now}
	}
	return c
}

// SetMode selects the master-clock mode. Called once by the playback
// controller at Start (§4.3's automatic selection never chooses
// VideoMaster).
func (c *Controller) SetMode(mode Mode) {
	c.modeMu.Lock()
	c.mode = mode
	c.modeMu.Unlock()
}

func (c *Controller) getMode() Mode {
	c.modeMu.Lock()
	defer c.modeMu.Unlock()
	return c.mode
}

// UpdateAudioClock normalizes and records a new audio PTS observation.
func (c *Controller) UpdateAudioClock(rawPTSMs float64, now time.Time) {
	c.update(streamAudio, rawPTSMs, now)
}

// UpdateVideoClock normalizes and records a new video PTS observation.
func (c *Controller) UpdateVideoClock(rawPTSMs float64, now time.Time) {
	c.update(streamVideo, rawPTSMs, now)
}

// update implements PTS normalization and drift correction (§4.3) for
// one stream.
func (c *Controller) update(s stream, rawPTSMs float64, now time.Time) {
	c.clockMu.Lock()
	if !c.hasBase[s] {
		c.baseMS[s] = rawPTSMs
		c.hasBase[s] = true
	}
	normalized := rawPTSMs - c.baseMS[s]

	expected := c.clocks[s].current(now)
	drift := 0.1 * (normalized - expected)

	c.clocks[s] = clockInfo{
		ptsMS:      normalized,
		systemTime: now,
		drift:      drift,
	}
	c.clockMu.Unlock()

	c.recordSyncError(normalized - expected)
}

func (c *Controller) normalize(s stream, rawPTSMs float64) float64 {
	c.clockMu.Lock()
	defer c.clockMu.Unlock()
	if !c.hasBase[s] {
		return 0
	}
	return rawPTSMs - c.baseMS[s]
}

// GetMasterClock returns the current master-clock value in
// milliseconds, per the selected [Mode]. When paused, the frozen pause
// time is substituted for now (§3, §4.3).
func (c *Controller) GetMasterClock(now time.Time) float64 {
	c.pauseMu.Lock()
	paused := c.isPaused
	pauseStart := c.pauseStartTime
	playStart := c.playStartTime
	c.pauseMu.Unlock()

	effectiveNow := now
	if paused {
		effectiveNow = pauseStart
	}

	switch c.getMode() {
	case AudioMaster:
		c.clockMu.Lock()
		v := c.clocks[streamAudio].current(effectiveNow)
		c.clockMu.Unlock()
		return v
	case VideoMaster:
		c.clockMu.Lock()
		v := c.clocks[streamVideo].current(effectiveNow)
		c.clockMu.Unlock()
		return v
	default: // ExternalMaster
		return effectiveNow.Sub(playStart).Seconds() * 1000
	}
}

// CalculateVideoDelay returns how long, in milliseconds, the caller
// should sleep before presenting a video frame with the given raw PTS.
// Positive means "sleep before presenting". The result is clamped to
// [-maxSpeedupMs, +maxDelayMs], so it never signals a drop by itself;
// [Controller.ShouldDropVideo] compares the unclamped lag instead.
func (c *Controller) CalculateVideoDelay(videoRawPTSMs float64, now time.Time) float64 {
	v := c.normalize(streamVideo, videoRawPTSMs)
	m := c.GetMasterClock(now)
	delay := v - m
	if delay < -c.maxSpeedupMs {
		delay = -c.maxSpeedupMs
	}
	if delay > c.maxDelayMs {
		delay = c.maxDelayMs
	}
	return delay
}

// rawVideoDelay computes v - m without the sleep-duration clamp
// CalculateVideoDelay applies. The clamp bounds how long a caller
// should ever sleep or skip ahead; the drop/repeat decisions need the
// true lag, since by default -DefaultMaxSpeedupMs and DefaultDropMs
// coincide (both -80) and a clamped value could never compare strictly
// below it.
func (c *Controller) rawVideoDelay(videoRawPTSMs float64, now time.Time) float64 {
	v := c.normalize(streamVideo, videoRawPTSMs)
	m := c.GetMasterClock(now)
	return v - m
}

// ShouldDropVideo reports whether a video frame with the given raw PTS
// has fallen far enough behind the master clock that it should be
// dropped rather than presented (§8 frame-drop threshold).
func (c *Controller) ShouldDropVideo(videoRawPTSMs float64, now time.Time) bool {
	drop := c.rawVideoDelay(videoRawPTSMs, now) < c.dropMs
	if drop {
		c.statsMu.Lock()
		c.drops++
		c.statsMu.Unlock()
	}
	return drop
}

// ShouldRepeatVideo reports whether the caller should sleep and
// re-present the previously rendered frame rather than advance,
// because the next frame is due more than repeatMs (default 20 ms)
// ahead of the master clock (§4.3, §9 — never enqueues a true
// duplicate).
func (c *Controller) ShouldRepeatVideo(videoRawPTSMs float64, now time.Time) bool {
	return c.rawVideoDelay(videoRawPTSMs, now) > c.repeatMs
}

// Pause freezes the clocks: subsequent GetMasterClock calls return the
// same value until Resume (§4.3, §8 clock-freeze property).
func (c *Controller) Pause(now time.Time) {
	c.pauseMu.Lock()
	defer c.pauseMu.Unlock()
	if c.isPaused {
		return // idempotent (§8)
	}
	c.isPaused = true
	c.pauseStartTime = now
}

// Resume shifts every clock's system_time and play_start_time forward
// by the pause interval, so current(now) is continuous across the
// pause (§4.3, §8 clock-continuity property).
func (c *Controller) Resume(now time.Time) {
	c.pauseMu.Lock()
	if !c.isPaused {
		c.pauseMu.Unlock()
		return // idempotent (§8)
	}
	delta := now.Sub(c.pauseStartTime)
	c.isPaused = false
	c.playStartTime = c.playStartTime.Add(delta)
	c.accumulatedPauseMs += delta.Seconds() * 1000
	c.pauseMu.Unlock()

	c.clockMu.Lock()
	for i := range c.clocks {
		c.clocks[i].systemTime = c.clocks[i].systemTime.Add(delta)
	}
	c.clockMu.Unlock()
}

// ResetForSeek re-anchors every clock to target so that, in
// ExternalMaster mode, GetMasterClock(now) returns target immediately
// (§4.3). Stream PTS-normalization bases are intentionally left
// untouched — seeking does not change a stream's time origin.
func (c *Controller) ResetForSeek(targetMs float64, now time.Time) {
	c.clockMu.Lock()
	for i := range c.clocks {
		c.clocks[i] = clockInfo{ptsMS: targetMs, systemTime: now}
	}
	c.clockMu.Unlock()

	c.pauseMu.Lock()
	// play_start_time := now - target_ms; never the epoch (§4.3 bug
	// guard) — now is always a real wall-clock value here.
	c.playStartTime = now.Add(-time.Duration(targetMs * float64(time.Millisecond)))
	c.pauseMu.Unlock()

	c.statsMu.Lock()
	c.errWindowN = 0
	c.errWindowAt = 0
	c.statsMu.Unlock()
}

// Reset fully reinitializes the controller, including the
// PTS-normalization bases, as if newly constructed.
func (c *Controller) Reset(now time.Time) {
	c.clockMu.Lock()
	for i := range c.clocks {
		c.clocks[i] = clockInfo{systemTime: now}
		c.hasBase[i] = false
		c.baseMS[i] = 0
	}
	c.clockMu.Unlock()

	c.pauseMu.Lock()
	c.isPaused = false
	c.playStartTime = now
	c.accumulatedPauseMs = 0
	c.pauseMu.Unlock()

	c.statsMu.Lock()
	c.errWindowN = 0
	c.errWindowAt = 0
	c.corrections = 0
	c.drops = 0
	c.statsMu.Unlock()
}

func (c *Controller) recordSyncError(errMs float64) {
	c.statsMu.Lock()
	defer c.statsMu.Unlock()
	c.errWindow[c.errWindowAt] = errMs
	c.errWindowAt = (c.errWindowAt + 1) % syncErrorWindow
	if c.errWindowN < syncErrorWindow {
		c.errWindowN++
	}
	if math.Abs(errMs) > 1 {
		c.corrections++
	}
}

// Stats returns the rolling sync-error average plus correction/drop
// counters (§6), plus the total time spent paused.
func (c *Controller) Stats() Stats {
	c.pauseMu.Lock()
	pausedMs := c.accumulatedPauseMs
	c.pauseMu.Unlock()

	c.statsMu.Lock()
	defer c.statsMu.Unlock()
	var sum float64
	for i := 0; i < c.errWindowN; i++ {
		sum += math.Abs(c.errWindow[i])
	}
	avg := 0.0
	if c.errWindowN > 0 {
		avg = sum / float64(c.errWindowN)
	}
	return Stats{AvgSyncErrorMs: avg, Corrections: c.corrections, Drops: c.drops, AccumulatedPauseMs: pausedMs}
}
