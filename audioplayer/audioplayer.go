// Package audioplayer implements the audio output stage (§4.12): a
// bounded queue of resampled PCM frames, an internal ring buffer that
// lets a single queued frame satisfy several device callbacks (or a
// callback span two frames), a sample-accurate PTS tracker, and
// volume/mute.
//
// Grounded on controller_yes_audio.go's videoWithAudioController: its
// Read method is the device-callback contract this package
// generalizes (leftoverAudio -> ring, noLockCopyLeftoverAudio -> the
// ring-drain branch, internalReadAudioFrame's packet pump -> simply
// popping a [media.ResampledAudioFrame] already produced upstream),
// and noLockCreateAudioPlayer/noLockEnsureAudioHalt/noLockHackyAudioReset
// for how an *ebiten/v2/audio.Player is built, torn down, and rebuilt
// against the same io.Reader to force a clean device restart.
//
// One deliberate departure from the teacher: controller_yes_audio.go
// signals end-of-clip with io.EOF because it plays a single finite
// file. This player is fed continuously by a playback pipeline, so an
// empty queue means "decode is momentarily behind", not "done" — Read
// zero-fills (silence) on underrun instead of returning io.EOF,
// exactly as §4.12 step 4 specifies.
package audioplayer

import (
	"io"
	"math"
	"sync"
	"time"

	"github.com/hajimehoshi/ebiten/v2/audio"

	"github.com/Sunshine334419520/zenplay-sub000/avsync"
	"github.com/Sunshine334419520/zenplay-sub000/media"
	"github.com/Sunshine334419520/zenplay-sub000/queue"
	"github.com/Sunshine334419520/zenplay-sub000/zlog"
)

var log = zlog.For("audioplayer")

// queueDepth bounds the ResampledAudioFrame queue (§4.1).
const queueDepth = 32

// popAttemptTimeout is how long a device callback will wait for a
// frame before giving up and serving silence; short by the same
// convention queue.Bounded documents for worker loops that must stay
// responsive.
const popAttemptTimeout = 5 * time.Millisecond

// clockUpdateInterval throttles sync.UpdateAudioClock calls to
// roughly once per second of audio (§4.12), not once per callback, to
// minimize lock contention on the shared avsync.Controller.
const clockUpdateInterval = time.Second

// device is the subset of *ebiten/v2/audio.Player a Player drives.
// Narrowed to an interface so tests can substitute a fake; volume is
// deliberately not part of this surface (see Player.SetVolume) since
// §4.12 asks for mul-by-scalar gain applied inside the device
// callback itself, not a second, device-level volume control that
// would double-apply.
type device interface {
	Play()
	Pause()
	Close() error
}

// deviceFactory builds a fresh device pulling PCM from r. A Player
// needs more than one over its lifetime: ebiten's audio.Player has no
// "discard already-buffered samples" primitive, so Flush (§4.12,
// seek) closes the current device and builds a new one against the
// same Reader — the same "return a fresh player so stale bytes can't
// linger" trick noLockHackyAudioReset uses for looping, applied here
// to seeking instead.
type deviceFactory func(r io.Reader) (device, error)

// NewEbitenDeviceFactory adapts an *audio.Context (§3's ambient audio
// stack) into a deviceFactory, mirroring
// noLockCreateAudioPlayer's audio.CurrentContext().NewPlayer(...) +
// SetBufferSize call.
func NewEbitenDeviceFactory(ctx *audio.Context, bufferSize time.Duration) deviceFactory {
	return func(r io.Reader) (device, error) {
		p, err := ctx.NewPlayer(r)
		if err != nil {
			return nil, err
		}
		p.SetBufferSize(bufferSize)
		return p, nil
	}
}

// Player is the §4.12 audio output stage. Construct with New and feed
// it via Push; it implements io.Reader so a deviceFactory can hand it
// straight to the underlying audio API as the pull source.
type Player struct {
	mu sync.Mutex

	queue *queue.Bounded[media.ResampledAudioFrame]
	sync  *avsync.Controller

	newDevice deviceFactory
	dev       device

	sampleRate    int
	bytesPerFrame int // per-sample-frame size across all channels
	format        media.SampleFormat

	volume float64
	muted  bool

	ring []byte

	basePTSSeconds         float64
	samplesPlayedSinceBase int64
	haveBase               bool

	lastClockUpdate time.Time
}

// New constructs a player targeting sampleRate/bytesPerFrame/format
// (the resampler's fixed output layout, §4.4) and driven by sync for
// master-clock updates. newDevice is called lazily by Start and again
// by Flush.
func New(sync *avsync.Controller, sampleRate, bytesPerFrame int, format media.SampleFormat, newDevice deviceFactory) *Player {
	return &Player{
		queue:         queue.NewBounded[media.ResampledAudioFrame](queueDepth),
		sync:          sync,
		newDevice:     newDevice,
		sampleRate:    sampleRate,
		bytesPerFrame: bytesPerFrame,
		format:        format,
		volume:        1.0,
	}
}

// Push enqueues a resampled frame, blocking up to timeout while the
// queue is full (§4.1 back pressure).
func (p *Player) Push(frame media.ResampledAudioFrame, timeout time.Duration) queue.PushStatus {
	return p.queue.Push(frame, timeout)
}

// QueueDepth reports the current queue occupancy, for observability
// (§6).
func (p *Player) QueueDepth() int { return p.queue.Len() }

// Start builds the underlying device (if not already built) and
// begins pulling PCM through Read.
func (p *Player) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.dev != nil {
		return nil
	}
	dev, err := p.newDevice(p)
	if err != nil {
		return media.WrapError(media.KindAudioDevice, "audioplayer: create device", err)
	}
	p.dev = dev
	p.dev.Play()
	return nil
}

// Pause requests the device stop producing callbacks. The sync
// controller's own Pause is invoked by the playback controller after
// this returns, once the device has actually stopped (§4.12).
func (p *Player) Pause() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.dev != nil {
		p.dev.Pause()
	}
}

// Resume requests the device resume producing callbacks. Queue
// producers blocked on Push wake naturally as Read drains the queue
// again.
func (p *Player) Resume() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.dev != nil {
		p.dev.Play()
	}
}

// SetVolume sets the linear gain applied during every device callback
// (§4.12 step 3).
func (p *Player) SetVolume(v float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.volume = v
}

func (p *Player) SetMuted(muted bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.muted = muted
}

// Volume returns the currently set linear gain (independent of mute).
func (p *Player) Volume() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.volume
}

// Muted reports whether output is currently muted.
func (p *Player) Muted() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.muted
}

func (p *Player) effectiveVolumeLocked() float64 {
	if p.muted {
		return 0
	}
	return p.volume
}

// CurrentPTSMs implements §4.12's current_pts_ms query.
func (p *Player) CurrentPTSMs() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.currentPTSMsLocked()
}

func (p *Player) currentPTSMsLocked() float64 {
	if !p.haveBase {
		return 0
	}
	return (p.basePTSSeconds + float64(p.samplesPlayedSinceBase)/float64(p.sampleRate)) * 1000
}

// Flush implements §4.12's seek hook: drain the queue, clear the
// ring, zero the PTS tracker, and force the device to discard
// whatever it still has buffered by rebuilding it against the same
// Reader. Without that rebuild, the device's own internal buffer
// (on the order of one second of already-pushed samples) would
// audibly continue playing pre-seek audio at the new position.
func (p *Player) Flush() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.queue.Reset(nil)
	p.ring = p.ring[:0]
	p.basePTSSeconds = 0
	p.samplesPlayedSinceBase = 0
	p.haveBase = false

	if p.dev == nil {
		return nil
	}
	if err := p.dev.Close(); err != nil {
		log.Warnf("audioplayer: close device during flush: %v", err)
	}
	p.dev = nil

	// The rebuilt device is left stopped; Resume starts it once the
	// caller has decided the post-flush state.
	dev, err := p.newDevice(p)
	if err != nil {
		return media.WrapError(media.KindAudioDevice, "audioplayer: recreate device after flush", err)
	}
	p.dev = dev
	return nil
}

// Close releases the queue and the underlying device.
func (p *Player) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.queue.Close()
	if p.dev == nil {
		return nil
	}
	err := p.dev.Close()
	p.dev = nil
	return err
}

// Read implements the device-callback contract (§4.12). It is called
// by the underlying audio API on its own pull thread; buf's length is
// whatever that API asks for on a given tick.
func (p *Player) Read(buf []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	gain := p.effectiveVolumeLocked()
	var served int

	for len(buf) > 0 {
		if len(p.ring) > 0 {
			n := copy(buf, p.ring)
			applyGain(buf[:n], p.format, gain)
			p.ring = p.ring[n:]
			buf = buf[n:]
			served += n
			p.samplesPlayedSinceBase += int64(n) / int64(p.bytesPerFrame)
			continue
		}

		frame, status := p.queue.Pop(popAttemptTimeout)
		switch status {
		case queue.PopOK:
			if !p.haveBase {
				p.basePTSSeconds = frame.PTSSeconds
				p.samplesPlayedSinceBase = 0
				p.haveBase = true
			}
			p.ring = append(p.ring[:0], frame.Data...)
		case queue.PopClosed:
			zeroFill(buf)
			served += len(buf)
			p.maybeUpdateClockLocked()
			return served, io.EOF
		default: // PopEmpty or PopReset: decode is behind or a seek is in flight
			zeroFill(buf)
			served += len(buf)
			p.maybeUpdateClockLocked()
			return served, nil
		}
	}

	p.maybeUpdateClockLocked()
	return served, nil
}

func (p *Player) maybeUpdateClockLocked() {
	now := time.Now()
	if !p.lastClockUpdate.IsZero() && now.Sub(p.lastClockUpdate) < clockUpdateInterval {
		return
	}
	p.lastClockUpdate = now
	p.sync.UpdateAudioClock(p.currentPTSMsLocked(), now)
}

func zeroFill(buf []byte) {
	for i := range buf {
		buf[i] = 0
	}
}

// applyGain multiplies every sample in buf by gain in place (§4.12
// step 3). A gain of exactly 1 is a no-op fast path.
func applyGain(buf []byte, format media.SampleFormat, gain float64) {
	if gain == 1 {
		return
	}
	switch format {
	case media.SampleFormatS16:
		for i := 0; i+1 < len(buf); i += 2 {
			v := int16(uint16(buf[i]) | uint16(buf[i+1])<<8)
			s := clampS16(float64(v) * gain)
			buf[i] = byte(uint16(s))
			buf[i+1] = byte(uint16(s) >> 8)
		}
	case media.SampleFormatF32:
		for i := 0; i+3 < len(buf); i += 4 {
			bits := uint32(buf[i]) | uint32(buf[i+1])<<8 | uint32(buf[i+2])<<16 | uint32(buf[i+3])<<24
			f := math.Float32frombits(bits)
			f = float32(float64(f) * gain)
			bits = math.Float32bits(f)
			buf[i] = byte(bits)
			buf[i+1] = byte(bits >> 8)
			buf[i+2] = byte(bits >> 16)
			buf[i+3] = byte(bits >> 24)
		}
	}
}

func clampS16(v float64) int16 {
	if v > 32767 {
		return 32767
	}
	if v < -32768 {
		return -32768
	}
	return int16(v)
}
