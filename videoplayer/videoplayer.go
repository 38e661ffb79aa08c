// Package videoplayer implements the video presentation stage
// (§4.13): a bounded frame queue and a render worker loop that paces
// frames to the shared av-sync clock before handing them to a
// [render.Renderer] (through its [render.Proxy]).
//
// Grounded on the scheduling half of controller_stream.go's
// scheduleLoop: the wall-clock-aligned-to-PTS sleep loop, the
// stopCh-interruptible time.After wait, and the post-present update of
// the logical reference clock — generalized here from "this stream's
// own first-frame-relative clock" to "ask avsync for the delay/drop
// decision every frame" (§4.3), and from a single fixed jitter to the
// configurable drop/repeat thresholds avsync owns.
package videoplayer

import (
	"sync"
	"time"

	"github.com/Sunshine334419520/zenplay-sub000/avsync"
	"github.com/Sunshine334419520/zenplay-sub000/media"
	"github.com/Sunshine334419520/zenplay-sub000/queue"
	"github.com/Sunshine334419520/zenplay-sub000/render"
	"github.com/Sunshine334419520/zenplay-sub000/state"
	"github.com/Sunshine334419520/zenplay-sub000/zlog"
)

var log = zlog.For("videoplayer")

// queueDepth bounds the decoded-frame queue (§4.1).
const queueDepth = 8

// popTimeout is how long the worker loop waits for a frame before
// re-checking should_stop/should_pause, matching the queue package's
// documented short-timeout convention.
const popTimeout = 50 * time.Millisecond

// sleepSlice bounds how long a single wait-until-target sleep can run
// before the worker wakes to re-check for a state change (§4.13 step
// 6: "interruptible by state changes").
const sleepSlice = 10 * time.Millisecond

// Player is the §4.13 video presentation stage.
type Player struct {
	queue    *queue.Bounded[*media.Frame]
	sync     *avsync.Controller
	states   *state.Machine
	renderer render.Renderer

	stopCh chan struct{}
	wg     sync.WaitGroup

	mu           sync.Mutex
	drops        int64
	firstFrameTS *media.Timestamp
}

// New constructs a player. renderer is typically a *render.Proxy so
// RenderFrame/ClearCaches cross safely onto the UI thread.
func New(sync *avsync.Controller, states *state.Machine, renderer render.Renderer) *Player {
	return &Player{
		queue:    queue.NewBounded[*media.Frame](queueDepth),
		sync:     sync,
		states:   states,
		renderer: renderer,
	}
}

// Push enqueues a decoded frame, blocking up to timeout while full
// (§4.1).
func (p *Player) Push(frame *media.Frame, timeout time.Duration) queue.PushStatus {
	return p.queue.Push(frame, timeout)
}

// QueueDepth reports current occupancy (§6 observability).
func (p *Player) QueueDepth() int { return p.queue.Len() }

// Drops returns the number of frames dropped for running behind.
func (p *Player) Drops() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.drops
}

// Start spawns the render worker goroutine (§4.13).
func (p *Player) Start() {
	p.stopCh = make(chan struct{})
	p.wg.Add(1)
	go p.loop()
}

// Stop signals the worker to exit and waits for it.
func (p *Player) Stop() {
	if p.stopCh == nil {
		return
	}
	close(p.stopCh)
	p.wg.Wait()
	p.stopCh = nil
}

// PreSeek implements §4.13's pre_seek hook: the queue is cleared
// (releasing every frame), the renderer's caches are dropped so stale
// texture addresses from before the seek can't be reused, and the
// first-frame-timestamp memo is reset.
func (p *Player) PreSeek() {
	p.queue.Reset(func(f *media.Frame) { f.Release() })
	p.renderer.ClearCaches()
	p.mu.Lock()
	p.firstFrameTS = nil
	p.mu.Unlock()
}

// PostSeek implements §4.13's post_seek hook: request the target
// state (Playing or Paused) on the shared state machine. Pause/Resume
// only ever happen through the state machine; the worker's own wait
// uses WaitForResume.
func (p *Player) PostSeek(target state.State) error {
	if err := p.states.Request(target); err != nil {
		return media.WrapError(media.KindState, "videoplayer: post-seek state request", err)
	}
	return nil
}

func (p *Player) loop() {
	defer p.wg.Done()
	for {
		if p.states.ShouldStop() {
			return
		}
		if p.states.ShouldPause() {
			p.states.WaitForResume()
			continue
		}

		frame, status := p.queue.Pop(popTimeout)
		if status != queue.PopOK {
			continue // empty or reset: nothing to present yet
		}

		ptsMs := frame.Timestamp().Millis()
		now := time.Now()
		delayMs := p.sync.CalculateVideoDelay(ptsMs, now)
		target := now.Add(time.Duration(delayMs * float64(time.Millisecond)))

		if p.sync.ShouldDropVideo(ptsMs, now) {
			frame.Release()
			p.mu.Lock()
			p.drops++
			p.mu.Unlock()
			continue
		}

		if !p.waitUntil(target) {
			frame.Release()
			continue // interrupted by a state change mid-wait
		}

		if !p.renderer.RenderFrame(frame) {
			log.Warnf("videoplayer: render_frame reported failure, counting as dropped")
			p.mu.Lock()
			p.drops++
			p.mu.Unlock()
		}
		frame.Release()
		p.sync.UpdateVideoClock(ptsMs, time.Now())
	}
}

// waitUntil sleeps in small slices until target, re-checking
// should_stop/should_pause between slices so a pause or shutdown can
// interrupt a long wait. Returns false if interrupted.
func (p *Player) waitUntil(target time.Time) bool {
	for {
		remaining := time.Until(target)
		if remaining <= 0 {
			return true
		}
		if p.states.ShouldStop() || p.states.ShouldPause() {
			return false
		}
		wait := remaining
		if wait > sleepSlice {
			wait = sleepSlice
		}
		select {
		case <-p.stopCh:
			return false
		case <-time.After(wait):
		}
	}
}
