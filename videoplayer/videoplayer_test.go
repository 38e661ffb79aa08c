package videoplayer

import (
	"sync"
	"testing"
	"time"

	"github.com/Sunshine334419520/zenplay-sub000/avsync"
	"github.com/Sunshine334419520/zenplay-sub000/media"
	"github.com/Sunshine334419520/zenplay-sub000/queue"
	"github.com/Sunshine334419520/zenplay-sub000/state"
)

type fakeRenderer struct {
	mu         sync.Mutex
	frames     int
	cacheClears int
	lastFrame  *media.Frame
}

func (f *fakeRenderer) Init(uintptr, int, int) error { return nil }
func (f *fakeRenderer) RenderFrame(frame *media.Frame) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.frames++
	f.lastFrame = frame
	return true
}
func (f *fakeRenderer) Clear()            {}
func (f *fakeRenderer) Present()          {}
func (f *fakeRenderer) OnResize(int, int) {}
func (f *fakeRenderer) ClearCaches() {
	f.mu.Lock()
	f.cacheClears++
	f.mu.Unlock()
}
func (f *fakeRenderer) Cleanup()   {}
func (f *fakeRenderer) Name() string { return "fake" }

func (f *fakeRenderer) frameCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.frames
}

func cpuFrame(ptsMs float64) *media.Frame {
	return &media.Frame{CPU: &media.CPUFrame{
		Timestamp: media.Timestamp{Num: 1, Den: 1000, PTS: int64(ptsMs)},
	}}
}

func newTestPlayer() (*Player, *fakeRenderer, *state.Machine) {
	r := &fakeRenderer{}
	sm := state.New()
	sc := avsync.New(time.Now())
	sc.SetMode(avsync.ExternalMaster)
	p := New(sc, sm, r)
	return p, r, sm
}

func TestPlayerPresentsDueFrame(t *testing.T) {
	p, r, sm := newTestPlayer()
	sm.Request(state.Opening)
	sm.Request(state.Stopped)
	sm.Request(state.Playing)

	p.Start()
	defer p.Stop()

	if status := p.Push(cpuFrame(0), time.Second); status != queue.PushOK {
		t.Fatalf("push: %v", status)
	}

	deadline := time.Now().Add(time.Second)
	for r.frameCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if r.frameCount() != 1 {
		t.Fatalf("frames presented = %d, want 1", r.frameCount())
	}
}

func TestPlayerStopsOnClosing(t *testing.T) {
	p, _, sm := newTestPlayer()
	sm.Request(state.Opening)
	sm.Request(state.Stopped)
	sm.Request(state.Playing)

	p.Start()
	sm.Request(state.Closing)

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not exit after Closing")
	}
}

func TestPreSeekClearsQueueAndCaches(t *testing.T) {
	p, r, sm := newTestPlayer()
	sm.Request(state.Opening)
	sm.Request(state.Stopped)
	sm.Request(state.Paused)

	p.Push(cpuFrame(100), time.Second)
	p.Push(cpuFrame(200), time.Second)

	p.PreSeek()

	if p.QueueDepth() != 0 {
		t.Fatalf("queue depth after PreSeek = %d, want 0", p.QueueDepth())
	}
	if r.cacheClears != 1 {
		t.Fatalf("cacheClears = %d, want 1", r.cacheClears)
	}
}

func TestPostSeekRequestsTargetState(t *testing.T) {
	p, _, sm := newTestPlayer()
	sm.Request(state.Opening)
	sm.Request(state.Stopped)
	sm.Request(state.Seeking)

	if err := p.PostSeek(state.Playing); err != nil {
		t.Fatalf("PostSeek: %v", err)
	}
	if sm.Get() != state.Playing {
		t.Fatalf("state = %v, want Playing", sm.Get())
	}
}

func TestPlayerDropsLateFrame(t *testing.T) {
	p, r, sm := newTestPlayer()
	sm.Request(state.Opening)
	sm.Request(state.Stopped)
	sm.Request(state.Playing)

	p.Start()
	defer p.Stop()

	// The first frame establishes the video clock's normalization
	// base (there is no base to compare against before any frame has
	// been presented), so it always renders. A second frame stamped
	// far behind that base should then be dropped rather than
	// presented.
	if status := p.Push(cpuFrame(0), time.Second); status != queue.PushOK {
		t.Fatalf("push first frame: %v", status)
	}
	deadline := time.Now().Add(time.Second)
	for r.frameCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if r.frameCount() != 1 {
		t.Fatalf("first frame not presented, frames = %d", r.frameCount())
	}

	if status := p.Push(cpuFrame(-100000), time.Second); status != queue.PushOK {
		t.Fatalf("push late frame: %v", status)
	}
	deadline = time.Now().Add(time.Second)
	for p.Drops() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if p.Drops() != 1 {
		t.Fatalf("drops = %d, want 1", p.Drops())
	}
	if r.frameCount() != 1 {
		t.Fatalf("frames presented = %d, want still 1 (late frame dropped)", r.frameCount())
	}
}
