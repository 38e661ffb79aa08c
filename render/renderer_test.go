package render

import (
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/Sunshine334419520/zenplay-sub000/media"
)

type fakeRenderer struct {
	mu        sync.Mutex
	gid       int64
	inits     int
	frames    int
	cleared   int
	presented int
	resizes   int
	cacheHits int
}

func (f *fakeRenderer) Init(_ uintptr, _, _ int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gid = goroutineID()
	f.inits++
	return nil
}
func (f *fakeRenderer) RenderFrame(*media.Frame) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.frames++
	return f.gid == goroutineID()
}
func (f *fakeRenderer) Clear()              { f.mu.Lock(); f.cleared++; f.mu.Unlock() }
func (f *fakeRenderer) Present()            { f.mu.Lock(); f.presented++; f.mu.Unlock() }
func (f *fakeRenderer) OnResize(int, int)   { f.mu.Lock(); f.resizes++; f.mu.Unlock() }
func (f *fakeRenderer) ClearCaches()        { f.mu.Lock(); f.cacheHits++; f.mu.Unlock() }
func (f *fakeRenderer) Cleanup()            {}
func (f *fakeRenderer) Name() string        { return "fake" }

// TestProxyInlineOnUIThread checks that a call made from the same
// goroutine that constructed the proxy runs without going through the
// dispatch channel (no Pump call needed).
func TestProxyInlineOnUIThread(t *testing.T) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	r := &fakeRenderer{}
	p := NewProxy(r)
	if err := p.Init(0, 640, 480); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if ok := p.RenderFrame(&media.Frame{CPU: &media.CPUFrame{}}); !ok {
		t.Fatal("expected RenderFrame to report it ran on the UI goroutine")
	}
}

// TestProxyDispatchesFromOtherGoroutine checks that a call posted
// from a different goroutine still executes on the UI goroutine (the
// one that constructed the proxy), and that it blocks until Pump,
// called from that UI goroutine, drains it.
func TestProxyDispatchesFromOtherGoroutine(t *testing.T) {
	r := &fakeRenderer{}
	p := NewProxy(r)
	p.Init(0, 640, 480)

	done := make(chan bool, 1)
	go func() {
		done <- p.RenderFrame(&media.Frame{CPU: &media.CPUFrame{}})
	}()

	// Give the worker goroutine a chance to enqueue before pumping.
	time.Sleep(10 * time.Millisecond)
	p.Pump()

	select {
	case ok := <-done:
		if !ok {
			t.Fatal("RenderFrame should have executed on the UI goroutine via Pump")
		}
	case <-time.After(time.Second):
		t.Fatal("RenderFrame never completed; Pump did not drain the dispatch")
	}
	if r.frames != 1 {
		t.Fatalf("frames = %d, want 1", r.frames)
	}
}

func TestProxyForwardsAllMethods(t *testing.T) {
	r := &fakeRenderer{}
	p := NewProxy(r)
	p.Init(0, 1, 1)
	p.Clear()
	p.Present()
	p.OnResize(2, 2)
	p.ClearCaches()
	if r.inits != 1 || r.cleared != 1 || r.presented != 1 || r.resizes != 1 || r.cacheHits != 1 {
		t.Fatalf("unexpected counters: %+v", r)
	}
	if p.Name() != "fake" {
		t.Fatalf("Name() = %q", p.Name())
	}
}
