// Package render defines the renderer contract (§4.9), a UI-thread
// proxy that serializes access to it, a software backend (§4.10), and
// a GPU backend (§4.11).
//
// Every concrete renderer below must only be driven through [Proxy] —
// never called directly by a worker goroutine — because the
// underlying toolkit surface (an ebiten image, a GL context bound to
// a window) is only valid on the thread that created it, exactly the
// discipline richinsley/goshadertoy/glfwcontext/context.go documents
// for its own GLFW window ("This is the ONLY package in the project
// that should import glfw"): here that single-owner rule is
// generalized from "don't import glfw elsewhere" to "don't call the
// renderer from any goroutine but the UI one", enforced at runtime by
// the proxy instead of by import-time convention alone.
package render

import (
	"bytes"
	"runtime"
	"strconv"

	"github.com/Sunshine334419520/zenplay-sub000/media"
)

// Renderer is the trait §4.9 describes. A frame passed to RenderFrame
// is owned by the caller until RenderFrame returns; implementations
// must not retain it past the call.
type Renderer interface {
	Init(windowHandle uintptr, w, h int) error
	RenderFrame(frame *media.Frame) bool
	Clear()
	Present()
	OnResize(w, h int)
	ClearCaches()
	Cleanup()
	Name() string
}

// Proxy wraps a [Renderer] and the id of the goroutine that created
// its underlying surface. Every method checks whether it is already
// running on that goroutine: if so it calls straight through; if not,
// it posts a synchronous invocation and blocks for the result. This
// is the sole mechanism by which worker goroutines (decode, video
// player) may touch the renderer (§4.9).
//
// A goroutine id is only a meaningful stand-in for "the UI thread" as
// long as the UI goroutine has pinned itself with
// runtime.LockOSThread() and never hands its loop to another
// goroutine — true for both backends below, whose Init is always
// called from the goroutine that owns the ebiten/GLFW event loop.
type Proxy struct {
	renderer Renderer
	uiGID    int64
	work     chan func()
}

// NewProxy binds r to the calling goroutine. The caller must have
// pinned itself with runtime.LockOSThread() beforehand, the same
// precondition glfwcontext.NewContext establishes before any GL call.
func NewProxy(r Renderer) *Proxy {
	return &Proxy{renderer: r, uiGID: goroutineID(), work: make(chan func(), 8)}
}

// Pump drains dispatches posted by other goroutines. The UI goroutine
// must call it regularly from its own loop (e.g. once per tick); it
// processes everything currently queued and returns without blocking.
func (p *Proxy) Pump() {
	for {
		select {
		case fn := <-p.work:
			fn()
		default:
			return
		}
	}
}

// dispatch runs fn on the UI goroutine, blocking until it completes.
// If the caller already is the UI goroutine, fn runs inline — Pump is
// not involved and reentrant calls cannot deadlock.
func (p *Proxy) dispatch(fn func()) {
	if goroutineID() == p.uiGID {
		fn()
		return
	}
	done := make(chan struct{})
	p.work <- func() {
		fn()
		close(done)
	}
	<-done
}

func (p *Proxy) Init(windowHandle uintptr, w, h int) error {
	var err error
	p.dispatch(func() { err = p.renderer.Init(windowHandle, w, h) })
	return err
}

func (p *Proxy) RenderFrame(frame *media.Frame) bool {
	var ok bool
	p.dispatch(func() { ok = p.renderer.RenderFrame(frame) })
	return ok
}

func (p *Proxy) Clear() { p.dispatch(p.renderer.Clear) }

func (p *Proxy) Present() { p.dispatch(p.renderer.Present) }

func (p *Proxy) OnResize(w, h int) { p.dispatch(func() { p.renderer.OnResize(w, h) }) }

// ClearCaches is the seek hook (§4.9): it releases every cached
// shader-resource view so stale texture-address reuse after a pool
// reallocation cannot produce dangling views (§4.11).
func (p *Proxy) ClearCaches() { p.dispatch(p.renderer.ClearCaches) }

func (p *Proxy) Cleanup() { p.dispatch(p.renderer.Cleanup) }

func (p *Proxy) Name() string { return p.renderer.Name() }

// goroutineID extracts the running goroutine's id from its own stack
// trace header ("goroutine 123 [running]: ..."). The runtime exposes
// no public accessor; this is the standard workaround goroutine-local
// bookkeeping code reaches for, and it's only ever compared for
// equality here, never persisted past a single dispatch call.
func goroutineID() int64 {
	buf := make([]byte, 64)
	buf = buf[:runtime.Stack(buf, false)]
	buf = bytes.TrimPrefix(buf, []byte("goroutine "))
	if i := bytes.IndexByte(buf, ' '); i >= 0 {
		buf = buf[:i]
	}
	id, _ := strconv.ParseInt(string(buf), 10, 64)
	return id
}
