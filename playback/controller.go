// Package playback implements the playback controller (§4.14): the
// public facade that owns one opened media's full pipeline — demuxer,
// decoders, resampler, audio/video players, the sync controller, and
// the renderer — and coordinates their worker goroutines.
//
// Grounded on player.go's newPlayer (ordered construction with
// early-return rollback on failure) and controller_stream.go's
// goroutine lifecycle (a stopCh-like cooperative shutdown plus
// sync.WaitGroup), generalized here to golang.org/x/sync/errgroup for
// worker supervision. Seek coalescing is grounded on
// controller_stream.go's single-flight decodedCh/errCh pattern
// (buffered channel, non-blocking send on default) generalized to
// "keep only the latest queued request".
package playback

import (
	"context"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/audio"
	"golang.org/x/sync/errgroup"

	"github.com/Sunshine334419520/zenplay-sub000/audioplayer"
	"github.com/Sunshine334419520/zenplay-sub000/avsync"
	"github.com/Sunshine334419520/zenplay-sub000/config"
	"github.com/Sunshine334419520/zenplay-sub000/decode"
	"github.com/Sunshine334419520/zenplay-sub000/demux"
	"github.com/Sunshine334419520/zenplay-sub000/hwaccel"
	"github.com/Sunshine334419520/zenplay-sub000/media"
	"github.com/Sunshine334419520/zenplay-sub000/queue"
	"github.com/Sunshine334419520/zenplay-sub000/render"
	"github.com/Sunshine334419520/zenplay-sub000/resample"
	"github.com/Sunshine334419520/zenplay-sub000/state"
	"github.com/Sunshine334419520/zenplay-sub000/videoplayer"
	"github.com/Sunshine334419520/zenplay-sub000/zlog"
)

var log = zlog.For("player")

// packetQueueDepth bounds the demux-to-decode packet queues (§4.1).
const packetQueueDepth = 64

// workerPopTimeout is the convention-following short timeout every
// worker loop's blocking pop/push uses so it can periodically
// re-check should_stop (§5 — "≤ 100ms by convention").
const workerPopTimeout = 50 * time.Millisecond

// audioBufferSize is handed to NewEbitenDeviceFactory; kept short so
// a Flush()'s device rebuild doesn't itself introduce much latency.
const audioBufferSize = 50 * time.Millisecond

// Options groups the host-owned resources and configuration a
// Controller needs at open time.
type Options struct {
	// AudioContext is the app-wide *audio.Context (§3's ambient audio
	// stack); required only if the opened media has an audio stream.
	AudioContext *audio.Context
	// WindowHandle is the native window handle the GPU render path's
	// swap-chain binds to (§4.9); ignored on the software path.
	WindowHandle uintptr
	WindowWidth  int
	WindowHeight int
	Config       config.RenderPath
}

type seekRequest struct {
	targetMs int64
	backward bool
}

// Controller is the §4.14 playback controller.
type Controller struct {
	states *state.Machine
	sync   *avsync.Controller

	demuxer      *demux.Demuxer
	videoDecoder *decode.VideoDecoder
	audioDecoder *decode.AudioDecoder
	resampler    *resample.Resampler
	hw           *hwaccel.Context

	proxy      *render.Proxy
	videoImage *ebiten.Image // non-nil only on the software render path

	videoPlayer *videoplayer.Player
	audioPlayer *audioplayer.Player

	videoPacketQueue *queue.Bounded[media.Packet]
	audioPacketQueue *queue.Bounded[media.Packet]

	group  *errgroup.Group
	cancel context.CancelFunc

	seekCh  chan seekRequest
	seeking atomic.Bool
}

// Open implements §4.14's open(url): ordered construction with
// rollback of every prior step on failure.
func Open(url string, opts Options) (*Controller, error) {
	states := state.New()
	if err := states.Request(state.Opening); err != nil {
		return nil, media.WrapError(media.KindState, "playback: enter opening", err)
	}

	var rollback []func()
	fail := func(err error) (*Controller, error) {
		for i := len(rollback) - 1; i >= 0; i-- {
			rollback[i]()
		}
		states.Request(state.Error)
		return nil, err
	}

	dmx, err := demux.Open(url)
	if err != nil {
		states.Request(state.Error)
		return nil, err
	}
	rollback = append(rollback, func() { dmx.Close() })

	videoParams := dmx.StreamCodecParams(media.StreamVideo)

	hw, proxy, videoImage, err := openRenderPath(opts, dmx, videoParams)
	if err != nil {
		return fail(err)
	}
	if hw != nil {
		rollback = append(rollback, func() { hw.Cleanup() })
	}
	rollback = append(rollback, func() { proxy.Cleanup() })

	videoDecoder := decode.Open(videoParams.Index, videoParams.Width, videoParams.Height, hw)
	rollback = append(rollback, func() { videoDecoder.Close() })

	var audioDecoder *decode.AudioDecoder
	var resampler *resample.Resampler
	var audioPlayer *audioplayer.Player
	syncController := avsync.New(time.Now())

	if dmx.HasAudio() {
		audioParams := dmx.StreamCodecParams(media.StreamAudio)
		audioDecoder = decode.OpenAudio(audioParams.Index, audioParams.SampleRate, 2)
		rollback = append(rollback, func() { audioDecoder.Close() })

		target := resample.Format{SampleRate: audioParams.SampleRate, Channels: 2, Sample: media.SampleFormatS16}
		resampler = resample.New(target)

		if opts.AudioContext == nil {
			return fail(media.NewError(media.KindAudioDevice, "playback: media has audio but no audio.Context was provided"))
		}
		audioPlayer = audioplayer.New(syncController, target.SampleRate, target.BytesPerFrame(), target.Sample,
			audioplayer.NewEbitenDeviceFactory(opts.AudioContext, audioBufferSize))
		rollback = append(rollback, func() { audioPlayer.Close() })
	}

	videoPlayer := videoplayer.New(syncController, states, proxy)

	c := &Controller{
		states:           states,
		sync:             syncController,
		demuxer:          dmx,
		videoDecoder:     videoDecoder,
		audioDecoder:     audioDecoder,
		resampler:        resampler,
		hw:               hw,
		proxy:            proxy,
		videoImage:       videoImage,
		videoPlayer:      videoPlayer,
		audioPlayer:      audioPlayer,
		videoPacketQueue: queue.NewBounded[media.Packet](packetQueueDepth),
		seekCh:           make(chan seekRequest, 1),
	}
	if dmx.HasAudio() {
		c.audioPacketQueue = queue.NewBounded[media.Packet](packetQueueDepth)
	}

	if err := states.Request(state.Stopped); err != nil {
		return fail(media.WrapError(media.KindState, "playback: enter stopped", err))
	}
	return c, nil
}

// openRenderPath implements §4.14 step 2: select hardware or software
// per §6's resolution table, constructing the hardware decode context
// and GPU renderer (sharing the device between them) or, on any
// failure with allow_fallback set, falling back to the software
// renderer.
func openRenderPath(opts Options, dmx *demux.Demuxer, videoParams demux.StreamCodecParams) (*hwaccel.Context, *render.Proxy, *ebiten.Image, error) {
	backend := preferredBackend()
	hwDetected := backend != hwaccel.BackendNone && hwaccel.Supported(backend)
	path, allowFallback := opts.Config.Resolve(hwDetected)

	if path == config.PathHardware {
		hw, err := hwaccel.Initialize(backend, 0, videoParams.Width, videoParams.Height)
		if err != nil {
			if !allowFallback {
				return nil, nil, nil, media.WrapError(media.KindHardware, "playback: hardware init failed", err)
			}
			log.Warnf("playback: hardware init failed, falling back to software: %v", err)
		} else {
			gpu := render.NewGPU(hw.GetDevice())
			if err := gpu.Init(opts.WindowHandle, opts.WindowWidth, opts.WindowHeight); err != nil {
				hw.Cleanup()
				if !allowFallback {
					return nil, nil, nil, media.WrapError(media.KindRender, "playback: GPU renderer init failed", err)
				}
				log.Warnf("playback: GPU renderer init failed, falling back to software: %v", err)
			} else {
				return hw, render.NewProxy(gpu), nil, nil
			}
		}
	}

	videoImage := ebiten.NewImage(videoParams.Width, videoParams.Height)
	sw := render.NewSoftware(videoImage)
	if err := sw.Init(0, videoParams.Width, videoParams.Height); err != nil {
		return nil, nil, nil, media.WrapError(media.KindRender, "playback: software renderer init failed", err)
	}
	return nil, render.NewProxy(sw), videoImage, nil
}

// preferredBackend picks the one hardware backend meaningful on the
// host platform; hwaccel.Supported reports false for every other
// backend there (see hwaccel_linux.go/_darwin.go/_windows.go).
func preferredBackend() hwaccel.Backend {
	switch runtime.GOOS {
	case "linux":
		return hwaccel.BackendVAAPI
	case "windows":
		return hwaccel.BackendD3D11VA
	case "darwin":
		return hwaccel.BackendVideoToolbox
	default:
		return hwaccel.BackendNone
	}
}

// Start implements §4.14's start(): choose the sync mode, spawn every
// worker, and unpark the audio device and video render worker.
func (c *Controller) Start() error {
	if err := c.states.Request(state.Playing); err != nil {
		return media.WrapError(media.KindState, "playback: start", err)
	}

	if c.audioPlayer != nil {
		c.sync.SetMode(avsync.AudioMaster)
	} else {
		c.sync.SetMode(avsync.ExternalMaster)
	}

	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	g, gctx := errgroup.WithContext(ctx)
	c.group = g

	g.Go(func() error { c.demuxWorker(gctx); return nil })
	g.Go(func() error { c.videoDecodeWorker(gctx); return nil })
	if c.audioDecoder != nil {
		g.Go(func() error { c.audioDecodeWorker(gctx); return nil })
	}
	g.Go(func() error { c.seekWorker(gctx); return nil })

	c.videoPlayer.Start()
	if c.audioPlayer != nil {
		if err := c.audioPlayer.Start(); err != nil {
			return err
		}
	}
	return nil
}

// demuxWorker implements §4.14's demux worker: read_packet in a loop,
// routing by stream into the matching packet queue with blocking
// push, closing both queues (the sentinel-close consumers see as
// "eof") once the container is exhausted.
func (c *Controller) demuxWorker(_ context.Context) {
	for {
		if c.states.ShouldStop() {
			return
		}
		pkt, err := c.demuxer.ReadPacket()
		if err != nil {
			if media.IsEOF(err) {
				c.videoPacketQueue.Close()
				if c.audioPacketQueue != nil {
					c.audioPacketQueue.Close()
				}
				return
			}
			log.Errorf("demux: %v", err)
			c.enterError()
			return
		}
		switch pkt.Stream {
		case media.StreamVideo:
			c.pushPacket(c.videoPacketQueue, pkt)
		case media.StreamAudio:
			if c.audioPacketQueue != nil {
				c.pushPacket(c.audioPacketQueue, pkt)
			}
		}
	}
}

// pushPacket blocks until pkt is enqueued, should_stop fires, or the
// queue is reset/closed by a concurrent seek/close.
func (c *Controller) pushPacket(q *queue.Bounded[media.Packet], pkt media.Packet) {
	for {
		if c.states.ShouldStop() {
			return
		}
		switch q.Push(pkt, workerPopTimeout) {
		case queue.PushOK, queue.PushClosed, queue.PushReset:
			return
		case queue.PushFull:
			continue
		}
	}
}

// videoDecodeWorker implements §4.14's video decode worker:
// pop packet -> send_packet -> drain receive_frame into the video
// player's bounded frame queue.
func (c *Controller) videoDecodeWorker(_ context.Context) {
	for {
		if c.states.ShouldStop() {
			return
		}
		pkt, status := c.videoPacketQueue.Pop(workerPopTimeout)
		switch status {
		case queue.PopOK:
		case queue.PopClosed:
			return
		default: // PopEmpty or PopReset
			continue
		}

		if err := c.videoDecoder.SendPacket(pkt); err != nil {
			log.Warnf("video decode: send_packet: %v", err)
			continue
		}
		frame, err := c.videoDecoder.ReceiveFrame()
		if err != nil {
			log.Warnf("video decode: receive_frame: %v", err)
			continue
		}
		c.pushVideoFrame(frame)
	}
}

func (c *Controller) pushVideoFrame(frame *media.Frame) {
	for {
		if c.states.ShouldStop() {
			frame.Release()
			return
		}
		switch c.videoPlayer.Push(frame, workerPopTimeout) {
		case queue.PushOK:
			return
		case queue.PushClosed, queue.PushReset:
			frame.Release()
			return
		case queue.PushFull:
			continue
		}
	}
}

// audioDecodeWorker implements §4.14's audio decode worker: pop
// packet -> send_packet -> receive_frame -> resample -> push into the
// audio player's queue.
func (c *Controller) audioDecodeWorker(_ context.Context) {
	for {
		if c.states.ShouldStop() {
			return
		}
		pkt, status := c.audioPacketQueue.Pop(workerPopTimeout)
		switch status {
		case queue.PopOK:
		case queue.PopClosed:
			return
		default:
			continue
		}

		if err := c.audioDecoder.SendPacket(pkt); err != nil {
			log.Warnf("audio decode: send_packet: %v", err)
			continue
		}
		in, err := c.audioDecoder.ReceiveFrame()
		if err != nil {
			log.Warnf("audio decode: receive_frame: %v", err)
			continue
		}
		out, err := c.resampler.Resample(in)
		if err != nil {
			log.Warnf("audio decode: resample: %v", err)
			continue
		}
		for {
			if c.states.ShouldStop() {
				return
			}
			if c.audioPlayer.Push(out, workerPopTimeout) != queue.PushFull {
				break
			}
		}
	}
}

func (c *Controller) enterError() {
	if err := c.states.Request(state.Error); err != nil {
		log.Errorf("playback: enter error state: %v", err)
	}
	c.videoPacketQueue.Reset(func(media.Packet) {})
	if c.audioPacketQueue != nil {
		c.audioPacketQueue.Reset(func(media.Packet) {})
	}
}

// Pause implements §4.14's pause ordering: the audio device is
// stopped first (so no more update_audio_clock calls can race in),
// then the state transition parks the video render worker, then the
// sync controller freezes its clocks.
func (c *Controller) Pause() error {
	if c.audioPlayer != nil {
		c.audioPlayer.Pause()
	}
	if err := c.states.Request(state.Paused); err != nil {
		return media.WrapError(media.KindState, "playback: pause", err)
	}
	c.sync.Pause(time.Now())
	return nil
}

// Resume implements §4.14's reverse resume ordering: the sync
// controller shifts its clocks by the pause interval first, so that
// any clock update an immediately re-started device produces is
// already continuous.
func (c *Controller) Resume() error {
	c.sync.Resume(time.Now())
	if err := c.states.Request(state.Playing); err != nil {
		return media.WrapError(media.KindState, "playback: resume", err)
	}
	if c.audioPlayer != nil {
		c.audioPlayer.Resume()
	}
	return nil
}

// SeekAsync implements §4.14's seek_async(target_ms, backward): the
// request is queued for the dedicated seek worker; if one is already
// queued, it is replaced rather than both being executed (most recent
// target wins), mirroring controller_stream.go's non-blocking
// buffered-channel send.
func (c *Controller) SeekAsync(targetMs int64, backward bool) {
	req := seekRequest{targetMs: targetMs, backward: backward}
	select {
	case c.seekCh <- req:
		return
	default:
	}
	select {
	case <-c.seekCh:
	default:
	}
	select {
	case c.seekCh <- req:
	default:
	}
}

func (c *Controller) seekWorker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case req := <-c.seekCh:
			c.drainLatestSeek(&req)
			c.executeSeek(req)
		}
	}
}

// drainLatestSeek collapses any further requests queued while req was
// being picked up, keeping only the most recent target (§4.14).
func (c *Controller) drainLatestSeek(req *seekRequest) {
	for {
		select {
		case newer := <-c.seekCh:
			*req = newer
		default:
			return
		}
	}
}

// executeSeek implements §4.14's seven-step seek algorithm under a
// re-entry guard.
func (c *Controller) executeSeek(req seekRequest) {
	if !c.seeking.CompareAndSwap(false, true) {
		return
	}
	defer c.seeking.Store(false)

	snapshot := c.states.Get()
	if snapshot != state.Playing && snapshot != state.Paused {
		snapshot = state.Playing
	}

	if err := c.states.Request(state.Seeking); err != nil {
		log.Warnf("seek: cannot enter Seeking from %v: %v", c.states.Get(), err)
		return
	}

	if c.audioPlayer != nil {
		c.audioPlayer.Pause()
	}
	c.videoPacketQueue.Reset(func(media.Packet) {})
	if c.audioPacketQueue != nil {
		c.audioPacketQueue.Reset(func(media.Packet) {})
	}
	if c.audioPlayer != nil {
		if err := c.audioPlayer.Flush(); err != nil {
			log.Warnf("seek: audio flush: %v", err)
		}
	}
	c.videoPlayer.PreSeek()

	c.videoDecoder.Flush()
	if c.audioDecoder != nil {
		c.audioDecoder.Flush()
	}

	if err := c.demuxer.Seek(req.targetMs, req.backward); err != nil {
		log.Errorf("seek: demuxer seek failed: %v", err)
		c.states.Request(state.Error)
		return
	}

	c.sync.ResetForSeek(float64(req.targetMs), time.Now())

	if err := c.videoPlayer.PostSeek(snapshot); err != nil {
		log.Errorf("seek: post-seek state request: %v", err)
		return
	}
	if c.audioPlayer != nil && snapshot == state.Playing {
		c.audioPlayer.Resume()
	}
}

// Close implements §4.14's close(): request Closing, unblock every
// worker via queue reset/close and context cancellation, join them in
// reverse-dependency order, then tear down players, decoders, the
// hardware context, the demuxer, and finally the renderer.
func (c *Controller) Close() error {
	if err := c.states.Request(state.Closing); err != nil {
		return media.WrapError(media.KindState, "playback: close", err)
	}

	c.videoPacketQueue.Reset(func(media.Packet) {})
	c.videoPacketQueue.Close()
	if c.audioPacketQueue != nil {
		c.audioPacketQueue.Reset(func(media.Packet) {})
		c.audioPacketQueue.Close()
	}
	if c.cancel != nil {
		c.cancel()
	}
	if c.group != nil {
		c.group.Wait()
	}
	c.videoPlayer.Stop()

	if c.audioPlayer != nil {
		if err := c.audioPlayer.Close(); err != nil {
			log.Warnf("close: audio player: %v", err)
		}
	}
	c.videoDecoder.Close()
	if c.audioDecoder != nil {
		c.audioDecoder.Close()
	}
	if c.hw != nil {
		c.hw.Cleanup()
	}
	if err := c.demuxer.Close(); err != nil {
		return err
	}
	c.proxy.Cleanup()
	return nil
}

// Pump drains any renderer calls posted from off the UI goroutine
// (§4.9); callers must invoke this from their UI/render thread once
// per frame.
func (c *Controller) Pump() { c.proxy.Pump() }

// VideoImage returns the image the software render path draws into,
// or nil on the hardware (GPU) path, where the renderer owns
// presentation directly against the window handle.
func (c *Controller) VideoImage() *ebiten.Image { return c.videoImage }

// State returns the current player state machine value.
func (c *Controller) State() state.State { return c.states.Get() }

// Position returns the current playback position, derived from the
// sync controller's master clock.
func (c *Controller) Position() time.Duration {
	ms := c.sync.GetMasterClock(time.Now())
	return time.Duration(ms * float64(time.Millisecond))
}

// Duration returns the selected video stream's duration.
func (c *Controller) Duration() time.Duration {
	return time.Duration(c.demuxer.DurationMs()) * time.Millisecond
}

// HasAudio reports whether the opened media has a selected audio
// stream.
func (c *Controller) HasAudio() bool { return c.audioPlayer != nil }

// SetVolume sets playback volume; a no-op if the media has no audio.
func (c *Controller) SetVolume(v float64) {
	if c.audioPlayer != nil {
		c.audioPlayer.SetVolume(v)
	}
}

// Volume returns the current volume, or 0 if the media has no audio.
func (c *Controller) Volume() float64 {
	if c.audioPlayer == nil {
		return 0
	}
	return c.audioPlayer.Volume()
}

// SetMuted mutes or unmutes playback; a no-op if the media has no
// audio.
func (c *Controller) SetMuted(muted bool) {
	if c.audioPlayer != nil {
		c.audioPlayer.SetMuted(muted)
	}
}

// Muted reports whether playback is muted, or true if the media has
// no audio.
func (c *Controller) Muted() bool {
	if c.audioPlayer == nil {
		return true
	}
	return c.audioPlayer.Muted()
}

// Stats exposes the sync controller's observability counters (§6).
func (c *Controller) Stats() avsync.Stats { return c.sync.Stats() }
