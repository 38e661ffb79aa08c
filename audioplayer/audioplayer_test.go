package audioplayer

import (
	"io"
	"testing"
	"time"

	"github.com/Sunshine334419520/zenplay-sub000/avsync"
	"github.com/Sunshine334419520/zenplay-sub000/media"
	"github.com/Sunshine334419520/zenplay-sub000/queue"
)

type fakeDevice struct {
	playCount, pauseCount, closeCount int
}

func (d *fakeDevice) Play()        { d.playCount++ }
func (d *fakeDevice) Pause()       { d.pauseCount++ }
func (d *fakeDevice) Close() error { d.closeCount++; return nil }

func newTestPlayer(t *testing.T) (*Player, *fakeDevice) {
	t.Helper()
	dev := &fakeDevice{}
	p := New(avsync.New(time.Now()), 48000, 4, media.SampleFormatS16, func(io.Reader) (device, error) {
		return dev, nil
	})
	return p, dev
}

func s16Bytes(samples ...int16) []byte {
	out := make([]byte, 0, len(samples)*2)
	for _, s := range samples {
		out = append(out, byte(uint16(s)), byte(uint16(s)>>8))
	}
	return out
}

func TestReadServesQueuedFrame(t *testing.T) {
	p, _ := newTestPlayer(t)
	data := s16Bytes(100, -100, 200, -200)
	if status := p.Push(media.ResampledAudioFrame{Data: data, PTSSeconds: 1.5, SampleRate: 48000, Channels: 2, Format: media.SampleFormatS16}, time.Second); status != queue.PushOK {
		t.Fatalf("push: %v", status)
	}

	buf := make([]byte, len(data))
	n, err := p.Read(buf)
	if err != nil || n != len(data) {
		t.Fatalf("Read: n=%d err=%v", n, err)
	}
	for i := range data {
		if buf[i] != data[i] {
			t.Fatalf("byte %d: want %d got %d", i, data[i], buf[i])
		}
	}
}

func TestReadZeroFillsOnUnderrun(t *testing.T) {
	p, _ := newTestPlayer(t)
	buf := []byte{1, 2, 3, 4}
	n, err := p.Read(buf)
	if err != nil || n != 4 {
		t.Fatalf("Read: n=%d err=%v", n, err)
	}
	for _, b := range buf {
		if b != 0 {
			t.Fatalf("expected silence, got %v", buf)
		}
	}
}

func TestPTSBaseSetOnceThenAdvances(t *testing.T) {
	p, _ := newTestPlayer(t)
	data := s16Bytes(1, 2, 3, 4) // 2 sample-frames at 4 bytes/frame
	p.Push(media.ResampledAudioFrame{Data: data, PTSSeconds: 2.0, SampleRate: 48000, Channels: 2, Format: media.SampleFormatS16}, time.Second)

	buf := make([]byte, 4) // exactly one sample-frame
	if _, err := p.Read(buf); err != nil {
		t.Fatalf("Read: %v", err)
	}
	pts := p.CurrentPTSMs()
	wantMs := (2.0 + 1.0/48000.0) * 1000
	if diff := pts - wantMs; diff > 0.01 || diff < -0.01 {
		t.Fatalf("CurrentPTSMs = %v, want ~%v", pts, wantMs)
	}
}

func TestFlushResetsTrackerAndRebuildsDevice(t *testing.T) {
	p, dev := newTestPlayer(t)
	if err := p.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	p.Push(media.ResampledAudioFrame{Data: s16Bytes(1, 2, 3, 4), PTSSeconds: 5.0, SampleRate: 48000, Channels: 2, Format: media.SampleFormatS16}, time.Second)
	p.Read(make([]byte, 4))

	if err := p.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if dev.closeCount != 1 {
		t.Fatalf("closeCount = %d, want 1", dev.closeCount)
	}
	if p.CurrentPTSMs() != 0 {
		t.Fatalf("expected tracker reset, got %v", p.CurrentPTSMs())
	}
	if p.QueueDepth() != 0 {
		t.Fatalf("expected queue drained, got depth %d", p.QueueDepth())
	}
}

func TestVolumeAppliesGain(t *testing.T) {
	p, _ := newTestPlayer(t)
	p.SetVolume(0.5)
	data := s16Bytes(1000)
	p.Push(media.ResampledAudioFrame{Data: data, SampleRate: 48000, Channels: 1, Format: media.SampleFormatS16}, time.Second)

	buf := make([]byte, 2)
	p.Read(buf)
	got := int16(uint16(buf[0]) | uint16(buf[1])<<8)
	if got != 500 {
		t.Fatalf("got %d, want 500", got)
	}
}

func TestMuteZeroesOutput(t *testing.T) {
	p, _ := newTestPlayer(t)
	p.SetMuted(true)
	data := s16Bytes(1000)
	p.Push(media.ResampledAudioFrame{Data: data, SampleRate: 48000, Channels: 1, Format: media.SampleFormatS16}, time.Second)

	buf := make([]byte, 2)
	p.Read(buf)
	got := int16(uint16(buf[0]) | uint16(buf[1])<<8)
	if got != 0 {
		t.Fatalf("got %d, want 0", got)
	}
}
