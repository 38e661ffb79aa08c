// Command zenplayer is a minimal ebiten host for playback.Controller:
// open a file, draw its current frame every tick, and wire a handful
// of keys to play/pause/stop/seek. Grounded on
// examples/mediaplayer/main.go's MediaPlayer game loop, adapted from
// driving the old flat avebi.Player to driving playback.Controller.
package main

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/audio"
	"github.com/hajimehoshi/ebiten/v2/ebitenutil"
	"github.com/hajimehoshi/ebiten/v2/inpututil"

	"github.com/Sunshine334419520/zenplay-sub000/config"
	"github.com/Sunshine334419520/zenplay-sub000/demux"
	"github.com/Sunshine334419520/zenplay-sub000/media"
	"github.com/Sunshine334419520/zenplay-sub000/playback"
	"github.com/Sunshine334419520/zenplay-sub000/state"
)

func main() {
	if len(os.Args) != 2 {
		fmt.Printf("Usage: zenplayer path/to/video.mp4\n")
		os.Exit(1)
	}

	path, err := filepath.Abs(os.Args[1])
	if err != nil {
		panic(err)
	}
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			fmt.Printf("'%s' not found.\n", path)
			os.Exit(1)
		}
		panic(err)
	}

	audioCtx, err := audioContextForMedia(path)
	if err != nil {
		panic(err)
	}

	// The software render path hands back a plain *ebiten.Image this
	// game loop can Draw every tick without owning a native window
	// handle itself; the hardware/GPU path is exercised by an embedder
	// that presents directly against its own swap chain instead.
	controller, err := playback.Open(path, playback.Options{
		AudioContext: audioCtx,
		Config:       config.RenderPath{RenderMode: config.ModeSoftware},
	})
	if err != nil {
		panic(err)
	}
	if err := controller.Start(); err != nil {
		panic(err)
	}

	ebiten.SetWindowTitle("zenplayer")
	ebiten.SetWindowResizingMode(ebiten.WindowResizingModeEnabled)
	ebiten.SetWindowSize(1280, 720)

	game := &game{
		videoPath:  path,
		controller: controller,
		duration:   controller.Duration(),
	}
	if err := ebiten.RunGame(game); err != nil {
		panic(err)
	}
}

// audioContextForMedia probes the container's audio sample rate (if
// any) before the real open, the same two-pass shape
// CreateAudioContextForMedia/GetMediaAudioSampleRate used: the audio
// device must be sized correctly before anything starts producing
// samples into it.
func audioContextForMedia(path string) (*audio.Context, error) {
	dmx, err := demux.Open(path)
	if err != nil {
		return nil, err
	}
	defer dmx.Close()

	if !dmx.HasAudio() {
		return nil, nil
	}
	sampleRate := dmx.StreamCodecParams(media.StreamAudio).SampleRate
	return audio.NewContext(sampleRate), nil
}

type game struct {
	videoPath  string
	controller *playback.Controller

	lastPosition time.Duration
	duration     time.Duration
}

func (g *game) Layout(_, _ int) (int, int) {
	panic("Layout() should not be called when LayoutF() exists")
}

func (g *game) LayoutF(w, h float64) (float64, float64) {
	scaleFactor := ebiten.Monitor().DeviceScaleFactor()
	return w * scaleFactor, h * scaleFactor
}

func (g *game) Draw(canvas *ebiten.Image) {
	g.controller.Pump()
	if img := g.controller.VideoImage(); img != nil {
		canvas.DrawImage(img, nil)
	}
	g.drawGUI(canvas)
}

func (g *game) Update() error {
	g.lastPosition = g.controller.Position()

	if inpututil.IsKeyJustPressed(ebiten.KeyEscape) {
		if err := g.controller.Close(); err != nil {
			return err
		}
		return ebiten.Termination
	}

	if inpututil.IsKeyJustPressed(ebiten.KeyP) || inpututil.IsKeyJustPressed(ebiten.KeySpace) {
		if g.controller.State() == state.Playing {
			if err := g.controller.Pause(); err != nil {
				return err
			}
		} else {
			if err := g.controller.Resume(); err != nil {
				return err
			}
		}
	} else if inpututil.IsKeyJustPressed(ebiten.KeyLeft) {
		target := g.lastPosition - 5*time.Second
		if target < 0 {
			target = 0
		}
		g.controller.SeekAsync(target.Milliseconds(), true)
	} else if inpututil.IsKeyJustPressed(ebiten.KeyRight) {
		g.controller.SeekAsync((g.lastPosition + 5*time.Second).Milliseconds(), false)
	} else if inpututil.IsKeyJustPressed(ebiten.KeyM) {
		g.controller.SetMuted(!g.controller.Muted())
	}

	if inpututil.IsKeyJustPressed(ebiten.KeyI) {
		fmt.Printf("Video state: %s\n", g.controller.State())
	}

	return nil
}

func (g *game) drawGUI(canvas *ebiten.Image) {
	bounds := canvas.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	playWidth := (w * 2) / 3
	playHeight := h / 48
	ox := (w - playWidth) / 2
	oy := h - playHeight*2
	playRect := image.Rect(ox, oy, ox+playWidth, oy+playHeight)
	canvas.SubImage(playRect).(*ebiten.Image).Fill(color.RGBA{255, 255, 255, 255})
	const borderThickness = 3
	playRect.Min.X += borderThickness
	playRect.Max.X -= borderThickness
	playRect.Min.Y += borderThickness
	playRect.Max.Y -= borderThickness
	canvas.SubImage(playRect).(*ebiten.Image).Fill(color.RGBA{0, 0, 0, 255})
	const innerMargin = 2
	playRect.Min.X += innerMargin
	playRect.Max.X -= innerMargin
	playRect.Min.Y += innerMargin
	playRect.Max.Y -= innerMargin
	if g.duration > 0 {
		t := float64(g.lastPosition) / float64(g.duration)
		playRect.Max.X = playRect.Min.X + int(float64(playRect.Dx())*t)
		canvas.SubImage(playRect).(*ebiten.Image).Fill(color.RGBA{255, 255, 255, 255})
	}

	positionStr := durationToMMSS(g.lastPosition)
	durationStr := durationToMMSS(g.duration)
	ebitenutil.DebugPrintAt(canvas, positionStr+" / "+durationStr+" (SPACE to pause, arrows to seek, M to mute, ESC to quit)", ox, oy-16)
}

func durationToMMSS(d time.Duration) string {
	millis := d.Milliseconds()
	seconds := millis / 1000
	minutes := seconds / 60
	seconds = seconds % 60
	return fmt.Sprintf("%02d:%02d", minutes, seconds)
}
