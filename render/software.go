package render

import (
	"image"

	"github.com/hajimehoshi/ebiten/v2"

	"github.com/Sunshine334419520/zenplay-sub000/media"
	"github.com/Sunshine334419520/zenplay-sub000/zlog"
)

var softLog = zlog.For("render.software")

// Software is the §4.10 backend: it accepts CPU frames, keeps one
// upload texture matching the current stream's (w, h, fmt), and blits
// it into the viewport with an aspect-preserving letterbox/pillarbox,
// reusing the teacher's CalcProjection/Draw math from draw.go
// unchanged — that function already computes exactly the centered,
// scale-to-fit GeoM §4.10 step 4 asks for.
type Software struct {
	viewport *ebiten.Image

	texW, texH int
	texFmt     media.PixelFormat
	tex        *ebiten.Image

	scratch []byte // color-space conversion fallback buffer
}

// NewSoftware constructs a backend bound to viewport, the destination
// surface the host application presents every tick. OnResize does not
// resize the viewport; its size stays whatever the host created.
func NewSoftware(viewport *ebiten.Image) *Software {
	return &Software{viewport: viewport}
}

func (s *Software) Init(_ uintptr, w, h int) error {
	s.OnResize(w, h)
	return nil
}

func (s *Software) Name() string { return "software" }

// RenderFrame implements §4.10's per-frame sequence: recreate the
// texture on format change, upload planes (converting to RGBA first
// if the decoder handed us something else), clear, letterbox-blit,
// and rely on the host's Present for vsync.
func (s *Software) RenderFrame(frame *media.Frame) bool {
	if frame == nil || frame.CPU == nil {
		return false
	}
	cpu := frame.CPU

	if s.tex == nil || s.texW != cpu.Width || s.texH != cpu.Height || s.texFmt != cpu.Format {
		if s.tex != nil {
			s.tex.Deallocate()
		}
		s.tex = ebiten.NewImage(cpu.Width, cpu.Height)
		s.texW, s.texH, s.texFmt = cpu.Width, cpu.Height, cpu.Format
		softLog.Debugf("recreated upload texture %dx%d fmt=%d", cpu.Width, cpu.Height, cpu.Format)
	}

	rgba, err := s.convertToRGBA(cpu)
	if err != nil {
		softLog.Warnf("frame dropped: %v", err)
		return false
	}
	s.tex.WritePixels(rgba)

	s.Clear()
	Draw(s.viewport, s.tex)
	return true
}

// convertToRGBA returns a tightly packed RGBA buffer ready for
// ebiten.Image.WritePixels. Natively-RGBA frames pass through
// zero-copy when already tightly packed (no stride padding); anything
// else (YUV420P, NV12, or a padded RGBA row) is expanded into the
// scratch buffer (§4.10's "lazily constructed color-space converter").
func (s *Software) convertToRGBA(cpu *media.CPUFrame) ([]byte, error) {
	tight := cpu.Width * 4
	if cpu.Format == media.FormatRGBA && len(cpu.Strides) == 1 && cpu.Strides[0] == tight {
		return cpu.Planes[0], nil
	}

	need := cpu.Width * cpu.Height * 4
	if cap(s.scratch) < need {
		s.scratch = make([]byte, need)
	}
	s.scratch = s.scratch[:need]

	switch cpu.Format {
	case media.FormatRGBA:
		copyPaddedRGBA(s.scratch, cpu)
	case media.FormatYUV420P:
		convertYUV420PToRGBA(s.scratch, cpu)
	case media.FormatNV12:
		convertNV12ToRGBA(s.scratch, cpu)
	default:
		return nil, media.NewError(media.KindRender, "render: unsupported pixel format for software path")
	}
	return s.scratch, nil
}

func copyPaddedRGBA(dst []byte, cpu *media.CPUFrame) {
	row := cpu.Width * 4
	src, stride := cpu.Planes[0], cpu.Strides[0]
	for y := 0; y < cpu.Height; y++ {
		copy(dst[y*row:(y+1)*row], src[y*stride:y*stride+row])
	}
}

// convertYUV420PToRGBA applies the same BT.709-style YUV->RGB matrix
// the GPU path's pixel shader uses (§4.11), so the two backends agree
// visually when a host falls back from one to the other mid-playback.
func convertYUV420PToRGBA(dst []byte, cpu *media.CPUFrame) {
	y, u, v := cpu.Planes[0], cpu.Planes[1], cpu.Planes[2]
	ys, us, vs := cpu.Strides[0], cpu.Strides[1], cpu.Strides[2]
	for row := 0; row < cpu.Height; row++ {
		for col := 0; col < cpu.Width; col++ {
			yy := float64(y[row*ys+col])
			uu := float64(u[(row/2)*us+col/2]) - 128
			vv := float64(v[(row/2)*vs+col/2]) - 128
			writeYUVPixel(dst, (row*cpu.Width+col)*4, yy, uu, vv)
		}
	}
}

func convertNV12ToRGBA(dst []byte, cpu *media.CPUFrame) {
	y, uv := cpu.Planes[0], cpu.Planes[1]
	ys, uvs := cpu.Strides[0], cpu.Strides[1]
	for row := 0; row < cpu.Height; row++ {
		for col := 0; col < cpu.Width; col++ {
			yy := float64(y[row*ys+col])
			base := (row/2)*uvs + (col/2)*2
			uu := float64(uv[base]) - 128
			vv := float64(uv[base+1]) - 128
			writeYUVPixel(dst, (row*cpu.Width+col)*4, yy, uu, vv)
		}
	}
}

func writeYUVPixel(dst []byte, off int, yy, uu, vv float64) {
	r := clamp8(1.1644*(yy-16) + 1.7927*vv)
	g := clamp8(1.1644*(yy-16) - 0.2132*uu - 0.5329*vv)
	b := clamp8(1.1644*(yy-16) + 2.1124*uu)
	dst[off], dst[off+1], dst[off+2], dst[off+3] = r, g, b, 255
}

func clamp8(v float64) byte {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return byte(v)
}

func (s *Software) Clear() {
	s.viewport.Clear()
}

// Present is a no-op: the host application's ebiten Draw callback is
// itself the present step (ebiten owns the swap chain), matching how
// player.go never calls a separate present around avebi.Draw.
func (s *Software) Present() {}

func (s *Software) OnResize(w, h int) {
	if s.viewport == nil {
		return
	}
	b := s.viewport.Bounds()
	if b.Dx() == w && b.Dy() == h {
		return
	}
	_ = image.Rect(0, 0, w, h) // viewport resizing is the host's responsibility; recorded for parity with §4.10 step 1
}

// ClearCaches drops the upload texture so the next RenderFrame
// recreates it at whatever size/format the post-seek stream reports,
// mirroring the GPU path's cache invalidation (§4.9).
func (s *Software) ClearCaches() {
	if s.tex != nil {
		s.tex.Deallocate()
		s.tex = nil
	}
}

func (s *Software) Cleanup() {
	s.ClearCaches()
}
