package media

// PixelFormat enumerates the CPU plane layouts this core understands.
// It deliberately stays small: the software renderer converts anything
// else into FormatRGBA via a scratch frame (§4.10), so decoders only
// ever need to report one of these.
type PixelFormat uint8

const (
	FormatUnknown PixelFormat = iota
	FormatYUV420P
	FormatNV12
	FormatRGBA
)

// SampleFormat enumerates the PCM sample layouts the resampler and
// audio player deal in.
type SampleFormat uint8

const (
	SampleFormatUnknown SampleFormat = iota
	SampleFormatS16
	SampleFormatF32
)

// BytesPerSample returns the size of one sample of one channel.
func (f SampleFormat) BytesPerSample() int {
	switch f {
	case SampleFormatS16:
		return 2
	case SampleFormatF32:
		return 4
	default:
		return 0
	}
}

// CPUFrame is a decoded video frame backed by host-addressable planes.
// Strides may exceed Width*bytes-per-pixel when the decoder pads rows.
type CPUFrame struct {
	Width, Height int
	Format        PixelFormat
	Planes        [][]byte
	Strides       []int
	Timestamp     Timestamp
}

// GPUFrame is a decoded video frame backed by a device-owned texture
// living in the hardware decoder's frames pool. It is a
// reference-counted view: Release decrements the pool's reference
// count for the slot. The core's ownership rule (§3, §9) is that a
// GPUFrame is moved from decoder to queue to renderer — never cloned —
// because cloning pins an extra pool slot and starves the decoder once
// the pool is exhausted.
type GPUFrame struct {
	Texture   TextureHandle
	SliceIdx  int
	Timestamp Timestamp

	release func()
}

// Release returns the frame's pool slot. It is safe to call at most
// once; callers that move a GPUFrame out of a queue must not also
// release it through the queue's reset releaser.
func (f *GPUFrame) Release() {
	if f.release != nil {
		r := f.release
		f.release = nil
		r()
	}
}

// NewGPUFrame constructs a frame with its pool-release callback
// attached.
func NewGPUFrame(tex TextureHandle, slice int, ts Timestamp, release func()) *GPUFrame {
	return &GPUFrame{Texture: tex, SliceIdx: slice, Timestamp: ts, release: release}
}

// TextureHandle is an opaque, non-owning reference to a GPU texture.
// Equality compares identity, never contents — the SRV cache (§4.11)
// keys on (TextureHandle, slice) and must never dereference the handle
// itself, only compare it.
type TextureHandle struct {
	ptr    uintptr
	Device DeviceHandle
}

// NewTextureHandle wraps a raw pointer-sized identity plus the device
// that owns it. Used by [hwaccel] when handing decoded frames to a
// [GPUFrame].
func NewTextureHandle(ptr uintptr, device DeviceHandle) TextureHandle {
	return TextureHandle{ptr: ptr, Device: device}
}

func (t TextureHandle) IsZero() bool { return t.ptr == 0 }

// DeviceHandle is an opaque, non-owning reference to a GPU device.
// The hardware decode context and the GPU renderer compare this value
// to verify the zero-copy contract: a frame may only be rendered by a
// renderer whose device matches the frame's device (§4.11 invariant).
type DeviceHandle struct{ ptr uintptr }

func NewDeviceHandle(ptr uintptr) DeviceHandle { return DeviceHandle{ptr: ptr} }
func (d DeviceHandle) IsZero() bool            { return d.ptr == 0 }
func (d DeviceHandle) Equal(o DeviceHandle) bool { return d.ptr == o.ptr }

// Frame is either a CPU or a GPU video frame. Exactly one of CPU/GPU
// is non-nil.
type Frame struct {
	CPU *CPUFrame
	GPU *GPUFrame
}

// Timestamp returns the timestamp of whichever variant is populated.
func (f *Frame) Timestamp() Timestamp {
	switch {
	case f.GPU != nil:
		return f.GPU.Timestamp
	case f.CPU != nil:
		return f.CPU.Timestamp
	default:
		return NoTimestamp
	}
}

// Release releases the underlying frame. CPU frames have no pool to
// release against; this is only meaningful for GPU frames, but is
// always safe to call.
func (f *Frame) Release() {
	if f.GPU != nil {
		f.GPU.Release()
	}
}

// ResampledAudioFrame is a contiguous PCM buffer in the audio player's
// target layout, owned by the audio player's queue until fully
// consumed by the device callback (§3, §4.12).
type ResampledAudioFrame struct {
	Data        []byte
	SampleCount int
	PTSSeconds  float64
	SampleRate  int
	Channels    int
	Format      SampleFormat
}

// BytesPerSample is the frame-wide per-channel sample size in bytes.
func (f *ResampledAudioFrame) BytesPerSample() int { return f.Format.BytesPerSample() }
