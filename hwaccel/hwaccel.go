// Package hwaccel wraps libav's hardware-decode API: device and
// frames-pool allocation, the codec-context wiring that must happen in
// a specific order to avoid a silent software fallback (§4.5), and the
// opaque texture/device handles the zero-copy render path keys on.
//
// Grounded on richinsley/goshadertoy/audio/player.go's direct cgo
// usage against libav (#cgo CFLAGS/#include block, a small static C
// helper wrapping an awkward macro, import "C" with no higher-level Go
// wrapper library) applied to libav's hw-accel surface instead of its
// muxer surface, and on arcana/arcana_linux.go + arcana_darwin.go's
// split of platform-specific cgo blocks into build-tagged files, which
// this package mirrors for the platform-specific AVHWDeviceType /
// AVPixelFormat constants in hwaccel_linux.go / hwaccel_darwin.go /
// hwaccel_windows.go.
package hwaccel

/*
#cgo pkg-config: libavutil libavcodec
#include <libavutil/hwcontext.h>
#include <libavcodec/avcodec.h>
#include <stdlib.h>

// enum_format_cb is installed as AVCodecContext.get_format. It is
// registered on the codec context before avcodec_parameters_to_context
// runs (see ConfigureDecoder below) so the callback never observes an
// uninitialized opaque pointer (§4.5 ordering rule).
static enum AVPixelFormat enum_format_cb(AVCodecContext *ctx, const enum AVPixelFormat *pix_fmts) {
    enum AVPixelFormat want = *(enum AVPixelFormat *)ctx->opaque;
    for (const enum AVPixelFormat *p = pix_fmts; *p != AV_PIX_FMT_NONE; p++) {
        if (*p == want) {
            return *p;
        }
    }
    return AV_PIX_FMT_NONE;
}

static void install_get_format(AVCodecContext *ctx, enum AVPixelFormat *want) {
    ctx->opaque = want;
    ctx->get_format = enum_format_cb;
}

static const char *av_error_str(int errnum) {
    static char buf[AV_ERROR_MAX_STRING_SIZE];
    av_strerror(errnum, buf, sizeof(buf));
    return buf;
}
*/
import "C"

import (
	"fmt"
	"runtime"
	"unsafe"

	"github.com/Sunshine334419520/zenplay-sub000/media"
)

// Backend identifies a platform hardware-decode API (§4.5's
// backend_pref). Each value maps to an AVHWDeviceType/AVPixelFormat
// pair in the platform-specific file that actually declares that
// backend's libav constants.
type Backend int

const (
	BackendNone Backend = iota
	BackendVAAPI
	BackendD3D11VA
	BackendDXVA2
	BackendVideoToolbox
)

// defaultInitialPoolSize and extraHWFrames follow §4.5's sizing floor:
// initial_pool_size >= 20, extra_hw_frames >= 8. Exhaustion below these
// floors manifests upstream as "need more output consumed" and is easy
// to mistake for a real format problem.
const (
	defaultInitialPoolSize = 20
	extraHWFrames          = 8
)

// Context owns a hardware device and its frames pool for the lifetime
// of one video stream.
type Context struct {
	backend   Backend
	deviceCtx *C.AVBufferRef
	framesCtx *C.AVBufferRef
	wantFmt   C.enum_AVPixelFormat // pinned: codec_ctx.opaque points here

	device media.DeviceHandle
}

// Initialize allocates a hardware device and a frames pool sized for
// w x h frames of codecID (§4.5 op 1: initialize).
func Initialize(backend Backend, codecID int, w, h int) (*Context, error) {
	devType := hwDeviceType(backend)
	if devType == C.AV_HWDEVICE_TYPE_NONE {
		return nil, media.NewError(media.KindHardware, "hwaccel: backend not supported on this platform")
	}

	var deviceCtx *C.AVBufferRef
	ret := C.av_hwdevice_ctx_create(&deviceCtx, devType, nil, nil, 0)
	if ret < 0 {
		return nil, media.NewError(media.KindHardware,
			fmt.Sprintf("hwaccel: av_hwdevice_ctx_create: %s", C.GoString(C.av_error_str(ret))))
	}

	framesRef := C.av_hwframe_ctx_alloc(deviceCtx)
	if framesRef == nil {
		C.av_buffer_unref(&deviceCtx)
		return nil, media.NewError(media.KindHardware, "hwaccel: av_hwframe_ctx_alloc failed")
	}
	wantFmt := hwPixFmt(backend)
	framesCtx := (*C.AVHWFramesContext)(unsafe.Pointer(framesRef.data))
	framesCtx.format = wantFmt
	framesCtx.sw_format = C.AV_PIX_FMT_NV12
	framesCtx.width = C.int(w)
	framesCtx.height = C.int(h)
	framesCtx.initial_pool_size = C.int(defaultInitialPoolSize + extraHWFrames)

	if ret := C.av_hwframe_ctx_init(framesRef); ret < 0 {
		C.av_buffer_unref(&framesRef)
		C.av_buffer_unref(&deviceCtx)
		return nil, media.NewError(media.KindHardware,
			fmt.Sprintf("hwaccel: av_hwframe_ctx_init: %s", C.GoString(C.av_error_str(ret))))
	}

	c := &Context{
		backend:   backend,
		deviceCtx: deviceCtx,
		framesCtx: framesRef,
		wantFmt:   wantFmt,
		device:    media.NewDeviceHandle(uintptr(unsafe.Pointer(deviceCtx))),
	}
	runtime.SetFinalizer(c, (*Context).Cleanup)
	return c, nil
}

// ConfigureDecoder wires this context onto codecCtx in the order §4.5
// requires: the get_format callback and private pointer are installed
// before the caller performs avcodec_parameters_to_context /
// avcodec_open2, so the callback never observes an uninitialized
// opaque slot (§4.5 op 2). codecCtx is passed as an unsafe.Pointer
// because *C.AVCodecContext is a cgo type local to this package and
// cannot be named by callers in other packages.
func (c *Context) ConfigureDecoder(codecCtx unsafe.Pointer) {
	ctx := (*C.AVCodecContext)(codecCtx)
	C.install_get_format(ctx, &c.wantFmt)
	ctx.hw_device_ctx = C.av_buffer_ref(c.deviceCtx)
	ctx.hw_frames_ctx = C.av_buffer_ref(c.framesCtx)
}

// GetDevice returns the opaque device handle the GPU renderer compares
// against every decoded frame's texture device (§4.5 op 3, §4.11
// invariant).
func (c *Context) GetDevice() media.DeviceHandle {
	return c.device
}

// GetTextureFromFrame extracts the opaque GPU texture handle and
// array-slice index from a hardware AVFrame's data[0]/data[1] (§4.5 op
// 4, §4.8's codec-library contract). frame is an unsafe.Pointer to a
// *C.AVFrame for the same cross-package-boundary reason as
// ConfigureDecoder.
func (c *Context) GetTextureFromFrame(frame unsafe.Pointer) (media.TextureHandle, int) {
	f := (*C.AVFrame)(frame)
	texPtr := uintptr(unsafe.Pointer(f.data[0]))
	slice := int(uintptr(unsafe.Pointer(f.data[1])))
	return media.NewTextureHandle(texPtr, c.device), slice
}

// Cleanup releases the frames pool and device context (§4.5 op 5). It
// is idempotent and safe to call more than once.
func (c *Context) Cleanup() {
	if c.framesCtx != nil {
		C.av_buffer_unref(&c.framesCtx)
		c.framesCtx = nil
	}
	if c.deviceCtx != nil {
		C.av_buffer_unref(&c.deviceCtx)
		c.deviceCtx = nil
	}
	runtime.SetFinalizer(c, nil)
}

// Supported reports whether backend is compiled in on this platform.
// The playback controller calls this during render-path resolution
// (§6) before committing to a hardware path.
func Supported(backend Backend) bool {
	return hwDeviceType(backend) != C.AV_HWDEVICE_TYPE_NONE
}
