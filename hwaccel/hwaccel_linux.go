//go:build linux && cgo

package hwaccel

/*
#cgo pkg-config: libavutil
#include <libavutil/hwcontext.h>
*/
import "C"

// hwDeviceType and hwPixFmt map a Backend to the libav constants
// actually declared on this platform; BackendD3D11VA/DXVA2 have no
// meaning here and fall through to AV_HWDEVICE_TYPE_NONE, making
// [Supported] false for them on Linux, same as VideoToolbox would be.
func hwDeviceType(b Backend) C.enum_AVHWDeviceType {
	switch b {
	case BackendVAAPI:
		return C.AV_HWDEVICE_TYPE_VAAPI
	default:
		return C.AV_HWDEVICE_TYPE_NONE
	}
}

func hwPixFmt(b Backend) C.enum_AVPixelFormat {
	switch b {
	case BackendVAAPI:
		return C.AV_PIX_FMT_VAAPI
	default:
		return C.AV_PIX_FMT_NONE
	}
}
