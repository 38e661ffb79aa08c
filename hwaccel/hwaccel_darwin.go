//go:build darwin && cgo

package hwaccel

/*
#cgo pkg-config: libavutil
#include <libavutil/hwcontext.h>
*/
import "C"

func hwDeviceType(b Backend) C.enum_AVHWDeviceType {
	switch b {
	case BackendVideoToolbox:
		return C.AV_HWDEVICE_TYPE_VIDEOTOOLBOX
	default:
		return C.AV_HWDEVICE_TYPE_NONE
	}
}

func hwPixFmt(b Backend) C.enum_AVPixelFormat {
	switch b {
	case BackendVideoToolbox:
		return C.AV_PIX_FMT_VIDEOTOOLBOX
	default:
		return C.AV_PIX_FMT_NONE
	}
}
