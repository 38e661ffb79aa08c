//go:build windows && cgo

package hwaccel

/*
#cgo pkg-config: libavutil
#include <libavutil/hwcontext.h>
*/
import "C"

func hwDeviceType(b Backend) C.enum_AVHWDeviceType {
	switch b {
	case BackendD3D11VA:
		return C.AV_HWDEVICE_TYPE_D3D11VA
	case BackendDXVA2:
		return C.AV_HWDEVICE_TYPE_DXVA2
	default:
		return C.AV_HWDEVICE_TYPE_NONE
	}
}

func hwPixFmt(b Backend) C.enum_AVPixelFormat {
	switch b {
	case BackendD3D11VA:
		return C.AV_PIX_FMT_D3D11
	case BackendDXVA2:
		return C.AV_PIX_FMT_DXVA2_VLD
	default:
		return C.AV_PIX_FMT_NONE
	}
}
