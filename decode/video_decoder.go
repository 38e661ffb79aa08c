// Package decode exposes the video/audio decoder contract (§4.6/§4.7):
// open/close/flush plus a send_packet/receive_frame pair, wrapping
// reisen's decoded output into this core's [media.Frame] /
// [resample.InputFrame] types.
//
// Grounded on controller_no_audio.go's internalReadVideoFrame and
// controller_yes_audio.go's internalReadAudioFrame. reisen couples
// "read next packet" with "decode" at the Media/stream level (see
// demux/demuxer.go's package doc for the full rationale), so the
// send_packet/receive_frame split here is a thin adapter over
// demux.Demuxer's already-decoded output rather than a second decode
// pass: SendPacket stashes the packet demux produced, ReceiveFrame
// unwraps it. The interface still matches §4.6/§4.7 exactly, so a
// future demuxer with true two-stage decode (raw packet bytes, a
// separate send_packet into a codec context) could replace demux
// without touching this package's callers.
package decode

import (
	"github.com/Sunshine334419520/zenplay-sub000/hwaccel"
	"github.com/Sunshine334419520/zenplay-sub000/media"
	"github.com/Sunshine334419520/zenplay-sub000/zlog"
)

var videoLog = zlog.For("decoder")

// videoFrame narrows reisen.VideoFrame to the subset this package
// uses, keeping the reisen import itself confined to demux.
type videoFrame interface {
	Data() []byte
}

// VideoDecoder adapts demux-produced video packets into [media.Frame]
// values, never cloning hardware frames (§4.6 — frames are moved out
// of the internal pending slot, not copied).
//
// Zero-copy GPU frames depend on the codec library exposing raw
// AVFrame/AVCodecContext pointers to attach a hw_device_ctx /
// hw_frames_ctx to (§4.5); reisen does not expose either, so this
// decoder's only frame source is reisen's own software-decoded RGBA
// output. hw is still accepted and retained so the decoder can log the
// zero-copy validation §4.6 asks for, and so a demuxer that does expose
// those pointers can be wired in later without changing the
// decode/videoplayer boundary.
type VideoDecoder struct {
	streamIndex   int
	width, height int
	hw            *hwaccel.Context
	hwLoggedOnce  bool

	pending *media.Packet
}

// Open constructs a decoder for the given video stream index and
// frame dimensions (from demux.StreamCodecParams). hw may be nil when
// the render path resolved to software (§6).
func Open(streamIndex, width, height int, hw *hwaccel.Context) *VideoDecoder {
	return &VideoDecoder{streamIndex: streamIndex, width: width, height: height, hw: hw}
}

// SendPacket accepts one demux-produced packet for this stream (§4.6).
// Returns [media.ErrAgain] if a packet is already pending and hasn't
// been drained by ReceiveFrame yet.
func (d *VideoDecoder) SendPacket(pkt media.Packet) error {
	if pkt.Stream != media.StreamVideo || pkt.StreamIndex != d.streamIndex {
		return media.NewError(media.KindCodec, "decode: packet does not belong to this video stream")
	}
	if d.pending != nil {
		return media.ErrAgain
	}
	p := pkt
	d.pending = &p
	return nil
}

// ReceiveFrame drains the pending packet into a [media.Frame]. Returns
// [media.ErrAgain] when nothing is pending.
func (d *VideoDecoder) ReceiveFrame() (*media.Frame, error) {
	if d.pending == nil {
		return nil, media.ErrAgain
	}
	pkt := d.pending
	d.pending = nil

	raw, ok := pkt.Opaque.(videoFrame)
	if !ok {
		return nil, media.NewError(media.KindCodec, "decode: unexpected packet payload for video stream")
	}

	if d.hw != nil && !d.hwLoggedOnce {
		videoLog.Warnf("hardware decode requested but the active demuxer has no zero-copy path; falling back to software frames")
		d.hwLoggedOnce = true
	}

	return &media.Frame{
		CPU: &media.CPUFrame{
			Width:     d.width,
			Height:    d.height,
			Format:    media.FormatRGBA,
			Planes:    [][]byte{raw.Data()},
			Strides:   []int{d.width * 4},
			Timestamp: pkt.Timestamp,
		},
	}, nil
}

// Flush discards the pending packet without producing a frame, used
// when a seek invalidates in-flight decode state (§4.6).
func (d *VideoDecoder) Flush() {
	d.pending = nil
}

// Close releases decoder-held resources. The hardware context, if any,
// is owned by the playback controller and is not released here.
func (d *VideoDecoder) Close() {
	d.pending = nil
}
