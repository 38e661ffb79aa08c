package decode

import (
	"github.com/Sunshine334419520/zenplay-sub000/media"
	"github.com/Sunshine334419520/zenplay-sub000/resample"
)

// audioFrame narrows reisen.AudioFrame to the subset this package
// uses, keeping the reisen import itself confined to demux.
type audioFrame interface {
	Data() []byte
}

// AudioDecoder adapts demux-produced audio packets into
// [resample.InputFrame] values ready for the resampler (§4.7),
// grounded on controller_yes_audio.go's internalReadAudioFrame (the
// per-frame c.leftoverAudio = append(..., frame.Data()...) step this
// replaces with a resampler handoff instead of a raw byte append).
type AudioDecoder struct {
	streamIndex int
	sampleRate  int
	channels    int
	format      media.SampleFormat

	pending *media.Packet
}

// OpenAudio constructs a decoder for the given audio stream index and
// native layout (from demux.StreamCodecParams / demux.AudioSampleRate).
// reisen always decodes to 32-bit float PCM, matching the container's
// channel count.
func OpenAudio(streamIndex, sampleRate, channels int) *AudioDecoder {
	return &AudioDecoder{
		streamIndex: streamIndex,
		sampleRate:  sampleRate,
		channels:    channels,
		format:      media.SampleFormatF32,
	}
}

// SendPacket accepts one demux-produced packet for this stream (§4.7).
func (d *AudioDecoder) SendPacket(pkt media.Packet) error {
	if pkt.Stream != media.StreamAudio || pkt.StreamIndex != d.streamIndex {
		return media.NewError(media.KindCodec, "decode: packet does not belong to this audio stream")
	}
	if d.pending != nil {
		return media.ErrAgain
	}
	p := pkt
	d.pending = &p
	return nil
}

// ReceiveFrame drains the pending packet into a [resample.InputFrame].
// Returns [media.ErrAgain] when nothing is pending.
func (d *AudioDecoder) ReceiveFrame() (resample.InputFrame, error) {
	if d.pending == nil {
		return resample.InputFrame{}, media.ErrAgain
	}
	pkt := d.pending
	d.pending = nil

	raw, ok := pkt.Opaque.(audioFrame)
	if !ok {
		return resample.InputFrame{}, media.NewError(media.KindCodec, "decode: unexpected packet payload for audio stream")
	}

	return resample.InputFrame{
		Data:       raw.Data(),
		SampleRate: d.sampleRate,
		Channels:   d.channels,
		Sample:     d.format,
		PTSSeconds: pkt.Timestamp.Millis() / 1000,
	}, nil
}

// Flush discards the pending packet without producing a frame (§4.7,
// seek invalidation).
func (d *AudioDecoder) Flush() {
	d.pending = nil
}

// Close releases decoder-held resources.
func (d *AudioDecoder) Close() {
	d.pending = nil
}
