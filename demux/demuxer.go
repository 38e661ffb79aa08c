// Package demux wraps reisen's container/stream API into the core's
// demuxer contract (§4.8): open/close, packet reading, seeking, and
// stream metadata lookup.
//
// reisen couples "read next packet" and "decode" at the Media/stream
// level — there is no standalone raw-packet type with encoded bytes
// the way §4.1's packet queue literally describes (see
// controller_no_audio.go's internalReadVideoFrame and
// controller_yes_audio.go's internalReadAudioFrame, both of which loop
// media.ReadPacket() and decode inline). This package is therefore the
// single owner of reisen's packet cursor: ReadPacket both advances the
// cursor and, when the packet belongs to a selected stream, decodes it
// immediately, handing the already-decoded reisen frame back as a
// [media.Packet]'s Opaque payload. The decode package's
// send_packet/receive_frame pair (§4.6/§4.7) is consequently a cheap
// unwrap of that payload rather than a second decode pass — documented
// there too so the split isn't mistaken for true two-stage decoding.
package demux

import (
	"path/filepath"
	"time"

	"github.com/erparts/reisen"

	"github.com/Sunshine334419520/zenplay-sub000/media"
	"github.com/Sunshine334419520/zenplay-sub000/zlog"
)

var log = zlog.For("demux")

// StreamCodecParams mirrors §4.8's stream_codec_params(idx) result.
type StreamCodecParams struct {
	Kind      media.StreamKind
	Index     int
	Width     int // video only
	Height    int
	SampleRate int // audio only
}

// Demuxer opens one media file and exposes its selected video/audio
// streams. Not safe for concurrent use from multiple goroutines; the
// playback controller serializes access via the decode workers.
type Demuxer struct {
	container *reisen.Media

	videoStream *reisen.VideoStream
	audioStream *reisen.AudioStream

	durationMs int64
}

// Open opens url and selects the first video stream (required) and
// first audio stream (optional), logging the same multi-stream warning
// the teacher logs when a container carries more than one of either
// (§4.8, player.go's original behavior kept verbatim).
func Open(url string) (*Demuxer, error) {
	container, err := reisen.NewMedia(url)
	if err != nil {
		return nil, media.WrapError(media.KindOpen, "demux: open media", err)
	}

	videoStreams := container.VideoStreams()
	audioStreams := container.AudioStreams()
	if len(videoStreams) == 0 {
		return nil, media.NewError(media.KindOpen, "demux: no video stream")
	}
	if len(videoStreams) > 1 {
		log.Warnf("'%s' has multiple video streams; defaulting to the first", filepath.Base(url))
	}
	if len(audioStreams) > 1 {
		log.Warnf("'%s' has multiple audio streams; defaulting to the first", filepath.Base(url))
	}

	videoStream := videoStreams[0]
	var audioStream *reisen.AudioStream
	if len(audioStreams) > 0 {
		audioStream = audioStreams[0]
	}

	if err := container.OpenDecode(); err != nil {
		return nil, media.WrapError(media.KindOpen, "demux: open decode", err)
	}
	if err := videoStream.Open(); err != nil {
		return nil, media.WrapError(media.KindOpen, "demux: open video stream", err)
	}
	if audioStream != nil {
		if err := audioStream.Open(); err != nil {
			return nil, media.WrapError(media.KindOpen, "demux: open audio stream", err)
		}
	}

	videoDuration, err := videoStream.Duration()
	if err != nil {
		return nil, media.WrapError(media.KindOpen, "demux: video duration", err)
	}

	return &Demuxer{
		container:   container,
		videoStream: videoStream,
		audioStream: audioStream,
		durationMs:  videoDuration.Milliseconds(),
	}, nil
}

// ActiveVideoStreamIndex returns the container index of the selected
// video stream.
func (d *Demuxer) ActiveVideoStreamIndex() int { return d.videoStream.Index() }

// ActiveAudioStreamIndex returns the container index of the selected
// audio stream, or -1 if the container has no audio.
func (d *Demuxer) ActiveAudioStreamIndex() int {
	if d.audioStream == nil {
		return -1
	}
	return d.audioStream.Index()
}

// HasAudio reports whether an audio stream was selected.
func (d *Demuxer) HasAudio() bool { return d.audioStream != nil }

// DurationMs returns the selected video stream's duration in
// milliseconds.
func (d *Demuxer) DurationMs() int64 { return d.durationMs }

// StreamCodecParams returns static parameters for the video or audio
// stream (§4.8).
func (d *Demuxer) StreamCodecParams(kind media.StreamKind) StreamCodecParams {
	switch kind {
	case media.StreamVideo:
		return StreamCodecParams{
			Kind:   media.StreamVideo,
			Index:  d.videoStream.Index(),
			Width:  d.videoStream.Width(),
			Height: d.videoStream.Height(),
		}
	case media.StreamAudio:
		if d.audioStream == nil {
			return StreamCodecParams{Kind: media.StreamAudio, Index: -1}
		}
		return StreamCodecParams{
			Kind:       media.StreamAudio,
			Index:      d.audioStream.Index(),
			SampleRate: d.audioStream.SampleRate(),
		}
	default:
		return StreamCodecParams{}
	}
}

// VideoFrameRate returns the video stream's frame rate as a
// numerator/denominator pair, mirroring reisen.VideoStream.FrameRate.
func (d *Demuxer) VideoFrameRate() (int, int) {
	return d.videoStream.FrameRate()
}

// AudioSampleRate returns the audio stream's native sample rate, or 0
// if there is no audio stream.
func (d *Demuxer) AudioSampleRate() int {
	if d.audioStream == nil {
		return 0
	}
	return d.audioStream.SampleRate()
}

// ReadPacket advances the shared packet cursor and decodes the next
// frame belonging to a selected stream, returning it wrapped as a
// [media.Packet] whose Opaque field is the underlying reisen frame
// (*reisen.VideoFrame or *reisen.AudioFrame). It returns
// [media.ErrEOF] once the container is exhausted.
func (d *Demuxer) ReadPacket() (media.Packet, error) {
	for {
		packet, found, err := d.container.ReadPacket()
		if err != nil {
			return media.Packet{}, media.WrapError(media.KindIO, "demux: read packet", err)
		}
		if !found {
			return media.Packet{}, media.ErrEOF
		}

		switch packet.Type() {
		case reisen.StreamVideo:
			if packet.StreamIndex() != d.videoStream.Index() {
				continue
			}
			frame, frameFound, err := d.videoStream.ReadVideoFrame()
			if err != nil {
				return media.Packet{}, media.WrapError(media.KindCodec, "demux: decode video frame", err)
			}
			if !frameFound || frame == nil {
				continue // frame skip: packet consumed, no output yet
			}
			pts, err := frame.PresentationOffset()
			if err != nil {
				return media.Packet{}, media.WrapError(media.KindCodec, "demux: video frame pts", err)
			}
			return media.Packet{
				Stream:      media.StreamVideo,
				StreamIndex: d.videoStream.Index(),
				Timestamp:   media.FromDuration(pts),
				Opaque:      frame,
			}, nil

		case reisen.StreamAudio:
			if d.audioStream == nil || packet.StreamIndex() != d.audioStream.Index() {
				continue
			}
			frame, frameFound, err := d.audioStream.ReadAudioFrame()
			if err != nil {
				return media.Packet{}, media.WrapError(media.KindCodec, "demux: decode audio frame", err)
			}
			if !frameFound || frame == nil {
				continue
			}
			pts, err := frame.PresentationOffset()
			if err != nil {
				return media.Packet{}, media.WrapError(media.KindCodec, "demux: audio frame pts", err)
			}
			return media.Packet{
				Stream:      media.StreamAudio,
				StreamIndex: d.audioStream.Index(),
				Timestamp:   media.FromDuration(pts),
				Opaque:      frame,
			}, nil

		default:
			continue // stream we didn't select (e.g. subtitles)
		}
	}
}

// Seek rewinds both selected streams to timestampMs. reisen has no
// separate "backward" snap knob (§4.8's seek contract); Rewind always
// snaps to the nearest preceding keyframe, which satisfies the
// "succeeds even without an exact keyframe at the target" requirement.
func (d *Demuxer) Seek(timestampMs int64, _ bool) error {
	target := time.Duration(timestampMs) * time.Millisecond
	if err := d.videoStream.Rewind(target); err != nil {
		return media.WrapError(media.KindIO, "demux: seek video stream", err)
	}
	if d.audioStream != nil {
		if err := d.audioStream.Rewind(target); err != nil {
			return media.WrapError(media.KindIO, "demux: seek audio stream", err)
		}
	}
	return nil
}

// Close releases both streams and the container. Safe to call once;
// a second call returns whatever reisen itself reports for a
// double-close.
func (d *Demuxer) Close() error {
	if err := d.videoStream.Close(); err != nil {
		return media.WrapError(media.KindIO, "demux: close video stream", err)
	}
	if d.audioStream != nil {
		if err := d.audioStream.Close(); err != nil {
			return media.WrapError(media.KindIO, "demux: close audio stream", err)
		}
	}
	if err := d.container.CloseDecode(); err != nil {
		return media.WrapError(media.KindIO, "demux: close decode", err)
	}
	d.container.Close()
	return nil
}
