package media

// StreamKind tags a [Packet] or [Frame] with the elementary stream it
// belongs to.
type StreamKind uint8

const (
	StreamUnknown StreamKind = iota
	StreamVideo
	StreamAudio
)

// Packet is an opaque compressed unit tagged with its stream and
// timestamp. It is owned by exactly one queue slot at a time and must
// be released exactly once, either by the consumer that decodes it or
// by a queue [Bounded.Reset] releaser.
//
// reisen (the demuxer library this core wraps) couples "read the next
// packet" with "decode it for the stream it belongs to" at the Media
// level — there is no standalone byte buffer to hold across a queue
// boundary. Opaque therefore carries the frame reisen has already
// decoded for this packet; see demux/demuxer.go for how this is
// bridged.
type Packet struct {
	Stream      StreamKind
	StreamIndex int
	Timestamp   Timestamp

	// Opaque is the decoded reisen frame (*reisen.VideoFrame or
	// *reisen.AudioFrame) demux produced for this packet. It is nil
	// for packets synthesized by tests.
	Opaque any
}

// Release marks the packet consumed. It is always a no-op (reisen
// owns packet lifetime internally and the next ReadPacket call
// invalidates the previous one); the method exists so
// callers that expect an explicit release contract — and [Bounded]'s
// reset releaser — have something to call uniformly regardless of
// backend.
func (p *Packet) Release() {}
