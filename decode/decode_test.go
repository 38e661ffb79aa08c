package decode

import (
	"testing"

	"github.com/Sunshine334419520/zenplay-sub000/media"
)

type fakeVideoFrame struct{ data []byte }

func (f fakeVideoFrame) Data() []byte { return f.data }

type fakeAudioFrame struct{ data []byte }

func (f fakeAudioFrame) Data() []byte { return f.data }

func TestVideoDecoderSendReceive(t *testing.T) {
	d := Open(0, 4, 2, nil)
	pkt := media.Packet{
		Stream:      media.StreamVideo,
		StreamIndex: 0,
		Timestamp:   media.FromDuration(0),
		Opaque:      fakeVideoFrame{data: make([]byte, 4*2*4)},
	}
	if err := d.SendPacket(pkt); err != nil {
		t.Fatalf("SendPacket: %v", err)
	}
	if err := d.SendPacket(pkt); err != media.ErrAgain {
		t.Fatalf("second SendPacket before drain: want ErrAgain, got %v", err)
	}

	frame, err := d.ReceiveFrame()
	if err != nil {
		t.Fatalf("ReceiveFrame: %v", err)
	}
	if frame.CPU == nil || frame.CPU.Width != 4 || frame.CPU.Height != 2 {
		t.Fatalf("unexpected CPU frame: %+v", frame.CPU)
	}

	if _, err := d.ReceiveFrame(); err != media.ErrAgain {
		t.Fatalf("drained ReceiveFrame: want ErrAgain, got %v", err)
	}
}

func TestVideoDecoderRejectsWrongStream(t *testing.T) {
	d := Open(0, 4, 2, nil)
	pkt := media.Packet{Stream: media.StreamVideo, StreamIndex: 1}
	if err := d.SendPacket(pkt); err == nil {
		t.Fatal("expected an error for a packet from a different stream index")
	}
}

func TestAudioDecoderSendReceive(t *testing.T) {
	d := OpenAudio(1, 48000, 2)
	pkt := media.Packet{
		Stream:      media.StreamAudio,
		StreamIndex: 1,
		Timestamp:   media.FromDuration(0),
		Opaque:      fakeAudioFrame{data: make([]byte, 256)},
	}
	if err := d.SendPacket(pkt); err != nil {
		t.Fatalf("SendPacket: %v", err)
	}
	in, err := d.ReceiveFrame()
	if err != nil {
		t.Fatalf("ReceiveFrame: %v", err)
	}
	if in.SampleRate != 48000 || in.Channels != 2 {
		t.Fatalf("unexpected layout: %+v", in)
	}
}

func TestDecoderFlushDiscardsPending(t *testing.T) {
	d := Open(0, 4, 2, nil)
	pkt := media.Packet{Stream: media.StreamVideo, StreamIndex: 0, Opaque: fakeVideoFrame{data: make([]byte, 32)}}
	if err := d.SendPacket(pkt); err != nil {
		t.Fatalf("SendPacket: %v", err)
	}
	d.Flush()
	if _, err := d.ReceiveFrame(); err != media.ErrAgain {
		t.Fatalf("ReceiveFrame after Flush: want ErrAgain, got %v", err)
	}
}
