package resample

import (
	"testing"

	"github.com/Sunshine334419520/zenplay-sub000/media"
)

func TestZeroCopyPassthroughWhenFormatsMatch(t *testing.T) {
	target := Format{SampleRate: 48000, Channels: 2, Sample: media.SampleFormatS16}
	r := New(target)

	data := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	in := InputFrame{Data: data, SampleRate: 48000, Channels: 2, Sample: media.SampleFormatS16, PTSSeconds: 1.5}

	out, err := r.Resample(in)
	if err != nil {
		t.Fatalf("Resample: %v", err)
	}
	if &out.Data[0] != &data[0] {
		t.Fatal("expected zero-copy view wrapping the input storage")
	}
	if out.SampleCount != 2 {
		t.Fatalf("SampleCount = %d, want 2", out.SampleCount)
	}
}

func TestMonoToStereoRemix(t *testing.T) {
	target := Format{SampleRate: 44100, Channels: 2, Sample: media.SampleFormatS16}
	r := New(target)

	in := InputFrame{
		Data:       encodeS16Mono([]float32{0.5, -0.5}),
		SampleRate: 44100,
		Channels:   1,
		Sample:     media.SampleFormatS16,
	}

	out, err := r.Resample(in)
	if err != nil {
		t.Fatalf("Resample: %v", err)
	}
	if out.Channels != 2 {
		t.Fatalf("Channels = %d, want 2", out.Channels)
	}
	if out.SampleCount != 2 {
		t.Fatalf("SampleCount = %d, want 2", out.SampleCount)
	}
}

func TestSampleRateConversionChangesFrameCount(t *testing.T) {
	target := Format{SampleRate: 48000, Channels: 1, Sample: media.SampleFormatS16}
	r := New(target)

	samples := make([]float32, 44100) // one second at 44100Hz mono
	in := InputFrame{
		Data:       encodeS16Mono(samples),
		SampleRate: 44100,
		Channels:   1,
		Sample:     media.SampleFormatS16,
	}

	out, err := r.Resample(in)
	if err != nil {
		t.Fatalf("Resample: %v", err)
	}
	// Roughly one second at 48000Hz; allow interpolation slack.
	if out.SampleCount < 47000 || out.SampleCount > 49000 {
		t.Fatalf("SampleCount = %d, want ~48000", out.SampleCount)
	}
}

func TestResetTruncatesReusedBuffer(t *testing.T) {
	target := Format{SampleRate: 48000, Channels: 1, Sample: media.SampleFormatS16}
	r := New(target)

	in := InputFrame{
		Data:       encodeS16Mono([]float32{0.1, 0.2, 0.3}),
		SampleRate: 44100,
		Channels:   1,
		Sample:     media.SampleFormatS16,
	}
	if _, err := r.Resample(in); err != nil {
		t.Fatalf("Resample: %v", err)
	}
	if len(r.out) == 0 {
		t.Fatal("expected output buffer to be populated before Reset")
	}
	r.Reset()
	if len(r.out) != 0 {
		t.Fatalf("out len after Reset = %d, want 0", len(r.out))
	}
}

func encodeS16Mono(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		v := int16(clampFloat(s) * 32767)
		out[i*2] = byte(v)
		out[i*2+1] = byte(v >> 8)
	}
	return out
}
