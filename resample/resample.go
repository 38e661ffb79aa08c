// Package resample converts decoder-native PCM into a target PCM
// layout (§4.4). It is owned by the decode stage: the audio-callback
// thread only memcpys from frames this package has already produced,
// never performing format conversion itself.
//
// The teacher (erparts/go-avebi) has no resampler at all: it requires
// the container's native sample rate to match ebiten's audio.Context
// exactly and fails open() with ErrBadSampleRate otherwise. This
// package generalizes the "always land on a sample boundary"
// discipline that the teacher applies when copying decoded bytes
// (controller_yes_audio.go's panicOnPartialSampleReads clamp) to a
// real conversion rather than a same-format passthrough. No library in
// the retrieved pack performs audio resampling, so the conversion
// itself is stdlib-only; see DESIGN.md for that justification.
package resample

import (
	"encoding/binary"
	"math"

	"github.com/Sunshine334419520/zenplay-sub000/media"
)

// Format describes a target PCM layout (§4.4's target
// {sample_rate, channels, sample_format, bits_per_sample}).
type Format struct {
	SampleRate int
	Channels   int
	Sample     media.SampleFormat
}

// BytesPerFrame is the byte size of one interleaved multi-channel
// sample.
func (f Format) BytesPerFrame() int {
	return f.Sample.BytesPerSample() * f.Channels
}

// InputFrame is a decoded, not-yet-resampled PCM buffer together with
// the layout it was decoded in.
type InputFrame struct {
	Data       []byte
	SampleRate int
	Channels   int
	Sample     media.SampleFormat
	PTSSeconds float64
}

func (f InputFrame) layout() Format {
	return Format{SampleRate: f.SampleRate, Channels: f.Channels, Sample: f.Sample}
}

// Resampler is a stateful converter from decoder-native PCM to a
// fixed target layout. Not safe for concurrent use; the decode stage
// owns one instance per audio stream.
type Resampler struct {
	target Format
	out    []byte // reused output buffer (§4.4 "reusing its output buffer")
}

// New creates a resampler that converts into target.
func New(target Format) *Resampler {
	return &Resampler{target: target}
}

// Resample converts in into the target layout. If in's layout already
// equals the target exactly, the returned frame is a zero-copy view
// wrapping in's own storage (§4.4).
func (r *Resampler) Resample(in InputFrame) (media.ResampledAudioFrame, error) {
	if in.layout() == r.target {
		return media.ResampledAudioFrame{
			Data:        in.Data,
			SampleCount: len(in.Data) / r.target.BytesPerFrame(),
			PTSSeconds:  in.PTSSeconds,
			SampleRate:  r.target.SampleRate,
			Channels:    r.target.Channels,
			Format:      r.target.Sample,
		}, nil
	}

	samples, err := decodeSamples(in)
	if err != nil {
		return media.ResampledAudioFrame{}, err
	}
	samples = remixChannels(samples, in.Channels, r.target.Channels)
	samples = resampleLinear(samples, r.target.Channels, in.SampleRate, r.target.SampleRate)

	r.out = encodeSamples(r.out[:0], samples, r.target.Sample)

	// The returned frame sits in the audio player's queue until the
	// device callback consumes it, so it gets its own copy; r.out is
	// overwritten by the next call.
	return media.ResampledAudioFrame{
		Data:        append([]byte(nil), r.out...),
		SampleCount: len(samples) / r.target.Channels,
		PTSSeconds:  in.PTSSeconds,
		SampleRate:  r.target.SampleRate,
		Channels:    r.target.Channels,
		Format:      r.target.Sample,
	}, nil
}

// Reset discards converter internal state on seek (§4.4). The
// converter here is stateless between calls beyond its reused output
// buffer, so Reset only truncates that buffer.
func (r *Resampler) Reset() {
	r.out = r.out[:0]
}

// decodeSamples expands an input buffer into float32 samples,
// interleaved exactly as the source, always landing on a full-sample
// boundary (truncating any trailing partial sample rather than
// panicking, per the teacher's panicOnPartialSampleReads discipline
// with that flag left false).
func decodeSamples(in InputFrame) ([]float32, error) {
	bps := in.Sample.BytesPerSample()
	n := len(in.Data) / bps
	out := make([]float32, n)
	switch in.Sample {
	case media.SampleFormatS16:
		for i := 0; i < n; i++ {
			v := int16(binary.LittleEndian.Uint16(in.Data[i*2:]))
			out[i] = float32(v) / 32768.0
		}
	case media.SampleFormatF32:
		for i := 0; i < n; i++ {
			bits := binary.LittleEndian.Uint32(in.Data[i*4:])
			out[i] = math.Float32frombits(bits)
		}
	default:
		return nil, media.NewError(media.KindCodec, "resample: unsupported source sample format")
	}
	return out, nil
}

// remixChannels up- or down-mixes interleaved samples from srcCh to
// dstCh channels. Mono<->stereo is handled explicitly (duplicate /
// average); anything else truncates or zero-pads channel-wise, which
// is sufficient for the layouts §4.4 targets.
func remixChannels(samples []float32, srcCh, dstCh int) []float32 {
	if srcCh == dstCh {
		return samples
	}
	frames := len(samples) / srcCh
	out := make([]float32, frames*dstCh)
	for f := 0; f < frames; f++ {
		srcFrame := samples[f*srcCh : f*srcCh+srcCh]
		switch {
		case srcCh == 1 && dstCh == 2:
			out[f*2] = srcFrame[0]
			out[f*2+1] = srcFrame[0]
		case srcCh == 2 && dstCh == 1:
			out[f] = (srcFrame[0] + srcFrame[1]) / 2
		default:
			for c := 0; c < dstCh; c++ {
				if c < srcCh {
					out[f*dstCh+c] = srcFrame[c]
				}
			}
		}
	}
	return out
}

// resampleLinear converts the sample rate via linear interpolation.
// Channels are already normalized to dstCh by remixChannels.
func resampleLinear(samples []float32, channels, srcRate, dstRate int) []float32 {
	if srcRate == dstRate || channels == 0 {
		return samples
	}
	srcFrames := len(samples) / channels
	if srcFrames == 0 {
		return samples
	}
	ratio := float64(srcRate) / float64(dstRate)
	dstFrames := int(float64(srcFrames) / ratio)
	out := make([]float32, dstFrames*channels)
	for i := 0; i < dstFrames; i++ {
		srcPos := float64(i) * ratio
		i0 := int(srcPos)
		if i0 >= srcFrames-1 {
			i0 = srcFrames - 2
			if i0 < 0 {
				i0 = 0
			}
		}
		frac := float32(srcPos - float64(i0))
		for c := 0; c < channels; c++ {
			a := samples[i0*channels+c]
			b := a
			if i0+1 < srcFrames {
				b = samples[(i0+1)*channels+c]
			}
			out[i*channels+c] = a + (b-a)*frac
		}
	}
	return out
}

// encodeSamples packs float32 samples into dst using out as a reused
// backing array (§4.4's "reusing its output buffer").
func encodeSamples(out []byte, samples []float32, format media.SampleFormat) []byte {
	bps := format.BytesPerSample()
	need := len(samples) * bps
	if cap(out) < need {
		out = make([]byte, need)
	} else {
		out = out[:need]
	}
	switch format {
	case media.SampleFormatS16:
		for i, s := range samples {
			v := int16(clampFloat(s) * 32767)
			binary.LittleEndian.PutUint16(out[i*2:], uint16(v))
		}
	case media.SampleFormatF32:
		for i, s := range samples {
			binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(s))
		}
	}
	return out
}

func clampFloat(v float32) float32 {
	if v > 1 {
		return 1
	}
	if v < -1 {
		return -1
	}
	return v
}
