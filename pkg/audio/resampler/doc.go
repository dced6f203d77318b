// Package resampler converts raw 16-bit PCM recordings into the mono L16
// stream the meter and the filter stage expect.
//
// The source may be mono or interleaved stereo at any sample rate; stereo
// is averaged down to mono before the rate conversion. When the rates
// already match no resampler is created and mono input passes through
// byte for byte.
//
//	src := resampler.Source{SampleRate: 44100, Stereo: true}
//	r, err := resampler.New(f, src, pcm.L16Mono16K)
//	if err != nil {
//	    return err
//	}
//	defer r.Close()
//	pcm.Copy(stage, r, pcm.L16Mono16K, 0)
package resampler
