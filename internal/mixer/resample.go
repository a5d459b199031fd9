package mixer

import "math"

// Resample converts b to rate with linear interpolation. The result depends
// only on the input samples and rates. b is returned unchanged when the
// rates already match.
func Resample(b *Buffer, rate int) *Buffer {
	if b == nil || rate <= 0 || b.SampleRate == rate || b.SampleRate <= 0 {
		return b
	}
	n := b.Len()
	outLen := int(math.Round(float64(n) * float64(rate) / float64(b.SampleRate)))
	out := NewBuffer(rate, b.NumChannels(), outLen)
	if n == 0 {
		return out
	}
	step := float64(b.SampleRate) / float64(rate)
	for ch, src := range b.Channels {
		dst := out.Channels[ch]
		for i := range dst {
			pos := float64(i) * step
			j := int(pos)
			if j >= n-1 {
				dst[i] = src[n-1]
				continue
			}
			frac := pos - float64(j)
			dst[i] = float32(float64(src[j]) + (float64(src[j+1])-float64(src[j]))*frac)
		}
	}
	return out
}
