package mixer

// Buffer is planar float32 PCM. Every channel has the same length.
type Buffer struct {
	SampleRate int
	Channels   [][]float32
}

// NewBuffer allocates a silent buffer.
func NewBuffer(sampleRate, channels, frames int) *Buffer {
	b := &Buffer{SampleRate: sampleRate, Channels: make([][]float32, channels)}
	for ch := range b.Channels {
		b.Channels[ch] = make([]float32, frames)
	}
	return b
}

// Len returns the number of sample frames per channel.
func (b *Buffer) Len() int {
	if b == nil || len(b.Channels) == 0 {
		return 0
	}
	return len(b.Channels[0])
}

// NumChannels returns the channel count.
func (b *Buffer) NumChannels() int {
	if b == nil {
		return 0
	}
	return len(b.Channels)
}

// Duration returns the buffer length in seconds.
func (b *Buffer) Duration() float64 {
	if b == nil || b.SampleRate <= 0 {
		return 0
	}
	return float64(b.Len()) / float64(b.SampleRate)
}

// Bytes returns the memory held by the sample data.
func (b *Buffer) Bytes() uint64 {
	return uint64(b.Len()) * uint64(b.NumChannels()) * 4
}

// Interleaved returns the samples as frame-interleaved float32.
func (b *Buffer) Interleaved() []float32 {
	n, chans := b.Len(), b.NumChannels()
	out := make([]float32, n*chans)
	for ch, data := range b.Channels {
		for i, v := range data {
			out[i*chans+ch] = v
		}
	}
	return out
}

// FromInterleaved builds a planar buffer from frame-interleaved samples.
// Trailing samples that do not fill a whole frame are dropped.
func FromInterleaved(samples []float32, sampleRate, channels int) *Buffer {
	if channels <= 0 {
		channels = 1
	}
	frames := len(samples) / channels
	b := NewBuffer(sampleRate, channels, frames)
	for i := 0; i < frames; i++ {
		for ch := 0; ch < channels; ch++ {
			b.Channels[ch][i] = samples[i*channels+ch]
		}
	}
	return b
}

// sample returns the value feeding output channel ch of an outChannels
// mix. Mono sources feed every channel; a multichannel source mixed to
// mono is averaged.
func (b *Buffer) sample(ch, outChannels, i int) float64 {
	srcChannels := len(b.Channels)
	switch {
	case srcChannels == 1:
		return float64(b.Channels[0][i])
	case outChannels == 1:
		var sum float64
		for _, data := range b.Channels {
			sum += float64(data[i])
		}
		return sum / float64(srcChannels)
	case ch < srcChannels:
		return float64(b.Channels[ch][i])
	default:
		return float64(b.Channels[srcChannels-1][i])
	}
}
