package mixer

import (
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

const (
	wavBitDepth  = 16
	wavFormatPCM = 1
)

// EncodeWAV writes b as 16-bit PCM WAV. Samples are clamped to [-1, 1].
func EncodeWAV(w io.WriteSeeker, b *Buffer) error {
	if b == nil || b.NumChannels() == 0 || b.SampleRate <= 0 {
		return errors.New("encode wav: empty buffer")
	}
	chans := b.NumChannels()
	enc := wav.NewEncoder(w, b.SampleRate, wavBitDepth, chans, wavFormatPCM)

	const scale = math.MaxInt16
	data := make([]int, b.Len()*chans)
	for ch, src := range b.Channels {
		for i, v := range src {
			data[i*chans+ch] = int(math.Round(clamp(float64(v)) * scale))
		}
	}
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: chans, SampleRate: b.SampleRate},
		Data:           data,
		SourceBitDepth: wavBitDepth,
	}
	if err := enc.Write(buf); err != nil {
		return fmt.Errorf("encode wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("finalize wav: %w", err)
	}
	return nil
}

// DecodeWAV reads an integer PCM WAV into a float buffer normalized to [-1, 1].
func DecodeWAV(r io.ReadSeeker) (*Buffer, error) {
	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		return nil, errors.New("decode wav: not a valid wav file")
	}
	pcm, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("decode wav: %w", err)
	}
	chans := int(dec.NumChans)
	if chans <= 0 || pcm == nil || pcm.Format == nil {
		return nil, errors.New("decode wav: missing format")
	}
	depth := int(dec.BitDepth)
	if depth == 0 {
		depth = pcm.SourceBitDepth
	}
	frames := len(pcm.Data) / chans
	out := NewBuffer(int(dec.SampleRate), chans, frames)
	for i := 0; i < frames; i++ {
		for ch := 0; ch < chans; ch++ {
			out.Channels[ch][i] = float32(normalizePCM(pcm.Data[i*chans+ch], depth))
		}
	}
	return out, nil
}

func normalizePCM(v, depth int) float64 {
	switch {
	case depth == 8:
		return float64(v-128) / 128
	case depth > 0 && depth <= 32:
		return float64(v) / float64(int64(1)<<(depth-1))
	default:
		return 0
	}
}

func clamp(v float64) float64 {
	switch {
	case v > 1:
		return 1
	case v < -1:
		return -1
	case math.IsNaN(v):
		return 0
	default:
		return v
	}
}
