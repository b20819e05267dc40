package media

import (
	"fmt"
	"io"
	"math"
	"os"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// Chunk is one fixed-size block of decoded mono samples. Samples are
// normalized to [-1, 1].
type Chunk struct {
	Start   time.Duration
	Samples []float64
}

// SampleSource is a cursor over decoded mono samples. Every consumer gets
// its own source, so concurrent readers never share decode state.
type SampleSource interface {
	SampleRate() int
	Next() (Chunk, error)
}

// AudioReader streams a WAV file in bounded chunks so long recordings are
// never materialized in one buffer.
type AudioReader struct {
	f          *os.File
	dec        *wav.Decoder
	buf        *audio.IntBuffer
	scale      float64
	sampleRate int
	pos        int64 // samples consumed so far
}

func newAudioReader(wavPath string, chunkSamples int) (*AudioReader, error) {
	if chunkSamples <= 0 {
		return nil, fmt.Errorf("chunk size must be > 0")
	}
	f, err := os.Open(wavPath)
	if err != nil {
		return nil, fmt.Errorf("open audio: %w", err)
	}
	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		f.Close()
		return nil, fmt.Errorf("invalid wav file: %s", wavPath)
	}
	return &AudioReader{
		f:   f,
		dec: dec,
		buf: &audio.IntBuffer{
			Format:         dec.Format(),
			Data:           make([]int, chunkSamples),
			SourceBitDepth: int(dec.BitDepth),
		},
		scale:      math.Pow(2, float64(dec.BitDepth-1)),
		sampleRate: int(dec.SampleRate),
	}, nil
}

// SampleRate reports the decoded stream's sample rate.
func (r *AudioReader) SampleRate() int { return r.sampleRate }

// Next returns the next chunk. The final chunk may be shorter than the
// configured size; after it, Next returns io.EOF.
func (r *AudioReader) Next() (Chunk, error) {
	n, err := r.dec.PCMBuffer(r.buf)
	if err != nil {
		return Chunk{}, fmt.Errorf("decode audio: %w", err)
	}
	if n == 0 {
		return Chunk{}, io.EOF
	}
	samples := make([]float64, n)
	for i := 0; i < n; i++ {
		samples[i] = float64(r.buf.Data[i]) / r.scale
	}
	start := time.Duration(r.pos) * time.Second / time.Duration(r.sampleRate)
	r.pos += int64(n)
	return Chunk{Start: start, Samples: samples}, nil
}

func (r *AudioReader) Close() error { return r.f.Close() }
