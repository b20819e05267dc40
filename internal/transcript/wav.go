package transcript

import (
	"fmt"
	"os"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// writeWav persists one chunk of normalized samples as 16-bit mono PCM for
// the ASR binary.
func writeWav(path string, samples []float64, rate int) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create chunk wav: %w", err)
	}
	defer f.Close()

	enc := wav.NewEncoder(f, rate, 16, 1, 1)
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 1, SampleRate: rate},
		Data:           make([]int, len(samples)),
		SourceBitDepth: 16,
	}
	for i, s := range samples {
		if s > 1 {
			s = 1
		} else if s < -1 {
			s = -1
		}
		buf.Data[i] = int(s * 32767)
	}
	if err := enc.Write(buf); err != nil {
		return fmt.Errorf("write chunk wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("finalize chunk wav: %w", err)
	}
	return nil
}

func removeQuiet(path string) {
	_ = os.Remove(path)
}
