package whispercpp

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/clipsieve/clipsieve/internal/types"
)

// Adapter runs the whisper.cpp binary on one audio chunk at a time.
type Adapter struct {
	bin      string
	model    string
	language string
}

func New(binPath, modelPath, language string) *Adapter {
	if language == "" {
		language = "auto"
	}
	return &Adapter{bin: binPath, model: modelPath, language: language}
}

// chunkResult mirrors the JSON written by whisper.cpp with -oj.
type chunkResult struct {
	Segments []chunkSegment `json:"segments"`
}

type chunkSegment struct {
	Start      float64 `json:"start"`
	End        float64 `json:"end"`
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
}

func (a *Adapter) TranscribeChunk(ctx context.Context, wavPath string) ([]types.TranscriptSegment, error) {
	outPrefix := strings.TrimSuffix(wavPath, filepath.Ext(wavPath))
	args := []string{
		"-m", a.model,
		"-f", wavPath,
		"-l", a.language,
		"-oj",
		"-of", outPrefix,
	}
	cmd := exec.CommandContext(ctx, a.bin, args...)
	b, err := cmd.CombinedOutput()
	if err != nil {
		return nil, fmt.Errorf("whisper.cpp failed: %w\n%s", err, string(b))
	}

	jb, err := os.ReadFile(outPrefix + ".json")
	if err != nil {
		return nil, fmt.Errorf("read whisper output: %w", err)
	}
	defer os.Remove(outPrefix + ".json")

	return ParseResult(jb)
}

// ParseResult decodes whisper.cpp JSON into chunk-local segments.
func ParseResult(jb []byte) ([]types.TranscriptSegment, error) {
	var res chunkResult
	if err := json.Unmarshal(jb, &res); err != nil {
		return nil, fmt.Errorf("parse whisper output: %w", err)
	}
	out := make([]types.TranscriptSegment, 0, len(res.Segments))
	for _, s := range res.Segments {
		text := strings.TrimSpace(s.Text)
		if text == "" || s.End <= s.Start {
			continue
		}
		conf := s.Confidence
		if conf <= 0 || conf > 1 {
			// Older whisper.cpp builds omit the field; treat as fully trusted
			// rather than dropping the segment.
			conf = 1
		}
		out = append(out, types.TranscriptSegment{
			Start:      dur(s.Start),
			End:        dur(s.End),
			Text:       text,
			Confidence: conf,
		})
	}
	return out, nil
}

func dur(sec float64) time.Duration { return time.Duration(sec * float64(time.Second)) }
