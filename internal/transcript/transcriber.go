package transcript

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/clipsieve/clipsieve/internal/media"
	"github.com/clipsieve/clipsieve/internal/ports"
	"github.com/clipsieve/clipsieve/internal/types"
)

// TranscriptionError is a recoverable, unit-level failure: one chunk failed
// but the job continues with an empty segment for that range.
type TranscriptionError struct {
	Start time.Duration
	End   time.Duration
	Err   error
}

func (e *TranscriptionError) Error() string {
	return fmt.Sprintf("transcription failed for [%s, %s]: %v", e.Start, e.End, e.Err)
}

func (e *TranscriptionError) Unwrap() error { return e.Err }

// stitchEpsilon is how close to a chunk boundary two segments must sit to be
// considered split by the chunking rather than by a real pause.
const stitchEpsilon = 300 * time.Millisecond

// Transcriber runs ASR over the audio stream in bounded-length chunks and
// aligns the per-chunk output onto the global timeline.
type Transcriber struct {
	ASR           ports.ASR
	ChunkLen      time.Duration
	ChunkTimeout  time.Duration
	TempDir       string
	MinConfidence float64
	Log           zerolog.Logger
}

// Transcribe consumes its own cursor over the audio track. Unit failures
// become warnings, never errors; the error return covers only stream-level
// I/O problems.
func (t *Transcriber) Transcribe(ctx context.Context, r media.SampleSource) (types.Transcript, []types.Warning, error) {
	rate := r.SampleRate()
	chunkSamples := int(t.ChunkLen.Seconds() * float64(rate))
	if chunkSamples <= 0 {
		return types.Transcript{}, nil, fmt.Errorf("chunk length must be > 0")
	}

	var (
		tr       types.Transcript
		warnings []types.Warning
		pending  []float64
		offset   time.Duration
		chunkIdx int
	)

	flush := func(samples []float64) {
		if len(samples) == 0 {
			return
		}
		chunkDur := time.Duration(len(samples)) * time.Second / time.Duration(rate)
		segs, warn := t.processChunk(ctx, chunkIdx, offset, chunkDur, samples, rate)
		if warn != nil {
			warnings = append(warnings, *warn)
		}
		tr.Segments = stitch(tr.Segments, segs, offset)
		offset += chunkDur
		chunkIdx++
	}

	for {
		chunk, err := r.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return types.Transcript{}, warnings, err
		}
		pending = append(pending, chunk.Samples...)
		for len(pending) >= chunkSamples {
			flush(pending[:chunkSamples])
			pending = pending[chunkSamples:]
		}
	}
	flush(pending)

	return tr, warnings, nil
}

// processChunk transcribes one chunk. On failure it returns an empty
// segment spanning the chunk plus a warning describing the range.
func (t *Transcriber) processChunk(ctx context.Context, idx int, offset, chunkDur time.Duration, samples []float64, rate int) ([]types.TranscriptSegment, *types.Warning) {
	wavPath := filepath.Join(t.TempDir, fmt.Sprintf("chunk-%04d.wav", idx))

	segs, err := t.runChunk(ctx, wavPath, samples, rate)
	if err != nil {
		terr := &TranscriptionError{Start: offset, End: offset + chunkDur, Err: err}
		t.Log.Warn().Err(terr).Dur("start", offset).Dur("end", offset+chunkDur).
			Msg("transcription chunk failed")
		empty := []types.TranscriptSegment{{Start: offset, End: offset + chunkDur}}
		return empty, &types.Warning{
			Stage:   "transcribe",
			Start:   offset,
			End:     offset + chunkDur,
			Message: terr.Error(),
		}
	}

	out := make([]types.TranscriptSegment, 0, len(segs))
	for _, s := range segs {
		s.Start += offset
		s.End += offset
		if s.End > offset+chunkDur {
			s.End = offset + chunkDur
		}
		if s.End <= s.Start {
			continue
		}
		if s.Confidence < t.MinConfidence || isNoiseText(s.Text) {
			continue
		}
		out = append(out, s)
	}
	return out, nil
}

func (t *Transcriber) runChunk(ctx context.Context, wavPath string, samples []float64, rate int) ([]types.TranscriptSegment, error) {
	if err := writeWav(wavPath, samples, rate); err != nil {
		return nil, err
	}
	defer removeQuiet(wavPath)

	cctx := ctx
	if t.ChunkTimeout > 0 {
		var cancel context.CancelFunc
		cctx, cancel = context.WithTimeout(ctx, t.ChunkTimeout)
		defer cancel()
	}
	return t.ASR.TranscribeChunk(cctx, wavPath)
}

// stitch appends the new chunk's segments, merging a segment pair that the
// chunk boundary split mid-sentence: adjoining in time, and the earlier text
// does not end a sentence.
func stitch(have, add []types.TranscriptSegment, boundary time.Duration) []types.TranscriptSegment {
	if len(have) > 0 && len(add) > 0 {
		prev := &have[len(have)-1]
		next := add[0]
		if prev.Text != "" && next.Text != "" &&
			boundary-prev.End <= stitchEpsilon && prev.End <= boundary &&
			next.Start-boundary <= stitchEpsilon &&
			!endsSentence(prev.Text) {
			prev.Text = prev.Text + " " + next.Text
			prev.End = next.End
			if next.Confidence < prev.Confidence {
				prev.Confidence = next.Confidence
			}
			add = add[1:]
		}
	}

	for _, s := range add {
		if len(have) > 0 && s.Start < have[len(have)-1].End {
			s.Start = have[len(have)-1].End
			if s.End <= s.Start {
				continue
			}
		}
		have = append(have, s)
	}
	return have
}

func endsSentence(text string) bool {
	text = strings.TrimSpace(text)
	if text == "" {
		return false
	}
	switch text[len(text)-1] {
	case '.', '!', '?':
		return true
	}
	return false
}

// isNoiseText flags gibberish the ASR tends to produce on game audio:
// too-short fragments and near-single-character repetition.
func isNoiseText(text string) bool {
	t := strings.ToLower(strings.TrimSpace(text))
	if len(t) < 2 {
		return true
	}
	compact := strings.ReplaceAll(t, " ", "")
	if len(compact) > 3 {
		unique := map[rune]bool{}
		for _, r := range compact {
			unique[r] = true
		}
		if len(unique) <= 2 {
			return true
		}
	}
	return false
}
