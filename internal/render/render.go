package render

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/clipsieve/clipsieve/internal/captions"
	"github.com/clipsieve/clipsieve/internal/ports"
	"github.com/clipsieve/clipsieve/internal/types"
)

// RenderError is a recoverable, per-clip failure: the clip is reported as
// failed but sibling renders continue.
type RenderError struct {
	ClipID string
	Err    error
}

func (e *RenderError) Error() string {
	return fmt.Sprintf("render clip %s: %v", e.ClipID, e.Err)
}

func (e *RenderError) Unwrap() error { return e.Err }

// Renderer cuts candidate windows into standalone output files. RenderAll
// is safe to run with many windows from the same source concurrently: each
// worker owns its own partial output file and shares nothing mutable.
type Renderer struct {
	Video       ports.VideoTool
	OutDir      string
	Format      string
	Captions    bool
	Timeout     time.Duration
	Concurrency int
	Log         zerolog.Logger
}

// RenderAll fans out up to Concurrency workers over the windows. The
// returned clips keep the windows' timeline order; failures are recorded on
// the clip and echoed as warnings.
func (r *Renderer) RenderAll(ctx context.Context, srcPath string, windows []types.CandidateWindow, tr types.Transcript) ([]types.HighlightClip, []types.Warning) {
	clips := make([]types.HighlightClip, len(windows))
	conc := r.Concurrency
	if conc <= 0 {
		conc = 1
	}

	sem := make(chan struct{}, conc)
	var wg sync.WaitGroup
	for i, w := range windows {
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			clips[i] = types.HighlightClip{Window: w, Status: types.RenderFailed, Error: ctx.Err().Error()}
			continue
		}
		wg.Add(1)
		go func(i int, w types.CandidateWindow) {
			defer wg.Done()
			defer func() { <-sem }()
			clips[i] = r.renderOne(ctx, srcPath, w, tr, clipID(i))
		}(i, w)
	}
	wg.Wait()

	var warnings []types.Warning
	for _, c := range clips {
		if c.Status == types.RenderFailed {
			warnings = append(warnings, types.Warning{
				Stage:   "render",
				Start:   c.Window.Start,
				End:     c.Window.End,
				Message: c.Error,
			})
		}
	}
	return clips, warnings
}

func (r *Renderer) renderOne(ctx context.Context, srcPath string, w types.CandidateWindow, tr types.Transcript, id string) types.HighlightClip {
	clip := types.HighlightClip{Window: w}

	cctx := ctx
	if r.Timeout > 0 {
		var cancel context.CancelFunc
		cctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	burnSRT := ""
	if r.Captions {
		srt := captions.RenderSRT(tr, w.Start, w.End)
		if srt != "" {
			path := filepath.Join(r.OutDir, "captions", id+".srt")
			if err := os.WriteFile(path, []byte(srt), 0o644); err != nil {
				return r.failed(clip, id, err)
			}
			burnSRT = path
		}
	}

	finalPath := filepath.Join(r.OutDir, "clips", id+"."+r.Format)
	partial := finalPath + ".partial." + r.Format
	if err := r.Video.RenderClip(cctx, srcPath, w.Start, w.End, partial, burnSRT); err != nil {
		os.Remove(partial)
		return r.failed(clip, id, err)
	}
	if err := os.Rename(partial, finalPath); err != nil {
		os.Remove(partial)
		return r.failed(clip, id, err)
	}

	r.Log.Info().Str("clip", id).Dur("start", w.Start).Dur("end", w.End).
		Float64("score", w.Score).Msg("clip rendered")
	clip.OutputPath = finalPath
	clip.Status = types.RenderOK
	return clip
}

func (r *Renderer) failed(clip types.HighlightClip, id string, err error) types.HighlightClip {
	rerr := &RenderError{ClipID: id, Err: err}
	r.Log.Warn().Err(rerr).Str("clip", id).Msg("clip render failed")
	clip.Status = types.RenderFailed
	clip.Error = rerr.Error()
	return clip
}

func clipID(i int) string { return fmt.Sprintf("%03d", i+1) }
