package fusion

import (
	"sort"
	"strings"
	"time"

	"github.com/clipsieve/clipsieve/internal/types"
)

// Params configure how the excitement curve and the transcript are fused
// into ranked candidate windows.
type Params struct {
	ExcitementThreshold float64
	PeakNeighborhood    time.Duration
	Vocabulary          []string
	KeywordBaseScore    float64
	PreRoll             time.Duration
	PostRoll            time.Duration
	MinSeparation       time.Duration
	TopK                int // 0 means unset: keep all windows above MinScore
	MinScore            float64
	MinClip             time.Duration
	MaxClip             time.Duration
	Duration            time.Duration // source duration, clamps all windows
}

// Fuse turns the two independent signals into an ordered-by-time sequence
// of candidate windows. It is deterministic: the same inputs always produce
// the same windows. When nothing clears MinScore it returns an empty
// sequence, which is not an error.
func Fuse(samples []types.ExcitementSample, tr types.Transcript, p Params) []types.CandidateWindow {
	peaks := DetectPeaks(samples, p.ExcitementThreshold, p.PeakNeighborhood)
	triggers := DetectTriggers(tr, p.Vocabulary, p.KeywordBaseScore)

	windows := seedWindows(peaks, triggers, p)
	windows = mergeToFixedPoint(windows, p.MinSeparation)
	windows = clampDurations(windows, p)
	windows = mergeToFixedPoint(windows, p.MinSeparation)
	windows = selectTop(windows, p.MinScore, p.TopK)

	sort.Slice(windows, func(i, j int) bool { return windows[i].Start < windows[j].Start })
	return windows
}

// Peak is a local maximum of the excitement curve above the threshold.
type Peak struct {
	At    time.Duration
	Score float64
}

// DetectPeaks finds strict local maxima over the configured neighborhood.
// Among equal-score ties within one neighborhood the earliest timestamp
// wins: a sample is rejected if an earlier neighbor already has its score.
func DetectPeaks(samples []types.ExcitementSample, threshold float64, neighborhood time.Duration) []Peak {
	var peaks []Peak
	for i, s := range samples {
		if s.Score <= threshold {
			continue
		}
		isPeak := true
		for j := i - 1; j >= 0 && s.At-samples[j].At <= neighborhood; j-- {
			if samples[j].Score >= s.Score {
				isPeak = false
				break
			}
		}
		if !isPeak {
			continue
		}
		for j := i + 1; j < len(samples) && samples[j].At-s.At <= neighborhood; j++ {
			if samples[j].Score > s.Score {
				isPeak = false
				break
			}
		}
		if isPeak {
			peaks = append(peaks, Peak{At: s.At, Score: s.Score})
		}
	}
	return peaks
}

// Trigger is a transcript keyword match spanning its segment's time range.
type Trigger struct {
	Start   time.Duration
	End     time.Duration
	Score   float64
	Matches []string
}

// DetectTriggers scans segment text for the vocabulary, case-insensitive
// substring match. Extra matches in one segment raise the score slightly,
// capped at 1.
func DetectTriggers(tr types.Transcript, vocabulary []string, baseScore float64) []Trigger {
	var out []Trigger
	for _, seg := range tr.Segments {
		if seg.Text == "" {
			continue
		}
		text := strings.ToLower(seg.Text)
		var matches []string
		for _, kw := range vocabulary {
			if kw == "" {
				continue
			}
			if strings.Contains(text, strings.ToLower(kw)) {
				matches = append(matches, kw)
			}
		}
		if len(matches) == 0 {
			continue
		}
		score := baseScore + 0.1*float64(len(matches)-1)
		if score > 1 {
			score = 1
		}
		out = append(out, Trigger{Start: seg.Start, End: seg.End, Score: score, Matches: matches})
	}
	return out
}

func seedWindows(peaks []Peak, triggers []Trigger, p Params) []types.CandidateWindow {
	var out []types.CandidateWindow
	for _, pk := range peaks {
		out = append(out, clampWindow(types.CandidateWindow{
			Start:   pk.At - p.PreRoll,
			End:     pk.At + p.PostRoll,
			Score:   pk.Score,
			Reasons: []types.TriggerReason{types.TriggerAudioPeak},
		}, p.Duration))
	}
	for _, tg := range triggers {
		out = append(out, clampWindow(types.CandidateWindow{
			Start:   tg.Start - p.PreRoll,
			End:     tg.End + p.PostRoll,
			Score:   tg.Score,
			Reasons: []types.TriggerReason{types.TriggerKeyword},
		}, p.Duration))
	}
	return out
}

// clampWindow keeps a window inside [0, duration]. A pre-roll reaching
// before zero clamps to zero, never negative.
func clampWindow(w types.CandidateWindow, duration time.Duration) types.CandidateWindow {
	if w.Start < 0 {
		w.Start = 0
	}
	if duration > 0 && w.End > duration {
		w.End = duration
	}
	return w
}

// mergeToFixedPoint merges windows that overlap or sit closer than the
// minimum separation, repeating until no pair qualifies. An explicit
// worklist pass with a change flag keeps termination obvious.
func mergeToFixedPoint(windows []types.CandidateWindow, minSeparation time.Duration) []types.CandidateWindow {
	if len(windows) < 2 {
		return windows
	}
	work := append([]types.CandidateWindow(nil), windows...)
	for {
		sort.Slice(work, func(i, j int) bool {
			if work[i].Start != work[j].Start {
				return work[i].Start < work[j].Start
			}
			return work[i].End < work[j].End
		})

		changed := false
		next := work[:0:0]
		cur := work[0]
		for _, w := range work[1:] {
			if w.Start-cur.End <= minSeparation {
				cur = mergePair(cur, w)
				changed = true
				continue
			}
			next = append(next, cur)
			cur = w
		}
		next = append(next, cur)
		work = next
		if !changed {
			return work
		}
	}
}

// mergePair combines two qualifying windows: the union of their ranges, the
// maximum of their scores, the union of their trigger reasons.
func mergePair(a, b types.CandidateWindow) types.CandidateWindow {
	out := types.CandidateWindow{Start: a.Start, End: a.End, Score: a.Score}
	if b.Start < out.Start {
		out.Start = b.Start
	}
	if b.End > out.End {
		out.End = b.End
	}
	if b.Score > out.Score {
		out.Score = b.Score
	}
	out.Reasons = unionReasons(a.Reasons, b.Reasons)
	return out
}

func unionReasons(a, b []types.TriggerReason) []types.TriggerReason {
	seen := map[types.TriggerReason]bool{}
	var out []types.TriggerReason
	for _, rs := range [][]types.TriggerReason{a, b} {
		for _, r := range rs {
			if r == types.TriggerCombined || seen[r] {
				continue
			}
			seen[r] = true
			out = append(out, r)
		}
	}
	if seen[types.TriggerAudioPeak] && seen[types.TriggerKeyword] {
		out = append(out, types.TriggerCombined)
	}
	return out
}

// clampDurations pads windows shorter than MinClip symmetrically and
// re-centers windows longer than MaxClip on their midpoint.
func clampDurations(windows []types.CandidateWindow, p Params) []types.CandidateWindow {
	if p.MinClip <= 0 && p.MaxClip <= 0 {
		return windows
	}
	out := make([]types.CandidateWindow, 0, len(windows))
	for _, w := range windows {
		d := w.Duration()
		if p.MaxClip > 0 && d > p.MaxClip {
			mid := w.Start + d/2
			w.Start = mid - p.MaxClip/2
			if w.Start < 0 {
				w.Start = 0
			}
			w.End = w.Start + p.MaxClip
		} else if p.MinClip > 0 && d < p.MinClip {
			pad := (p.MinClip - d) / 2
			w.Start -= pad
			w.End += pad
		}
		out = append(out, clampWindow(w, p.Duration))
	}
	return out
}

// selectTop filters by the minimum score, then keeps the top K by score
// (earlier start breaks ties) when K is set.
func selectTop(windows []types.CandidateWindow, minScore float64, topK int) []types.CandidateWindow {
	kept := windows[:0:0]
	for _, w := range windows {
		if w.Score >= minScore {
			kept = append(kept, w)
		}
	}
	sort.Slice(kept, func(i, j int) bool {
		if kept[i].Score != kept[j].Score {
			return kept[i].Score > kept[j].Score
		}
		return kept[i].Start < kept[j].Start
	})
	if topK > 0 && len(kept) > topK {
		kept = kept[:topK]
	}
	return kept
}
