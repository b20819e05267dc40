package types

import "time"

// MediaInfo describes a probed source file.
type MediaInfo struct {
	Duration   time.Duration
	SampleRate int
	FrameRate  float64
	Width      int
	Height     int
	VideoCodec string
	AudioCodec string
	HasAudio   bool
}

// FrameDuration returns the duration of a single video frame, or zero when
// the frame rate is unknown.
func (m MediaInfo) FrameDuration() time.Duration {
	if m.FrameRate <= 0 {
		return 0
	}
	return time.Duration(float64(time.Second) / m.FrameRate)
}

// TranscriptSegment is one timed piece of recognized speech. Segments in a
// Transcript never overlap and are ordered by start time.
type TranscriptSegment struct {
	Start      time.Duration `json:"start"`
	End        time.Duration `json:"end"`
	Text       string        `json:"text"`
	Confidence float64       `json:"confidence"`
}

type Transcript struct {
	Segments []TranscriptSegment `json:"segments"`
}

// ExcitementSample is one point of the dense excitement curve. Samples are
// emitted at a fixed hop with monotonically increasing timestamps.
type ExcitementSample struct {
	At    time.Duration
	Score float64
}

// TriggerReason records which signal seeded or contributed to a window.
type TriggerReason string

const (
	TriggerAudioPeak TriggerReason = "audio-peak"
	TriggerKeyword   TriggerReason = "keyword"
	TriggerCombined  TriggerReason = "combined"
)

// CandidateWindow is a candidate highlight time range. Windows are mutable
// while fusion refines them and immutable once handed to the renderer.
type CandidateWindow struct {
	Start   time.Duration
	End     time.Duration
	Score   float64
	Reasons []TriggerReason
}

func (w CandidateWindow) Duration() time.Duration { return w.End - w.Start }

// HasReason reports whether r is among the window's trigger reasons.
func (w CandidateWindow) HasReason(r TriggerReason) bool {
	for _, have := range w.Reasons {
		if have == r {
			return true
		}
	}
	return false
}

type RenderStatus string

const (
	RenderOK     RenderStatus = "ok"
	RenderFailed RenderStatus = "failed"
)

// HighlightClip is the rendered output for one surviving CandidateWindow.
type HighlightClip struct {
	Window     CandidateWindow
	OutputPath string
	Status     RenderStatus
	Error      string
}

// JobStatus is the orchestrator state for one submitted video.
type JobStatus string

const (
	JobQueued    JobStatus = "queued"
	JobDecoding  JobStatus = "decoding"
	JobAnalyzing JobStatus = "analyzing"
	JobFusing    JobStatus = "fusing"
	JobRendering JobStatus = "rendering"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
)

// Warning is a captured unit-level failure that did not abort the job.
type Warning struct {
	Stage   string        `json:"stage"`
	Start   time.Duration `json:"start,omitempty"`
	End     time.Duration `json:"end,omitempty"`
	Message string        `json:"message"`
}

// JobResult is what the pipeline hands back to the delivery layer.
type JobResult struct {
	JobID    string
	Input    string
	OutDir   string
	Status   JobStatus
	Clips    []HighlightClip
	Warnings []Warning
	Err      error
}

// Manifest is the JSON record written next to the rendered clips.
type Manifest struct {
	JobID    string         `json:"job_id"`
	Input    string         `json:"input"`
	Status   string         `json:"status"`
	Clips    []ManifestClip `json:"clips"`
	Warnings []Warning      `json:"warnings,omitempty"`
}

type ManifestClip struct {
	ID       string   `json:"id"`
	StartSec float64  `json:"start_sec"`
	EndSec   float64  `json:"end_sec"`
	Score    float64  `json:"score"`
	Reasons  []string `json:"reasons"`
	File     string   `json:"file"`
	Status   string   `json:"status"`
	Error    string   `json:"error,omitempty"`
}
