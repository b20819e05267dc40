package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/clipsieve/clipsieve/internal/config"
	"github.com/clipsieve/clipsieve/internal/resource"
	"github.com/clipsieve/clipsieve/internal/types"
)

// fakeVideoTool satisfies the full port. Audio extraction writes a real
// silent WAV so both analyzers stream real samples.
type fakeVideoTool struct {
	audioSeconds int
	renderErr    error
	renderHook   func() error
	probeErr     error
}

func (f *fakeVideoTool) Probe(_ context.Context, _ string) (types.MediaInfo, error) {
	if f.probeErr != nil {
		return types.MediaInfo{}, f.probeErr
	}
	return types.MediaInfo{
		Duration:   time.Duration(f.audioSeconds) * time.Second,
		VideoCodec: "h264",
		AudioCodec: "aac",
		HasAudio:   true,
		Width:      1280,
		Height:     720,
		FrameRate:  30,
	}, nil
}

func (f *fakeVideoTool) Transcode(_ context.Context, _, out string) error {
	return os.WriteFile(out, []byte("copy"), 0o644)
}

func (f *fakeVideoTool) ExtractAudioMono16k(_ context.Context, _, out string) error {
	const rate = 16000
	fh, err := os.Create(out)
	if err != nil {
		return err
	}
	enc := wav.NewEncoder(fh, rate, 16, 1, 1)
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 1, SampleRate: rate},
		Data:           make([]int, rate*f.audioSeconds),
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		fh.Close()
		return err
	}
	if err := enc.Close(); err != nil {
		fh.Close()
		return err
	}
	return fh.Close()
}

func (f *fakeVideoTool) RenderClip(_ context.Context, _ string, _, _ time.Duration, out, _ string) error {
	if f.renderHook != nil {
		return f.renderHook()
	}
	if f.renderErr != nil {
		return f.renderErr
	}
	return os.WriteFile(out, []byte("clip"), 0o644)
}

func (f *fakeVideoTool) ExtractFrame(context.Context, string, time.Duration, string) error {
	return nil
}

type fakeASR struct {
	segments []types.TranscriptSegment
	err      error
}

func (f *fakeASR) TranscribeChunk(context.Context, string) ([]types.TranscriptSegment, error) {
	return f.segments, f.err
}

func testConfig(t *testing.T) config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Paths.Output = t.TempDir()
	cfg.Paths.Temp = t.TempDir()
	return cfg
}

func inputFile(t *testing.T) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "stream recording.mp4")
	if err := os.WriteFile(p, []byte("pretend video bytes"), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func quota(bytes int64) *resource.Manager { return resource.NewManager(1, bytes) }

func TestSubmit_KeywordHighlight_Completes(t *testing.T) {
	cfg := testConfig(t)
	video := &fakeVideoTool{audioSeconds: 30}
	asr := &fakeASR{segments: []types.TranscriptSegment{
		{Start: time.Second, End: 3 * time.Second, Text: "what a headshot", Confidence: 0.9},
	}}
	o := NewWithPorts(cfg, video, asr, quota(1<<30))

	res := o.Submit(context.Background(), inputFile(t))
	if res.Status != types.JobCompleted {
		t.Fatalf("status = %s, err = %v", res.Status, res.Err)
	}
	if len(res.Clips) != 1 {
		t.Fatalf("expected 1 clip, got %d", len(res.Clips))
	}
	c := res.Clips[0]
	if c.Status != types.RenderOK {
		t.Fatalf("clip not rendered: %+v", c)
	}
	if !c.Window.HasReason(types.TriggerKeyword) {
		t.Fatalf("clip should carry the keyword reason, got %v", c.Window.Reasons)
	}
	if _, err := os.Stat(c.OutputPath); err != nil {
		t.Fatalf("clip file missing: %v", err)
	}
}

func TestSubmit_SilentNoSpeech_CompletesWithZeroClips(t *testing.T) {
	cfg := testConfig(t)
	video := &fakeVideoTool{audioSeconds: 10}
	o := NewWithPorts(cfg, video, &fakeASR{}, quota(1<<30))

	res := o.Submit(context.Background(), inputFile(t))
	if res.Status != types.JobCompleted {
		t.Fatalf("uneventful input must complete, got %s (%v)", res.Status, res.Err)
	}
	if len(res.Clips) != 0 {
		t.Fatalf("expected zero clips, got %d", len(res.Clips))
	}
	if _, err := os.Stat(filepath.Join(res.OutDir, "manifest.json")); err != nil {
		t.Fatalf("manifest must be written even with zero clips: %v", err)
	}
}

func TestSubmit_ASRFailure_WarnsButCompletes(t *testing.T) {
	cfg := testConfig(t)
	video := &fakeVideoTool{audioSeconds: 10}
	asr := &fakeASR{err: errors.New("model load failed")}
	o := NewWithPorts(cfg, video, asr, quota(1<<30))

	res := o.Submit(context.Background(), inputFile(t))
	if res.Status != types.JobCompleted {
		t.Fatalf("chunk-level ASR failure must not fail the job, got %s (%v)", res.Status, res.Err)
	}
	found := false
	for _, w := range res.Warnings {
		if w.Stage == "transcribe" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a transcribe warning, got %v", res.Warnings)
	}
}

func TestSubmit_TempQuotaExhausted_FailsBeforeWork(t *testing.T) {
	cfg := testConfig(t)
	video := &fakeVideoTool{audioSeconds: 10}
	o := NewWithPorts(cfg, video, &fakeASR{}, quota(4))

	res := o.Submit(context.Background(), inputFile(t))
	if res.Status != types.JobFailed {
		t.Fatalf("expected failure, got %s", res.Status)
	}
	var ee *resource.ExhaustedError
	if !errors.As(res.Err, &ee) {
		t.Fatalf("expected ExhaustedError, got %v", res.Err)
	}
}

func TestSubmit_UnreadableInput_Fails(t *testing.T) {
	cfg := testConfig(t)
	o := NewWithPorts(cfg, &fakeVideoTool{}, &fakeASR{}, quota(1<<30))

	res := o.Submit(context.Background(), filepath.Join(t.TempDir(), "missing.mp4"))
	if res.Status != types.JobFailed {
		t.Fatalf("expected failure for missing input, got %s", res.Status)
	}
}

func TestSubmit_ProbeFailure_Fails(t *testing.T) {
	cfg := testConfig(t)
	video := &fakeVideoTool{probeErr: errors.New("corrupt container")}
	o := NewWithPorts(cfg, video, &fakeASR{}, quota(1<<30))

	res := o.Submit(context.Background(), inputFile(t))
	if res.Status != types.JobFailed {
		t.Fatalf("expected failure, got %s", res.Status)
	}
}

func TestSubmit_AllRendersFail_JobFails(t *testing.T) {
	cfg := testConfig(t)
	video := &fakeVideoTool{audioSeconds: 30, renderErr: errors.New("encoder crashed")}
	asr := &fakeASR{segments: []types.TranscriptSegment{
		{Start: time.Second, End: 3 * time.Second, Text: "headshot", Confidence: 0.9},
	}}
	o := NewWithPorts(cfg, video, asr, quota(1<<30))

	res := o.Submit(context.Background(), inputFile(t))
	if res.Status != types.JobFailed {
		t.Fatalf("expected failure when every render fails, got %s", res.Status)
	}
	if res.Err == nil || !strings.Contains(res.Err.Error(), "renders failed") {
		t.Fatalf("unexpected error: %v", res.Err)
	}
	if len(res.Clips) == 0 {
		t.Fatal("failed clips should still be reported")
	}
}

func TestSubmit_CancelledMidRender_ReportsCancellation(t *testing.T) {
	cfg := testConfig(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	video := &fakeVideoTool{audioSeconds: 30}
	video.renderHook = func() error {
		cancel()
		return context.Canceled
	}
	asr := &fakeASR{segments: []types.TranscriptSegment{
		{Start: time.Second, End: 3 * time.Second, Text: "headshot", Confidence: 0.9},
	}}
	o := NewWithPorts(cfg, video, asr, quota(1<<30))

	res := o.Submit(ctx, inputFile(t))
	if res.Status != types.JobFailed {
		t.Fatalf("expected failure, got %s", res.Status)
	}
	if !errors.Is(res.Err, context.Canceled) {
		t.Fatalf("root cause should be the cancellation, got %v", res.Err)
	}
}

func TestSubmit_WritesManifest(t *testing.T) {
	cfg := testConfig(t)
	video := &fakeVideoTool{audioSeconds: 30}
	asr := &fakeASR{segments: []types.TranscriptSegment{
		{Start: time.Second, End: 3 * time.Second, Text: "triple kill", Confidence: 0.9},
	}}
	o := NewWithPorts(cfg, video, asr, quota(1<<30))

	res := o.Submit(context.Background(), inputFile(t))
	if res.Status != types.JobCompleted {
		t.Fatalf("status = %s (%v)", res.Status, res.Err)
	}

	b, err := os.ReadFile(filepath.Join(res.OutDir, "manifest.json"))
	if err != nil {
		t.Fatalf("read manifest: %v", err)
	}
	var m types.Manifest
	if err := json.Unmarshal(b, &m); err != nil {
		t.Fatalf("parse manifest: %v", err)
	}
	if m.JobID != res.JobID || m.Status != string(types.JobCompleted) {
		t.Fatalf("manifest header mismatch: %+v", m)
	}
	if len(m.Clips) != 1 || m.Clips[0].File != "clips/001."+cfg.Render.OutputFormat {
		t.Fatalf("manifest clip mismatch: %+v", m.Clips)
	}
}

func TestSubmit_TempFilesRemoved(t *testing.T) {
	cfg := testConfig(t)
	video := &fakeVideoTool{audioSeconds: 10}
	o := NewWithPorts(cfg, video, &fakeASR{}, quota(1<<30))

	res := o.Submit(context.Background(), inputFile(t))
	if res.Status != types.JobCompleted {
		t.Fatalf("status = %s (%v)", res.Status, res.Err)
	}

	entries, err := os.ReadDir(cfg.Paths.Temp)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Fatalf("temp dir not cleaned up: %v", entries)
	}
	if used := o.res.TempUsed(); used != 0 {
		t.Fatalf("temp reservation leaked: %d bytes", used)
	}
}

func TestBuildRunOutDir(t *testing.T) {
	now := time.Date(2025, 4, 12, 9, 30, 0, 0, time.UTC)
	got := buildRunOutDir("out", "/rec/My Stream (final)!!.mkv", now)
	base := filepath.Base(got)
	if !strings.HasPrefix(base, "my-stream-final-20250412-093000Z-") {
		t.Fatalf("unexpected run dir name %q", base)
	}

	other := buildRunOutDir("out", "/rec/My Stream (final)!!.mkv", now.Add(time.Nanosecond))
	if got == other {
		t.Fatal("distinct runs must get distinct directories")
	}
}

func TestNormalizePathSegment(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"My Clip.mp4", "my-clip-mp4"},
		{"  spaced   out  ", "spaced-out"},
		{"___", ""},
		{"Ünïcode Name", "ünïcode-name"},
	}
	for _, tt := range tests {
		if got := normalizePathSegment(tt.in); got != tt.want {
			t.Fatalf("normalizePathSegment(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestJobTransitions(t *testing.T) {
	j := &job{status: types.JobQueued}
	for _, s := range []types.JobStatus{
		types.JobDecoding, types.JobAnalyzing, types.JobFusing,
		types.JobRendering, types.JobCompleted,
	} {
		allowed := false
		for _, n := range validTransitions[j.status] {
			if n == s {
				allowed = true
			}
		}
		if !allowed {
			t.Fatalf("happy path transition %s -> %s not allowed", j.status, s)
		}
		j.status = s
	}
	for from := range validTransitions {
		found := false
		for _, n := range validTransitions[from] {
			if n == types.JobFailed {
				found = true
			}
		}
		if !found {
			t.Fatalf("%s cannot reach Failed", from)
		}
	}
}
