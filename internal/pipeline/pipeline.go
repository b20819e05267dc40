package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clipsieve/clipsieve/internal/config"
	"github.com/clipsieve/clipsieve/internal/excitement"
	"github.com/clipsieve/clipsieve/internal/fusion"
	"github.com/clipsieve/clipsieve/internal/logging"
	"github.com/clipsieve/clipsieve/internal/media"
	"github.com/clipsieve/clipsieve/internal/ports"
	"github.com/clipsieve/clipsieve/internal/ports/adapters/ffmpeg"
	"github.com/clipsieve/clipsieve/internal/ports/adapters/whispercpp"
	"github.com/clipsieve/clipsieve/internal/render"
	"github.com/clipsieve/clipsieve/internal/resource"
	"github.com/clipsieve/clipsieve/internal/transcript"
	"github.com/clipsieve/clipsieve/internal/types"
)

// audioChunkSamples bounds how much decoded audio each reader holds at once.
const audioChunkSamples = 64 * 1024

// Orchestrator sequences decode, analysis, fusion and rendering per
// submitted video and owns the job-scoped temp resources.
type Orchestrator struct {
	cfg   config.Config
	video ports.VideoTool
	asr   ports.ASR
	res   *resource.Manager
	log   zerolog.Logger
}

// New wires the production adapters.
func New(cfg config.Config) *Orchestrator {
	return NewWithPorts(cfg,
		ffmpeg.New(cfg.FFmpeg.FFmpegPath, cfg.FFmpeg.FFprobePath),
		whispercpp.New(cfg.Whisper.BinaryPath, cfg.Whisper.ModelPath, cfg.Whisper.Language),
		resource.NewManager(cfg.Limits.JobConcurrency, cfg.Limits.TempQuotaBytes),
	)
}

// NewWithPorts wires explicit ports; tests inject fakes here.
func NewWithPorts(cfg config.Config, video ports.VideoTool, asr ports.ASR, res *resource.Manager) *Orchestrator {
	return &Orchestrator{
		cfg:   cfg,
		video: video,
		asr:   asr,
		res:   res,
		log:   logging.WithComponent("pipeline"),
	}
}

// validTransitions is the job state machine. Every job ends in Completed or
// Failed; Failed is reachable from every working state.
var validTransitions = map[types.JobStatus][]types.JobStatus{
	types.JobQueued:    {types.JobDecoding, types.JobFailed},
	types.JobDecoding:  {types.JobAnalyzing, types.JobFailed},
	types.JobAnalyzing: {types.JobFusing, types.JobFailed},
	types.JobFusing:    {types.JobRendering, types.JobCompleted, types.JobFailed},
	types.JobRendering: {types.JobCompleted, types.JobFailed},
}

type job struct {
	id     string
	input  string
	status types.JobStatus
	log    zerolog.Logger
}

func (j *job) transition(to types.JobStatus) {
	allowed := false
	for _, s := range validTransitions[j.status] {
		if s == to {
			allowed = true
			break
		}
	}
	if !allowed {
		j.log.Error().Str("from", string(j.status)).Str("to", string(to)).
			Msg("invalid state transition")
	}
	j.status = to
	j.log.Info().Str("stage", string(to)).Msg("job stage")
}

// Submit runs one video through the full pipeline. The returned result is
// always terminal: Completed (possibly with zero clips and warnings) or
// Failed with a single root cause in Err.
func (o *Orchestrator) Submit(ctx context.Context, input string) types.JobResult {
	j := &job{
		id:     uuid.NewString()[:8],
		input:  input,
		status: types.JobQueued,
	}
	j.log = o.log.With().Str("job", j.id).Str("input", input).Logger()
	j.log.Info().Msg("job queued")

	releaseJob, err := o.res.AcquireJob(ctx)
	if err != nil {
		return o.fail(j, fmt.Errorf("acquire worker slot: %w", err))
	}
	defer releaseJob()

	st, err := os.Stat(input)
	if err != nil {
		return o.fail(j, &media.UnreadableMediaError{Path: input, Err: err})
	}
	// Working copy + extracted wav + chunk files, with slack.
	lease, err := o.res.AcquireTemp(3 * st.Size())
	if err != nil {
		return o.fail(j, err)
	}
	defer lease.Release()

	tempDir, err := os.MkdirTemp(o.cfg.Paths.Temp, "clipsieve-"+j.id+"-")
	if err != nil {
		return o.fail(j, fmt.Errorf("create temp dir: %w", err))
	}
	defer os.RemoveAll(tempDir)

	return o.run(ctx, j, tempDir)
}

func (o *Orchestrator) run(ctx context.Context, j *job, tempDir string) types.JobResult {
	// Decoding. A source that cannot be opened fails the whole job: there
	// is no usable media to analyze.
	j.transition(types.JobDecoding)
	src, err := media.Open(ctx, j.input, o.video, tempDir)
	if err != nil {
		return o.fail(j, err)
	}
	defer src.Close()

	info := src.Info()
	j.log.Info().Dur("duration", info.Duration).Str("video_codec", info.VideoCodec).
		Float64("fps", info.FrameRate).Msg("media opened")

	// Analyzing. The excitement analyzer and the transcriber run as two
	// concurrent consumers, each with its own cursor over the immutable
	// extracted audio.
	j.transition(types.JobAnalyzing)
	curve, tr, warnings, err := o.analyze(ctx, src, tempDir)
	if err != nil {
		return o.fail(j, err)
	}
	if ctx.Err() != nil {
		return o.fail(j, ctx.Err())
	}

	// Fusing.
	j.transition(types.JobFusing)
	windows := fusion.Fuse(curve, tr, o.fusionParams(info.Duration))
	j.log.Info().Int("windows", len(windows)).Msg("fusion complete")
	if ctx.Err() != nil {
		return o.fail(j, ctx.Err())
	}

	outDir, err := o.prepareOutDir(j.input)
	if err != nil {
		return o.fail(j, err)
	}

	if len(windows) == 0 {
		// Nothing cleared the score floor: the job completes with zero
		// clips rather than failing.
		j.transition(types.JobCompleted)
		res := o.result(j, outDir, nil, warnings, nil)
		o.writeManifest(res)
		return res
	}

	// Rendering.
	j.transition(types.JobRendering)
	renderer := &render.Renderer{
		Video:       o.video,
		OutDir:      outDir,
		Format:      o.cfg.Render.OutputFormat,
		Captions:    o.cfg.Render.CaptionsEnabled,
		Timeout:     config.Seconds(o.cfg.Render.TimeoutSeconds),
		Concurrency: o.cfg.Render.Concurrency,
		Log:         o.log.With().Str("job", j.id).Str("component", "render").Logger(),
	}
	clips, renderWarnings := renderer.RenderAll(ctx, src.WorkPath(), windows, tr)
	warnings = append(warnings, renderWarnings...)

	rendered := 0
	for _, c := range clips {
		if c.Status == types.RenderOK {
			rendered++
		}
	}
	if rendered == 0 {
		// A cancelled context fails every render; report the cancellation
		// itself, not the renders it took down.
		cause := fmt.Errorf("all %d clip renders failed", len(clips))
		if ctx.Err() != nil {
			cause = ctx.Err()
		}
		res := o.fail(j, cause)
		res.OutDir = outDir
		res.Clips = clips
		res.Warnings = warnings
		o.writeManifest(res)
		return res
	}

	j.transition(types.JobCompleted)
	res := o.result(j, outDir, clips, warnings, nil)
	o.writeManifest(res)
	j.log.Info().Int("clips", rendered).Int("warnings", len(warnings)).Msg("job completed")
	return res
}

// analyze runs both audio consumers concurrently and joins their results.
func (o *Orchestrator) analyze(ctx context.Context, src *media.SourceMedia, tempDir string) ([]types.ExcitementSample, types.Transcript, []types.Warning, error) {
	exciteReader, err := src.AudioReader(audioChunkSamples)
	if err != nil {
		return nil, types.Transcript{}, nil, err
	}
	defer exciteReader.Close()

	asrReader, err := src.AudioReader(audioChunkSamples)
	if err != nil {
		return nil, types.Transcript{}, nil, err
	}
	defer asrReader.Close()

	var (
		wg        sync.WaitGroup
		curve     []types.ExcitementSample
		curveErr  error
		tr        types.Transcript
		warnings  []types.Warning
		transcErr error
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		curve, curveErr = excitement.Analyze(exciteReader, excitement.Params{
			EnergyWeight:    o.cfg.Detection.EnergyWeight,
			FluxWeight:      o.cfg.Detection.FluxWeight,
			SmoothingFactor: o.cfg.Detection.SmoothingFactor,
			Baseline:        config.Seconds(o.cfg.Detection.BaselineSeconds),
		})
	}()
	go func() {
		defer wg.Done()
		t := &transcript.Transcriber{
			ASR:           o.asr,
			ChunkLen:      config.Seconds(o.cfg.Whisper.ChunkSeconds),
			ChunkTimeout:  config.Seconds(o.cfg.Whisper.ChunkTimeoutSeconds),
			TempDir:       tempDir,
			MinConfidence: 0.3,
			Log:           o.log.With().Str("component", "transcriber").Logger(),
		}
		tr, warnings, transcErr = t.Transcribe(ctx, asrReader)
	}()
	wg.Wait()

	if curveErr != nil {
		return nil, types.Transcript{}, warnings, fmt.Errorf("excitement analysis: %w", curveErr)
	}
	if transcErr != nil {
		return nil, types.Transcript{}, warnings, fmt.Errorf("transcription stream: %w", transcErr)
	}
	return curve, tr, warnings, nil
}

func (o *Orchestrator) fusionParams(duration time.Duration) fusion.Params {
	f := o.cfg.Fusion
	return fusion.Params{
		ExcitementThreshold: f.ExcitementThreshold,
		PeakNeighborhood:    config.Seconds(f.PeakNeighborhoodSeconds),
		Vocabulary:          f.TriggerVocabulary,
		KeywordBaseScore:    f.KeywordBaseScore,
		PreRoll:             config.Seconds(f.PreRollSeconds),
		PostRoll:            config.Seconds(f.PostRollSeconds),
		MinSeparation:       config.Seconds(f.MinSeparationSeconds),
		TopK:                f.TopK,
		MinScore:            f.MinScore,
		MinClip:             config.Seconds(f.MinClipSeconds),
		MaxClip:             config.Seconds(f.MaxClipSeconds),
		Duration:            duration,
	}
}

func (o *Orchestrator) prepareOutDir(input string) (string, error) {
	outDir := buildRunOutDir(o.cfg.Paths.Output, input, time.Now().UTC())
	for _, sub := range []string{"clips", "captions"} {
		if err := os.MkdirAll(filepath.Join(outDir, sub), 0o755); err != nil {
			return "", fmt.Errorf("create output dir: %w", err)
		}
	}
	return outDir, nil
}

func (o *Orchestrator) fail(j *job, err error) types.JobResult {
	j.transition(types.JobFailed)
	j.log.Error().Err(err).Msg("job failed")
	return types.JobResult{
		JobID:  j.id,
		Input:  j.input,
		Status: types.JobFailed,
		Err:    err,
	}
}

func (o *Orchestrator) result(j *job, outDir string, clips []types.HighlightClip, warnings []types.Warning, err error) types.JobResult {
	return types.JobResult{
		JobID:    j.id,
		Input:    j.input,
		OutDir:   outDir,
		Status:   j.status,
		Clips:    clips,
		Warnings: warnings,
		Err:      err,
	}
}

func (o *Orchestrator) writeManifest(res types.JobResult) {
	m := BuildManifest(res)
	b, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		o.log.Warn().Err(err).Msg("marshal manifest")
		return
	}
	path := filepath.Join(res.OutDir, "manifest.json")
	if err := os.WriteFile(path, b, 0o644); err != nil {
		o.log.Warn().Err(err).Str("path", path).Msg("write manifest")
	}
}

// BuildManifest converts a job result into its on-disk JSON form. Clip file
// paths are relative to the run directory.
func BuildManifest(res types.JobResult) types.Manifest {
	m := types.Manifest{
		JobID:    res.JobID,
		Input:    res.Input,
		Status:   string(res.Status),
		Warnings: res.Warnings,
	}
	for i, c := range res.Clips {
		mc := types.ManifestClip{
			ID:       fmt.Sprintf("%03d", i+1),
			StartSec: c.Window.Start.Seconds(),
			EndSec:   c.Window.End.Seconds(),
			Score:    c.Window.Score,
			Status:   string(c.Status),
			Error:    c.Error,
		}
		for _, r := range c.Window.Reasons {
			mc.Reasons = append(mc.Reasons, string(r))
		}
		if c.OutputPath != "" {
			mc.File = filepath.ToSlash(filepath.Join("clips", filepath.Base(c.OutputPath)))
		}
		m.Clips = append(m.Clips, mc)
	}
	return m
}

func buildRunOutDir(outRoot, input string, now time.Time) string {
	name := strings.TrimSuffix(filepath.Base(input), filepath.Ext(input))
	name = normalizePathSegment(name)
	if name == "" {
		name = "input"
	}
	ts := now.UTC().Format("20060102-150405Z")
	runSeed := fmt.Sprintf("%s|%d", input, now.UTC().UnixNano())
	suffix := hash(runSeed)[:6]
	return filepath.Join(outRoot, fmt.Sprintf("%s-%s-%s", name, ts, suffix))
}

func normalizePathSegment(s string) string {
	var b strings.Builder
	prevDash := false
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r):
			b.WriteRune(r)
			prevDash = false
		default:
			if !prevDash {
				b.WriteByte('-')
				prevDash = true
			}
		}
	}
	return strings.Trim(b.String(), "-")
}

func hash(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])[:12]
}

// ensure adapters implement ports
var _ ports.VideoTool = (*ffmpeg.Adapter)(nil)
var _ ports.ASR = (*whispercpp.Adapter)(nil)
var _ media.SampleSource = (*media.AudioReader)(nil)
