package ffmpeg

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/clipsieve/clipsieve/internal/types"
)

type Adapter struct {
	ffmpeg  string
	ffprobe string
}

func New(ffmpegPath, ffprobePath string) *Adapter {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}
	return &Adapter{ffmpeg: ffmpegPath, ffprobe: ffprobePath}
}

type probeOutput struct {
	Streams []probeStream `json:"streams"`
	Format  probeFormat   `json:"format"`
}

type probeStream struct {
	CodecType    string `json:"codec_type"`
	CodecName    string `json:"codec_name"`
	Width        int    `json:"width"`
	Height       int    `json:"height"`
	SampleRate   string `json:"sample_rate"`
	AvgFrameRate string `json:"avg_frame_rate"`
}

type probeFormat struct {
	Duration string `json:"duration"`
}

func (a *Adapter) Probe(ctx context.Context, path string) (types.MediaInfo, error) {
	cmd := exec.CommandContext(ctx, a.ffprobe,
		"-v", "error",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	)
	b, err := cmd.CombinedOutput()
	if err != nil {
		return types.MediaInfo{}, fmt.Errorf("ffprobe: %w\n%s", err, string(b))
	}
	var out probeOutput
	if err := json.Unmarshal(b, &out); err != nil {
		return types.MediaInfo{}, fmt.Errorf("parse ffprobe output: %w", err)
	}
	return parseProbe(out)
}

func parseProbe(out probeOutput) (types.MediaInfo, error) {
	info := types.MediaInfo{}
	sec, err := strconv.ParseFloat(strings.TrimSpace(out.Format.Duration), 64)
	if err != nil || sec <= 0 {
		return types.MediaInfo{}, fmt.Errorf("no usable duration in probe output")
	}
	info.Duration = time.Duration(sec * float64(time.Second))

	for _, s := range out.Streams {
		switch s.CodecType {
		case "video":
			if info.VideoCodec == "" {
				info.VideoCodec = s.CodecName
				info.Width = s.Width
				info.Height = s.Height
				info.FrameRate = parseFrameRate(s.AvgFrameRate)
			}
		case "audio":
			if !info.HasAudio {
				info.HasAudio = true
				info.AudioCodec = s.CodecName
				info.SampleRate, _ = strconv.Atoi(s.SampleRate)
			}
		}
	}
	if info.VideoCodec == "" {
		return types.MediaInfo{}, fmt.Errorf("no video stream found")
	}
	return info, nil
}

// parseFrameRate converts ffprobe's "num/den" rational to frames per second.
func parseFrameRate(r string) float64 {
	parts := strings.SplitN(r, "/", 2)
	if len(parts) != 2 {
		v, _ := strconv.ParseFloat(r, 64)
		return v
	}
	num, err1 := strconv.ParseFloat(parts[0], 64)
	den, err2 := strconv.ParseFloat(parts[1], 64)
	if err1 != nil || err2 != nil || den == 0 {
		return 0
	}
	return num / den
}

func (a *Adapter) ExtractAudioMono16k(ctx context.Context, in, outWav string) error {
	cmd := exec.CommandContext(ctx, a.ffmpeg,
		"-y",
		"-i", in,
		"-vn",
		"-acodec", "pcm_s16le",
		"-ac", "1",
		"-ar", "16000",
		"-f", "wav",
		outWav,
	)
	b, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("ffmpeg extract audio: %w\n%s", err, string(b))
	}
	return nil
}

// Transcode re-encodes a source whose codec is unsupported downstream into
// a baseline H.264/AAC MP4 working copy.
func (a *Adapter) Transcode(ctx context.Context, in, out string) error {
	cmd := exec.CommandContext(ctx, a.ffmpeg,
		"-y",
		"-i", in,
		"-c:v", "libx264",
		"-preset", "veryfast",
		"-crf", "20",
		"-c:a", "aac",
		"-b:a", "192k",
		out,
	)
	b, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("ffmpeg transcode: %w\n%s", err, string(b))
	}
	return nil
}

func (a *Adapter) RenderClip(ctx context.Context, in string, start, end time.Duration, out string, burnSRT string) error {
	args := []string{
		"-y",
		"-ss", fmtSeconds(start),
		"-to", fmtSeconds(end),
		"-i", in,
	}
	if burnSRT != "" {
		args = append(args, "-vf", "subtitles="+escapeFilterPath(burnSRT))
	}
	args = append(args, codecArgs(out)...)
	args = append(args, out)
	cmd := exec.CommandContext(ctx, a.ffmpeg, args...)
	b, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("ffmpeg render clip: %w\n%s", err, string(b))
	}
	return nil
}

func (a *Adapter) ExtractFrame(ctx context.Context, in string, at time.Duration, outPNG string) error {
	cmd := exec.CommandContext(ctx, a.ffmpeg,
		"-y",
		"-ss", fmtSeconds(at),
		"-i", in,
		"-frames:v", "1",
		outPNG,
	)
	b, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("ffmpeg extract frame: %w\n%s", err, string(b))
	}
	return nil
}

// codecArgs picks encoder settings from the output file extension.
func codecArgs(out string) []string {
	if strings.HasSuffix(out, ".webm") {
		return []string{
			"-c:v", "libvpx-vp9",
			"-crf", "32",
			"-b:v", "0",
			"-c:a", "libopus",
			"-b:a", "128k",
		}
	}
	// mp4 and mkv share the x264/aac settings
	return []string{
		"-c:v", "libx264",
		"-preset", "veryfast",
		"-crf", "18",
		"-c:a", "aac",
		"-b:a", "192k",
	}
}

func fmtSeconds(d time.Duration) string {
	sec := float64(d) / float64(time.Second)
	return strconv.FormatFloat(sec, 'f', 3, 64)
}

func escapeFilterPath(p string) string {
	p = strings.ReplaceAll(p, "\\", "\\\\")
	p = strings.ReplaceAll(p, ":", "\\:")
	return p
}
