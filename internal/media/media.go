package media

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/clipsieve/clipsieve/internal/ports"
	"github.com/clipsieve/clipsieve/internal/types"
)

// UnreadableMediaError is fatal for the job: the source cannot be decoded.
type UnreadableMediaError struct {
	Path string
	Err  error
}

func (e *UnreadableMediaError) Error() string {
	return fmt.Sprintf("unreadable media %s: %v", e.Path, e.Err)
}

func (e *UnreadableMediaError) Unwrap() error { return e.Err }

// OutOfRangeError reports a timestamp outside the source duration. It is a
// contract violation, never expected in normal flow.
type OutOfRangeError struct {
	At       time.Duration
	Duration time.Duration
}

func (e *OutOfRangeError) Error() string {
	return fmt.Sprintf("timestamp %s out of range [0, %s]", e.At, e.Duration)
}

// Codecs the downstream renderer handles without a working copy.
var supportedVideoCodecs = map[string]bool{
	"h264":       true,
	"hevc":       true,
	"vp8":        true,
	"vp9":        true,
	"av1":        true,
	"mpeg4":      true,
	"mpeg2video": true,
}

// SourceMedia is the exclusive handle to one input file for one run. All
// derived temp files live in the run's temp directory and are removed by
// Close on every exit path.
type SourceMedia struct {
	path     string
	workPath string // equals path unless a transcoded copy was needed
	wavPath  string
	info     types.MediaInfo
	video    ports.VideoTool
	tempDir  string
	closed   bool
}

// Open probes and validates the source, creates a transcoded working copy
// when the codec is unsupported, and extracts the mono 16 kHz audio track
// that both analyzers stream from.
func Open(ctx context.Context, path string, video ports.VideoTool, tempDir string) (*SourceMedia, error) {
	info, err := video.Probe(ctx, path)
	if err != nil {
		return nil, &UnreadableMediaError{Path: path, Err: err}
	}
	if !info.HasAudio {
		return nil, &UnreadableMediaError{Path: path, Err: fmt.Errorf("no audio track")}
	}

	m := &SourceMedia{
		path:     path,
		workPath: path,
		info:     info,
		video:    video,
		tempDir:  tempDir,
	}

	if !supportedVideoCodecs[info.VideoCodec] {
		work := filepath.Join(tempDir, "source-transcoded.mp4")
		if err := video.Transcode(ctx, path, work); err != nil {
			return nil, &UnreadableMediaError{Path: path, Err: err}
		}
		m.workPath = work
	}

	wav := filepath.Join(tempDir, "audio.wav")
	if err := video.ExtractAudioMono16k(ctx, m.workPath, wav); err != nil {
		m.Close()
		return nil, &UnreadableMediaError{Path: path, Err: err}
	}
	m.wavPath = wav

	return m, nil
}

func (m *SourceMedia) Info() types.MediaInfo { return m.info }
func (m *SourceMedia) Path() string          { return m.path }

// WorkPath is the file the renderer cuts from.
func (m *SourceMedia) WorkPath() string { return m.workPath }

// WavPath is the extracted mono 16 kHz audio track.
func (m *SourceMedia) WavPath() string { return m.wavPath }

// FrameAt writes the video frame at the given timestamp to outPNG. A
// timestamp inside the final frame clamps to the last full frame start, so
// requesting the exact end of the file still yields a frame.
func (m *SourceMedia) FrameAt(ctx context.Context, at time.Duration, outPNG string) error {
	if at < 0 || at > m.info.Duration {
		return &OutOfRangeError{At: at, Duration: m.info.Duration}
	}
	if fd := m.info.FrameDuration(); fd > 0 && at > m.info.Duration-fd {
		at = m.info.Duration - fd
	}
	return m.video.ExtractFrame(ctx, m.workPath, at, outPNG)
}

// AudioReader returns an independent cursor over the extracted audio track.
// Each reader owns its own file handle, so concurrent consumers never share
// mutable decode state.
func (m *SourceMedia) AudioReader(chunkSamples int) (*AudioReader, error) {
	return newAudioReader(m.wavPath, chunkSamples)
}

// Close removes every temp file the handle owns. Safe to call twice.
func (m *SourceMedia) Close() {
	if m.closed {
		return
	}
	m.closed = true
	if m.wavPath != "" {
		os.Remove(m.wavPath)
	}
	if m.workPath != m.path {
		os.Remove(m.workPath)
	}
}
