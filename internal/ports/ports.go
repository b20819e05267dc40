package ports

import (
	"context"
	"time"

	"github.com/clipsieve/clipsieve/internal/types"
)

// VideoTool abstracts the external media toolkit (ffmpeg/ffprobe).
type VideoTool interface {
	Probe(ctx context.Context, path string) (types.MediaInfo, error)
	ExtractAudioMono16k(ctx context.Context, in, outWav string) error
	Transcode(ctx context.Context, in, out string) error
	RenderClip(ctx context.Context, in string, start, end time.Duration, out string, burnSRT string) error
	ExtractFrame(ctx context.Context, in string, at time.Duration, outPNG string) error
}

// ASR transcribes one bounded audio chunk. Returned segment timestamps are
// chunk-local; the transcriber shifts them onto the global timeline.
type ASR interface {
	TranscribeChunk(ctx context.Context, wavPath string) ([]types.TranscriptSegment, error)
}
