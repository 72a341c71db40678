package ports

import (
	"context"
	"time"

	"github.com/forPelevin/scribe/internal/types"
)

// CaptionTier is one ranked native caption source. Implementations never
// return errors; transient problems are reported as types.CaptionFailed.
type CaptionTier interface {
	Name() string
	Fetch(ctx context.Context, videoID string, langs []string) types.CaptionResult
}

// AudioSource downloads the best audio stream of a video into outTemplate,
// which carries a "%(ext)s" placeholder for the final extension.
type AudioSource interface {
	DownloadAudio(ctx context.Context, videoID, outTemplate string, maxBytes int64) error
}

type VideoTool interface {
	ExtractAudioMono16k(ctx context.Context, in, outWav string) error
	ProbeDuration(ctx context.Context, in string) (time.Duration, error)
}

type ASR interface {
	Transcribe(ctx context.Context, audioPath string, opts types.TranscribeOptions) (types.Transcript, error)
}

// ModelManager exposes lifecycle control over the recognition model.
type ModelManager interface {
	IsLoaded() bool
	Preload(ctx context.Context, model string) (types.ModelHandle, error)
	Unload() error
	Status() types.ModelHandle
}

type Metadata interface {
	Lookup(ctx context.Context, videoID string) (types.VideoInfo, error)
}

// AudioStore owns downloaded audio files and their removal.
type AudioStore interface {
	Download(ctx context.Context, videoID string) (types.AudioAsset, error)
	Cleanup(asset types.AudioAsset) bool
	Sweep(maxAge time.Duration) (int, error)
}
