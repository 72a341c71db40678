package ytdlp

import (
	"context"
	"strconv"
	"strings"

	"github.com/forPelevin/scribe/internal/types"
)

// DownloadAudio fetches the best audio stream and transcodes it to the
// configured lossy format. outTemplate must end in ".%(ext)s".
func (a *Adapter) DownloadAudio(ctx context.Context, videoID, outTemplate string, maxBytes int64) error {
	args := append(a.baseArgs(),
		"-f", "bestaudio/best",
		"-x",
		"--audio-format", a.cfg.AudioFormat,
		"--audio-quality", a.cfg.AudioQuality,
		"-o", outTemplate,
	)
	if maxBytes > 0 {
		args = append(args, "--max-filesize", strconv.FormatInt(maxBytes, 10))
	}
	args = append(args, watchURL(videoID))

	stdout, stderr, err := a.run(ctx, "", args...)
	out := string(stdout) + "\n" + string(stderr)
	if kind := classify(out); kind != nil {
		return types.NewError(kind, "download "+videoID, err)
	}
	if err != nil {
		if ctx.Err() != nil {
			return types.NewError(types.ErrNetwork, "download "+videoID, ctx.Err())
		}
		return types.NewError(types.ErrNetwork, "download "+videoID, err)
	}
	return nil
}

// classify maps yt-dlp output to a download failure kind. A nil result
// means the output carries no known failure marker.
func classify(out string) *types.Kind {
	lo := strings.ToLower(out)
	switch {
	case strings.Contains(lo, "larger than max-filesize"):
		return types.ErrSizeExceeded
	case strings.Contains(lo, "requested format is not available"),
		strings.Contains(lo, "no video formats found"),
		strings.Contains(lo, "video unavailable"),
		strings.Contains(lo, "private video"):
		return types.ErrFormatUnavailable
	}
	return nil
}
