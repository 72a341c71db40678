package ytdlp

import (
	"context"

	"github.com/forPelevin/scribe/internal/types"
)

const maxDescription = 500

// Lookup returns video metadata from the yt-dlp info dump.
func (a *Adapter) Lookup(ctx context.Context, videoID string) (types.VideoInfo, error) {
	d, err := a.dumpInfo(ctx, videoID)
	if err != nil {
		return types.VideoInfo{}, err
	}
	channel := d.Channel
	if channel == "" {
		channel = d.Uploader
	}
	id := d.ID
	if id == "" {
		id = videoID
	}
	desc := []rune(d.Description)
	if len(desc) > maxDescription {
		desc = desc[:maxDescription]
	}
	return types.VideoInfo{
		ID:          id,
		Title:       d.Title,
		Duration:    int(d.Duration),
		Channel:     channel,
		UploadDate:  d.UploadDate,
		ViewCount:   d.ViewCount,
		Description: string(desc),
		Thumbnail:   d.Thumbnail,
	}, nil
}
