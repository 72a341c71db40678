package ytdlp

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/forPelevin/scribe/internal/domain/captions"
	"github.com/forPelevin/scribe/internal/types"
)

// dump is the subset of --dump-single-json output the adapter reads.
type dump struct {
	ID                string                       `json:"id"`
	Title             string                       `json:"title"`
	Duration          float64                      `json:"duration"`
	Channel           string                       `json:"channel"`
	Uploader          string                       `json:"uploader"`
	UploadDate        string                       `json:"upload_date"`
	ViewCount         int64                        `json:"view_count"`
	Description       string                       `json:"description"`
	Thumbnail         string                       `json:"thumbnail"`
	Subtitles         map[string][]captions.Format `json:"subtitles"`
	AutomaticCaptions map[string][]captions.Format `json:"automatic_captions"`
}

// SubtitleTier harvests subtitle tracks listed by yt-dlp and downloads the
// chosen one directly over HTTP.
type SubtitleTier struct{ a *Adapter }

func (a *Adapter) SubtitleTier() *SubtitleTier { return &SubtitleTier{a: a} }

func (t *SubtitleTier) Name() string { return "extraction-tool" }

func (t *SubtitleTier) Fetch(ctx context.Context, videoID string, langs []string) types.CaptionResult {
	log := t.a.log.WithFields(logrus.Fields{"tier": t.Name(), "video_id": videoID})

	d, err := t.a.dumpInfo(ctx, videoID)
	if err != nil {
		log.WithError(err).Warn("list subtitles failed")
		return types.Failed(err)
	}

	choice, ok := captions.SelectSubtitle(d.Subtitles, d.AutomaticCaptions, langs)
	if !ok {
		log.Info("no subtitles available")
		return types.Absent()
	}

	raw, err := t.a.http.Get(ctx, choice.Format.URL, nil)
	if err != nil {
		log.WithError(err).WithField("lang", choice.Language).Warn("download subtitle failed")
		return types.Failed(err)
	}
	if len(raw) == 0 {
		log.WithField("lang", choice.Language).Info("subtitle body empty")
		return types.Absent()
	}

	tr, ok := captions.Parse(string(raw), choice.Language)
	if !ok {
		log.WithFields(logrus.Fields{"lang": choice.Language, "ext": choice.Format.Ext}).Info("subtitle has no usable cues")
		return types.Absent()
	}
	tr.Provenance = types.ProvenanceExtraction
	log.WithFields(logrus.Fields{"lang": choice.Language, "segments": len(tr.Segments), "auto": choice.Auto}).Info("subtitle found")
	return types.Found(tr)
}

// dumpInfo queries metadata and subtitle listings without resolving any
// media format. It runs in a scratch directory removed on return.
func (a *Adapter) dumpInfo(ctx context.Context, videoID string) (dump, error) {
	dir, err := os.MkdirTemp("", "scribe-subs-*")
	if err != nil {
		return dump{}, err
	}
	defer func() {
		if err := os.RemoveAll(dir); err != nil {
			a.log.WithError(err).WithField("path", dir).Warn("remove scratch dir failed")
		}
	}()

	args := append(a.baseArgs(),
		"--skip-download",
		"--dump-single-json",
		"--ignore-no-formats-error",
		watchURL(videoID),
	)
	out, _, err := a.run(ctx, dir, args...)
	if err != nil {
		return dump{}, err
	}
	var d dump
	if err := json.Unmarshal(out, &d); err != nil {
		return dump{}, fmt.Errorf("decode yt-dlp json: %w", err)
	}
	return d, nil
}
