package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/forPelevin/scribe/internal/domain/languages"
	"github.com/forPelevin/scribe/internal/domain/videoid"
	"github.com/forPelevin/scribe/internal/ports"
	"github.com/forPelevin/scribe/internal/types"
)

// DefaultMetadataTimeout applies when Deps.MetadataTimeout is unset.
const DefaultMetadataTimeout = 5 * time.Second

type Deps struct {
	Tiers    []ports.CaptionTier
	Audio    ports.AudioStore
	ASR      ports.ASR
	Models   ports.ModelManager
	Metadata ports.Metadata
	// MetadataTimeout bounds the metadata lookup made while acquiring.
	MetadataTimeout time.Duration
	// Languages is the preference list used when a request names none.
	Languages []string
	Log       logrus.FieldLogger
}

type Usecase struct {
	d        Deps
	captions CaptionFetcher
	log      logrus.FieldLogger
}

func New(d Deps) Usecase {
	if d.Log == nil {
		d.Log = logrus.StandardLogger()
	}
	if len(d.Languages) == 0 {
		d.Languages = languages.DefaultPreferred
	}
	if d.MetadataTimeout <= 0 {
		d.MetadataTimeout = DefaultMetadataTimeout
	}
	return Usecase{d: d, captions: NewCaptionFetcher(d.Log, d.Tiers...), log: d.Log}
}

type Input struct {
	URL               string
	Language          string
	IncludeTimestamps bool
}

type Result struct {
	Transcript     types.Transcript `json:"transcript"`
	Video          types.VideoInfo  `json:"video"`
	WordCount      int              `json:"word_count"`
	ProcessingTime time.Duration    `json:"-"`
}

type resultJSON struct {
	Transcript     types.Transcript `json:"transcript"`
	Video          types.VideoInfo  `json:"video"`
	WordCount      int              `json:"word_count"`
	ProcessingTime float64          `json:"processing_time"`
}

// MarshalJSON reports processing time in seconds.
func (r Result) MarshalJSON() ([]byte, error) {
	return json.Marshal(resultJSON{
		Transcript:     r.Transcript,
		Video:          r.Video,
		WordCount:      r.WordCount,
		ProcessingTime: math.Round(r.ProcessingTime.Seconds()*1000) / 1000,
	})
}

func (r *Result) UnmarshalJSON(b []byte) error {
	var v resultJSON
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*r = Result{
		Transcript:     v.Transcript,
		Video:          v.Video,
		WordCount:      v.WordCount,
		ProcessingTime: time.Duration(v.ProcessingTime * float64(time.Second)),
	}
	return nil
}

// Acquire returns a transcript for the video behind in.URL. Native captions
// are always tried before any audio is downloaded; downloaded audio is
// removed before Acquire returns.
func (u Usecase) Acquire(ctx context.Context, in Input) (Result, error) {
	start := time.Now()
	id, err := videoid.Parse(in.URL)
	if err != nil {
		return Result{}, err
	}
	lang := ""
	if in.Language != "" {
		lang = languages.Tag(in.Language)
	}
	langs := languages.Preferred(lang, u.d.Languages)
	log := u.log.WithField("video_id", id)

	tr, ok := u.captions.Fetch(ctx, id, langs)
	if !ok {
		log.Info("no native captions, falling back to recognition")
		tr, err = u.recognize(ctx, id, lang, in.IncludeTimestamps)
		if err != nil {
			return Result{}, err
		}
	}
	if !in.IncludeTimestamps {
		tr.Segments = nil
	}

	res := Result{
		Transcript: tr,
		Video:      u.videoInfo(ctx, id),
		WordCount:  tr.WordCount(),
	}
	res.ProcessingTime = time.Since(start)
	log.WithFields(logrus.Fields{
		"provenance": tr.Provenance,
		"words":      res.WordCount,
		"elapsed":    res.ProcessingTime.Round(time.Millisecond),
	}).Info("transcript acquired")
	return res, nil
}

func (u Usecase) recognize(ctx context.Context, id, lang string, timestamps bool) (types.Transcript, error) {
	if u.d.Audio == nil || u.d.ASR == nil {
		return types.Transcript{}, types.NewError(types.ErrModelLoadFailed, "transcribe "+id, errors.New("recognition is not configured"))
	}
	asset, err := u.d.Audio.Download(ctx, id)
	if err != nil {
		return types.Transcript{}, err
	}
	defer u.d.Audio.Cleanup(asset)

	return u.d.ASR.Transcribe(ctx, asset.Path, types.TranscribeOptions{
		Language:          lang,
		IncludeTimestamps: timestamps,
	})
}

// videoInfo never fails; lookup errors and timeouts degrade to a placeholder.
func (u Usecase) videoInfo(ctx context.Context, id string) types.VideoInfo {
	if u.d.Metadata == nil {
		return types.PlaceholderInfo(id)
	}
	ctx, cancel := context.WithTimeout(ctx, u.d.MetadataTimeout)
	defer cancel()
	info, err := u.d.Metadata.Lookup(ctx, id)
	if err != nil {
		u.log.WithError(err).WithField("video_id", id).Warn("metadata lookup failed")
		return types.PlaceholderInfo(id)
	}
	return info
}

// Info returns metadata for the video behind rawURL.
func (u Usecase) Info(ctx context.Context, rawURL string) (types.VideoInfo, error) {
	id, err := videoid.Parse(rawURL)
	if err != nil {
		return types.VideoInfo{}, err
	}
	if u.d.Metadata == nil {
		return types.PlaceholderInfo(id), nil
	}
	return u.d.Metadata.Lookup(ctx, id)
}

func (u Usecase) Preload(ctx context.Context, model string) (types.ModelHandle, error) {
	if u.d.Models == nil {
		return types.ModelHandle{}, types.NewError(types.ErrModelLoadFailed, "preload", errors.New("recognition is not configured"))
	}
	return u.d.Models.Preload(ctx, model)
}

func (u Usecase) Unload() error {
	if u.d.Models == nil {
		return nil
	}
	return u.d.Models.Unload()
}

func (u Usecase) Status() types.ModelHandle {
	if u.d.Models == nil {
		return types.ModelHandle{}
	}
	return u.d.Models.Status()
}

// Sweep removes downloaded audio older than maxAge; zero removes all.
func (u Usecase) Sweep(maxAge time.Duration) (int, error) {
	if u.d.Audio == nil {
		return 0, nil
	}
	return u.d.Audio.Sweep(maxAge)
}
