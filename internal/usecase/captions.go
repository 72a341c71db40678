package usecase

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/forPelevin/scribe/internal/ports"
	"github.com/forPelevin/scribe/internal/types"
)

// CaptionFetcher runs the native caption tiers in order. Each tier is tried
// fully before the next; a failed tier never aborts the chain.
type CaptionFetcher struct {
	tiers []ports.CaptionTier
	log   logrus.FieldLogger
}

func NewCaptionFetcher(log logrus.FieldLogger, tiers ...ports.CaptionTier) CaptionFetcher {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return CaptionFetcher{tiers: tiers, log: log}
}

// Fetch returns the first transcript found, or false when every tier
// came back absent or failed.
func (f CaptionFetcher) Fetch(ctx context.Context, videoID string, langs []string) (types.Transcript, bool) {
	for _, tier := range f.tiers {
		log := f.log.WithFields(logrus.Fields{"video_id": videoID, "tier": tier.Name()})
		res := tier.Fetch(ctx, videoID, langs)
		switch res.Status {
		case types.CaptionFound:
			if len(res.Transcript.Segments) == 0 && res.Transcript.Text == "" {
				log.Debug("tier returned an empty transcript")
				continue
			}
			log.WithField("provenance", res.Transcript.Provenance).Info("captions found")
			return res.Transcript, true
		case types.CaptionFailed:
			log.WithError(res.Err).Warn("caption tier failed")
		default:
			log.Debug("no captions")
		}
		if ctx.Err() != nil {
			break
		}
	}
	return types.Transcript{}, false
}
