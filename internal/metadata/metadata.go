// Package metadata composes video metadata sources into a fallback chain
// with a shared cache.
package metadata

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/forPelevin/scribe/internal/drivers/rdb"
	"github.com/forPelevin/scribe/internal/ports"
	"github.com/forPelevin/scribe/internal/types"
)

// Chain tries each source in order and returns the first success.
type Chain []ports.Metadata

func (c Chain) Lookup(ctx context.Context, videoID string) (types.VideoInfo, error) {
	if len(c) == 0 {
		return types.VideoInfo{}, errors.New("no metadata source configured")
	}
	var errs []error
	for _, src := range c {
		info, err := src.Lookup(ctx, videoID)
		if err == nil {
			return info, nil
		}
		errs = append(errs, err)
	}
	return types.VideoInfo{}, errors.Join(errs...)
}

// Cached collapses concurrent lookups for the same video and caches
// results in Redis when a service is configured.
type Cached struct {
	next  ports.Metadata
	rdb   *rdb.Service
	ttl   time.Duration
	group singleflight.Group
	log   logrus.FieldLogger
}

func NewCached(next ports.Metadata, rs *rdb.Service, ttl time.Duration, log logrus.FieldLogger) *Cached {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Cached{next: next, rdb: rs, ttl: ttl, log: log}
}

func cacheKey(videoID string) string { return "scribe:video:info:" + videoID }

// sharedLookupTimeout bounds a collapsed lookup, which outlives the caller
// that started it.
const sharedLookupTimeout = 30 * time.Second

// Lookup joins an in-flight lookup for videoID or starts one. The shared
// call runs detached from any single caller; each caller stops waiting when
// its own ctx ends.
func (c *Cached) Lookup(ctx context.Context, videoID string) (types.VideoInfo, error) {
	ch := c.group.DoChan(videoID, func() (any, error) {
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sharedLookupTimeout)
		defer cancel()
		return rdb.GetItems(sctx, c.rdb, cacheKey(videoID), c.ttl, func() (types.VideoInfo, error) {
			return c.next.Lookup(sctx, videoID)
		})
	})
	select {
	case <-ctx.Done():
		return types.VideoInfo{}, fmt.Errorf("metadata %s: %w", videoID, ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return types.VideoInfo{}, fmt.Errorf("metadata %s: %w", videoID, res.Err)
		}
		if res.Shared {
			c.log.WithField("video_id", videoID).Debug("metadata lookup shared")
		}
		return res.Val.(types.VideoInfo), nil
	}
}
