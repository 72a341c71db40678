package server

import (
	"context"
	"time"

	"github.com/google/uuid"
)

const sweepLockKey = "scribe:lock:sweep"

// runSweeper removes stale audio every SweepInterval until ctx ends. With
// Redis configured only one replica sweeps per interval.
func (s *Server) runSweeper(ctx context.Context) {
	if s.opts.SweepInterval <= 0 {
		return
	}
	ticker := time.NewTicker(s.opts.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweepOnce(ctx)
		}
	}
}

func (s *Server) sweepOnce(ctx context.Context) {
	log := s.log.WithField("task", "sweep")
	if s.opts.Redis != nil {
		lock := s.opts.Redis.NewLock(sweepLockKey, uuid.NewString(), s.opts.SweepInterval)
		ok, err := lock.TryLock(ctx)
		if err != nil {
			log.WithError(err).Warn("sweep lock unavailable, sweeping locally")
		} else if !ok {
			log.Debug("sweep held by another replica")
			return
		} else {
			defer func() {
				if err := lock.Unlock(context.WithoutCancel(ctx)); err != nil {
					log.WithError(err).Warn("release sweep lock")
				}
			}()
		}
	}
	n, err := s.engine.Sweep(s.opts.SweepMaxAge)
	if err != nil {
		log.WithError(err).Warn("sweep failed")
		return
	}
	log.WithField("removed", n).Debug("sweep done")
}
