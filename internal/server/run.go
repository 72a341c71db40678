package server

import (
	"context"
	"errors"
	"net/http"
)

// Run serves until ctx is cancelled, then drains in-flight requests and
// runs cleanup.
func (s *Server) Run(ctx context.Context, cleanup func() error) error {
	sweepCtx, stopSweep := context.WithCancel(ctx)
	defer stopSweep()
	go s.runSweeper(sweepCtx)

	errCh := make(chan error, 1)
	go func() {
		s.log.WithField("addr", s.HttpServer.Addr).Info("server listening")
		err := s.HttpServer.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		errCh <- err
	}()

	var serveErr error
	select {
	case serveErr = <-errCh:
	case <-ctx.Done():
		s.log.Info("shutting down gracefully")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.opts.ShutdownTimeout)
		defer cancel()
		if err := s.HttpServer.Shutdown(shutdownCtx); err != nil {
			s.log.WithError(err).Warn("server forced to shutdown")
		}
		serveErr = <-errCh
	}
	stopSweep()

	if cleanup != nil {
		if err := cleanup(); err != nil {
			s.log.WithError(err).Warn("cleanup failed")
		}
	}
	s.log.Info("server stopped")
	return serveErr
}
