// Package server exposes the acquisition engine over HTTP.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"github.com/forPelevin/scribe/internal/drivers/rdb"
	"github.com/forPelevin/scribe/internal/types"
	"github.com/forPelevin/scribe/internal/usecase"
)

// Engine is the part of usecase.Usecase served over HTTP.
type Engine interface {
	Acquire(ctx context.Context, in usecase.Input) (usecase.Result, error)
	Info(ctx context.Context, rawURL string) (types.VideoInfo, error)
	Preload(ctx context.Context, model string) (types.ModelHandle, error)
	Unload() error
	Status() types.ModelHandle
	Sweep(maxAge time.Duration) (int, error)
}

type Options struct {
	Addr string
	// Redis enables the health report and the cross-replica sweep lock.
	Redis *rdb.Service
	// Versions reports external tool versions for the health endpoint.
	Versions func(ctx context.Context) (map[string]string, error)

	SweepInterval time.Duration
	SweepMaxAge   time.Duration
	// ShutdownTimeout bounds draining of in-flight requests.
	ShutdownTimeout time.Duration
}

type Server struct {
	engine   Engine
	opts     Options
	log      logrus.FieldLogger
	validate *validator.Validate

	HttpServer *http.Server
}

func New(engine Engine, opts Options, log logrus.FieldLogger) *Server {
	if log == nil {
		log = logrus.StandardLogger()
	}
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = 30 * time.Second
	}
	s := &Server{
		engine:   engine,
		opts:     opts,
		log:      log,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
	s.HttpServer = &http.Server{
		Addr:              opts.Addr,
		Handler:           s.RegisterRoutes(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       time.Minute,
	}
	return s
}
