package whispercpp

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/forPelevin/scribe/internal/ports"
	"github.com/forPelevin/scribe/internal/types"
)

type Config struct {
	ServerBin    string
	ModelsDir    string
	Model        string
	Device       string
	Threads      int
	BeamSize     int
	BestOf       int
	VADModel     string
	StartTimeout time.Duration
}

// Engine owns the recognition model handle: a whisper-server process
// started on first use and stopped on Unload. Transcriptions hold the read
// lock; load, preload and unload hold the write lock, so an unload waits
// for in-flight work and concurrent first calls load the model once.
type Engine struct {
	cfg      Config
	video    ports.VideoTool
	launcher launcher
	log      logrus.FieldLogger

	mu     sync.RWMutex
	model  string
	srv    server
	handle types.ModelHandle
}

func New(cfg Config, video ports.VideoTool, log logrus.FieldLogger) *Engine {
	if cfg.ServerBin == "" {
		cfg.ServerBin = "whisper-server"
	}
	if cfg.ModelsDir == "" {
		cfg.ModelsDir = ".cache/models"
	}
	if cfg.Model == "" {
		cfg.Model = DefaultPreset
	}
	if cfg.BeamSize <= 0 {
		cfg.BeamSize = 5
	}
	if cfg.BestOf <= 0 {
		cfg.BestOf = 5
	}
	if cfg.StartTimeout <= 0 {
		cfg.StartTimeout = 2 * time.Minute
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	log = log.WithField("component", "recognizer")
	return &Engine{
		cfg:      cfg,
		video:    video,
		launcher: execLauncher{log: log},
		log:      log,
		model:    cfg.Model,
		handle:   types.ModelHandle{ModelName: cfg.Model},
	}
}

func (e *Engine) IsLoaded() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.srv != nil && e.srv.Alive()
}

func (e *Engine) Status() types.ModelHandle {
	e.mu.RLock()
	defer e.mu.RUnlock()
	h := e.handle
	h.Loaded = e.srv != nil && e.srv.Alive()
	if !h.Loaded && h.ModelName != e.model {
		h = types.ModelHandle{ModelName: e.model}
	}
	return h
}

// Preload loads model, replacing a different loaded one. An empty model
// loads the current default. The chosen model becomes the default for
// later lazy loads.
func (e *Engine) Preload(ctx context.Context, model string) (types.ModelHandle, error) {
	if model == "" {
		e.mu.RLock()
		model = e.model
		e.mu.RUnlock()
	}
	if !ValidPreset(model) {
		return types.ModelHandle{}, types.NewError(types.ErrModelLoadFailed, "preload",
			fmt.Errorf("unknown model %q, want one of %s", model, strings.Join(Presets, ", ")))
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.srv != nil && e.srv.Alive() && e.handle.ModelName == model {
		return e.handle, nil
	}
	if _, _, _, err := e.locate(model); err != nil {
		return types.ModelHandle{}, types.NewError(types.ErrModelLoadFailed, "preload "+model, err)
	}

	prevModel, prevHandle := e.model, e.handle
	_ = e.stopLocked()
	if err := e.loadLocked(ctx, model); err != nil {
		// The previous model stays the default and reloads lazily.
		e.model, e.handle = prevModel, prevHandle
		e.handle.Loaded = false
		return types.ModelHandle{}, err
	}
	return e.handle, nil
}

// Unload stops the server process, which releases host and device memory.
func (e *Engine) Unload() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stopLocked()
}

func (e *Engine) stopLocked() error {
	if e.srv == nil {
		return nil
	}
	err := e.srv.Stop()
	e.srv = nil
	e.handle.Loaded = false
	if err != nil {
		e.log.WithError(err).Warn("stop recognition server")
		return err
	}
	e.log.WithField("model", e.handle.ModelName).Info("model unloaded")
	return nil
}

// locate resolves the device and the weights file for model.
func (e *Engine) locate(model string) (device, path, precision string, err error) {
	device, err = resolveDevice(e.cfg.Device)
	if err != nil {
		return "", "", "", err
	}
	path, precision, err = modelFile(e.cfg.ModelsDir, model, device)
	if err != nil {
		return "", "", "", err
	}
	return device, path, precision, nil
}

// loadLocked starts a server for model. Engine state changes only on success.
func (e *Engine) loadLocked(ctx context.Context, model string) error {
	start := time.Now()
	device, path, precision, err := e.locate(model)
	if err != nil {
		return types.NewError(types.ErrModelLoadFailed, "load "+model, err)
	}
	if device == DeviceCPU && precision != "int8" {
		e.log.WithField("model", model).Info("quantized weights not found, using float16 on cpu")
	}

	vad := ""
	if e.cfg.VADModel != "" {
		if _, err := os.Stat(e.cfg.VADModel); err == nil {
			vad = e.cfg.VADModel
		} else {
			e.log.WithField("path", e.cfg.VADModel).Warn("vad model not found, silence filtering disabled")
		}
	}

	startCtx, cancel := context.WithTimeout(ctx, e.cfg.StartTimeout)
	defer cancel()
	srv, err := e.launcher.Start(startCtx, launchSpec{
		Bin:       e.cfg.ServerBin,
		ModelPath: path,
		Threads:   e.cfg.Threads,
		BeamSize:  e.cfg.BeamSize,
		BestOf:    e.cfg.BestOf,
		GPU:       device == DeviceAccelerator,
		VADModel:  vad,
	})
	if err != nil {
		return types.NewError(types.ErrModelLoadFailed, "load "+model, err)
	}

	e.srv, e.model = srv, model
	e.handle = types.ModelHandle{ModelName: model, Device: device, Precision: precision, Loaded: true}
	e.log.WithFields(logrus.Fields{
		"model":     model,
		"device":    device,
		"precision": precision,
		"took":      time.Since(start).Round(time.Millisecond),
	}).Info("model loaded")
	return nil
}

// acquire returns a live server under the read lock, loading it first when
// needed. The caller must call release.
func (e *Engine) acquire(ctx context.Context) (srv server, model string, release func(), err error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, "", nil, err
		}
		e.mu.RLock()
		if e.srv != nil && e.srv.Alive() {
			return e.srv, e.handle.ModelName, e.mu.RUnlock, nil
		}
		e.mu.RUnlock()

		e.mu.Lock()
		if e.srv == nil || !e.srv.Alive() {
			if e.srv != nil {
				e.log.Warn("recognition server died, restarting")
				_ = e.stopLocked()
			}
			if err := e.loadLocked(ctx, e.model); err != nil {
				e.mu.Unlock()
				return nil, "", nil, err
			}
		}
		e.mu.Unlock()
	}
}

// Transcribe converts audioPath to 16 kHz mono WAV and runs recognition.
func (e *Engine) Transcribe(ctx context.Context, audioPath string, opts types.TranscribeOptions) (types.Transcript, error) {
	wav := strings.TrimSuffix(audioPath, ".wav") + ".16k.wav"
	if err := e.video.ExtractAudioMono16k(ctx, audioPath, wav); err != nil {
		return types.Transcript{}, types.NewError(types.ErrTranscriptionFailed, "prepare audio", err)
	}
	defer func() {
		if err := os.Remove(wav); err != nil && !errors.Is(err, os.ErrNotExist) {
			e.log.WithError(err).WithField("path", wav).Warn("remove converted audio")
		}
	}()

	srv, model, release, err := e.acquire(ctx)
	if err != nil {
		return types.Transcript{}, err
	}
	start := time.Now()
	resp, err := infer(ctx, srv.URL(), wav, opts.Language)
	release()
	if err != nil {
		return types.Transcript{}, types.NewError(types.ErrTranscriptionFailed, "transcribe", err)
	}

	tr := resp.transcript(opts.Language)
	if tr.Duration <= 0 {
		if d, err := e.video.ProbeDuration(ctx, wav); err == nil {
			tr.Duration = d.Seconds()
		} else if n := len(tr.Segments); n > 0 {
			tr.Duration = tr.Segments[n-1].End
		}
	}
	tr.Provenance = types.RecognitionProvenance(model)
	if !opts.IncludeTimestamps {
		tr.Segments = nil
	}
	e.log.WithFields(logrus.Fields{
		"model":    model,
		"language": tr.Language,
		"duration": tr.Duration,
		"took":     time.Since(start).Round(time.Millisecond),
	}).Info("transcription complete")
	return tr, nil
}
