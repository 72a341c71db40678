package server

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/forPelevin/scribe/internal/domain/languages"
	"github.com/forPelevin/scribe/internal/usecase"
)

const maxRequestBody = 64 << 10

type TranscribeRequest struct {
	URL               string `json:"url" validate:"required,max=2048"`
	Language          string `json:"language" validate:"omitempty,max=32"`
	IncludeTimestamps bool   `json:"include_timestamps"`
}

type VideoInfoRequest struct {
	URL string `json:"url" validate:"required,max=2048"`
}

type ModelLoadRequest struct {
	Model string `json:"model_name" validate:"omitempty,oneof=tiny base small medium large-v2 large-v3"`
}

// decode reads a JSON body into dst and validates it. It writes the error
// response itself and reports whether the handler may continue.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxRequestBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil && err != io.EOF {
		respondWithError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	if err := s.validate.Struct(dst); err != nil {
		respondWithJSON(w, http.StatusUnprocessableEntity, errorResponse{
			Status:  "error",
			Message: "validation failed",
			Details: formatValidationErrors(err),
		})
		return false
	}
	return true
}

func (s *Server) transcribeHandler(w http.ResponseWriter, r *http.Request) {
	var req TranscribeRequest
	if !s.decode(w, r, &req) {
		return
	}
	res, err := s.engine.Acquire(r.Context(), usecase.Input{
		URL:               req.URL,
		Language:          req.Language,
		IncludeTimestamps: req.IncludeTimestamps,
	})
	if err != nil {
		s.log.WithError(err).WithField("url", req.URL).Warn("transcription request failed")
		respondWithEngineError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, res)
}

func (s *Server) videoInfoHandler(w http.ResponseWriter, r *http.Request) {
	var req VideoInfoRequest
	if !s.decode(w, r, &req) {
		return
	}
	info, err := s.engine.Info(r.Context(), req.URL)
	if err != nil {
		respondWithEngineError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, info)
}

func (s *Server) modelLoadHandler(w http.ResponseWriter, r *http.Request) {
	var req ModelLoadRequest
	if !s.decode(w, r, &req) {
		return
	}
	h, err := s.engine.Preload(r.Context(), req.Model)
	if err != nil {
		respondWithEngineError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, h)
}

func (s *Server) modelUnloadHandler(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.Unload(); err != nil {
		s.log.WithError(err).Warn("unload failed")
	}
	respondWithJSON(w, http.StatusOK, s.engine.Status())
}

func (s *Server) modelStatusHandler(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, s.engine.Status())
}

func (s *Server) cleanupHandler(w http.ResponseWriter, r *http.Request) {
	hours := 24
	if v := r.URL.Query().Get("max_age_hours"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			respondWithError(w, http.StatusBadRequest, "max_age_hours must be a non-negative integer")
			return
		}
		hours = n
	}
	n, err := s.engine.Sweep(time.Duration(hours) * time.Hour)
	if err != nil {
		respondWithEngineError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]any{
		"status":        "success",
		"files_deleted": n,
		"max_age_hours": hours,
	})
}

func (s *Server) languagesHandler(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, map[string]any{
		"supported": languages.Supported,
		"preferred": languages.DefaultPreferred,
	})
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{
		"status": "healthy",
		"model":  s.engine.Status(),
	}
	if s.opts.Redis != nil {
		h := s.opts.Redis.Health(r.Context())
		body["redis"] = h
		if h["status"] != "healthy" {
			body["status"] = "degraded"
		}
	}
	if s.opts.Versions != nil {
		v, err := s.opts.Versions(r.Context())
		if err != nil {
			body["status"] = "degraded"
			body["tools_error"] = err.Error()
		}
		body["tools"] = v
	}
	respondWithJSON(w, http.StatusOK, body)
}

func (s *Server) rootHandler(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, map[string]any{
		"service": "scribe",
		"endpoints": []string{
			"POST /transcribe", "POST /video/info", "POST /model/load",
			"POST /model/unload", "GET /model", "DELETE /cleanup",
			"GET /languages", "GET /health",
		},
	})
}
