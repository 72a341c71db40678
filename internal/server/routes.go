package server

import (
	"net/http"
)

func (s *Server) RegisterRoutes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /transcribe", s.transcribeHandler)
	mux.HandleFunc("POST /video/info", s.videoInfoHandler)
	mux.HandleFunc("POST /model/load", s.modelLoadHandler)
	mux.HandleFunc("POST /model/unload", s.modelUnloadHandler)
	mux.HandleFunc("GET /model", s.modelStatusHandler)
	mux.HandleFunc("DELETE /cleanup", s.cleanupHandler)
	mux.HandleFunc("GET /languages", s.languagesHandler)
	mux.HandleFunc("GET /health", s.healthHandler)
	mux.HandleFunc("GET /{$}", s.rootHandler)

	return chain(s.recoverPanic, s.requestLogger, compress)(mux)
}
