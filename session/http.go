// Copyright 2026 The TermuxWC Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func (s *Session) newRouter() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Handle("/websockify", s.viewers.WebSocketHandler())
	r.Method(http.MethodGet, "/metrics", s.exporter.Handler())
	r.Get("/healthz", s.handleHealth)
	r.Get("/status", s.handleStatus)
	return r
}

// handleHealth answers 200 while the bridge is publishing and 503
// once it has stopped.
func (s *Session) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	select {
	case <-s.frames.Done():
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("stopped\n"))
	default:
		w.Write([]byte("ok\n"))
	}
}

func (s *Session) handleStatus(w http.ResponseWriter, r *http.Request) {
	status := s.Status(r.URL.Query().Get("viewers") != "")
	w.Header().Set("Content-Type", "application/json")
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(status); err != nil {
		s.logger.Debug("writing status response", "error", err)
	}
}
