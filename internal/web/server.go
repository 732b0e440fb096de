// Package web serves the device status page while the device is awake.
package web

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/thefoeyouknow/Teams-Pod/internal/status"
)

// readHeaderTimeout bounds slow clients; the device may sleep at any time.
const readHeaderTimeout = 5 * time.Second

// Server serves the status page, its JSON form and a health probe.
type Server struct {
	httpServer *http.Server
	tracker    *status.Tracker
}

// New creates a Server that reads state from the given tracker.
func New(addr string, tracker *status.Tracker) *Server {
	s := &Server{tracker: tracker}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("GET /index.html", s.handleIndex)
	mux.HandleFunc("GET /index.json", s.handleJSON)
	mux.HandleFunc("GET /healthz", s.handleHealth)

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: readHeaderTimeout,
	}
	return s
}

// Handler returns the request router.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// ListenAndServe blocks until the server is shut down.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Shutdown stops the server before the device halts.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	renderHTML(w, s.tracker.Snapshot())
}

func (s *Server) handleJSON(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write(status.FormatJSON(s.tracker.Snapshot()))
}

// handleHealth is 200 only while the device is showing live presence.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	snap := s.tracker.Snapshot()
	state := snap.State
	if state == "" {
		state = "BOOT"
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	if state != "RUNNING" {
		w.WriteHeader(http.StatusServiceUnavailable)
		if snap.ErrorTitle != "" {
			fmt.Fprintf(w, "%s: %s\n", state, snap.ErrorTitle)
			return
		}
	}
	fmt.Fprintln(w, state)
}
