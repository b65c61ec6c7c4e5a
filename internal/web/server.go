// Package web exposes the controller's status over HTTP: an HTML page for
// people, the same snapshot as JSON for scripts, and optionally /metrics.
package web

import (
	"context"
	"net"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/sweeney/valve-controller/internal/status"
)

// readHeaderTimeout limits how long a client may take to send its headers.
const readHeaderTimeout = 5 * time.Second

// Server renders snapshots from a status.Tracker.
type Server struct {
	srv     *http.Server
	tracker *status.Tracker
}

// New builds a Server on addr. Routes accept GET and HEAD only; anything else
// gets 405 and unknown paths get 404. metrics, when non-nil, is served at
// /metrics.
func New(addr string, tracker *status.Tracker, metrics http.Handler) *Server {
	s := &Server{tracker: tracker}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.page)
	mux.HandleFunc("GET /index.html", s.page)
	mux.HandleFunc("GET /index.json", s.snapshotJSON)
	if metrics != nil {
		mux.Handle("GET /metrics", metrics)
	}

	s.srv = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: readHeaderTimeout,
	}
	return s
}

// Handler exposes the routes without a listener, for embedding or httptest.
func (s *Server) Handler() http.Handler {
	return s.srv.Handler
}

// ListenAndServe blocks until Shutdown.
func (s *Server) ListenAndServe() error {
	return s.srv.ListenAndServe()
}

// Serve is ListenAndServe on an existing listener.
func (s *Server) Serve(ln net.Listener) error {
	return s.srv.Serve(ln)
}

// Shutdown stops accepting connections and waits for in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func (s *Server) page(w http.ResponseWriter, _ *http.Request) {
	noStore(w, "text/html; charset=utf-8")
	if err := renderHTML(w, s.tracker.Snapshot()); err != nil {
		log.WithError(err).Warn("web: render status page")
	}
}

func (s *Server) snapshotJSON(w http.ResponseWriter, _ *http.Request) {
	noStore(w, "application/json")
	if _, err := w.Write(status.FormatJSON(s.tracker.Snapshot())); err != nil {
		log.WithError(err).Debug("web: write status json")
	}
}

// noStore marks a live status response so browsers and proxies never reuse it.
func noStore(w http.ResponseWriter, contentType string) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "no-store")
}
