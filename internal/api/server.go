// Package api provides the HTTP administrative surface of the gateway:
// device listing, playback status, and the play/stop/press operations that
// map directly onto a device's audio session controller.
package api

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// Controller is the per-device operation surface the API drives.
// Implemented by doorbell.Controller.
type Controller interface {
	Playing() bool
	Stop() error
	PlayURL(mediaURL string) error
	PlayBytes(data []byte) error
	HandleButtonPress() error
}

// Directory resolves device keys for the API. Unknown keys are reported back
// to the caller as a not-found error by this layer.
type Directory interface {
	Lookup(key string) (Controller, bool)
	Keys() []string
}

// Server is the administrative HTTP server.
type Server struct {
	addr       string
	devices    Directory
	httpServer *http.Server
}

// NewServer creates the administrative API server.
func NewServer(addr string, devices Directory) *Server {
	s := &Server{addr: addr, devices: devices}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /status", s.handleStatus)
	mux.HandleFunc("GET /list", s.handleList)
	mux.HandleFunc("GET /{doorbell}/info", s.handleInfo)
	mux.HandleFunc("POST /{doorbell}/stop", s.handleStop)
	mux.HandleFunc("POST /{doorbell}/play", s.handlePlay)
	mux.HandleFunc("POST /{doorbell}/simulateButtonPress", s.handlePress)
	mux.HandleFunc("POST /{doorbell}/playAudioFile", s.handlePlayAudioFile)

	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: mux,
	}
	return s
}

// Start begins listening for HTTP requests.
func (s *Server) Start() error {
	slog.Info("[API] Starting HTTP server", "addr", s.addr)
	err := s.httpServer.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Stop shuts the server down, letting in-flight requests finish.
func (s *Server) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.httpServer.Shutdown(ctx)
}

// Handler exposes the route table for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "OK"})
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"devices": s.devices.Keys()})
}

func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	ctrl, ok := s.lookup(w, r)
	if !ok {
		return
	}

	state := "idle"
	if ctrl.Playing() {
		state = "playing"
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "OK", "state": state})
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	ctrl, ok := s.lookup(w, r)
	if !ok {
		return
	}

	slog.Info("[API] Stop", "doorbell", r.PathValue("doorbell"))
	if err := ctrl.Stop(); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "OK"})
}

func (s *Server) handlePlay(w http.ResponseWriter, r *http.Request) {
	ctrl, ok := s.lookup(w, r)
	if !ok {
		return
	}

	var body struct {
		MediaID string `json:"media_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.MediaID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"status": "ERROR", "error": "media_id is required"})
		return
	}

	key := r.PathValue("doorbell")
	slog.Info("[API] Play", "doorbell", key, "media_id", body.MediaID)

	// Playback runs for the full length of the source; the request only
	// confirms that it was started.
	go func() {
		if err := ctrl.PlayURL(body.MediaID); err != nil {
			slog.Error("[API] Play ended with error", "doorbell", key, "error", err)
		}
	}()
	writeJSON(w, http.StatusOK, map[string]any{"status": "OK"})
}

func (s *Server) handlePress(w http.ResponseWriter, r *http.Request) {
	ctrl, ok := s.lookup(w, r)
	if !ok {
		return
	}

	slog.Info("[API] Simulated button press", "doorbell", r.PathValue("doorbell"))
	if err := ctrl.HandleButtonPress(); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "OK"})
}

func (s *Server) handlePlayAudioFile(w http.ResponseWriter, r *http.Request) {
	ctrl, ok := s.lookup(w, r)
	if !ok {
		return
	}

	data, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, err)
		return
	}

	key := r.PathValue("doorbell")
	slog.Info("[API] Play audio file", "doorbell", key, "bytes", len(data))

	// Blocks until the payload has been fully consumed, matching the
	// upload-and-wait contract of this endpoint.
	if err := ctrl.PlayBytes(data); err != nil {
		slog.Error("[API] Play audio file ended with error", "doorbell", key, "error", err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "OK"})
}

// lookup resolves the device from the request path, answering the not-found
// error itself when the key is unknown.
func (s *Server) lookup(w http.ResponseWriter, r *http.Request) (Controller, bool) {
	key := r.PathValue("doorbell")
	ctrl, ok := s.devices.Lookup(key)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]any{"status": "ERROR", "error": "doorbell not found"})
		return nil, false
	}
	return ctrl, true
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, http.StatusInternalServerError, map[string]any{"status": "ERROR", "error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		slog.Error("[API] Failed to encode response", "error", err)
	}
}
