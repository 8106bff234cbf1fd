package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/bryanchriswhite/wincap/internal/config"
	"github.com/bryanchriswhite/wincap/internal/logger"
	"github.com/bryanchriswhite/wincap/internal/output"
	"github.com/bryanchriswhite/wincap/internal/session"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
)

// Version is reported by /api/health
const Version = "0.1.0"

// DefaultEventInterval is how often /api/capture/events pushes status
const DefaultEventInterval = 250 * time.Millisecond

// Server represents the HTTP API server
type Server struct {
	router     *mux.Router
	sessionMgr *session.Manager
	configMgr  *config.Manager
	stream     *output.MJPEGStream
	upgrader   websocket.Upgrader

	mu         sync.Mutex
	httpServer *http.Server

	// EventInterval paces status pushes on the events websocket
	EventInterval time.Duration
}

// NewServer creates a new API server. stream may be nil to disable /stream.
func NewServer(sessionMgr *session.Manager, configMgr *config.Manager, stream *output.MJPEGStream) *Server {
	s := &Server{
		router:     mux.NewRouter(),
		sessionMgr: sessionMgr,
		configMgr:  configMgr,
		stream:     stream,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // Allow all origins for development
			},
		},
		EventInterval: DefaultEventInterval,
	}

	s.setupRoutes()
	return s
}

// setupRoutes configures the API routes
func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api").Subrouter()

	// Windows
	api.HandleFunc("/windows", s.handleGetWindows).Methods("GET")

	// Capture session
	api.HandleFunc("/capture/start", s.handleStartCapture).Methods("POST")
	api.HandleFunc("/capture/stop", s.handleStopCapture).Methods("POST")
	api.HandleFunc("/capture/status", s.handleCaptureStatus).Methods("GET")
	api.HandleFunc("/capture/frame", s.handleGetFrame).Methods("GET")
	api.HandleFunc("/capture/events", s.handleCaptureEvents)

	// Configuration
	api.HandleFunc("/config", s.handleGetConfig).Methods("GET")
	api.HandleFunc("/config", s.handleUpdateConfig).Methods("PUT")

	// Health check
	api.HandleFunc("/health", s.handleHealth).Methods("GET")

	if s.stream != nil {
		s.router.HandleFunc("/stream", s.stream.Handler()).Methods("GET")
	}

	s.router.PathPrefix("/").HandlerFunc(s.handleIndex)
}

// Handler returns the root handler with CORS applied
func (s *Server) Handler() http.Handler {
	return s.enableCORS(s.router)
}

// Start serves on port until Shutdown is called
func (s *Server) Start(port int) error {
	addr := fmt.Sprintf(":%d", port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.mu.Lock()
	s.httpServer = srv
	s.mu.Unlock()

	logger.WithComponent("api").Info().Msgf("Starting server on http://localhost%s", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting connections and waits for active requests
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv := s.httpServer
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

// enableCORS adds CORS headers
func (s *Server) enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// HTTP Handlers

func (s *Server) handleGetWindows(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.sessionMgr.EnumerateWindows())
}

func (s *Server) handleStartCapture(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Title string `json:"title"`
		Class string `json:"class"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if strings.TrimSpace(req.Title) == "" {
		writeError(w, http.StatusBadRequest, errors.New("title is required"))
		return
	}

	if err := s.sessionMgr.Start(req.Title, req.Class); err != nil {
		writeError(w, startErrorStatus(err), err)
		return
	}

	writeJSON(w, http.StatusOK, s.sessionMgr.Status())
}

func startErrorStatus(err error) int {
	switch {
	case errors.Is(err, session.ErrAlreadyCapturing):
		return http.StatusConflict
	case errors.Is(err, session.ErrWindowNotFound):
		return http.StatusNotFound
	case errors.Is(err, session.ErrPlatformCaptureUnavailable):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func (s *Server) handleStopCapture(w http.ResponseWriter, r *http.Request) {
	s.sessionMgr.StopCapture()
	writeJSON(w, http.StatusOK, s.sessionMgr.Status())
}

func (s *Server) handleCaptureStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.sessionMgr.Status())
}

// handleGetFrame returns the latest frame, or 204 when none is waiting.
// Query: format (png|jpeg|base64|raw), max_width, wait (duration to poll
// for a frame before giving up).
func (s *Server) handleGetFrame(w http.ResponseWriter, r *http.Request) {
	cfg := s.configMgr.Get()
	q := r.URL.Query()

	opts := output.Options{JPEGQuality: cfg.Output.JPEGQuality, MaxWidth: cfg.Output.MaxWidth}
	if v := q.Get("max_width"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, fmt.Errorf("invalid max_width %q", v))
			return
		}
		opts.MaxWidth = n
	}

	enc, err := output.NewEncoder(q.Get("format"), opts)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	b, ok := s.sessionMgr.GetFrame()
	if !ok && q.Get("wait") != "" {
		wait, err := time.ParseDuration(q.Get("wait"))
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Errorf("invalid wait %q", q.Get("wait")))
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), wait)
		b, err = s.sessionMgr.WaitFrame(ctx)
		cancel()
		ok = err == nil
	}
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	w.Header().Set("Content-Type", enc.ContentType())
	w.Header().Set("X-Frame-Width", strconv.Itoa(b.Width()))
	w.Header().Set("X-Frame-Height", strconv.Itoa(b.Height()))
	w.Header().Set("X-Frame-Sequence", strconv.FormatUint(b.Sequence(), 10))
	w.Header().Set("Cache-Control", "no-store")
	if err := enc.Encode(w, b); err != nil {
		logger.WithComponent("api").Warn().Err(err).Str("format", enc.Name()).Msg("Failed to write frame")
	}
}

// handleCaptureEvents pushes the session status over a websocket until the
// client goes away
func (s *Server) handleCaptureEvents(w http.ResponseWriter, r *http.Request) {
	log := logger.WithComponent("api")

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("WebSocket upgrade error")
		return
	}
	defer conn.Close()

	// Drain client messages so close frames are seen
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	interval := s.EventInterval
	if interval <= 0 {
		interval = DefaultEventInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if err := conn.WriteJSON(s.sessionMgr.Status()); err != nil {
			log.Debug().Err(err).Msg("WebSocket write error")
			return
		}
		select {
		case <-gone:
			return
		case <-r.Context().Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.configMgr.Get())
}

func (s *Server) handleUpdateConfig(w http.ResponseWriter, r *http.Request) {
	cfg := s.configMgr.Get()
	if err := json.NewDecoder(r.Body).Decode(cfg); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	if err := s.configMgr.Update(cfg); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	writeJSON(w, http.StatusOK, s.configMgr.Get())
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"version": Version,
	})
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	html := `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <title>wincap</title>
    <style>
        body { font-family: system-ui, sans-serif; max-width: 800px; margin: 50px auto; padding: 20px; }
        code { background: #f5f5f5; padding: 2px 6px; border-radius: 3px; }
    </style>
</head>
<body>
    <h1>wincap</h1>
    <ul>
        <li><a href="/api/health">/api/health</a></li>
        <li><a href="/api/windows">/api/windows</a></li>
        <li><a href="/api/capture/status">/api/capture/status</a></li>
        <li><a href="/api/capture/frame?format=png&wait=1s">/api/capture/frame</a></li>
        <li><a href="/stream">/stream</a></li>
    </ul>
    <p>Start a capture with <code>POST /api/capture/start {"title": "...", "class": "..."}</code>.</p>
</body>
</html>`

	if r.URL.Path == "/" {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(html))
		return
	}

	http.NotFound(w, r)
}
