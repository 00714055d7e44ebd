package web

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/fitroom/fitroom/internal/notify"
	"github.com/fitroom/fitroom/internal/preview"
	"github.com/fitroom/fitroom/internal/run"
	"github.com/fitroom/fitroom/internal/settings"
	"github.com/fitroom/fitroom/internal/stylist"
	"github.com/fitroom/fitroom/internal/wardrobe"
)

// Deps carries everything the HTTP surface needs. All fields are required.
type Deps struct {
	Settings   *settings.Store
	Anchor     *wardrobe.AnchorSlot
	Collection *wardrobe.Collection
	Previews   *preview.Registry
	Notices    *notify.Queue
	Monitor    *stylist.Monitor
	Runner     *run.Runner
	Logger     *slog.Logger
}

type Server struct {
	settings   *settings.Store
	anchor     *wardrobe.AnchorSlot
	collection *wardrobe.Collection
	previews   *preview.Registry
	notices    *notify.Queue
	monitor    *stylist.Monitor
	runner     *run.Runner
	logger     *slog.Logger
	mux        *http.ServeMux
}

func NewServer(d Deps) *Server {
	s := &Server{
		settings:   d.Settings,
		anchor:     d.Anchor,
		collection: d.Collection,
		previews:   d.Previews,
		notices:    d.Notices,
		monitor:    d.Monitor,
		runner:     d.Runner,
		logger:     d.Logger,
		mux:        http.NewServeMux(),
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /api/state", s.handleState)
	s.mux.HandleFunc("GET /api/health", s.handleHealth)
	s.mux.HandleFunc("POST /api/anchor", s.handleSetAnchor)
	s.mux.HandleFunc("DELETE /api/anchor", s.handleClearAnchor)
	s.mux.HandleFunc("POST /api/wardrobe/{category}", s.handleAddWardrobe)
	s.mux.HandleFunc("DELETE /api/wardrobe/{category}/{index}", s.handleRemoveWardrobe)
	s.mux.HandleFunc("DELETE /api/session", s.handleClearSession)
	s.mux.HandleFunc("POST /api/runs/catalog", s.handleRunCatalog)
	s.mux.HandleFunc("POST /api/runs/wardrobe", s.handleRunWardrobe)
	s.mux.HandleFunc("DELETE /api/runs/{workflow}", s.handleCancelRun)
	s.mux.HandleFunc("GET /api/settings", s.handleGetSettings)
	s.mux.HandleFunc("PUT /api/settings", s.handlePutSettings)
	s.mux.HandleFunc("DELETE /api/notifications/{id}", s.handleDismissNotification)
	s.mux.HandleFunc("GET /previews/{token}", s.handlePreview)
}

// securityHeaders adds defensive HTTP response headers to every response.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		h.Set("Content-Security-Policy", "default-src 'none'; img-src 'self'; connect-src 'self'")
		next.ServeHTTP(w, r)
	})
}

// statusRecorder wraps http.ResponseWriter to capture the written status code.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func requestLogger(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	requestLogger(s.logger, securityHeaders(s.mux)).ServeHTTP(w, r)
}

// HTTPServer returns a configured *http.Server serving s at addr. The caller
// owns its lifecycle; write timeouts cover slow preview downloads.
func (s *Server) HTTPServer(addr string) *http.Server {
	return &http.Server{
		Addr:         addr,
		Handler:      s,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, data any) {
	s.writeJSONStatus(w, http.StatusOK, data)
}

func (s *Server) writeJSONStatus(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error("failed to encode response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, message string, code int) {
	s.writeJSONStatus(w, code, map[string]string{"error": message})
}
