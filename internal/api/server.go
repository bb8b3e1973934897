package api

import (
	"context"
	"embed"
	"encoding/json"
	"html/template"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"photorelay/internal/audit"
	"photorelay/internal/hub"
	"photorelay/internal/session"
)

//go:embed templates/*.html
var templatesFS embed.FS

// Server is the plain HTTP surface next to the event channel: the status
// page, the mobile capture page and the health endpoint.
type Server struct {
	sessions *session.Registry
	rooms    *hub.Hub
	uploads  *audit.Store // nil when the upload log is disabled
	router   *mux.Router
	tmpl     *template.Template
}

// HealthResponse is the /health body. Status and ActiveSessions are the
// contract; the rest is additive.
type HealthResponse struct {
	Status         string `json:"status"`
	ActiveSessions int    `json:"active_sessions"`
	Connections    int    `json:"connections"`
	UploadsRelayed int64  `json:"uploads_relayed"`
	Timestamp      string `json:"timestamp"`
}

// NewServer builds the router. wsHandler is mounted at /ws so the whole
// surface shares one listener.
func NewServer(sessions *session.Registry, rooms *hub.Hub, uploads *audit.Store, wsHandler http.Handler) (*Server, error) {
	tmpl, err := template.ParseFS(templatesFS, "templates/*.html")
	if err != nil {
		return nil, err
	}

	s := &Server{
		sessions: sessions,
		rooms:    rooms,
		uploads:  uploads,
		router:   mux.NewRouter(),
		tmpl:     tmpl,
	}

	s.router.Use(corsMiddleware)
	s.router.HandleFunc("/", s.handleIndex).Methods(http.MethodGet)
	s.router.HandleFunc("/upload", s.handleUploadPage).Methods(http.MethodGet)
	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	if wsHandler != nil {
		s.router.Handle("/ws", wsHandler)
	}

	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// handleIndex serves the static status page.
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.tmpl.ExecuteTemplate(w, "index.html", nil); err != nil {
		log.Error().Str("module", "api").Err(err).Msg("status page render failed")
	}
}

// handleUploadPage serves the mobile capture page pre-populated with the
// session identifier from the QR link; without one the page is useless, so
// the request is rejected.
func (s *Server) handleUploadPage(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session")
	w.Header().Set("Content-Type", "text/html; charset=utf-8")

	if sessionID == "" {
		w.WriteHeader(http.StatusBadRequest)
		if err := s.tmpl.ExecuteTemplate(w, "invalid_session.html", nil); err != nil {
			log.Error().Str("module", "api").Err(err).Msg("error page render failed")
		}
		return
	}

	log.Info().Str("module", "api").Str("session_id", sessionID).Msg("upload page accessed")
	if err := s.tmpl.ExecuteTemplate(w, "upload.html", map[string]string{"SessionID": sessionID}); err != nil {
		log.Error().Str("module", "api").Err(err).Msg("upload page render failed")
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:         "healthy",
		ActiveSessions: s.sessions.Count(),
		Connections:    s.rooms.Stats()["connections"],
		Timestamp:      time.Now().UTC().Format(time.RFC3339),
	}

	if s.uploads != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if count, err := s.uploads.CountRelayed(ctx); err != nil {
			log.Warn().Str("module", "api").Err(err).Msg("upload count unavailable")
		} else {
			resp.UploadsRelayed = count
		}
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		log.Error().Str("module", "api").Err(err).Msg("health encode failed")
	}
}

// corsMiddleware mirrors the permissive CORS the upload page relies on when
// opened from arbitrary QR scanner webviews.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}
