// Package server is the browser front end: document upload and extraction,
// free-form questions over a websocket, and the Xero invoices pages.
package server

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/xhad/docbot/pkg/extract"
	"github.com/xhad/docbot/pkg/loader"
	"github.com/xhad/docbot/pkg/session"
	"github.com/xhad/docbot/pkg/xero"
	"go.uber.org/zap"
)

//go:embed templates/*.html
var templateFS embed.FS

const sessionCookie = "docbot_session"

type Config struct {
	Addr          string
	MaxUploadMB   int
	SecureCookie  bool
	SweepInterval time.Duration
}

// Deps are the services the handlers drive. Xero may be nil when the
// integration is not configured.
type Deps struct {
	Loader    *loader.Loader
	Extractor *extract.Extractor
	Sessions  *session.Store
	Xero      *xero.Client
}

type Server struct {
	config    Config
	loader    *loader.Loader
	extractor *extract.Extractor
	sessions  *session.Store
	xero      *xero.Client
	pages     *template.Template
	router    *mux.Router
	upgrader  websocket.Upgrader
	logger    *zap.Logger
}

func New(config Config, deps Deps, logger *zap.Logger) (*Server, error) {
	if config.MaxUploadMB <= 0 {
		config.MaxUploadMB = 10
	}
	if config.SweepInterval <= 0 {
		config.SweepInterval = 5 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if deps.Loader == nil || deps.Extractor == nil || deps.Sessions == nil {
		return nil, errors.New("server needs a loader, an extractor and a session store")
	}

	pages, err := template.ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("failed to parse templates: %w", err)
	}

	s := &Server{
		config:    config,
		loader:    deps.Loader,
		extractor: deps.Extractor,
		sessions:  deps.Sessions,
		xero:      deps.Xero,
		pages:     pages,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		logger: logger,
	}
	s.routes()
	return s, nil
}

func (s *Server) routes() {
	r := mux.NewRouter()
	r.HandleFunc("/", s.handleIndex).Methods(http.MethodGet)
	r.HandleFunc("/select", s.handleSelect).Methods(http.MethodPost)
	r.HandleFunc("/upload", s.handleUpload).Methods(http.MethodPost)
	r.HandleFunc("/ask", s.handleAsk).Methods(http.MethodPost)
	r.HandleFunc("/ws", s.handleWebSocket).Methods(http.MethodGet)
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)

	x := r.PathPrefix("/xero").Subrouter()
	x.Use(s.requireXero)
	x.HandleFunc("", s.handleXeroAuth).Methods(http.MethodGet)
	x.HandleFunc("/invoices", s.handleXeroInvoices).Methods(http.MethodGet)
	x.HandleFunc("/tenant", s.handleXeroTenant).Methods(http.MethodPost)
	x.HandleFunc("/logout", s.handleXeroLogout).Methods(http.MethodPost)

	s.router = r
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.config.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	sweepCtx, stopSweep := context.WithCancel(ctx)
	defer stopSweep()
	go s.sessions.RunSweeper(sweepCtx, s.config.SweepInterval)

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", zap.String("addr", s.config.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.logger.Info("http server shutting down")
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// session returns the caller's session, starting a new one when the cookie is
// missing or has expired.
func (s *Server) session(w http.ResponseWriter, r *http.Request) session.Session {
	if c, err := r.Cookie(sessionCookie); err == nil {
		if sess, err := s.sessions.Get(c.Value); err == nil {
			return sess
		}
	}

	sess := s.sessions.Create()
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    sess.ID,
		Path:     "/",
		HttpOnly: true,
		Secure:   s.config.SecureCookie,
		SameSite: http.SameSiteLaxMode,
	})
	return sess
}

func (s *Server) render(w http.ResponseWriter, status int, name string, data any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := s.pages.ExecuteTemplate(w, name, data); err != nil {
		s.logger.Error("template execution failed", zap.String("template", name), zap.Error(err))
	}
}

func (s *Server) redirect(w http.ResponseWriter, r *http.Request, to string) {
	http.Redirect(w, r, to, http.StatusSeeOther)
}
