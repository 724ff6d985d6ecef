// Package web provides the HTTP server for song-posts: the Spotify OAuth
// flow, the JSON endpoints the composer talks to, and the HTMX dashboard.
package web

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	spotifyauth "github.com/zmb3/spotify/v2/auth"

	"github.com/justestif/song-posts/internal/credential"
	"github.com/justestif/song-posts/internal/dashboard"
	"github.com/justestif/song-posts/internal/logging"
	"github.com/justestif/song-posts/internal/spotify"
)

const (
	// DefaultAddr is the default server address.
	DefaultAddr = "127.0.0.1:8080"

	// DefaultRedirectURI must match the Spotify app configuration.
	DefaultRedirectURI = "http://127.0.0.1:8080/callback"

	defaultJanitorInterval = 10 * time.Minute
)

// ServerConfig holds server configuration. Nil stores fall back to memory.
type ServerConfig struct {
	Addr         string
	ClientID     string
	ClientSecret string
	RedirectURI  string
	TemplatesFS  fs.FS
	StaticFS     fs.FS

	Sessions SessionManager
	Users    UserStore
	Posts    PostStore
	Catalog  dashboard.Catalog
	Logger   *log.Logger

	// JanitorInterval is how often expired sessions are purged.
	JanitorInterval time.Duration
}

// Server is the HTTP server for the web application.
type Server struct {
	router    chi.Router
	server    *http.Server
	templates *Templates
	sessions  SessionManager
	handlers  *Handlers
	logger    *log.Logger
	janitor   time.Duration
}

// NewServer creates a new web server.
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Addr == "" {
		cfg.Addr = DefaultAddr
	}
	if cfg.RedirectURI == "" {
		cfg.RedirectURI = DefaultRedirectURI
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Discard()
	}
	if cfg.Sessions == nil {
		cfg.Sessions = NewSessionStore()
	}
	if cfg.Users == nil {
		cfg.Users = NewMemoryUserStore()
	}
	if cfg.Posts == nil {
		cfg.Posts = NewMemoryPostStore()
	}
	if cfg.Catalog == nil {
		cfg.Catalog = spotify.New()
	}
	if cfg.JanitorInterval <= 0 {
		cfg.JanitorInterval = defaultJanitorInterval
	}

	auth := spotifyauth.New(
		spotifyauth.WithClientID(cfg.ClientID),
		spotifyauth.WithClientSecret(cfg.ClientSecret),
		spotifyauth.WithRedirectURL(cfg.RedirectURI),
		spotifyauth.WithScopes(
			spotifyauth.ScopeUserReadPrivate,
			spotifyauth.ScopeUserTopRead,
		),
	)

	templates, err := NewTemplates(cfg.TemplatesFS)
	if err != nil {
		return nil, fmt.Errorf("loading templates: %w", err)
	}

	handlers := NewHandlers(HandlerDeps{
		Auth:      auth,
		Sessions:  cfg.Sessions,
		Users:     cfg.Users,
		Posts:     cfg.Posts,
		Catalog:   cfg.Catalog,
		Templates: templates,
		Logger:    cfg.Logger,
	})

	router := chi.NewRouter()

	s := &Server{
		router:    router,
		templates: templates,
		sessions:  cfg.Sessions,
		handlers:  handlers,
		logger:    cfg.Logger,
		janitor:   cfg.JanitorInterval,
	}

	s.setupMiddleware()
	s.setupRoutes(cfg.StaticFS)

	s.server = &http.Server{
		Addr:         cfg.Addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s, nil
}

// Handler returns the router, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// setupMiddleware configures middleware for the router.
func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(requestLogger(s.logger))
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Compress(5))
}

// setupRoutes configures routes for the application.
func (s *Server) setupRoutes(staticFS fs.FS) {
	if staticFS != nil {
		fileServer := http.FileServer(http.FS(staticFS))
		s.router.Handle("/static/*", http.StripPrefix("/static/", fileServer))
	}

	// Pages
	s.router.Get("/", s.handlers.Home)
	s.router.Route("/dashboard", func(r chi.Router) {
		r.Get("/", s.handlers.Dashboard)
		r.Get("/search", s.handlers.DashboardSearch)
		r.Post("/select", s.handlers.DashboardSelect)
		r.Post("/description", s.handlers.DashboardDescription)
		r.Post("/submit", s.handlers.DashboardSubmit)
	})

	// Auth routes
	s.router.Get(credential.AuthorizePath, s.handlers.Login)
	s.router.Get("/callback", s.handlers.Callback)
	s.router.Post("/auth/logout", s.handlers.Logout)

	// JSON API
	s.router.Get("/api/spotify-session", s.handlers.SpotifySession)
	s.router.Get("/api/favorites", s.handlers.Favorites)
	s.router.Post("/update-user-image", s.handlers.UpdateUserImage)
	s.router.Post("/update-user-name", s.handlers.UpdateUserName)
	s.router.Get("/posts", s.handlers.ListPosts)
	s.router.Post("/posts", s.handlers.CreatePost)
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.logger.Info("starting server", "url", "http://"+s.server.Addr)
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// Run starts the server and handles graceful shutdown on interrupt signals
// or when ctx is cancelled. Expired sessions are purged while it runs.
func (s *Server) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	go s.purgeSessions(ctx)

	errCh := make(chan error, 1)
	go func() {
		if err := s.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		s.logger.Info("shutting down server")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	s.logger.Info("server stopped")
	return nil
}

func (s *Server) purgeSessions(ctx context.Context) {
	ticker := time.NewTicker(s.janitor)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.purge(ctx)
		}
	}
}

// purge deletes expired sessions and the dashboards they left behind.
func (s *Server) purge(ctx context.Context) {
	n, err := s.sessions.DeleteExpired(ctx)
	if err != nil {
		s.logger.Warn("purging expired sessions", "err", err)
	} else if n > 0 {
		s.logger.Debug("purged expired sessions", "count", n)
	}

	if dropped := s.handlers.prunePages(ctx); dropped > 0 {
		s.logger.Debug("dropped stale dashboards", "count", dropped)
	}
}
