// Package server wires the handlers, middleware and hub into the HTTP
// surface.
package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"calsplit/internal/aggregate"
	"calsplit/internal/auth"
	"calsplit/internal/config"
	"calsplit/internal/handler"
	"calsplit/internal/middleware"
	ws "calsplit/internal/websocket"
)

type Server struct {
	cfg         *config.Config
	svc         *aggregate.Service
	session     *auth.Manager
	hub         *ws.Hub
	calendarH   *handler.CalendarHandler
	authH       *handler.AuthHandler
	rateLimiter *middleware.RateLimiter
	logger      *slog.Logger
}

// New assembles the server and connects the aggregation service and the
// session manager to the WebSocket hub.
func New(cfg *config.Config, svc *aggregate.Service, session *auth.Manager, loc *time.Location, logger *slog.Logger) *Server {
	hub := ws.NewHub(logger.With("component", "websocket"))

	svc.SetOnUpdate(func(snap aggregate.Snapshot) {
		hub.Broadcast(ws.ColumnsUpdated(snap.Seq))
	})
	session.SetOnInvalidated(func(reason string) {
		hub.Broadcast(ws.SessionExpired(reason))
	})

	refresh := func(ctx context.Context) {
		if _, err := svc.Refresh(ctx); err != nil {
			logger.Error("refresh after auth change", "error", err)
		}
	}

	return &Server{
		cfg:         cfg,
		svc:         svc,
		session:     session,
		hub:         hub,
		calendarH:   handler.NewCalendarHandler(svc, cfg, loc),
		authH:       handler.NewAuthHandler(session, refresh, logger.With("component", "auth")),
		rateLimiter: middleware.NewRateLimiter(),
		logger:      logger,
	}
}

// Hub exposes the WebSocket hub for shutdown accounting.
func (s *Server) Hub() *ws.Hub {
	return s.hub
}

// RateLimiter exposes the limiter so main can run periodic cleanup.
func (s *Server) RateLimiter() *middleware.RateLimiter {
	return s.rateLimiter
}

func (s *Server) Router() http.Handler {
	outerMux := http.NewServeMux()

	// Public routes: the sign-in flow cannot sit behind basic auth or the
	// provider's redirect would be challenged.
	outerMux.HandleFunc("GET /auth/login", s.rateLimitedHandler(s.authH.Login))
	outerMux.HandleFunc("GET /auth/callback", s.rateLimitedHandler(s.authH.Callback))
	outerMux.HandleFunc("GET /health", s.healthHandler)

	protectedMux := http.NewServeMux()
	protectedMux.HandleFunc("POST /auth/signout", s.authH.SignOut)
	protectedMux.HandleFunc("GET /auth/status", s.authH.Status)

	protectedMux.HandleFunc("GET /api/grid", s.calendarH.Grid)
	protectedMux.HandleFunc("GET /api/columns", s.calendarH.Columns)
	protectedMux.HandleFunc("POST /api/nav", s.calendarH.Navigate)
	protectedMux.HandleFunc("POST /api/refresh", s.calendarH.Refresh)

	protectedMux.Handle("GET /ws", ws.Handler(s.hub, s.logger.With("component", "websocket")))

	gate := middleware.BasicAuth(s.cfg.BasicAuth)
	outerMux.Handle("/", gate(protectedMux))

	return middleware.RequestLogger(s.logger.With("component", "http"))(outerMux)
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"status":  "ok",
		"clients": s.hub.ClientCount(),
	})
}

func (s *Server) rateLimitedHandler(h http.HandlerFunc) http.HandlerFunc {
	keyFunc := func(r *http.Request) string {
		return middleware.RealIP(r)
	}
	rl := middleware.RateLimit(s.rateLimiter, keyFunc, 10, time.Minute)
	return func(w http.ResponseWriter, r *http.Request) {
		rl(http.HandlerFunc(h)).ServeHTTP(w, r)
	}
}
