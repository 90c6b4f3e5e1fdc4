package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dorshemer/yoman/internal/messaging"
	"github.com/dorshemer/yoman/internal/store"
)

// DefaultAddr is the default listen address for the admin API.
const DefaultAddr = ":8080"

// Opts holds configuration options for the API server.
type Opts struct {
	Addr string
}

// Option defines a configuration option for the API server.
type Option func(*Opts)

// WithAddr sets the server listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) { o.Addr = addr }
}

// Server hosts the admin API.
type Server struct {
	addr       string
	store      store.Store
	msgService messaging.Service
	httpServer *http.Server
}

// NewServer creates an API server over the given store and messaging service.
func NewServer(st store.Store, msgService messaging.Service, opts ...Option) *Server {
	cfg := Opts{Addr: DefaultAddr}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Server{addr: cfg.Addr, store: st, msgService: msgService}
}

// Router builds the HTTP route tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/health", s.healthHandler)
	r.Post("/send", s.sendHandler)
	r.Route("/sessions/{user}", func(r chi.Router) {
		r.Get("/", s.getSessionHandler)
		r.Delete("/", s.deleteSessionHandler)
	})
	r.Get("/mismatches", s.mismatchesHandler)

	// Twilio delivers inbound messages and status updates over webhooks.
	if ts, ok := s.msgService.(*messaging.TwilioService); ok {
		r.Post("/twilio/webhook", ts.WebhookHandler())
		r.Post("/twilio/status", ts.StatusCallbackHandler())
	}
	return r
}

// Run starts the HTTP server and blocks until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:         s.addr,
		Handler:      s.Router(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Server.Run: admin API listening", "addr", s.addr)
		errCh <- s.httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
