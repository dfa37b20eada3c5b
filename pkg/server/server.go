// Package server exposes the orchestrator over HTTP and streams status
// updates over WebSocket.
package server

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/invopop/jsonschema"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/genesis/pkg/broadcast"
	"github.com/go-go-golems/genesis/pkg/orchestrator"
)

const maxBodyBytes = 1 << 20

type Server struct {
	orchestrator   *orchestrator.Orchestrator
	broadcaster    *broadcast.Broadcaster
	originPatterns []string
	now            func() time.Time
	schemas        map[string]*jsonschema.Schema
	mux            *http.ServeMux
}

type Option func(*Server)

// WithOriginPatterns allows cross-origin WebSocket clients whose Origin host
// matches one of the patterns.
func WithOriginPatterns(patterns ...string) Option {
	return func(s *Server) {
		s.originPatterns = append(s.originPatterns, patterns...)
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Server) {
		s.now = now
	}
}

func New(o *orchestrator.Orchestrator, b *broadcast.Broadcaster, options ...Option) *Server {
	s := &Server{
		orchestrator: o,
		broadcaster:  b,
		now:          time.Now,
		schemas:      requestSchemas(),
		mux:          http.NewServeMux(),
	}
	for _, opt := range options {
		opt(s)
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("POST /api/generate", s.handleGenerate)
	s.mux.HandleFunc("POST /api/generate-traffic", s.handleGenerate)
	s.mux.HandleFunc("POST /api/switch-provider", s.handleSwitchProvider)
	s.mux.HandleFunc("POST /api/switch-mode", s.handleSwitchMode)
	s.mux.HandleFunc("POST /api/parameters", s.handleSetParameter)
	s.mux.HandleFunc("POST /api/initiate-sovereign-protocol", s.handleInitiateProtocol)
	s.mux.HandleFunc("GET /api/status", s.handleStatus)
	s.mux.HandleFunc("GET /api/sovereign-status", s.handleStatus)
	s.mux.HandleFunc("GET /api/providers", s.handleProviders)
	s.mux.HandleFunc("GET /api/modes", s.handleModes)
	s.mux.HandleFunc("GET /api/schema", s.handleSchema)
	s.mux.HandleFunc("GET /ws", s.handleLiveStatus)
	s.mux.HandleFunc("GET /api/live-status", s.handleLiveStatus)
	s.mux.HandleFunc("GET /healthz", s.handleHealth)
}

// Handler returns the routed handler wrapped in the request id and access
// log middleware.
func (s *Server) Handler() http.Handler {
	return withRequestID(withAccessLog(s.mux))
}

// Run listens on addr until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return errors.Wrapf(err, "could not listen on %s", addr)
	}
	return s.Serve(ctx, ln)
}

func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", ln.Addr().String()).Msg("Starting HTTP server")
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return errors.Wrap(err, "http server failed")
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		log.Info().Msg("Shutting down HTTP server")
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return errors.Wrap(err, "http server shutdown failed")
		}
		return nil
	}
}
