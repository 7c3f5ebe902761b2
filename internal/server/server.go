// Package server provides the local HTTP API used by the extension shims and the
// CLI surface.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/jonathan/one-click-apply/internal/coordinator"
	"github.com/jonathan/one-click-apply/internal/credits"
	"github.com/jonathan/one-click-apply/internal/events"
	"github.com/jonathan/one-click-apply/internal/files"
	"github.com/jonathan/one-click-apply/internal/identity"
	"github.com/jonathan/one-click-apply/internal/questions"
	"github.com/jonathan/one-click-apply/internal/server/middleware"
	"github.com/jonathan/one-click-apply/internal/server/ratelimit"
	"github.com/jonathan/one-click-apply/internal/session"
	"github.com/jonathan/one-click-apply/internal/tabdata"
)

// shutdownTimeout bounds graceful shutdown.
const shutdownTimeout = 30 * time.Second

// Deps are the services behind the API.
type Deps struct {
	Coordinator *coordinator.Coordinator
	Sessions    *session.Runner
	Questions   *questions.Service
	Files       *files.Manager
	Credits     *credits.Service
	Identity    *identity.Provider
	Data        *tabdata.Repository
	Bus         *events.Bus
	// Tokens authenticates external messages; nil accepts them unauthenticated.
	Tokens  middleware.TokenValidator
	Limiter *ratelimit.Limiter
	// AllowedOrigins lists browser origins admitted by CORS; empty means extension pages.
	AllowedOrigins []string
	Log            *zap.Logger
}

// Server is the HTTP API.
type Server struct {
	Deps
	httpServer *http.Server
	validate   *validator.Validate
	baseCtx    context.Context
	cancelBase context.CancelFunc
}

// New returns a Server listening on addr once Run is called.
func New(addr string, d Deps) *Server {
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	s := &Server{Deps: d, validate: validator.New()}
	s.baseCtx, s.cancelBase = context.WithCancel(context.Background())

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return s.baseCtx },
	}
	return s
}

// Handler returns the routed handler with middleware applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)

	mux.HandleFunc("POST /messages", s.handleMessage)
	mux.Handle("POST /external/messages", middleware.BearerAuth(s.Tokens)(http.HandlerFunc(s.handleExternalMessage)))
	mux.HandleFunc("POST /host/events", s.handleHostEvent)
	mux.HandleFunc("GET /events", s.handleEvents)

	mux.HandleFunc("GET /tabs", s.handleListTabs)
	mux.HandleFunc("GET /tabs/{id}/panel", s.handlePanel)
	mux.HandleFunc("PUT /tabs/{id}/page", s.handlePutPage)
	mux.HandleFunc("GET /tabs/{id}/result", s.handleResult)
	mux.HandleFunc("GET /tabs/{id}/progress", s.handleProgress)
	mux.HandleFunc("POST /tabs/{id}/generate", s.handleGenerate)
	mux.HandleFunc("POST /tabs/{id}/generate/stream", s.handleGenerateStream)
	mux.HandleFunc("GET /tabs/{id}/questions", s.handleListQuestions)
	mux.HandleFunc("POST /tabs/{id}/questions", s.handleAnswerQuestion)
	mux.HandleFunc("DELETE /tabs/{id}/questions/{qid}", s.handleDeleteQuestion)

	mux.HandleFunc("GET /files", s.handleListFiles)
	mux.HandleFunc("POST /files", s.handleUploadFile)
	mux.HandleFunc("DELETE /files/{category}/{id}", s.handleDeleteFile)

	mux.HandleFunc("GET /credits", s.handleCredits)
	mux.HandleFunc("POST /credits/checkout", s.handleCheckout)
	mux.HandleFunc("GET /identity", s.handleIdentity)

	var h http.Handler = middleware.CORS(middleware.NewOriginPolicy(s.AllowedOrigins))(mux)
	h = middleware.Logging(s.Log)(h)
	if s.Limiter != nil {
		h = ratelimit.Middleware(s.Limiter, s.Log)(h)
	}
	return h
}

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.Log.Info("server starting", zap.String("addr", s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		s.Log.Info("shutting down server")

		// Ends event streams, which never go idle on their own.
		s.cancelBase()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if s.Limiter != nil {
			defer s.Limiter.Stop()
		}
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		s.Log.Info("server stopped")
		return nil
	})

	return g.Wait()
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.jsonResponse(w, http.StatusOK, map[string]string{"status": "ok"})
}

// jsonResponse writes data as JSON.
func (s *Server) jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.Log.Warn("failed to encode response", zap.Error(err))
	}
}

// errorBody is the JSON shape of every error response.
type errorBody struct {
	Error string `json:"error"`
}

// errorResponse writes {"error": err} with the status mapped from err.
func (s *Server) errorResponse(w http.ResponseWriter, err error) {
	status := HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		s.Log.Error("request failed", zap.Error(err))
	}
	s.jsonResponse(w, status, errorBody{Error: err.Error()})
}

// decode reads a JSON body into v and validates its tags.
func (s *Server) decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("%w: invalid request body: %v", ErrBadRequest, err)
	}
	if err := s.validate.Struct(v); err != nil {
		return fmt.Errorf("%w: %v", ErrBadRequest, err)
	}
	return nil
}

// tabID parses the {id} path value.
func tabID(r *http.Request) (int, error) {
	id, err := strconv.Atoi(r.PathValue("id"))
	if err != nil || id < 0 {
		return 0, fmt.Errorf("%w: invalid tab id %q", ErrBadRequest, r.PathValue("id"))
	}
	return id, nil
}

// decodeOptional is decode for endpoints whose body may be empty.
func (s *Server) decodeOptional(r *http.Request, v any) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("%w: invalid request body: %v", ErrBadRequest, err)
	}
	if err := s.validate.Struct(v); err != nil {
		return fmt.Errorf("%w: %v", ErrBadRequest, err)
	}
	return nil
}
