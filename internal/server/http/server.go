// Package httpserver exposes the credential gateway as a JSON HTTP API.
package httpserver

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/and161185/passvault/internal/service"
)

// Deleter is the rate-limited delete surface; *service.DeleteGuard implements it.
type Deleter interface {
	DeleteByID(ctx context.Context, rawID, addr string) (bool, error)
	DeleteByOwnerMatch(ctx context.Context, looseID any, user map[string]any, addr string) (bool, error)
}

// Recorder receives per-request metrics; *metrics.Metrics implements it.
type Recorder interface {
	ObserveHTTP(method, route string, code int, took time.Duration)
}

// maxBodyBytes caps request bodies; a credential form is tiny.
const maxBodyBytes = 64 << 10

// Handler serves the credential API.
type Handler struct {
	gw     service.CredentialGateway
	del    Deleter
	log    *zap.Logger
	health func(ctx context.Context) error
}

// NewHandler creates a Handler. When del is nil, deletes go straight to gw.
func NewHandler(gw service.CredentialGateway, del Deleter, log *zap.Logger) *Handler {
	if del == nil {
		del = service.NewDeleteGuard(gw, nil, log)
	}
	return &Handler{gw: gw, del: del, log: log, health: gw.Ping}
}

// Options configure the outer surface of the API.
type Options struct {
	AllowedOrigins []string
	Metrics        http.Handler // served at /metrics when set
	Recorder       Recorder
}

// NewServeMux registers all routes and wraps them with CORS, recovery, logging
// and request-id middleware.
func NewServeMux(h *Handler, opts Options) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", h.List)
	mux.HandleFunc("GET /check", h.Check)
	mux.HandleFunc("POST /save", h.Save)
	mux.HandleFunc("POST /{$}", h.Save) // legacy alias
	mux.HandleFunc("DELETE /{$}", h.DeleteLoose)
	mux.HandleFunc("DELETE /delete/{id}", h.DeleteByID)
	mux.HandleFunc("GET /healthz", h.Healthz)
	if opts.Metrics != nil {
		mux.Handle("GET /metrics", opts.Metrics)
	}

	rec := opts.Recorder
	if rec == nil {
		rec = nopRecorder{}
	}

	c := cors.New(cors.Options{
		AllowedOrigins: opts.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete},
		AllowedHeaders: []string{"Content-Type", RequestIDHeader},
		ExposedHeaders: []string{RequestIDHeader, "Retry-After"},
	})

	// Recovery innermost so panics are caught before logging; the request id is
	// attached first so every layer below sees it.
	wrapped := c.Handler(mux)
	wrapped = recoveryMiddleware(h.log, wrapped)
	wrapped = loggingMiddleware(h.log, rec, wrapped)
	wrapped = requestIDMiddleware(wrapped)
	return wrapped
}

type nopRecorder struct{}

func (nopRecorder) ObserveHTTP(string, string, int, time.Duration) {}
