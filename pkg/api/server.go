package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/Mindburn-Labs/helm-actions/pkg/catalog"
	"github.com/Mindburn-Labs/helm-actions/pkg/coercion"
	"github.com/Mindburn-Labs/helm-actions/pkg/observability"
	"github.com/Mindburn-Labs/helm-actions/pkg/plan"
	"github.com/Mindburn-Labs/helm-actions/pkg/query"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

// Options configures a Server.
type Options struct {
	Actions   catalog.ActionCatalog
	Coercions coercion.Lookup
	Schema    *query.SchemaCatalog
	Dialect   query.Dialect
	// Telemetry defaults to a disabled provider.
	Telemetry      *observability.Provider
	RateLimitRPS   float64
	RateLimitBurst int
	Logger         *slog.Logger
}

// Server serves the resolution API.
type Server struct {
	actions   catalog.ActionCatalog
	resolver  *observability.Resolver
	telemetry *observability.Provider
	schema    *query.SchemaCatalog
	dialect   query.Dialect
	limiter   *RateLimiter
	logger    *slog.Logger
}

// NewServer validates opts and builds a Server. Call Close to release the
// rate limiter.
func NewServer(opts Options) (*Server, error) {
	if opts.Actions == nil {
		return nil, errors.New("api: action catalog is required")
	}
	if opts.Telemetry == nil {
		p, err := observability.New(context.Background(), &observability.Config{Enabled: false})
		if err != nil {
			return nil, err
		}
		opts.Telemetry = p
	}
	if opts.RateLimitRPS <= 0 {
		opts.RateLimitRPS = 10
	}
	if opts.RateLimitBurst <= 0 {
		opts.RateLimitBurst = 20
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	resolver := plan.NewResolver(plan.ResolutionContext{
		Actions:   opts.Actions,
		Coercions: opts.Coercions,
		Schema:    opts.Schema,
		Dialect:   opts.Dialect,
	})
	return &Server{
		actions:   opts.Actions,
		resolver:  observability.NewResolver(resolver, opts.Telemetry),
		telemetry: opts.Telemetry,
		schema:    opts.Schema,
		dialect:   opts.Dialect,
		limiter:   NewRateLimiter(opts.RateLimitRPS, opts.RateLimitBurst),
		logger:    opts.Logger.With("component", "api"),
	}, nil
}

// Handler returns the routed handler with request ids, rate limiting and
// access logging applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/plans/resolve", s.HandleResolve)
	mux.HandleFunc("/v1/queries/compile", s.HandleCompile)
	mux.HandleFunc("/v1/actions", s.HandleActions)
	mux.HandleFunc("/v1/actions/text", s.HandleActionsText)
	mux.HandleFunc("/healthz", s.HandleHealth)
	mux.HandleFunc("/", WriteNotFound)

	var h http.Handler = mux
	h = s.limiter.Middleware(h)
	h = LoggingMiddleware(s.logger, h)
	h = RequestIDMiddleware(h)
	return h
}

// Close stops background work.
func (s *Server) Close() {
	s.limiter.Stop()
}
