package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	applog "kakeibo/internal/log"
	"kakeibo/internal/middleware/ratelimit"
	"kakeibo/internal/middleware/security"
	"kakeibo/internal/middleware/trace"
	"kakeibo/internal/services"
	"kakeibo/internal/sheets"
)

// Options configures the API server.
type Options struct {
	Projects *services.ProjectService
	// Exporter enables the month export route when set.
	Exporter sheets.MonthExporter
	// Health is pinged by /readyz when set.
	Health services.Pinger

	Logger             *applog.Logger
	RateLimitPerMinute int
	TrustProxy         bool
	Now                func() time.Time
}

// Server is the JSON API of the budget tracker.
type Server struct {
	http.Server
	projects *services.ProjectService
	exporter sheets.MonthExporter
	health   services.Pinger
	logger   *applog.Logger
	now      func() time.Time
	started  time.Time

	rateLimiter      *ratelimit.Limiter
	securityDetector *security.Detector
	traceMiddleware  *trace.Middleware

	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run server.
func NewServer(addr string, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = applog.FromContext(context.Background())
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	s := &Server{
		projects: opts.Projects,
		exporter: opts.Exporter,
		health:   opts.Health,
		logger:   opts.Logger.WithComponent(applog.ComponentHTTP),
		now:      opts.Now,
		started:  opts.Now(),
		rateLimiter: ratelimit.NewLimiter(ratelimit.Config{
			RequestsPerMinute: opts.RateLimitPerMinute,
		}),
		securityDetector: security.NewDetector(opts.TrustProxy),
	}
	s.traceMiddleware = trace.NewMiddleware(opts.Logger, s.securityDetector.ExtractClientIP)

	mux := http.NewServeMux()
	s.routes(mux)

	var handler http.Handler = mux
	handler = identityMiddleware(handler)
	handler = s.rateLimiter.Middleware(s.securityDetector.ExtractClientIP, s.handleRateLimited)(handler)
	handler = s.securityDetector.Middleware(handler)
	handler = security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware(handler)
	handler = s.traceMiddleware.Middleware(handler)

	s.Server = http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

func (s *Server) routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.HandleFunc("GET /metrics", s.handleMetrics)

	mux.HandleFunc("GET /api/projects", s.handleListProjects)
	mux.HandleFunc("POST /api/projects", s.handleCreateProject)
	mux.HandleFunc("GET /api/projects/{id}", s.handleGetProject)
	mux.HandleFunc("PUT /api/projects/{id}", s.handleUpdateProject)
	mux.HandleFunc("DELETE /api/projects/{id}", s.handleDeleteProject)
	mux.HandleFunc("POST /api/projects/{id}/share", s.handleShare)
	mux.HandleFunc("DELETE /api/projects/{id}/share", s.handleUnshare)
	mux.HandleFunc("GET /api/shared/{token}", s.handleResolveShared)
	mux.HandleFunc("GET /api/projects/{id}/sync", s.handleSyncStatus)

	mux.HandleFunc("GET /api/projects/{id}/months", s.handleListMonths)
	mux.HandleFunc("GET /api/projects/{id}/months/{month}", s.handleGetMonth)
	mux.HandleFunc("PUT /api/projects/{id}/months/{month}", s.handleSetMonth)
	mux.HandleFunc("POST /api/projects/{id}/months/{month}/copy", s.handleCopyCategories)

	mux.HandleFunc("POST /api/projects/{id}/months/{month}/expenses", s.handleAddExpense)
	mux.HandleFunc("PATCH /api/projects/{id}/months/{month}/expenses/{expenseId}", s.handleUpdateExpense)
	mux.HandleFunc("DELETE /api/projects/{id}/months/{month}/expenses/{expenseId}", s.handleDeleteExpense)

	mux.HandleFunc("POST /api/projects/{id}/months/{month}/categories", s.handleAddCategory)
	mux.HandleFunc("PATCH /api/projects/{id}/months/{month}/categories/{categoryId}", s.handleUpdateCategory)
	mux.HandleFunc("DELETE /api/projects/{id}/months/{month}/categories/{categoryId}", s.handleDeleteCategory)

	mux.HandleFunc("GET /api/projects/{id}/months/{month}/analysis", s.handleAnalysis)
	mux.HandleFunc("GET /api/projects/{id}/months/{month}/compare", s.handleCompare)
	if s.exporter != nil {
		mux.HandleFunc("POST /api/projects/{id}/months/{month}/export", s.handleExport)
	}
}

func (s *Server) handleRateLimited(w http.ResponseWriter, r *http.Request) {
	s.logger.WarnContext(r.Context(), "Rate limit exceeded",
		applog.FieldComponent, applog.ComponentRateLimit,
		applog.FieldClientIP, s.securityDetector.ExtractClientIP(r),
		applog.FieldMethod, r.Method,
		applog.FieldPath, r.URL.Path)
	ErrorResponse(http.StatusTooManyRequests, "rate limit exceeded").Write(w)
}

// Shutdown gracefully shuts down the server and its cleanup routines.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.rateLimiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}
