// Package web provides the HTTP API for the report submission console.
// It is a thin JSON layer over core: handlers decode and validate the
// request shape, call the session service, and render state snapshots.
package web

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/fincollect/console/internal/core"
	mw "github.com/fincollect/console/internal/web/middleware"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
)

// Options holds server tuning.
type Options struct {
	// MaxCSVSize caps the accepted CSV upload size in bytes (default: 10MB).
	MaxCSVSize int64

	// RequestTimeout is the per-request middleware timeout (default: 60s).
	RequestTimeout time.Duration
}

// Server is the HTTP server for the console API.
type Server struct {
	service    *core.Service
	validate   *validator.Validate
	maxCSVSize int64
	router     *chi.Mux
	server     *http.Server
}

// NewServer creates a new Server instance.
func NewServer(service *core.Service, opts Options) *Server {
	if opts.MaxCSVSize <= 0 {
		opts.MaxCSVSize = 10 << 20
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 60 * time.Second
	}

	s := &Server{
		service:    service,
		validate:   validator.New(validator.WithRequiredStructEnabled()),
		maxCSVSize: opts.MaxCSVSize,
		router:     chi.NewRouter(),
	}
	s.setupMiddleware(opts.RequestTimeout)
	s.setupRoutes()
	return s
}

// setupMiddleware configures middleware for all routes.
func (s *Server) setupMiddleware(requestTimeout time.Duration) {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(mw.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Compress(5))
	s.router.Use(middleware.Timeout(requestTimeout))

	// Security hardening
	s.router.Use(securityHeaders)

	// Rate limiting: 100 requests per minute per IP
	limiter := newRateLimiter(100, time.Minute)
	s.router.Use(limiter.middleware)
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	s.router.Get("/healthz", s.handleHealth)

	s.router.Route("/api", func(r chi.Router) {
		// Reference data
		r.Get("/institutions", s.handleInstitutions)

		// Wizard sessions
		r.Post("/wizard", s.handleCreateSession)
		r.Route("/wizard/{sessionID}", func(r chi.Router) {
			r.Get("/", s.handleSessionState)
			r.Delete("/", s.handleEndSession)

			r.Post("/series", s.handleSelectSeries)
			r.Post("/institution", s.handleSelectInstitution)
			r.Post("/period", s.handleSetPeriod)
			r.Post("/mode", s.handleSetMode)
			r.Post("/field", s.handleSetField)
			r.Post("/file", s.handleAttachFile)
			r.Post("/next", s.handleNext)
			r.Post("/back", s.handleBack)
		})

		// Report view; the acting session is named by the X-Session-ID header
		r.Get("/reports/{reportID}", s.handleOpenReport)
		r.Post("/reports/{reportID}/validate", s.handleValidateReport)
		r.Post("/reports/close", s.handleCloseReport)
	})
}

// Start begins listening for HTTP requests.
func (s *Server) Start(addr string) error {
	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	slog.Info("starting server", "addr", addr)
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router returns the underlying chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// securityHeaders adds security headers to all responses.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Prevent MIME type sniffing
		w.Header().Set("X-Content-Type-Options", "nosniff")

		// Prevent clickjacking
		w.Header().Set("X-Frame-Options", "DENY")

		// API responses must never be interpreted as markup
		w.Header().Set("Content-Security-Policy", "default-src 'none'")

		// Control referrer information
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")

		next.ServeHTTP(w, r)
	})
}

// rateLimiter implements a simple token bucket rate limiter per IP.
type rateLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	rate     int           // requests per window
	window   time.Duration // time window
}

type visitor struct {
	tokens    int
	lastReset time.Time
}

// newRateLimiter creates a rate limiter with the specified rate per window.
func newRateLimiter(rate int, window time.Duration) *rateLimiter {
	rl := &rateLimiter{
		visitors: make(map[string]*visitor),
		rate:     rate,
		window:   window,
	}
	// Start cleanup goroutine
	go rl.cleanup()
	return rl
}

// cleanup removes stale visitor entries every minute.
func (rl *rateLimiter) cleanup() {
	for {
		time.Sleep(time.Minute)
		rl.mu.Lock()
		for ip, v := range rl.visitors {
			if time.Since(v.lastReset) > rl.window*2 {
				delete(rl.visitors, ip)
			}
		}
		rl.mu.Unlock()
	}
}

// allow checks if the request should be allowed and consumes a token if so.
func (rl *rateLimiter) allow(ip string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	v, exists := rl.visitors[ip]
	if !exists {
		rl.visitors[ip] = &visitor{
			tokens:    rl.rate - 1, // consume one token
			lastReset: time.Now(),
		}
		return true
	}

	// Reset tokens if window has passed
	if time.Since(v.lastReset) > rl.window {
		v.tokens = rl.rate - 1
		v.lastReset = time.Now()
		return true
	}

	// Check if we have tokens left
	if v.tokens <= 0 {
		return false
	}

	v.tokens--
	return true
}

// middleware returns an HTTP middleware that rate limits by IP.
func (rl *rateLimiter) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := r.RemoteAddr
		// Use X-Real-IP if set (by RealIP middleware)
		if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
			ip = realIP
		}

		if !rl.allow(ip) {
			w.Header().Set("Retry-After", "60")
			http.Error(w, `{"error":"rate limit exceeded"}`, http.StatusTooManyRequests)
			return
		}

		next.ServeHTTP(w, r)
	})
}
