// Package httpapi maps the documented URL space onto the Cache Engine:
// JSON and opaque storage disciplines, path-key normalization, and the two
// administrative routes (/clear, /close) that reach through to the
// Lifecycle Controller directly.
package httpapi

import (
	"net/http"
	"strings"

	"golang.org/x/time/rate"

	"github.com/gisman/bigcache/internal/lifecycle"
)

// Config controls the inbound rate limiter. Defaults match a generously
// permissive ceiling: the limiter exists to stop an unbounded pile-up of
// goroutines waiting on disk I/O, not to throttle normal traffic.
type Config struct {
	RateLimitPerSecond float64
	RateLimitBurst     int
}

// DefaultConfig returns the ambient rate-limit settings used when the
// caller does not override them.
func DefaultConfig() Config {
	return Config{RateLimitPerSecond: 2000, RateLimitBurst: 4000}
}

// NewHandler builds the complete routed, middleware-wrapped http.Handler
// for the service: request-ID logging and rate limiting wrap every route.
func NewHandler(ctrl *lifecycle.Controller, cfg Config) http.Handler {
	s := &server{ctrl: ctrl}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /cache/{key...}", s.handleSet)
	mux.HandleFunc("GET /cache/{key...}", s.handleGet)
	mux.HandleFunc("DELETE /cache/{key...}", s.handleDelete)
	mux.HandleFunc("POST /pickle/{key...}", s.handleSetOpaque)
	mux.HandleFunc("GET /pickle/{key...}", s.handleGetOpaque)
	mux.HandleFunc("DELETE /prefix/{prefix...}", s.handleDeletePrefix)
	mux.HandleFunc("GET /stat", s.handleStats)
	mux.HandleFunc("GET /stat/count", s.handleCount)
	mux.HandleFunc("GET /clear", s.handleClear)
	mux.HandleFunc("GET /close", s.handleClose)

	limiter := rate.NewLimiter(rate.Limit(cfg.RateLimitPerSecond), cfg.RateLimitBurst)
	return requestLogger(rateLimited(limiter, collapsePath(mux)))
}

type server struct {
	ctrl *lifecycle.Controller
}

// normalizeKey strips every leading and trailing '/' from a path tail
// captured by a {name...} wildcard, preserving embedded slashes.
func normalizeKey(raw string) string {
	return strings.Trim(raw, "/")
}

// collapsePath runs every repeated '/' in the request path down to one
// before handing off to http.ServeMux. ServeMux treats a path containing
// "//" as unclean and answers with its own 301 redirect ahead of routing,
// which turns a POST with a body into a bodyless, redirect-followed GET on
// any client that follows redirects. Collapsing here keeps the request on
// its original method for the mux and for normalizeKey downstream.
func collapsePath(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if collapsed := collapseSlashes(r.URL.Path); collapsed != r.URL.Path {
			r.URL.Path = collapsed
			if r.URL.RawPath != "" {
				r.URL.RawPath = collapsed
			}
		}
		next.ServeHTTP(w, r)
	})
}

func collapseSlashes(p string) string {
	var b strings.Builder
	b.Grow(len(p))
	prevSlash := false
	for _, r := range p {
		if r == '/' {
			if prevSlash {
				continue
			}
			prevSlash = true
		} else {
			prevSlash = false
		}
		b.WriteRune(r)
	}
	return b.String()
}

func rateLimited(limiter *rate.Limiter, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !limiter.Allow() {
			http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}
