package mw

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/TwigBush/methodsec/internal/httpx"
	"github.com/TwigBush/methodsec/internal/identity"
	"github.com/TwigBush/methodsec/internal/trace"
)

type LogOpts struct {
	SkipPaths []string
	// Holders resolves the caller for the "principal" field. Nil means
	// identity.ContextStrategy.
	Holders identity.Strategy
}

func isPreflight(r *http.Request) bool {
	return r.Method == http.MethodOptions
}

func skipped(p string, skip []string) bool {
	for _, s := range skip {
		if p == s {
			return true
		}
	}
	return false
}

// Logger writes one summary line per request. It must run inside Scope so the
// principal set further down the chain is visible after the handler returns.
func Logger(opts LogOpts) func(http.Handler) http.Handler {
	if opts.Holders == nil {
		opts.Holders = identity.ContextStrategy{}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isPreflight(r) || skipped(r.URL.Path, opts.SkipPaths) {
				next.ServeHTTP(w, r)
				return
			}

			start := time.Now()
			rec := httpx.NewRecorder(w)
			next.ServeHTTP(rec, r)
			dur := time.Since(start)

			id := identity.Current(r.Context(), opts.Holders)
			slog.Info("req",
				"trace", trace.From(r.Context()),
				"m", r.Method,
				"path", r.URL.Path,
				"status", rec.Status,
				"ms", dur.Milliseconds(),
				"bytes", rec.Bytes,
				"principal", id.Name(),
				"anon", id.Anonymous(),
			)

			if rec.Status >= 400 {
				h := map[string]string{}
				for k, vv := range r.Header {
					if len(vv) == 0 {
						continue
					}
					vl := vv[0]
					if strings.EqualFold(k, "Authorization") || strings.HasPrefix(strings.ToLower(k), "x-api-key") {
						vl = "***redacted***"
					}
					h[k] = vl
				}
				slog.Warn("req_detail",
					"trace", trace.From(r.Context()),
					"m", r.Method, "path", r.URL.Path,
					"status", rec.Status,
					"headers", h,
				)
			}
		})
	}
}
