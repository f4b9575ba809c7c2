package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/TwigBush/methodsec/internal/anonymous"
	"github.com/TwigBush/methodsec/internal/handlers"
	"github.com/TwigBush/methodsec/internal/httpx"
	"github.com/TwigBush/methodsec/internal/identity"
	"github.com/TwigBush/methodsec/internal/method"
	mw2 "github.com/TwigBush/methodsec/internal/mw"
	"github.com/TwigBush/methodsec/internal/sample"
	"github.com/TwigBush/methodsec/internal/token"
	"github.com/TwigBush/methodsec/internal/version"
)

type Options struct {
	EnableCORS     bool
	AllowedOrigins []string
}

type Deps struct {
	Pipeline  *method.Pipeline
	Documents *sample.Service
	Holders   identity.Strategy
	Trust     identity.TrustResolver
	Anonymous *anonymous.Provider // nil disables the anonymous filter
	Verifier  *token.Verifier     // nil disables bearer auth
	Stream    http.Handler        // nil leaves /events unmounted
}

func BuildRouter(d Deps, opts Options) http.Handler {
	if d.Holders == nil {
		d.Holders = identity.ContextStrategy{}
	}
	r := chi.NewRouter()

	// baseline
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	if opts.EnableCORS {
		origins := opts.AllowedOrigins
		if len(origins) == 0 {
			origins = []string{"*"}
		}
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: origins,
			AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
			AllowedHeaders: []string{"Content-Type", "Authorization"},
			ExposedHeaders: []string{"WWW-Authenticate"},
			MaxAge:         300,
		}))
	}

	// tracing, per-request identity scope, logger
	r.Use(mw2.Trace())
	r.Use(mw2.Scope(d.Holders))
	r.Use(mw2.Logger(mw2.LogOpts{
		SkipPaths: []string{"/healthz", "/version"},
		Holders:   d.Holders,
	}))

	r.Get("/healthz", healthCheckHandler)
	r.Get("/version", handlers.VersionHandler)

	r.Group(func(pr chi.Router) {
		pr.Use(mw2.NoStore)
		if d.Verifier != nil {
			pr.Use(mw2.Bearer(d.Verifier, d.Holders))
		}
		if d.Anonymous != nil {
			pr.Use(d.Anonymous.Filter(d.Holders))
		}

		pr.Get("/whoami", handlers.Whoami(d.Holders, d.Trust))
		pr.Get("/stats", handlers.Stats(d.Pipeline))
		pr.Get("/methods", handlers.Methods(d.Pipeline))
		if d.Stream != nil {
			pr.Get("/events", handlers.Events(d.Pipeline, sample.MethodSubscribe, d.Stream, d.Holders))
		}

		docs := handlers.NewDocumentsHandler(d.Documents, d.Holders)
		pr.Route("/documents", func(dr chi.Router) {
			dr.Get("/", docs.List)
			dr.Get("/{id}", docs.Get)
			dr.Delete("/{id}", docs.Delete)
			dr.Post("/{id}/share", docs.Share)
		})
	})

	return r
}

func healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	httpx.WriteJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"version": version.Version,
	})
}
