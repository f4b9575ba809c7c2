package handlers

import (
	"net/http"
	"sort"

	"github.com/TwigBush/methodsec/internal/httpx"
	"github.com/TwigBush/methodsec/internal/method"
)

func Stats(p *method.Pipeline) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		httpx.WriteJSON(w, http.StatusOK, p.Stats())
	}
}

type methodDoc struct {
	Name   string        `json:"name"`
	Stages []method.Kind `json:"stages"`
}

// Methods lists every protected method with its stage chain.
func Methods(p *method.Pipeline) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		names := p.Methods()
		sort.Strings(names)
		out := make([]methodDoc, 0, len(names))
		for _, n := range names {
			out = append(out, methodDoc{Name: n, Stages: p.Stages(n)})
		}
		httpx.WriteJSON(w, http.StatusOK, map[string]any{"methods": out})
	}
}
