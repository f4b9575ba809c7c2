package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/TwigBush/methodsec/internal/httpx"
	"github.com/TwigBush/methodsec/internal/identity"
	"github.com/TwigBush/methodsec/internal/sample"
)

// DocumentsHandler serves the sample document service. Every call goes
// through the method pipeline; this layer only maps results to HTTP.
type DocumentsHandler struct {
	Docs    *sample.Service
	Holders identity.Strategy
}

func NewDocumentsHandler(docs *sample.Service, holders identity.Strategy) *DocumentsHandler {
	if holders == nil {
		holders = identity.ContextStrategy{}
	}
	return &DocumentsHandler{Docs: docs, Holders: holders}
}

func (h *DocumentsHandler) fail(w http.ResponseWriter, r *http.Request, err error) {
	httpx.WriteCallError(w, err, identity.Current(r.Context(), h.Holders), sample.ErrNotFound)
}

func (h *DocumentsHandler) List(w http.ResponseWriter, r *http.Request) {
	docs, err := h.Docs.List(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"documents": docs})
}

func (h *DocumentsHandler) Get(w http.ResponseWriter, r *http.Request) {
	doc, err := h.Docs.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, doc)
}

func (h *DocumentsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.Docs.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type shareRequest struct {
	Users []string `json:"users"`
}

func (h *DocumentsHandler) Share(w http.ResponseWriter, r *http.Request) {
	var req shareRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.Users) == 0 {
		httpx.WriteError(w, http.StatusBadRequest, "users required")
		return
	}
	doc, err := h.Docs.Share(r.Context(), chi.URLParam(r, "id"), req.Users)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, doc)
}
