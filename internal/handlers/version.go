package handlers

import (
	"net/http"

	"github.com/TwigBush/methodsec/internal/httpx"
	"github.com/TwigBush/methodsec/internal/version"
)

func VersionHandler(w http.ResponseWriter, r *http.Request) {
	httpx.WriteJSON(w, http.StatusOK, version.Get())
}
