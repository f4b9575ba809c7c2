package httpx

import (
	"errors"
	"net/http"

	"github.com/TwigBush/methodsec/internal/authz"
	"github.com/TwigBush/methodsec/internal/identity"
)

func SafeErrMsg(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// WriteDenied answers a refused call. Anonymous callers get 401 so clients
// know to authenticate; everyone else gets 403.
func WriteDenied(w http.ResponseWriter, ade *authz.AccessDeniedError, id *identity.Identity) {
	code := http.StatusForbidden
	if id == nil || id.Anonymous() {
		code = http.StatusUnauthorized
		w.Header().Set("WWW-Authenticate", `Bearer realm="methodsec"`)
	}
	WriteJSON(w, code, APIError{Error: "access_denied", Stage: ade.Stage, Reason: ade.Reason})
}

// WriteCallError maps an error from a protected call. Denials and
// configuration errors are handled here; anything else is a 500 unless
// notFound matches.
func WriteCallError(w http.ResponseWriter, err error, id *identity.Identity, notFound error) {
	if ade, ok := authz.IsAccessDenied(err); ok {
		WriteDenied(w, ade, id)
		return
	}
	if notFound != nil && errors.Is(err, notFound) {
		WriteError(w, http.StatusNotFound, SafeErrMsg(notFound))
		return
	}
	WriteError(w, http.StatusInternalServerError, SafeErrMsg(err))
}
