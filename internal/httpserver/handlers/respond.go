package handlers

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"geoconsole/internal/apperr"
)

func respondJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}

func respondStatus(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}

// failRequest maps the closed error taxonomy onto status codes. Anything
// unclassified is an internal failure; the message still goes back because
// the dashboard surfaces it.
func failRequest(w http.ResponseWriter, lg *zap.SugaredLogger, route string, err error) {
	switch apperr.KindOf(err) {
	case apperr.AccessDenied:
		respondStatus(w, http.StatusForbidden, map[string]string{"error": err.Error()})
	case apperr.RegistrationRequired:
		respondStatus(w, http.StatusNotAcceptable, map[string]string{"error": err.Error()})
	default:
		lg.Errorw("request failed", "route", route, "error", err)
		respondStatus(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
}
