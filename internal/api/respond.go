package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/agendaweb/agenda/internal/auth"
	"github.com/agendaweb/agenda/internal/logging"
	"github.com/agendaweb/agenda/internal/store"
)

var errBadBody = errors.New("invalid request body")

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeMessage(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"message": message})
}

// decodeJSON reads a JSON body into dst. An empty body leaves dst untouched
// so that missing fields are reported by validation instead.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		return errBadBody
	}
	return nil
}

// writeError maps err onto a status code. Anything unrecognised is logged
// and answered with a generic 500.
func (api *Api) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *auth.ValidationError
	switch {
	case errors.As(err, &verr):
		writeMessage(w, http.StatusBadRequest, verr.Error())
	case errors.Is(err, errBadBody), errors.Is(err, auth.ErrValidation):
		writeMessage(w, http.StatusBadRequest, errBadBody.Error())
	case errors.Is(err, auth.ErrInvalidCredentials):
		writeMessage(w, http.StatusUnauthorized, auth.ErrInvalidCredentials.Error())
	case errors.Is(err, auth.ErrInvalidOrExpiredToken):
		writeMessage(w, http.StatusBadRequest, auth.ErrInvalidOrExpiredToken.Error())
	case errors.Is(err, auth.ErrUnauthenticated):
		writeMessage(w, http.StatusUnauthorized, auth.ErrUnauthenticated.Error())
	case errors.Is(err, store.ErrNotFound):
		writeMessage(w, http.StatusNotFound, "not found")
	case errors.Is(err, store.ErrUnknownTag):
		writeMessage(w, http.StatusBadRequest, store.ErrUnknownTag.Error())
	case errors.Is(err, store.ErrConflict):
		writeMessage(w, http.StatusConflict, store.ErrConflict.Error())
	default:
		logging.LogError(r.Context(), api.logger, "request failed", err,
			"method", r.Method,
			"path", r.URL.Path,
			"request_id", middleware.GetReqID(r.Context()),
		)
		writeMessage(w, http.StatusInternalServerError, "internal error")
	}
}
