package api

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/samber/oops"
	"github.com/stretchr/testify/assert"

	"github.com/agendaweb/agenda/internal/auth"
	"github.com/agendaweb/agenda/internal/store"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestWriteError(t *testing.T) {
	api := &Api{logger: discardLogger()}

	cases := []struct {
		name    string
		err     error
		status  int
		message string
	}{
		{"validation", &auth.ValidationError{Field: "email", Reason: "is required"}, http.StatusBadRequest, "email: is required"},
		{"bad body", errBadBody, http.StatusBadRequest, "invalid request body"},
		{"credentials", auth.ErrInvalidCredentials, http.StatusUnauthorized, "invalid email or password"},
		{"reset token", auth.ErrInvalidOrExpiredToken, http.StatusBadRequest, "invalid or expired token"},
		{"unauthenticated", auth.ErrTokenExpired, http.StatusUnauthorized, "unauthenticated"},
		{"not found", oops.Code("STORE_QUERY_FAILED").Wrap(store.ErrNotFound), http.StatusNotFound, "not found"},
		{"unknown tag", oops.Wrap(store.ErrUnknownTag), http.StatusBadRequest, "unknown tag"},
		{"conflict", oops.Code("STORE_TAG_EXISTS").Wrap(store.ErrConflict), http.StatusConflict, "already exists"},
		{"internal", oops.Code("RESET_MAIL_FAILED").Wrap(errors.New("smtp: 421 try later")), http.StatusInternalServerError, "internal error"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			api.writeError(rr, httptest.NewRequest(http.MethodGet, "/", nil), tc.err)
			assert.Equal(t, tc.status, rr.Code)
			assert.JSONEq(t, `{"message":"`+tc.message+`"}`, rr.Body.String())
		})
	}
}
