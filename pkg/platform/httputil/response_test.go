package httputil

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	dErrors "mobirides/pkg/domain-errors"
)

func TestWriteError(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
		desc   string
	}{
		{"precondition", dErrors.New(dErrors.CodePrecondition, "verification is locked while submitted"), http.StatusConflict, "precondition_failed", "verification is locked while submitted"},
		{"navigation", dErrors.New(dErrors.CodeNavigationDenied, "cannot navigate to step selfie"), http.StatusForbidden, "navigation_denied", "cannot navigate to step selfie"},
		{"wrapped persistence keeps outer message", dErrors.Wrap(errors.New("dial tcp: refused"), dErrors.CodePersistence, "failed to save verification"), http.StatusServiceUnavailable, "persistence_failed", "failed to save verification"},
		{"plain error is hidden", errors.New("pq: relation missing"), http.StatusInternalServerError, "internal_error", "internal server error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			WriteError(rec, tt.err)
			assert.Equal(t, tt.status, rec.Code)
			assert.JSONEq(t, `{"error":"`+tt.code+`","error_description":"`+tt.desc+`"}`, rec.Body.String())
		})
	}
}
