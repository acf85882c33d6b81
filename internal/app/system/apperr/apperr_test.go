package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestIs_MatchesKind(t *testing.T) {
	err := Denied("membership.assign", "no_assignment", "no access to shop")
	if !errors.Is(err, ErrPermissionDenied) {
		t.Error("expected errors.Is to match ErrPermissionDenied")
	}
	if errors.Is(err, ErrNotFound) {
		t.Error("did not expect errors.Is to match ErrNotFound")
	}

	wrapped := fmt.Errorf("handler: %w", err)
	if !errors.Is(wrapped, ErrPermissionDenied) {
		t.Error("expected wrapped error to match ErrPermissionDenied")
	}
	if got := ReasonOf(wrapped); got != "no_assignment" {
		t.Errorf("ReasonOf: got %q, want %q", got, "no_assignment")
	}
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"denied", Denied("op", "", "x"), http.StatusForbidden},
		{"not found", NotFound("op", "user"), http.StatusNotFound},
		{"exists", Exists("op", "dup"), http.StatusConflict},
		{"state", State("op", "terminal"), http.StatusConflict},
		{"validation", Invalid("op", "", "bad role"), http.StatusBadRequest},
		{"rate limited", New(KindRateLimited, "op", "slow down"), http.StatusTooManyRequests},
		{"internal", Internal("op", errors.New("boom")), http.StatusInternalServerError},
		{"plain", errors.New("plain"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := HTTPStatus(tt.err); got != tt.want {
				t.Errorf("HTTPStatus() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestPublicMessage_HidesInternalCause(t *testing.T) {
	err := Internal("users.update", errors.New("connection reset by peer"))
	if got := PublicMessage(err); got != "internal error" {
		t.Errorf("PublicMessage() = %q, want %q", got, "internal error")
	}
	if got := PublicMessage(NotFound("op", "invitation")); got != "invitation not found" {
		t.Errorf("PublicMessage() = %q", got)
	}
}
