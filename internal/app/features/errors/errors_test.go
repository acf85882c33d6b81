package errors_test

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	uierrors "github.com/dalemusser/shopdesk/internal/app/features/errors"
	"github.com/dalemusser/shopdesk/internal/app/system/apperr"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type body struct {
	Error   string `json:"error"`
	Reason  string `json:"reason"`
	Message string `json:"message"`
}

func TestWrite_MapsKinds(t *testing.T) {
	el := uierrors.NewErrorLogger(zap.NewNop())

	tests := []struct {
		name   string
		err    error
		status int
		code   string
		msg    string
	}{
		{"denied", apperr.Denied("op", "no_assignment", "you are not a member of this shop"), http.StatusForbidden, "permission_denied", "you are not a member of this shop"},
		{"not found", apperr.NotFound("op", "shop"), http.StatusNotFound, "not_found", ""},
		{"state", apperr.State("op", "invitation has expired"), http.StatusConflict, "invalid_state", "invitation has expired"},
		{"validation", apperr.Invalid("op", "self_role_change", "you cannot change your own role"), http.StatusBadRequest, "validation_error", "you cannot change your own role"},
		{"internal hides cause", apperr.Internal("op", errors.New("mongo: secret detail")), http.StatusInternalServerError, "internal", "internal error"},
		{"plain error", errors.New("boom"), http.StatusInternalServerError, "internal", "internal error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			el.Write(rec, httptest.NewRequest("GET", "/x", nil), tt.err)

			if rec.Code != tt.status {
				t.Errorf("status: got %d, want %d", rec.Code, tt.status)
			}
			var b body
			if err := json.Unmarshal(rec.Body.Bytes(), &b); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if b.Error != tt.code {
				t.Errorf("error code: got %q, want %q", b.Error, tt.code)
			}
			if tt.msg != "" && b.Message != tt.msg {
				t.Errorf("message: got %q, want %q", b.Message, tt.msg)
			}
			if strings.Contains(rec.Body.String(), "secret detail") {
				t.Error("internal cause leaked to the client")
			}
		})
	}
}

func TestDecodeBody(t *testing.T) {
	var v struct {
		Role string `json:"role"`
	}

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/", strings.NewReader(`{"role":"staff"}`))
	if err := uierrors.DecodeBody(rec, req, &v); err != nil || v.Role != "staff" {
		t.Errorf("valid body: err=%v role=%q", err, v.Role)
	}

	for _, in := range []string{"", `{"role":"staff","extra":1}`, `{"role":"staff"}{}`, `not json`} {
		req := httptest.NewRequest("POST", "/", strings.NewReader(in))
		if err := uierrors.DecodeBody(httptest.NewRecorder(), req, &v); err == nil {
			t.Errorf("expected error for body %q", in)
		}
	}
}

func TestObjectIDParam(t *testing.T) {
	r := chi.NewRouter()
	var ok, bad bool
	r.Get("/shops/{shopID}", func(w http.ResponseWriter, req *http.Request) {
		_, err := uierrors.ObjectIDParam(req, "shopID")
		if err == nil {
			ok = true
		} else {
			bad = true
		}
	})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/shops/507f1f77bcf86cd799439011", nil))
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/shops/nope", nil))
	if !ok || !bad {
		t.Errorf("expected one valid and one invalid parse, got ok=%v bad=%v", ok, bad)
	}
}
