package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func authTestHandler() http.Handler {
	return APIKeyAuth("secret")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
}

func TestAPIKeyAuthMissingKey(t *testing.T) {
	req := httptest.NewRequest("GET", "/v1/batches", nil)
	rec := httptest.NewRecorder()

	authTestHandler().ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", rec.Code)
	}
}

func TestAPIKeyAuthWrongKey(t *testing.T) {
	req := httptest.NewRequest("GET", "/v1/batches", nil)
	req.Header.Set("X-API-Key", "wrong")
	rec := httptest.NewRecorder()

	authTestHandler().ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Errorf("expected 403, got %d", rec.Code)
	}
}

func TestAPIKeyAuthHeaderVariants(t *testing.T) {
	cases := []struct {
		name  string
		apply func(*http.Request)
	}{
		{"x-api-key header", func(r *http.Request) { r.Header.Set("X-API-Key", "secret") }},
		{"bearer token", func(r *http.Request) { r.Header.Set("Authorization", "Bearer secret") }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/v1/batches", nil)
			tc.apply(req)
			rec := httptest.NewRecorder()

			authTestHandler().ServeHTTP(rec, req)

			if rec.Code != http.StatusOK {
				t.Errorf("expected 200, got %d", rec.Code)
			}
		})
	}
}
