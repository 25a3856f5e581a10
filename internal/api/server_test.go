package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestRequireAuth(t *testing.T) {
	tests := []struct {
		name       string
		header     string
		wantStatus int
	}{
		{"valid token", "Bearer secret-key", http.StatusOK},
		{"missing header", "", http.StatusUnauthorized},
		{"wrong token", "Bearer wrong-key", http.StatusUnauthorized},
		{"malformed header", "Basic secret-key", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				called = true
				w.WriteHeader(http.StatusOK)
			})

			req := httptest.NewRequest(http.MethodPost, "/test", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			requireAuth("secret-key", next).ServeHTTP(w, req)

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if called != (tt.wantStatus == http.StatusOK) {
				t.Errorf("next called = %v", called)
			}
		})
	}
}

func TestRouterGuardsMutations(t *testing.T) {
	router := NewRouter(newTestApp(t), ServerOptions{AdminAPIKey: "secret-key"})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/api/v1/holdings/h1", nil))
	if w.Code != http.StatusUnauthorized {
		t.Errorf("unauthenticated delete status = %d, want 401", w.Code)
	}

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/holdings", nil))
	if w.Code != http.StatusOK {
		t.Errorf("list status = %d, want 200 without a token", w.Code)
	}

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/holdings/h1", nil)
	req.Header.Set("Authorization", "Bearer secret-key")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusNoContent {
		t.Errorf("authenticated delete status = %d, want 204", w.Code)
	}
}

func TestRouterCORSPreflight(t *testing.T) {
	router := NewRouter(newTestApp(t), ServerOptions{AllowedOrigins: []string{"https://folio.example"}})

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/holdings", nil)
	req.Header.Set("Origin", "https://folio.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "https://folio.example" {
		t.Errorf("Access-Control-Allow-Origin = %q", got)
	}
}
