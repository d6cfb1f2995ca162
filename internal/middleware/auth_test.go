package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestAuthMiddleware(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	h := AuthMiddleware(ok)

	tests := []struct {
		name   string
		path   string
		cookie bool
		header string
		code   int
	}{
		{"login page is public", "/login", false, "", http.StatusOK},
		{"login endpoint is public", "/auth/login", false, "", http.StatusOK},
		{"static is public", "/static/viewer.js", false, "", http.StatusOK},
		{"camera ingest is public", "/camera", false, "", http.StatusOK},
		{"page redirects", "/", false, "", http.StatusSeeOther},
		{"api is rejected", "/api/stats", false, "", http.StatusUnauthorized},
		{"logs are rejected", "/logs/error", false, "", http.StatusUnauthorized},
		{"ajax is rejected", "/settings", false, "XMLHttpRequest", http.StatusUnauthorized},
		{"cookie grants api", "/api/stats", true, "", http.StatusOK},
		{"cookie grants page", "/", true, "", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.cookie {
				req.AddCookie(&http.Cookie{Name: AuthCookie, Value: "true"})
			}
			if tt.header != "" {
				req.Header.Set("X-Requested-With", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			if rec.Code != tt.code {
				t.Errorf("Expected %d, got %d", tt.code, rec.Code)
			}
		})
	}
}
