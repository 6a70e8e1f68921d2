package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
)

func TestStripSlashesMiddleware_KeepsEscapedSegments(t *testing.T) {
	tests := []struct {
		target string
		want   string
	}{
		{"/domains/acme/", "acme"},
		{"/domains/a%2Fb/", "a%2Fb"},
		{"/domains/a%2Fb", "a%2Fb"},
		{"/domains/acme%20corp/", "acme corp"},
	}

	for _, tt := range tests {
		t.Run(tt.target, func(t *testing.T) {
			var got string
			r := chi.NewRouter()
			r.Use(NewStripSlashesMiddleware())
			r.Get("/domains/{domain}", func(w http.ResponseWriter, r *http.Request) {
				got = chi.URLParam(r, "domain")
			})

			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, tt.target, nil))

			if w.Code != http.StatusOK {
				t.Fatalf("status = %d, want 200", w.Code)
			}
			if got != tt.want {
				t.Errorf("domain = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestStripSlashesMiddleware_RootUntouched(t *testing.T) {
	var got string
	handler := NewStripSlashesMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.URL.Path
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	if got != "/" {
		t.Errorf("path = %q, want %q", got, "/")
	}
}
