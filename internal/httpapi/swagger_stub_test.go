//go:build !swagger

package httpapi

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestSwaggerRoutesAbsentByDefault(t *testing.T) {
	h := NewMux(&mockService{})
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/swagger/index.html", nil))
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 without the swagger tag, got %d", w.Code)
	}
}
