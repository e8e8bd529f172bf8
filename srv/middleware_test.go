package srv

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestWithTimeoutPassesThroughFastHandler(t *testing.T) {
	s := &Server{RequestTimeout: 50 * time.Millisecond}
	h := s.withTimeout(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusOK || rec.Body.String() != "ok" {
		t.Fatalf("want 200/ok, got %d/%s", rec.Code, rec.Body.String())
	}
}

func TestWithTimeoutRespondsOnDeadlineExceeded(t *testing.T) {
	s := &Server{RequestTimeout: 10 * time.Millisecond}
	h := s.withTimeout(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
		time.Sleep(5 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusGatewayTimeout {
		t.Fatalf("want 504, got %d", rec.Code)
	}
}
