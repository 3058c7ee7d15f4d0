package analytics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestHTTPModelSourceRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("User-Agent") != "volguard-model-fetch" {
			t.Errorf("unexpected user agent %q", r.Header.Get("User-Agent"))
		}
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	src := NewHTTPModelSource(srv.URL, time.Second, 5*time.Second)
	b, err := src.Fetch(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(b) != `{"ok":true}` || calls.Load() != 2 {
		t.Fatalf("expected body after one retry, got %q after %d calls", b, calls.Load())
	}
}

func TestHTTPModelSourceStopsOnClientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	src := NewHTTPModelSource(srv.URL, time.Second, 5*time.Second)
	if _, err := src.Fetch(context.Background()); err == nil {
		t.Fatalf("expected error for 404")
	}
	if calls.Load() != 1 {
		t.Fatalf("404 should not be retried, got %d calls", calls.Load())
	}
}
