package endpoint

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestParseURLOnly(t *testing.T) {
	ep := Parse("http://localhost:8080/health")
	if ep.URL != "http://localhost:8080/health" {
		t.Fatalf("URL = %q", ep.URL)
	}
	if ep.MaxTimeout != defaultTimeout {
		t.Fatalf("MaxTimeout = %v, want default", ep.MaxTimeout)
	}
}

func TestParseURLWithTimeout(t *testing.T) {
	ep := Parse("http://localhost:8080/health|5")
	if ep.MaxTimeout != 5*time.Second {
		t.Fatalf("MaxTimeout = %v, want 5s", ep.MaxTimeout)
	}
}

func TestWaitSucceedsOnFirstReachableGet(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError) // any response counts as ready
	}))
	defer srv.Close()

	ep := Endpoint{URL: srv.URL, MaxTimeout: 2 * time.Second}
	attempt, ok := Wait(context.Background(), ep, 10*time.Millisecond, nil)
	if !ok {
		t.Fatalf("expected success")
	}
	if !attempt.Success {
		t.Fatalf("expected Attempt.Success")
	}
}

func TestWaitTimesOutWhenUnreachable(t *testing.T) {
	ep := Endpoint{URL: "http://127.0.0.1:1/unreachable", MaxTimeout: 80 * time.Millisecond}
	var attempts int
	_, ok := Wait(context.Background(), ep, 20*time.Millisecond, func(a Attempt) { attempts++ })
	if ok {
		t.Fatalf("expected failure (deadline exceeded)")
	}
	if attempts == 0 {
		t.Fatalf("expected at least one failed attempt to be observed")
	}
}

func TestPollStopsOnContextCancellation(t *testing.T) {
	ep := Endpoint{URL: "http://127.0.0.1:1/unreachable", MaxTimeout: 10 * time.Second}
	ctx, cancel := context.WithCancel(context.Background())

	ch := Poll(ctx, ep, 10*time.Millisecond)
	<-ch // first failed attempt
	cancel()

	deadline := time.After(time.Second)
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				return // channel closed promptly after cancellation
			}
		case <-deadline:
			t.Fatal("Poll did not stop after context cancellation")
		}
	}
}
