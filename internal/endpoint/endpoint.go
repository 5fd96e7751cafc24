// Package endpoint implements the HTTP readiness poller behind
// docci-wait-for-endpoint. Grounded on original_source/src/models.py's
// Endpoint.poll generator; attempt pacing uses golang.org/x/time/rate
// instead of a bare time.Sleep loop since a bursty poll-then-wait cadence
// is exactly what rate.Limiter models, and Wait(ctx) gives the poller a
// natural cancellation point for the driver's interrupt handling.
package endpoint

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// Endpoint is a URL to poll with a wall-clock timeout.
type Endpoint struct {
	URL        string
	MaxTimeout time.Duration
}

const defaultTimeout = 30 * time.Second

// Parse reads the docci-wait-for-endpoint tag value, which is either a
// bare URL or "URL|SECONDS".
func Parse(value string) Endpoint {
	url, rest, ok := strings.Cut(value, "|")
	if !ok {
		return Endpoint{URL: value, MaxTimeout: defaultTimeout}
	}
	seconds, err := strconv.Atoi(strings.TrimSpace(rest))
	if err != nil {
		return Endpoint{URL: url, MaxTimeout: defaultTimeout}
	}
	return Endpoint{URL: url, MaxTimeout: time.Duration(seconds) * time.Second}
}

// Attempt is one poll outcome: Success true with a ready message, or false
// with a retry message.
type Attempt struct {
	Success bool
	Message string
}

// Poll emits one Attempt per try on the returned channel until the first
// successful GET (any response, any status code, counts as ready — only
// connectivity is the signal) or until MaxTimeout elapses since the call,
// whichever comes first. The channel is closed when polling ends. interval
// paces attempts via a rate.Limiter (burst 1); ctx cancellation stops the
// poll early without an error (nothing gets sent after cancellation).
func Poll(ctx context.Context, ep Endpoint, interval time.Duration) <-chan Attempt {
	out := make(chan Attempt)
	if interval <= 0 {
		interval = time.Second
	}

	go func() {
		defer close(out)

		limiter := rate.NewLimiter(rate.Every(interval), 1)
		client := &http.Client{Timeout: interval}
		start := time.Now()
		attempt := 1

		for {
			if err := limiter.Wait(ctx); err != nil {
				return
			}

			req, err := http.NewRequestWithContext(ctx, http.MethodGet, ep.URL, nil)
			if err == nil {
				resp, getErr := client.Do(req)
				if getErr == nil {
					resp.Body.Close()
					select {
					case out <- Attempt{Success: true, Message: fmt.Sprintf("Success: endpoint is up: %s", ep.URL)}:
					case <-ctx.Done():
					}
					return
				}
			}

			if time.Since(start) > ep.MaxTimeout {
				return
			}

			msg := fmt.Sprintf("Error: endpoint not up yet: %s, trying again. Try number: %d", ep.URL, attempt)
			select {
			case out <- Attempt{Success: false, Message: msg}:
			case <-ctx.Done():
				return
			}
			attempt++
		}
	}()

	return out
}

// Wait drains Poll to its conclusion, returning the first success Attempt
// or a zero Attempt with ok=false if the deadline passed without one.
func Wait(ctx context.Context, ep Endpoint, interval time.Duration, onAttempt func(Attempt)) (Attempt, bool) {
	for a := range Poll(ctx, ep, interval) {
		if onAttempt != nil {
			onAttempt(a)
		}
		if a.Success {
			return a, true
		}
	}
	return Attempt{}, false
}
