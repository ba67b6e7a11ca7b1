package process

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// readyPollInterval is how often WaitReady probes
const readyPollInterval = 200 * time.Millisecond

// ProbeHTTP returns true if addr responds to an HTTP GET request within 5 seconds.
// Any HTTP response (even 404/405) means the server is listening.
func ProbeHTTP(addr string) bool {
	return probeHTTP(context.Background(), addr)
}

func probeHTTP(ctx context.Context, addr string) bool {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, addr, nil)
	if err != nil {
		return false
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return true
}

// WaitReady polls addr until it answers or timeout elapses.
func WaitReady(ctx context.Context, addr string, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(readyPollInterval)
	defer ticker.Stop()
	for {
		if probeHTTP(ctx, addr) {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("%s not ready after %s: %w", addr, timeout, ctx.Err())
		case <-ticker.C:
		}
	}
}
