package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/tradeforge/papertrade/market"
)

// Source is one independent upstream of price ticks.
type Source interface {
	Name() string
	FetchTicks(ctx context.Context, symbols []string) ([]market.Tick, error)
	HealthCheck(ctx context.Context) error
}

const (
	fetchRetries    = 3
	fetchRetryDelay = 250 * time.Millisecond
	requestTimeout  = 10 * time.Second
)

func newHTTPClient() *http.Client {
	return &http.Client{Timeout: requestTimeout}
}

// getJSON fetches url and decodes the response into v, retrying transient
// failures with a doubling delay. Retries live here at the boundary; the
// calculators downstream never retry.
func getJSON(ctx context.Context, client *http.Client, url string, v any) error {
	delay := fetchRetryDelay
	var lastErr error

	for attempt := 0; attempt < fetchRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
			delay *= 2
		}

		lastErr = func() error {
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
			if err != nil {
				return err
			}
			resp, err := client.Do(req)
			if err != nil {
				return err
			}
			defer resp.Body.Close()

			if resp.StatusCode != http.StatusOK {
				io.Copy(io.Discard, resp.Body)
				return fmt.Errorf("unexpected status %d", resp.StatusCode)
			}
			return json.NewDecoder(resp.Body).Decode(v)
		}()
		if lastErr == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	return fmt.Errorf("get %s: %w", url, lastErr)
}
